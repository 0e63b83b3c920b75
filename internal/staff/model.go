package staff

import (
	"net/mail"
	"strings"
	"time"

	"github.com/vetcore/platform/internal/auth"
)

// Member is a staff account. Credentials are held by the identity provider;
// the JWT subject is the username.
type Member struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      auth.Role `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the gate session of an active member.
func (m *Member) Session() auth.Session {
	return auth.Session{
		Authenticated: true,
		Role:          m.Role,
		StaffID:       m.ID,
		Name:          m.Name,
		Username:      m.Username,
	}
}

// CreateRequest is the request body for adding a staff member
type CreateRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// StatusRequest activates or deactivates a member
type StatusRequest struct {
	IsActive *bool `json:"is_active"`
}

// ProfileRequest is a partial profile update
type ProfileRequest struct {
	Name     *string `json:"name"`
	Username *string `json:"username"`
	Email    *string `json:"email"`
}

func (req CreateRequest) validate() (*Member, map[string]string) {
	details := map[string]string{}

	m := &Member{
		Name:     strings.TrimSpace(req.Name),
		Username: normalizeUsername(req.Username),
		Email:    normalizeEmail(req.Email),
		IsActive: true,
	}
	if m.Name == "" {
		details["name"] = "name is required"
	}
	if msg := checkUsername(m.Username); msg != "" {
		details["username"] = msg
	}
	if msg := checkEmail(m.Email); msg != "" {
		details["email"] = msg
	}

	role, err := auth.ParseRole(req.Role)
	if err != nil {
		details["role"] = "role must be admin, doctor or receptionist"
	}
	m.Role = role

	return m, details
}

func (req ProfileRequest) apply(m *Member) map[string]string {
	details := map[string]string{}

	if req.Name != nil {
		if name := strings.TrimSpace(*req.Name); name == "" {
			details["name"] = "name cannot be empty"
		} else {
			m.Name = name
		}
	}
	if req.Username != nil {
		username := normalizeUsername(*req.Username)
		if msg := checkUsername(username); msg != "" {
			details["username"] = msg
		} else {
			m.Username = username
		}
	}
	if req.Email != nil {
		email := normalizeEmail(*req.Email)
		if msg := checkEmail(email); msg != "" {
			details["email"] = msg
		} else {
			m.Email = email
		}
	}
	return details
}

func normalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func checkUsername(s string) string {
	switch {
	case len(s) < 3:
		return "username must be at least 3 characters"
	case len(s) > 50:
		return "username must be at most 50 characters"
	case strings.ContainsAny(s, " \t@"):
		return "username cannot contain spaces or @"
	}
	return ""
}

func checkEmail(s string) string {
	if s == "" {
		return "email is required"
	}
	if _, err := mail.ParseAddress(s); err != nil {
		return "email is invalid"
	}
	return ""
}
