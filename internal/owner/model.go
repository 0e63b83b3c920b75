package owner

import (
	"net/mail"
	"strings"
	"time"
	"unicode"
)

// Owner is a pet owner registered at the front desk.
type Owner struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     *string   `json:"email"`
	Address   *string   `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateRequest is the request body for registering an owner
type CreateRequest struct {
	Name    string  `json:"name"`
	Phone   string  `json:"phone"`
	Email   *string `json:"email"`
	Address *string `json:"address"`
}

// SearchFilter matches owners exactly on the set fields. Empty fields are
// ignored.
type SearchFilter struct {
	Phone string
	Email string
}

func (req CreateRequest) validate() (*Owner, map[string]string) {
	details := map[string]string{}

	o := &Owner{
		Name:  strings.TrimSpace(req.Name),
		Phone: NormalizePhone(req.Phone),
	}
	if o.Name == "" {
		details["name"] = "name is required"
	}
	if msg := checkPhone(o.Phone); msg != "" {
		details["phone"] = msg
	}
	if req.Email != nil {
		if email := NormalizeEmail(*req.Email); email != "" {
			if _, err := mail.ParseAddress(email); err != nil {
				details["email"] = "email is invalid"
			}
			o.Email = &email
		}
	}
	if req.Address != nil {
		if address := strings.TrimSpace(*req.Address); address != "" {
			o.Address = &address
		}
	}
	return o, details
}

// NormalizePhone drops spaces, dashes, dots and parentheses. A leading +
// is kept.
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for i, r := range s {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case strings.ContainsRune(" -.()", r):
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func checkPhone(s string) string {
	digits := strings.TrimPrefix(s, "+")
	switch {
	case digits == "":
		return "phone is required"
	case strings.IndexFunc(digits, func(r rune) bool { return !unicode.IsDigit(r) }) >= 0:
		return "phone may only contain digits"
	case len(digits) < 7 || len(digits) > 15:
		return "phone must have 7 to 15 digits"
	}
	return ""
}
