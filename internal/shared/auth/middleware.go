package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/vetcore/platform/internal/auth"
	"github.com/vetcore/platform/internal/shared/config"
	"github.com/vetcore/platform/internal/shared/metrics"
)

type contextKey string

const (
	UserContextKey contextKey = "user"
)

// User represents the authenticated staff member from JWT claims
type User struct {
	ID       int64     `json:"id"`
	Username string    `json:"username"`
	Name     string    `json:"name"`
	Role     auth.Role `json:"role"`
}

// Claims extends JWT claims with clinic-specific data. Subject is the staff
// username; staff_id is the numeric primary key.
type Claims struct {
	jwt.RegisteredClaims
	StaffID int64  `json:"staff_id"`
	Name    string `json:"name"`
	Role    string `json:"role"`
}

// Middleware creates JWT authentication middleware. Tokens are issued by the
// clinic identity provider and signed with the shared HS256 secret.
func Middleware(cfg config.AuthConfig) func(http.Handler) http.Handler {
	parser := newParser(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing authorization header", nil)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid authorization header format", nil)
				return
			}

			user, err := parseToken(parser, cfg, parts[1])
			if err != nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token", nil)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func newParser(cfg config.AuthConfig) *jwt.Parser {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return jwt.NewParser(opts...)
}

func parseToken(parser *jwt.Parser, cfg config.AuthConfig, tokenString string) (*User, error) {
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	role, err := auth.ParseRole(claims.Role)
	if err != nil {
		return nil, err
	}

	return &User{
		ID:       claims.StaffID,
		Username: claims.Subject,
		Name:     claims.Name,
		Role:     role,
	}, nil
}

// Session converts the verified user into a gate session.
func (u *User) Session() auth.Session {
	return auth.Session{
		Authenticated: true,
		Role:          u.Role,
		StaffID:       u.ID,
		Name:          u.Name,
		Username:      u.Username,
	}
}

// IsAdmin checks if user is an admin
func (u *User) IsAdmin() bool {
	return u.Role == auth.RoleAdmin
}

// ActorID returns the staff id as a string for log attributes
func (u *User) ActorID() string {
	return strconv.FormatInt(u.ID, 10)
}

// GetUser extracts the user from request context
func GetUser(ctx context.Context) *User {
	user, ok := ctx.Value(UserContextKey).(*User)
	if !ok {
		return nil
	}
	return user
}

// RequireRoles admits callers the gate allows for the given role set.
// Admin always passes; a nil set admits any authenticated role.
func RequireRoles(allowed auth.RoleSet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := auth.SessionState{}
			if user := GetUser(r.Context()); user != nil {
				state.Session = user.Session()
			}

			decision := auth.Decide(state, allowed)
			metrics.RecordAccessDecision(string(decision.Kind))

			switch decision.Kind {
			case auth.DecisionAllow:
				next.ServeHTTP(w, r)
			case auth.DecisionRedirectToRoleHome:
				writeError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions", map[string]string{
					"home": decision.Target,
				})
			default:
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
			}
		})
	}
}

// RequirePermission admits callers whose role carries perm.
func RequirePermission(perm auth.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUser(r.Context())
			if user == nil {
				metrics.RecordAccessDecision(string(auth.DecisionRedirectToLogin))
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
				return
			}
			if !auth.HasPermission(user.Role, perm) {
				metrics.RecordAccessDecision(string(auth.DecisionRedirectToRoleHome))
				details := map[string]string{"permission": string(perm)}
				if _, ok := auth.Capabilities[user.Role]; ok {
					details["home"] = auth.HomeRoute(user.Role)
				}
				writeError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions", details)
				return
			}
			metrics.RecordAccessDecision(string(auth.DecisionAllow))
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, code, message string, details map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error":   message,
		"code":    code,
		"details": details,
	})
}
