package auth

import (
	"errors"
	"slices"
)

var (
	// ErrUnauthenticated means there is no session at all.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUnauthorized means the stored credential was rejected.
	ErrUnauthorized = errors.New("credential rejected")
	// ErrInvariantViolation marks programming errors such as an unmapped role.
	ErrInvariantViolation = errors.New("invariant violation")
)

// Session is the identity the gate decides on. An unauthenticated session
// has an empty Role.
type Session struct {
	Authenticated bool   `json:"authenticated"`
	Role          Role   `json:"role,omitempty"`
	StaffID       int64  `json:"id,omitempty"`
	Name          string `json:"name,omitempty"`
	Username      string `json:"username,omitempty"`
}

// SessionState is a Session plus whether restoration is still outstanding.
// Failed marks a pending state whose last restore attempt hit a server
// error; nothing is in flight until Restore is called again.
type SessionState struct {
	Pending bool
	Failed  bool
	Session Session
}

// RoleSet lists the roles admitted to a route. A nil set admits any
// authenticated role. Admin is always admitted.
type RoleSet []Role

// AnyRole admits every authenticated session.
var AnyRole RoleSet

// Contains reports whether r is listed in the set.
func (s RoleSet) Contains(r Role) bool {
	return slices.Contains(s, r)
}

// DecisionKind enumerates gate outcomes.
type DecisionKind string

const (
	DecisionPending            DecisionKind = "pending"
	DecisionAllow              DecisionKind = "allow"
	DecisionRedirectToLogin    DecisionKind = "redirect_to_login"
	DecisionRedirectToRoleHome DecisionKind = "redirect_to_role_home"
)

const LoginRoute = "/login"

// Decision is what the router should do with a navigation attempt.
type Decision struct {
	Kind   DecisionKind `json:"kind"`
	Target string       `json:"target,omitempty"`
}

func Pending() Decision         { return Decision{Kind: DecisionPending} }
func Allow() Decision           { return Decision{Kind: DecisionAllow} }
func RedirectToLogin() Decision { return Decision{Kind: DecisionRedirectToLogin, Target: LoginRoute} }

func RedirectToRoleHome(role Role) Decision {
	return Decision{Kind: DecisionRedirectToRoleHome, Target: HomeRoute(role)}
}

// Decide evaluates one access attempt. It never returns RedirectToLogin
// while state is pending.
func Decide(state SessionState, allowed RoleSet) Decision {
	if state.Pending {
		return Pending()
	}

	s := state.Session
	if !s.Authenticated {
		return RedirectToLogin()
	}

	if s.Role == RoleAdmin {
		return Allow()
	}

	if allowed == nil || allowed.Contains(s.Role) {
		return Allow()
	}

	return RedirectToRoleHome(s.Role)
}
