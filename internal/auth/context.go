package auth

import "context"

type sessionKey struct{}

// NewContext returns ctx carrying the verified session of the caller.
func NewContext(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the caller's session. Requests that passed no
// authentication middleware get an unauthenticated session.
func FromContext(ctx context.Context) Session {
	s, _ := ctx.Value(sessionKey{}).(Session)
	return s
}
