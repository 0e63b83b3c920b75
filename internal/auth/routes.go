package auth

import "strings"

// Route is a protected route subtree.
type Route struct {
	Prefix  string
	Allowed RoleSet
}

// Routes is the clinic UI route table. Paths outside it and /login
// fall through to the login redirect.
var Routes = []Route{
	{Prefix: "/admin", Allowed: RoleSet{RoleAdmin}},
	{Prefix: "/doctor", Allowed: RoleSet{RoleDoctor, RoleAdmin}},
	{Prefix: "/receptionist", Allowed: RoleSet{RoleReceptionist, RoleAdmin}},
}

// Lookup finds the subtree containing path.
func Lookup(path string) (Route, bool) {
	for _, r := range Routes {
		if path == r.Prefix || strings.HasPrefix(path, r.Prefix+"/") {
			return r, true
		}
	}
	return Route{}, false
}

// Navigate decides a UI navigation to path.
func Navigate(state SessionState, path string) Decision {
	path = normalizeRoute(path)
	if path == LoginRoute {
		return Allow()
	}

	route, ok := Lookup(path)
	if !ok {
		return RedirectToLogin()
	}
	return Decide(state, route.Allowed)
}

func normalizeRoute(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	return path
}
