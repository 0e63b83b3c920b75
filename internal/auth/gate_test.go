package auth

import (
	"errors"
	"testing"
)

func authed(role Role) SessionState {
	return SessionState{Session: Session{Authenticated: true, Role: role, StaffID: 1}}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name    string
		state   SessionState
		allowed RoleSet
		want    Decision
	}{
		{"unauthenticated", SessionState{}, RoleSet{RoleDoctor}, RedirectToLogin()},
		{"unauthenticated any role", SessionState{}, AnyRole, RedirectToLogin()},
		{"admin bypass", authed(RoleAdmin), RoleSet{RoleDoctor}, Allow()},
		{"admin on admin route", authed(RoleAdmin), RoleSet{RoleAdmin}, Allow()},
		{"any role", authed(RoleReceptionist), AnyRole, Allow()},
		{"member", authed(RoleDoctor), RoleSet{RoleDoctor, RoleAdmin}, Allow()},
		{"receptionist on doctor route", authed(RoleReceptionist), RoleSet{RoleDoctor},
			Decision{Kind: DecisionRedirectToRoleHome, Target: "/receptionist/dashboard"}},
		{"doctor on admin route", authed(RoleDoctor), RoleSet{RoleAdmin},
			Decision{Kind: DecisionRedirectToRoleHome, Target: "/doctor/dashboard"}},
		{"pending", SessionState{Pending: true}, RoleSet{RoleDoctor}, Pending()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.state, tt.allowed); got != tt.want {
				t.Errorf("Decide() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecideNeverRedirectsToLoginWhilePending(t *testing.T) {
	sessions := []Session{
		{},
		{Authenticated: true, Role: RoleDoctor},
		{Authenticated: true, Role: RoleAdmin},
	}
	sets := []RoleSet{AnyRole, {RoleAdmin}, {RoleDoctor}, {RoleReceptionist, RoleAdmin}}

	for _, s := range sessions {
		for _, set := range sets {
			got := Decide(SessionState{Pending: true, Session: s}, set)
			if got.Kind != DecisionPending {
				t.Errorf("Decide(pending, %v, %v) = %v, want pending", s, set, got.Kind)
			}
		}
	}
}

func TestDecideIsPure(t *testing.T) {
	state := authed(RoleReceptionist)
	first := Decide(state, RoleSet{RoleDoctor})
	second := Decide(state, RoleSet{RoleDoctor})
	if first != second {
		t.Errorf("expected identical decisions, got %+v and %+v", first, second)
	}
}

func TestHomeRoutePanicsForUnmappedRole(t *testing.T) {
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic for unmapped role")
		}
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrInvariantViolation) {
			t.Errorf("expected ErrInvariantViolation, got %v", r)
		}
	}()

	Decide(authed(Role("groomer")), RoleSet{RoleDoctor})
}

func TestCapabilityTableIsComplete(t *testing.T) {
	for _, role := range Roles {
		c, ok := Capabilities[role]
		if !ok {
			t.Fatalf("role %s missing from capability table", role)
		}
		if len(c.Nav) == 0 || c.Nav[0].Path != c.Home {
			t.Errorf("role %s: first nav link should be the home route %s", role, c.Home)
		}
		route, ok := Lookup(c.Home)
		if !ok || !route.Allowed.Contains(role) {
			t.Errorf("role %s: home route %s is not reachable by the role", role, c.Home)
		}
		for _, link := range c.Nav {
			if d := Navigate(authed(role), link.Path); d.Kind != DecisionAllow {
				t.Errorf("role %s: nav link %s is not allowed (%v)", role, link.Path, d)
			}
		}
	}
}

func TestParseRole(t *testing.T) {
	if r, err := ParseRole("doctor"); err != nil || r != RoleDoctor {
		t.Errorf("ParseRole(doctor) = %v, %v", r, err)
	}
	if _, err := ParseRole("Doctor"); err == nil {
		t.Error("expected error for wrong case")
	}
	if _, err := ParseRole(""); err == nil {
		t.Error("expected error for empty role")
	}
}

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleAdmin, PermInventoryExport, true},
		{RoleDoctor, PermInventoryAdjust, true},
		{RoleDoctor, PermInventoryManage, false},
		{RoleReceptionist, PermNotificationsSend, true},
		{RoleReceptionist, PermStaffManage, false},
		{RoleReceptionist, PermOwnersManage, true},
		{RoleDoctor, PermOwnersManage, false},
		{RoleAdmin, PermReportsRead, true},
		{RoleReceptionist, PermReportsRead, false},
		{RoleReceptionist, PermNotificationsRead, false},
		{Role("unknown"), PermInventoryRead, false},
	}
	for _, tt := range tests {
		if got := HasPermission(tt.role, tt.perm); got != tt.want {
			t.Errorf("HasPermission(%s, %s) = %v, want %v", tt.role, tt.perm, got, tt.want)
		}
	}
}

func TestNavLinksReturnsCopy(t *testing.T) {
	links := NavLinks(RoleDoctor)
	links[0].Path = "/tampered"

	if Capabilities[RoleDoctor].Nav[0].Path != "/doctor/dashboard" {
		t.Error("NavLinks must not expose the shared table")
	}
}
