// Package auth provides staff roles, the role capability table and the
// route access gate.
package auth

import (
	"fmt"
	"slices"
)

// Role represents a staff role in the clinic.
type Role string

const (
	RoleAdmin        Role = "admin"        // Full clinic access, bypasses every route check
	RoleDoctor       Role = "doctor"       // Appointments and medical records
	RoleReceptionist Role = "receptionist" // Front desk: owners, scheduling, billing
)

// Roles lists every mapped role.
var Roles = []Role{RoleAdmin, RoleDoctor, RoleReceptionist}

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := Capabilities[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Permission represents a specific action on a resource.
type Permission string

// Inventory permissions
const (
	PermInventoryRead   Permission = "inventory.read"
	PermInventoryAdjust Permission = "inventory.adjust"
	PermInventoryManage Permission = "inventory.manage"
	PermInventoryExport Permission = "inventory.export"
)

// Clinic permissions
const (
	PermStaffManage       Permission = "staff.manage"
	PermNotificationsSend Permission = "notifications.send"
	PermNotificationsRead Permission = "notifications.read"
	PermOwnersManage      Permission = "owners.manage"
	PermReportsRead       Permission = "reports.read"
)

// NavLink is one entry of a role's sidebar.
type NavLink struct {
	Path  string `json:"path"`
	Label string `json:"label"`
	Icon  string `json:"icon"`
}

// Capability is everything a role can see and do. Home is where the gate
// sends a role that strays outside its allowed routes.
type Capability struct {
	Home        string
	Nav         []NavLink
	Permissions []Permission
}

// Capabilities is the single role lookup table. Home routes, navigation and
// permissions are all read from here.
var Capabilities = map[Role]Capability{
	RoleAdmin: {
		Home: "/admin/dashboard",
		Nav: []NavLink{
			{Path: "/admin/dashboard", Label: "Dashboard", Icon: "layout-dashboard"},
			{Path: "/admin/staff", Label: "Staff", Icon: "users"},
			{Path: "/admin/services", Label: "Services", Icon: "stethoscope"},
			{Path: "/admin/inventory", Label: "Inventory", Icon: "package"},
			{Path: "/admin/reports", Label: "Reports", Icon: "file-bar-chart"},
			{Path: "/admin/notifications", Label: "Notifications", Icon: "bell"},
			{Path: "/admin/billing", Label: "Billing", Icon: "receipt"},
		},
		Permissions: []Permission{
			PermInventoryRead, PermInventoryAdjust, PermInventoryManage, PermInventoryExport,
			PermStaffManage, PermNotificationsSend, PermNotificationsRead,
			PermOwnersManage, PermReportsRead,
		},
	},
	RoleDoctor: {
		Home: "/doctor/dashboard",
		Nav: []NavLink{
			{Path: "/doctor/dashboard", Label: "Dashboard", Icon: "layout-dashboard"},
			{Path: "/doctor/appointments", Label: "Appointments", Icon: "calendar"},
			{Path: "/doctor/records", Label: "Medical Records", Icon: "clipboard-list"},
			{Path: "/doctor/history", Label: "Pet History", Icon: "paw-print"},
		},
		Permissions: []Permission{
			PermInventoryRead, PermInventoryAdjust,
		},
	},
	RoleReceptionist: {
		Home: "/receptionist/dashboard",
		Nav: []NavLink{
			{Path: "/receptionist/dashboard", Label: "Dashboard", Icon: "layout-dashboard"},
			{Path: "/receptionist/owners", Label: "Owners & Pets", Icon: "users"},
			{Path: "/receptionist/appointments", Label: "Appointments", Icon: "calendar"},
			{Path: "/receptionist/billing", Label: "Billing", Icon: "receipt"},
			{Path: "/receptionist/payments", Label: "Payments", Icon: "credit-card"},
		},
		Permissions: []Permission{
			PermInventoryRead, PermInventoryAdjust,
			PermNotificationsSend, PermOwnersManage,
		},
	},
}

// HomeRoute returns the landing route of a role. An unmapped role is a
// configuration bug and panics with ErrInvariantViolation.
func HomeRoute(role Role) string {
	c, ok := Capabilities[role]
	if !ok {
		panic(fmt.Errorf("%w: no home route for role %q", ErrInvariantViolation, role))
	}
	return c.Home
}

// NavLinks returns the sidebar links for a role, or nil for an unmapped role.
func NavLinks(role Role) []NavLink {
	return slices.Clone(Capabilities[role].Nav)
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role Role, perm Permission) bool {
	return slices.Contains(Capabilities[role].Permissions, perm)
}
