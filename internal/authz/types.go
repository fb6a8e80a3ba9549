package authz

import "time"

// Role is one named authority level within one organization. Rank is a total
// order inside the organization: higher value, more authority.
type Role struct {
	ID             string
	OrganizationID string
	Name           string
	Description    string
	Rank           int
	IsSystemRole   bool
	IsEditable     bool
	IsActive       bool
	Permissions    []Permission
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasPermission reports whether the role carries a grant for p.
func (r *Role) HasPermission(p Permission) bool {
	if r == nil {
		return false
	}
	for _, granted := range r.Permissions {
		if granted == p {
			return true
		}
	}
	return false
}

// Membership binds a user to an organization and, optionally, to a role.
// RoleID may be empty for pre-migration rows; LegacyRole then carries the
// free-text role name those rows were written with.
type Membership struct {
	OrganizationID string
	UserID         string
	RoleID         string
	LegacyRole     string
	IsActive       bool
	IsHidden       bool
	JoinedAt       time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Member is a membership row joined with its resolved role, as returned by
// member listings.
type Member struct {
	OrganizationID string
	UserID         string
	RoleID         string
	RoleName       string
	Rank           int
	IsHidden       bool
	JoinedAt       time.Time
}

// RoleResolution is the outcome of resolving a member's role. The tagged form
// keeps "no role" distinct from any default: callers must unwrap explicitly.
type RoleResolution struct {
	role *Role
}

// ResolvedRole wraps a successfully resolved role.
func ResolvedRole(r *Role) RoleResolution { return RoleResolution{role: r} }

// Unresolved marks a member without any resolvable role.
func Unresolved() RoleResolution { return RoleResolution{} }

// Role returns the resolved role, if any.
func (rr RoleResolution) Role() (*Role, bool) {
	if rr.role == nil {
		return nil, false
	}
	return rr.role, true
}
