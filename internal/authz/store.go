package authz

import "context"

// RoleStore persists roles and their permission grants. Implementations must
// write a role and its grants atomically: a committed role row with missing
// grants is a correctness violation.
type RoleStore interface {
	// Create inserts the role together with one grant per entry in
	// role.Permissions. Returns ErrDuplicateRoleName when (org, name) exists.
	Create(ctx context.Context, role *Role) error
	// Find returns the role with its grants, or ErrRoleNotFound.
	Find(ctx context.Context, roleID string) (*Role, error)
	// FindByName resolves (org, name) to a role with its grants.
	FindByName(ctx context.Context, orgID, name string) (*Role, error)
	// ListByOrg returns active roles ordered by rank descending, name ascending.
	ListByOrg(ctx context.Context, orgID string) ([]*Role, error)
	// Update applies the patch. A patch carrying Permissions replaces the
	// entire grant set in one transaction. Returns ErrRoleNotEditable for
	// roles with is_editable=false.
	Update(ctx context.Context, roleID string, upd RoleUpdate) (*Role, error)
	// Delete removes the role and its grants after the guards pass:
	// ErrRoleNotEditable, ErrSystemRoleProtected, ErrRoleInUse otherwise.
	// The in-use check and both deletes run in one transaction.
	Delete(ctx context.Context, roleID string) error
	// AddGrants inserts only the grants the role does not already hold.
	// Existing grants are never removed.
	AddGrants(ctx context.Context, roleID string, perms []Permission) error
}

// RoleUpdate is a partial role mutation. Nil fields are left untouched.
type RoleUpdate struct {
	Name        *string
	Description *string
	Rank        *int
	Active      *bool
	Permissions *[]Permission
}

// ListMembersOptions bounds and scopes a member listing. Hidden members are
// included only when ViewerUserID is an active member of the organization.
type ListMembersOptions struct {
	Limit        int
	Offset       int
	ViewerUserID string
}

// MembershipStore persists the user/organization/role binding.
type MembershipStore interface {
	// Assign validates that roleID belongs to orgID (ErrRoleNotFound
	// otherwise) and upserts the membership row. Authority checks are the
	// engine's job, not the store's.
	Assign(ctx context.Context, orgID, userID, roleID string) error
	// Resolve returns the member's role: the role_id reference when set, the
	// legacy free-text name match as fallback, Unresolved otherwise. Missing
	// or inactive memberships resolve to Unresolved without error.
	Resolve(ctx context.Context, orgID, userID string) (RoleResolution, error)
	// IsActiveMember reports whether the user has an active membership row.
	IsActiveMember(ctx context.Context, orgID, userID string) (bool, error)
	// ListMembers returns members ordered by role rank descending, join time
	// ascending.
	ListMembers(ctx context.Context, orgID string, opts ListMembersOptions) ([]Member, error)
	// Remove hard-deletes the membership row and reports whether one existed.
	// Callers wanting soft removal flip is_active instead.
	Remove(ctx context.Context, orgID, userID string) (bool, error)
}
