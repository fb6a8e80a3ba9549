package authz

import (
	"context"
	"errors"
	"fmt"
)

// Fixed role names present in every organization.
const (
	RoleOwner      = "Owner"
	RoleAdmin      = "Admin"
	RoleMember     = "Member"
	RoleHRManager  = "HR Manager"
	RoleRecruiter  = "Recruiter"
	RoleSupervisor = "Supervisor"
)

// Rank values for provisioned roles. Owner is the sentinel top of the
// hierarchy; the specialized set sits strictly between Admin and Member.
const (
	RankOwner      = 100
	RankAdmin      = 50
	RankHRManager  = 40
	RankRecruiter  = 30
	RankSupervisor = 20
	RankMember     = 10
)

type roleDefinition struct {
	name        string
	description string
	rank        int
	system      bool
	editable    bool
	permissions []Permission
}

// Provisioner builds the fixed role sets for an organization. The catalog is
// injected so a grown catalog flows into Owner provisioning and
// reconciliation without process-wide state.
type Provisioner struct {
	roles   RoleStore
	catalog Catalog
}

// NewProvisioner constructs a Provisioner.
func NewProvisioner(roles RoleStore, catalog Catalog) (*Provisioner, error) {
	if roles == nil {
		return nil, errors.New("authz: role store is required")
	}
	if catalog.Size() == 0 {
		return nil, errors.New("authz: permission catalog is empty")
	}
	return &Provisioner{roles: roles, catalog: catalog}, nil
}

// CreateOwnerRole inserts the immutable Owner role granted the entire
// catalog. This is the only creation path that mirrors the full catalog
// instead of taking an explicit permission list.
func (p *Provisioner) CreateOwnerRole(ctx context.Context, orgID string) (*Role, error) {
	return p.create(ctx, orgID, roleDefinition{
		name:        RoleOwner,
		description: "Organization owner with unrestricted access",
		rank:        RankOwner,
		system:      true,
		editable:    false,
		permissions: p.catalog.All(),
	})
}

// CreateDefaultRoles provisions Owner, Admin and Member for a new
// organization. Each creation is independent; re-invocation fails per role
// with ErrDuplicateRoleName, which callers treat as already provisioned.
func (p *Provisioner) CreateDefaultRoles(ctx context.Context, orgID string) ([]*Role, error) {
	owner, err := p.CreateOwnerRole(ctx, orgID)
	if err != nil {
		return nil, err
	}
	created := []*Role{owner}
	for _, def := range defaultRoleDefinitions() {
		role, err := p.create(ctx, orgID, def)
		if err != nil {
			return created, err
		}
		created = append(created, role)
	}
	return created, nil
}

// CreateSpecializedRoles provisions the HR role set: HR Manager, Recruiter
// and Supervisor, ranked strictly below Admin and above Member. Callable any
// time after organization creation.
func (p *Provisioner) CreateSpecializedRoles(ctx context.Context, orgID string) ([]*Role, error) {
	var created []*Role
	for _, def := range specializedRoleDefinitions() {
		role, err := p.create(ctx, orgID, def)
		if err != nil {
			return created, err
		}
		created = append(created, role)
	}
	return created, nil
}

// ReconcileOwnerPermissions backfills catalog permissions missing from the
// Owner role. Idempotent: a second run with an unchanged catalog is a no-op,
// and grants are only ever added, never removed. This is how the Owner
// invariant survives catalog growth after organizations already exist.
func (p *Provisioner) ReconcileOwnerPermissions(ctx context.Context, orgID string) error {
	owner, err := p.roles.FindByName(ctx, orgID, RoleOwner)
	if err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			return fmt.Errorf("%w: organization %s has no owner role", ErrRoleNotFound, orgID)
		}
		return err
	}
	held := make(map[Permission]struct{}, len(owner.Permissions))
	for _, perm := range owner.Permissions {
		held[perm] = struct{}{}
	}
	var missing []Permission
	for _, perm := range p.catalog.All() {
		if _, ok := held[perm]; !ok {
			missing = append(missing, perm)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return p.roles.AddGrants(ctx, owner.ID, missing)
}

func (p *Provisioner) create(ctx context.Context, orgID string, def roleDefinition) (*Role, error) {
	role := &Role{
		OrganizationID: orgID,
		Name:           def.name,
		Description:    def.description,
		Rank:           def.rank,
		IsSystemRole:   def.system,
		IsEditable:     def.editable,
		IsActive:       true,
		Permissions:    def.permissions,
	}
	if err := p.roles.Create(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

func defaultRoleDefinitions() []roleDefinition {
	return []roleDefinition{
		{
			name:        RoleAdmin,
			description: "Day-to-day administration of members, roles and content",
			rank:        RankAdmin,
			system:      true,
			editable:    true,
			permissions: []Permission{
				PermOrgUpdate,
				PermOrgManageSettings,
				PermMembersView,
				PermMembersInvite,
				PermMembersRemove,
				PermRolesManage,
				PermRolesAssign,
				PermEventsView,
				PermEventsManage,
				PermCommentsPost,
				PermCommentsModerate,
				PermInvitesCreate,
				PermInvitesRevoke,
				PermIntegrationsManage,
				PermReportsView,
			},
		},
		{
			name:        RoleMember,
			description: "Baseline membership",
			rank:        RankMember,
			system:      true,
			editable:    true,
			permissions: []Permission{
				PermMembersView,
				PermEventsView,
				PermCommentsPost,
			},
		},
	}
}

func specializedRoleDefinitions() []roleDefinition {
	return []roleDefinition{
		{
			name:        RoleHRManager,
			description: "Full access to HR records and analytics",
			rank:        RankHRManager,
			editable:    true,
			permissions: []Permission{
				PermMembersView,
				PermReportsView,
				PermApplicationsView,
				PermApplicationsManage,
				PermOnboardingView,
				PermOnboardingManage,
				PermPerformanceView,
				PermPerformanceManage,
				PermSkillsManage,
				PermDocumentsView,
				PermDocumentsManage,
				PermHRAnalyticsView,
			},
		},
		{
			name:        RoleRecruiter,
			description: "Hiring pipeline: applications, invitations, onboarding visibility",
			rank:        RankRecruiter,
			editable:    true,
			permissions: []Permission{
				PermMembersView,
				PermInvitesCreate,
				PermApplicationsView,
				PermApplicationsManage,
				PermOnboardingView,
			},
		},
		{
			name:        RoleSupervisor,
			description: "Performance and skills management for direct reports",
			rank:        RankSupervisor,
			editable:    true,
			permissions: []Permission{
				PermMembersView,
				PermOnboardingView,
				PermPerformanceView,
				PermPerformanceManage,
				PermSkillsManage,
			},
		},
	}
}
