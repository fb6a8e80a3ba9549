package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"crewhub.org/internal/obs"
)

// Service is the input-validating entry point for role and membership
// mutations. It trims and deduplicates caller input and checks permission
// keys against the catalog before anything reaches a store.
type Service struct {
	roles   RoleStore
	members MembershipStore
	catalog Catalog
}

// NewService constructs a Service.
func NewService(roles RoleStore, members MembershipStore, catalog Catalog) (*Service, error) {
	if roles == nil || members == nil {
		return nil, errors.New("authz: role and membership stores are required")
	}
	if catalog.Size() == 0 {
		return nil, errors.New("authz: permission catalog is empty")
	}
	return &Service{roles: roles, members: members, catalog: catalog}, nil
}

// CreateRole inserts a custom role: editable, non-system, active. The grants
// are written in the same transaction as the role row.
func (s *Service) CreateRole(ctx context.Context, orgID, name, description string, rank int, perms []Permission) (*Role, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return nil, fmt.Errorf("%w: organization_id is required", ErrInvalidInput)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	if rank < 0 {
		return nil, fmt.Errorf("%w: rank must not be negative", ErrInvalidInput)
	}
	validated, err := s.validatePermissions(perms)
	if err != nil {
		return nil, err
	}
	role := &Role{
		OrganizationID: orgID,
		Name:           name,
		Description:    strings.TrimSpace(description),
		Rank:           rank,
		IsEditable:     true,
		IsActive:       true,
		Permissions:    validated,
	}
	if err := s.roles.Create(ctx, role); err != nil {
		return nil, err
	}
	obs.RoleMutation("create")
	return role, nil
}

// GetRole returns the role with its grants.
func (s *Service) GetRole(ctx context.Context, roleID string) (*Role, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return nil, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return s.roles.Find(ctx, roleID)
}

// GetRoleByName resolves (org, name) to a role with its grants.
func (s *Service) GetRoleByName(ctx context.Context, orgID, name string) (*Role, error) {
	orgID = strings.TrimSpace(orgID)
	name = strings.TrimSpace(name)
	if orgID == "" || name == "" {
		return nil, fmt.Errorf("%w: organization_id and role name are required", ErrInvalidInput)
	}
	return s.roles.FindByName(ctx, orgID, name)
}

// ListRoles returns the organization's active roles, highest authority first.
func (s *Service) ListRoles(ctx context.Context, orgID string) ([]*Role, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return nil, fmt.Errorf("%w: organization_id is required", ErrInvalidInput)
	}
	return s.roles.ListByOrg(ctx, orgID)
}

// UpdateRole applies the patch. A patch that carries a permission set
// replaces every grant atomically rather than diffing.
func (s *Service) UpdateRole(ctx context.Context, roleID string, upd RoleUpdate) (*Role, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return nil, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
		}
		upd.Name = &name
	}
	if upd.Description != nil {
		desc := strings.TrimSpace(*upd.Description)
		upd.Description = &desc
	}
	if upd.Rank != nil && *upd.Rank < 0 {
		return nil, fmt.Errorf("%w: rank must not be negative", ErrInvalidInput)
	}
	if upd.Permissions != nil {
		validated, err := s.validatePermissions(*upd.Permissions)
		if err != nil {
			return nil, err
		}
		upd.Permissions = &validated
	}
	role, err := s.roles.Update(ctx, roleID, upd)
	if err != nil {
		return nil, err
	}
	obs.RoleMutation("update")
	return role, nil
}

// DeleteRole removes a role through the guarded path: the role must be
// editable, not a system role, and referenced by no active membership.
func (s *Service) DeleteRole(ctx context.Context, roleID string) error {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	if err := s.roles.Delete(ctx, roleID); err != nil {
		return err
	}
	obs.RoleMutation("delete")
	return nil
}

// AssignRole binds the role to an existing member. Callers run
// Engine.ValidateRoleAssignment first; this path only checks referential
// validity.
func (s *Service) AssignRole(ctx context.Context, orgID, userID, roleID string) error {
	orgID = strings.TrimSpace(orgID)
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if orgID == "" || userID == "" || roleID == "" {
		return fmt.Errorf("%w: organization_id, user_id and role_id are required", ErrInvalidInput)
	}
	if err := s.members.Assign(ctx, orgID, userID, roleID); err != nil {
		return err
	}
	obs.RoleMutation("assign")
	return nil
}

// ListMembers returns the organization's members, subject to the viewer's
// visibility.
func (s *Service) ListMembers(ctx context.Context, orgID string, opts ListMembersOptions) ([]Member, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return nil, fmt.Errorf("%w: organization_id is required", ErrInvalidInput)
	}
	return s.members.ListMembers(ctx, orgID, opts)
}

// RemoveMember hard-deletes the membership row.
func (s *Service) RemoveMember(ctx context.Context, orgID, userID string) (bool, error) {
	orgID = strings.TrimSpace(orgID)
	userID = strings.TrimSpace(userID)
	if orgID == "" || userID == "" {
		return false, fmt.Errorf("%w: organization_id and user_id are required", ErrInvalidInput)
	}
	return s.members.Remove(ctx, orgID, userID)
}

// validatePermissions trims, deduplicates and checks keys against the
// catalog.
func (s *Service) validatePermissions(perms []Permission) ([]Permission, error) {
	seen := make(map[Permission]struct{}, len(perms))
	out := make([]Permission, 0, len(perms))
	for _, p := range perms {
		p = Permission(strings.TrimSpace(string(p)))
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		if !s.catalog.Contains(p) {
			return nil, fmt.Errorf("%w: unknown permission %q", ErrInvalidInput, p)
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}
