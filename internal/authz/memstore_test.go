package authz

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

// memStore is an in-memory RoleStore + MembershipStore honoring the same
// guards as the SQL implementation.
type memStore struct {
	mu      sync.Mutex
	nextID  int
	roles   map[string]*Role
	members map[string]*Membership
}

func newMemStore() *memStore {
	return &memStore{
		roles:   make(map[string]*Role),
		members: make(map[string]*Membership),
	}
}

func memberKey(orgID, userID string) string { return orgID + "/" + userID }

func cloneRole(r *Role) *Role {
	cp := *r
	cp.Permissions = append([]Permission(nil), r.Permissions...)
	return &cp
}

func (s *memStore) Create(_ context.Context, role *Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.roles {
		if existing.OrganizationID == role.OrganizationID && existing.Name == role.Name {
			return fmt.Errorf("%w: %s", ErrDuplicateRoleName, role.Name)
		}
	}
	s.nextID++
	role.ID = "role-" + strconv.Itoa(s.nextID)
	role.CreatedAt = time.Now().UTC()
	role.UpdatedAt = role.CreatedAt
	s.roles[role.ID] = cloneRole(role)
	return nil
}

func (s *memStore) Find(_ context.Context, roleID string) (*Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[roleID]
	if !ok {
		return nil, ErrRoleNotFound
	}
	return cloneRole(role), nil
}

func (s *memStore) FindByName(_ context.Context, orgID, name string) (*Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, role := range s.roles {
		if role.OrganizationID == orgID && role.Name == name {
			return cloneRole(role), nil
		}
	}
	return nil, ErrRoleNotFound
}

func (s *memStore) ListByOrg(_ context.Context, orgID string) ([]*Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Role
	for _, role := range s.roles {
		if role.OrganizationID == orgID && role.IsActive {
			out = append(out, cloneRole(role))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank > out[j].Rank
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *memStore) Update(_ context.Context, roleID string, upd RoleUpdate) (*Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[roleID]
	if !ok {
		return nil, ErrRoleNotFound
	}
	if !role.IsEditable {
		return nil, ErrRoleNotEditable
	}
	if upd.Name != nil {
		role.Name = *upd.Name
	}
	if upd.Description != nil {
		role.Description = *upd.Description
	}
	if upd.Rank != nil {
		role.Rank = *upd.Rank
	}
	if upd.Active != nil {
		role.IsActive = *upd.Active
	}
	if upd.Permissions != nil {
		role.Permissions = append([]Permission(nil), (*upd.Permissions)...)
	}
	role.UpdatedAt = time.Now().UTC()
	return cloneRole(role), nil
}

func (s *memStore) Delete(_ context.Context, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[roleID]
	if !ok {
		return ErrRoleNotFound
	}
	if role.IsSystemRole {
		return ErrSystemRoleProtected
	}
	if !role.IsEditable {
		return ErrRoleNotEditable
	}
	for _, m := range s.members {
		if m.RoleID == roleID && m.IsActive {
			return ErrRoleInUse
		}
	}
	delete(s.roles, roleID)
	return nil
}

func (s *memStore) AddGrants(_ context.Context, roleID string, perms []Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[roleID]
	if !ok {
		return ErrRoleNotFound
	}
	held := make(map[Permission]struct{}, len(role.Permissions))
	for _, p := range role.Permissions {
		held[p] = struct{}{}
	}
	for _, p := range perms {
		if _, ok := held[p]; !ok {
			role.Permissions = append(role.Permissions, p)
			held[p] = struct{}{}
		}
	}
	return nil
}

func (s *memStore) Assign(_ context.Context, orgID, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[roleID]
	if !ok || role.OrganizationID != orgID {
		return ErrRoleNotFound
	}
	key := memberKey(orgID, userID)
	if m, ok := s.members[key]; ok {
		m.RoleID = roleID
		m.UpdatedAt = time.Now().UTC()
		return nil
	}
	now := time.Now().UTC()
	s.members[key] = &Membership{
		OrganizationID: orgID,
		UserID:         userID,
		RoleID:         roleID,
		IsActive:       true,
		JoinedAt:       now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return nil
}

func (s *memStore) Resolve(_ context.Context, orgID, userID string) (RoleResolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[memberKey(orgID, userID)]
	if !ok || !m.IsActive {
		return Unresolved(), nil
	}
	if m.RoleID != "" {
		if role, ok := s.roles[m.RoleID]; ok {
			return ResolvedRole(cloneRole(role)), nil
		}
	}
	if m.LegacyRole != "" {
		for _, role := range s.roles {
			if role.OrganizationID == orgID && role.Name == m.LegacyRole {
				return ResolvedRole(cloneRole(role)), nil
			}
		}
	}
	return Unresolved(), nil
}

func (s *memStore) IsActiveMember(_ context.Context, orgID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[memberKey(orgID, userID)]
	return ok && m.IsActive, nil
}

func (s *memStore) ListMembers(_ context.Context, orgID string, opts ListMembersOptions) ([]Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	viewerActive := false
	if v, ok := s.members[memberKey(orgID, opts.ViewerUserID)]; ok && v.IsActive {
		viewerActive = true
	}
	var out []Member
	for _, m := range s.members {
		if m.OrganizationID != orgID || !m.IsActive {
			continue
		}
		if m.IsHidden && !viewerActive {
			continue
		}
		member := Member{
			OrganizationID: m.OrganizationID,
			UserID:         m.UserID,
			RoleID:         m.RoleID,
			Rank:           rankOfNone,
			IsHidden:       m.IsHidden,
			JoinedAt:       m.JoinedAt,
		}
		if role, ok := s.roles[m.RoleID]; ok {
			member.RoleName = role.Name
			member.Rank = role.Rank
		}
		out = append(out, member)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank > out[j].Rank
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out, nil
}

func (s *memStore) Remove(_ context.Context, orgID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memberKey(orgID, userID)
	if _, ok := s.members[key]; !ok {
		return false, nil
	}
	delete(s.members, key)
	return true, nil
}

// addMember inserts a raw membership row for test setup.
func (s *memStore) addMember(orgID, userID, roleID string, opts ...func(*Membership)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	m := &Membership{
		OrganizationID: orgID,
		UserID:         userID,
		RoleID:         roleID,
		IsActive:       true,
		JoinedAt:       now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, opt := range opts {
		opt(m)
	}
	s.members[memberKey(orgID, userID)] = m
}

var (
	_ RoleStore       = (*memStore)(nil)
	_ MembershipStore = (*memStore)(nil)
)
