package authz

import (
	"context"
	"testing"
)

func seedOrg(t *testing.T, store *memStore, orgID string) map[string]*Role {
	t.Helper()
	prov, err := NewProvisioner(store, DefaultCatalog())
	if err != nil {
		t.Fatalf("provisioner: %v", err)
	}
	roles, err := prov.CreateDefaultRoles(context.Background(), orgID)
	if err != nil {
		t.Fatalf("provision defaults: %v", err)
	}
	byName := make(map[string]*Role, len(roles))
	for _, r := range roles {
		byName[r.Name] = r
	}
	return byName
}

func TestHasPermissionTotality(t *testing.T) {
	store := newMemStore()
	roles := seedOrg(t, store, "org-1")
	store.addMember("org-1", "alice", roles[RoleMember].ID)
	store.addMember("org-1", "norole", "")

	engine, err := NewEngine(store, store)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	ctx := context.Background()

	cases := []struct {
		name   string
		userID string
		perm   Permission
		want   bool
	}{
		{"member holds granted perm", "alice", PermEventsView, true},
		{"member lacks manage perm", "alice", PermRolesManage, false},
		{"non-member", "ghost", PermEventsView, false},
		{"member without role", "norole", PermEventsView, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := engine.HasPermission(ctx, "org-1", tc.userID, tc.perm)
			if err != nil {
				t.Fatalf("HasPermission: %v", err)
			}
			if got != tc.want {
				t.Fatalf("HasPermission = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestHasPermissionInactiveRole(t *testing.T) {
	store := newMemStore()
	roles := seedOrg(t, store, "org-1")
	store.addMember("org-1", "alice", roles[RoleAdmin].ID)

	inactive := false
	if _, err := store.Update(context.Background(), roles[RoleAdmin].ID, RoleUpdate{Active: &inactive}); err != nil {
		t.Fatalf("deactivate role: %v", err)
	}

	engine, _ := NewEngine(store, store)
	got, err := engine.HasPermission(context.Background(), "org-1", "alice", PermRolesManage)
	if err != nil {
		t.Fatalf("HasPermission: %v", err)
	}
	if got {
		t.Fatal("deactivated role must confer nothing")
	}
}

func TestCanManage(t *testing.T) {
	store := newMemStore()
	roles := seedOrg(t, store, "org-1")
	store.addMember("org-1", "owner", roles[RoleOwner].ID)
	store.addMember("org-1", "admin1", roles[RoleAdmin].ID)
	store.addMember("org-1", "admin2", roles[RoleAdmin].ID)
	store.addMember("org-1", "bob", roles[RoleMember].ID)
	store.addMember("org-1", "norole", "")

	engine, _ := NewEngine(store, store)
	ctx := context.Background()

	cases := []struct {
		name    string
		actorID string
		target  string
		want    bool
	}{
		{"owner manages admin", "owner", "admin1", true},
		{"admin manages member", "admin1", "bob", true},
		{"admin cannot manage owner", "admin1", "owner", false},
		{"equal rank cannot manage", "admin1", "admin2", false},
		{"member lacks manage perm", "bob", "norole", false},
		{"admin manages role-less member", "admin1", "norole", true},
		{"non-member actor", "ghost", "bob", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := engine.CanManage(ctx, "org-1", tc.actorID, tc.target)
			if err != nil {
				t.Fatalf("CanManage: %v", err)
			}
			if got != tc.want {
				t.Fatalf("CanManage = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestValidateRoleAssignmentOrder(t *testing.T) {
	store := newMemStore()
	roles := seedOrg(t, store, "org-1")
	store.addMember("org-1", "owner", roles[RoleOwner].ID)
	store.addMember("org-1", "admin", roles[RoleAdmin].ID)
	store.addMember("org-1", "bob", roles[RoleMember].ID)

	engine, _ := NewEngine(store, store)
	ctx := context.Background()

	cases := []struct {
		name       string
		assignerID string
		targetID   string
		roleName   string
		wantValid  bool
		wantCode   string
		wantReason string
	}{
		{
			name:       "assigner without permission",
			assignerID: "bob",
			targetID:   "bob",
			roleName:   RoleMember,
			wantCode:   DenyAssignPermission,
			wantReason: "insufficient permissions to assign roles",
		},
		{
			name:       "target not a member",
			assignerID: "admin",
			targetID:   "ghost",
			roleName:   RoleMember,
			wantCode:   DenyTargetNotMember,
			wantReason: "target is not a member of this organization",
		},
		{
			name:       "role missing",
			assignerID: "admin",
			targetID:   "bob",
			roleName:   "Wizard",
			wantCode:   DenyRoleMissing,
			wantReason: "role does not exist",
		},
		{
			name:       "admin cannot hand out owner",
			assignerID: "admin",
			targetID:   "bob",
			roleName:   RoleOwner,
			wantCode:   DenyRankTooLow,
			wantReason: "cannot assign role with equal or higher rank",
		},
		{
			name:       "admin cannot hand out admin",
			assignerID: "admin",
			targetID:   "bob",
			roleName:   RoleAdmin,
			wantCode:   DenyRankTooLow,
			wantReason: "cannot assign role with equal or higher rank",
		},
		{
			name:       "admin assigns member",
			assignerID: "admin",
			targetID:   "bob",
			roleName:   RoleMember,
			wantValid:  true,
		},
		{
			name:       "owner assigns admin",
			assignerID: "owner",
			targetID:   "bob",
			roleName:   RoleAdmin,
			wantValid:  true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			check, err := engine.ValidateRoleAssignment(ctx, "org-1", tc.assignerID, tc.targetID, tc.roleName)
			if err != nil {
				t.Fatalf("ValidateRoleAssignment: %v", err)
			}
			if check.Valid != tc.wantValid {
				t.Fatalf("Valid = %v, want %v (reason %q)", check.Valid, tc.wantValid, check.Reason)
			}
			if check.Code != tc.wantCode {
				t.Fatalf("Code = %q, want %q", check.Code, tc.wantCode)
			}
			if check.Reason != tc.wantReason {
				t.Fatalf("Reason = %q, want %q", check.Reason, tc.wantReason)
			}
		})
	}
}

func TestValidateRoleAssignmentFirstFailureWins(t *testing.T) {
	store := newMemStore()
	seedOrg(t, store, "org-1")
	// Assigner has no role and the target is absent: the permission check
	// fires before the membership check.
	store.addMember("org-1", "noperm", "")

	engine, _ := NewEngine(store, store)
	check, err := engine.ValidateRoleAssignment(context.Background(), "org-1", "noperm", "ghost", "Wizard")
	if err != nil {
		t.Fatalf("ValidateRoleAssignment: %v", err)
	}
	if check.Code != DenyAssignPermission {
		t.Fatalf("Code = %q, want %q", check.Code, DenyAssignPermission)
	}
}

func TestValidateRoleAssignmentTrimsRoleName(t *testing.T) {
	store := newMemStore()
	roles := seedOrg(t, store, "org-1")
	store.addMember("org-1", "admin", roles[RoleAdmin].ID)
	store.addMember("org-1", "bob", roles[RoleMember].ID)

	engine, _ := NewEngine(store, store)
	check, err := engine.ValidateRoleAssignment(context.Background(), "org-1", "admin", "bob", "  Member  ")
	if err != nil {
		t.Fatalf("ValidateRoleAssignment: %v", err)
	}
	if !check.Valid {
		t.Fatalf("expected valid, got %q", check.Reason)
	}
}

func TestOrganizationsAreIsolated(t *testing.T) {
	store := newMemStore()
	rolesA := seedOrg(t, store, "org-a")
	seedOrg(t, store, "org-b")
	store.addMember("org-a", "alice", rolesA[RoleOwner].ID)

	engine, _ := NewEngine(store, store)
	got, err := engine.HasPermission(context.Background(), "org-b", "alice", PermMembersView)
	if err != nil {
		t.Fatalf("HasPermission: %v", err)
	}
	if got {
		t.Fatal("owner of org-a must hold nothing in org-b")
	}
}
