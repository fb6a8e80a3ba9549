package authz

import (
	"context"
	"errors"
	"strings"
)

// rankOfNone is the effective rank of a member without any resolvable role.
// It sits below every real rank, so a role-less member can be managed by any
// actor holding the manage permission but can manage nobody.
const rankOfNone = -1

// Assignment denial codes, stable identifiers the HTTP layer can dispatch on
// without matching reason text.
const (
	DenyAssignPermission = "assigner_missing_permission"
	DenyTargetNotMember  = "target_not_member"
	DenyRoleMissing      = "role_not_found"
	DenyRankTooLow       = "rank_not_dominant"
)

// AssignmentCheck is the structured outcome of ValidateRoleAssignment. The
// composite validation reports instead of raising so callers can map each
// distinct denial to a specific response.
type AssignmentCheck struct {
	Valid  bool
	Reason string
	Code   string
}

func assignmentDenied(code, reason string) AssignmentCheck {
	return AssignmentCheck{Reason: reason, Code: code}
}

// Engine answers "does user U hold permission P in organization O" and "may
// actor A manage target T". It persists nothing itself; it is a pure query
// layer over the role and membership stores.
type Engine struct {
	roles   RoleStore
	members MembershipStore
}

// NewEngine constructs an Engine.
func NewEngine(roles RoleStore, members MembershipStore) (*Engine, error) {
	if roles == nil || members == nil {
		return nil, errors.New("authz: role and membership stores are required")
	}
	return &Engine{roles: roles, members: members}, nil
}

// HasPermission reports whether the user's resolved role carries perm. Absent
// membership, absent role, and absent grant all mean false, never an error;
// only infrastructure failures surface.
func (e *Engine) HasPermission(ctx context.Context, orgID, userID string, perm Permission) (bool, error) {
	role, err := e.resolveActive(ctx, orgID, userID)
	if err != nil {
		return false, err
	}
	if role == nil {
		return false, nil
	}
	return role.HasPermission(perm), nil
}

// CanManage reports whether the actor may manage the target's role: the actor
// must hold the manage-roles permission and outrank the target strictly.
// Equal rank never suffices; peers cannot manage peers.
func (e *Engine) CanManage(ctx context.Context, orgID, actorID, targetID string) (bool, error) {
	actorRole, err := e.resolveActive(ctx, orgID, actorID)
	if err != nil {
		return false, err
	}
	if actorRole == nil || !actorRole.HasPermission(PermRolesManage) {
		return false, nil
	}
	targetRank := rankOfNone
	targetRole, err := e.resolveActive(ctx, orgID, targetID)
	if err != nil {
		return false, err
	}
	if targetRole != nil {
		targetRank = targetRole.Rank
	}
	return actorRole.Rank > targetRank, nil
}

// ValidateRoleAssignment runs the composite pre-assignment check. The four
// checks evaluate in order and the first failure wins; there are no partial
// results.
func (e *Engine) ValidateRoleAssignment(ctx context.Context, orgID, assignerID, targetUserID, roleName string) (AssignmentCheck, error) {
	roleName = strings.TrimSpace(roleName)

	assignerRole, err := e.resolveActive(ctx, orgID, assignerID)
	if err != nil {
		return AssignmentCheck{}, err
	}
	if assignerRole == nil || !assignerRole.HasPermission(PermRolesAssign) {
		return assignmentDenied(DenyAssignPermission, "insufficient permissions to assign roles"), nil
	}

	active, err := e.members.IsActiveMember(ctx, orgID, targetUserID)
	if err != nil {
		return AssignmentCheck{}, err
	}
	if !active {
		return assignmentDenied(DenyTargetNotMember, "target is not a member of this organization"), nil
	}

	role, err := e.roles.FindByName(ctx, orgID, roleName)
	if errors.Is(err, ErrRoleNotFound) {
		return assignmentDenied(DenyRoleMissing, "role does not exist"), nil
	}
	if err != nil {
		return AssignmentCheck{}, err
	}

	if assignerRole.Rank <= role.Rank {
		return assignmentDenied(DenyRankTooLow, "cannot assign role with equal or higher rank"), nil
	}
	return AssignmentCheck{Valid: true}, nil
}

// resolveActive returns the user's role when it resolves and is active, nil
// otherwise. Deactivated roles confer nothing.
func (e *Engine) resolveActive(ctx context.Context, orgID, userID string) (*Role, error) {
	res, err := e.members.Resolve(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	role, ok := res.Role()
	if !ok || !role.IsActive {
		return nil, nil
	}
	return role, nil
}
