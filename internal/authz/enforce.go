package authz

import (
	"context"
	"errors"
	"fmt"

	"crewhub.org/internal/audit"
	"crewhub.org/internal/obs"
)

// Decision is an accept/deny outcome with a human-readable denial reason.
type Decision struct {
	Allowed bool
	Reason  string
}

// Allow returns an allowing decision.
func Allow() Decision { return Decision{Allowed: true} }

// Deny returns a denial with the given reason.
func Deny(reason string) Decision { return Decision{Reason: reason} }

// Capabilities are the coarse visibility flags a caller resolved for an
// actor. A nil Capabilities means nothing was resolved and filtering fails
// closed.
type Capabilities struct {
	// FullVisibility grants access to every record (managers).
	FullVisibility bool
	// OwnRecordsOnly restricts visibility to records the actor owns.
	OwnRecordsOnly bool
}

// Enforcer turns engine answers into request-scoped decisions and emits
// access-decision records for audit. Audit failures are logged, never
// surfaced: they must not block the decision itself.
type Enforcer struct {
	engine   *Engine
	recorder audit.Recorder
}

// NewEnforcer constructs an Enforcer.
func NewEnforcer(engine *Engine, recorder audit.Recorder) (*Enforcer, error) {
	if engine == nil {
		return nil, errors.New("authz: engine is required")
	}
	if recorder == nil {
		return nil, errors.New("authz: audit recorder is required")
	}
	return &Enforcer{engine: engine, recorder: recorder}, nil
}

// RequirePermission checks perm for the actor and records the decision.
// Infrastructure failures deny: enforcement fails closed.
func (f *Enforcer) RequirePermission(ctx context.Context, actorID, orgID string, perm Permission, resourceLabel string) Decision {
	ok, err := f.engine.HasPermission(ctx, orgID, actorID, perm)
	if err != nil {
		obs.Logger().Printf(`{"level":"error","msg":"permission check failed","error":%q}`, err.Error())
		ok = false
	}
	decision := Allow()
	if !ok {
		decision = Deny(fmt.Sprintf("insufficient permissions for %s", resourceLabel))
	}
	f.record(ctx, actorID, orgID, "authz.permission_check", resourceLabel, "", decision.Allowed, map[string]string{
		"permission": string(perm),
	})
	obs.AuthzDecision("require_permission", decision.Allowed)
	return decision
}

// RequireOwnershipOrPermission allows self-access unconditionally, otherwise
// falls back to a permission check.
func (f *Enforcer) RequireOwnershipOrPermission(ctx context.Context, actorID, orgID, resourceOwnerID string, perm Permission) Decision {
	if actorID != "" && actorID == resourceOwnerID {
		obs.AuthzDecision("require_ownership", true)
		return Allow()
	}
	ok, err := f.engine.HasPermission(ctx, orgID, actorID, perm)
	if err != nil {
		obs.Logger().Printf(`{"level":"error","msg":"permission check failed","error":%q}`, err.Error())
		ok = false
	}
	decision := Allow()
	if !ok {
		decision = Deny("not the resource owner and missing permission")
	}
	f.record(ctx, actorID, orgID, "authz.ownership_check", string(perm), resourceOwnerID, decision.Allowed, nil)
	obs.AuthzDecision("require_ownership", decision.Allowed)
	return decision
}

func (f *Enforcer) record(ctx context.Context, actorID, orgID, action, label, resourceID string, allowed bool, metadata map[string]string) {
	err := f.recorder.Record(ctx, audit.Entry{
		ActorID:        actorID,
		OrganizationID: orgID,
		Action:         action,
		ResourceLabel:  label,
		ResourceID:     resourceID,
		Allowed:        allowed,
		Metadata:       metadata,
	})
	if err != nil {
		obs.Logger().Printf(`{"level":"error","msg":"access record failed","error":%q}`, err.Error())
	}
}

// FilterByCapability returns the subset of records the actor may see given
// its coarse capability flags. ownerOf extracts the owning user of a record.
// Nil capabilities yield an empty result, never an unfiltered list.
func FilterByCapability[T any](records []T, caps *Capabilities, actorID string, ownerOf func(T) string) []T {
	if caps == nil {
		return nil
	}
	if caps.FullVisibility {
		out := make([]T, len(records))
		copy(out, records)
		return out
	}
	if !caps.OwnRecordsOnly || actorID == "" {
		return nil
	}
	var out []T
	for _, rec := range records {
		if ownerOf(rec) == actorID {
			out = append(out, rec)
		}
	}
	return out
}
