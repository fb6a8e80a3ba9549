package pg

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"crewhub.org/internal/audit"
	"crewhub.org/internal/ids"
)

// Record appends one access-decision row. The access log is append-only.
func (s *Store) Record(ctx context.Context, e audit.Entry) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	meta := []byte("{}")
	if len(e.Metadata) > 0 {
		var err error
		meta, err = json.Marshal(e.Metadata)
		if err != nil {
			return err
		}
	}
	_, err := s.db.ExecContext(ctx, `
		insert into access_log (id, occurred_at, actor_id, organization_id, action, resource_label, resource_id, allowed, metadata)
		values ($1, $2, $3, $4, $5, $6, nullif($7, ''), $8, $9)
	`, ids.New(), e.OccurredAt, e.ActorID, e.OrganizationID, e.Action, e.ResourceLabel, e.ResourceID, e.Allowed, meta)
	return err
}
