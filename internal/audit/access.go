// Package audit records access decisions and other security-relevant events.
// Recording is best-effort from the caller's perspective: a sink failure must
// never block the decision that triggered it.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"crewhub.org/internal/obs"
)

// Entry is one access-decision record.
type Entry struct {
	OccurredAt     time.Time         `json:"occurred_at"`
	ActorID        string            `json:"actor_id"`
	OrganizationID string            `json:"organization_id"`
	Action         string            `json:"action"`
	ResourceLabel  string            `json:"resource_label"`
	ResourceID     string            `json:"resource_id,omitempty"`
	Allowed        bool              `json:"allowed"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Recorder accepts access-decision entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// LogRecorder writes entries as JSON lines through the shared logger.
type LogRecorder struct{}

// NewLogRecorder constructs a LogRecorder.
func NewLogRecorder() *LogRecorder { return &LogRecorder{} }

// Record emits the entry as a structured log line.
func (r *LogRecorder) Record(_ context.Context, e Entry) error {
	if strings.TrimSpace(e.Action) == "" {
		return errors.New("audit: action is required")
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	payload := struct {
		Type string `json:"type"`
		Entry
	}{Type: "access_decision", Entry: e}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}

// Fanout duplicates every entry to each sink, returning the first error after
// all sinks were attempted.
type Fanout []Recorder

// Record sends the entry to every sink.
func (f Fanout) Record(ctx context.Context, e Entry) error {
	var first error
	for _, r := range f {
		if err := r.Record(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
