package interfaces

import (
	"context"

	"github.com/m-mizutani/lookout/pkg/domain/model"
)

// StateStore is the durable record of per-source cursors, the seen-set of
// processed fingerprints, persisted alerts, and the notify-failure audit
// log. Absence is a normal value: GetCursor returns nil and HasSeen returns
// false for unknown keys, never an error. Operations must be atomic with
// respect to concurrent readers in the same process; single-writer-at-a-time
// discipline is sufficient.
type StateStore interface {
	// EnsureSchema initializes storage. Idempotent, safe every cycle.
	EnsureSchema(ctx context.Context) error

	GetCursor(ctx context.Context, sourceKey string) (*string, error)
	SetCursor(ctx context.Context, sourceKey string, cursor string) error

	HasSeen(ctx context.Context, fingerprint string) (bool, error)
	MarkSeen(ctx context.Context, fingerprint string) error

	// SaveAlert persists an alert keyed by fingerprint with upsert
	// semantics; alert content is determined purely by the event, so
	// replacement is safe.
	SaveAlert(ctx context.Context, alert *model.Alert) error

	// AppendNotifyFailure records one failed delivery attempt. Append-only.
	AppendNotifyFailure(ctx context.Context, failure *model.NotifyFailure) error
}
