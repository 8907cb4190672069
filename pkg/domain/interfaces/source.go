package interfaces

import (
	"context"

	"github.com/m-mizutani/lookout/pkg/domain/model"
)

// PollResult is what a source adapter returns for one poll.
type PollResult struct {
	Events []model.Event

	// NewCursor is the adapter's next resumption token. Nil means the
	// adapter has no confident new watermark; the orchestrator then keeps
	// the previously stored cursor.
	NewCursor *string
}

// Source is the contract between a poll-capable platform adapter and the
// orchestrator. One instance monitors one resource (a repo, an org).
//
// Poll must be safe to call repeatedly with the same cursor: it may return
// duplicates of previously reported events but never fabricated ones. The
// fingerprint dedup in the orchestrator is the correctness backstop against
// adapter imprecision. On error no cursor state may be mutated; errors are
// scoped to this source instance only.
type Source interface {
	// Key identifies this source instance for cursor storage and reports.
	Key() string

	// Poll fetches events observed since cursor. A nil cursor means the
	// source has never been polled.
	Poll(ctx context.Context, cursor *string) (*PollResult, error)
}
