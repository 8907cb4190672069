package interfaces

import (
	"context"

	"github.com/m-mizutani/lookout/pkg/domain/model"
)

// Notifier delivers a formatted alert to one channel. Implementations own
// their transport and formatting details; all durability is the
// orchestrator's and StateStore's responsibility, so a notifier must not
// mutate shared state. Failures are returned, never swallowed.
type Notifier interface {
	// Channel returns the stable channel identifier (e.g. "slack").
	Channel() string

	Send(ctx context.Context, alert *model.Alert) error
}
