package types

import "github.com/m-mizutani/goerr/v2"

// Error tags classify failures so the runner can decide continue-vs-abort
// with a tag check instead of inspecting error chains.
var (
	// TagStateStore marks storage failures. Without durable dedup and
	// cursor state idempotency cannot be guaranteed, so these abort the
	// whole cycle.
	TagStateStore = goerr.NewTag("state_store")

	// TagSource marks upstream fetch failures. They are scoped to one
	// source instance and never abort the cycle.
	TagSource = goerr.NewTag("source")

	// TagNotify marks delivery failures. They are scoped to one
	// (event, channel) pair and recorded in the audit trail.
	TagNotify = goerr.NewTag("notify")

	// TagConfig marks configuration or construction failures, fatal at
	// startup and never produced mid-cycle.
	TagConfig = goerr.NewTag("config")
)
