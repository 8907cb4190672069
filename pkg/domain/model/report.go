package model

import "time"

// SourceReport holds per-source counters for one cycle.
type SourceReport struct {
	SourceKey       string `json:"source_key"`
	EventsFetched   int    `json:"events_fetched"`
	EventsProcessed int    `json:"events_processed"`
	EventsSkipped   int    `json:"events_skipped"` // Already in the seen-set
	EventsMatched   int    `json:"events_matched"`
	AlertsCreated   int    `json:"alerts_created"`
	NotifyAttempts  int    `json:"notify_attempts"`
	NotifySuccesses int    `json:"notify_successes"`
	NotifyFailures  int    `json:"notify_failures"`
	CursorAdvanced  bool   `json:"cursor_advanced"`
	Error           string `json:"error,omitempty"` // Poll error, empty on success
}

// CycleReport is the sole externally observable summary of one poll cycle.
// It is produced even when some sources failed; partial success is the
// normal case.
type CycleReport struct {
	StartedAt  time.Time      `json:"started_at"`
	DurationMS int64          `json:"duration_ms"`
	Sources    []SourceReport `json:"sources"`

	EventsFetched   int `json:"events_fetched"`
	EventsProcessed int `json:"events_processed"`
	EventsSkipped   int `json:"events_skipped"`
	EventsMatched   int `json:"events_matched"`
	AlertsCreated   int `json:"alerts_created"`
	NotifyAttempts  int `json:"notify_attempts"`
	NotifySuccesses int `json:"notify_successes"`
	NotifyFailures  int `json:"notify_failures"`
	SourceErrors    int `json:"source_errors"`
}

// Add folds one source's counters into the cycle totals.
func (r *CycleReport) Add(s SourceReport) {
	r.Sources = append(r.Sources, s)
	r.EventsFetched += s.EventsFetched
	r.EventsProcessed += s.EventsProcessed
	r.EventsSkipped += s.EventsSkipped
	r.EventsMatched += s.EventsMatched
	r.AlertsCreated += s.AlertsCreated
	r.NotifyAttempts += s.NotifyAttempts
	r.NotifySuccesses += s.NotifySuccesses
	r.NotifyFailures += s.NotifyFailures
	if s.Error != "" {
		r.SourceErrors++
	}
}
