package usecase

import (
	"context"
	"sort"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lookout/pkg/domain/interfaces"
	"github.com/m-mizutani/lookout/pkg/domain/model"
	"github.com/m-mizutani/lookout/pkg/domain/types"
)

// Runner drives one poll cycle across all configured sources: fetch, match,
// deliver, persist. Sources are polled strictly sequentially in construction
// order, so seen-set and cursor writes are trivially serialized and the
// notification order is deterministic.
//
// Failure scoping: a source poll error is recorded in the report and the
// cycle continues with the next source. A notifier error is recorded as a
// NotifyFailure audit row and the remaining notifiers still run. A state
// store error aborts the cycle, because without durable dedup state the
// at-most-one-alert guarantee cannot be kept.
type Runner struct {
	store     interfaces.StateStore
	sources   []interfaces.Source
	matcher   *RuleMatcher
	notifiers []interfaces.Notifier

	markUnmatchedSeen bool
	now               func() time.Time
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMarkUnmatchedSeen controls whether events that matched no rule are
// recorded in the seen-set (default true). Disabling it keeps unmatched
// events eligible for re-evaluation after the keyword list changes, at the
// cost of re-running the matcher on every cycle.
func WithMarkUnmatchedSeen(enabled bool) RunnerOption {
	return func(r *Runner) {
		r.markUnmatchedSeen = enabled
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		r.now = now
	}
}

// NewRunner assembles a runner from its collaborators. The source and
// notifier order given here is the iteration order for every cycle.
func NewRunner(
	store interfaces.StateStore,
	sources []interfaces.Source,
	matcher *RuleMatcher,
	notifiers []interfaces.Notifier,
	opts ...RunnerOption,
) *Runner {
	r := &Runner{
		store:             store,
		sources:           sources,
		matcher:           matcher,
		notifiers:         notifiers,
		markUnmatchedSeen: true,
		now:               func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOnce executes one poll cycle and returns its report. The report is
// returned for every completed cycle, including cycles where some or all
// sources failed; only a state store failure returns an error instead.
func (r *Runner) RunOnce(ctx context.Context) (*model.CycleReport, error) {
	logger := ctxlog.From(ctx)
	started := r.now()
	report := &model.CycleReport{StartedAt: started}

	if err := r.store.EnsureSchema(ctx); err != nil {
		return nil, goerr.Wrap(err, "failed to ensure storage schema", goerr.T(types.TagStateStore))
	}

	for _, src := range r.sources {
		sr, err := r.runSource(ctx, src)
		if err != nil {
			return nil, err
		}
		report.Add(*sr)
	}

	report.DurationMS = time.Since(started).Milliseconds()

	logger.Info("cycle complete",
		"duration_ms", report.DurationMS,
		"sources", len(report.Sources),
		"events_fetched", report.EventsFetched,
		"events_matched", report.EventsMatched,
		"alerts_created", report.AlertsCreated,
		"notify_failures", report.NotifyFailures,
		"source_errors", report.SourceErrors,
	)

	return report, nil
}

// runSource polls one source and processes its events. A poll error is
// converted to a report entry; only state store errors propagate.
func (r *Runner) runSource(ctx context.Context, src interfaces.Source) (*model.SourceReport, error) {
	logger := ctxlog.From(ctx)
	sr := &model.SourceReport{SourceKey: src.Key()}

	cursor, err := r.store.GetCursor(ctx, src.Key())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read cursor",
			goerr.T(types.TagStateStore), goerr.V("source_key", src.Key()))
	}

	result, err := src.Poll(ctx, cursor)
	if err != nil {
		// Cursor stays untouched so the next cycle retries the same range.
		logger.Warn("source poll failed", "source_key", src.Key(), "error", err)
		sr.Error = err.Error()
		return sr, nil
	}

	events := result.Events
	sr.EventsFetched = len(events)

	// Deterministic notification order across runs, even with tied
	// timestamps.
	sort.SliceStable(events, func(i, j int) bool {
		ti, tj := events[i].SortTime(), events[j].SortTime()
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return events[i].Fingerprint() < events[j].Fingerprint()
	})

	for i := range events {
		if err := r.processEvent(ctx, &events[i], sr); err != nil {
			return nil, err
		}
	}

	if result.NewCursor != nil {
		if err := r.store.SetCursor(ctx, src.Key(), *result.NewCursor); err != nil {
			return nil, goerr.Wrap(err, "failed to persist cursor",
				goerr.T(types.TagStateStore), goerr.V("source_key", src.Key()))
		}
		sr.CursorAdvanced = true
	}

	return sr, nil
}

// processEvent runs the per-event pipeline: dedup, match, persist alert,
// fan out, mark seen. Returned errors are state store failures only.
func (r *Runner) processEvent(ctx context.Context, event *model.Event, sr *model.SourceReport) error {
	logger := ctxlog.From(ctx)
	fp := event.Fingerprint()
	sr.EventsProcessed++

	seen, err := r.store.HasSeen(ctx, fp)
	if err != nil {
		return goerr.Wrap(err, "failed to check seen-set",
			goerr.T(types.TagStateStore), goerr.V("fingerprint", fp))
	}
	if seen {
		// Fast dedup path: no matching, no alert, no delivery.
		sr.EventsSkipped++
		return nil
	}

	matches := r.matcher.Match(event)
	if len(matches) == 0 {
		if r.markUnmatchedSeen {
			if err := r.store.MarkSeen(ctx, fp); err != nil {
				return goerr.Wrap(err, "failed to mark unmatched event seen",
					goerr.T(types.TagStateStore), goerr.V("fingerprint", fp))
			}
		}
		return nil
	}
	sr.EventsMatched++

	channels := make([]string, 0, len(r.notifiers))
	for _, n := range r.notifiers {
		channels = append(channels, n.Channel())
	}

	alert := &model.Alert{
		Fingerprint:  fp,
		Event:        *event,
		MatchedRules: matches,
		Channels:     channels,
		CreatedAt:    r.now(),
	}
	alert.Content = FormatAlertText(alert)

	// Durability first: the alert record must exist even if the process
	// dies mid-delivery.
	if err := r.store.SaveAlert(ctx, alert); err != nil {
		return goerr.Wrap(err, "failed to persist alert",
			goerr.T(types.TagStateStore), goerr.V("fingerprint", fp))
	}
	sr.AlertsCreated++

	logger.Info("alert created",
		"fingerprint", fp,
		"source", event.Source,
		"event_type", event.EventType,
		"title", event.Title,
		"matched_rules", len(matches),
	)

	inSet := make(map[string]bool, len(channels))
	for _, ch := range channels {
		inSet[ch] = true
	}

	for _, n := range r.notifiers {
		if !inSet[n.Channel()] {
			continue
		}
		sr.NotifyAttempts++
		if err := n.Send(ctx, alert); err != nil {
			sr.NotifyFailures++
			logger.Warn("notifier delivery failed",
				"channel", n.Channel(), "fingerprint", fp, "error", err)
			failure := &model.NotifyFailure{
				Fingerprint: fp,
				Channel:     n.Channel(),
				Error:       err.Error(),
				CreatedAt:   r.now(),
			}
			if err := r.store.AppendNotifyFailure(ctx, failure); err != nil {
				return goerr.Wrap(err, "failed to record notify failure",
					goerr.T(types.TagStateStore), goerr.V("fingerprint", fp))
			}
			continue
		}
		sr.NotifySuccesses++
	}

	// Marked after all delivery attempts: at-most-once alerting takes
	// priority over at-least-once delivery, so channel failures never
	// cause reprocessing.
	if err := r.store.MarkSeen(ctx, fp); err != nil {
		return goerr.Wrap(err, "failed to mark event seen",
			goerr.T(types.TagStateStore), goerr.V("fingerprint", fp))
	}

	return nil
}
