package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/lookout/pkg/domain/model"
	"github.com/m-mizutani/lookout/pkg/infra/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "state.db"))
	gt.NoError(t, err)
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	})
	gt.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Safe to run every cycle.
	gt.NoError(t, store.EnsureSchema(ctx))
	gt.NoError(t, store.EnsureSchema(ctx))
}

func TestNewCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "state.db")
	store, err := sqlite.New(path)
	gt.NoError(t, err)
	defer store.Close()

	gt.Value(t, store.Path()).Equal(path)
	gt.NoError(t, store.EnsureSchema(context.Background()))
}

func TestCursorRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Absence is a value, not an error.
	cursor, err := store.GetCursor(ctx, "github:owner/repo:issues")
	gt.NoError(t, err)
	gt.Value(t, cursor).Nil()

	gt.NoError(t, store.SetCursor(ctx, "github:owner/repo:issues", `{"updated_after":"2025-01-01T00:00:00Z"}`))

	cursor, err = store.GetCursor(ctx, "github:owner/repo:issues")
	gt.NoError(t, err)
	gt.Value(t, cursor).NotNil()
	gt.Value(t, *cursor).Equal(`{"updated_after":"2025-01-01T00:00:00Z"}`)

	// Replacement
	gt.NoError(t, store.SetCursor(ctx, "github:owner/repo:issues", `{"updated_after":"2025-02-01T00:00:00Z"}`))
	cursor, err = store.GetCursor(ctx, "github:owner/repo:issues")
	gt.NoError(t, err)
	gt.Value(t, *cursor).Equal(`{"updated_after":"2025-02-01T00:00:00Z"}`)

	// Keys are independent
	other, err := store.GetCursor(ctx, "huggingface:org:models")
	gt.NoError(t, err)
	gt.Value(t, other).Nil()
}

func TestSeenSet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seen, err := store.HasSeen(ctx, "fp-1")
	gt.NoError(t, err)
	gt.Value(t, seen).Equal(false)

	gt.NoError(t, store.MarkSeen(ctx, "fp-1"))

	seen, err = store.HasSeen(ctx, "fp-1")
	gt.NoError(t, err)
	gt.Value(t, seen).Equal(true)

	// Re-marking is a no-op, not an error.
	gt.NoError(t, store.MarkSeen(ctx, "fp-1"))

	seen, err = store.HasSeen(ctx, "fp-2")
	gt.NoError(t, err)
	gt.Value(t, seen).Equal(false)
}

func TestSaveAlertUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	occurred := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	alert := &model.Alert{
		Fingerprint: "fp-alert",
		Event: model.Event{
			Source:       "github",
			ResourceType: "repo_issue",
			ResourceID:   "owner/repo",
			EventType:    "issue_updated",
			EventID:      "42",
			Title:        "deepseek release",
			OccurredAt:   &occurred,
			ObservedAt:   time.Date(2025, 1, 2, 4, 0, 0, 0, time.UTC),
		},
		MatchedRules: []model.RuleMatch{{RuleID: "keyword:deepseek", Reason: `matched keyword "deepseek"`}},
		Channels:     []string{"slack", "welink"},
		Content:      "Lookout Alert\n...",
		CreatedAt:    time.Date(2025, 1, 2, 4, 0, 1, 0, time.UTC),
	}

	missing, err := store.GetAlert(ctx, "fp-alert")
	gt.NoError(t, err)
	gt.Value(t, missing).Nil()

	gt.NoError(t, store.SaveAlert(ctx, alert))

	got, err := store.GetAlert(ctx, "fp-alert")
	gt.NoError(t, err)
	gt.Value(t, got).NotNil()
	gt.Value(t, got.Event.Title).Equal("deepseek release")
	gt.Value(t, got.Channels).Equal([]string{"slack", "welink"})
	gt.Value(t, got.MatchedRules).Equal(alert.MatchedRules)

	// Upsert replaces content
	alert.Content = "updated content"
	gt.NoError(t, store.SaveAlert(ctx, alert))

	got, err = store.GetAlert(ctx, "fp-alert")
	gt.NoError(t, err)
	gt.Value(t, got.Content).Equal("updated content")
}

func TestNotifyFailuresAppendOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	failures, err := store.ListNotifyFailures(ctx, "fp-1")
	gt.NoError(t, err)
	gt.Value(t, len(failures)).Equal(0)

	first := &model.NotifyFailure{
		Fingerprint: "fp-1",
		Channel:     "welink",
		Error:       "timeout",
		CreatedAt:   time.Date(2025, 1, 2, 3, 0, 0, 0, time.UTC),
	}
	gt.NoError(t, store.AppendNotifyFailure(ctx, first))

	// Identical rows accumulate, never deduplicate.
	gt.NoError(t, store.AppendNotifyFailure(ctx, first))
	gt.NoError(t, store.AppendNotifyFailure(ctx, &model.NotifyFailure{
		Fingerprint: "fp-1",
		Channel:     "slack",
		Error:       "500 from webhook",
		CreatedAt:   time.Date(2025, 1, 2, 3, 1, 0, 0, time.UTC),
	}))

	failures, err = store.ListNotifyFailures(ctx, "fp-1")
	gt.NoError(t, err)
	gt.Value(t, len(failures)).Equal(3)
	gt.Value(t, failures[0].Channel).Equal("welink")
	gt.Value(t, failures[1].Channel).Equal("welink")
	gt.Value(t, failures[2].Channel).Equal("slack")
	gt.Value(t, failures[2].Error).Equal("500 from webhook")

	other, err := store.ListNotifyFailures(ctx, "fp-2")
	gt.NoError(t, err)
	gt.Value(t, len(other)).Equal(0)
}

func TestStateSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	store, err := sqlite.New(path)
	gt.NoError(t, err)
	gt.NoError(t, store.EnsureSchema(ctx))
	gt.NoError(t, store.SetCursor(ctx, "src", "cursor-v1"))
	gt.NoError(t, store.MarkSeen(ctx, "fp-1"))
	gt.NoError(t, store.Close())

	reopened, err := sqlite.New(path)
	gt.NoError(t, err)
	defer reopened.Close()
	gt.NoError(t, reopened.EnsureSchema(ctx))

	cursor, err := reopened.GetCursor(ctx, "src")
	gt.NoError(t, err)
	gt.Value(t, *cursor).Equal("cursor-v1")

	seen, err := reopened.HasSeen(ctx, "fp-1")
	gt.NoError(t, err)
	gt.Value(t, seen).Equal(true)
}
