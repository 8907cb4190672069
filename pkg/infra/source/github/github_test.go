package github

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
)

func TestCursorRoundTrip(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	raw := encodeCursor(ts)
	gt.Value(t, raw).Equal(`{"updated_after":"2025-01-02T03:04:05Z"}`)

	decoded := decodeCursor(&raw)
	gt.Value(t, decoded).NotNil()
	gt.Value(t, *decoded).Equal(ts)
}

func TestDecodeCursorMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  *string
	}{
		{"nil", nil},
		{"empty", strptr("")},
		{"not json", strptr("garbage")},
		{"wrong shape", strptr(`{"foo":"bar"}`)},
		{"bad timestamp", strptr(`{"updated_after":"yesterday"}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Malformed cursors mean full refetch, never an error.
			gt.Value(t, decodeCursor(tt.raw)).Nil()
		})
	}
}

func strptr(s string) *string { return &s }

func TestSplitRepo(t *testing.T) {
	owner, name, err := splitRepo("deepseek-ai/DeepSeek-V3")
	gt.NoError(t, err)
	gt.Value(t, owner).Equal("deepseek-ai")
	gt.Value(t, name).Equal("DeepSeek-V3")

	for _, bad := range []string{"", "noslash", "/repo", "owner/"} {
		_, _, err := splitRepo(bad)
		gt.Error(t, err)
	}
}

func TestTruncate(t *testing.T) {
	gt.Value(t, truncate("short", 10)).Equal("short")
	gt.Value(t, truncate("  padded  ", 10)).Equal("padded")

	long := ""
	for i := 0; i < 500; i++ {
		long += "あ"
	}
	cut := truncate(long, summaryLimit)
	runes := []rune(cut)
	gt.Value(t, len(runes)).Equal(summaryLimit)
	gt.Value(t, string(runes[len(runes)-1])).Equal("…")
}

func TestIssuesSourcePoll(t *testing.T) {
	var gotSince string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/deepseek-ai/DeepSeek-V3/issues" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		gotSince = r.URL.Query().Get("since")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id": 201, "number": 2, "title": "deepseek v3.1 tracker",
			 "body": "tracking issue", "html_url": "https://github.com/deepseek-ai/DeepSeek-V3/issues/2",
			 "updated_at": "2025-01-02T06:00:00Z"},
			{"id": 202, "number": 3, "title": "PR surfaced in issues feed",
			 "pull_request": {"url": "https://api.github.com/repos/deepseek-ai/DeepSeek-V3/pulls/3"},
			 "updated_at": "2025-01-02T05:00:00Z"},
			{"id": 200, "number": 1, "title": "old issue",
			 "updated_at": "2025-01-01T00:00:00Z"}
		]`))
	})

	ts := httptest.NewServer(handler)
	defer ts.Close()
	client, err := WithBaseURL(NewClient(""), ts.URL)
	gt.NoError(t, err)

	src, err := NewIssuesSource("deepseek-ai/DeepSeek-V3", client)
	gt.NoError(t, err)
	gt.Value(t, src.Key()).Equal("github:deepseek-ai/DeepSeek-V3:issues")

	cursor := `{"updated_after":"2025-01-01T12:00:00Z"}`
	result, err := src.Poll(context.Background(), &cursor)
	gt.NoError(t, err)

	// The since parameter carries the watermark upstream.
	gt.Value(t, gotSince).Equal("2025-01-01T12:00:00Z")

	// The PR row and the pre-watermark row are both dropped.
	gt.Value(t, len(result.Events)).Equal(1)
	event := result.Events[0]
	gt.Value(t, event.Source).Equal("github")
	gt.Value(t, event.ResourceType).Equal("repo_issue")
	gt.Value(t, event.ResourceID).Equal("deepseek-ai/DeepSeek-V3")
	gt.Value(t, event.EventType).Equal("issue_updated")
	gt.Value(t, event.EventID).Equal("201")
	gt.Value(t, event.Title).Equal("deepseek v3.1 tracker")
	gt.Value(t, event.Summary).Equal("tracking issue")
	gt.Value(t, event.OccurredAt).NotNil()
	gt.Value(t, *event.OccurredAt).Equal(time.Date(2025, 1, 2, 6, 0, 0, 0, time.UTC))

	// Cursor advances to the newest updated_at.
	gt.Value(t, result.NewCursor).NotNil()
	gt.Value(t, *result.NewCursor).Equal(`{"updated_after":"2025-01-02T06:00:00Z"}`)
}

func TestIssuesSourcePollEmptyRepo(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	})
	ts := httptest.NewServer(handler)
	defer ts.Close()
	client, err := WithBaseURL(NewClient(""), ts.URL)
	gt.NoError(t, err)

	src, err := NewIssuesSource("owner/empty", client)
	gt.NoError(t, err)

	result, err := src.Poll(context.Background(), nil)
	gt.NoError(t, err)
	gt.Value(t, len(result.Events)).Equal(0)
	// No events means no confident watermark.
	gt.Value(t, result.NewCursor).Nil()
}

func TestIssuesSourcePollError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"API rate limit exceeded"}`))
	})
	ts := httptest.NewServer(handler)
	defer ts.Close()
	client, err := WithBaseURL(NewClient(""), ts.URL)
	gt.NoError(t, err)

	src, err := NewIssuesSource("owner/limited", client)
	gt.NoError(t, err)

	_, err = src.Poll(context.Background(), nil)
	gt.Error(t, err)
}

func TestPullsSourcePoll(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/deepseek-ai/DeepSeek-V3/pulls" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id": 301, "number": 10, "title": "merge deepseek v3.1 weights",
			 "html_url": "https://github.com/deepseek-ai/DeepSeek-V3/pull/10",
			 "updated_at": "2025-01-02T08:00:00Z",
			 "merged_at": "2025-01-02T07:30:00Z"},
			{"id": 302, "number": 11, "title": "wip tokenizer fix",
			 "html_url": "https://github.com/deepseek-ai/DeepSeek-V3/pull/11",
			 "updated_at": "2025-01-02T07:00:00Z"}
		]`))
	})
	ts := httptest.NewServer(handler)
	defer ts.Close()
	client, err := WithBaseURL(NewClient(""), ts.URL)
	gt.NoError(t, err)

	src, err := NewPullsSource("deepseek-ai/DeepSeek-V3", client)
	gt.NoError(t, err)
	gt.Value(t, src.Key()).Equal("github:deepseek-ai/DeepSeek-V3:pulls")

	result, err := src.Poll(context.Background(), nil)
	gt.NoError(t, err)
	gt.Value(t, len(result.Events)).Equal(2)

	merged := result.Events[0]
	gt.Value(t, merged.EventType).Equal("pr_merged")
	gt.Value(t, merged.ResourceType).Equal("repo_pr")
	gt.Value(t, *merged.OccurredAt).Equal(time.Date(2025, 1, 2, 7, 30, 0, 0, time.UTC))

	open := result.Events[1]
	gt.Value(t, open.EventType).Equal("pr_updated")
	gt.Value(t, *open.OccurredAt).Equal(time.Date(2025, 1, 2, 7, 0, 0, 0, time.UTC))

	gt.Value(t, result.NewCursor).NotNil()
	gt.Value(t, *result.NewCursor).Equal(`{"updated_after":"2025-01-02T08:00:00Z"}`)
}

func TestPullsSourcePollWatermarkStopsPagination(t *testing.T) {
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		// Pretend more pages exist; the watermark must stop the walk.
		w.Header().Set("Link", `<`+`http://`+r.Host+r.URL.Path+`?page=2>; rel="next"`)
		_, _ = w.Write([]byte(`[
			{"id": 300, "number": 9, "title": "ancient pr",
			 "updated_at": "2024-12-01T00:00:00Z"}
		]`))
	})
	ts := httptest.NewServer(handler)
	defer ts.Close()
	client, err := WithBaseURL(NewClient(""), ts.URL)
	gt.NoError(t, err)

	src, err := NewPullsSource("owner/repo", client)
	gt.NoError(t, err)

	cursor := `{"updated_after":"2025-01-01T00:00:00Z"}`
	result, err := src.Poll(context.Background(), &cursor)
	gt.NoError(t, err)

	gt.Value(t, calls).Equal(1)
	gt.Value(t, len(result.Events)).Equal(0)
	// Watermark unchanged: cursor re-encodes the same value.
	gt.Value(t, result.NewCursor).NotNil()
	gt.Value(t, *result.NewCursor).Equal(cursor)
}
