package github

import (
	"context"
	"time"

	gogithub "github.com/google/go-github/v75/github"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lookout/pkg/domain/interfaces"
	"github.com/m-mizutani/lookout/pkg/domain/model"
	"github.com/m-mizutani/lookout/pkg/domain/types"
)

// PullsSource watches one repository's pull requests. Merged PRs produce
// pr_merged events timestamped at the merge; everything else is pr_updated.
type PullsSource struct {
	repo   string
	client *gogithub.Client
	now    func() time.Time
}

// NewPullsSource creates a source for the "owner/name" repository.
func NewPullsSource(repo string, client *gogithub.Client) (*PullsSource, error) {
	if _, _, err := splitRepo(repo); err != nil {
		return nil, err
	}
	return &PullsSource{
		repo:   repo,
		client: client,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *PullsSource) Key() string {
	return "github:" + s.repo + ":pulls"
}

// Poll lists pull requests by descending update time. The list endpoint has
// no "since" parameter, so pagination stops as soon as a page tail falls at
// or before the watermark.
func (s *PullsSource) Poll(ctx context.Context, rawCursor *string) (*interfaces.PollResult, error) {
	owner, name, err := splitRepo(s.repo)
	if err != nil {
		return nil, err
	}

	updatedAfter := decodeCursor(rawCursor)
	newest := updatedAfter

	opts := &gogithub.PullRequestListOptions{
		State:       "all",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: gogithub.ListOptions{PerPage: 100},
	}

	var events []model.Event
	for {
		pulls, resp, err := s.client.PullRequests.List(ctx, owner, name, opts)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list pull requests",
				goerr.T(types.TagSource), goerr.V("repo", s.repo))
		}

		pageExhausted := false
		for _, pr := range pulls {
			updatedAt := pr.GetUpdatedAt().Time.UTC()
			if updatedAfter != nil && !updatedAt.After(*updatedAfter) {
				pageExhausted = true
				continue
			}
			if newest == nil || updatedAt.After(*newest) {
				ts := updatedAt
				newest = &ts
			}

			eventType := "pr_updated"
			occurred := updatedAt
			if mergedAt := pr.GetMergedAt(); !mergedAt.Time.IsZero() {
				eventType = "pr_merged"
				occurred = mergedAt.Time.UTC()
			}

			events = append(events, model.Event{
				Source:       "github",
				ResourceType: "repo_pr",
				ResourceID:   s.repo,
				EventType:    eventType,
				EventID:      eventID(pr.GetID(), pr.GetNumber()),
				Title:        pr.GetTitle(),
				Summary:      truncate(pr.GetBody(), summaryLimit),
				URL:          pr.GetHTMLURL(),
				OccurredAt:   &occurred,
				ObservedAt:   s.now(),
			})
		}

		if pageExhausted || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	result := &interfaces.PollResult{Events: events}
	if newest != nil {
		c := encodeCursor(*newest)
		result.NewCursor = &c
	}
	return result, nil
}
