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

// IssuesSource watches one repository's issues. Pull requests surfaced in
// the issues feed are skipped; PullsSource covers them with richer
// semantics.
type IssuesSource struct {
	repo   string
	client *gogithub.Client
	now    func() time.Time
}

// NewIssuesSource creates a source for the "owner/name" repository.
func NewIssuesSource(repo string, client *gogithub.Client) (*IssuesSource, error) {
	if _, _, err := splitRepo(repo); err != nil {
		return nil, err
	}
	return &IssuesSource{
		repo:   repo,
		client: client,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *IssuesSource) Key() string {
	return "github:" + s.repo + ":issues"
}

// Poll lists issues updated since the cursor watermark, newest first, and
// returns them as issue_updated events with an advanced watermark.
func (s *IssuesSource) Poll(ctx context.Context, rawCursor *string) (*interfaces.PollResult, error) {
	owner, name, err := splitRepo(s.repo)
	if err != nil {
		return nil, err
	}

	updatedAfter := decodeCursor(rawCursor)
	newest := updatedAfter

	opts := &gogithub.IssueListByRepoOptions{
		State:       "all",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: gogithub.ListOptions{PerPage: 100},
	}
	if updatedAfter != nil {
		opts.Since = *updatedAfter
	}

	var events []model.Event
	for {
		issues, resp, err := s.client.Issues.ListByRepo(ctx, owner, name, opts)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list repository issues",
				goerr.T(types.TagSource), goerr.V("repo", s.repo))
		}

		pageExhausted := false
		for _, issue := range issues {
			if issue.IsPullRequest() {
				continue
			}
			updatedAt := issue.GetUpdatedAt().Time.UTC()
			if updatedAfter != nil && !updatedAt.After(*updatedAfter) {
				// Results are sorted by updated desc, so everything
				// from here on is already covered by the watermark.
				pageExhausted = true
				continue
			}
			if newest == nil || updatedAt.After(*newest) {
				ts := updatedAt
				newest = &ts
			}

			occurred := updatedAt
			events = append(events, model.Event{
				Source:       "github",
				ResourceType: "repo_issue",
				ResourceID:   s.repo,
				EventType:    "issue_updated",
				EventID:      eventID(issue.GetID(), issue.GetNumber()),
				Title:        issue.GetTitle(),
				Summary:      truncate(issue.GetBody(), summaryLimit),
				URL:          issue.GetHTMLURL(),
				OccurredAt:   &occurred,
				ObservedAt:   s.now(),
			})
		}

		if pageExhausted || resp.NextPage == 0 {
			break
		}
		opts.ListOptions.Page = resp.NextPage
	}

	result := &interfaces.PollResult{Events: events}
	if newest != nil {
		c := encodeCursor(*newest)
		result.NewCursor = &c
	}
	return result, nil
}
