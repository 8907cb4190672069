package usecase

import (
	"fmt"
	"strings"

	"github.com/m-mizutani/lookout/pkg/domain/model"
)

// RuleMatcher evaluates watch rules against a single event. It is pure and
// stateless: the same event and configuration always produce the same
// matches, and no match at all is the common case, not an error.
//
// The v0 rule set is case-insensitive substring matching of each configured
// keyword against the event's title and summary, with an optional source
// allow-list applied first.
type RuleMatcher struct {
	keywords        []string
	sourceAllowlist map[string]bool
}

// MatcherOption configures a RuleMatcher.
type MatcherOption func(*RuleMatcher)

// WithSourceAllowlist restricts matching to events whose source is listed.
// Events from other sources produce no matches.
func WithSourceAllowlist(sources ...string) MatcherOption {
	return func(m *RuleMatcher) {
		m.sourceAllowlist = make(map[string]bool, len(sources))
		for _, s := range sources {
			m.sourceAllowlist[s] = true
		}
	}
}

// NewRuleMatcher creates a matcher for the given keywords. Keywords are
// normalized (trimmed, lowercased); empty ones are dropped.
func NewRuleMatcher(keywords []string, opts ...MatcherOption) *RuleMatcher {
	m := &RuleMatcher{}
	for _, kw := range keywords {
		k := strings.ToLower(strings.TrimSpace(kw))
		if k == "" {
			continue
		}
		m.keywords = append(m.keywords, k)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Match returns one RuleMatch per distinct matching keyword, in keyword
// configuration order.
func (m *RuleMatcher) Match(event *model.Event) []model.RuleMatch {
	if m.sourceAllowlist != nil && !m.sourceAllowlist[event.Source] {
		return nil
	}

	haystack := strings.ToLower(event.Title + "\n" + event.Summary)
	var matches []model.RuleMatch
	for _, k := range m.keywords {
		if strings.Contains(haystack, k) {
			matches = append(matches, model.RuleMatch{
				RuleID: "keyword:" + k,
				Reason: fmt.Sprintf("matched keyword %q", k),
			})
		}
	}
	return matches
}
