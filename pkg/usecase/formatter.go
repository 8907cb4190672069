package usecase

import (
	"strings"
	"time"

	"github.com/m-mizutani/lookout/pkg/domain/model"
)

// FormatAlertText renders the channel-agnostic alert body. Every notifier
// delivers this same text; channel-specific framing (subjects, mentions,
// attachments) is layered on by the notifier itself.
func FormatAlertText(alert *model.Alert) string {
	event := &alert.Event

	ruleIDs := make([]string, 0, len(alert.MatchedRules))
	for _, m := range alert.MatchedRules {
		ruleIDs = append(ruleIDs, m.RuleID)
	}
	rules := strings.Join(ruleIDs, ", ")
	if rules == "" {
		rules = "-"
	}

	occurred := "-"
	if event.OccurredAt != nil {
		occurred = event.OccurredAt.Format(time.RFC3339)
	}

	lines := []string{
		"Lookout Alert",
		"source: " + event.Source,
		"resource: " + event.ResourceType + " " + event.ResourceID,
		"type: " + event.EventType,
		"title: " + event.Title,
		"url: " + event.URL,
		"occurred_at: " + occurred,
		"observed_at: " + event.ObservedAt.Format(time.RFC3339),
		"matched_rules: " + rules,
	}
	if event.Summary != "" {
		lines = append(lines, "", event.Summary)
	}
	return strings.Join(lines, "\n")
}
