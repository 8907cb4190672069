package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Event represents one observed change at an upstream platform, normalized
// to a platform-agnostic shape. Instances are created by source adapters on
// every fetch and are never mutated afterwards.
type Event struct {
	Source       string          `json:"source"`        // Platform identifier (e.g. "github")
	ResourceType string          `json:"resource_type"` // Kind of monitored entity (e.g. "repo_issue")
	ResourceID   string          `json:"resource_id"`   // Monitored entity (e.g. "owner/repo")
	EventType    string          `json:"event_type"`    // Semantic kind (e.g. "issue_updated")
	EventID      string          `json:"event_id"`      // Source-local identifier of the change
	Title        string          `json:"title"`
	Summary      string          `json:"summary"`
	URL          string          `json:"url"`
	OccurredAt   *time.Time      `json:"occurred_at,omitempty"` // Upstream-reported time, if any
	ObservedAt   time.Time       `json:"observed_at"`           // Time the adapter fetched it
	Raw          json.RawMessage `json:"raw,omitempty"`         // Diagnostics only, never identity
}

// identity is the stable identity tuple of an event. Field order is fixed
// and keys are emitted in lexicographic order so the serialized form is
// deterministic.
type identity struct {
	EventID      string `json:"event_id"`
	EventType    string `json:"event_type"`
	ResourceID   string `json:"resource_id"`
	ResourceType string `json:"resource_type"`
	Source       string `json:"source"`
}

// Fingerprint returns the idempotency key of the event: a SHA-256 digest of
// the identity tuple. Presentation fields (title, summary, url, raw) and
// timestamps never contribute, so re-fetching the same change with different
// presentation yields the same fingerprint.
func (e *Event) Fingerprint() string {
	raw, err := json.Marshal(identity{
		EventID:      e.EventID,
		EventType:    e.EventType,
		ResourceID:   e.ResourceID,
		ResourceType: e.ResourceType,
		Source:       e.Source,
	})
	if err != nil {
		// identity contains only strings; Marshal cannot fail
		panic(err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// SortTime returns the timestamp used to order events inside one cycle:
// occurred_at when the upstream reported one, observed_at otherwise.
func (e *Event) SortTime() time.Time {
	if e.OccurredAt != nil {
		return *e.OccurredAt
	}
	return e.ObservedAt
}

// RuleMatch records that one rule matched an event.
type RuleMatch struct {
	RuleID string `json:"rule_id"`
	Reason string `json:"reason"`
}

// Alert is created when an event matched at least one rule. It is persisted
// before any delivery attempt so the record survives delivery failures and
// process crashes.
type Alert struct {
	Fingerprint  string      `json:"fingerprint"`
	Event        Event       `json:"event"`
	MatchedRules []RuleMatch `json:"matched_rules"`
	Channels     []string    `json:"channels"` // All configured channels at construction time
	Content      string      `json:"content"`  // Rendered, channel-agnostic text
	CreatedAt    time.Time   `json:"created_at"`
}

// NotifyFailure is one append-only audit row for a failed delivery attempt.
// Rows are never deduplicated and never retried automatically.
type NotifyFailure struct {
	Fingerprint string    `json:"fingerprint"`
	Channel     string    `json:"channel"`
	Error       string    `json:"error"`
	CreatedAt   time.Time `json:"created_at"`
}
