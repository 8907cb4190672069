// Package notify implements the delivery channels. Each notifier owns its
// own transport and channel-specific framing on top of the alert's rendered
// content; durability and retry policy stay with the orchestrator.
package notify

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lookout/pkg/domain/model"
	"github.com/m-mizutani/lookout/pkg/domain/types"
	goslack "github.com/slack-go/slack"
)

// SlackNotifier delivers alerts to a Slack incoming webhook.
type SlackNotifier struct {
	webhookURL string
}

// NewSlack creates a notifier for the given incoming webhook URL.
func NewSlack(webhookURL string) *SlackNotifier {
	return &SlackNotifier{webhookURL: webhookURL}
}

func (n *SlackNotifier) Channel() string { return "slack" }

func (n *SlackNotifier) Send(ctx context.Context, alert *model.Alert) error {
	event := &alert.Event

	attachment := goslack.Attachment{
		Title:     event.Title,
		TitleLink: event.URL,
		Text:      alert.Content,
		Footer:    "lookout",
	}

	msg := &goslack.WebhookMessage{
		Text:        event.Source + ": " + event.Title,
		Attachments: []goslack.Attachment{attachment},
	}

	if err := goslack.PostWebhookContext(ctx, n.webhookURL, msg); err != nil {
		return goerr.Wrap(err, "failed to post Slack webhook",
			goerr.T(types.TagNotify), goerr.V("fingerprint", alert.Fingerprint))
	}
	return nil
}
