package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lookout/pkg/domain/model"
	"github.com/m-mizutani/lookout/pkg/domain/types"
)

// welink content.text must stay within 1..500 runes.
const welinkTextLimit = 500

// maximum accounts the robot API accepts in one message
const welinkMaxAtAccounts = 10

// WeLinkNotifier delivers alerts to a WeLink group robot webhook. The
// webhook URL carries the token and channel parameters.
type WeLinkNotifier struct {
	webhookURL string
	isAt       bool
	isAtAll    bool
	atAccounts []string
	httpClient *http.Client
	now        func() time.Time
}

// WeLinkOption configures a WeLinkNotifier.
type WeLinkOption func(*WeLinkNotifier)

// WithAtAll makes every message mention the whole group.
func WithAtAll() WeLinkOption {
	return func(n *WeLinkNotifier) {
		n.isAtAll = true
	}
}

// WithAtAccounts mentions the given user ids (at most 10 are used).
func WithAtAccounts(accounts ...string) WeLinkOption {
	return func(n *WeLinkNotifier) {
		n.isAt = true
		n.atAccounts = accounts
	}
}

// WithWeLinkHTTPClient replaces the HTTP client, for tests.
func WithWeLinkHTTPClient(hc *http.Client) WeLinkOption {
	return func(n *WeLinkNotifier) {
		n.httpClient = hc
	}
}

// NewWeLink creates a notifier for the given robot webhook URL.
func NewWeLink(webhookURL string, opts ...WeLinkOption) *WeLinkNotifier {
	n := &WeLinkNotifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		now:        func() time.Time { return time.Now() },
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *WeLinkNotifier) Channel() string { return "welink" }

type welinkContent struct {
	Text string `json:"text"`
}

type welinkPayload struct {
	MessageType string        `json:"messageType"`
	Content     welinkContent `json:"content"`
	TimeStamp   int64         `json:"timeStamp"`
	UUID        string        `json:"uuid"`
	IsAt        bool          `json:"isAt"`
	IsAtAll     bool          `json:"isAtAll"`
	AtAccounts  []string      `json:"atAccounts,omitempty"`
}

type welinkResult struct {
	Code json.Number `json:"code"`
}

func (n *WeLinkNotifier) Send(ctx context.Context, alert *model.Alert) error {
	payload := n.buildPayload(alert.Content)
	raw, err := json.Marshal(payload)
	if err != nil {
		return goerr.Wrap(err, "failed to encode WeLink payload", goerr.T(types.TagNotify))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(raw))
	if err != nil {
		return goerr.Wrap(err, "failed to build WeLink request", goerr.T(types.TagNotify))
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return goerr.Wrap(err, "failed to post WeLink webhook",
			goerr.T(types.TagNotify), goerr.V("fingerprint", alert.Fingerprint))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return goerr.Wrap(err, "failed to read WeLink response", goerr.T(types.TagNotify))
	}
	if resp.StatusCode >= 400 {
		return goerr.New("WeLink webhook returned error status",
			goerr.T(types.TagNotify),
			goerr.V("status", resp.StatusCode), goerr.V("body", string(body)))
	}

	var result welinkResult
	if err := json.Unmarshal(body, &result); err != nil {
		return goerr.Wrap(err, "WeLink response is not valid JSON",
			goerr.T(types.TagNotify), goerr.V("body", string(body)))
	}
	if result.Code.String() != "0" {
		return goerr.New("WeLink webhook rejected message",
			goerr.T(types.TagNotify), goerr.V("body", string(body)))
	}
	return nil
}

// buildPayload assembles the robot message. Mention highlighting requires
// the @ markers inside the text and the matching account list, so the text
// is decorated before truncation.
func (n *WeLinkNotifier) buildPayload(text string) *welinkPayload {
	text = n.decorate(strings.TrimSpace(text))
	if text == "" {
		text = "-"
	}
	if runes := []rune(text); len(runes) > welinkTextLimit {
		text = string(runes[:welinkTextLimit-1]) + "…"
	}

	payload := &welinkPayload{
		MessageType: "text",
		Content:     welinkContent{Text: text},
		TimeStamp:   n.now().UnixMilli(),
		UUID:        uuid.NewString(),
	}

	if n.isAtAll {
		payload.IsAtAll = true
		return payload
	}

	accounts := make([]string, 0, welinkMaxAtAccounts)
	for _, a := range n.atAccounts {
		if a == "" {
			continue
		}
		accounts = append(accounts, a)
		if len(accounts) == welinkMaxAtAccounts {
			break
		}
	}
	if n.isAt && len(accounts) > 0 {
		payload.IsAt = true
		payload.AtAccounts = accounts
	}
	return payload
}

func (n *WeLinkNotifier) decorate(text string) string {
	if n.isAtAll {
		if strings.HasPrefix(text, "@all") {
			return text
		}
		return "@all " + text
	}
	if n.isAt && len(n.atAccounts) > 0 {
		mentions := make([]string, 0, len(n.atAccounts))
		for _, a := range n.atAccounts {
			if a != "" {
				mentions = append(mentions, "@"+a)
			}
		}
		prefix := strings.Join(mentions, " ")
		if prefix != "" && !strings.Contains(text, prefix) {
			return strings.TrimSpace(prefix + " " + text)
		}
	}
	return text
}
