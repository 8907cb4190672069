package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lookout/pkg/domain/model"
	"github.com/m-mizutani/lookout/pkg/domain/types"
)

// WebhookNotifier posts alerts as JSON to a generic HTTP endpoint, with
// optional HMAC-SHA256 request signing.
type WebhookNotifier struct {
	url        string
	secret     string
	httpClient *http.Client
}

// WebhookOption configures a WebhookNotifier.
type WebhookOption func(*WebhookNotifier)

// WithSigningSecret enables HMAC-SHA256 signing of the request body; the
// signature is carried in the X-Lookout-Signature header.
func WithSigningSecret(secret string) WebhookOption {
	return func(n *WebhookNotifier) {
		n.secret = secret
	}
}

// WithWebhookHTTPClient replaces the HTTP client, for tests.
func WithWebhookHTTPClient(hc *http.Client) WebhookOption {
	return func(n *WebhookNotifier) {
		n.httpClient = hc
	}
}

// NewWebhook creates a notifier posting to url.
func NewWebhook(url string, opts ...WebhookOption) *WebhookNotifier {
	n := &WebhookNotifier{
		url:        url,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *WebhookNotifier) Channel() string { return "webhook" }

func (n *WebhookNotifier) Send(ctx context.Context, alert *model.Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return goerr.Wrap(err, "failed to encode alert payload", goerr.T(types.TagNotify))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return goerr.Wrap(err, "failed to build webhook request", goerr.T(types.TagNotify))
	}
	req.Header.Set("Content-Type", "application/json")
	if n.secret != "" {
		mac := hmac.New(sha256.New, []byte(n.secret))
		mac.Write(body)
		req.Header.Set("X-Lookout-Signature", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return goerr.Wrap(err, "failed to post webhook",
			goerr.T(types.TagNotify), goerr.V("fingerprint", alert.Fingerprint))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return goerr.New("webhook returned error status",
			goerr.T(types.TagNotify),
			goerr.V("status", resp.StatusCode),
			goerr.V("fingerprint", alert.Fingerprint))
	}
	return nil
}
