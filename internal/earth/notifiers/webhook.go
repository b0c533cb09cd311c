package notifiers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/daniacca/geosim/internal/earth"
)

// WebhookNotifier sends notifications via HTTP POST to a webhook URL
type WebhookNotifier struct {
	id      string
	url     string
	client  *http.Client
	headers map[string]string
}

// NewWebhookNotifier creates a new webhook notifier
func NewWebhookNotifier(id, url string) *WebhookNotifier {
	return &WebhookNotifier{
		id:      id,
		url:     url,
		client:  &http.Client{Timeout: 5 * time.Second},
		headers: make(map[string]string),
	}
}

// SetHeader sets a custom header to include in webhook requests
func (wn *WebhookNotifier) SetHeader(key, value string) {
	if wn.headers == nil {
		wn.headers = make(map[string]string)
	}
	wn.headers[key] = value
}

// ID returns the notifier ID
func (wn *WebhookNotifier) ID() string {
	return wn.id
}

// Type returns the notifier type
func (wn *WebhookNotifier) Type() string {
	return "webhook"
}

// URL returns the target URL
func (wn *WebhookNotifier) URL() string {
	return wn.url
}

// Webhook request headers describing the tick, so receivers can route without decoding the body.
const (
	HeaderRunID      = "X-Geosim-Run-Id"
	HeaderTick       = "X-Geosim-Tick"
	HeaderEventCount = "X-Geosim-Event-Count"
)

// Notify posts the tick notification as JSON to the webhook URL. Custom headers are applied
// after the tick headers and may override them.
func (wn *WebhookNotifier) Notify(ctx context.Context, n earth.TickNotification) error {
	payload, err := n.JSON()
	if err != nil {
		return fmt.Errorf("encode tick %d of run %s: %w", n.Tick, n.RunID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wn.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("webhook %s: %w", wn.id, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderRunID, n.RunID)
	req.Header.Set(HeaderTick, strconv.FormatUint(n.Tick, 10))
	req.Header.Set(HeaderEventCount, strconv.Itoa(len(n.Events)))
	for key, value := range wn.headers {
		req.Header.Set(key, value)
	}

	resp, err := wn.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook %s: deliver tick %d: %w", wn.id, n.Tick, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s rejected tick %d with status %d", wn.id, n.Tick, resp.StatusCode)
	}

	return nil
}

// Close closes the notifier (no-op for webhook)
func (wn *WebhookNotifier) Close() error {
	return nil
}
