package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// WebhookTimeout bounds one delivery.
const WebhookTimeout = 10 * time.Second

// WebhookNotifier POSTs the payload as JSON to <base>/<event>.
type WebhookNotifier struct {
	base   string
	client *http.Client
	log    *zap.SugaredLogger
}

func NewWebhookNotifier(base string, log *zap.SugaredLogger) *WebhookNotifier {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &WebhookNotifier{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: WebhookTimeout},
		log:    log,
	}
}

func (w *WebhookNotifier) Notify(ctx context.Context, event string, payload map[string]any) bool {
	if err := w.post(ctx, event, payload); err != nil {
		w.log.Warnw("webhook notification failed", "event", event, "error", err)
		return false
	}
	return true
}

func (w *WebhookNotifier) post(ctx context.Context, event string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.base+"/"+event, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
