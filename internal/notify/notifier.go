// Package notify fans release notifications out to subscribed webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/release-tracker/internal/metrics"
	"github.com/JakeFAU/release-tracker/internal/tracker"
)

// Config bounds delivery.
type Config struct {
	Concurrency int
	// Timeout applies to each delivery separately.
	Timeout time.Duration
}

// Report summarizes one Notify call.
type Report struct {
	Targets   int `json:"targets"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// Notifier posts Slack-compatible {"text": ...} payloads.
type Notifier struct {
	cfg    Config
	hooks  tracker.WebhookRepository
	client *http.Client
	logger *zap.Logger
}

// New builds a Notifier. A nil client uses http.DefaultClient.
func New(cfg Config, hooks tracker.WebhookRepository, client *http.Client, logger *zap.Logger) *Notifier {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{cfg: cfg, hooks: hooks, client: client, logger: logger}
}

// Notify delivers message to every active webhook subscribed to event.
// Per-target failures are logged and counted only; the returned error is
// reserved for failing to load the webhook list.
func (n *Notifier) Notify(ctx context.Context, message string, event tracker.EventKind) (Report, error) {
	hooks, err := n.hooks.ListWebhooks(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list webhooks: %w", err)
	}
	var targets []tracker.Webhook
	for _, h := range hooks {
		if h.Subscribed(event) {
			targets = append(targets, h)
		}
	}
	report := Report{Targets: len(targets)}
	if len(targets) == 0 {
		return report, nil
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(n.cfg.Concurrency)
	for _, hook := range targets {
		g.Go(func() error {
			err := n.deliver(ctx, hook.URL, message)
			result := "delivered"
			if err != nil {
				result = "failed"
				n.logger.Warn("webhook delivery failed",
					zap.String("webhook_id", hook.ID),
					zap.String("webhook", hook.Name),
					zap.String("event", string(event)),
					zap.Error(err),
				)
			}
			metrics.ObserveWebhookDelivery(string(event), result)
			mu.Lock()
			if err != nil {
				report.Failed++
			} else {
				report.Delivered++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	n.logger.Info("notification sent",
		zap.String("event", string(event)),
		zap.Int("delivered", report.Delivered),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

func (n *Notifier) deliver(ctx context.Context, url, message string) error {
	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()
	body, err := json.Marshal(textPayload{Text: message})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	client := *n.client
	client.Transport = &textPayloadTransport{base: n.client.Transport, body: body}
	err = slack.PostWebhookCustomHTTPContext(ctx, url, &client, &slack.WebhookMessage{Text: message})
	var statusErr slack.StatusCodeError
	if errors.As(err, &statusErr) && statusErr.Code >= 200 && statusErr.Code < 300 {
		return nil
	}
	return err
}

// textPayload is the whole wire body: receivers get exactly {"text": ...}.
type textPayload struct {
	Text string `json:"text"`
}

// textPayloadTransport swaps the body slack-go encodes, which carries extra
// message-control fields and omits empty text, for the fixed payload.
type textPayloadTransport struct {
	base http.RoundTripper
	body []byte
}

func (t *textPayloadTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
	out := req.Clone(req.Context())
	out.Body = io.NopCloser(bytes.NewReader(t.body))
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(t.body)), nil
	}
	out.ContentLength = int64(len(t.body))
	out.Header.Set("Content-Type", "application/json")
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(out)
	if err != nil {
		return nil, fmt.Errorf("post webhook: %w", err)
	}
	return resp, nil
}
