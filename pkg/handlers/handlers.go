// Package handlers provides the bus.Handler implementations used for
// subscriptions declared in the hub configuration.
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/wirehome/wirehome-go/pkg/bus"
	"github.com/wirehome/wirehome-go/pkg/config"
)

// ErrUnexpectedStatus is returned when a webhook answers with a non-2xx status.
var ErrUnexpectedStatus = errors.New("unexpected webhook status")

// LogHandler writes every message it receives to an slog logger.
type LogHandler struct {
	uid    string
	logger *slog.Logger
	level  slog.Level
}

// NewLogHandler creates a handler logging at Info level under the given uid.
func NewLogHandler(uid string, logger *slog.Logger) *LogHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogHandler{uid: uid, logger: logger, level: slog.LevelInfo}
}

// Process implements bus.Handler.
func (h *LogHandler) Process(ctx context.Context, msg bus.Message) error {
	h.logger.Log(ctx, h.level, "Bus message", "subscriber", h.uid, "message", map[string]any(msg))
	return nil
}

// WebhookHandler forwards messages to a remote endpoint as JSON.
type WebhookHandler struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

// NewWebhookHandler creates a webhook handler. A nil client uses
// http.DefaultClient; a non-positive timeout disables the per-call deadline.
func NewWebhookHandler(url string, client *http.Client, timeout time.Duration) *WebhookHandler {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookHandler{url: url, client: client, timeout: timeout}
}

// URL returns the target endpoint.
func (h *WebhookHandler) URL() string {
	return h.url
}

// Process POSTs msg to the endpoint. Cancellation of ctx is reported as a
// cancellation, an exceeded per-call timeout as a fault.
func (h *WebhookHandler) Process(ctx context.Context, msg bus.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	callCtx := ctx
	if h.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return bus.Cancelled(ctx.Err())
		}
		// A timeout of our own deadline is not a cooperative cancellation.
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("webhook %s: timed out after %s", h.url, h.timeout)
		}
		return fmt.Errorf("webhook %s: %w", h.url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s returned %d", ErrUnexpectedStatus, h.url, resp.StatusCode)
	}
	return nil
}

// FromConfig builds the handler for a configured subscription.
func FromConfig(sc config.SubscriptionConfig, logger *slog.Logger, client *http.Client) (bus.Handler, error) {
	switch sc.Action {
	case config.ActionLog, "":
		return NewLogHandler(sc.UID, logger), nil
	case config.ActionWebhook:
		if sc.URL == "" {
			return nil, fmt.Errorf("%w: webhook %s has no url", bus.ErrInvalidArgument, sc.UID)
		}
		return NewWebhookHandler(sc.URL, client, sc.Timeout), nil
	default:
		return nil, fmt.Errorf("%w: unknown action %q", bus.ErrInvalidArgument, sc.Action)
	}
}

// Subscribe registers every configured subscription on the broker.
func Subscribe(broker *bus.Broker, subs []config.SubscriptionConfig, logger *slog.Logger, client *http.Client) error {
	for _, sc := range subs {
		h, err := FromConfig(sc, logger, client)
		if err != nil {
			return err
		}
		if _, err := broker.SubscribeWithUID(sc.UID, bus.NewFilter(sc.Filter), h); err != nil {
			return fmt.Errorf("subscribe %s: %w", sc.UID, err)
		}
	}
	return nil
}
