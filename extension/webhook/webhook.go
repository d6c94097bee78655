// Package webhook implements a built-in extension that POSTs run-terminal
// events to an HTTP endpoint.
//
// Retries with exponential backoff on 5xx responses and network errors; 4xx
// responses are non-retriable and fail immediately. Failures are soft; the
// engine records extension:error and the run continues.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/millrun/mill/event"
	"github.com/millrun/mill/extension"
	"github.com/millrun/mill/iox"
	"github.com/millrun/mill/types"
)

// DefaultTimeout is the default per-request timeout.
const DefaultTimeout = 10 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// Config configures the webhook extension.
type Config struct {
	// URL is the HTTP endpoint to POST to (required).
	URL string
	// Headers are custom HTTP headers added to each request.
	Headers map[string]string
	// Timeout is the per-request timeout (default 10s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure (default 3).
	Retries int
}

// notification is the POSTed body for a run-terminal event.
type notification struct {
	SchemaVersion int             `json:"schemaVersion"`
	EventType     string          `json:"eventType"`
	RunID         string          `json:"runId"`
	Status        types.RunStatus `json:"status"`
	Sequence      int64           `json:"sequence"`
	Timestamp     string          `json:"timestamp"`
	ErrorMessage  string          `json:"errorMessage,omitempty"`
}

// New builds the extension registration from the given config.
func New(cfg Config) (*extension.Registration, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook extension requires a URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}

	client := &http.Client{Timeout: cfg.Timeout}

	return &extension.Registration{
		Name: "webhook",
		OnEvent: func(ctx context.Context, ev *event.Event, _ extension.RunContext) error {
			if !ev.Type.IsRunTerminal() {
				return nil
			}
			n := notification{
				SchemaVersion: ev.SchemaVersion,
				EventType:     string(ev.Type),
				RunID:         ev.RunID,
				Status:        ev.Type.TerminalStatus(),
				Sequence:      ev.Sequence,
				Timestamp:     ev.Timestamp,
			}
			if p, ok := ev.Payload.(event.RunFailedPayload); ok {
				n.ErrorMessage = p.Message
			}
			return publish(ctx, client, cfg, &n)
		},
	}, nil
}

func publish(ctx context.Context, client *http.Client, cfg Config, n *notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("webhook: marshal notification: %w", err)
	}

	var lastErr error
	// attempts = 1 initial + retries
	attempts := 1 + cfg.Retries

	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("webhook: context canceled: %w", err)
		}

		// Exponential backoff before retries (not before first attempt)
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return fmt.Errorf("webhook: context canceled during backoff: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		retriable, err := post(ctx, client, cfg, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retriable {
			return err
		}
	}

	return fmt.Errorf("webhook: failed after %d attempts: %w", attempts, lastErr)
}

func post(ctx context.Context, client *http.Client, cfg Config, body []byte) (retriable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return true, fmt.Errorf("webhook: request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("webhook: server error %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("webhook: rejected with status %d", resp.StatusCode)
	}
}
