// Package redis implements a built-in extension that publishes every tier-1
// event to a Redis pub/sub channel.
//
// Events are encoded as JSON by default; the msgpack format halves payload
// size for consumers that prefer a binary wire.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/millrun/mill/event"
	"github.com/millrun/mill/extension"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "mill:events"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// Wire formats.
const (
	FormatJSON    = "json"
	FormatMsgpack = "msgpack"
)

// Config configures the Redis extension.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel name (default: mill:events).
	Channel string
	// Format is the event encoding: json (default) or msgpack.
	Format string
	// Timeout is the per-publish timeout (default 5s).
	Timeout time.Duration
}

// wireEvent is the flattened envelope published to Redis. msgpack tags keep
// the binary wire stable independently of the JSON schema.
type wireEvent struct {
	SchemaVersion int    `json:"schemaVersion" msgpack:"schema_version"`
	RunID         string `json:"runId" msgpack:"run_id"`
	Sequence      int64  `json:"sequence" msgpack:"seq"`
	Timestamp     string `json:"timestamp" msgpack:"ts"`
	Type          string `json:"type" msgpack:"type"`
	SpawnID       string `json:"spawnId,omitempty" msgpack:"spawn_id,omitempty"`
	Payload       []byte `json:"payload" msgpack:"payload"`
}

// New builds the extension registration from the given config.
func New(cfg Config) (*extension.Registration, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis extension requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis extension: invalid URL: %w", err)
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Format == "" {
		cfg.Format = FormatJSON
	}
	if cfg.Format != FormatJSON && cfg.Format != FormatMsgpack {
		return nil, fmt.Errorf("redis extension: unknown format %q", cfg.Format)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	client := goredis.NewClient(opts)

	return &extension.Registration{
		Name: "redis",
		OnEvent: func(ctx context.Context, ev *event.Event, _ extension.RunContext) error {
			body, err := encode(cfg.Format, ev)
			if err != nil {
				return err
			}
			publishCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
			if err := client.Publish(publishCtx, cfg.Channel, body).Err(); err != nil {
				return fmt.Errorf("redis: publish %s: %w", ev.Type, err)
			}
			return nil
		},
	}, nil
}

func encode(format string, ev *event.Event) ([]byte, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return nil, fmt.Errorf("redis: encode payload: %w", err)
	}
	wire := wireEvent{
		SchemaVersion: ev.SchemaVersion,
		RunID:         ev.RunID,
		Sequence:      ev.Sequence,
		Timestamp:     ev.Timestamp,
		Type:          string(ev.Type),
		SpawnID:       ev.SpawnID(),
		Payload:       payload,
	}

	switch format {
	case FormatMsgpack:
		body, err := msgpack.Marshal(&wire)
		if err != nil {
			return nil, fmt.Errorf("redis: msgpack encode: %w", err)
		}
		return body, nil
	default:
		body, err := json.Marshal(&wire)
		if err != nil {
			return nil, fmt.Errorf("redis: json encode: %w", err)
		}
		return body, nil
	}
}
