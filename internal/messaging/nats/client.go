// Package nats publishes messages to a NATS server.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/telhawk-systems/edr-telemetry/internal/messaging"
)

// Client implements messaging.Publisher using NATS core publish.
type Client struct {
	conn         *nats.Conn
	flushTimeout time.Duration
}

// Config holds NATS client configuration.
type Config struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	URL string

	// Name is the client name for connection identification.
	Name string

	MaxReconnects int
	ReconnectWait time.Duration

	// Timeout bounds the initial connect and the flush on Close.
	Timeout time.Duration
}

// DefaultConfig returns a Config suited to a short-lived command.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "edr",
		MaxReconnects: 3,
		ReconnectWait: time.Second,
		Timeout:       5 * time.Second,
	}
}

// NewClient connects to the server at cfg.URL.
func NewClient(cfg Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			slog.Info("NATS reconnected")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Client{conn: conn, flushTimeout: cfg.Timeout}, nil
}

// PublishMsg sends msg with its metadata as NATS headers.
func (c *Client) PublishMsg(ctx context.Context, msg *messaging.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	natsMsg := &nats.Msg{
		Subject: msg.Subject,
		Data:    msg.Data,
	}
	if len(msg.Metadata) > 0 {
		natsMsg.Header = make(nats.Header)
		for k, v := range msg.Metadata {
			natsMsg.Header.Set(k, v)
		}
	}

	return c.conn.PublishMsg(natsMsg)
}

// Close flushes buffered messages and closes the connection.
func (c *Client) Close() error {
	defer c.conn.Close()
	if err := c.conn.FlushTimeout(c.flushTimeout); err != nil {
		return fmt.Errorf("failed to flush NATS connection: %w", err)
	}
	return nil
}
