// Package natsclient wraps a NATS connection and its JetStream context for
// every relay component (publisher, bootstrapper, relay engine).
//
// Adapted from packages/go-core/natsclient/client.go.
package natsclient

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Client wraps a NATS connection and its JetStream context. It is stateless
// beyond the connection handle itself and safe to share across producers and
// consumers within a process.
type Client struct {
	Conn *nats.Conn
	JS   nats.JetStreamContext
	Log  *zap.Logger
}

// Options configures the underlying NATS connection.
type Options struct {
	URL   string
	Creds string // path to a credentials file, optional
	Token string // optional bearer token auth
}

// NewClient connects to NATS and initializes a JetStream context. Reconnects
// are retried forever at the transport level — the relay fabric's whole
// design assumes a disconnected leaf/zone broker is a normal, recoverable
// condition, not a fatal one.
func NewClient(opts Options, logger *zap.Logger) (*Client, error) {
	natsOpts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	}
	if opts.Creds != "" {
		natsOpts = append(natsOpts, nats.UserCredentials(opts.Creds))
	}
	if opts.Token != "" {
		natsOpts = append(natsOpts, nats.Token(opts.Token))
	}

	nc, err := nats.Connect(opts.URL, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to initialize JetStream: %w", err)
	}

	logger.Info("NATS JetStream connected", zap.String("url", opts.URL))
	return &Client{Conn: nc, JS: js, Log: logger}, nil
}

// Close drains and closes the underlying NATS connection. Drain flushes all
// pending JetStream publish acknowledgments and outstanding subscription
// deliveries before closing, unlike Close which drops in-flight messages.
func (c *Client) Close() {
	if c.Conn == nil {
		return
	}
	if err := c.Conn.Drain(); err != nil {
		c.Conn.Close()
	}
}
