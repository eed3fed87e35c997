// Package nats backs the pubsub interfaces with NATS JetStream.
package nats

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"offerdex/internal/pubsub"
)

// jetStreamNew creates the JetStream context. A variable so tests can
// substitute a mock.
var jetStreamNew = func(nc *nats.Conn) (jetstream.JetStream, error) {
	return jetstream.New(nc)
}

// natsConnect dials the server. A variable so tests can substitute a
// fake connection.
var natsConnect = func(url string, opts ...nats.Option) (*nats.Conn, error) {
	return nats.Connect(url, opts...)
}

// Provider implements pubsub.Provider on a single NATS connection.
// Connect must be called before creating publishers or consumers.
type Provider struct {
	url  string
	conn *nats.Conn
	js   jetstream.JetStream
}

var (
	_ pubsub.Provider    = (*Provider)(nil)
	_ pubsub.Connectable = (*Provider)(nil)
)

// NewProvider creates a provider for the given server URL. No
// connection is made until Connect.
func NewProvider(url string) *Provider {
	return &Provider{url: url}
}

// Connect dials the server and initializes JetStream.
func (p *Provider) Connect(ctx context.Context) error {
	conn, err := natsConnect(p.url,
		nats.Name("offerdex"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return fmt.Errorf("connect to NATS at %s: %w", p.url, err)
	}

	js, err := jetStreamNew(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("init JetStream: %w", err)
	}

	p.conn = conn
	p.js = js
	slog.Info("Connected to NATS", "url", p.url)
	return nil
}

// NewPublisher creates a JetStream publisher. The target stream is
// created if it does not exist.
func (p *Provider) NewPublisher(opts pubsub.PublisherOptions) (pubsub.Publisher, error) {
	if p.js == nil {
		return nil, fmt.Errorf("NATS not connected, call Connect first")
	}
	return newPublisher(p.js, opts)
}

// NewConsumer creates a JetStream consumer.
func (p *Provider) NewConsumer(opts pubsub.ConsumerOptions) (pubsub.Consumer, error) {
	if p.js == nil {
		return nil, fmt.Errorf("NATS not connected, call Connect first")
	}
	if opts.Stream == "" {
		return nil, fmt.Errorf("consumer requires a stream name")
	}
	return &jetStreamConsumer{js: p.js, opts: opts}, nil
}

// Close drains and closes the connection.
func (p *Provider) Close() error {
	if p.conn == nil {
		return nil
	}
	slog.Info("Closing NATS connection")
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
	p.conn = nil
	p.js = nil
	return nil
}
