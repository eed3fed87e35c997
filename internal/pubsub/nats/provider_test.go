package nats

import (
	"context"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offerdex/internal/pubsub"
)

func TestProviderRequiresConnect(t *testing.T) {
	p := NewProvider("nats://localhost:4222")

	_, err := p.NewPublisher(pubsub.PublisherOptions{Stream: "OFFERDEX"})
	assert.ErrorContains(t, err, "not connected")

	_, err = p.NewConsumer(pubsub.ConsumerOptions{Stream: "OFFERDEX"})
	assert.ErrorContains(t, err, "not connected")
}

func TestProviderConnectDialError(t *testing.T) {
	origConnect := natsConnect
	defer func() { natsConnect = origConnect }()

	dialErr := errors.New("connection refused")
	natsConnect = func(url string, opts ...nats.Option) (*nats.Conn, error) {
		return nil, dialErr
	}

	p := NewProvider("nats://localhost:4222")
	err := p.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, dialErr)
}

// fakeJetStream satisfies jetstream.JetStream without a server. Any
// method call panics, which is fine for tests that never reach one.
type fakeJetStream struct {
	jetstream.JetStream
}

func TestProviderConsumerRequiresStream(t *testing.T) {
	p := NewProvider("nats://localhost:4222")
	p.js = fakeJetStream{}

	_, err := p.NewConsumer(pubsub.ConsumerOptions{})
	assert.ErrorContains(t, err, "stream name")

	_, err = p.NewConsumer(pubsub.ConsumerOptions{Stream: "OFFERDEX"})
	require.NoError(t, err)
}

func TestProviderCloseWithoutConnect(t *testing.T) {
	p := NewProvider("nats://localhost:4222")
	assert.NoError(t, p.Close())
}
