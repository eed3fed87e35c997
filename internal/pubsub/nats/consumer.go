package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/nats-io/nats.go/jetstream"

	"offerdex/internal/pubsub"
)

// jetStreamConsumer implements pubsub.Consumer on JetStream.
type jetStreamConsumer struct {
	js   jetstream.JetStream
	opts pubsub.ConsumerOptions
}

// Subscribe ensures the stream and consumer exist, then starts
// delivery into a buffered channel. Cancelling ctx stops the consumer
// and closes the channel.
func (c *jetStreamConsumer) Subscribe(ctx context.Context) (<-chan pubsub.Message, error) {
	filter := c.opts.Filter()

	// The publishing side normally creates the stream with its subject
	// space. Create it here only when consuming starts first, using the
	// filter as the subject so both sides agree. JetStream stream
	// subjects accept wildcards.
	_, err := c.js.Stream(ctx, c.opts.Stream)
	if errors.Is(err, jetstream.ErrStreamNotFound) {
		_, err = c.js.CreateStream(ctx, jetstream.StreamConfig{
			Name:     c.opts.Stream,
			Subjects: []string{filter},
			Storage:  jetstream.MemoryStorage,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("ensure stream %s: %w", c.opts.Stream, err)
	}

	cfg := jetstream.ConsumerConfig{
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: filter,
	}
	if c.opts.Durable != "" {
		cfg.Durable = c.opts.Durable
	}

	consumer, err := c.js.CreateOrUpdateConsumer(ctx, c.opts.Stream, cfg)
	if err != nil {
		return nil, fmt.Errorf("create consumer on %s: %w", c.opts.Stream, err)
	}

	msgCh := make(chan pubsub.Message, c.opts.Buffer())

	// Stops handler sends racing with channel close during shutdown.
	var closing atomic.Bool

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		if closing.Load() {
			msg.Nak()
			return
		}
		select {
		case msgCh <- wrapMessage(msg):
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		close(msgCh)
		return nil, fmt.Errorf("start delivery on %s: %w", c.opts.Stream, err)
	}

	slog.Debug("Consumer subscribed", "stream", c.opts.Stream, "filter", filter)

	go func() {
		<-ctx.Done()
		closing.Store(true)
		cc.Stop()
		close(msgCh)
	}()

	return msgCh, nil
}
