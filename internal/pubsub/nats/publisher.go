package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"offerdex/internal/pubsub"
)

// jetStreamPublisher implements pubsub.Publisher on JetStream.
type jetStreamPublisher struct {
	js   jetstream.JetStream
	opts pubsub.PublisherOptions
}

// newPublisher ensures the target stream exists and returns a
// publisher bound to it.
func newPublisher(js jetstream.JetStream, opts pubsub.PublisherOptions) (pubsub.Publisher, error) {
	if opts.Stream != "" {
		subject := opts.SubjectPrefix
		if subject == "" {
			subject = opts.Stream
		}

		storage := jetstream.MemoryStorage
		if opts.Storage == pubsub.FileStorage {
			storage = jetstream.FileStorage
		}

		_, err := js.CreateOrUpdateStream(context.Background(), jetstream.StreamConfig{
			Name:     opts.Stream,
			Subjects: []string{subject + ".>"},
			Storage:  storage,
		})
		if err != nil {
			return nil, fmt.Errorf("ensure stream %s: %w", opts.Stream, err)
		}
	}
	return &jetStreamPublisher{js: js, opts: opts}, nil
}

func (p *jetStreamPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	start := time.Now()
	full := p.opts.FullSubject(subject)

	var pubOpts []jetstream.PublishOpt
	if p.opts.RetryAttempts > 0 {
		pubOpts = append(pubOpts, jetstream.WithRetryAttempts(p.opts.RetryAttempts))
	}

	_, err := p.js.Publish(ctx, full, data, pubOpts...)

	if p.opts.OnPublish != nil {
		p.opts.OnPublish(full, err, time.Since(start))
	}
	if err != nil {
		return fmt.Errorf("publish to %s: %w", full, err)
	}
	return nil
}

func (p *jetStreamPublisher) Close() error {
	return nil
}
