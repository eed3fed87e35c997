// Package pubsub defines the messaging abstraction used to fan out
// catalog events and to ingest external record feeds. Two backends
// implement it: an in-process bus for standalone deployments and tests
// (memory) and NATS JetStream for clustered ones (nats).
package pubsub

import (
	"context"
	"time"
)

// Message is a single delivered message. Consumers must settle every
// message exactly once with Ack, Nak, or Term.
type Message interface {
	// Data returns the raw payload.
	Data() []byte

	// Subject returns the subject the message was published on.
	Subject() string

	// Ack acknowledges successful processing.
	Ack() error

	// Nak signals a processing failure and requests redelivery.
	Nak() error

	// Term drops the message permanently. No redelivery occurs.
	Term() error

	// Metadata returns delivery metadata. Fields that the backend does
	// not track are zero.
	Metadata() (MessageMetadata, error)
}

// MessageMetadata describes how a message was delivered.
type MessageMetadata struct {
	// NumDelivered counts delivery attempts, starting at 1.
	NumDelivered uint64

	// Timestamp is when the message entered the stream.
	Timestamp time.Time

	// Subject the message was delivered on.
	Subject string

	// Stream and Consumer name the JetStream resources involved.
	// Empty for the in-memory backend.
	Stream   string
	Consumer string
}

// Publisher sends messages to subjects under a configured prefix.
type Publisher interface {
	// Publish sends data on the given subject. The publisher's
	// SubjectPrefix, if any, is prepended.
	Publish(ctx context.Context, subject string, data []byte) error

	// Close releases publisher resources.
	Close() error
}

// Consumer receives messages matching a subject filter.
type Consumer interface {
	// Subscribe starts delivery and returns the message channel. The
	// channel is closed when ctx is cancelled.
	Subscribe(ctx context.Context) (<-chan Message, error)
}

// Provider creates publishers and consumers for one backend.
type Provider interface {
	NewPublisher(opts PublisherOptions) (Publisher, error)
	NewConsumer(opts ConsumerOptions) (Consumer, error)

	// Close shuts down the backend and everything created from it.
	Close() error
}

// Connectable is implemented by providers that hold an external
// connection which must be established before use.
type Connectable interface {
	Connect(ctx context.Context) error
}
