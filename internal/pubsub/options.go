package pubsub

import "time"

// StorageType selects how the backing stream retains messages.
// The in-memory backend ignores it.
type StorageType int

const (
	// MemoryStorage keeps the stream in memory. Messages are lost on
	// server restart.
	MemoryStorage StorageType = iota

	// FileStorage persists the stream to disk.
	FileStorage
)

// PublisherOptions configures a Publisher.
type PublisherOptions struct {
	// Stream is the stream to publish into. Backends that manage
	// streams create it on first use.
	Stream string

	// SubjectPrefix is prepended to every published subject, joined
	// with a dot. Defaults to Stream when empty.
	SubjectPrefix string

	// Storage selects stream retention.
	Storage StorageType

	// RetryAttempts is the number of publish retries on transient
	// errors. Zero disables retries.
	RetryAttempts int

	// OnPublish, when set, is invoked after every publish attempt with
	// the full subject, the outcome, and the elapsed time.
	OnPublish func(subject string, err error, elapsed time.Duration)
}

// ConsumerOptions configures a Consumer.
type ConsumerOptions struct {
	// Stream is the stream to consume from.
	Stream string

	// Durable names the consumer so its position survives
	// reconnects. Empty means an ephemeral consumer.
	Durable string

	// FilterSubject restricts delivery to matching subjects.
	// NATS wildcards apply: "*" matches one token, ">" the rest.
	// Defaults to Stream+".>" when empty.
	FilterSubject string

	// BufferSize is the capacity of the delivery channel.
	BufferSize int
}

// DefaultConsumerBuffer is the delivery channel capacity used when
// ConsumerOptions.BufferSize is unset.
const DefaultConsumerBuffer = 256

// Filter resolves the subject filter for a consumer.
func (o ConsumerOptions) Filter() string {
	if o.FilterSubject != "" {
		return o.FilterSubject
	}
	if o.Stream != "" {
		return o.Stream + ".>"
	}
	return ">"
}

// Buffer resolves the delivery channel capacity.
func (o ConsumerOptions) Buffer() int {
	if o.BufferSize > 0 {
		return o.BufferSize
	}
	return DefaultConsumerBuffer
}

// FullSubject joins the publisher prefix with a subject.
func (o PublisherOptions) FullSubject(subject string) string {
	prefix := o.SubjectPrefix
	if prefix == "" {
		prefix = o.Stream
	}
	switch {
	case prefix == "":
		return subject
	case subject == "":
		return prefix
	default:
		return prefix + "." + subject
	}
}
