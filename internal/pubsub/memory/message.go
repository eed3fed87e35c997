package memory

import (
	"context"
	"sync"
	"time"

	"offerdex/internal/pubsub"
)

// busMessage implements pubsub.Message for in-process delivery.
type busMessage struct {
	data       []byte
	subject    string
	at         time.Time
	deliveries uint64

	// requeue is the owning subscription's channel, used for Nak.
	requeue chan pubsub.Message
	ctx     context.Context

	mu      sync.Mutex
	settled bool
}

func (m *busMessage) Data() []byte {
	return m.data
}

func (m *busMessage) Subject() string {
	return m.subject
}

// Ack marks the message processed. Settling twice is a no-op.
func (m *busMessage) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settled = true
	return nil
}

// Nak requeues the message on its subscription channel without
// blocking. If the channel is full or already closed the message is
// dropped; the in-memory backend offers no retention.
func (m *busMessage) Nak() error {
	m.mu.Lock()
	if m.settled {
		m.mu.Unlock()
		return nil
	}
	m.settled = true
	m.mu.Unlock()

	redelivery := &busMessage{
		data:       m.data,
		subject:    m.subject,
		at:         m.at,
		deliveries: m.deliveries + 1,
		requeue:    m.requeue,
		ctx:        m.ctx,
	}

	defer func() {
		// The subscription may close the channel concurrently.
		recover()
	}()

	select {
	case m.requeue <- redelivery:
	case <-m.ctx.Done():
	default:
	}
	return nil
}

// Term drops the message with no redelivery.
func (m *busMessage) Term() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settled = true
	return nil
}

func (m *busMessage) Metadata() (pubsub.MessageMetadata, error) {
	return pubsub.MessageMetadata{
		NumDelivered: m.deliveries,
		Timestamp:    m.at,
		Subject:      m.subject,
	}, nil
}
