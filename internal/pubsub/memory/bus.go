// Package memory provides an in-process pubsub backend. It mirrors the
// JetStream delivery semantics closely enough that code written against
// the pubsub interfaces runs unchanged in standalone mode and in tests.
package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"offerdex/internal/pubsub"
)

// ErrBusClosed is returned when operating on a closed bus.
var ErrBusClosed = errors.New("pubsub bus is closed")

// Bus routes messages between in-process publishers and consumers.
// Every subscriber whose pattern matches a subject receives its own
// copy of the message.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64
	closed atomic.Bool
}

var _ pubsub.Provider = (*Bus)(nil)

type subscription struct {
	pattern string
	ch      chan pubsub.Message
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[uint64]*subscription)}
}

// NewPublisher creates a publisher that routes through this bus.
func (b *Bus) NewPublisher(opts pubsub.PublisherOptions) (pubsub.Publisher, error) {
	if b.closed.Load() {
		return nil, ErrBusClosed
	}
	return &busPublisher{bus: b, opts: opts}, nil
}

// NewConsumer creates a consumer that subscribes on this bus.
func (b *Bus) NewConsumer(opts pubsub.ConsumerOptions) (pubsub.Consumer, error) {
	if b.closed.Load() {
		return nil, ErrBusClosed
	}
	return &busConsumer{bus: b, opts: opts}, nil
}

// Close shuts down the bus and closes all subscription channels.
func (b *Bus) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		sub.cancel()
		close(sub.ch)
	}
	b.subs = nil
	return nil
}

// IsClosed reports whether Close has been called.
func (b *Bus) IsClosed() bool {
	return b.closed.Load()
}

// publish delivers data to every matching subscription. Delivery to a
// full channel blocks until the subscriber drains it or one of the
// contexts is cancelled.
func (b *Bus) publish(ctx context.Context, subject string, data []byte) error {
	if b.closed.Load() {
		return ErrBusClosed
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	now := time.Now()
	for _, sub := range b.subs {
		if !matchSubject(sub.pattern, subject) {
			continue
		}
		msg := &busMessage{
			data:       data,
			subject:    subject,
			at:         now,
			deliveries: 1,
			requeue:    sub.ch,
			ctx:        sub.ctx,
		}
		select {
		case sub.ch <- msg:
		case <-ctx.Done():
			return ctx.Err()
		case <-sub.ctx.Done():
			// Subscriber went away, skip it.
		}
	}
	return nil
}

// subscribe registers a pattern and returns the delivery channel plus a
// function that tears the subscription down.
func (b *Bus) subscribe(ctx context.Context, pattern string, bufSize int) (<-chan pubsub.Message, func(), error) {
	if b.closed.Load() {
		return nil, nil, ErrBusClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		pattern: pattern,
		ch:      make(chan pubsub.Message, bufSize),
		ctx:     subCtx,
		cancel:  cancel,
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = sub

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.subs[id] == sub {
			delete(b.subs, id)
			cancel()
			close(sub.ch)
		}
	}
	return sub.ch, unsubscribe, nil
}

// matchSubject reports whether a dotted subject matches a pattern.
// "*" matches exactly one token, ">" matches one or more trailing
// tokens and must be the last pattern token.
func matchSubject(pattern, subject string) bool {
	if pattern == "" || subject == "" {
		return false
	}
	pp := strings.Split(pattern, ".")
	sp := strings.Split(subject, ".")
	for i, tok := range pp {
		if tok == ">" {
			return i < len(sp)
		}
		if i >= len(sp) {
			return false
		}
		if tok != "*" && tok != sp[i] {
			return false
		}
	}
	return len(pp) == len(sp)
}

// busPublisher implements pubsub.Publisher over the bus.
type busPublisher struct {
	bus    *Bus
	opts   pubsub.PublisherOptions
	closed atomic.Bool
}

func (p *busPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	if p.closed.Load() {
		return ErrBusClosed
	}
	start := time.Now()
	full := p.opts.FullSubject(subject)
	err := p.bus.publish(ctx, full, data)
	if p.opts.OnPublish != nil {
		p.opts.OnPublish(full, err, time.Since(start))
	}
	return err
}

func (p *busPublisher) Close() error {
	p.closed.Store(true)
	return nil
}

// busConsumer implements pubsub.Consumer over the bus.
type busConsumer struct {
	bus  *Bus
	opts pubsub.ConsumerOptions
}

func (c *busConsumer) Subscribe(ctx context.Context) (<-chan pubsub.Message, error) {
	if c.bus.IsClosed() {
		return nil, ErrBusClosed
	}

	ch, unsubscribe, err := c.bus.subscribe(ctx, c.opts.Filter(), c.opts.Buffer())
	if err != nil {
		return nil, err
	}

	go func() {
		<-ctx.Done()
		unsubscribe()
	}()

	return ch, nil
}
