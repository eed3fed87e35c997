// Package ledger synchronizes the catalog with the shared record feed.
// Providers publish signed catalog records onto a stream; a search node
// replays the stream at startup to rebuild its registry and keeps
// applying records as they arrive. Records that do not decode or verify
// are logged and skipped, so one bad publication never wedges the feed.
package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"offerdex/internal/catalog"
	"offerdex/internal/pubsub"
	"offerdex/pkg/model"
)

// Sink receives verified catalog payloads. The catalog service
// implements it.
type Sink interface {
	ImportCSV(ctx context.Context, provider model.ProviderPubkey, r io.Reader) (catalog.ImportResult, error)
}

var _ Sink = (catalog.Service)(nil)

// Service is the ledger feed boundary.
type Service interface {
	// Start subscribes to the feed and begins replay. With no pubsub
	// provider the feed is disabled and the node runs on local writes
	// only.
	Start(ctx context.Context) error

	// Stop unsubscribes and waits for the apply loop to exit.
	Stop(ctx context.Context) error

	// Append publishes a signed record to the feed. The record must
	// already verify; Append checks shape, not the signature.
	Append(ctx context.Context, rec Record) error

	// WaitCaughtUp blocks until the startup backlog has been applied
	// or ctx expires.
	WaitCaughtUp(ctx context.Context) error

	// Stats returns feed counters.
	Stats() Stats
}

// Stats are the feed counters exposed on the stats endpoint.
type Stats struct {
	// Applied counts records that reached the catalog.
	Applied uint64 `json:"applied"`

	// Appended counts records this node published.
	Appended uint64 `json:"appended"`

	// Skipped counts records dropped as malformed, unverifiable, or
	// unappliable.
	Skipped uint64 `json:"skipped"`

	// Stale counts records dropped because a newer record for the same
	// provider was already applied.
	Stale uint64 `json:"stale"`

	LastAppliedUnix int64 `json:"last_applied_unix,omitempty"`

	// CaughtUp reports whether the startup backlog has been applied.
	CaughtUp bool `json:"caught_up"`
}

type service struct {
	cfg    Config
	logger *slog.Logger
	sink   Sink
	bus    pubsub.Provider

	mu        sync.Mutex
	running   bool
	runCtx    context.Context
	cancel    context.CancelFunc
	publisher pubsub.Publisher
	lastSeq   map[model.ProviderPubkey]uint64
	wg        sync.WaitGroup

	caughtUp     chan struct{}
	caughtUpOnce sync.Once

	applied     atomic.Uint64
	appended    atomic.Uint64
	skipped     atomic.Uint64
	stale       atomic.Uint64
	lastApplied atomic.Int64
}

// New creates the ledger service. A nil bus disables the feed.
func New(cfg Config, sink Sink, bus pubsub.Provider, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.ApplyDefaults()

	return &service{
		cfg:      cfg,
		logger:   logger.With("component", "ledger"),
		sink:     sink,
		bus:      bus,
		lastSeq:  make(map[model.ProviderPubkey]uint64),
		caughtUp: make(chan struct{}),
	}
}

// Start subscribes to the record feed and launches the apply loop.
func (s *service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("service already running")
	}

	if s.bus == nil {
		s.running = true
		s.markCaughtUp()
		s.logger.Info("ledger feed disabled, no pubsub provider")
		return nil
	}

	publisher, err := s.bus.NewPublisher(pubsub.PublisherOptions{
		Stream:        s.cfg.Stream,
		SubjectPrefix: s.cfg.Subject,
		Storage:       pubsub.FileStorage,
		RetryAttempts: s.cfg.PublishRetries,
	})
	if err != nil {
		return fmt.Errorf("create ledger publisher: %w", err)
	}

	consumer, err := s.bus.NewConsumer(pubsub.ConsumerOptions{
		Stream:        s.cfg.Stream,
		FilterSubject: s.cfg.Subject + ".>",
		BufferSize:    s.cfg.Buffer,
	})
	if err != nil {
		publisher.Close()
		return fmt.Errorf("create ledger consumer: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	msgs, err := consumer.Subscribe(runCtx)
	if err != nil {
		cancel()
		publisher.Close()
		return fmt.Errorf("subscribe to ledger feed: %w", err)
	}

	s.publisher = publisher
	s.runCtx = runCtx
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go s.run(msgs)

	s.logger.Info("ledger feed started",
		"stream", s.cfg.Stream, "subject", s.cfg.Subject)
	return nil
}

// Stop cancels the subscription and waits for the apply loop.
func (s *service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	publisher := s.publisher
	s.cancel = nil
	s.publisher = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if publisher != nil {
		if err := publisher.Close(); err != nil {
			s.logger.Warn("closing ledger publisher", "error", err)
		}
	}
	s.logger.Info("ledger feed stopped")
	return nil
}

// Append publishes a record to the feed. With the feed disabled this is
// a no-op: the local catalog is still authoritative.
func (s *service) Append(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	running := s.running
	publisher := s.publisher
	s.mu.Unlock()

	if !running {
		return errors.New("ledger service not running")
	}
	if publisher == nil {
		return nil
	}

	data, err := rec.Encode()
	if err != nil {
		return err
	}
	if err := publisher.Publish(ctx, "records."+rec.Provider.Hex(), data); err != nil {
		return fmt.Errorf("appending ledger record: %w", err)
	}
	s.appended.Add(1)
	return nil
}

func (s *service) WaitCaughtUp(ctx context.Context) error {
	select {
	case <-s.caughtUp:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *service) Stats() Stats {
	st := Stats{
		Applied:         s.applied.Load(),
		Appended:        s.appended.Load(),
		Skipped:         s.skipped.Load(),
		Stale:           s.stale.Load(),
		LastAppliedUnix: s.lastApplied.Load(),
	}
	select {
	case <-s.caughtUp:
		st.CaughtUp = true
	default:
	}
	return st
}

// run applies delivered records until the subscription closes. The
// settle timer marks the backlog applied once the feed goes quiet for
// ReplaySettle; after that the loop keeps running for live records.
func (s *service) run(msgs <-chan pubsub.Message) {
	defer s.wg.Done()

	settle := time.NewTimer(s.cfg.ReplaySettle.Std())
	defer settle.Stop()
	settleC := settle.C

	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				s.markCaughtUp()
				return
			}
			s.handle(msg)
			if settleC != nil {
				settle.Reset(s.cfg.ReplaySettle.Std())
			}
		case <-settleC:
			s.markCaughtUp()
			settleC = nil
		}
	}
}

// handle settles exactly one delivered message: Term for records that
// can never apply, Nak for transient apply failures, Ack otherwise.
func (s *service) handle(msg pubsub.Message) {
	data := msg.Data()
	if s.cfg.MaxRecordBytes > 0 && len(data) > s.cfg.MaxRecordBytes {
		s.drop(msg, "oversized ledger record",
			"bytes", len(data), "limit", s.cfg.MaxRecordBytes)
		return
	}

	rec, err := DecodeRecord(data)
	if err != nil {
		s.drop(msg, "undecodable ledger record",
			"subject", msg.Subject(), "error", err)
		return
	}
	if err := rec.Verify(); err != nil {
		s.drop(msg, "rejecting ledger record",
			"provider", rec.Provider.Short(), "seq", rec.Seq, "error", err)
		return
	}

	s.mu.Lock()
	last, seen := s.lastSeq[rec.Provider]
	s.mu.Unlock()
	if seen && rec.Seq <= last {
		s.stale.Add(1)
		s.logger.Debug("skipping stale ledger record",
			"provider", rec.Provider.Short(), "seq", rec.Seq, "applied_seq", last)
		_ = msg.Ack()
		return
	}

	ctx, cancel := context.WithTimeout(s.runCtx, s.cfg.ApplyTimeout.Std())
	res, err := s.sink.ImportCSV(ctx, rec.Provider, bytes.NewReader(rec.Payload))
	cancel()
	if err != nil {
		if transientErr(err) && s.retriable(msg) {
			s.logger.Warn("applying ledger record failed, requeueing",
				"provider", rec.Provider.Short(), "seq", rec.Seq, "error", err)
			_ = msg.Nak()
			return
		}
		s.drop(msg, "unappliable ledger record",
			"provider", rec.Provider.Short(), "seq", rec.Seq, "error", err)
		return
	}

	s.mu.Lock()
	s.lastSeq[rec.Provider] = rec.Seq
	s.mu.Unlock()

	s.applied.Add(1)
	s.lastApplied.Store(time.Now().Unix())
	_ = msg.Ack()

	s.logger.Debug("applied ledger record",
		"provider", rec.Provider.Short(), "seq", rec.Seq,
		"imported", res.Imported, "rows_skipped", len(res.Issues))
}

// drop terminates a record that can never apply and counts it.
func (s *service) drop(msg pubsub.Message, why string, args ...any) {
	s.skipped.Add(1)
	s.logger.Warn(why, args...)
	_ = msg.Term()
}

// markCaughtUp opens the caught-up gate once. Live records keep
// flowing through the same loop; the gate only tells startup that the
// backlog is in.
func (s *service) markCaughtUp() {
	s.caughtUpOnce.Do(func() {
		close(s.caughtUp)
		s.logger.Info("ledger replay caught up",
			"applied", s.applied.Load(), "skipped", s.skipped.Load())
	})
}

func transientErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

func (s *service) retriable(msg pubsub.Message) bool {
	meta, err := msg.Metadata()
	if err != nil {
		return false
	}
	return s.cfg.MaxDeliver <= 0 || meta.NumDelivered < uint64(s.cfg.MaxDeliver)
}
