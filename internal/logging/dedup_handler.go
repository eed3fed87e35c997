package logging

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

// DedupHandler collapses runs of identical records into one line with a
// repeated_count attribute. Identity is the record's level, message and
// attributes, hashed before the final handler stamps a timestamp, so two
// identical messages logged milliseconds apart count as duplicates.
//
// Buffered records flush when the batch fills, on a timer, and on Close.
type DedupHandler struct {
	next slog.Handler
	id   uint64
	core *dedupCore
}

// DedupConfig tunes the buffering window.
type DedupConfig struct {
	// BatchSize is the number of distinct records buffered before a
	// flush. Zero means 100.
	BatchSize int
	// FlushTimeout is the longest a record waits in the buffer. Zero
	// means one second.
	FlushTimeout time.Duration
}

type dedupCore struct {
	mu      sync.Mutex
	entries map[uint64]*dedupEntry
	order   []uint64

	nextID    atomic.Uint64
	batchSize int
	ticker    *time.Ticker
	stop      chan struct{}
	wg        sync.WaitGroup
}

// dedupEntry remembers the handler the first occurrence arrived through,
// so flushed records keep their logger's attributes.
type dedupEntry struct {
	record slog.Record
	sink   slog.Handler
	count  int
}

func NewDedupHandler(next slog.Handler, cfg DedupConfig) *DedupHandler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = time.Second
	}

	core := &dedupCore{
		entries:   make(map[uint64]*dedupEntry),
		batchSize: cfg.BatchSize,
		ticker:    time.NewTicker(cfg.FlushTimeout),
		stop:      make(chan struct{}),
	}
	h := &DedupHandler{next: next, id: core.nextID.Add(1), core: core}

	core.wg.Add(1)
	go core.flushLoop()
	return h
}

func (h *DedupHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *DedupHandler) Handle(_ context.Context, r slog.Record) error {
	key := h.hash(r)
	c := h.core

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.count++
		c.mu.Unlock()
		return nil
	}
	c.entries[key] = &dedupEntry{record: r.Clone(), sink: h.next, count: 1}
	c.order = append(c.order, key)
	full := len(c.order) >= c.batchSize
	c.mu.Unlock()

	if full {
		c.flush()
	}
	return nil
}

// hash covers the handler identity plus the record content, excluding
// the timestamp. Without the handler id, equal messages logged through
// differently-attributed loggers would collapse into one line.
func (h *DedupHandler) hash(r slog.Record) uint64 {
	d := xxhash.New()
	var idBuf [8]byte
	for i := range idBuf {
		idBuf[i] = byte(h.id >> (8 * i))
	}
	_, _ = d.Write(idBuf[:])
	_, _ = d.WriteString(r.Level.String())
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(r.Message)
	r.Attrs(func(a slog.Attr) bool {
		_, _ = d.WriteString("\x00")
		_, _ = d.WriteString(a.Key)
		_, _ = d.WriteString("=")
		_, _ = d.WriteString(a.Value.String())
		return true
	})
	return d.Sum64()
}

// WithAttrs keeps the shared buffer but routes this logger's records
// through its own attributed sink.
func (h *DedupHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &DedupHandler{next: h.next.WithAttrs(attrs), id: h.core.nextID.Add(1), core: h.core}
}

func (h *DedupHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &DedupHandler{next: h.next.WithGroup(name), id: h.core.nextID.Add(1), core: h.core}
}

// Close flushes the buffer and stops the timer goroutine.
func (h *DedupHandler) Close() error {
	c := h.core
	select {
	case <-c.stop:
		return nil
	default:
	}
	close(c.stop)
	c.ticker.Stop()
	c.wg.Wait()
	return nil
}

func (c *dedupCore) flushLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ticker.C:
			c.flush()
		case <-c.stop:
			c.flush()
			return
		}
	}
}

func (c *dedupCore) flush() {
	c.mu.Lock()
	if len(c.order) == 0 {
		c.mu.Unlock()
		return
	}
	batch := make([]*dedupEntry, 0, len(c.order))
	for _, key := range c.order {
		if e := c.entries[key]; e != nil {
			batch = append(batch, e)
		}
	}
	c.entries = make(map[uint64]*dedupEntry)
	c.order = c.order[:0]
	c.mu.Unlock()

	for _, e := range batch {
		r := e.record
		if e.count > 1 {
			r.AddAttrs(slog.Int("repeated_count", e.count))
		}
		_ = e.sink.Handle(context.Background(), r)
	}
}
