package logging

import (
	"io"
	"sync"
	"time"
)

// AsyncWriter decouples log emission from disk latency: Write hands the
// line to a channel and a single goroutine batches lines to the
// underlying writer. The underlying writer is not closed by Close; the
// caller that opened it owns it.
type AsyncWriter struct {
	w       io.Writer
	lines   chan []byte
	stop    chan struct{}
	wg      sync.WaitGroup
	closeMu sync.Mutex
	closed  bool

	batchSize    int
	flushTimeout time.Duration
}

// AsyncWriterConfig tunes buffering; zero fields fall back to defaults.
type AsyncWriterConfig struct {
	BufferSize   int           // channel capacity, default 10000
	BatchSize    int           // lines per write burst, default 100
	FlushTimeout time.Duration // max latency for a buffered line, default 100ms
}

func NewAsyncWriter(w io.Writer) *AsyncWriter {
	return NewAsyncWriterWithConfig(w, AsyncWriterConfig{})
}

func NewAsyncWriterWithConfig(w io.Writer, cfg AsyncWriterConfig) *AsyncWriter {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 10000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 100 * time.Millisecond
	}

	aw := &AsyncWriter{
		w:            w,
		lines:        make(chan []byte, cfg.BufferSize),
		stop:         make(chan struct{}),
		batchSize:    cfg.BatchSize,
		flushTimeout: cfg.FlushTimeout,
	}
	aw.wg.Add(1)
	go aw.writeLoop()
	return aw
}

// Write queues p for background writing. It blocks only when the buffer
// is full, and fails once the writer is closed.
func (aw *AsyncWriter) Write(p []byte) (int, error) {
	buf := make([]byte, len(p))
	copy(buf, p)

	select {
	case aw.lines <- buf:
		return len(p), nil
	case <-aw.stop:
		return 0, io.ErrClosedPipe
	}
}

// Close flushes everything queued and stops the background goroutine.
func (aw *AsyncWriter) Close() error {
	aw.closeMu.Lock()
	defer aw.closeMu.Unlock()
	if aw.closed {
		return nil
	}
	aw.closed = true
	close(aw.stop)
	aw.wg.Wait()
	return nil
}

func (aw *AsyncWriter) writeLoop() {
	defer aw.wg.Done()

	ticker := time.NewTicker(aw.flushTimeout)
	defer ticker.Stop()

	batch := make([][]byte, 0, aw.batchSize)
	for {
		select {
		case line := <-aw.lines:
			batch = append(batch, line)
			if len(batch) >= aw.batchSize {
				aw.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				aw.flush(batch)
				batch = batch[:0]
			}

		case <-aw.stop:
			for {
				select {
				case line := <-aw.lines:
					batch = append(batch, line)
					if len(batch) >= aw.batchSize {
						aw.flush(batch)
						batch = batch[:0]
					}
				default:
					aw.flush(batch)
					return
				}
			}
		}
	}
}

func (aw *AsyncWriter) flush(batch [][]byte) {
	for _, line := range batch {
		_, _ = aw.w.Write(line)
	}
	if f, ok := aw.w.(interface{ Flush() error }); ok {
		_ = f.Flush()
	}
}
