package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"offerdex/internal/pubsub"
	"offerdex/pkg/model"
)

// Config locates the catalog event feed on the pubsub bus.
type Config struct {
	// Stream is the pubsub stream carrying catalog events.
	Stream string
	// Subject is the event subject prefix; the consumer subscribes to
	// everything underneath it.
	Subject string
	// Buffer is the consumer channel depth.
	Buffer int
}

// Server owns the watch hub and the pubsub consumer feeding it.
type Server struct {
	cfg    Config
	bus    pubsub.Provider
	hub    *Hub
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewServer(cfg Config, bus pubsub.Provider, logger *slog.Logger) *Server {
	logger = logger.With("component", "realtime")
	return &Server{
		cfg:    cfg,
		bus:    bus,
		hub:    NewHub(logger),
		logger: logger,
	}
}

// Start launches the hub and subscribes to the catalog event feed.
// Without a bus the hub still runs so clients can connect; they just
// never receive events.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.Run(runCtx)
	}()

	if s.bus == nil {
		s.running = true
		s.logger.Info("Watch stream running without an event feed")
		return nil
	}

	consumer, err := s.bus.NewConsumer(pubsub.ConsumerOptions{
		Stream:        s.cfg.Stream,
		FilterSubject: s.cfg.Subject + ".>",
		BufferSize:    s.cfg.Buffer,
	})
	if err != nil {
		cancel()
		return fmt.Errorf("creating watch consumer: %w", err)
	}
	msgs, err := consumer.Subscribe(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribing to catalog events: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pump(runCtx, msgs)
	}()

	s.running = true
	s.logger.Info("Watch stream started", "stream", s.cfg.Stream, "subject", s.cfg.Subject)
	return nil
}

// Stop disconnects all clients and waits for the workers, bounded by
// ctx.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("stopping watch stream: %w", ctx.Err())
	}
	s.running = false
	return nil
}

// ClientCount reports how many watch clients are connected.
func (s *Server) ClientCount() int {
	return s.hub.ClientCount()
}

// pump decodes catalog events off the bus and hands them to the hub.
func (s *Server) pump(ctx context.Context, msgs <-chan pubsub.Message) {
	for msg := range msgs {
		var ev model.CatalogEvent
		if err := json.Unmarshal(msg.Data(), &ev); err != nil {
			s.logger.Warn("Skipping undecodable catalog event", "subject", msg.Subject(), "error", err)
			_ = msg.Term()
			continue
		}
		select {
		case s.hub.broadcast <- ev:
		case <-ctx.Done():
			return
		}
		_ = msg.Ack()
	}
}

// HandleWatch upgrades GET /v1/watch to a websocket and streams catalog
// events matching the query filter. Filter parameters: provider (hex
// pubkey) and type (repeatable: published, updated, withdrawn).
func (s *Server) HandleWatch(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r.URL.Query())
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"code": "BAD_REQUEST", "message": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger.Debug("Websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:    s.hub,
		conn:   conn,
		send:   make(chan model.CatalogEvent, 256),
		filter: filter,
		logger: s.logger,
	}
	client.hub.register <- client

	// All work happens in the pump goroutines so this handler can
	// return and release its stack.
	go client.writePump()
	go client.readPump()
}

func filterFromQuery(q url.Values) (Filter, error) {
	var f Filter
	if raw := q.Get("provider"); raw != "" {
		pk, err := model.PubkeyFromHex(raw)
		if err != nil {
			return Filter{}, fmt.Errorf("invalid provider: %w", err)
		}
		f.Provider = &pk
	}
	for _, raw := range q["type"] {
		t := model.EventType(raw)
		if !t.IsValid() {
			return Filter{}, fmt.Errorf("%w: unknown event type %q", model.ErrInvalidQuery, raw)
		}
		if f.Types == nil {
			f.Types = make(map[model.EventType]bool)
		}
		f.Types[t] = true
	}
	return f, nil
}
