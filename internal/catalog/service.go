package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"offerdex/internal/pubsub"
	"offerdex/internal/registry"
	"offerdex/pkg/model"
)

// Config holds the catalog service configuration.
type Config struct {
	// EventsStream is the pubsub stream catalog events are published
	// to. Defaults to "OFFERDEX".
	EventsStream string `yaml:"events_stream"`

	// EventsSubject is the subject prefix for catalog events. The full
	// subject is "<prefix>.<type>.<provider-hex>". Defaults to
	// "offerdex.catalog".
	EventsSubject string `yaml:"events_subject"`

	// PublishQueue is the capacity of the outbound event queue. When
	// the queue is full events are dropped and counted, never blocking
	// a catalog write. Defaults to 512.
	PublishQueue int `yaml:"publish_queue"`

	// PublishRetries is the number of retries for a failed event
	// publish. Defaults to 2.
	PublishRetries int `yaml:"publish_retries"`

	// PublishTimeout bounds a single event publish. Defaults to 5s.
	PublishTimeout model.Duration `yaml:"publish_timeout"`
}

// DefaultConfig returns the default catalog service configuration.
func DefaultConfig() Config {
	return Config{
		EventsStream:   "OFFERDEX",
		EventsSubject:  "offerdex.catalog",
		PublishQueue:   512,
		PublishRetries: 2,
		PublishTimeout: model.Duration(5 * time.Second),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.PublishQueue < 0 {
		return fmt.Errorf("publish_queue must not be negative, got %d", c.PublishQueue)
	}
	if c.PublishRetries < 0 {
		return fmt.Errorf("publish_retries must not be negative, got %d", c.PublishRetries)
	}
	if c.PublishTimeout < 0 {
		return fmt.Errorf("publish_timeout must not be negative, got %s", c.PublishTimeout)
	}
	return nil
}

// service implements LocalService.
type service struct {
	cfg    Config
	logger *slog.Logger
	reg    *registry.Registry
	bus    pubsub.Provider

	// State
	mu        sync.RWMutex
	running   bool
	publisher pubsub.Publisher
	queue     chan model.CatalogEvent
	wg        sync.WaitGroup

	// Stats
	eventsPublished atomic.Int64
	eventsDropped   atomic.Int64
	lastEventUnix   atomic.Int64
}

// NewService creates a new catalog service around an existing registry.
// bus may be nil, in which case event fan-out is disabled; callers that
// pass a Connectable provider must connect it before Start.
func NewService(cfg Config, reg *registry.Registry, bus pubsub.Provider, logger *slog.Logger) LocalService {
	if cfg.EventsStream == "" {
		cfg.EventsStream = "OFFERDEX"
	}
	if cfg.EventsSubject == "" {
		cfg.EventsSubject = "offerdex.catalog"
	}
	if cfg.PublishQueue <= 0 {
		cfg.PublishQueue = 512
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = model.Duration(5 * time.Second)
	}

	return &service{
		cfg:    cfg,
		logger: logger.With("component", "catalog"),
		reg:    reg,
		bus:    bus,
	}
}

// Start creates the event publisher and begins the fan-out worker.
func (s *service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("service already running")
	}

	if s.bus != nil {
		publisher, err := s.bus.NewPublisher(pubsub.PublisherOptions{
			Stream:        s.cfg.EventsStream,
			SubjectPrefix: s.cfg.EventsSubject,
			RetryAttempts: s.cfg.PublishRetries,
		})
		if err != nil {
			return fmt.Errorf("create event publisher: %w", err)
		}
		s.publisher = publisher
		s.queue = make(chan model.CatalogEvent, s.cfg.PublishQueue)

		s.wg.Add(1)
		go s.publishLoop()
	} else {
		s.logger.Info("event fan-out disabled, no pubsub provider")
	}

	s.running = true
	s.logger.Info("catalog service started",
		"stream", s.cfg.EventsStream,
		"subject", s.cfg.EventsSubject)
	return nil
}

// Stop drains the event queue and shuts the publisher down.
func (s *service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	if s.queue != nil {
		close(s.queue)
	}
	s.mu.Unlock()

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

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			s.logger.Warn("closing event publisher", "error", err)
		}
		s.publisher = nil
	}
	s.logger.Info("catalog service stopped")
	return nil
}

// emit queues events for fan-out. A full queue drops the event rather
// than stalling the write path; the catalog itself remains the source
// of truth.
func (s *service) emit(events ...model.CatalogEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.running || s.queue == nil {
		return
	}
	for _, ev := range events {
		select {
		case s.queue <- ev:
		default:
			s.eventsDropped.Add(1)
			s.logger.Warn("event queue full, dropping event",
				"type", ev.Type, "seq", ev.Seq)
		}
	}
}

// publishLoop fans queued events out until the queue is closed. The
// loop keeps draining during shutdown so accepted events still go out.
func (s *service) publishLoop() {
	defer s.wg.Done()

	for ev := range s.queue {
		payload, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("marshaling catalog event", "seq", ev.Seq, "error", err)
			continue
		}
		subject := string(ev.Type) + "." + ev.Provider.Hex()

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PublishTimeout.Std())
		err = s.publisher.Publish(ctx, subject, payload)
		cancel()
		if err != nil {
			s.eventsDropped.Add(1)
			s.logger.Error("publishing catalog event",
				"subject", subject, "seq", ev.Seq, "error", err)
			continue
		}
		s.eventsPublished.Add(1)
		s.lastEventUnix.Store(ev.At.Unix())
	}
}

func (s *service) PublishOffering(ctx context.Context, provider model.ProviderPubkey, o *model.Offering) (registry.Meta, error) {
	ev, err := s.reg.Put(provider, o)
	if err != nil {
		return registry.Meta{}, err
	}
	if ev != nil {
		s.emit(*ev)
	}
	meta, _ := s.reg.Meta(provider, o.Key)
	return meta, nil
}

func (s *service) UpdateOffering(ctx context.Context, provider model.ProviderPubkey, key model.OfferingKey, o *model.Offering) (registry.Meta, error) {
	if o == nil {
		return registry.Meta{}, fmt.Errorf("%w: nil offering", model.ErrValidation)
	}
	record := o
	if record.Key == "" {
		record = o.Clone()
		record.Key = key
	} else if record.Key != key {
		return registry.Meta{}, fmt.Errorf("%w: payload key %q does not match %q", model.ErrValidation, record.Key, key)
	}

	ev, err := s.reg.Update(provider, record)
	if err != nil {
		return registry.Meta{}, err
	}
	if ev != nil {
		s.emit(*ev)
	}
	meta, _ := s.reg.Meta(provider, key)
	return meta, nil
}

func (s *service) WithdrawOffering(ctx context.Context, provider model.ProviderPubkey, key model.OfferingKey) (bool, error) {
	if provider.IsZero() {
		return false, fmt.Errorf("%w: provider pubkey is zero", model.ErrInvalidIdentity)
	}
	ev := s.reg.Remove(provider, key)
	if ev == nil {
		return false, nil
	}
	s.emit(*ev)
	return true, nil
}

func (s *service) WithdrawProvider(ctx context.Context, provider model.ProviderPubkey) (int, error) {
	if provider.IsZero() {
		return 0, fmt.Errorf("%w: provider pubkey is zero", model.ErrInvalidIdentity)
	}
	events := s.reg.RemoveProvider(provider)
	s.emit(events...)
	return len(events), nil
}

func (s *service) GetOffering(ctx context.Context, provider model.ProviderPubkey, key model.OfferingKey) (*model.Offering, registry.Meta, error) {
	o, ok := s.reg.Get(provider, key)
	if !ok {
		return nil, registry.Meta{}, fmt.Errorf("offering %s/%s: %w", provider.Short(), key, model.ErrNotFound)
	}
	meta, _ := s.reg.Meta(provider, key)
	return o, meta, nil
}

func (s *service) ListProviderOfferings(ctx context.Context, provider model.ProviderPubkey) ([]*model.Offering, error) {
	offerings := s.reg.ListByProvider(provider)
	if offerings == nil {
		return nil, fmt.Errorf("provider %s: %w", provider.Short(), model.ErrProviderNotFound)
	}
	return offerings, nil
}

func (s *service) Search(ctx context.Context, q model.SearchQuery) (model.PagedResult, error) {
	page, err := s.reg.Search(q)
	if err != nil {
		return model.PagedResult{}, err
	}
	return *page, nil
}

func (s *service) RegisterCatalog(ctx context.Context, provider model.ProviderPubkey, offerings []*model.Offering) (ApplyResult, error) {
	events, err := s.reg.ReplaceProviderCatalog(provider, offerings)
	if err != nil {
		return ApplyResult{}, err
	}
	s.emit(events...)
	return summarize(events), nil
}

func (s *service) ImportCSV(ctx context.Context, provider model.ProviderPubkey, r io.Reader) (ImportResult, error) {
	offerings, issues, err := registry.ParseCatalogCSV(r)
	if err != nil {
		return ImportResult{}, err
	}

	// A catalog whose every row failed is malformed input, not a
	// request to clear the catalog. A header-only file still clears.
	if len(offerings) == 0 && len(issues) > 0 {
		return ImportResult{Issues: issues}, fmt.Errorf("%w: no importable rows", model.ErrValidation)
	}

	applied, err := s.RegisterCatalog(ctx, provider, offerings)
	if err != nil {
		return ImportResult{Issues: issues}, err
	}
	return ImportResult{
		ApplyResult: applied,
		Imported:    len(offerings),
		Issues:      issues,
	}, nil
}

func (s *service) ExportCSV(ctx context.Context, provider *model.ProviderPubkey, w io.Writer) error {
	var offerings []*model.Offering
	if provider != nil {
		offerings = s.reg.ListByProvider(*provider)
		if offerings == nil {
			return fmt.Errorf("provider %s: %w", provider.Short(), model.ErrProviderNotFound)
		}
	} else {
		for _, p := range s.reg.Providers() {
			offerings = append(offerings, s.reg.ListByProvider(p)...)
		}
	}
	return registry.WriteCatalogCSV(w, offerings)
}

func (s *service) Stats(ctx context.Context) (Stats, error) {
	return Stats{
		Stats:           s.reg.Stats(),
		EventsPublished: s.eventsPublished.Load(),
		EventsDropped:   s.eventsDropped.Load(),
		LastEventUnix:   s.lastEventUnix.Load(),
	}, nil
}

// summarize folds an event list into per-transition counts.
func summarize(events []model.CatalogEvent) ApplyResult {
	var res ApplyResult
	for _, ev := range events {
		switch ev.Type {
		case model.EventPublished:
			res.Published++
		case model.EventUpdated:
			res.Updated++
		case model.EventWithdrawn:
			res.Withdrawn++
		}
	}
	return res
}
