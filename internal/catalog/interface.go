// Package catalog provides the catalog service wrapping the offering
// registry. It owns the write path (publish, update, withdraw, bulk
// replace, CSV import), the read path (lookup, listing, search, CSV
// export), and fans every applied catalog change out as an event on the
// configured pubsub stream.
//
// # Usage
//
//	reg := registry.New(registry.DefaultConfig())
//	svc := catalog.NewService(catalog.DefaultConfig(), reg, bus, logger)
//	svc.Start(ctx)
//
//	meta, err := svc.PublishOffering(ctx, provider, offering)
//	page, err := svc.Search(ctx, query)
package catalog

import (
	"context"
	"io"

	"offerdex/internal/registry"
	"offerdex/pkg/model"
)

// Service is the catalog operation surface exposed to transports.
//
// Offerings returned by reads are shared with the registry and must not
// be modified by callers.
type Service interface {
	// PublishOffering inserts or replaces one offering. Replaying an
	// identical record is a no-op. Returns the record's lifecycle meta
	// after the call.
	PublishOffering(ctx context.Context, provider model.ProviderPubkey, o *model.Offering) (registry.Meta, error)

	// UpdateOffering replaces an offering that must already exist under
	// (provider, key). Returns model.ErrNotFound when it does not.
	UpdateOffering(ctx context.Context, provider model.ProviderPubkey, key model.OfferingKey, o *model.Offering) (registry.Meta, error)

	// WithdrawOffering removes one offering. Withdrawing an absent key
	// is a no-op; the bool reports whether anything was removed.
	WithdrawOffering(ctx context.Context, provider model.ProviderPubkey, key model.OfferingKey) (bool, error)

	// WithdrawProvider removes every offering of the provider and
	// returns how many were withdrawn.
	WithdrawProvider(ctx context.Context, provider model.ProviderPubkey) (int, error)

	// GetOffering returns one offering and its lifecycle meta, or
	// model.ErrNotFound.
	GetOffering(ctx context.Context, provider model.ProviderPubkey, key model.OfferingKey) (*model.Offering, registry.Meta, error)

	// ListProviderOfferings returns the provider's offerings in catalog
	// insertion order, or model.ErrProviderNotFound for a provider with
	// no offerings.
	ListProviderOfferings(ctx context.Context, provider model.ProviderPubkey) ([]*model.Offering, error)

	// Search executes a query and returns one deterministic result page.
	Search(ctx context.Context, q model.SearchQuery) (model.PagedResult, error)

	// RegisterCatalog replaces the provider's whole catalog with the
	// given set. Unchanged records are left untouched.
	RegisterCatalog(ctx context.Context, provider model.ProviderPubkey, offerings []*model.Offering) (ApplyResult, error)

	// ImportCSV parses catalog CSV and replaces the provider's catalog
	// with the rows that parse and validate. Broken rows are reported
	// in the result, not fatal. A file with rows but no importable ones
	// is rejected without touching the catalog.
	ImportCSV(ctx context.Context, provider model.ProviderPubkey, r io.Reader) (ImportResult, error)

	// ExportCSV writes catalog CSV to w: one provider's offerings when
	// provider is non-nil, otherwise every offering grouped by provider
	// in pubkey order.
	ExportCSV(ctx context.Context, provider *model.ProviderPubkey, w io.Writer) error

	// Stats returns catalog and event counters.
	Stats(ctx context.Context) (Stats, error)
}

// LocalService extends Service with lifecycle control for in-process
// hosting.
type LocalService interface {
	Service

	// Start connects the event publisher and begins fanning out events.
	Start(ctx context.Context) error

	// Stop drains pending events and releases the publisher. It blocks
	// until the fan-out worker exits or ctx expires.
	Stop(ctx context.Context) error
}

// ApplyResult summarizes a bulk catalog replacement.
type ApplyResult struct {
	Published int `json:"published"`
	Updated   int `json:"updated"`
	Withdrawn int `json:"withdrawn"`
}

// ImportResult summarizes a CSV import: the bulk outcome plus per-row
// issues for rows that were skipped.
type ImportResult struct {
	ApplyResult
	Imported int                 `json:"imported"`
	Issues   []registry.RowIssue `json:"errors,omitempty"`
}

// Stats are the service counters exposed on the stats endpoint.
type Stats struct {
	registry.Stats

	EventsPublished int64 `json:"events_published"`
	EventsDropped   int64 `json:"events_dropped"`
	LastEventUnix   int64 `json:"last_event_unix,omitempty"`
}
