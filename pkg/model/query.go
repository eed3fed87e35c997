package model

import "fmt"

const (
	// DefaultPageSize applies when a query carries no limit.
	DefaultPageSize = 50
	// MaxPageSize caps the page size a query may request.
	MaxPageSize = 1000
)

// SearchQuery describes one registry search. All parts are optional; the
// zero query matches every visible offering. When both Provider and Key
// are set the query is a direct lookup and no other part is consulted.
type SearchQuery struct {
	Provider *ProviderPubkey
	Key      *OfferingKey
	Text     string
	Filters  Filters
	Offset   int
	Limit    int
}

// NewSearchQuery returns an empty query for builder-style construction.
func NewSearchQuery() SearchQuery { return SearchQuery{} }

// WithProvider restricts the query to one provider's offerings.
func (q SearchQuery) WithProvider(pk ProviderPubkey) SearchQuery {
	q.Provider = &pk
	return q
}

// WithKey restricts the query to one offering key.
func (q SearchQuery) WithKey(key OfferingKey) SearchQuery {
	q.Key = &key
	return q
}

// WithText sets the free-text part of the query.
func (q SearchQuery) WithText(text string) SearchQuery {
	q.Text = text
	return q
}

// WithFilter appends a structured predicate.
func (q SearchQuery) WithFilter(f OfferingFilter) SearchQuery {
	q.Filters = append(q.Filters[:len(q.Filters):len(q.Filters)], f)
	return q
}

// WithOffset sets the pagination offset.
func (q SearchQuery) WithOffset(offset int) SearchQuery {
	q.Offset = offset
	return q
}

// WithLimit sets the page size.
func (q SearchQuery) WithLimit(limit int) SearchQuery {
	q.Limit = limit
	return q
}

// IsDirectLookup reports whether the query names one exact offering.
func (q SearchQuery) IsDirectLookup() bool {
	return q.Provider != nil && q.Key != nil
}

// EffectiveLimit resolves the page size: the default when unset, capped at
// MaxPageSize otherwise.
func (q SearchQuery) EffectiveLimit() int {
	if q.Limit <= 0 {
		return DefaultPageSize
	}
	if q.Limit > MaxPageSize {
		return MaxPageSize
	}
	return q.Limit
}

// Validate checks pagination bounds and every filter operand.
func (q SearchQuery) Validate() error {
	if q.Offset < 0 {
		return fmt.Errorf("%w: negative offset %d", ErrInvalidQuery, q.Offset)
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: negative limit %d", ErrInvalidQuery, q.Limit)
	}
	if q.Limit > MaxPageSize {
		return fmt.Errorf("%w: limit %d above maximum %d", ErrInvalidQuery, q.Limit, MaxPageSize)
	}
	if q.Provider != nil && q.Provider.IsZero() {
		return fmt.Errorf("%w: provider pubkey is zero", ErrInvalidQuery)
	}
	if q.Key != nil && *q.Key == "" {
		return fmt.Errorf("%w: offering key is empty", ErrInvalidQuery)
	}
	return q.Filters.Validate()
}

// Listing pairs an offering with the provider that published it. Search
// results cross provider namespaces, so the record alone would be
// ambiguous.
type Listing struct {
	Provider ProviderPubkey `json:"provider_pubkey"`
	Offering *Offering      `json:"offering"`
}

// ID returns the listing's registry identity.
func (l Listing) ID() OfferingID {
	return OfferingID{Provider: l.Provider, Key: l.Offering.Key}
}

// PagedResult is one page of search results plus the total match count
// before pagination.
type PagedResult struct {
	Listings []Listing `json:"offerings"`
	Total    int       `json:"total_count"`
	Offset   int       `json:"offset"`
	Limit    int       `json:"limit"`
}

// HasMore reports whether matches exist beyond this page.
func (r PagedResult) HasMore() bool {
	return r.Offset+len(r.Listings) < r.Total
}
