package registry

import (
	"sort"

	"offerdex/pkg/model"
)

// accessPath names the candidate source a query plan starts from.
type accessPath string

const (
	pathPrimary  accessPath = "primary"
	pathProvider accessPath = "provider"
	pathText     accessPath = "text"
	pathFilter   accessPath = "filter"
	pathScan     accessPath = "scan"
)

// selectivityRank orders predicates for the residual filter pass, most
// selective first. GPU presence and exact categorical matches usually
// eliminate the most candidates; wide numeric ranges and GPU absence the
// fewest.
func selectivityRank(f model.OfferingFilter) int {
	switch f := f.(type) {
	case model.GPUFilter:
		if f.Present {
			return 1
		}
		return 12
	case model.VirtualizationFilter:
		return 2
	case model.ProductTypeFilter:
		return 3
	case model.CountryFilter:
		return 4
	case model.CurrencyFilter:
		return 5
	case model.StockFilter:
		return 6
	case model.MinCoresFilter:
		return 7
	case model.MinMemoryFilter:
		return 8
	case model.MinStorageFilter:
		return 9
	case model.CityFilter:
		return 10
	case model.PriceRangeFilter:
		return 11
	default:
		return 13
	}
}

// orderBySelectivity returns the filters sorted for the residual pass.
func orderBySelectivity(filters model.Filters) model.Filters {
	out := make(model.Filters, len(filters))
	copy(out, filters)
	sort.SliceStable(out, func(i, j int) bool {
		return selectivityRank(out[i]) < selectivityRank(out[j])
	})
	return out
}

// indexedCandidates resolves one filter against its dedicated index.
// The second return is false for predicate kinds with no index backing
// (city substring, spec thresholds, GPU absence).
func (r *Registry) indexedCandidates(f model.OfferingFilter) (idSet, bool) {
	switch f := f.(type) {
	case model.CountryFilter:
		return r.filters.Country(f.Country), true
	case model.ProductTypeFilter:
		return r.filters.ProductType(f.Type), true
	case model.StockFilter:
		return r.filters.Stock(f.Status), true
	case model.CurrencyFilter:
		return r.filters.Currency(f.Currency), true
	case model.VirtualizationFilter:
		return r.filters.Virtualization(f.Type), true
	case model.GPUFilter:
		if f.Present {
			return r.filters.WithGPU(), true
		}
		return nil, false
	case model.PriceRangeFilter:
		return r.filters.PriceRange(f.Currency, f.Min, f.Max), true
	default:
		return nil, false
	}
}

// indexedCount estimates the candidate count a filter's index would
// yield, without materializing range scans.
func (r *Registry) indexedCount(f model.OfferingFilter) (int, bool) {
	switch f := f.(type) {
	case model.CountryFilter:
		return len(r.filters.Country(f.Country)), true
	case model.ProductTypeFilter:
		return len(r.filters.ProductType(f.Type)), true
	case model.StockFilter:
		return len(r.filters.Stock(f.Status)), true
	case model.CurrencyFilter:
		return len(r.filters.Currency(f.Currency)), true
	case model.VirtualizationFilter:
		return len(r.filters.Virtualization(f.Type)), true
	case model.GPUFilter:
		if f.Present {
			return len(r.filters.WithGPU()), true
		}
		return 0, false
	case model.PriceRangeFilter:
		return r.filters.PriceRangeCount(f.Currency, f.Min, f.Max), true
	default:
		return 0, false
	}
}

// plan is the resolved access strategy for one query.
type plan struct {
	path accessPath
	// candidates is the initial candidate set; nil when path is pathScan
	// (iterate the primary store) or pathPrimary (single identity).
	candidates idSet
	// residual are the predicates applied as a linear pass, ordered most
	// selective first.
	residual model.Filters
	// textTokens are the normalized query tokens when the text part
	// constrains the query; scoring ranks by them.
	textTokens []string
}

// planLocked selects the most selective access path for q. Called with
// the read lock held.
//
// Order of preference: a direct identity is served from the primary store
// alone; a text term makes the keyword index the candidate source; a
// provider scope narrows to that provider's keys; otherwise the best
// backed filter supplies candidates, measured by actual bucket sizes.
// Only a query with none of these scans the primary store.
func (r *Registry) planLocked(q model.SearchQuery) plan {
	if q.IsDirectLookup() {
		return plan{
			path:       pathPrimary,
			residual:   orderBySelectivity(q.Filters),
			textTokens: r.text.QueryTokens(q.Text),
		}
	}

	if q.Text != "" {
		if candidates, constrained := r.text.Candidates(q.Text); constrained {
			return plan{
				path:       pathText,
				candidates: candidates,
				residual:   orderBySelectivity(q.Filters),
				textTokens: r.text.QueryTokens(q.Text),
			}
		}
	}

	if q.Provider != nil {
		candidates := make(idSet)
		if pc, ok := r.byProvider[*q.Provider]; ok {
			for key := range pc.members {
				candidates[model.OfferingID{Provider: *q.Provider, Key: key}] = struct{}{}
			}
		}
		return plan{
			path:       pathProvider,
			candidates: candidates,
			residual:   orderBySelectivity(q.Filters),
		}
	}

	if len(q.Filters) > 0 {
		best := -1
		bestCount := 0
		for i, f := range q.Filters {
			count, ok := r.indexedCount(f)
			if !ok {
				continue
			}
			if best < 0 || count < bestCount {
				best = i
				bestCount = count
			}
		}
		if best >= 0 {
			candidates, _ := r.indexedCandidates(q.Filters[best])
			residual := make(model.Filters, 0, len(q.Filters)-1)
			residual = append(residual, q.Filters[:best]...)
			residual = append(residual, q.Filters[best+1:]...)
			return plan{
				path:       pathFilter,
				candidates: candidates,
				residual:   orderBySelectivity(residual),
			}
		}
	}

	return plan{path: pathScan, residual: orderBySelectivity(q.Filters)}
}

// match is one record that survived the filter pass.
type match struct {
	id model.OfferingID
	e  *entry
	// fieldsMatched and tokenHits are the relevance signals for text
	// queries; zero otherwise.
	fieldsMatched int
	tokenHits     int
}

// scoreMatch fills in the relevance signals: the number of descriptive
// fields containing at least one query token, then the total number of
// distinct (field, token) hits.
func scoreMatch(m *match, tokens []string, minTokenLen int) {
	if len(tokens) == 0 {
		return
	}
	for _, field := range m.e.offering.SearchableText() {
		fieldTokens := tokenize(field, minTokenLen)
		set := make(map[string]struct{}, len(fieldTokens))
		for _, t := range fieldTokens {
			set[t] = struct{}{}
		}
		hits := 0
		for _, t := range tokens {
			if _, ok := set[t]; ok {
				hits++
			}
		}
		if hits > 0 {
			m.fieldsMatched++
			m.tokenHits += hits
		}
	}
}

// Search executes the query: plan, candidate collection, residual filter
// pass, deterministic ranking, pagination. An empty result page is a
// successful outcome, not an error.
func (r *Registry) Search(q model.SearchQuery) (*model.PagedResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	limit := q.EffectiveLimit()

	r.mu.RLock()
	defer r.mu.RUnlock()

	p := r.planLocked(q)

	accept := func(id model.OfferingID, e *entry) bool {
		if q.Key != nil && id.Key != *q.Key {
			return false
		}
		if q.Provider != nil && id.Provider != *q.Provider {
			return false
		}
		for _, f := range p.residual {
			if !f.Matches(e.offering) {
				return false
			}
		}
		return true
	}

	var matches []match
	switch p.path {
	case pathPrimary:
		id := model.OfferingID{Provider: *q.Provider, Key: *q.Key}
		if e, ok := r.primary[id]; ok {
			if r.text.HasAllTokens(id, p.textTokens) && p.residual.Match(e.offering) {
				matches = append(matches, match{id: id, e: e})
			}
		}
	case pathScan:
		for id, e := range r.primary {
			if accept(id, e) {
				matches = append(matches, match{id: id, e: e})
			}
		}
	default:
		for id := range p.candidates {
			e, ok := r.primary[id]
			if !ok {
				continue
			}
			if accept(id, e) {
				matches = append(matches, match{id: id, e: e})
			}
		}
	}

	ranked := p.path == pathText && len(p.textTokens) > 0
	if ranked {
		for i := range matches {
			scoreMatch(&matches[i], p.textTokens, r.text.minTokenLen)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if ranked {
			if a.fieldsMatched != b.fieldsMatched {
				return a.fieldsMatched > b.fieldsMatched
			}
			if a.tokenHits != b.tokenHits {
				return a.tokenHits > b.tokenHits
			}
		}
		return a.id.Compare(b.id) < 0
	})

	total := len(matches)
	start := q.Offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	listings := make([]model.Listing, 0, end-start)
	for _, m := range matches[start:end] {
		listings = append(listings, model.Listing{Provider: m.id.Provider, Offering: m.e.offering})
	}

	return &model.PagedResult{
		Listings: listings,
		Total:    total,
		Offset:   q.Offset,
		Limit:    limit,
	}, nil
}
