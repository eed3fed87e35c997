package rest

import (
	"fmt"
	"math"
	"net/http"

	"offerdex/internal/registry"
	"offerdex/pkg/model"
)

// searchRequest is the query string surface of GET /v1/search. Names
// follow the published API; gorilla/schema maps them onto the struct.
type searchRequest struct {
	Text           string   `schema:"q"`
	Provider       string   `schema:"provider"`
	Key            string   `schema:"key"`
	Country        string   `schema:"country"`
	City           string   `schema:"city"`
	ProductType    string   `schema:"product_type"`
	Virtualization string   `schema:"virtualization"`
	Stock          string   `schema:"stock"`
	Currency       string   `schema:"currency"`
	PriceMin       *float64 `schema:"price_min"`
	PriceMax       *float64 `schema:"price_max"`
	GPU            *bool    `schema:"gpu"`
	MinCores       uint32   `schema:"min_cores"`
	MinMemoryGB    uint32   `schema:"min_memory_gb"`
	MinStorageGB   uint32   `schema:"min_storage_gb"`
	Offset         int      `schema:"offset"`
	Limit          int      `schema:"limit"`
}

// buildQuery translates the wire request into a search query. Enum
// parameters are validated here so the client learns which one was bad;
// structural rules (pagination bounds, filter sanity) stay with
// SearchQuery.Validate.
func buildQuery(req searchRequest) (model.SearchQuery, error) {
	q := model.NewSearchQuery().
		WithText(req.Text).
		WithOffset(req.Offset).
		WithLimit(req.Limit)

	if req.Provider != "" {
		pk, err := model.PubkeyFromHex(req.Provider)
		if err != nil {
			return q, fmt.Errorf("invalid provider: %w", err)
		}
		q = q.WithProvider(pk)
	}
	if req.Key != "" {
		q = q.WithKey(req.Key)
	}
	if req.Country != "" {
		q = q.WithFilter(model.CountryFilter{Country: req.Country})
	}
	if req.City != "" {
		q = q.WithFilter(model.CityFilter{City: req.City})
	}
	if req.ProductType != "" {
		pt, err := model.ParseProductType(req.ProductType)
		if err != nil {
			return q, fmt.Errorf("invalid product_type: %w", err)
		}
		q = q.WithFilter(model.ProductTypeFilter{Type: pt})
	}
	if req.Virtualization != "" {
		vt, err := model.ParseVirtualizationType(req.Virtualization)
		if err != nil {
			return q, fmt.Errorf("invalid virtualization: %w", err)
		}
		q = q.WithFilter(model.VirtualizationFilter{Type: vt})
	}
	if req.Stock != "" {
		st, err := model.ParseStockStatus(req.Stock)
		if err != nil {
			return q, fmt.Errorf("invalid stock: %w", err)
		}
		q = q.WithFilter(model.StockFilter{Status: st})
	}

	// A price bound needs a currency to be meaningful; a currency alone
	// narrows without bounding.
	if req.PriceMin != nil || req.PriceMax != nil {
		if req.Currency == "" {
			return q, fmt.Errorf("%w: price_min and price_max require currency", model.ErrInvalidQuery)
		}
		cur, err := model.ParseCurrency(req.Currency)
		if err != nil {
			return q, fmt.Errorf("invalid currency: %w", err)
		}
		f := model.PriceRangeFilter{Currency: cur, Max: math.MaxFloat64}
		if req.PriceMin != nil {
			f.Min = *req.PriceMin
		}
		if req.PriceMax != nil {
			f.Max = *req.PriceMax
		}
		q = q.WithFilter(f)
	} else if req.Currency != "" {
		cur, err := model.ParseCurrency(req.Currency)
		if err != nil {
			return q, fmt.Errorf("invalid currency: %w", err)
		}
		q = q.WithFilter(model.CurrencyFilter{Currency: cur})
	}

	if req.GPU != nil {
		q = q.WithFilter(model.GPUFilter{Present: *req.GPU})
	}
	if req.MinCores > 0 {
		q = q.WithFilter(model.MinCoresFilter{Cores: req.MinCores})
	}
	if req.MinMemoryGB > 0 {
		q = q.WithFilter(model.MinMemoryFilter{GB: req.MinMemoryGB})
	}
	if req.MinStorageGB > 0 {
		q = q.WithFilter(model.MinStorageFilter{GB: req.MinStorageGB})
	}
	return q, nil
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := h.decoder.Decode(&req, r.URL.Query()); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid query parameters: "+err.Error())
		return
	}

	q, err := buildQuery(req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	result, err := h.catalog.Search(r.Context(), q)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// offeringResponse pairs an offering with its lifecycle meta.
type offeringResponse struct {
	Provider model.ProviderPubkey `json:"provider_pubkey"`
	Offering *model.Offering      `json:"offering"`
	Meta     registry.Meta        `json:"meta"`
}

func (h *Handler) handleGetOffering(w http.ResponseWriter, r *http.Request) {
	provider, err := providerFromPath(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	key := r.PathValue("key")

	offering, meta, err := h.catalog.GetOffering(r.Context(), provider, key)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, offeringResponse{
		Provider: provider,
		Offering: offering,
		Meta:     meta,
	})
}

// providerOfferingsResponse lists one provider's catalog in publish
// order.
type providerOfferingsResponse struct {
	Provider  model.ProviderPubkey `json:"provider_pubkey"`
	Offerings []*model.Offering    `json:"offerings"`
	Count     int                  `json:"count"`
}

func (h *Handler) handleListProviderOfferings(w http.ResponseWriter, r *http.Request) {
	provider, err := providerFromPath(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	offerings, err := h.catalog.ListProviderOfferings(r.Context(), provider)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, providerOfferingsResponse{
		Provider:  provider,
		Offerings: offerings,
		Count:     len(offerings),
	})
}
