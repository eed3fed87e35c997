package rest

import (
	"net/http"

	"offerdex/internal/catalog"
	"offerdex/internal/ledger"
)

// statsResponse merges registry counters with record feed counters.
// The feed block is absent when the node runs without one.
type statsResponse struct {
	Catalog catalog.Stats `json:"catalog"`
	Ledger  *ledger.Stats `json:"ledger,omitempty"`
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	cs, err := h.catalog.Stats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := statsResponse{Catalog: cs}
	if h.ledger != nil {
		ls := h.ledger.Stats()
		resp.Ledger = &ls
	}
	writeJSON(w, http.StatusOK, resp)
}

type healthResponse struct {
	Status string `json:"status"`
	// CaughtUp reports whether the record feed backlog has been
	// applied. Omitted when the node runs without a feed.
	CaughtUp *bool `json:"caught_up,omitempty"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if h.ledger != nil {
		caught := h.ledger.Stats().CaughtUp
		resp.CaughtUp = &caught
	}
	writeJSON(w, http.StatusOK, resp)
}
