package rest

import (
	"bytes"
	"io"
	"net/http"

	"offerdex/internal/ledger"
	"offerdex/pkg/model"
)

// handlePublishCatalog accepts one signed catalog record, applies it
// locally and appends it to the record feed. The record signature is
// verified against the URL pubkey regardless of bearer auth, so a
// stolen operator token cannot publish on a provider's behalf.
func (h *Handler) handlePublishCatalog(w http.ResponseWriter, r *http.Request) {
	provider, err := providerFromPath(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	rec, err := ledger.DecodeRecord(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid record body: "+err.Error())
		return
	}
	if rec.Provider != provider {
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "Record provider does not match URL pubkey")
		return
	}
	if err := rec.Verify(); err != nil {
		writeServiceError(w, err)
		return
	}

	result, err := h.catalog.ImportCSV(r.Context(), rec.Provider, bytes.NewReader(rec.Payload))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	// The record reached the registry; losing the feed append only
	// delays other nodes, so it is not fatal to the request.
	if h.ledger != nil {
		if err := h.ledger.Append(r.Context(), rec); err != nil {
			h.logger.Warn("Failed to append published record to feed",
				"provider", rec.Provider.Short(), "seq", rec.Seq, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, result)
}

type withdrawProviderResponse struct {
	Provider  model.ProviderPubkey `json:"provider_pubkey"`
	Withdrawn int                  `json:"withdrawn"`
}

func (h *Handler) handleWithdrawProvider(w http.ResponseWriter, r *http.Request) {
	provider, err := providerFromPath(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	n, err := h.catalog.WithdrawProvider(r.Context(), provider)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, withdrawProviderResponse{Provider: provider, Withdrawn: n})
}

type withdrawOfferingResponse struct {
	Provider  model.ProviderPubkey `json:"provider_pubkey"`
	Key       model.OfferingKey    `json:"offering_key"`
	Withdrawn bool                 `json:"withdrawn"`
}

func (h *Handler) handleWithdrawOffering(w http.ResponseWriter, r *http.Request) {
	provider, err := providerFromPath(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	key := r.PathValue("key")

	withdrawn, err := h.catalog.WithdrawOffering(r.Context(), provider, key)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, withdrawOfferingResponse{Provider: provider, Key: key, Withdrawn: withdrawn})
}

// handleImport ingests raw catalog CSV for one provider. Unlike the
// signed publish route there is no provenance on the payload, so the
// route leans entirely on bearer auth; it exists for operator-driven
// loads of local data sets.
func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("provider")
	if raw == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "Missing provider query parameter")
		return
	}
	provider, err := model.PubkeyFromHex(raw)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	result, err := h.catalog.ImportCSV(r.Context(), provider, r.Body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	var provider *model.ProviderPubkey
	if raw := r.URL.Query().Get("provider"); raw != "" {
		pk, err := model.PubkeyFromHex(raw)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		provider = &pk
	}

	// Buffer the CSV so an export error still yields a clean error
	// response instead of a truncated 200.
	var buf bytes.Buffer
	if err := h.catalog.ExportCSV(r.Context(), provider, &buf); err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, &buf); err != nil {
		h.logger.Warn("Failed to stream catalog export", "error", err)
	}
}
