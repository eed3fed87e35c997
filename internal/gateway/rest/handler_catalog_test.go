package rest

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offerdex/internal/catalog"
	"offerdex/internal/identity"
	"offerdex/internal/ledger"
	"offerdex/internal/pubsub/memory"
	"offerdex/pkg/model"
)

// signedCatalog builds a signed publish record carrying the offerings
// as CSV.
func signedCatalog(t *testing.T, offerings ...*model.Offering) (ledger.Record, ed25519.PrivateKey) {
	t.Helper()
	provider, priv, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	rec := ledger.NewRecord(provider, catalogCSV(t, offerings...))
	require.NoError(t, rec.Sign(priv))
	return rec, priv
}

func publishURL(provider model.ProviderPubkey) string {
	return fmt.Sprintf("/v1/providers/%s/catalog", provider.Hex())
}

func TestHandlePublishCatalog(t *testing.T) {
	f := newRestFixture(t)
	rec, _ := signedCatalog(t, validOffering("vm-1"), validOffering("vm-2"))
	body, err := rec.Encode()
	require.NoError(t, err)

	rr := f.do("PUT", publishURL(rec.Provider), bytes.NewReader(body))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	result := decodeBody[catalog.ImportResult](t, rr)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 2, result.Published)
	assert.Empty(t, result.Issues)

	rr = f.do("GET", "/v1/search?provider="+rec.Provider.Hex(), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 2, decodeBody[model.PagedResult](t, rr).Total)
}

func TestHandlePublishCatalogAppendsToFeed(t *testing.T) {
	bus := memory.New()
	t.Cleanup(func() { bus.Close() })

	f := newRestFixtureWithFeed(t, bus)
	rec, _ := signedCatalog(t, validOffering("vm-1"))
	body, err := rec.Encode()
	require.NoError(t, err)

	rr := f.do("PUT", publishURL(rec.Provider), bytes.NewReader(body))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	assert.Equal(t, uint64(1), f.feed.Stats().Appended)
}

// newRestFixtureWithFeed wires the handler to a running record feed on
// the given bus.
func newRestFixtureWithFeed(t *testing.T, bus *memory.Bus) *restFixtureWithFeed {
	t.Helper()

	base := newRestFixture(t)

	cfg := ledger.DefaultConfig()
	cfg.ReplaySettle = model.Duration(20 * time.Millisecond)
	feed := ledger.New(cfg, base.svc, bus, testLogger())
	require.NoError(t, feed.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, feed.Stop(ctx))
	})

	h := NewHandler(base.svc, testLogger(), WithLedger(feed))
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return &restFixtureWithFeed{restFixture: &restFixture{mux: mux, svc: base.svc}, feed: feed}
}

type restFixtureWithFeed struct {
	*restFixture
	feed ledger.Service
}

func TestHandlePublishCatalogProviderMismatch(t *testing.T) {
	f := newRestFixture(t)
	rec, _ := signedCatalog(t, validOffering("vm-1"))
	body, err := rec.Encode()
	require.NoError(t, err)

	rr := f.do("PUT", publishURL(testPubkey(7)), bytes.NewReader(body))
	require.Equal(t, http.StatusForbidden, rr.Code)
	apiErr := decodeBody[APIError](t, rr)
	assert.Equal(t, ErrCodeForbidden, apiErr.Code)
	assert.Contains(t, apiErr.Message, "does not match")
}

func TestHandlePublishCatalogTamperedPayload(t *testing.T) {
	f := newRestFixture(t)
	rec, _ := signedCatalog(t, validOffering("vm-1"))
	rec.Payload = catalogCSV(t, validOffering("vm-1"), validOffering("smuggled"))
	body, err := rec.Encode()
	require.NoError(t, err)

	rr := f.do("PUT", publishURL(rec.Provider), bytes.NewReader(body))
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, ErrCodeForbidden, decodeBody[APIError](t, rr).Code)

	rr = f.do("GET", "/v1/search", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Zero(t, decodeBody[model.PagedResult](t, rr).Total)
}

func TestHandlePublishCatalogUnsigned(t *testing.T) {
	f := newRestFixture(t)
	provider, _, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	rec := ledger.NewRecord(provider, catalogCSV(t, validOffering("vm-1")))
	body, err := rec.Encode()
	require.NoError(t, err)

	rr := f.do("PUT", publishURL(provider), bytes.NewReader(body))
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestHandlePublishCatalogBadBody(t *testing.T) {
	f := newRestFixture(t)

	rr := f.do("PUT", publishURL(testPubkey(1)), strings.NewReader("not json"))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, ErrCodeBadRequest, decodeBody[APIError](t, rr).Code)
}

func TestHandlePublishCatalogBadPubkey(t *testing.T) {
	f := newRestFixture(t)

	rr := f.do("PUT", "/v1/providers/nothex/catalog", strings.NewReader("{}"))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleWithdrawOffering(t *testing.T) {
	f := newRestFixture(t)
	provider := testPubkey(1)
	f.seed(t, provider, validOffering("vm-1"), validOffering("vm-2"))

	rr := f.do("DELETE", fmt.Sprintf("/v1/providers/%s/offerings/vm-1", provider.Hex()), nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decodeBody[withdrawOfferingResponse](t, rr)
	assert.True(t, resp.Withdrawn)
	assert.Equal(t, model.OfferingKey("vm-1"), resp.Key)

	// Withdrawing again reports nothing removed.
	rr = f.do("DELETE", fmt.Sprintf("/v1/providers/%s/offerings/vm-1", provider.Hex()), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, decodeBody[withdrawOfferingResponse](t, rr).Withdrawn)

	rr = f.do("GET", fmt.Sprintf("/v1/offerings/%s/vm-1", provider.Hex()), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleWithdrawProvider(t *testing.T) {
	f := newRestFixture(t)
	provider := testPubkey(1)
	f.seed(t, provider, validOffering("vm-1"), validOffering("vm-2"))
	f.seed(t, testPubkey(2), validOffering("other"))

	rr := f.do("DELETE", fmt.Sprintf("/v1/providers/%s/catalog", provider.Hex()), nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 2, decodeBody[withdrawProviderResponse](t, rr).Withdrawn)

	rr = f.do("GET", "/v1/search", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, decodeBody[model.PagedResult](t, rr).Total)
}

func TestHandleImport(t *testing.T) {
	f := newRestFixture(t)
	provider := testPubkey(1)
	body := catalogCSV(t, validOffering("vm-1"), validOffering("vm-2"))

	rr := f.do("POST", "/v1/import?provider="+provider.Hex(), bytes.NewReader(body))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	result := decodeBody[catalog.ImportResult](t, rr)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 2, result.Published)
}

func TestHandleImportReportsRowIssues(t *testing.T) {
	f := newRestFixture(t)
	csv := string(catalogCSV(t, validOffering("vm-1"))) + "garbage row\n"

	rr := f.do("POST", "/v1/import?provider="+testPubkey(1).Hex(), strings.NewReader(csv))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	result := decodeBody[catalog.ImportResult](t, rr)
	assert.Equal(t, 1, result.Imported)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, 2, result.Issues[0].Row)
}

func TestHandleImportMissingProvider(t *testing.T) {
	f := newRestFixture(t)

	rr := f.do("POST", "/v1/import", strings.NewReader("x"))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeBody[APIError](t, rr).Message, "provider")
}

func TestHandleImportBadProvider(t *testing.T) {
	f := newRestFixture(t)

	rr := f.do("POST", "/v1/import?provider=nothex", strings.NewReader("x"))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleExport(t *testing.T) {
	f := newRestFixture(t)
	f.seed(t, testPubkey(1), validOffering("vm-1"))
	f.seed(t, testPubkey(2), validOffering("bare-1"))

	rr := f.do("GET", "/v1/export", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	body := rr.Body.String()
	assert.Contains(t, body, "Offer Name")
	assert.Contains(t, body, "vm-1")
	assert.Contains(t, body, "bare-1")
}

func TestHandleExportProviderScoped(t *testing.T) {
	f := newRestFixture(t)
	f.seed(t, testPubkey(1), validOffering("vm-1"))
	f.seed(t, testPubkey(2), validOffering("bare-1"))

	rr := f.do("GET", "/v1/export?provider="+testPubkey(1).Hex(), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "vm-1")
	assert.NotContains(t, rr.Body.String(), "bare-1")
}

func TestHandleExportUnknownProvider(t *testing.T) {
	f := newRestFixture(t)

	rr := f.do("GET", "/v1/export?provider="+testPubkey(9).Hex(), nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleExportBadProvider(t *testing.T) {
	f := newRestFixture(t)

	rr := f.do("GET", "/v1/export?provider=nothex", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

// The import round trip: what export writes, import accepts.
func TestHandleExportImportRoundTrip(t *testing.T) {
	f := newRestFixture(t)
	f.seed(t, testPubkey(1), validOffering("vm-1"), validOffering("vm-2"))

	rr := f.do("GET", "/v1/export?provider="+testPubkey(1).Hex(), nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do("POST", "/v1/import?provider="+testPubkey(3).Hex(), bytes.NewReader(rr.Body.Bytes()))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	result := decodeBody[catalog.ImportResult](t, rr)
	assert.Equal(t, 2, result.Imported)
	assert.Empty(t, result.Issues)
}
