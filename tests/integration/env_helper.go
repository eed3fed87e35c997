package integration

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"offerdex/internal/config"
	"offerdex/internal/identity"
	"offerdex/internal/ledger"
	"offerdex/internal/registry"
	"offerdex/internal/services"
	"offerdex/pkg/model"
)

var httpClient = &http.Client{Timeout: 5 * time.Second}

// ServiceEnv is one self-contained node listening on a loopback port.
type ServiceEnv struct {
	BaseURL string
	Manager *services.Manager
	Cancel  func()
}

// setupServiceEnv boots a full node: in-process bus, record feed,
// catalog, watch stream, and the HTTP listener. Each call gets its own
// port so tests can run in parallel.
func setupServiceEnv(t *testing.T, modifiers ...func(*config.Config)) *ServiceEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.HTTPPort = getFreePort(t)
	cfg.Ledger.ReplaySettle = model.Duration(50 * time.Millisecond)
	cfg.Ledger.ReplayWait = model.Duration(5 * time.Second)
	for _, mod := range modifiers {
		mod(cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager := services.NewManager(cfg, logger)
	require.NoError(t, manager.Init(context.Background()))

	mgrCtx, mgrCancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- manager.Run(mgrCtx) }()

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.HTTPPort)
	waitForHealth(t, baseURL)

	return &ServiceEnv{
		BaseURL: baseURL,
		Manager: manager,
		Cancel: func() {
			mgrCancel()
			select {
			case <-runDone:
			case <-time.After(5 * time.Second):
				t.Error("node did not stop after cancel")
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			manager.Shutdown(shutdownCtx)
		},
	}
}

// MakeRequest performs one API call against the node. The caller owns
// the response body.
func (e *ServiceEnv) MakeRequest(t *testing.T, method, path string, body io.Reader, token string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, e.BaseURL+path, body)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := httpClient.Do(req)
	require.NoError(t, err)
	return resp
}

// decodeResponse reads and closes the body.
func decodeResponse[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func drainResponse(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

func testOffering(key model.OfferingKey) *model.Offering {
	return &model.Offering{
		Key:               key,
		OfferName:         "Budget VPS " + key,
		Description:       "Small virtual server for development workloads",
		Currency:          model.CurrencyEUR,
		MonthlyPrice:      10,
		Visibility:        model.VisibilityVisible,
		ProductType:       model.ProductVPS,
		Virtualization:    model.VirtKVM,
		BillingInterval:   model.BillingMonthly,
		Stock:             model.StockInStock,
		ProcessorCores:    model.Ptr[uint32](4),
		DatacenterCountry: "DE",
		DatacenterCity:    "Frankfurt",
	}
}

func catalogCSV(t *testing.T, offerings ...*model.Offering) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, registry.WriteCatalogCSV(&buf, offerings))
	return buf.Bytes()
}

// signedRecordBody builds the publish request body: a catalog CSV
// wrapped in a record signed with the provider's key.
func signedRecordBody(t *testing.T, priv ed25519.PrivateKey, offerings ...*model.Offering) (model.ProviderPubkey, []byte) {
	t.Helper()

	provider, err := identity.PublicKeyOf(priv)
	require.NoError(t, err)
	rec := ledger.NewRecord(provider, catalogCSV(t, offerings...))
	require.NoError(t, rec.Sign(priv))
	body, err := rec.Encode()
	require.NoError(t, err)
	return provider, body
}

func getFreePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port
}

func waitForHealth(t *testing.T, baseURL string) {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := httpClient.Get(baseURL + "/healthz")
		if err == nil {
			drainResponse(resp)
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("node at %s did not become healthy", baseURL)
}
