package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"offerdex/internal/catalog"
	"offerdex/internal/gateway/rest"
	"offerdex/internal/ledger"
	"offerdex/internal/registry"
	"offerdex/pkg/model"
)

// apiClient wraps the node's HTTP API for the operator commands.
type apiClient struct {
	base  string
	token string
	http  *http.Client
}

func newAPIClient(addr, token string) *apiClient {
	return &apiClient{
		base:  strings.TrimRight(addr, "/"),
		token: token,
		http:  &http.Client{Timeout: 60 * time.Second},
	}
}

type offeringResult struct {
	Provider model.ProviderPubkey `json:"provider_pubkey"`
	Offering *model.Offering      `json:"offering"`
	Meta     registry.Meta        `json:"meta"`
}

type providerOfferings struct {
	Provider  model.ProviderPubkey `json:"provider"`
	Offerings []*model.Offering    `json:"offerings"`
	Count     int                  `json:"count"`
}

type withdrawProviderResult struct {
	Provider  model.ProviderPubkey `json:"provider"`
	Withdrawn int                  `json:"withdrawn"`
}

type withdrawOfferingResult struct {
	Provider  model.ProviderPubkey `json:"provider"`
	Key       model.OfferingKey    `json:"key"`
	Withdrawn bool                 `json:"withdrawn"`
}

type nodeStats struct {
	Catalog catalog.Stats `json:"catalog"`
	Ledger  *ledger.Stats `json:"ledger,omitempty"`
}

func (c *apiClient) do(ctx context.Context, method, path string, query url.Values, contentType string, body io.Reader, out any) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if w, ok := out.(io.Writer); ok {
		_, err = io.Copy(w, resp.Body)
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apiErr rest.APIError
	if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Message != "" {
		return fmt.Errorf("%s (HTTP %d): %s", apiErr.Code, resp.StatusCode, apiErr.Message)
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
}

func (c *apiClient) Search(ctx context.Context, params url.Values) (model.PagedResult, error) {
	var res model.PagedResult
	err := c.do(ctx, http.MethodGet, "/v1/search", params, "", nil, &res)
	return res, err
}

func (c *apiClient) GetOffering(ctx context.Context, provider, key string) (offeringResult, error) {
	var res offeringResult
	path := "/v1/offerings/" + url.PathEscape(provider) + "/" + url.PathEscape(key)
	err := c.do(ctx, http.MethodGet, path, nil, "", nil, &res)
	return res, err
}

func (c *apiClient) ListProvider(ctx context.Context, provider string) (providerOfferings, error) {
	var res providerOfferings
	path := "/v1/providers/" + url.PathEscape(provider) + "/offerings"
	err := c.do(ctx, http.MethodGet, path, nil, "", nil, &res)
	return res, err
}

// PublishCatalog sends a signed record to the provider's catalog
// endpoint. The record carries the CSV payload and must already be
// signed by the provider's key.
func (c *apiClient) PublishCatalog(ctx context.Context, rec ledger.Record) (catalog.ImportResult, error) {
	var res catalog.ImportResult
	body, err := rec.Encode()
	if err != nil {
		return res, fmt.Errorf("encoding record: %w", err)
	}
	path := "/v1/providers/" + rec.Provider.Hex() + "/catalog"
	err = c.do(ctx, http.MethodPut, path, nil, "application/json", bytes.NewReader(body), &res)
	return res, err
}

func (c *apiClient) WithdrawProvider(ctx context.Context, provider string) (withdrawProviderResult, error) {
	var res withdrawProviderResult
	path := "/v1/providers/" + url.PathEscape(provider) + "/catalog"
	err := c.do(ctx, http.MethodDelete, path, nil, "", nil, &res)
	return res, err
}

func (c *apiClient) WithdrawOffering(ctx context.Context, provider, key string) (withdrawOfferingResult, error) {
	var res withdrawOfferingResult
	path := "/v1/providers/" + url.PathEscape(provider) + "/offerings/" + url.PathEscape(key)
	err := c.do(ctx, http.MethodDelete, path, nil, "", nil, &res)
	return res, err
}

func (c *apiClient) ImportCSV(ctx context.Context, provider string, csv io.Reader) (catalog.ImportResult, error) {
	var res catalog.ImportResult
	q := url.Values{"provider": {provider}}
	err := c.do(ctx, http.MethodPost, "/v1/import", q, "text/csv", csv, &res)
	return res, err
}

// ExportCSV streams the catalog dump into w. An empty provider exports
// every provider's offerings.
func (c *apiClient) ExportCSV(ctx context.Context, provider string, w io.Writer) error {
	var q url.Values
	if provider != "" {
		q = url.Values{"provider": {provider}}
	}
	return c.do(ctx, http.MethodGet, "/v1/export", q, "", nil, w)
}

func (c *apiClient) Stats(ctx context.Context) (nodeStats, error) {
	var res nodeStats
	err := c.do(ctx, http.MethodGet, "/v1/stats", nil, "", nil, &res)
	return res, err
}
