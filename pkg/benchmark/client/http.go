// Package client provides the HTTP client the load generator drives a
// node with.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"offerdex/internal/ledger"
	"offerdex/pkg/model"
)

// HTTPClient implements types.Client against the node's REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a client for the node at baseURL. The token is
// optional; it is sent as a bearer token when set.
func NewHTTPClient(baseURL, token string) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL scheme %q", u.Scheme)
	}

	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// Search runs a catalog search with the given query parameters.
func (c *HTTPClient) Search(ctx context.Context, params url.Values) (*model.PagedResult, error) {
	u := c.baseURL + "/v1/search"
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var page model.PagedResult
	if err := c.doRequest(ctx, http.MethodGet, u, "", nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetOffering fetches one offering by provider and key.
func (c *HTTPClient) GetOffering(ctx context.Context, provider model.ProviderPubkey, key model.OfferingKey) (*model.Offering, error) {
	u := fmt.Sprintf("%s/v1/offerings/%s/%s", c.baseURL, provider.Hex(), url.PathEscape(key))

	var res struct {
		Offering *model.Offering `json:"offering"`
	}
	if err := c.doRequest(ctx, http.MethodGet, u, "", nil, &res); err != nil {
		return nil, err
	}
	return res.Offering, nil
}

// ListProvider returns how many offerings the provider currently has
// published.
func (c *HTTPClient) ListProvider(ctx context.Context, provider model.ProviderPubkey) (int, error) {
	u := fmt.Sprintf("%s/v1/providers/%s/offerings", c.baseURL, provider.Hex())

	var res struct {
		Count int `json:"count"`
	}
	if err := c.doRequest(ctx, http.MethodGet, u, "", nil, &res); err != nil {
		return 0, err
	}
	return res.Count, nil
}

// PublishCatalog submits a signed catalog record and returns how many
// offerings the node accepted from it.
func (c *HTTPClient) PublishCatalog(ctx context.Context, rec ledger.Record) (int, error) {
	body, err := rec.Encode()
	if err != nil {
		return 0, fmt.Errorf("encoding record: %w", err)
	}
	u := fmt.Sprintf("%s/v1/providers/%s/catalog", c.baseURL, rec.Provider.Hex())

	var res struct {
		Imported int `json:"imported"`
	}
	if err := c.doRequest(ctx, http.MethodPut, u, "application/json", body, &res); err != nil {
		return 0, err
	}
	return res.Imported, nil
}

// WithdrawOffering removes one offering.
func (c *HTTPClient) WithdrawOffering(ctx context.Context, provider model.ProviderPubkey, key model.OfferingKey) error {
	u := fmt.Sprintf("%s/v1/providers/%s/offerings/%s", c.baseURL, provider.Hex(), url.PathEscape(key))
	return c.doRequest(ctx, http.MethodDelete, u, "", nil, nil)
}

// WithdrawProvider removes the provider's whole catalog and returns how
// many offerings that withdrew.
func (c *HTTPClient) WithdrawProvider(ctx context.Context, provider model.ProviderPubkey) (int, error) {
	u := fmt.Sprintf("%s/v1/providers/%s/catalog", c.baseURL, provider.Hex())

	var res struct {
		Withdrawn int `json:"withdrawn"`
	}
	if err := c.doRequest(ctx, http.MethodDelete, u, "", nil, &res); err != nil {
		return 0, err
	}
	return res.Withdrawn, nil
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// doRequest performs one request and decodes a JSON response into
// result when it is non-nil.
func (c *HTTPClient) doRequest(ctx context.Context, method, urlStr, contentType string, body []byte, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// The body is capped so error strings stay short enough to key
		// the error distribution on.
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(data)),
		}
	}

	if result == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("unmarshaling response: %w", err)
	}
	return nil
}

// HTTPError is a non-2xx response from the node.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// AsHTTPError unwraps an HTTPError from err if there is one.
func AsHTTPError(err error) (*HTTPError, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}
