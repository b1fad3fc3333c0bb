// Package catalog is the craft-kit product browsing client. The catalog is
// public, server-cached data, so requests go through a caching transport
// rather than the authenticated session client.
package catalog

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/craftden/craftden/internal/api"
)

// Product is a craft kit in the catalog.
type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceCents  int    `json:"price_cents"`
	InStock     bool   `json:"in_stock"`
}

// Client fetches catalog data.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a catalog client. cacheDir enables a disk-backed
// response cache; empty means in-memory caching only.
func NewClient(baseURL, cacheDir string, timeout time.Duration) *Client {
	httpClient := NewCachingHTTPClient(cacheDir)
	if timeout > 0 {
		httpClient.Timeout = timeout
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

// List returns all products.
func (c *Client) List(ctx context.Context) ([]Product, error) {
	var products []Product
	if err := c.get(ctx, "/api/products", &products); err != nil {
		return nil, err
	}
	return products, nil
}

// Get returns a single product by ID.
func (c *Client) Get(ctx context.Context, id string) (*Product, error) {
	var product Product
	if err := c.get(ctx, "/api/products/"+id, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return api.NewTransportError(err)
	}
	defer resp.Body.Close()

	return api.DecodeResponse(resp, out)
}
