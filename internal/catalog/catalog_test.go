package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_List(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/products", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"success": true,
			"data": []map[string]any{
				{"id": "kit-1", "name": "Beginner Pottery Kit", "price_cents": 4500, "in_stock": true},
				{"id": "kit-2", "name": "Macrame Starter Set", "price_cents": 2900, "in_stock": false},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 2*time.Second)

	products, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "Beginner Pottery Kit", products[0].Name)
	assert.Equal(t, 4500, products[0].PriceCents)
	assert.False(t, products[1].InStock)
}

func TestClient_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/products/kit-1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"success": true,
			"data":    map[string]any{"id": "kit-1", "name": "Beginner Pottery Kit"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 2*time.Second)

	p, err := c.Get(context.Background(), "kit-1")
	require.NoError(t, err)
	assert.Equal(t, "kit-1", p.ID)
}

func TestClient_CachesResponses(t *testing.T) {
	var hits atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "max-age=60")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"success": true,
			"data":    []map[string]any{{"id": "kit-1", "name": "Beginner Pottery Kit"}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, t.TempDir(), 2*time.Second)

	for range 3 {
		_, err := c.List(context.Background())
		require.NoError(t, err)
	}

	assert.Equal(t, int64(1), hits.Load(), "cacheable responses served from cache")
}

func TestClient_ServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "maintenance"}) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 2*time.Second)

	_, err := c.List(context.Background())
	assert.Error(t, err)
}
