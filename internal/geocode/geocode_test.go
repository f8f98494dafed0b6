// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/cafe-collector/internal/cache"
	"github.com/pdiddy/cafe-collector/internal/retry"
	"github.com/pdiddy/cafe-collector/pkg/types"
)

const okBody = `{"status":"OK","results":[{"place_id":"ChIJ-iconik","geometry":{"location":{"lat":35.665228,"lng":-105.9641583}}}]}`

var testPolicy = retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

// serve starts a fake Geocoding API replying with bodies in order (the
// last one repeats) and returns a call counter.
func serve(t *testing.T, bodies ...string) *atomic.Int32 {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1)) - 1
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		if n >= len(bodies) {
			n = len(bodies) - 1
		}
		w.Write([]byte(bodies[n]))
	}))
	t.Cleanup(srv.Close)
	orig := geocodeURL
	geocodeURL = srv.URL
	t.Cleanup(func() { geocodeURL = orig })
	return &calls
}

func newClient(t *testing.T, key string) (*Client, cache.Store) {
	t.Helper()
	store, err := cache.OpenSQLite(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	cfg := types.GeocodeConfig{APIKey: key}
	return NewClient(cfg, store, 30*24*time.Hour, testPolicy, nil), store
}

func TestResolve_FoundAndCached(t *testing.T) {
	calls := serve(t, okBody)
	c, _ := newClient(t, "test-key")
	ctx := context.Background()

	res, err := c.Resolve(ctx, "1600 Lena St Ste A2, Santa Fe, NM 87505", "Santa Fe")
	require.NoError(t, err)
	assert.Equal(t, Result{Lat: 35.665228, Lon: -105.9641583, PlaceID: "ChIJ-iconik", Found: true}, res)

	again, err := c.Resolve(ctx, "  1600 LENA ST Ste A2,  Santa Fe, NM 87505.", "Santa Fe")
	require.NoError(t, err)
	assert.Equal(t, res, again)
	assert.Equal(t, int32(1), calls.Load(), "normalized address served from cache")
}

func TestResolve_ZeroResultsNotCached(t *testing.T) {
	calls := serve(t, `{"status":"ZERO_RESULTS","results":[]}`)
	c, _ := newClient(t, "test-key")
	ctx := context.Background()

	res, err := c.Resolve(ctx, "nowhere", "")
	require.NoError(t, err)
	assert.False(t, res.Found)

	_, err = c.Resolve(ctx, "nowhere", "")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestResolve_OverQueryLimitRetried(t *testing.T) {
	calls := serve(t, `{"status":"OVER_QUERY_LIMIT"}`, okBody)
	c, _ := newClient(t, "test-key")

	res, err := c.Resolve(context.Background(), "1600 Lena St", "Santa Fe")
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, int32(2), calls.Load())
}

func TestResolve_InvalidRequestNotRetried(t *testing.T) {
	calls := serve(t, `{"status":"INVALID_REQUEST","error_message":"bad address"}`)
	c, _ := newClient(t, "test-key")

	_, err := c.Resolve(context.Background(), "1600 Lena St", "Santa Fe")
	assert.ErrorIs(t, err, types.ErrRequest)
	assert.Equal(t, int32(1), calls.Load())
}

func TestResolve_RequestDeniedIsFatal(t *testing.T) {
	serve(t, `{"status":"REQUEST_DENIED","error_message":"The provided API key is invalid."}`)
	c, _ := newClient(t, "test-key")

	_, err := c.Resolve(context.Background(), "1600 Lena St", "Santa Fe")
	assert.ErrorIs(t, err, types.ErrFatalConfig)
}

func TestResolve_ServerErrorExhausts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	orig := geocodeURL
	geocodeURL = srv.URL
	defer func() { geocodeURL = orig }()

	c, _ := newClient(t, "test-key")
	_, err := c.Resolve(context.Background(), "1600 Lena St", "Santa Fe")
	assert.ErrorIs(t, err, types.ErrTransient)
	assert.Equal(t, int32(3), calls.Load())
}

func TestResolve_DisabledWithoutKey(t *testing.T) {
	calls := serve(t, okBody)
	c, _ := newClient(t, "")

	res, err := c.Resolve(context.Background(), "1600 Lena St", "Santa Fe")
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.False(t, c.Enabled())
	assert.Equal(t, int32(0), calls.Load())
}

func TestResolve_CityInQueryAndKey(t *testing.T) {
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.Query().Get("address"))
		w.Write([]byte(okBody))
	}))
	defer srv.Close()

	store, err := cache.OpenSQLite(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	cfg := types.GeocodeConfig{APIKey: "test-key", HTTPConfig: types.HTTPConfig{Endpoint: srv.URL}}
	c := NewClient(cfg, store, time.Hour, testPolicy, nil)
	ctx := context.Background()

	_, err = c.Resolve(ctx, "100 Main St", "Springfield")
	require.NoError(t, err)
	_, err = c.Resolve(ctx, "100 Main St", "Shelbyville")
	require.NoError(t, err)
	_, err = c.Resolve(ctx, "100 main st, springfield", "Springfield")
	require.NoError(t, err)

	assert.Equal(t, []string{"100 Main St, Springfield", "100 Main St, Shelbyville"}, queries,
		"same street in another city is a separate lookup")
}

func TestQuery(t *testing.T) {
	assert.Equal(t, "100 Main St, Springfield", Query(" 100 Main St ", "Springfield"))
	assert.Equal(t, "1600 Lena St, Santa Fe, NM", Query("1600 Lena St, Santa Fe, NM", "santa fe"))
	assert.Equal(t, "100 Main St", Query("100 Main St", ""))
	assert.Equal(t, "", Query("", "Springfield"))
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "1600 lena st, santa fe", NormalizeAddress("  1600 Lena  St,\tSanta Fe. "))
	assert.Equal(t, "", NormalizeAddress(" ,. "))
}
