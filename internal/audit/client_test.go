package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-io-git/warden/internal/config"
)

func newBridge(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/call-hierarchy/callees", func(w http.ResponseWriter, r *http.Request) {
		var p position
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(symbolsResponse{Items: []string{p.File + ".callee"}})
	})
	mux.HandleFunc("/type-hierarchy/supertypes", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no index", http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/references", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(referencesResponse{Count: 3})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(endpoint string) *config.Config {
	cfg := &config.Config{}
	cfg.Audit.Endpoint = endpoint
	cfg.Audit.RateLimit = 100
	cfg.Audit.Burst = 10
	cfg.HTTPClient.RetryCount = 0
	return cfg
}

func TestHTTPClient(t *testing.T) {
	srv := newBridge(t)
	client := NewHTTPClient(hclog.NewNullLogger(), testConfig(srv.URL))
	ctx := context.Background()

	require.NoError(t, client.Health(ctx))

	callees, err := client.Callees(ctx, "app.py", 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"app.py.callee"}, callees)

	_, err = client.ParentTypes(ctx, "app.py", 4)
	assert.Error(t, err)

	refs, err := client.References(ctx, "app.py", 4)
	require.NoError(t, err)
	assert.Equal(t, 3, refs)
}

func TestHTTPClientThroughBreaker(t *testing.T) {
	srv := newBridge(t)
	svc := NewResilientService(NewHTTPClient(hclog.NewNullLogger(), testConfig(srv.URL)), Options{}, hclog.NewNullLogger(), nil)

	assert.Equal(t, Confirmed, svc.CheckEdge(context.Background(), RelationCalls, "a.py", 1))
	assert.Equal(t, Undetermined, svc.CheckEdge(context.Background(), RelationInherits, "a.py", 1))
	assert.Equal(t, 1, svc.failures)
}

func TestHTTPClientUnreachable(t *testing.T) {
	srv := newBridge(t)
	url := srv.URL
	srv.Close()

	svc := NewResilientService(NewHTTPClient(hclog.NewNullLogger(), testConfig(url)), Options{}, hclog.NewNullLogger(), nil)
	v := svc.ValidateGraph(context.Background(), sampleGraph())
	assert.False(t, v.Available)
	assert.False(t, svc.IsAvailable())
}

func TestHTTPClientRateLimitRefusal(t *testing.T) {
	srv := newBridge(t)
	cfg := testConfig(srv.URL)
	cfg.Audit.RateLimit = 0.01
	cfg.Audit.Burst = 1
	client := NewHTTPClient(hclog.NewNullLogger(), cfg)

	_, err := client.Callees(context.Background(), "app.py", 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.Callees(ctx, "app.py", 1)
	assert.ErrorIs(t, err, ErrRateLimited)
}
