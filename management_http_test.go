package tiercache

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/longbridgeapp/assert"
)

// TestManagementHTTP_BasicEndpoints spins up the management server on an
// ephemeral port and validates the core endpoints against a live cache.
func TestManagementHTTP_BasicEndpoints(t *testing.T) {
	ctx := context.Background()
	tc := newMemoryOnlyCache(t)

	srv := NewManagementHTTPServer("127.0.0.1:0")
	assert.Nil(t, srv.Start(ctx, tc))

	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})

	// wait briefly for listener
	time.Sleep(30 * time.Millisecond)

	addr := srv.Address()
	assert.True(t, addr != "")

	client := &http.Client{Timeout: 2 * time.Second}

	// /health
	resp, err := client.Get("http://" + addr + "/health")
	assert.Nil(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	// /stats
	resp, err = client.Get("http://" + addr + "/stats")
	assert.Nil(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var statsBody map[string]any

	err = json.NewDecoder(resp.Body).Decode(&statsBody)
	assert.Nil(t, err)
	_ = resp.Body.Close()

	// /capabilities
	resp, err = client.Get("http://" + addr + "/capabilities")
	assert.Nil(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var capsBody map[string]any

	err = json.NewDecoder(resp.Body).Decode(&capsBody)
	assert.Nil(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, "none", capsBody["tier"])
	assert.Equal(t, false, capsBody["enhancedMode"])

	// /diagnostics
	resp, err = client.Get("http://" + addr + "/diagnostics")
	assert.Nil(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestManagementHTTP_InvalidateAndClear(t *testing.T) {
	ctx := context.Background()
	tc := newMemoryOnlyCache(t)

	srv := NewManagementHTTPServer("127.0.0.1:0")
	assert.Nil(t, srv.Start(ctx, tc))

	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	time.Sleep(30 * time.Millisecond)

	client := &http.Client{Timeout: 2 * time.Second}
	base := "http://" + srv.Address()

	assert.Nil(t, tc.Cache(ctx, "doomed", "v", 0))

	// Missing key is a bad request.
	resp, err := client.Post(base+"/invalidate", "", nil)
	assert.Nil(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = client.Post(base+"/invalidate?key=doomed", "", nil)
	assert.Nil(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	_, ok := tc.Get(ctx, "doomed")
	assert.False(t, ok)

	assert.Nil(t, tc.Cache(ctx, "flushed", "v", 0))

	resp, err = client.Post(base+"/clear", "", nil)
	assert.Nil(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	_, ok = tc.Get(ctx, "flushed")
	assert.False(t, ok)
}

func TestManagementHTTP_BearerToken(t *testing.T) {
	ctx := context.Background()
	tc := newMemoryOnlyCache(t)

	srv := NewManagementHTTPServer("127.0.0.1:0", WithMgmtBearerToken("sesame"))
	assert.Nil(t, srv.Start(ctx, tc))

	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	time.Sleep(30 * time.Millisecond)

	client := &http.Client{Timeout: 2 * time.Second}
	base := "http://" + srv.Address()

	// No token.
	resp, err := client.Get(base + "/health")
	assert.Nil(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()

	// Wrong token.
	req, err := http.NewRequest(http.MethodGet, base+"/health", nil)
	assert.Nil(t, err)
	req.Header.Set("Authorization", "Bearer open")

	resp, err = client.Do(req)
	assert.Nil(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()

	// Right token.
	req, err = http.NewRequest(http.MethodGet, base+"/health", nil)
	assert.Nil(t, err)
	req.Header.Set("Authorization", "Bearer sesame")

	resp, err = client.Do(req)
	assert.Nil(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}
