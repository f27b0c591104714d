package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Napuu/quorum-vault-auto-unsealer/pkg/unsealer"
	"github.com/Napuu/quorum-vault-auto-unsealer/pkg/vault"
)

// fakeTarget serves only the seal-status endpoint.
func fakeTarget(t *testing.T, initialized, sealed bool) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/sys/seal-status" {
			t.Errorf("Expected to request '/v1/sys/seal-status', got: %s", r.URL.Path)
		}
		fmt.Fprintf(w, `{"initialized": %t, "sealed": %t}`+"\n", initialized, sealed)
	}))
}

func newTestServer(targets []string, discover unsealer.DiscoverFunc) *Server {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := unsealer.NewTargetResolver(targets, discover, log)
	return New(&Config{ListenAddr: ":0", Log: log}, resolver, vault.NewDialer(false), nil)
}

func get(srv *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	srv.getRouter().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(nil, nil)

	w := get(srv, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"alive"}`, w.Body.String())
}

func TestReadyAllTargetsUnsealed(t *testing.T) {
	a := fakeTarget(t, true, false)
	defer a.Close()
	b := fakeTarget(t, true, false)
	defer b.Close()

	srv := newTestServer([]string{a.URL, b.URL}, nil)

	w := get(srv, "/ready")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadySealedTarget(t *testing.T) {
	a := fakeTarget(t, true, false)
	defer a.Close()
	b := fakeTarget(t, true, true)
	defer b.Close()

	srv := newTestServer([]string{a.URL, b.URL}, nil)

	w := get(srv, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReadyUninitializedTarget(t *testing.T) {
	a := fakeTarget(t, false, true)
	defer a.Close()

	srv := newTestServer([]string{a.URL}, nil)

	w := get(srv, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReadyUnreachableTarget(t *testing.T) {
	a := fakeTarget(t, true, false)
	addr := a.URL
	a.Close()

	srv := newTestServer([]string{addr}, nil)

	w := get(srv, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReadyNoTargets(t *testing.T) {
	srv := newTestServer(nil, nil)

	w := get(srv, "/ready")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadyDiscoveryFailure(t *testing.T) {
	srv := newTestServer(nil, func(context.Context) ([]string, error) {
		return nil, fmt.Errorf("pod list: forbidden")
	})

	w := get(srv, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestDrainTogglesReadiness(t *testing.T) {
	target := fakeTarget(t, true, false)
	defer target.Close()

	srv := newTestServer([]string{target.URL}, nil)

	assert.Equal(t, http.StatusOK, get(srv, "/ready").Code)

	assert.Equal(t, http.StatusOK, get(srv, "/drain").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(srv, "/ready").Code)

	assert.Equal(t, http.StatusOK, get(srv, "/undrain").Code)
	assert.Equal(t, http.StatusOK, get(srv, "/ready").Code)
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	w := httptest.NewRecorder()
	srv.getRouter().ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
