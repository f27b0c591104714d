package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsExposition(t *testing.T) {
	reg := NewRegistry()
	m := New(reg)

	m.SweepsTotal.Inc()
	m.ReconcileOutcomes.WithLabelValues("unsealed").Inc()
	m.KeySubmissions.Add(3)
	m.Targets.Set(2)

	srv := NewServer("127.0.0.1:0", reg)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "vault_unsealer_sweeps_total 1")
	assert.Contains(t, body, `vault_unsealer_reconcile_outcomes_total{outcome="unsealed"} 1`)
	assert.Contains(t, body, "vault_unsealer_key_submissions_total 3")
	assert.Contains(t, body, "vault_unsealer_targets 2")
	// The standard runtime collectors ride along on the same registry.
	assert.Contains(t, body, "go_goroutines")
	assert.Contains(t, body, "process_start_time_seconds")
}
