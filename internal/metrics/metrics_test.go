package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestObserve(t *testing.T) {
	m := New()
	m.ObserveCompare("http", "Exact", "", time.Millisecond)
	m.ObserveCompare("http", "Exact", "", time.Millisecond)
	m.ObserveCompare("ipc", "", "invalid_input", time.Millisecond)
	m.ObserveFeedback("Similar", "ok", 3)
	m.ObserveGeocode("not_found")

	body := scrape(t, m)
	assert.Contains(t, body, `streetmatch_compare_total{label="Exact",transport="http"} 2`)
	assert.Contains(t, body, `streetmatch_compare_errors_total{kind="invalid_input",transport="ipc"} 1`)
	assert.Contains(t, body, `streetmatch_compare_duration_seconds_count{transport="http"} 2`)
	assert.Contains(t, body, `streetmatch_feedback_total{label="Similar",status="ok"} 1`)
	assert.Contains(t, body, `streetmatch_model_updates 3`)
	assert.Contains(t, body, `streetmatch_geocode_total{result="not_found"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCompare("http", "Exact", "", time.Second)
		m.ObserveFeedback("Exact", "ok", 1)
		m.ObserveGeocode("ok")
	})
}

func TestIndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.ObserveGeocode("ok")
	assert.NotContains(t, scrape(t, b), "streetmatch_geocode_total")
}
