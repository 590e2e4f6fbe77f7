package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/reports/{reportID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/reports/{reportID}", "418"))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/abc", nil))

	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/reports/{reportID}", "418"))
	assert.Equal(t, before+1, after)
}

func TestRecorders(t *testing.T) {
	before := testutil.ToFloat64(submissionOutcomes.WithLabelValues("failed"))
	RecordOutcome("failed")
	assert.Equal(t, before+1, testutil.ToFloat64(submissionOutcomes.WithLabelValues("failed")))

	before = testutil.ToFloat64(externalCalls.WithLabelValues("classifier", "error"))
	RecordExternalCall("classifier", false)
	assert.Equal(t, before+1, testutil.ToFloat64(externalCalls.WithLabelValues("classifier", "error")))

	ObserveStage("classify", true, 10*time.Millisecond)
	RecordGeocodeCache(true)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.True(t, strings.Contains(rec.Body.String(), "submission_outcomes_total"))
}
