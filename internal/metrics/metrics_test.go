package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerExposesMetrics(t *testing.T) {
	CacheLookup("flights", true)
	ObserveRequest("GET", "/health", "200", 0.01)
	TripPlan(OutcomeNoFlights)

	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))

	body := rr.Body.String()
	for _, want := range []string{
		`cache_lookups_total{adapter="flights",result="hit"}`,
		`http_requests_total{method="GET",route="/health",status="200"}`,
		"http_request_duration_seconds",
		`trip_plans_total{outcome="no_affordable_flight"}`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected %s in exposition", want)
		}
	}
}
