package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "The total number of HTTP requests served",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Cache lookups by adapter and result",
	}, []string{"adapter", "result"})

	upstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upstream_errors_total",
		Help: "Failed calls to upstream providers",
	}, []string{"provider"})

	lodgingFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lodging_fallbacks_total",
		Help: "The total number of lodging searches answered with sample listings",
	})

	tripPlans = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trip_plans_total",
		Help: "Trip plans by outcome",
	}, []string{"outcome"})

	narrativeFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "narrative_fallbacks_total",
		Help: "The total number of recommendations replaced by the static fallback",
	})
)

// Trip plan outcomes.
const (
	OutcomePlanned   = "planned"
	OutcomeNoFlights = "no_affordable_flight"
	OutcomeFailed    = "failed"
)

// Provider labels.
const (
	ProviderAmadeus  = "amadeus"
	ProviderRapidAPI = "rapidapi"
	ProviderOpenAI   = "openai"
)

func ObserveRequest(method, route, status string, seconds float64) {
	httpRequests.WithLabelValues(method, route, status).Inc()
	httpDuration.WithLabelValues(method, route).Observe(seconds)
}

func CacheLookup(adapter string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(adapter, result).Inc()
}

func UpstreamError(provider string) {
	upstreamErrors.WithLabelValues(provider).Inc()
}

func LodgingFallback() {
	lodgingFallbacks.Inc()
}

func TripPlan(outcome string) {
	tripPlans.WithLabelValues(outcome).Inc()
}

func NarrativeFallback() {
	narrativeFallbacks.Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
