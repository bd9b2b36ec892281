package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts authenticated backend calls by method and outcome
	// (success, error, unauthorized, transport).
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studyclient_requests_total",
		Help: "Authenticated backend requests issued by the gateway.",
	}, []string{"method", "outcome"})

	// RefreshTotal counts token refresh calls actually issued to the backend.
	// Single-flight coalescing means this stays well below the caller count.
	RefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studyclient_token_refresh_total",
		Help: "Access token refresh calls by outcome.",
	}, []string{"outcome"})

	// RetriesTotal counts requests reissued after a refresh.
	RetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "studyclient_unauthorized_retries_total",
		Help: "Requests retried once after an authorization failure.",
	})

	// ArtifactCacheTotal counts artifact cache lookups by kind and result.
	ArtifactCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studyclient_artifact_cache_total",
		Help: "Artifact cache lookups by kind and result (hit, miss).",
	}, []string{"kind", "result"})
)

// Handler exposes the default registry; embedding applications decide
// whether and where to mount it.
func Handler() http.Handler {
	return promhttp.Handler()
}
