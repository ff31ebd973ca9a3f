package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the per-instance domain metrics. /metrics serves it together
// with the default registry, which carries the Go runtime and process
// collectors and the storage backend histograms.
type Registry struct {
	*prometheus.Registry
}

func New() *Registry {
	return &Registry{Registry: prometheus.NewRegistry()}
}

// Handler serves both registries in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(
		prometheus.Gatherers{r.Registry, prometheus.DefaultGatherer},
		promhttp.HandlerOpts{Registry: r.Registry},
	)
}
