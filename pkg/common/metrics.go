package common

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler exposes the default Prometheus registry, which carries the
// Go runtime and process collectors.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
