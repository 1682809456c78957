package handlers

import (
	"fmt"
	"net/http"

	"clip-splitter/internal/logging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type promErrorLog struct{}

func (promErrorLog) Println(v ...interface{}) {
	logging.Error("metrics: %s", fmt.Sprint(v...))
}

// MetricsHandler serves the default registry for the metrics server.
// Gathering errors are logged and the remaining metrics still served.
func (h *Handlers) MetricsHandler() http.Handler {
	return promhttp.InstrumentMetricHandler(prometheus.DefaultRegisterer,
		promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
			ErrorLog:          promErrorLog{},
			ErrorHandling:     promhttp.ContinueOnError,
			EnableOpenMetrics: true,
		}))
}
