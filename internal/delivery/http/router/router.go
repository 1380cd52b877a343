// Package router assembles the optional status server: health, live run
// progress and Prometheus metrics.
package router

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crab-wise/tryst-scraper/internal/delivery/http/handler"
	"github.com/crab-wise/tryst-scraper/internal/delivery/http/middleware"
)

func New(h *handler.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.HandleHealthCheck)
	mux.HandleFunc("GET /api/status", h.HandleRunStatus)

	mux.Handle("/metrics", promhttp.Handler())

	var chained http.Handler = mux
	chained = middleware.Metrics(chained)
	chained = middleware.Logging(chained)
	return chained
}
