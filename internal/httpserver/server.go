package httpserver

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	Mux *mux.Router
}

// New returns a router exposing /metrics for g. Health and API routes are
// registered by the caller.
func New(g prometheus.Gatherer) *Server {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return &Server{Mux: r}
}

// Handler wraps the router with the standard middleware chain. Call it once.
func (s *Server) Handler(counter *prometheus.CounterVec) http.Handler {
	s.Mux.Use(mux.MiddlewareFunc(Metrics(counter)))
	return RequestID(Logging(s.Mux))
}
