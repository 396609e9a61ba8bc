package metrics

import (
	"encoding/json"
	"net/http"

	vm "github.com/VictoriaMetrics/metrics"
	"github.com/gorilla/mux"
)

// Status is reported by the health endpoint
type Status struct {
	Role string `json:"role"`
	Keys int64  `json:"keys"`
}

// NewRouter serves /metrics and /healthz
func NewRouter(c *Collector, status func() Status) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/metrics", metricsHandler(c)).Methods("GET")
	router.HandleFunc("/healthz", healthHandler(status)).Methods("GET")
	return router
}

func metricsHandler(c *Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		c.WritePrometheus(w)
		vm.WriteProcessMetrics(w)
	}
}

func healthHandler(status func() Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status())
	}
}
