package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pushchain/spin-relay/spinClient/metrics"
)

// setupRoutes configures all HTTP routes for the API server
func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()
	r.Use(metrics.Middleware)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	if s.bridge != nil {
		r.Handle("/ws", s.bridge).Methods(http.MethodGet)
	}

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	v1.HandleFunc("/networks", s.handleNetworks).Methods(http.MethodGet)
	v1.HandleFunc("/network", s.handleSwitchNetwork).Methods(http.MethodPost)
	v1.HandleFunc("/network/confirm", s.handleConfirmNetwork).Methods(http.MethodPost)
	v1.HandleFunc("/setup", s.handleSetup).Methods(http.MethodPost)
	v1.HandleFunc("/disconnect", s.handleDisconnect).Methods(http.MethodPost)
	v1.HandleFunc("/spins", s.handleSpins).Methods(http.MethodGet)

	return r
}
