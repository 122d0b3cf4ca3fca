package api

import (
	"github.com/gorilla/mux"
)

// NewRouter builds the gorilla/mux router for the five HTTP endpoints of
// §6, matching the reference corpus's router-construction shape in
// cmd/main.go (method-qualified routes, /context aliasing /aip/context).
func NewRouter(h *Handlers) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.HandleFunc("/aip/context", h.Context).Methods("POST")
	router.HandleFunc("/context", h.Context).Methods("POST")
	router.HandleFunc("/aip/bid-response", h.BidResponse).Methods("POST")
	router.HandleFunc("/events/{type}", h.Event).Methods("POST")
	router.HandleFunc("/v1/weave/recommendations", h.WeaveRecommendation).Methods("POST")

	return router
}
