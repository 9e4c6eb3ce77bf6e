package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"
)

// NewRouter configures HTTP routes. Only starting a conversion is rate limited.
func NewRouter(handler *Handler, startLimiter *rate.Limiter) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/", RateLimit(startLimiter)(http.HandlerFunc(handler.StartConversion))).Methods("GET")
	r.HandleFunc("/download", handler.Download).Methods("GET")
	r.HandleFunc("/status", handler.Status).Methods("GET")
	r.HandleFunc("/healthz", handler.Health).Methods("GET")
	return r
}
