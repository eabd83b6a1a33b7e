package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var routes = map[string]bool{
	"/predict":     true,
	"/health":      true,
	"/info":        true,
	"/api/predict": true,
	"/api/health":  true,
	"/api/info":    true,
	"/metrics":     true,
}

// Routes builds the HTTP surface. Every endpoint is also served under /api.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	for _, prefix := range []string{"", "/api"} {
		mux.HandleFunc(prefix+"/predict", h.Predict)
		mux.HandleFunc(prefix+"/health", h.Health)
		mux.HandleFunc(prefix+"/info", h.Info)
	}
	mux.Handle("/metrics", h.metrics.Handler())
	mux.HandleFunc("/", h.NotFound)

	return enableCORS(h.instrument(mux))
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		// Unknown paths share one label.
		path := r.URL.Path
		if !routes[path] {
			path = "unmatched"
		}
		h.metrics.ObserveRequest(path, r.Method, rec.status, elapsed)

		h.log.Debug("request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", elapsed))
	})
}
