// Package api is the HTTP adapter over the decision services. Handlers
// decode, call a service and encode; all decisions live in the services.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/guardian-card/guardian-core/internal/audit"
	"github.com/guardian-card/guardian-core/internal/authorize"
	"github.com/guardian-card/guardian-core/internal/dwell"
	"github.com/guardian-card/guardian-core/internal/geofence"
	"github.com/guardian-card/guardian-core/internal/location"
	"github.com/guardian-card/guardian-core/internal/scoring"
)

// UserHeader carries the caller's user id. Authentication happens upstream.
const UserHeader = "X-User-ID"

// Services are the handlers' dependencies.
type Services struct {
	Scorer    *scoring.Scorer
	Authorize *authorize.Service
	Location  *location.Service
	Dwell     *dwell.Detector
	Geofences *geofence.Evaluator
	Journal   *audit.Journal
}

// NewRouter builds the HTTP handler.
func NewRouter(svc Services, corsOrigins []string) http.Handler {
	h := &handlers{svc: svc}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", UserHeader},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/score-transaction", h.score)
	r.Post("/authorize", h.authorize)
	r.Post("/override", h.override)
	r.Post("/location/update", h.locationUpdate)
	r.Post("/location-check", h.locationCheck)
	r.Get("/location-check", h.locationCheckQuery)
	r.Get("/obligations/summary", h.obligations)
	r.Get("/analytics/summary", h.analyticsSummary)
	r.Get("/analytics/overrides", h.analyticsOverrides)

	r.Put("/rules", h.putRule)
	r.Put("/dwell-config", h.putDwellConfig)
	r.Route("/geofences", func(r chi.Router) {
		r.Get("/", h.listGeofences)
		r.Post("/", h.createGeofence)
		r.Delete("/{id}", h.deleteGeofence)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}
