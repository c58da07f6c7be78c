package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"docmanager/internal/auth"
)

type Handlers struct {
	Owners    *OwnerHandler
	Documents *DocumentHandler
	Versions  *VersionHandler
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request served",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}

// NewRouter собирает HTTP API; gatherer отдается на /metrics
func NewRouter(h Handlers, gatherer prometheus.Gatherer, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(requestLogger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", auth.HeaderUserID},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Route("/owners/{kind}", func(r chi.Router) {
			r.Post("/", h.Owners.ResolveOrCreate)
			r.Post("/rows/{pk}/identifier", h.Owners.EnsureIdentifier)
			r.Get("/{ownerID}", h.Owners.Resolve)
			r.Get("/{ownerID}/documents", h.Owners.Documents)
		})

		r.Post("/documents", h.Documents.Create)
		r.Route("/documents/{id}", func(r chi.Router) {
			r.Get("/", h.Documents.Get)
			r.Delete("/", h.Documents.Delete)
			r.Post("/restore", h.Documents.Restore)
			r.Put("/validation", h.Documents.UpdateValidation)
			r.Put("/access", h.Documents.UpdateAccess)
			r.Put("/ai", h.Documents.StoreAIResult)

			r.Route("/versions", func(r chi.Router) {
				r.Get("/", h.Versions.List)
				r.Post("/", h.Versions.Add)
				r.Get("/current", h.Versions.Current)
				r.Delete("/latest", h.Versions.DeleteLatest)
				r.Get("/{number}", h.Versions.Get)
				r.Get("/{number}/content", h.Versions.Content)
				r.Put("/{number}/current", h.Versions.SetCurrent)
			})
		})
	})

	return r
}
