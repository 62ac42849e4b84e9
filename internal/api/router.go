package api

import (
	"net/http"

	"github.com/balu-dk/go-cdr-rating/internal/api/handlers"
	"github.com/balu-dk/go-cdr-rating/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// API handles the API server
type API struct {
	router  chi.Router
	handler *handlers.Handler
}

// NewAPI creates a new API server. Metrics are served from gatherer.
func NewAPI(svc handlers.RatingService, gatherer prometheus.Gatherer) *API {
	router := chi.NewRouter()
	handler := handlers.NewHandler(svc)

	// Setup middleware
	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Setup routes
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ContentType)

		// CDR routes
		r.Route("/cdrs", func(r chi.Router) {
			r.Post("/rate", handler.RateCDR)
			r.Get("/{id}", handler.GetCDR)
		})

		// Transaction routes
		r.Route("/transactions", func(r chi.Router) {
			r.Post("/rate", handler.RateTransactions)
			r.Get("/{id}", handler.GetTransaction)
			r.Post("/{id}/rate", handler.RateTransaction)
		})

		// Tariff routes
		r.Route("/tariffs", func(r chi.Router) {
			r.Get("/", handler.ListTariffs)
			r.Get("/{id}", handler.GetTariff)
			r.Put("/{id}", handler.PutTariff)
		})
	})

	return &API{
		router:  router,
		handler: handler,
	}
}

// ServeHTTP satisfies the http.Handler interface
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}
