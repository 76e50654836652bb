package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/otel/trace"

	"fuelstation/internal/models"
)

// RouteOption configures optional route behavior.
type RouteOption func(*mux.Router)

// WithOTelMiddleware adds OpenTelemetry HTTP instrumentation middleware
// recording spans on tp.
func WithOTelMiddleware(serviceName string, tp trace.TracerProvider) RouteOption {
	return func(r *mux.Router) {
		r.Use(otelmux.Middleware(serviceName,
			otelmux.WithTracerProvider(tp),
			otelmux.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/health" &&
					r.URL.Path != "/api/v1/health" &&
					r.URL.Path != "/api/v1/openapi.yaml" &&
					r.URL.Path != "/api/v1/docs"
			}),
		))
	}
}

// WithRateLimiter adds rate limiting middleware to the router.
func WithRateLimiter(middleware func(http.Handler) http.Handler) RouteOption {
	return func(r *mux.Router) {
		r.Use(middleware)
	}
}

// SetupRoutes configures the HTTP routes for the API
func SetupRoutes(handlers *Handlers, opts ...RouteOption) *mux.Router {
	router := mux.NewRouter()

	router.Use(recoveryMiddleware)
	router.Use(loggingMiddleware)
	for _, opt := range opts {
		opt(router)
	}

	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", handlers.HealthCheck).Methods("GET")
	api.HandleFunc("/openapi.yaml", handlers.ServeOpenAPISpec).Methods("GET")
	api.HandleFunc("/docs", handlers.ServeSwaggerUI).Methods("GET")

	api.HandleFunc("/customers", handlers.Register).Methods("POST")
	api.HandleFunc("/customers/login", handlers.CustomerLogin).Methods("POST")
	api.HandleFunc("/admin/login", handlers.AdminLogin).Methods("POST")
	api.HandleFunc("/fuels", handlers.ListFuels).Methods("GET")

	customerAPI := api.PathPrefix("/customers/{id:[0-9]+}").Subrouter()
	customerAPI.Use(bearerAuth())
	customerAPI.HandleFunc("/purchases", handlers.Purchase).Methods("POST")
	customerAPI.HandleFunc("/purchases/batch", handlers.PurchaseBatch).Methods("POST")

	adminAPI := api.PathPrefix("/admin").Subrouter()
	adminAPI.Use(bearerAuth())
	adminAPI.HandleFunc("/fuels/{id:[0-9]+}/price", handlers.SetPrice).Methods("PUT")
	adminAPI.HandleFunc("/fuels/{id:[0-9]+}/refill", handlers.Refill).Methods("POST")
	adminAPI.HandleFunc("/bank", handlers.BankInfo).Methods("GET")
	adminAPI.HandleFunc("/fuels", handlers.AdminListFuels).Methods("GET")

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, models.NewErrorResponse("Route not found", models.ErrorCodeNotFound))
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowedHandler)

	return router
}

// methodNotAllowedHandler handles requests with invalid HTTP methods
func methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, models.NewErrorResponse("Method not allowed", models.ErrorCodeInvalidRequest))
}
