// Package httpapi exposes the status API served in serve mode: catalog and
// ledger listings, a sync trigger and the metrics endpoint.
package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"tablodl/internal/logctx"
	"tablodl/internal/storage"
	"tablodl/internal/telemetry"
)

// Handler serves the read-mostly status API.
type Handler struct {
	username string
	password string

	catalog storage.CatalogRepository
	ledger  storage.UploadLedger
	syncNow SyncFunc

	telemetry *telemetry.Telemetry

	// syncGate keeps POST /api/sync single-flight.
	syncGate chan struct{}
}

// NewHandler creates the status API handler. Basic auth guards the /api
// routes only when both username and password are configured.
func NewHandler(username, password string, catalogRepo storage.CatalogRepository, ledger storage.UploadLedger, syncNow SyncFunc, tel *telemetry.Telemetry) *Handler {
	return &Handler{
		username:  username,
		password:  password,
		catalog:   catalogRepo,
		ledger:    ledger,
		syncNow:   syncNow,
		telemetry: tel,
		syncGate:  make(chan struct{}, 1),
	}
}

// Routes assembles the router. Health and metrics stay outside basic auth so
// probes and scrapers need no credentials.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(h.telemetry).Middleware)

	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", h.telemetry.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(h.basicAuthMiddleware)

		r.Get("/recordings", h.handleListRecordings)
		r.Get("/recordings/*", h.handleGetRecording)
		r.Get("/uploads", h.handleListUploads)
		r.Post("/sync", h.handleSync)
	})

	return otelhttp.NewHandler(r, "tablodl-api")
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.username == "" && h.password == "" {
			next.ServeHTTP(w, r)

			return
		}

		username, password, ok := r.BasicAuth()
		if !ok {
			http.Error(w, "invalid authorization format", http.StatusUnauthorized)

			return
		}

		userOK := subtle.ConstantTimeCompare([]byte(username), []byte(h.username)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(password), []byte(h.password)) == 1

		if !userOK || !passOK {
			http.Error(w, "invalid username or password", http.StatusUnauthorized)

			return
		}

		next.ServeHTTP(w, r)
	})
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to encode response", "err", err)
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	respondJSON(w, r, status, map[string]string{"error": message})
}
