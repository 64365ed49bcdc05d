package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"bookfront/internal/config"
	"bookfront/internal/metrics"
	"bookfront/internal/pricing"
	"bookfront/internal/service"
	"bookfront/internal/upstream"
	"bookfront/internal/wizard"

	"github.com/rs/zerolog"
)

// Services are the handlers' dependencies.
type Services struct {
	Catalog  *service.CatalogService
	Wizard   *service.WizardService
	Calendar *service.CalendarService
	Ready    ReadinessCheck
}

// HTTPServer exposes the booking wizard and staff calendar as JSON over HTTP.
type HTTPServer struct {
	cfg      *config.APIConfig
	services Services
	server   *http.Server
	auth     *HTTPAuth
	log      zerolog.Logger
}

func NewHTTPServer(cfg *config.APIConfig, services Services, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{cfg: cfg, services: services, log: zerolog.Nop()}
	if logger != nil {
		srv.log = logger.With().Str("component", "http").Logger()
	}
	srv.auth = NewHTTPAuth(cfg)

	mux := http.NewServeMux()
	srv.routes(mux)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.loggingMiddleware(srv.auth.Wrap(mux)),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      45 * time.Second,
	}

	return srv
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/v1/tenants", s.handleTenants)
	mux.HandleFunc("GET /api/v1/tenants/{tenant}/catalog", s.handleCatalog)
	mux.HandleFunc("POST /api/v1/tenants/{tenant}/sessions", s.handleStartSession)

	mux.HandleFunc("GET /api/v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}/catalog", s.handleSessionCatalog)
	mux.HandleFunc("POST /api/v1/sessions/{id}/items", s.handleAddItem)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}/items/{item}", s.handleRemoveItem)
	mux.HandleFunc("PUT /api/v1/sessions/{id}/slot", s.handleSelectSlot)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}/slot", s.handleClearSlot)
	mux.HandleFunc("PUT /api/v1/sessions/{id}/customer", s.handleSetCustomer)
	mux.HandleFunc("POST /api/v1/sessions/{id}/advance", s.sessionAction(s.services.Wizard.Advance))
	mux.HandleFunc("POST /api/v1/sessions/{id}/back", s.sessionAction(s.services.Wizard.Back))
	mux.HandleFunc("POST /api/v1/sessions/{id}/cancel", s.sessionAction(s.services.Wizard.Cancel))
	mux.HandleFunc("POST /api/v1/sessions/{id}/home", s.sessionAction(s.services.Wizard.ReturnHome))

	mux.HandleFunc("GET /api/v1/tenants/{tenant}/calendar/day", s.handleCalendarDay)
	mux.HandleFunc("GET /api/v1/tenants/{tenant}/calendar/week", s.handleCalendarWeek)
	mux.HandleFunc("GET /api/v1/tenants/{tenant}/calendar/week/export", s.handleCalendarExport)
	mux.HandleFunc("POST /api/v1/tenants/{tenant}/calendar/week/export", s.handleCalendarArchive)
	mux.HandleFunc("POST /api/v1/tenants/{tenant}/appointments/{id}/actions", s.handleStaffAction)
}

// Handler returns the fully wrapped handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.IncHTTP(endpoint)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, errorBody{Error: message, Code: code})
}

type errorBody struct {
	Error   string   `json:"error"`
	Code    string   `json:"code"`
	ItemID  string   `json:"item_id,omitempty"`
	Removed []string `json:"removed,omitempty"`
}

// writeServiceError maps domain errors to HTTP statuses. Messages of known
// errors are customer-facing; anything else is hidden behind a generic text.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ineligible *service.IneligibleError
		changed    *service.CartChangedError
		httpErr    *upstream.HTTPError
	)

	switch {
	case errors.As(err, &ineligible):
		writeJSON(w, http.StatusConflict, errorBody{Error: ineligible.Reason, Code: "item_ineligible", ItemID: ineligible.ItemID})
	case errors.As(err, &changed):
		writeJSON(w, http.StatusConflict, errorBody{Error: changed.Error(), Code: "cart_changed", Removed: changed.Removed})
	case errors.Is(err, service.ErrTenantNotFound),
		errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrItemNotFound),
		errors.Is(err, wizard.ErrNotInCart):
		writeError(w, http.StatusNotFound, "not_found", rootMessage(err))
	case errors.Is(err, wizard.ErrSubmissionInFlight),
		errors.Is(err, wizard.ErrTerminalStep),
		errors.Is(err, wizard.ErrNoPreviousStep),
		errors.Is(err, wizard.ErrNotConfirmed),
		errors.Is(err, wizard.ErrAlreadyInCart):
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, pricing.ErrMalformedPrice):
		writeError(w, http.StatusUnprocessableEntity, "malformed_price", "This item cannot be booked right now.")
	case errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrWrongStep),
		errors.Is(err, service.ErrSlotInPast),
		errors.Is(err, service.ErrInvalidTimezone),
		errors.Is(err, service.ErrInvalidDate),
		errors.Is(err, service.ErrInvalidAction),
		errors.Is(err, wizard.ErrSlotNotSelected),
		errors.Is(err, wizard.ErrInvalidSlot):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, service.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate_limited", err.Error())
	case errors.Is(err, service.ErrCatalogUnavailable):
		writeError(w, http.StatusServiceUnavailable, "catalog_unavailable", "The catalog is unavailable, please try again shortly.")
	case errors.As(err, &httpErr):
		s.log.Warn().Err(err).Str("path", r.URL.Path).Msg("upstream error")
		writeError(w, http.StatusBadGateway, "upstream_error", "An upstream service failed, please try again.")
	default:
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

// rootMessage drops the identifier suffix from "tenant not found: x".
func rootMessage(err error) string {
	for _, sentinel := range []error{service.ErrTenantNotFound, service.ErrSessionNotFound, service.ErrItemNotFound} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
