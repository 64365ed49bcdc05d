package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"bookfront/internal/models"
	"bookfront/internal/service"
)

type tenantResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
	Timezone string `json:"timezone"`
}

type addItemRequest struct {
	ItemID string `json:"item_id"`
}

type slotRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type customerRequest struct {
	models.Customer
	AgreedToTerms bool `json:"agreed_to_terms"`
}

type staffActionRequest struct {
	Action       models.StaffAction `json:"action"`
	NewEventDate *time.Time         `json:"new_event_date,omitempty"`
	Reason       string             `json:"reason,omitempty"`
	RequestedBy  string             `json:"requested_by,omitempty"`
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.services.Ready != nil {
		if err := s.services.Ready(r.Context()); err != nil {
			s.log.Warn().Err(err).Msg("readiness check failed")
			writeError(w, http.StatusServiceUnavailable, "not_ready", "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *HTTPServer) handleTenants(w http.ResponseWriter, _ *http.Request) {
	tenants := s.services.Catalog.Tenants().List()
	out := make([]tenantResponse, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, tenantResponse{ID: t.ID, Name: t.Name, Currency: t.Currency, Timezone: t.Location.String()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenants": out})
}

func (s *HTTPServer) handleCatalog(w http.ResponseWriter, r *http.Request) {
	view, err := s.services.Catalog.Listing(r.Context(), r.PathValue("tenant"), nil)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleStartSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.services.Wizard.Start(r.Context(), r.PathValue("tenant"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *HTTPServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s.sessionAction(s.services.Wizard.Get)(w, r)
}

func (s *HTTPServer) handleSessionCatalog(w http.ResponseWriter, r *http.Request) {
	view, err := s.services.Wizard.Catalog(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var body addItemRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.ItemID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "item_id is required")
		return
	}
	s.respondSession(w, r)(s.services.Wizard.AddItem(r.Context(), r.PathValue("id"), body.ItemID))
}

func (s *HTTPServer) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	s.respondSession(w, r)(s.services.Wizard.RemoveItem(r.Context(), r.PathValue("id"), r.PathValue("item")))
}

func (s *HTTPServer) handleSelectSlot(w http.ResponseWriter, r *http.Request) {
	var body slotRequest
	if !decodeBody(w, r, &body) {
		return
	}
	s.respondSession(w, r)(s.services.Wizard.SelectSlot(r.Context(), r.PathValue("id"), body.Date, body.Time))
}

func (s *HTTPServer) handleClearSlot(w http.ResponseWriter, r *http.Request) {
	s.respondSession(w, r)(s.services.Wizard.ClearSlot(r.Context(), r.PathValue("id")))
}

func (s *HTTPServer) handleSetCustomer(w http.ResponseWriter, r *http.Request) {
	var body customerRequest
	if !decodeBody(w, r, &body) {
		return
	}
	s.respondSession(w, r)(s.services.Wizard.SetCustomer(r.Context(), r.PathValue("id"), body.Customer, body.AgreedToTerms))
}

func (s *HTTPServer) sessionAction(fn func(ctx context.Context, id string) (*service.SessionView, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.respondSession(w, r)(fn(r.Context(), r.PathValue("id")))
	}
}

func (s *HTTPServer) respondSession(w http.ResponseWriter, r *http.Request) func(*service.SessionView, error) {
	return func(view *service.SessionView, err error) {
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func (s *HTTPServer) handleCalendarDay(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	layout, err := s.services.Calendar.Day(r.Context(), r.PathValue("tenant"), q.Get("date"), q.Get("tz"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, layout)
}

func (s *HTTPServer) handleCalendarWeek(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	layout, err := s.services.Calendar.Week(r.Context(), r.PathValue("tenant"), q.Get("date"), q.Get("tz"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, layout)
}

func (s *HTTPServer) handleCalendarExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tenant := r.PathValue("tenant")

	layout, err := s.services.Calendar.Week(r.Context(), tenant, q.Get("date"), q.Get("tz"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	// второе чтение недели идёт из кэша, если подключён Redis
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="calendar_%s_%s.xlsx"`, tenant, layout.Days[0].Date))
	if err := s.services.Calendar.WriteWeek(r.Context(), w, tenant, layout.Days[0].Date, q.Get("tz")); err != nil {
		s.log.Error().Err(err).Str("tenant_id", tenant).Msg("calendar export failed")
	}
}

// handleCalendarArchive keeps a copy of the week workbook in the export
// directory. Only the file name goes back to the client.
func (s *HTTPServer) handleCalendarArchive(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path, err := s.services.Calendar.ExportWeek(r.Context(), r.PathValue("tenant"), q.Get("date"), q.Get("tz"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"file": filepath.Base(path)})
}

func (s *HTTPServer) handleStaffAction(w http.ResponseWriter, r *http.Request) {
	var body staffActionRequest
	if !decodeBody(w, r, &body) {
		return
	}

	req, err := s.services.Calendar.RequestAction(r.Context(), r.PathValue("tenant"), service.StaffActionInput{
		AppointmentID: r.PathValue("id"),
		Action:        body.Action,
		NewEventDate:  body.NewEventDate,
		Reason:        body.Reason,
		RequestedBy:   body.RequestedBy,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, req)
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}
