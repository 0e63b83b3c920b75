package notification

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/vetcore/platform/internal/auth"
	sharedauth "github.com/vetcore/platform/internal/shared/auth"
	"github.com/vetcore/platform/internal/shared/errors"
)

// Handler provides HTTP handlers for the notification module
type Handler struct {
	service *Service
	alerts  *AlertSink
}

// NewHandler creates a new notification handler. alerts may be nil when
// the inventory monitor is disabled.
func NewHandler(service *Service, alerts *AlertSink) *Handler {
	return &Handler{service: service, alerts: alerts}
}

// Routes registers the notification routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.With(sharedauth.RequirePermission(auth.PermNotificationsSend)).Post("/send", h.Send)
	r.With(sharedauth.RequirePermission(auth.PermNotificationsRead)).Get("/logs", h.ListLogs)
	r.With(sharedauth.RequirePermission(auth.PermInventoryRead)).Get("/alerts", h.ListAlerts)

	return r
}

// Send delivers a message to an owner and returns the recorded log
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	log, err := h.service.Send(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, log)
}

// ListLogs lists recorded messages, optionally for ?owner_id=
func (h *Handler) ListLogs(w http.ResponseWriter, r *http.Request) {
	var ownerID *int64
	if v := r.URL.Query().Get("owner_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, errors.BadRequest("invalid owner_id"))
			return
		}
		ownerID = &id
	}

	logs, err := h.service.Logs(r.Context(), ownerID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  logs,
		"total": len(logs),
	})
}

// ListAlerts returns the surfaced inventory alert feed, newest first
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, errors.BadRequest("invalid limit"))
			return
		}
		limit = n
	}

	alerts := []AlertRecord{}
	if h.alerts != nil {
		alerts = h.alerts.Recent(limit)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  alerts,
		"total": len(alerts),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := errors.As(err); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
