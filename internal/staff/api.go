package staff

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/vetcore/platform/internal/auth"
	sharedauth "github.com/vetcore/platform/internal/shared/auth"
	"github.com/vetcore/platform/internal/shared/errors"
	"github.com/vetcore/platform/internal/shared/events"
)

// Store is the persistence the handler needs. *Repository implements it.
type Store interface {
	List(ctx context.Context) ([]Member, error)
	Get(ctx context.Context, id int64) (*Member, error)
	ActiveByUsername(ctx context.Context, username string) (*Member, error)
	Create(ctx context.Context, m *Member) error
	SetActive(ctx context.Context, id int64, active bool) (*Member, error)
	UpdateProfile(ctx context.Context, m *Member) error
}

var _ Store = (*Repository)(nil)

// Handler provides HTTP handlers for the staff directory
type Handler struct {
	store  Store
	bus    events.EventBus
	logger *slog.Logger
}

// NewHandler creates a new staff handler. bus may be nil.
func NewHandler(store Store, bus events.EventBus, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: store, bus: bus, logger: logger}
}

// Routes registers the admin staff routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(sharedauth.RequirePermission(auth.PermStaffManage))

	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Patch("/{staffID}/status", h.UpdateStatus)
	r.Patch("/{staffID}/profile", h.UpdateProfile)

	return r
}

// Me resolves the token subject to an active staff member and returns its
// session. Unknown and deactivated accounts get 401 so clients drop the
// stored token.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user := sharedauth.GetUser(r.Context())
	if user == nil || user.Username == "" {
		writeError(w, errors.Unauthorized("authentication required"))
		return
	}

	m, err := h.store.ActiveByUsername(r.Context(), user.Username)
	if err != nil {
		if appErr, ok := errors.As(err); ok && appErr.HTTPStatus == http.StatusNotFound {
			writeError(w, errors.Unauthorized("user not found or inactive"))
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, m.Session())
}

// List lists all staff members
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	members, err := h.store.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  members,
		"total": len(members),
	})
}

// Create adds a staff member
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	m, details := req.validate()
	if len(details) > 0 {
		writeError(w, errors.Validation("validation failed", details))
		return
	}

	if err := h.store.Create(r.Context(), m); err != nil {
		writeError(w, err)
		return
	}

	h.publish(r, "staff.created", map[string]any{
		"staff_id": m.ID,
		"username": m.Username,
		"role":     string(m.Role),
	})

	writeJSON(w, http.StatusCreated, m)
}

// UpdateStatus activates or deactivates a member. Admins cannot deactivate
// themselves.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseStaffID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IsActive == nil {
		writeError(w, errors.Validation("validation failed", map[string]string{
			"is_active": "is_active is required",
		}))
		return
	}

	if user := sharedauth.GetUser(r.Context()); user != nil && user.ID == id && !*req.IsActive {
		writeError(w, errors.Forbidden("cannot deactivate your own account"))
		return
	}

	m, err := h.store.SetActive(r.Context(), id, *req.IsActive)
	if err != nil {
		writeError(w, err)
		return
	}

	h.publish(r, "staff.status_changed", map[string]any{
		"staff_id":  m.ID,
		"is_active": m.IsActive,
	})

	writeJSON(w, http.StatusOK, m)
}

// UpdateProfile changes name, username or email
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, err := parseStaffID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req ProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	m, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	if details := req.apply(m); len(details) > 0 {
		writeError(w, errors.Validation("validation failed", details))
		return
	}

	if err := h.store.UpdateProfile(r.Context(), m); err != nil {
		writeError(w, err)
		return
	}

	h.publish(r, "staff.profile_updated", map[string]any{
		"staff_id": m.ID,
		"username": m.Username,
	})

	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) publish(r *http.Request, eventType string, data map[string]any) {
	if h.bus == nil {
		return
	}

	event := events.NewEvent(eventType, "staff", data)
	if user := sharedauth.GetUser(r.Context()); user != nil {
		event = event.WithActor(user.ID, string(user.Role))
	}
	if err := h.bus.Publish(r.Context(), event); err != nil {
		h.logger.Warn("failed to publish staff event", "type", eventType, "error", err)
	}
}

func parseStaffID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "staffID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.BadRequest("invalid staff ID")
	}
	return id, nil
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
