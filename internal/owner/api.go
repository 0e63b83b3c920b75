package owner

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
	Create(ctx context.Context, o *Owner) error
	Get(ctx context.Context, id int64) (*Owner, error)
	List(ctx context.Context, filter SearchFilter) ([]Owner, error)
}

var _ Store = (*Repository)(nil)

// Handler provides HTTP handlers for owner registration and lookup
type Handler struct {
	store  Store
	bus    events.EventBus
	logger *slog.Logger
}

// NewHandler creates a new owner handler. bus may be nil.
func NewHandler(store Store, bus events.EventBus, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: store, bus: bus, logger: logger}
}

// Routes registers the owner routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(sharedauth.RequirePermission(auth.PermOwnersManage))

	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/search", h.Search)
	r.Get("/{ownerID}", h.Get)

	return r
}

// List lists all owners, newest first
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, SearchFilter{})
}

// Search finds owners by exact phone and/or email
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := SearchFilter{
		Phone: NormalizePhone(q.Get("phone")),
		Email: NormalizeEmail(q.Get("email")),
	}
	if filter.Phone == "" && filter.Email == "" {
		writeError(w, errors.Validation("validation failed", map[string]string{
			"query": "phone or email is required",
		}))
		return
	}
	h.list(w, r, filter)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, filter SearchFilter) {
	owners, err := h.store.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  owners,
		"total": len(owners),
	})
}

// Get returns one owner
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "ownerID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, errors.BadRequest("invalid owner ID"))
		return
	}

	o, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// Create registers an owner
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	o, details := req.validate()
	if len(details) > 0 {
		writeError(w, errors.Validation("validation failed", details))
		return
	}

	if err := h.store.Create(r.Context(), o); err != nil {
		writeError(w, err)
		return
	}

	if h.bus != nil {
		event := events.NewEvent("owner.created", "owner", map[string]any{"owner_id": o.ID})
		if user := sharedauth.GetUser(r.Context()); user != nil {
			event = event.WithActor(user.ID, string(user.Role))
		}
		if err := h.bus.Publish(r.Context(), event); err != nil {
			h.logger.Warn("failed to publish owner event", "error", err)
		}
	}

	writeJSON(w, http.StatusCreated, o)
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
