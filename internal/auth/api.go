package auth

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/vetcore/platform/internal/shared/errors"
)

// Handler serves navigation and route access decisions for the caller.
type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

// Routes registers the auth routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/navigation", h.Navigation)
	r.Get("/access", h.Access)
	return r
}

// NavigationResponse is the caller's landing route and sidebar.
type NavigationResponse struct {
	Role  Role      `json:"role"`
	Home  string    `json:"home"`
	Links []NavLink `json:"links"`
}

// Navigation returns home route and nav links for the caller's role.
func (h *Handler) Navigation(w http.ResponseWriter, r *http.Request) {
	s := FromContext(r.Context())
	if !s.Authenticated {
		writeError(w, errors.Unauthorized("authentication required"))
		return
	}
	if _, ok := Capabilities[s.Role]; !ok {
		writeError(w, errors.Forbidden("role has no capabilities"))
		return
	}

	writeJSON(w, http.StatusOK, NavigationResponse{
		Role:  s.Role,
		Home:  HomeRoute(s.Role),
		Links: NavLinks(s.Role),
	})
}

// Access evaluates ?path= against the route table for the caller.
func (h *Handler) Access(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, errors.Validation("validation failed", map[string]string{
			"path": "path is required",
		}))
		return
	}

	s := FromContext(r.Context())
	if s.Authenticated {
		if _, ok := Capabilities[s.Role]; !ok {
			writeError(w, errors.Forbidden("role has no capabilities"))
			return
		}
	}

	writeJSON(w, http.StatusOK, Navigate(SessionState{Session: s}, path))
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
