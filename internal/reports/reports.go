// Package reports serves the admin dashboard figures derived from the
// inventory and staff directory.
package reports

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-sql/civil"
	"github.com/vetcore/platform/internal/auth"
	"github.com/vetcore/platform/internal/inventory"
	sharedauth "github.com/vetcore/platform/internal/shared/auth"
	"github.com/vetcore/platform/internal/shared/errors"
)

// StaffCounter counts active staff accounts.
type StaffCounter interface {
	CountActive(ctx context.Context) (int, error)
}

// DashboardSummary is the admin landing page figures.
type DashboardSummary struct {
	Date              civil.Date `json:"date"`
	TotalItems        int        `json:"total_items"`
	LowStockCount     int        `json:"low_stock_count"`
	ExpiringSoonCount int        `json:"expiring_soon_count"`
	TotalAlerts       int        `json:"total_alerts"`
	ActiveStaff       int        `json:"active_staff"`
}

// InventoryReport lists items needing attention.
type InventoryReport struct {
	Date       civil.Date       `json:"date"`
	LowStock   []inventory.Item `json:"low_stock"`
	NearExpiry []inventory.Item `json:"near_expiry"`
}

// Dashboard computes the summary for today.
func Dashboard(items []inventory.Item, activeStaff int, today civil.Date) DashboardSummary {
	counts := inventory.CountFilters(items, today)
	return DashboardSummary{
		Date:              today,
		TotalItems:        counts.All,
		LowStockCount:     counts.LowStock,
		ExpiringSoonCount: counts.ExpiringSoon,
		TotalAlerts:       inventory.Summarize(items, today).TotalAlerts,
		ActiveStaff:       activeStaff,
	}
}

// Inventory splits out low stock and near expiry items. An item can be in
// both lists.
func Inventory(items []inventory.Item, today civil.Date) InventoryReport {
	report := InventoryReport{
		Date:       today,
		LowStock:   []inventory.Item{},
		NearExpiry: []inventory.Item{},
	}
	for _, item := range items {
		if inventory.IsLowStock(item) {
			report.LowStock = append(report.LowStock, item)
		}
		if inventory.IsExpiringSoon(item, today) {
			report.NearExpiry = append(report.NearExpiry, item)
		}
	}
	return report
}

// Handler serves the report endpoints
type Handler struct {
	items inventory.Source
	staff StaffCounter
	today func() civil.Date
}

// NewHandler creates a report handler. today may be nil for the local date.
func NewHandler(items inventory.Source, staff StaffCounter, today func() civil.Date) *Handler {
	if today == nil {
		today = func() civil.Date { return civil.DateOf(time.Now()) }
	}
	return &Handler{items: items, staff: staff, today: today}
}

// Routes registers the report routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(sharedauth.RequirePermission(auth.PermReportsRead))

	r.Get("/dashboard", h.Dashboard)
	r.Get("/inventory", h.Inventory)

	return r
}

// Dashboard returns the admin dashboard summary
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	items, err := h.items.ListItems(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	active, err := h.staff.CountActive(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Dashboard(items, active, h.today()))
}

// Inventory returns the low stock and near expiry lists
func (h *Handler) Inventory(w http.ResponseWriter, r *http.Request) {
	items, err := h.items.ListItems(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Inventory(items, h.today()))
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
