package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-sql/civil"
	"github.com/vetcore/platform/internal/auth"
	sharedauth "github.com/vetcore/platform/internal/shared/auth"
	"github.com/vetcore/platform/internal/shared/errors"
	"github.com/vetcore/platform/internal/shared/events"
	"github.com/vetcore/platform/internal/shared/metrics"
	"github.com/vetcore/platform/internal/shared/middleware"
)

// Store is the persistence the handler needs. *Repository implements it.
type Store interface {
	CreateItem(ctx context.Context, item *Item) error
	GetItem(ctx context.Context, id int64) (*Item, error)
	ListItems(ctx context.Context, filter ListFilter) ([]Item, error)
	ExpiringItems(ctx context.Context, cutoff civil.Date) ([]Item, error)
	UpdateItem(ctx context.Context, item *Item) error
	AdjustStock(ctx context.Context, itemID int64, changeQty int, reason string, performedBy *int64) (*Item, *StockLog, error)
	ListLogs(ctx context.Context, itemID int64) ([]StockLog, error)
	DeleteItem(ctx context.Context, id int64) error
}

var _ Store = (*Repository)(nil)

// Handler provides HTTP handlers for the inventory module
type Handler struct {
	store   Store
	bus     events.EventBus
	monitor *Monitor
	logger  *slog.Logger
	today   func() civil.Date
}

// NewHandler creates a new inventory handler. bus and monitor may be nil.
// When a monitor is given its clock decides the calendar day.
func NewHandler(store Store, bus events.EventBus, monitor *Monitor, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		store:   store,
		bus:     bus,
		monitor: monitor,
		logger:  logger,
		today:   func() civil.Date { return civil.DateOf(time.Now()) },
	}
	if monitor != nil {
		h.today = monitor.Today
	}
	return h
}

// Routes registers the inventory routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	manage := sharedauth.RequirePermission(auth.PermInventoryManage)

	r.Get("/items", h.ListItems)
	r.With(manage).Post("/items", h.CreateItem)

	r.Route("/items/{itemID}", func(r chi.Router) {
		r.With(manage).Patch("/", h.UpdateItem)
		r.With(manage).Delete("/", h.DeleteItem)
		r.With(sharedauth.RequirePermission(auth.PermInventoryAdjust)).Post("/stock", h.AdjustStock)
		r.With(manage).Get("/logs", h.ListLogs)
	})

	r.Get("/expiry-alerts", h.ExpiryAlerts)
	r.Get("/expiring", h.Expiring)
	r.Get("/filters", h.Filters)
	r.With(sharedauth.RequirePermission(auth.PermInventoryExport)).Get("/export", h.Export)

	return r
}

// ListItems lists items. filter= is applied after the category and
// low_stock query narrowing.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Category: q.Get("category"),
		LowStock: q.Get("low_stock") == "true",
	}

	items, err := h.store.ListItems(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	items, err = FilterItems(items, q.Get("filter"), h.today())
	if err != nil {
		writeError(w, errors.BadRequest(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  items,
		"total": len(items),
	})
}

// CreateItem creates a new inventory item
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	item, err := req.toItem(h.today())
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.store.CreateItem(r.Context(), item); err != nil {
		writeError(w, err)
		return
	}

	h.mutated(r, "inventory.item.created", map[string]any{
		"item_id": item.ID,
		"name":    item.Name,
	})

	writeJSON(w, http.StatusCreated, item)
}

func (req CreateItemRequest) toItem(today civil.Date) (*Item, error) {
	details := map[string]string{}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		details["name"] = "name is required"
	}
	if req.Quantity < 0 {
		details["quantity"] = "quantity cannot be negative"
	}

	reorder := DefaultReorderLevel
	if req.ReorderLevel != nil {
		reorder = *req.ReorderLevel
	}
	if reorder < 0 {
		details["reorder_level"] = "reorder_level cannot be negative"
	}
	if req.CostPrice != nil && req.CostPrice.IsNegative() {
		details["cost_price"] = "cost_price cannot be negative"
	}
	if req.ExpiryDate != nil && req.ExpiryDate.Before(today) {
		details["expiry_date"] = "expiry_date cannot be in the past"
	}

	if len(details) > 0 {
		return nil, errors.Validation("validation failed", details)
	}

	return &Item{
		Name:         name,
		Category:     strings.TrimSpace(req.Category),
		Unit:         strings.TrimSpace(req.Unit),
		Quantity:     req.Quantity,
		ReorderLevel: reorder,
		ExpiryDate:   req.ExpiryDate,
		CostPrice:    req.CostPrice,
	}, nil
}

// UpdateItem applies a partial update
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseItemID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req UpdateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	item, err := h.store.GetItem(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := req.apply(item); err != nil {
		writeError(w, err)
		return
	}

	if err := h.store.UpdateItem(r.Context(), item); err != nil {
		writeError(w, err)
		return
	}

	h.mutated(r, "inventory.item.updated", map[string]any{
		"item_id": item.ID,
		"name":    item.Name,
	})

	writeJSON(w, http.StatusOK, item)
}

func (req UpdateItemRequest) apply(item *Item) error {
	details := map[string]string{}

	if req.Name != nil {
		if name := strings.TrimSpace(*req.Name); name == "" {
			details["name"] = "name cannot be empty"
		} else {
			item.Name = name
		}
	}
	if req.Category != nil {
		item.Category = strings.TrimSpace(*req.Category)
	}
	if req.Unit != nil {
		item.Unit = strings.TrimSpace(*req.Unit)
	}
	if req.Quantity != nil {
		if *req.Quantity < 0 {
			details["quantity"] = "quantity cannot be negative"
		} else {
			item.Quantity = *req.Quantity
		}
	}
	if req.ReorderLevel != nil {
		if *req.ReorderLevel < 0 {
			details["reorder_level"] = "reorder_level cannot be negative"
		} else {
			item.ReorderLevel = *req.ReorderLevel
		}
	}
	if req.ExpiryDate != nil {
		item.ExpiryDate = req.ExpiryDate
	}
	if req.CostPrice != nil {
		if req.CostPrice.IsNegative() {
			details["cost_price"] = "cost_price cannot be negative"
		} else {
			item.CostPrice = req.CostPrice
		}
	}

	if len(details) > 0 {
		return errors.Validation("validation failed", details)
	}
	return nil
}

// AdjustStock adds or removes stock and records the change
func (h *Handler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	id, err := parseItemID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req StockChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	details := map[string]string{}
	if req.ChangeQty == 0 {
		details["change_qty"] = "change_qty must not be zero"
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		details["reason"] = "reason is required"
	}
	if len(details) > 0 {
		writeError(w, errors.Validation("validation failed", details))
		return
	}

	var performedBy *int64
	if user := sharedauth.GetUser(r.Context()); user != nil && user.ID != 0 {
		performedBy = &user.ID
	}

	item, log, err := h.store.AdjustStock(r.Context(), id, req.ChangeQty, reason, performedBy)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.RecordStockAdjustment(req.ChangeQty)

	h.mutated(r, "inventory.stock.adjusted", map[string]any{
		"item_id":    item.ID,
		"change_qty": req.ChangeQty,
		"quantity":   item.Quantity,
		"reason":     reason,
		"low_stock":  IsLowStock(*item),
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"item": item,
		"log":  log,
	})
}

// ListLogs lists the stock changes of an item
func (h *Handler) ListLogs(w http.ResponseWriter, r *http.Request) {
	id, err := parseItemID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	logs, err := h.store.ListLogs(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  logs,
		"total": len(logs),
	})
}

// DeleteItem removes an item and its logs
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseItemID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.store.DeleteItem(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	h.mutated(r, "inventory.item.deleted", map[string]any{"item_id": id})

	w.WriteHeader(http.StatusNoContent)
}

// ExpiryAlerts returns the alert summary for today
func (h *Handler) ExpiryAlerts(w http.ResponseWriter, r *http.Request) {
	today := h.today()

	items, err := h.store.ExpiringItems(r.Context(), today.AddDays(UpcomingDays))
	if err != nil {
		metrics.RecordSnapshotFailure()
		writeError(w, errors.Unavailable(fmt.Errorf("%w: %w", ErrSnapshotUnavailable, err), "inventory snapshot unavailable"))
		return
	}

	writeJSON(w, http.StatusOK, Summarize(items, today))
}

// Expiring lists items expiring within ?days= (default 30), expired included
func (h *Handler) Expiring(w http.ResponseWriter, r *http.Request) {
	days := ExpiringSoonDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, errors.Validation("validation failed", map[string]string{
				"days": "days must be a non-negative integer",
			}))
			return
		}
		days = n
	}

	items, err := h.store.ExpiringItems(r.Context(), h.today().AddDays(days))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  items,
		"total": len(items),
		"days":  days,
	})
}

// Filters returns the item count of every list filter
func (h *Handler) Filters(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListItems(r.Context(), ListFilter{})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CountFilters(items, h.today()))
}

// Export streams the inventory as an XLSX workbook
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	today := h.today()

	items, err := h.store.ListItems(r.Context(), ListFilter{})
	if err != nil {
		writeError(w, err)
		return
	}

	f, err := BuildReport(items, today)
	if err != nil {
		writeError(w, errors.Internal(err))
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", xlsxMIMEType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="inventory-%s.xlsx"`, today))
	if err := f.Write(w); err != nil {
		h.logger.Error("failed to write inventory export", "error", err)
	}
}

// mutated publishes the change and re-arms the server monitor.
func (h *Handler) mutated(r *http.Request, eventType string, data map[string]any) {
	if h.monitor != nil {
		h.monitor.Invalidate()
	}

	if h.bus == nil {
		return
	}

	event := events.NewEvent(eventType, "inventory", data)
	if user := sharedauth.GetUser(r.Context()); user != nil {
		event = event.WithActor(user.ID, string(user.Role))
	}
	if reqID := middleware.RequestIDFromContext(r.Context()); reqID != "" {
		event = event.WithCorrelation(reqID)
	}

	if err := h.bus.Publish(r.Context(), event); err != nil {
		h.logger.Warn("failed to publish inventory event", "type", eventType, "error", err)
	}
}

func parseItemID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.BadRequest("invalid item ID")
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
