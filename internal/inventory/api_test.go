package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/golang-sql/civil"
	"github.com/vetcore/platform/internal/auth"
	sharedauth "github.com/vetcore/platform/internal/shared/auth"
	"github.com/vetcore/platform/internal/shared/errors"
	"github.com/vetcore/platform/internal/shared/events"
	"github.com/xuri/excelize/v2"
)

type memoryStore struct {
	mu     sync.Mutex
	items  map[int64]*Item
	logs   []StockLog
	nextID int64
	err    error
}

func newMemoryStore(items ...Item) *memoryStore {
	s := &memoryStore{items: map[int64]*Item{}}
	for _, item := range items {
		item := item
		s.items[item.ID] = &item
		if item.ID > s.nextID {
			s.nextID = item.ID
		}
	}
	return s
}

func (s *memoryStore) CreateItem(ctx context.Context, item *Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	item.ID = s.nextID
	copied := *item
	s.items[item.ID] = &copied
	return nil
}

func (s *memoryStore) GetItem(ctx context.Context, id int64) (*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, errors.NotFound("inventory item", strconv.FormatInt(id, 10))
	}
	copied := *item
	return &copied, nil
}

func (s *memoryStore) ListItems(ctx context.Context, filter ListFilter) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := []Item{}
	for id := int64(1); id <= s.nextID; id++ {
		item, ok := s.items[id]
		if !ok {
			continue
		}
		if filter.Category != "" && item.Category != filter.Category {
			continue
		}
		if filter.LowStock && !IsLowStock(*item) {
			continue
		}
		out = append(out, *item)
	}
	return out, nil
}

func (s *memoryStore) ExpiringItems(ctx context.Context, cutoff civil.Date) ([]Item, error) {
	items, err := s.ListItems(ctx, ListFilter{})
	if err != nil {
		return nil, err
	}
	out := []Item{}
	for _, item := range items {
		if item.ExpiryDate != nil && !item.ExpiryDate.After(cutoff) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *memoryStore) UpdateItem(ctx context.Context, item *Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *item
	s.items[item.ID] = &copied
	return nil
}

func (s *memoryStore) AdjustStock(ctx context.Context, itemID int64, changeQty int, reason string, performedBy *int64) (*Item, *StockLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok {
		return nil, nil, errors.NotFound("inventory item", strconv.FormatInt(itemID, 10))
	}
	if item.Quantity+changeQty < 0 {
		return nil, nil, errors.BadRequest(ErrNegativeStock.Error())
	}
	item.Quantity += changeQty
	log := StockLog{ID: int64(len(s.logs) + 1), ItemID: itemID, ChangeQty: changeQty, Reason: reason, PerformedBy: performedBy}
	s.logs = append(s.logs, log)
	copied := *item
	return &copied, &log, nil
}

func (s *memoryStore) ListLogs(ctx context.Context, itemID int64) ([]StockLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []StockLog{}
	for i := len(s.logs) - 1; i >= 0; i-- {
		if s.logs[i].ItemID == itemID {
			out = append(out, s.logs[i])
		}
	}
	return out, nil
}

func (s *memoryStore) DeleteItem(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return errors.NotFound("inventory item", strconv.FormatInt(id, 10))
	}
	delete(s.items, id)
	return nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(ctx context.Context, event events.Event) error {
	b.mu.Lock()
	b.events = append(b.events, event)
	b.mu.Unlock()
	return nil
}

func (b *recordingBus) Subscribe(ctx context.Context, pattern, consumerName string, handler events.Handler) error {
	return nil
}

func (b *recordingBus) Close()        {}
func (b *recordingBus) Health() error { return nil }

func (b *recordingBus) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.events))
	for i, e := range b.events {
		out[i] = e.Type
	}
	return out
}

var (
	admin        = &sharedauth.User{ID: 1, Username: "admin", Name: "Admin", Role: auth.RoleAdmin}
	doctor       = &sharedauth.User{ID: 2, Username: "drvet", Name: "Dr. Vet", Role: auth.RoleDoctor}
	receptionist = &sharedauth.User{ID: 3, Username: "front", Name: "Front Desk", Role: auth.RoleReceptionist}
)

type fixture struct {
	store   *memoryStore
	bus     *recordingBus
	monitor *Monitor
	sink    *recordingSink
	router  http.Handler
}

func newFixture(items ...Item) *fixture {
	f := &fixture{store: newMemoryStore(items...), bus: &recordingBus{}, sink: &recordingSink{}}
	f.monitor, _ = newTestMonitor(f.store.snapshot(), f.sink)
	f.router = NewHandler(f.store, f.bus, f.monitor, quietLogger()).Routes()
	return f
}

func (s *memoryStore) snapshot() Source {
	return sourceFunc(func(ctx context.Context) ([]Item, error) {
		return s.ListItems(ctx, ListFilter{})
	})
}

type sourceFunc func(ctx context.Context) ([]Item, error)

func (f sourceFunc) ListItems(ctx context.Context) ([]Item, error) { return f(ctx) }

func (f *fixture) do(user *sharedauth.User, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader([]byte(body)))
	if user != nil {
		req = req.WithContext(sharedauth.WithUser(req.Context(), user))
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) (string, map[string]string) {
	t.Helper()
	var body struct {
		Code    string            `json:"code"`
		Details map[string]string `json:"details"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Code, body.Details
}

func TestCreateItem(t *testing.T) {
	f := newFixture()

	rr := f.do(admin, http.MethodPost, "/items", `{"name":" Rabies vaccine ","category":"vaccine","quantity":12,"expiry_date":"2025-04-01","cost_price":"4.50"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body)
	}

	var item Item
	if err := json.NewDecoder(rr.Body).Decode(&item); err != nil {
		t.Fatal(err)
	}
	if item.ID == 0 || item.Name != "Rabies vaccine" || item.ReorderLevel != DefaultReorderLevel {
		t.Errorf("unexpected item %+v", item)
	}
	if item.CostPrice == nil || item.CostPrice.StringFixed(2) != "4.50" {
		t.Errorf("unexpected cost price %v", item.CostPrice)
	}

	if got := f.bus.types(); len(got) != 1 || got[0] != "inventory.item.created" {
		t.Errorf("unexpected events %v", got)
	}
}

func TestCreateItemValidation(t *testing.T) {
	f := newFixture()

	rr := f.do(admin, http.MethodPost, "/items", `{"name":"","quantity":-1,"reorder_level":-2,"cost_price":"-1","expiry_date":"2025-03-09"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	code, details := decodeError(t, rr)
	if code != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR, got %s", code)
	}
	for _, field := range []string{"name", "quantity", "reorder_level", "cost_price", "expiry_date"} {
		if _, ok := details[field]; !ok {
			t.Errorf("expected detail for %s, got %v", field, details)
		}
	}
}

func TestCreateItemAcceptsTodayExpiry(t *testing.T) {
	f := newFixture()

	rr := f.do(admin, http.MethodPost, "/items", `{"name":"saline","expiry_date":"2025-03-10"}`)
	if rr.Code != http.StatusCreated {
		t.Errorf("expected expiry today to be accepted, got %d", rr.Code)
	}
}

func TestRoleEnforcement(t *testing.T) {
	f := newFixture(dated(1, "rabies", 5))

	tests := []struct {
		name   string
		user   *sharedauth.User
		method string
		target string
		body   string
		want   int
	}{
		{"doctor cannot create", doctor, http.MethodPost, "/items", `{"name":"x"}`, http.StatusForbidden},
		{"receptionist cannot delete", receptionist, http.MethodDelete, "/items/1", "", http.StatusForbidden},
		{"doctor cannot read logs", doctor, http.MethodGet, "/items/1/logs", "", http.StatusForbidden},
		{"receptionist cannot export", receptionist, http.MethodGet, "/export", "", http.StatusForbidden},
		{"admin can export", admin, http.MethodGet, "/export", "", http.StatusOK},
		{"admin can read logs", admin, http.MethodGet, "/items/1/logs", "", http.StatusOK},
		{"anonymous cannot create", nil, http.MethodPost, "/items", `{"name":"x"}`, http.StatusUnauthorized},
		{"doctor can list", doctor, http.MethodGet, "/items", "", http.StatusOK},
		{"receptionist can adjust", receptionist, http.MethodPost, "/items/1/stock", `{"change_qty":-1,"reason":"used"}`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(tt.user, tt.method, tt.target, tt.body)
			if rr.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rr.Code, rr.Body)
			}
		})
	}
}

func TestListItemsFilters(t *testing.T) {
	vaccine := dated(1, "rabies", 5)
	vaccine.Category = CategoryVaccine
	supply := dated(2, "gauze", 200)
	supply.Category = CategorySupply
	supply.Quantity = 1
	f := newFixture(vaccine, supply)

	tests := []struct {
		target string
		want   int
	}{
		{"/items", 2},
		{"/items?category=vaccine", 1},
		{"/items?low_stock=true", 1},
		{"/items?filter=expiring_soon", 1},
		{"/items?category=supply&filter=expiring_soon", 0},
	}

	for _, tt := range tests {
		rr := f.do(doctor, http.MethodGet, tt.target, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", tt.target, rr.Code)
		}
		var resp struct {
			Total int `json:"total"`
		}
		json.NewDecoder(rr.Body).Decode(&resp)
		if resp.Total != tt.want {
			t.Errorf("%s: expected %d items, got %d", tt.target, tt.want, resp.Total)
		}
	}

	rr := f.do(doctor, http.MethodGet, "/items?filter=bogus", "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown filter, got %d", rr.Code)
	}
}

func TestAdjustStock(t *testing.T) {
	item := dated(1, "rabies", 5)
	item.Quantity = 3
	f := newFixture(item)

	rr := f.do(doctor, http.MethodPost, "/items/1/stock", `{"change_qty":-2,"reason":" administered "}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body)
	}

	var resp struct {
		Item Item     `json:"item"`
		Log  StockLog `json:"log"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Item.Quantity != 1 {
		t.Errorf("expected quantity 1, got %d", resp.Item.Quantity)
	}
	if resp.Log.Reason != "administered" || resp.Log.PerformedBy == nil || *resp.Log.PerformedBy != doctor.ID {
		t.Errorf("unexpected log %+v", resp.Log)
	}

	if got := f.bus.types(); len(got) != 1 || got[0] != "inventory.stock.adjusted" {
		t.Errorf("unexpected events %v", got)
	}
	if f.bus.events[0].ActorID != doctor.ID || f.bus.events[0].ActorRole != "doctor" {
		t.Errorf("unexpected actor on event %+v", f.bus.events[0])
	}
}

func TestAdjustStockRejects(t *testing.T) {
	item := dated(1, "rabies", 5)
	item.Quantity = 3
	f := newFixture(item)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"zero change", "/items/1/stock", `{"change_qty":0,"reason":"count"}`, http.StatusBadRequest},
		{"blank reason", "/items/1/stock", `{"change_qty":1,"reason":"   "}`, http.StatusBadRequest},
		{"below zero", "/items/1/stock", `{"change_qty":-4,"reason":"used"}`, http.StatusBadRequest},
		{"unknown item", "/items/99/stock", `{"change_qty":1,"reason":"found"}`, http.StatusNotFound},
		{"bad id", "/items/abc/stock", `{"change_qty":1,"reason":"found"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(doctor, http.MethodPost, tt.path, tt.body)
			if rr.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rr.Code, rr.Body)
			}
		})
	}

	if len(f.bus.types()) != 0 {
		t.Error("rejected adjustments must not publish events")
	}
}

func TestMutationRearmsMonitor(t *testing.T) {
	f := newFixture(dated(1, "rabies", -1))

	f.monitor.Refresh(context.Background())
	f.monitor.Refresh(context.Background())
	if f.sink.count() != 1 {
		t.Fatalf("expected 1 alert before mutation, got %d", f.sink.count())
	}

	rr := f.do(admin, http.MethodPatch, "/items/1", `{"quantity":0}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	f.monitor.Refresh(context.Background())
	if f.sink.count() != 2 {
		t.Errorf("expected re-alert after update, got %d", f.sink.count())
	}
}

func TestUpdateAndDeleteItem(t *testing.T) {
	f := newFixture(dated(1, "rabies", 5))

	rr := f.do(admin, http.MethodPatch, "/items/1", `{"name":"Rabies (1yr)","reorder_level":-1}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for negative reorder level, got %d", rr.Code)
	}

	rr = f.do(admin, http.MethodPatch, "/items/1", `{"name":"Rabies (1yr)","unit":"vial"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var item Item
	json.NewDecoder(rr.Body).Decode(&item)
	if item.Name != "Rabies (1yr)" || item.Unit != "vial" || item.Quantity != 20 {
		t.Errorf("unexpected item after update %+v", item)
	}

	rr = f.do(admin, http.MethodDelete, "/items/1", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	rr = f.do(admin, http.MethodDelete, "/items/1", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", rr.Code)
	}

	want := []string{"inventory.item.updated", "inventory.item.deleted"}
	got := f.bus.types()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected events %v, got %v", want, got)
	}
}

func TestListLogsNewestFirst(t *testing.T) {
	f := newFixture(dated(1, "rabies", 5))
	f.do(admin, http.MethodPost, "/items/1/stock", `{"change_qty":5,"reason":"delivery"}`)
	f.do(admin, http.MethodPost, "/items/1/stock", `{"change_qty":-1,"reason":"used"}`)

	rr := f.do(admin, http.MethodGet, "/items/1/logs", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp struct {
		Data []StockLog `json:"data"`
	}
	json.NewDecoder(rr.Body).Decode(&resp)
	if len(resp.Data) != 2 || resp.Data[0].Reason != "used" {
		t.Errorf("unexpected logs %+v", resp.Data)
	}
}

func TestExpiryAlertsEndpoint(t *testing.T) {
	f := newFixture(dated(1, "rabies", -1), dated(2, "saline", 20), dated(3, "gauze", 300))

	rr := f.do(receptionist, http.MethodGet, "/expiry-alerts", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var s AlertSummary
	if err := json.NewDecoder(rr.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	if s.TotalAlerts != 2 || len(s.Expired) != 1 || len(s.Warning) != 1 {
		t.Errorf("unexpected summary %+v", s)
	}
}

func TestExpiryAlertsUnavailable(t *testing.T) {
	f := newFixture()
	f.store.err = errors.Internal(nil)

	rr := f.do(doctor, http.MethodGet, "/expiry-alerts", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if code, _ := decodeError(t, rr); code != "SNAPSHOT_UNAVAILABLE" {
		t.Errorf("expected SNAPSHOT_UNAVAILABLE, got %s", code)
	}
}

func TestExpiringEndpoint(t *testing.T) {
	f := newFixture(dated(1, "a", -1), dated(2, "b", 10), dated(3, "c", 45))

	tests := []struct {
		target string
		code   int
		total  int
	}{
		{"/expiring", http.StatusOK, 2},
		{"/expiring?days=60", http.StatusOK, 3},
		{"/expiring?days=0", http.StatusOK, 1},
		{"/expiring?days=-5", http.StatusBadRequest, 0},
		{"/expiring?days=soon", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		rr := f.do(doctor, http.MethodGet, tt.target, "")
		if rr.Code != tt.code {
			t.Errorf("%s: expected %d, got %d", tt.target, tt.code, rr.Code)
			continue
		}
		if tt.code != http.StatusOK {
			continue
		}
		var resp struct {
			Total int `json:"total"`
		}
		json.NewDecoder(rr.Body).Decode(&resp)
		if resp.Total != tt.total {
			t.Errorf("%s: expected %d, got %d", tt.target, tt.total, resp.Total)
		}
	}
}

func TestFiltersEndpoint(t *testing.T) {
	f := newFixture(filterFixture()...)

	rr := f.do(doctor, http.MethodGet, "/filters", "")
	var got FilterCounts
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.All != 4 || got.LowStock != 2 || got.ExpiringSoon != 2 {
		t.Errorf("unexpected counts %+v", got)
	}
}

func TestExportEndpoint(t *testing.T) {
	low := dated(2, "saline", 3)
	low.Quantity = 1
	f := newFixture(dated(1, "rabies", -1), low)

	rr := f.do(admin, http.MethodGet, "/export", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body)
	}
	if ct := rr.Header().Get("Content-Type"); ct != xlsxMIMEType {
		t.Errorf("unexpected content type %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "inventory-2025-03-10.xlsx") {
		t.Errorf("unexpected content disposition %q", cd)
	}

	wb, err := excelize.OpenReader(rr.Body)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer wb.Close()

	rows, err := wb.GetRows(reportSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header and 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "ID" || rows[1][9] != string(LevelExpired) || rows[2][6] != "yes" {
		t.Errorf("unexpected rows %v", rows)
	}

	alerts, err := wb.GetRows(alertsSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 3 || alerts[1][0] != string(LevelExpired) || alerts[2][0] != string(LevelCritical) {
		t.Errorf("unexpected alert rows %v", alerts)
	}
}
