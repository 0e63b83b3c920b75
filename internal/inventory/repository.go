package inventory

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-sql/civil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/vetcore/platform/internal/shared/errors"
	"github.com/vetcore/platform/internal/shared/metrics"
)

// ErrNegativeStock is returned when an adjustment would drop below zero.
var ErrNegativeStock = stderrors.New("stock cannot go below zero")

// Repository provides database operations for inventory items and logs
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new inventory repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const itemColumns = `id, name, category, unit, quantity, reorder_level, expiry_date, cost_price::text, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*Item, error) {
	var (
		item   Item
		expiry pgtype.Date
		cost   *string
	)
	if err := row.Scan(
		&item.ID, &item.Name, &item.Category, &item.Unit, &item.Quantity, &item.ReorderLevel,
		&expiry, &cost, &item.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if expiry.Valid {
		d := civil.DateOf(expiry.Time)
		item.ExpiryDate = &d
	}
	if cost != nil {
		price, err := decimal.NewFromString(*cost)
		if err != nil {
			return nil, fmt.Errorf("parse cost_price %q: %w", *cost, err)
		}
		item.CostPrice = &price
	}
	return &item, nil
}

func dateArg(d *civil.Date) pgtype.Date {
	if d == nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: d.In(time.UTC), Valid: true}
}

func decimalArg(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.StringFixed(2)
	return &s
}

// CreateItem inserts an item and fills its ID and UpdatedAt
func (r *Repository) CreateItem(ctx context.Context, item *Item) error {
	defer observe("inventory.create", time.Now())

	query := `
		INSERT INTO inventory_items (name, category, unit, quantity, reorder_level, expiry_date, cost_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric)
		RETURNING id, updated_at`

	err := r.pool.QueryRow(ctx, query,
		item.Name, item.Category, item.Unit, item.Quantity, item.ReorderLevel,
		dateArg(item.ExpiryDate), decimalArg(item.CostPrice),
	).Scan(&item.ID, &item.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to create inventory item")
	}
	return nil
}

// GetItem retrieves an item by ID
func (r *Repository) GetItem(ctx context.Context, id int64) (*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM inventory_items WHERE id = $1`

	item, err := scanItem(r.pool.QueryRow(ctx, query, id))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("inventory item", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get inventory item")
	}
	return item, nil
}

// ListItems lists items, nearest expiry first, undated items last, then by name
func (r *Repository) ListItems(ctx context.Context, filter ListFilter) ([]Item, error) {
	defer observe("inventory.list", time.Now())

	var (
		conditions []string
		args       []any
	)
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.LowStock {
		conditions = append(conditions, "quantity <= reorder_level")
	}

	query := `SELECT ` + itemColumns + ` FROM inventory_items`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY expiry_date ASC NULLS LAST, name ASC"

	return r.queryItems(ctx, query, args...)
}

// ExpiringItems lists dated items expiring on or before cutoff, soonest first
func (r *Repository) ExpiringItems(ctx context.Context, cutoff civil.Date) ([]Item, error) {
	query := `SELECT ` + itemColumns + ` FROM inventory_items
		WHERE expiry_date IS NOT NULL AND expiry_date <= $1
		ORDER BY expiry_date ASC, name ASC`

	return r.queryItems(ctx, query, dateArg(&cutoff))
}

func (r *Repository) queryItems(ctx context.Context, query string, args ...any) ([]Item, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list inventory items")
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan inventory item")
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to list inventory items")
	}
	return items, nil
}

// UpdateItem writes all mutable fields of an item
func (r *Repository) UpdateItem(ctx context.Context, item *Item) error {
	query := `
		UPDATE inventory_items SET
			name = $2, category = $3, unit = $4, quantity = $5, reorder_level = $6,
			expiry_date = $7, cost_price = $8::numeric, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.pool.QueryRow(ctx, query,
		item.ID, item.Name, item.Category, item.Unit, item.Quantity, item.ReorderLevel,
		dateArg(item.ExpiryDate), decimalArg(item.CostPrice),
	).Scan(&item.UpdatedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.NotFound("inventory item", strconv.FormatInt(item.ID, 10))
	}
	if err != nil {
		return errors.Wrap(err, "failed to update inventory item")
	}
	return nil
}

// AdjustStock applies a stock change and records it, in one transaction.
// The item row is locked so concurrent adjustments cannot oversell.
func (r *Repository) AdjustStock(ctx context.Context, itemID int64, changeQty int, reason string, performedBy *int64) (*Item, *StockLog, error) {
	defer observe("inventory.adjust", time.Now())

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	var quantity int
	err = tx.QueryRow(ctx, `SELECT quantity FROM inventory_items WHERE id = $1 FOR UPDATE`, itemID).Scan(&quantity)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, nil, errors.NotFound("inventory item", strconv.FormatInt(itemID, 10))
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to lock inventory item")
	}

	if quantity+changeQty < 0 {
		return nil, nil, &errors.AppError{
			Err:        ErrNegativeStock,
			Message:    ErrNegativeStock.Error(),
			Code:       "NEGATIVE_STOCK",
			HTTPStatus: http.StatusBadRequest,
			Details: map[string]string{
				"quantity":   strconv.Itoa(quantity),
				"change_qty": strconv.Itoa(changeQty),
			},
		}
	}

	item, err := scanItem(tx.QueryRow(ctx, `
		UPDATE inventory_items SET quantity = quantity + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+itemColumns, itemID, changeQty))
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to update stock")
	}

	log := &StockLog{ItemID: itemID, ChangeQty: changeQty, Reason: reason, PerformedBy: performedBy}
	err = tx.QueryRow(ctx, `
		INSERT INTO inventory_logs (item_id, change_qty, reason, performed_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		itemID, changeQty, reason, performedBy,
	).Scan(&log.ID, &log.CreatedAt)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to record stock change")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, errors.Wrap(err, "failed to commit stock change")
	}
	return item, log, nil
}

// ListLogs returns stock logs of an item, newest first
func (r *Repository) ListLogs(ctx context.Context, itemID int64) ([]StockLog, error) {
	if _, err := r.GetItem(ctx, itemID); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, item_id, change_qty, reason, performed_by, created_at
		FROM inventory_logs
		WHERE item_id = $1
		ORDER BY created_at DESC, id DESC`, itemID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list stock logs")
	}
	defer rows.Close()

	logs := []StockLog{}
	for rows.Next() {
		var l StockLog
		if err := rows.Scan(&l.ID, &l.ItemID, &l.ChangeQty, &l.Reason, &l.PerformedBy, &l.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan stock log")
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to list stock logs")
	}
	return logs, nil
}

// DeleteItem removes an item together with its stock logs
func (r *Repository) DeleteItem(ctx context.Context, id int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM inventory_logs WHERE item_id = $1`, id); err != nil {
		return errors.Wrap(err, "failed to delete stock logs")
	}

	result, err := tx.Exec(ctx, `DELETE FROM inventory_items WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete inventory item")
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("inventory item", strconv.FormatInt(id, 10))
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit delete")
	}
	return nil
}

// Snapshot exposes the full item list as a monitor Source.
func (r *Repository) Snapshot() Source {
	return repositorySource{r}
}

type repositorySource struct {
	repo *Repository
}

func (s repositorySource) ListItems(ctx context.Context) ([]Item, error) {
	return s.repo.ListItems(ctx, ListFilter{})
}

func observe(operation string, start time.Time) {
	metrics.RecordDBQuery(operation, time.Since(start))
}
