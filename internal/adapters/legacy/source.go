package legacy

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	_ "github.com/denisenkom/go-mssqldb" // SQL Server driver
	"github.com/golang-sql/civil"
	"github.com/shopspring/decimal"

	"github.com/vetcore/platform/internal/inventory"
	"github.com/vetcore/platform/internal/shared/config"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Source reads stock items from the previous practice management database.
// It is read-only.
type Source struct {
	db    *sql.DB
	table string
}

var _ inventory.Source = (*Source)(nil)

// DSN builds a sqlserver:// connection URL.
func DSN(cfg config.LegacyConfig) string {
	u := &url.URL{
		Scheme: "sqlserver",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
	}
	q := url.Values{}
	q.Set("database", cfg.Database)
	q.Set("app name", "vetcore")
	u.RawQuery = q.Encode()
	return u.String()
}

// Open connects to SQL Server and verifies the connection.
func Open(ctx context.Context, cfg config.LegacyConfig) (*Source, error) {
	db, err := sql.Open("sqlserver", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open legacy database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping legacy database: %w", err)
	}

	src, err := NewSource(db, cfg.ItemTable)
	if err != nil {
		db.Close()
		return nil, err
	}
	return src, nil
}

// NewSource wraps an open database. table may be schema qualified.
func NewSource(db *sql.DB, table string) (*Source, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid legacy item table %q", table)
	}
	return &Source{db: db, table: table}, nil
}

// ListItems returns every row of the item table mapped onto inventory items.
// Missing reorder levels fall back to the default; blank categories stay blank.
func (s *Source) ListItems(ctx context.Context) ([]inventory.Item, error) {
	query := fmt.Sprintf(`
		SELECT ItemID, Name, Category, Unit, Quantity, ReorderLevel, ExpiryDate, CostPrice, ModifiedAt
		FROM %s
		ORDER BY Name`, s.table)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query legacy items: %w", err)
	}
	defer rows.Close()

	items := []inventory.Item{}
	for rows.Next() {
		var (
			item     inventory.Item
			category sql.NullString
			unit     sql.NullString
			reorder  sql.NullInt64
			expiry   sql.NullTime
			cost     decimal.NullDecimal
			modified sql.NullTime
		)
		if err := rows.Scan(&item.ID, &item.Name, &category, &unit, &item.Quantity,
			&reorder, &expiry, &cost, &modified); err != nil {
			return nil, fmt.Errorf("scan legacy item: %w", err)
		}

		item.Name = strings.TrimSpace(item.Name)
		item.Category = strings.ToLower(strings.TrimSpace(category.String))
		item.Unit = strings.TrimSpace(unit.String)
		item.ReorderLevel = inventory.DefaultReorderLevel
		if reorder.Valid {
			item.ReorderLevel = int(reorder.Int64)
		}
		if expiry.Valid {
			d := civil.DateOf(expiry.Time)
			item.ExpiryDate = &d
		}
		if cost.Valid {
			c := cost.Decimal
			item.CostPrice = &c
		}
		if modified.Valid {
			item.UpdatedAt = modified.Time
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate legacy items: %w", err)
	}
	return items, nil
}

// Health pings the database.
func (s *Source) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Source) Close() error {
	return s.db.Close()
}
