package owner

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vetcore/platform/internal/shared/errors"
	"github.com/vetcore/platform/internal/shared/metrics"
)

// Repository provides database operations for owners
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new owner repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const ownerColumns = `id, name, phone, email, address, created_at`

func scanOwner(row pgx.Row) (*Owner, error) {
	var o Owner
	if err := row.Scan(&o.ID, &o.Name, &o.Phone, &o.Email, &o.Address, &o.CreatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}

// Create inserts an owner and fills its id and creation time
func (r *Repository) Create(ctx context.Context, o *Owner) error {
	defer observe("owner.create", time.Now())

	err := r.pool.QueryRow(ctx, `
		INSERT INTO owners (name, phone, email, address)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		o.Name, o.Phone, o.Email, o.Address,
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to create owner")
	}
	return nil
}

// Get returns an owner by id
func (r *Repository) Get(ctx context.Context, id int64) (*Owner, error) {
	o, err := scanOwner(r.pool.QueryRow(ctx, `SELECT `+ownerColumns+` FROM owners WHERE id = $1`, id))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("owner", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get owner")
	}
	return o, nil
}

// List returns owners newest first, narrowed by filter
func (r *Repository) List(ctx context.Context, filter SearchFilter) ([]Owner, error) {
	defer observe("owner.list", time.Now())

	var (
		where []string
		args  []any
	)
	if filter.Phone != "" {
		args = append(args, filter.Phone)
		where = append(where, fmt.Sprintf("phone = $%d", len(args)))
	}
	if filter.Email != "" {
		args = append(args, filter.Email)
		where = append(where, fmt.Sprintf("LOWER(email) = $%d", len(args)))
	}

	query := `SELECT ` + ownerColumns + ` FROM owners`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list owners")
	}
	defer rows.Close()

	owners := []Owner{}
	for rows.Next() {
		o, err := scanOwner(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan owner")
		}
		owners = append(owners, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to list owners")
	}
	return owners, nil
}

func observe(operation string, start time.Time) {
	metrics.RecordDBQuery(operation, time.Since(start))
}
