package staff

import (
	"context"
	stderrors "errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vetcore/platform/internal/auth"
	"github.com/vetcore/platform/internal/shared/errors"
	"github.com/vetcore/platform/internal/shared/metrics"
)

const uniqueViolation = "23505"

// Repository provides database operations for staff accounts
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new staff repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const memberColumns = `id, name, username, email, role, is_active, created_at`

func scanMember(row pgx.Row) (*Member, error) {
	var (
		m    Member
		role string
	)
	if err := row.Scan(&m.ID, &m.Name, &m.Username, &m.Email, &role, &m.IsActive, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.Role = auth.Role(role)
	return &m, nil
}

// List returns all staff ordered by id
func (r *Repository) List(ctx context.Context) ([]Member, error) {
	defer observe("staff.list", time.Now())

	rows, err := r.pool.Query(ctx, `SELECT `+memberColumns+` FROM staff_users ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list staff")
	}
	defer rows.Close()

	members := []Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan staff")
		}
		members = append(members, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to list staff")
	}
	return members, nil
}

// Get returns a member by id
func (r *Repository) Get(ctx context.Context, id int64) (*Member, error) {
	m, err := scanMember(r.pool.QueryRow(ctx, `SELECT `+memberColumns+` FROM staff_users WHERE id = $1`, id))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("staff member", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get staff member")
	}
	return m, nil
}

// ActiveByUsername returns the active member with username. Missing and
// inactive members are both reported as not found.
func (r *Repository) ActiveByUsername(ctx context.Context, username string) (*Member, error) {
	defer observe("staff.active_by_username", time.Now())

	m, err := scanMember(r.pool.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM staff_users WHERE username = $1 AND is_active`, username))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("staff member", username)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get staff member")
	}
	return m, nil
}

// CountActive returns the number of active members
func (r *Repository) CountActive(ctx context.Context) (int, error) {
	defer observe("staff.count_active", time.Now())

	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM staff_users WHERE is_active`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "failed to count staff")
	}
	return n, nil
}

// Create inserts a member and fills its id and creation time
func (r *Repository) Create(ctx context.Context, m *Member) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO staff_users (name, username, email, role, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		m.Name, m.Username, m.Email, string(m.Role), m.IsActive,
	).Scan(&m.ID, &m.CreatedAt)
	if isUniqueViolation(err) {
		return errors.Conflict("username or email already exists")
	}
	if err != nil {
		return errors.Wrap(err, "failed to create staff member")
	}
	return nil
}

// SetActive changes the active flag
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) (*Member, error) {
	m, err := scanMember(r.pool.QueryRow(ctx, `
		UPDATE staff_users SET is_active = $2 WHERE id = $1
		RETURNING `+memberColumns, id, active))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("staff member", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to update staff status")
	}
	return m, nil
}

// UpdateProfile writes name, username and email
func (r *Repository) UpdateProfile(ctx context.Context, m *Member) error {
	err := r.pool.QueryRow(ctx, `
		UPDATE staff_users SET name = $2, username = $3, email = $4
		WHERE id = $1
		RETURNING created_at`,
		m.ID, m.Name, m.Username, m.Email,
	).Scan(&m.CreatedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.NotFound("staff member", strconv.FormatInt(m.ID, 10))
	}
	if isUniqueViolation(err) {
		return errors.Conflict("username or email already exists")
	}
	if err != nil {
		return errors.Wrap(err, "failed to update staff profile")
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func observe(operation string, start time.Time) {
	metrics.RecordDBQuery(operation, time.Since(start))
}
