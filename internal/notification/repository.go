package notification

import (
	"context"
	stderrors "errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vetcore/platform/internal/shared/errors"
	"github.com/vetcore/platform/internal/shared/metrics"
)

// Repository provides database operations for owner contacts and message logs
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new notification repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// OwnerContact loads the contact details of an owner
func (r *Repository) OwnerContact(ctx context.Context, ownerID int64) (*Owner, error) {
	var o Owner
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, COALESCE(phone, ''), COALESCE(email, '')
		FROM owners WHERE id = $1`, ownerID,
	).Scan(&o.ID, &o.Name, &o.Phone, &o.Email)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("owner", strconv.FormatInt(ownerID, 10))
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get owner")
	}
	return &o, nil
}

// CreateLog inserts a message log and fills its ID and SentAt
func (r *Repository) CreateLog(ctx context.Context, log *Log) error {
	defer observe("notification.create_log", time.Now())

	var errText *string
	if log.Error != "" {
		errText = &log.Error
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO notification_logs (owner_id, appointment_id, channel, message, status, error)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, sent_at`,
		log.OwnerID, log.AppointmentID, string(log.Channel), log.Message, string(log.Status), errText,
	).Scan(&log.ID, &log.SentAt)
	if err != nil {
		return errors.Wrap(err, "failed to record notification")
	}
	return nil
}

// ListLogs lists message logs newest first
func (r *Repository) ListLogs(ctx context.Context, ownerID *int64) ([]Log, error) {
	defer observe("notification.list_logs", time.Now())

	query := `
		SELECT id, owner_id, appointment_id, channel, message, status, COALESCE(error, ''), sent_at
		FROM notification_logs`
	var args []any
	if ownerID != nil {
		query += ` WHERE owner_id = $1`
		args = append(args, *ownerID)
	}
	query += ` ORDER BY sent_at DESC, id DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list notifications")
	}
	defer rows.Close()

	logs := []Log{}
	for rows.Next() {
		var (
			l       Log
			channel string
			status  string
		)
		if err := rows.Scan(&l.ID, &l.OwnerID, &l.AppointmentID, &channel, &l.Message, &status, &l.Error, &l.SentAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan notification")
		}
		l.Channel = Channel(channel)
		l.Status = Status(status)
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to list notifications")
	}
	return logs, nil
}

func observe(operation string, start time.Time) {
	metrics.RecordDBQuery(operation, time.Since(start))
}
