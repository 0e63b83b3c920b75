package notification

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vetcore/platform/internal/inventory"
	"github.com/vetcore/platform/internal/shared/metrics"
)

const alertChannel = "inventory_alert"

// DefaultFeedSize is the number of surfaced alerts kept when none is configured.
const DefaultFeedSize = 50

// AlertRecord is one surfaced inventory alert in the staff feed
type AlertRecord struct {
	ID         string               `json:"id"`
	Level      inventory.AlertLevel `json:"level"`
	Message    string               `json:"message"`
	ItemNames  []string             `json:"item_names"`
	Count      int                  `json:"count"`
	SurfacedAt time.Time            `json:"surfaced_at"`
}

// AlertSink receives alerts from the inventory monitor and keeps the most
// recent ones for the dashboard feed.
type AlertSink struct {
	logger *slog.Logger
	size   int
	now    func() time.Time

	mu   sync.RWMutex
	feed []AlertRecord
}

// NewAlertSink creates a sink keeping at most size records
func NewAlertSink(size int, logger *slog.Logger) *AlertSink {
	if size <= 0 {
		size = DefaultFeedSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AlertSink{logger: logger, size: size, now: time.Now}
}

var _ inventory.Sink = (*AlertSink)(nil)

// Notify records a surfaced alert
func (s *AlertSink) Notify(ctx context.Context, event inventory.NotificationEvent) error {
	record := AlertRecord{
		ID:         uuid.NewString(),
		Level:      event.Level,
		Message:    event.Message(),
		ItemNames:  append([]string(nil), event.ItemNames...),
		Count:      event.Count,
		SurfacedAt: s.now(),
	}

	s.mu.Lock()
	s.feed = append(s.feed, record)
	if over := len(s.feed) - s.size; over > 0 {
		s.feed = append(s.feed[:0:0], s.feed[over:]...)
	}
	s.mu.Unlock()

	s.logger.WarnContext(ctx, "inventory alert",
		"level", event.Level,
		"count", event.Count,
		"items", event.ItemNames,
	)
	metrics.RecordNotification(alertChannel, string(StatusSent))
	return nil
}

// Recent returns up to limit records, newest first. limit <= 0 returns all.
func (s *AlertSink) Recent(limit int) []AlertRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.feed)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]AlertRecord, 0, n)
	for i := len(s.feed) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.feed[i])
	}
	return out
}
