package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-sql/civil"
	"github.com/vetcore/platform/internal/shared/metrics"
)

// Source lists the current inventory.
type Source interface {
	ListItems(ctx context.Context) ([]Item, error)
}

// SummarySource returns an alert summary computed elsewhere, used only to
// cross-check local classification.
type SummarySource interface {
	ExpiryAlerts(ctx context.Context) (AlertSummary, error)
}

// Sink receives surfaced alert events.
type Sink interface {
	Notify(ctx context.Context, event NotificationEvent) error
}

// SnapshotStatus tells a real zero-alert snapshot apart from a failed fetch.
type SnapshotStatus string

const (
	SnapshotReady       SnapshotStatus = "ready"
	SnapshotUnavailable SnapshotStatus = "unavailable"
)

// Snapshot is the result of one Refresh.
type Snapshot struct {
	Status    SnapshotStatus      `json:"status"`
	Date      civil.Date          `json:"date"`
	FetchedAt time.Time           `json:"fetched_at"`
	Items     []Item              `json:"-"`
	Summary   AlertSummary        `json:"summary"`
	Filters   FilterCounts        `json:"filters"`
	Surfaced  []NotificationEvent `json:"surfaced,omitempty"`
	Verified  bool                `json:"verified"`
}

// Monitor fetches snapshots, classifies them and surfaces alerts at most
// once per snapshot. Refresh calls are serialized.
type Monitor struct {
	source    Source
	summaries SummarySource
	sink      Sink
	logger    *slog.Logger
	now       func() time.Time
	loc       *time.Location

	mu       sync.Mutex
	guard    SurfaceGuard
	lastDate civil.Date
	last     Snapshot
}

type MonitorOption func(*Monitor)

// WithSummarySource cross-checks each snapshot against src.
func WithSummarySource(src SummarySource) MonitorOption {
	return func(m *Monitor) { m.summaries = src }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) { m.now = now }
}

// WithLocation sets the time zone that decides the calendar day.
func WithLocation(loc *time.Location) MonitorOption {
	return func(m *Monitor) { m.loc = loc }
}

func NewMonitor(source Source, sink Sink, logger *slog.Logger, opts ...MonitorOption) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		source: source,
		sink:   sink,
		logger: logger,
		now:    time.Now,
		loc:    time.Local,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Today is the calendar date the monitor classifies against.
func (m *Monitor) Today() civil.Date {
	return civil.DateOf(m.now().In(m.loc))
}

// Refresh fetches and classifies a snapshot. On fetch failure it returns an
// unavailable snapshot and an error wrapping ErrSnapshotUnavailable without
// touching the guard. A snapshot taken on a new calendar day counts as new
// and may alert again.
func (m *Monitor) Refresh(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fetchedAt := m.now()
	today := civil.DateOf(fetchedAt.In(m.loc))

	items, err := m.source.ListItems(ctx)
	if err != nil {
		metrics.RecordSnapshotFailure()
		m.logger.Warn("inventory snapshot unavailable", "error", err)
		m.last = Snapshot{Status: SnapshotUnavailable, Date: today, FetchedAt: fetchedAt}
		return m.last, fmt.Errorf("%w: %w", ErrSnapshotUnavailable, err)
	}

	if !m.lastDate.IsValid() || m.lastDate != today {
		if m.lastDate.IsValid() {
			m.logger.Info("calendar day changed, alerts re-armed", "from", m.lastDate.String(), "to", today.String())
		}
		m.guard.Invalidate()
		m.lastDate = today
	}

	snap := Snapshot{
		Status:    SnapshotReady,
		Date:      today,
		FetchedAt: fetchedAt,
		Items:     items,
		Summary:   Summarize(items, today),
		Filters:   CountFilters(items, today),
	}
	snap.Verified = m.verify(ctx, snap.Summary)

	for _, level := range []AlertLevel{LevelExpired, LevelCritical, LevelWarning, LevelUpcoming} {
		metrics.SetAlertItems(string(level), len(snap.Summary.Bucket(level)))
	}

	if m.guard.MarkSurfaced() {
		snap.Surfaced = NotifyOnce(snap.Summary)
		for _, event := range snap.Surfaced {
			metrics.RecordAlertSurfaced(string(event.Level))
			if m.sink == nil {
				continue
			}
			if err := m.sink.Notify(ctx, event); err != nil {
				m.logger.Error("failed to deliver inventory alert", "level", event.Level, "error", err)
			}
		}
	}

	m.last = snap
	return snap, nil
}

func (m *Monitor) verify(ctx context.Context, local AlertSummary) bool {
	if m.summaries == nil {
		return false
	}

	server, err := m.summaries.ExpiryAlerts(ctx)
	if err != nil {
		m.logger.Warn("server alert summary unavailable, using local classification", "error", err)
		return false
	}
	if err := VerifySummary(server, local); err != nil {
		metrics.RecordSummaryMismatch()
		m.logger.Warn("server alert summary disagrees with local classification", "error", err)
		return false
	}
	return true
}

// Invalidate re-arms alerts for the next snapshot. Call after any mutation.
func (m *Monitor) Invalidate() {
	m.mu.Lock()
	m.guard.Invalidate()
	m.mu.Unlock()
}

// Last returns the most recent snapshot, which is the zero Snapshot before
// the first Refresh.
func (m *Monitor) Last() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// DefaultRefreshInterval is used by Run when given a non-positive interval.
const DefaultRefreshInterval = 15 * time.Minute

// Run refreshes immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		m.logger.Warn("non-positive refresh interval, using default", "interval", interval, "default", DefaultRefreshInterval)
		interval = DefaultRefreshInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := m.Refresh(ctx); err != nil && ctx.Err() == nil {
			m.logger.Warn("inventory refresh failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
