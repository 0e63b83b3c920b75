package inventory

import (
	"errors"
	"fmt"

	"github.com/golang-sql/civil"
)

// Expiry thresholds in days, inclusive upper bounds.
const (
	CriticalDays = 7
	WarningDays  = 30
	UpcomingDays = 90
)

// ExpiringSoonDays is the window of the "expiring soon" filter and banner.
const ExpiringSoonDays = WarningDays

// AlertLevel is the expiry severity of an item.
type AlertLevel string

const (
	LevelExpired  AlertLevel = "expired"
	LevelCritical AlertLevel = "critical"
	LevelWarning  AlertLevel = "warning"
	LevelUpcoming AlertLevel = "upcoming"
	LevelNone     AlertLevel = "none"
)

var (
	ErrSnapshotUnavailable = errors.New("inventory snapshot unavailable")
	ErrSummaryMismatch     = errors.New("alert summary mismatch")
)

// AlertItem is an item as listed in an alert bucket.
type AlertItem struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	Category        string     `json:"category"`
	Quantity        int        `json:"quantity"`
	Unit            string     `json:"unit"`
	ExpiryDate      civil.Date `json:"expiry_date"`
	DaysUntilExpiry int        `json:"days_until_expiry"`
	AlertLevel      AlertLevel `json:"alert_level"`
}

// AlertSummary groups items by level. Items with level none are omitted.
type AlertSummary struct {
	Expired     []AlertItem `json:"expired"`
	Critical    []AlertItem `json:"critical"`
	Warning     []AlertItem `json:"warning"`
	Upcoming    []AlertItem `json:"upcoming"`
	TotalAlerts int         `json:"total_alerts"`
}

// DaysUntilExpiry is negative once the expiry date has passed.
func DaysUntilExpiry(expiry, today civil.Date) int {
	return expiry.DaysSince(today)
}

// ClassifyExpiry buckets an item relative to today.
func ClassifyExpiry(item Item, today civil.Date) AlertLevel {
	if item.ExpiryDate == nil {
		return LevelNone
	}
	return levelForDays(DaysUntilExpiry(*item.ExpiryDate, today))
}

func levelForDays(days int) AlertLevel {
	switch {
	case days < 0:
		return LevelExpired
	case days <= CriticalDays:
		return LevelCritical
	case days <= WarningDays:
		return LevelWarning
	case days <= UpcomingDays:
		return LevelUpcoming
	default:
		return LevelNone
	}
}

// Summarize partitions items into alert buckets, keeping input order
// within each bucket.
func Summarize(items []Item, today civil.Date) AlertSummary {
	s := AlertSummary{
		Expired:  []AlertItem{},
		Critical: []AlertItem{},
		Warning:  []AlertItem{},
		Upcoming: []AlertItem{},
	}

	for _, item := range items {
		level := ClassifyExpiry(item, today)
		if level == LevelNone {
			continue
		}

		a := AlertItem{
			ID:              item.ID,
			Name:            item.Name,
			Category:        item.Category,
			Quantity:        item.Quantity,
			Unit:            item.Unit,
			ExpiryDate:      *item.ExpiryDate,
			DaysUntilExpiry: DaysUntilExpiry(*item.ExpiryDate, today),
			AlertLevel:      level,
		}

		switch level {
		case LevelExpired:
			s.Expired = append(s.Expired, a)
		case LevelCritical:
			s.Critical = append(s.Critical, a)
		case LevelWarning:
			s.Warning = append(s.Warning, a)
		case LevelUpcoming:
			s.Upcoming = append(s.Upcoming, a)
		}
	}

	s.TotalAlerts = len(s.Expired) + len(s.Critical) + len(s.Warning) + len(s.Upcoming)
	return s
}

// Bucket returns the items of one level.
func (s AlertSummary) Bucket(level AlertLevel) []AlertItem {
	switch level {
	case LevelExpired:
		return s.Expired
	case LevelCritical:
		return s.Critical
	case LevelWarning:
		return s.Warning
	case LevelUpcoming:
		return s.Upcoming
	default:
		return nil
	}
}

// IsLowStock reports whether an item is at or below its reorder level.
func IsLowStock(item Item) bool {
	return item.Quantity <= item.ReorderLevel
}

// VerifySummary checks a server-computed summary against a locally
// computed one. Buckets must hold the same item ids with the same day
// counts; order within a bucket is not compared.
func VerifySummary(server, local AlertSummary) error {
	for _, level := range []AlertLevel{LevelExpired, LevelCritical, LevelWarning, LevelUpcoming} {
		a, b := server.Bucket(level), local.Bucket(level)
		if len(a) != len(b) {
			return fmt.Errorf("%w: %s has %d items on server, %d locally", ErrSummaryMismatch, level, len(a), len(b))
		}

		days := make(map[int64]int, len(b))
		for _, item := range b {
			days[item.ID] = item.DaysUntilExpiry
		}
		for _, item := range a {
			d, ok := days[item.ID]
			if !ok {
				return fmt.Errorf("%w: %s lists item %d only on server", ErrSummaryMismatch, level, item.ID)
			}
			if d != item.DaysUntilExpiry {
				return fmt.Errorf("%w: %s item %d is %d days out on server, %d locally", ErrSummaryMismatch, level, item.ID, item.DaysUntilExpiry, d)
			}
		}
	}
	if server.TotalAlerts != local.TotalAlerts {
		return fmt.Errorf("%w: total_alerts %d on server, %d locally", ErrSummaryMismatch, server.TotalAlerts, local.TotalAlerts)
	}
	return nil
}
