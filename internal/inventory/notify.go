package inventory

import (
	"fmt"
	"strings"
)

// NotificationEvent is one interruptive alert for a level.
type NotificationEvent struct {
	Level     AlertLevel `json:"level"`
	ItemNames []string   `json:"item_names"`
	Count     int        `json:"count"`
}

// Message renders the event as a one-line banner text.
func (e NotificationEvent) Message() string {
	var verb string
	switch e.Level {
	case LevelExpired:
		verb = "expired"
	case LevelCritical:
		verb = fmt.Sprintf("expiring within %d days", CriticalDays)
	case LevelWarning:
		verb = fmt.Sprintf("expiring within %d days", WarningDays)
	default:
		verb = string(e.Level)
	}
	return fmt.Sprintf("%d item(s) %s: %s", e.Count, verb, strings.Join(e.ItemNames, ", "))
}

// NotifyOnce turns a summary into events, most severe first. Warning is
// dropped while anything is expired or critical; upcoming is never sent.
func NotifyOnce(s AlertSummary) []NotificationEvent {
	var events []NotificationEvent
	for _, level := range []AlertLevel{LevelExpired, LevelCritical} {
		if bucket := s.Bucket(level); len(bucket) > 0 {
			events = append(events, eventFor(level, bucket))
		}
	}
	if len(events) == 0 && len(s.Warning) > 0 {
		events = append(events, eventFor(LevelWarning, s.Warning))
	}
	return events
}

func eventFor(level AlertLevel, items []AlertItem) NotificationEvent {
	names := make([]string, len(items))
	for i, item := range items {
		names[i] = item.Name
	}
	return NotificationEvent{Level: level, ItemNames: names, Count: len(items)}
}

// SurfaceGuard remembers whether the current snapshot's alerts were shown.
// The zero value is unsurfaced. Not safe for concurrent use; the owner
// serializes access.
type SurfaceGuard struct {
	surfaced bool
}

// MarkSurfaced moves to surfaced and reports whether this call did it.
func (g *SurfaceGuard) MarkSurfaced() bool {
	if g.surfaced {
		return false
	}
	g.surfaced = true
	return true
}

// Invalidate returns to unsurfaced so the next snapshot alerts again.
func (g *SurfaceGuard) Invalidate() {
	g.surfaced = false
}

func (g *SurfaceGuard) Surfaced() bool {
	return g.surfaced
}
