package inventory

import (
	"strings"
	"testing"
)

func TestNotifyOnce(t *testing.T) {
	tests := []struct {
		name  string
		items []Item
		want  []AlertLevel
	}{
		{"nothing", nil, nil},
		{"upcoming only", []Item{dated(1, "a", 60)}, nil},
		{"warning only", []Item{dated(1, "a", 20), dated(2, "b", 60)}, []AlertLevel{LevelWarning}},
		{"critical suppresses warning", []Item{dated(1, "a", 20), dated(2, "b", 2)}, []AlertLevel{LevelCritical}},
		{"expired suppresses warning", []Item{dated(1, "a", 20), dated(2, "b", -2)}, []AlertLevel{LevelExpired}},
		{"expired before critical", []Item{dated(1, "a", 2), dated(2, "b", -2), dated(3, "c", 20)}, []AlertLevel{LevelExpired, LevelCritical}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NotifyOnce(Summarize(tt.items, today))
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d events, got %+v", len(tt.want), got)
			}
			for i, level := range tt.want {
				if got[i].Level != level {
					t.Errorf("event %d: expected %s, got %s", i, level, got[i].Level)
				}
			}
		})
	}
}

func TestNotificationEventNamesItems(t *testing.T) {
	events := NotifyOnce(Summarize([]Item{dated(1, "rabies vaccine", -1), dated(2, "saline", -5)}, today))
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	e := events[0]
	if e.Count != 2 || len(e.ItemNames) != 2 || e.ItemNames[0] != "rabies vaccine" {
		t.Errorf("unexpected event %+v", e)
	}
	if msg := e.Message(); !strings.Contains(msg, "2 item(s) expired") || !strings.Contains(msg, "saline") {
		t.Errorf("unexpected message %q", msg)
	}
}

func TestSurfaceGuard(t *testing.T) {
	var g SurfaceGuard

	if g.Surfaced() {
		t.Fatal("zero guard must be unsurfaced")
	}
	if !g.MarkSurfaced() {
		t.Error("first MarkSurfaced should transition")
	}
	if g.MarkSurfaced() {
		t.Error("second MarkSurfaced should not transition")
	}

	g.Invalidate()
	if g.Surfaced() {
		t.Error("expected unsurfaced after Invalidate")
	}
	if !g.MarkSurfaced() {
		t.Error("expected transition after Invalidate")
	}
}

func TestSurfaceGuardsAreIndependent(t *testing.T) {
	var a, b SurfaceGuard
	a.MarkSurfaced()
	if b.Surfaced() {
		t.Error("guards must not share state")
	}
}
