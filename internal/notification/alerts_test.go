package notification

import (
	"context"
	"fmt"
	"testing"

	"github.com/vetcore/platform/internal/inventory"
)

func TestAlertSinkKeepsNewestFirst(t *testing.T) {
	sink := NewAlertSink(3, quietLogger())

	for i := 1; i <= 5; i++ {
		event := inventory.NotificationEvent{
			Level:     inventory.LevelCritical,
			ItemNames: []string{fmt.Sprintf("item-%d", i)},
			Count:     1,
		}
		if err := sink.Notify(context.Background(), event); err != nil {
			t.Fatal(err)
		}
	}

	feed := sink.Recent(0)
	if len(feed) != 3 {
		t.Fatalf("expected feed bounded to 3, got %d", len(feed))
	}
	if feed[0].ItemNames[0] != "item-5" || feed[2].ItemNames[0] != "item-3" {
		t.Errorf("unexpected order %v, %v", feed[0].ItemNames, feed[2].ItemNames)
	}
	if feed[0].Message == "" || feed[0].ID == "" {
		t.Errorf("expected message and id, got %+v", feed[0])
	}

	if got := sink.Recent(2); len(got) != 2 {
		t.Errorf("expected limit 2, got %d", len(got))
	}
}

func TestAlertSinkDefaultSize(t *testing.T) {
	sink := NewAlertSink(0, nil)
	if sink.size != DefaultFeedSize {
		t.Errorf("expected default size %d, got %d", DefaultFeedSize, sink.size)
	}
}

func TestAlertSinkCopiesNames(t *testing.T) {
	sink := NewAlertSink(5, quietLogger())
	names := []string{"rabies"}
	sink.Notify(context.Background(), inventory.NotificationEvent{Level: inventory.LevelExpired, ItemNames: names, Count: 1})

	names[0] = "changed"
	if got := sink.Recent(1)[0].ItemNames[0]; got != "rabies" {
		t.Errorf("feed must not alias caller slice, got %q", got)
	}
}
