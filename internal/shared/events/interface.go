package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vetcore/platform/internal/shared/config"
)

// EventBus defines the interface for event publishing and subscription
type EventBus interface {
	// Publish publishes an event to the bus
	Publish(ctx context.Context, event Event) error

	// Subscribe creates a subscription to events matching a pattern
	Subscribe(ctx context.Context, pattern string, consumerName string, handler Handler) error

	// Close closes the event bus connection
	Close()

	// Health checks the event bus connection
	Health() error
}

// NewEventBus creates the bus selected by cfg.Driver. The "none" driver
// returns a nil bus; callers skip publishing in that case.
func NewEventBus(cfg config.EventsConfig, kurrent config.KurrentDBConfig, logger *slog.Logger) (EventBus, error) {
	switch cfg.Driver {
	case "kurrentdb":
		bus, err := NewBus(kurrent, logger)
		if err != nil {
			return nil, err
		}
		if err := bus.Health(); err != nil {
			bus.Close()
			return nil, err
		}
		return bus, nil
	case "nats":
		bus, err := NewNATSBus(cfg.NATSURL, cfg.SubjectPrefix, logger)
		if err != nil {
			return nil, err
		}
		return bus, nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown events driver %q", cfg.Driver)
	}
}

var (
	_ EventBus = (*Bus)(nil)
	_ EventBus = (*NATSBus)(nil)
)
