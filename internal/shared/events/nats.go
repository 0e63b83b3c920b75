package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSBus publishes events as JSON on subjects <prefix>.<event type>.
type NATSBus struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewNATSBus connects to NATS with reconnects enabled.
func NewNATSBus(url, prefix string, logger *slog.Logger) (*NATSBus, error) {
	if prefix == "" {
		prefix = "vetcore"
	}

	conn, err := nats.Connect(
		url,
		nats.Name("vetcore-platform"),
		nats.Timeout(2*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(60),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	return &NATSBus{conn: conn, prefix: prefix, logger: logger}, nil
}

// Subject returns the NATS subject for an event type or pattern.
func (b *NATSBus) Subject(eventTypeOrPattern string) string {
	if eventTypeOrPattern == "*" || eventTypeOrPattern == ">" {
		return b.prefix + ".>"
	}
	// a trailing * in our patterns spans several tokens; NATS spells that >
	if strings.HasSuffix(eventTypeOrPattern, ".*") {
		eventTypeOrPattern = strings.TrimSuffix(eventTypeOrPattern, "*") + ">"
	}
	return b.prefix + "." + eventTypeOrPattern
}

// Publish publishes an event to the bus
func (b *NATSBus) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.conn.Publish(b.Subject(event.Type), data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// Subscribe delivers matching events to handler. A non-empty consumerName
// becomes a queue group, so only one member of the group sees each event.
func (b *NATSBus) Subscribe(ctx context.Context, pattern string, consumerName string, handler Handler) error {
	cb := func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}

		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			b.logger.Warn("failed to decode event", "subject", msg.Subject, "error", err)
			return
		}
		if !MatchesPattern(event.Type, pattern) {
			return
		}
		if err := handler(ctx, event); err != nil {
			b.logger.Error("event handler failed", "consumer", consumerName, "event_id", event.ID, "type", event.Type, "error", err)
		}
	}

	var (
		sub *nats.Subscription
		err error
	)
	if consumerName != "" {
		sub, err = b.conn.QueueSubscribe(b.Subject(pattern), consumerName, cb)
	} else {
		sub, err = b.conn.Subscribe(b.Subject(pattern), cb)
	}
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil && b.conn.IsConnected() {
			b.logger.Warn("nats drain subscription", "error", err)
		}
	}()
	return nil
}

// Close drains subscriptions and closes the connection
func (b *NATSBus) Close() {
	if b.conn == nil {
		return
	}
	b.mu.Lock()
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = nil
	b.mu.Unlock()
	b.conn.Close()
}

// Health reports whether the connection is up
func (b *NATSBus) Health() error {
	if b.conn == nil || !b.conn.IsConnected() {
		return fmt.Errorf("nats not connected: %w", nats.ErrDisconnected)
	}
	return nil
}
