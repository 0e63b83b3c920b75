package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"
	"github.com/google/uuid"
	"github.com/vetcore/platform/internal/shared/config"
)

// Bus provides event publishing and subscription using KurrentDB
type Bus struct {
	client *esdb.Client
	prefix string
	logger *slog.Logger
}

// NewBus creates a new event bus connected to KurrentDB
func NewBus(cfg config.KurrentDBConfig, logger *slog.Logger) (*Bus, error) {
	settings, err := esdb.ParseConnectionString(buildConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	client, err := esdb.NewClient(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create KurrentDB client: %w", err)
	}

	return &Bus{
		client: client,
		prefix: "vetcore",
		logger: logger,
	}, nil
}

// buildConnectionString creates the esdb:// connection string
func buildConnectionString(cfg config.KurrentDBConfig) string {
	var auth string
	if cfg.Username != "" && cfg.Password != "" {
		auth = fmt.Sprintf("%s:%s@", cfg.Username, cfg.Password)
	}

	params := ""
	if cfg.Insecure {
		params = "?tls=false&tlsVerifyCert=false&keepAliveInterval=10000&keepAliveTimeout=10000"
	}

	return fmt.Sprintf("esdb://%s%s:%d%s", auth, cfg.Host, cfg.Port, params)
}

// streamName maps inventory.item.created to vetcore-inventory-item-created
func (b *Bus) streamName(eventType string) string {
	return fmt.Sprintf("%s-%s", b.prefix, normalizeEventType(eventType))
}

// Publish publishes an event to the bus
func (b *Bus) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	eventID, err := uuid.Parse(event.ID)
	if err != nil {
		eventID = uuid.New()
	}

	_, err = b.client.AppendToStream(ctx, b.streamName(event.Type), esdb.AppendToStreamOptions{
		ExpectedRevision: esdb.Any{},
	}, esdb.EventData{
		EventType:   event.Type,
		ContentType: esdb.ContentTypeJson,
		Data:        data,
		EventID:     eventID,
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Subscribe starts a catch-up subscription on $all from the current end,
// filtered server-side by event type. consumerName only labels log lines.
func (b *Bus) Subscribe(ctx context.Context, pattern string, consumerName string, handler Handler) error {
	sub, err := b.client.SubscribeToAll(ctx, esdb.SubscribeToAllOptions{
		From: esdb.End{},
		Filter: &esdb.SubscriptionFilter{
			Type:  esdb.EventFilterType,
			Regex: patternToRegex(pattern),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to pattern: %w", err)
	}

	go b.handleSubscription(ctx, sub, pattern, consumerName, handler)
	return nil
}

// patternToRegex converts a simple wildcard pattern to regex
func patternToRegex(pattern string) string {
	if pattern == "*" || pattern == ">" {
		return "^[^$].*"
	}
	var sb strings.Builder
	sb.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '.':
			sb.WriteString(`\.`)
		case '*', '>':
			sb.WriteString(".*")
		default:
			sb.WriteByte(pattern[i])
		}
	}
	return sb.String()
}

func (b *Bus) handleSubscription(ctx context.Context, sub *esdb.Subscription, pattern, consumer string, handler Handler) {
	defer sub.Close()

	for {
		if ctx.Err() != nil {
			return
		}

		subEvent := sub.Recv()
		if subEvent.EventAppeared == nil {
			if subEvent.SubscriptionDropped != nil {
				b.logger.Warn("subscription dropped", "consumer", consumer, "error", subEvent.SubscriptionDropped.Error)
				return
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}

		recorded := subEvent.EventAppeared.Event
		if recorded == nil || strings.HasPrefix(recorded.EventType, "$") {
			continue
		}
		if !MatchesPattern(recorded.EventType, pattern) {
			continue
		}

		event, err := decodeRecorded(recorded)
		if err != nil {
			b.logger.Warn("failed to decode event", "consumer", consumer, "error", err)
			continue
		}

		if err := handler(ctx, event); err != nil {
			b.logger.Error("event handler failed", "consumer", consumer, "event_id", event.ID, "type", event.Type, "error", err)
		}
	}
}

// decodeRecorded converts a KurrentDB event to our Event type
func decodeRecorded(recorded *esdb.RecordedEvent) (Event, error) {
	var event Event
	if err := json.Unmarshal(recorded.Data, &event); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if event.ID == "" {
		event.ID = recorded.EventID.String()
	}
	if event.Type == "" {
		event.Type = recorded.EventType
	}

	return event, nil
}

// Close closes the event bus connection
func (b *Bus) Close() {
	if b.client != nil {
		b.client.Close()
	}
}

// Health checks the KurrentDB connection
func (b *Bus) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := b.client.ReadStream(ctx, "$streams", esdb.ReadStreamOptions{
		From:      esdb.Start{},
		Direction: esdb.Forwards,
	}, 1)
	if err != nil {
		return fmt.Errorf("KurrentDB health check failed: %w", err)
	}
	defer stream.Close()

	return nil
}
