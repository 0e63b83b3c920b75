package notification

import (
	"context"
	"fmt"
	"log/slog"
)

// Provider delivers a message over one channel
type Provider interface {
	Send(ctx context.Context, msg Message) error
}

// LogProvider writes messages to the log instead of delivering them. It is
// the development stand-in for an SMS, WhatsApp or email gateway.
type LogProvider struct {
	channel Channel
	logger  *slog.Logger
}

// NewLogProvider creates a log-only provider for channel
func NewLogProvider(channel Channel, logger *slog.Logger) *LogProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogProvider{channel: channel, logger: logger}
}

// Send logs the message
func (p *LogProvider) Send(ctx context.Context, msg Message) error {
	if msg.Recipient == "" {
		return fmt.Errorf("no %s recipient provided", p.channel)
	}

	p.logger.InfoContext(ctx, "owner message",
		"channel", p.channel,
		"to", msg.Recipient,
		"name", msg.RecipientName,
		"preview", preview(msg.Body, 50),
	)
	return nil
}

// DefaultProviders returns log-only providers for every channel
func DefaultProviders(logger *slog.Logger) map[Channel]Provider {
	providers := make(map[Channel]Provider, len(Channels))
	for _, c := range Channels {
		providers[c] = NewLogProvider(c, logger)
	}
	return providers
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
