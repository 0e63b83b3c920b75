package notification

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/vetcore/platform/internal/shared/errors"
	"github.com/vetcore/platform/internal/shared/metrics"
	"github.com/vetcore/platform/internal/shared/resilience"
)

// ErrNoRecipient means the owner has no contact for the chosen channel.
var ErrNoRecipient = stderrors.New("owner has no contact for channel")

// Store persists owner lookups and message logs. *Repository implements it.
type Store interface {
	OwnerContact(ctx context.Context, ownerID int64) (*Owner, error)
	CreateLog(ctx context.Context, log *Log) error
	ListLogs(ctx context.Context, ownerID *int64) ([]Log, error)
}

var _ Store = (*Repository)(nil)

// Service sends owner messages and records every attempt
type Service struct {
	store     Store
	providers map[Channel]Provider
	executor  *resilience.Executor
	logger    *slog.Logger
}

// NewService creates a notification service. A nil executor sends without
// retries.
func NewService(store Store, providers map[Channel]Provider, executor *resilience.Executor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		providers: providers,
		executor:  executor,
		logger:    logger,
	}
}

// Send validates the request, delivers the message and records the
// outcome. A delivery failure is recorded with status failed and is not
// returned as an error.
func (s *Service) Send(ctx context.Context, req SendRequest) (*Log, error) {
	details := map[string]string{}
	if req.OwnerID <= 0 {
		details["owner_id"] = "owner_id is required"
	}
	body := strings.TrimSpace(req.Message)
	if body == "" {
		details["message"] = "message is required"
	}
	channel, err := ParseChannel(req.Channel)
	if err != nil {
		details["channel"] = "channel must be sms, whatsapp or email"
	}
	if len(details) > 0 {
		return nil, errors.Validation("validation failed", details)
	}

	owner, err := s.store.OwnerContact(ctx, req.OwnerID)
	if err != nil {
		return nil, err
	}

	log := &Log{
		OwnerID:       owner.ID,
		AppointmentID: req.AppointmentID,
		Channel:       channel,
		Message:       body,
		Status:        StatusSent,
	}

	if err := s.deliver(ctx, channel, owner, body); err != nil {
		log.Status = StatusFailed
		log.Error = err.Error()
		s.logger.Warn("owner message failed",
			"owner_id", owner.ID,
			"channel", channel,
			"error", err,
		)
	}
	metrics.RecordNotification(string(channel), string(log.Status))

	if err := s.store.CreateLog(ctx, log); err != nil {
		return nil, err
	}
	return log, nil
}

func (s *Service) deliver(ctx context.Context, channel Channel, owner *Owner, body string) error {
	provider, ok := s.providers[channel]
	if !ok {
		return errors.BadRequest("channel " + string(channel) + " is not configured")
	}

	msg := Message{Channel: channel, RecipientName: owner.Name, Body: body}
	switch channel {
	case ChannelEmail:
		msg.Recipient = owner.Email
	default:
		msg.Recipient = owner.Phone
	}
	if msg.Recipient == "" {
		return ErrNoRecipient
	}

	send := func(ctx context.Context) error { return provider.Send(ctx, msg) }
	if s.executor == nil {
		return send(ctx)
	}
	return s.executor.Execute(ctx, "notification."+string(channel), send, classifyDelivery)
}

func classifyDelivery(err error) resilience.ErrorClassification {
	if stderrors.Is(err, ErrNoRecipient) || stderrors.Is(err, context.Canceled) {
		return resilience.ErrorClassification{}
	}
	return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
}

// Logs lists recorded messages, newest first, optionally for one owner
func (s *Service) Logs(ctx context.Context, ownerID *int64) ([]Log, error) {
	if ownerID != nil && *ownerID <= 0 {
		return nil, errors.BadRequest("invalid owner_id " + strconv.FormatInt(*ownerID, 10))
	}
	return s.store.ListLogs(ctx, ownerID)
}
