package notification

import (
	"fmt"
	"time"
)

// Channel is the delivery channel of an owner message
type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelEmail    Channel = "email"
)

// Channels lists the supported channels.
var Channels = []Channel{ChannelSMS, ChannelWhatsApp, ChannelEmail}

// ParseChannel validates a channel name. An empty name means SMS.
func ParseChannel(s string) (Channel, error) {
	if s == "" {
		return ChannelSMS, nil
	}
	for _, c := range Channels {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown channel %q", s)
}

// Status is the outcome recorded for a message
type Status string

const (
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

// Owner holds the contact details of a pet owner
type Owner struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// Log is one recorded owner message
type Log struct {
	ID            int64     `json:"id"`
	OwnerID       int64     `json:"owner_id"`
	AppointmentID *int64    `json:"appointment_id"`
	Channel       Channel   `json:"channel"`
	Message       string    `json:"message"`
	Status        Status    `json:"status"`
	Error         string    `json:"error,omitempty"`
	SentAt        time.Time `json:"sent_at"`
}

// SendRequest is the request body for POST /send
type SendRequest struct {
	OwnerID       int64  `json:"owner_id"`
	AppointmentID *int64 `json:"appointment_id"`
	Channel       string `json:"channel"`
	Message       string `json:"message"`
}

// Message is what a provider delivers
type Message struct {
	Channel       Channel
	Recipient     string
	RecipientName string
	Body          string
}
