// Package notification delivers domain events to users over mail, SMS,
// push and the in-app database feed.
//
// A Notification declares the channels it wants through Via and renders a
// payload per channel. The Dispatcher resolves a Driver for each declared
// channel from the Registry and makes exactly one independent attempt per
// channel. Delivery failures come back as unsuccessful Results; a Driver
// returns an error only when it is misconfigured.
package notification

import (
	"context"

	"github.com/google/uuid"
)

// Channel is a delivery medium.
type Channel string

const (
	ChannelMail     Channel = "mail"
	ChannelSMS      Channel = "sms"
	ChannelPush     Channel = "push"
	ChannelDatabase Channel = "database"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelMail, ChannelSMS, ChannelPush, ChannelDatabase:
		return true
	}
	return false
}

// Recipient is the notifiable entity a notification is rendered for.
type Recipient struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name,omitempty"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	PushTokens []string  `json:"push_tokens,omitempty"`
}

// Message is the channel-specific payload handed to a Driver.
type Message struct {
	Type    string                 `json:"type"`
	Subject string                 `json:"subject,omitempty"`
	Body    string                 `json:"body,omitempty"`
	HTML    string                 `json:"html,omitempty"`
	Tag     string                 `json:"tag,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// Result is the outcome of a single delivery attempt.
type Result struct {
	Success  bool                   `json:"success"`
	Message  string                 `json:"message"`
	Driver   string                 `json:"driver"`
	Channel  Channel                `json:"channel"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Driver sends a Message on one channel.
type Driver interface {
	Name() string
	Channel() Channel
	// IsConfigured reports whether the driver has what it needs to send. It
	// must not perform I/O.
	IsConfigured() bool
	Send(ctx context.Context, to Recipient, msg Message) (Result, error)
}
