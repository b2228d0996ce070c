package notification

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// SentMessage records one call to MockDriver.Send.
type SentMessage struct {
	To      Recipient
	Message Message
}

// MockDriver accepts every message on its channel and records it. Setting
// Fail makes every send come back unsuccessful.
type MockDriver struct {
	Base

	mu         sync.Mutex
	sent       []SentMessage
	Fail       bool
	FailReason string
}

func NewMockDriver(channel Channel, logger zerolog.Logger, logEnabled bool) *MockDriver {
	return &MockDriver{Base: NewBase("mock", channel, logger, logEnabled)}
}

func (m *MockDriver) IsConfigured() bool { return true }

func (m *MockDriver) Send(_ context.Context, to Recipient, msg Message) (Result, error) {
	m.mu.Lock()
	m.sent = append(m.sent, SentMessage{To: to, Message: msg})
	fail, reason := m.Fail, m.FailReason
	m.mu.Unlock()

	var res Result
	if fail {
		if reason == "" {
			reason = "mock delivery failure"
		}
		res = m.ErrorResponse(reason, nil)
	} else {
		res = m.SuccessResponse("notification recorded by mock driver", map[string]interface{}{
			"recipient": to.ID.String(),
		})
	}
	m.LogNotification(to, msg, res)
	return res, nil
}

// Sent returns a copy of recorded messages.
func (m *MockDriver) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

func (m *MockDriver) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}
