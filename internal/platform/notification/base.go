package notification

import (
	"github.com/rs/zerolog"
)

// Base carries the identity, logging and result shaping shared by every
// driver. Drivers embed it and build their Results through it.
type Base struct {
	name       string
	channel    Channel
	logger     zerolog.Logger
	logEnabled bool
}

func NewBase(name string, channel Channel, logger zerolog.Logger, logEnabled bool) Base {
	return Base{
		name:       name,
		channel:    channel,
		logger:     logger.With().Str("component", "notification").Logger(),
		logEnabled: logEnabled,
	}
}

func (b Base) Name() string { return b.name }

func (b Base) Channel() Channel { return b.channel }

// LogNotification writes one structured line for a delivery attempt when
// logging is enabled.
func (b Base) LogNotification(to Recipient, msg Message, res Result) {
	if !b.logEnabled {
		return
	}
	var ev *zerolog.Event
	if res.Success {
		ev = b.logger.Info()
	} else {
		ev = b.logger.Warn()
	}
	ev = ev.
		Str("driver", b.name).
		Str("channel", string(b.channel)).
		Str("notification_type", msg.Type).
		Str("recipient_id", to.ID.String()).
		Str("recipient_email", to.Email).
		Str("subject", msg.Subject).
		Bool("success", res.Success)
	if len(res.Metadata) > 0 {
		ev = ev.Interface("metadata", res.Metadata)
	}
	ev.Msg(res.Message)
}

func (b Base) SuccessResponse(message string, metadata map[string]interface{}) Result {
	return Result{
		Success:  true,
		Message:  message,
		Driver:   b.name,
		Channel:  b.channel,
		Metadata: metadata,
	}
}

func (b Base) ErrorResponse(message string, metadata map[string]interface{}) Result {
	return Result{
		Success:  false,
		Message:  message,
		Driver:   b.name,
		Channel:  b.channel,
		Metadata: metadata,
	}
}
