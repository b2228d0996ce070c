package notification

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/platform/websocket"
)

// Registry is the dispatch table from channel to driver.
type Registry struct {
	mu      sync.RWMutex
	drivers map[Channel]Driver
}

func NewRegistry() *Registry {
	return &Registry{drivers: make(map[Channel]Driver)}
}

// Register installs d for its channel, replacing any previous driver.
func (r *Registry) Register(d Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[d.Channel()] = d
}

func (r *Registry) Driver(ch Channel) (Driver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[ch]
	return d, ok
}

// Channels lists registered channels in name order.
func (r *Registry) Channels() []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Channel, 0, len(r.drivers))
	for ch := range r.drivers {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DriverConfig selects and configures the driver behind each channel.
type DriverConfig struct {
	MailDriver string
	SMSDriver  string
	PushDriver string
	LogEnabled bool

	Postmark PostmarkConfig
	Twilio   TwilioConfig
	FCM      FCMConfig
}

// NewRegistryFromConfig builds the channel table: mock or real provider per
// channel, plus the database channel backed by store.
func NewRegistryFromConfig(cfg DriverConfig, store Store, publisher websocket.EventPublisher, logger zerolog.Logger) (*Registry, error) {
	r := NewRegistry()

	switch cfg.MailDriver {
	case "", "mock":
		r.Register(NewMockDriver(ChannelMail, logger, cfg.LogEnabled))
	case "postmark":
		r.Register(NewPostmarkDriver(cfg.Postmark, logger, cfg.LogEnabled))
	default:
		return nil, fmt.Errorf("unknown mail driver %q", cfg.MailDriver)
	}

	switch cfg.SMSDriver {
	case "", "mock":
		r.Register(NewMockDriver(ChannelSMS, logger, cfg.LogEnabled))
	case "twilio":
		r.Register(NewTwilioDriver(cfg.Twilio, logger, cfg.LogEnabled))
	default:
		return nil, fmt.Errorf("unknown sms driver %q", cfg.SMSDriver)
	}

	switch cfg.PushDriver {
	case "", "mock":
		r.Register(NewMockDriver(ChannelPush, logger, cfg.LogEnabled))
	case "fcm":
		r.Register(NewFCMDriver(cfg.FCM, logger, cfg.LogEnabled))
	default:
		return nil, fmt.Errorf("unknown push driver %q", cfg.PushDriver)
	}

	if store != nil {
		r.Register(NewDatabaseDriver(store, publisher, logger, cfg.LogEnabled))
	}

	for _, ch := range r.Channels() {
		d, _ := r.Driver(ch)
		if !d.IsConfigured() {
			logger.Warn().Str("channel", string(ch)).Str("driver", d.Name()).Msg("notification driver is not configured; channel will be skipped")
		}
	}
	return r, nil
}
