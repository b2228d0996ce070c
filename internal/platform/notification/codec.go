package notification

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Decoder rebuilds a queued event from its JSON payload.
type Decoder func(payload json.RawMessage) (Notification, error)

// Codec maps notification type names to decoders so workers can rebuild
// events pulled off a queue.
type Codec struct {
	mu       sync.RWMutex
	decoders map[string]Decoder
}

func NewCodec() *Codec {
	return &Codec{decoders: make(map[string]Decoder)}
}

func (c *Codec) Register(typ string, d Decoder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decoders[typ] = d
}

// RegisterType registers a JSON decoder for the event type T under the name
// returned by T's Type method.
func RegisterType[T Notification](c *Codec) {
	var zero T
	c.Register(zero.Type(), func(payload json.RawMessage) (Notification, error) {
		var n T
		if err := json.Unmarshal(payload, &n); err != nil {
			return nil, err
		}
		return n, nil
	})
}

func (c *Codec) Decode(typ string, payload json.RawMessage) (Notification, error) {
	c.mu.RLock()
	d, ok := c.decoders[typ]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no decoder registered for notification type %q", typ)
	}
	return d(payload)
}
