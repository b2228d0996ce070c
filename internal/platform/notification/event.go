package notification

import (
	"encoding/json"
	"fmt"
)

// Notification is a typed domain event addressed to a Recipient. Concrete
// events are value types bound to a snapshot of one entity at construction
// and implement a renderer for every channel they declare in Via.
type Notification interface {
	Type() string
	Via(to Recipient) []Channel
}

type MailRenderer interface {
	ToMail(to Recipient) *MailMessage
}

type SMSRenderer interface {
	ToSMS(to Recipient) string
}

// PushMessage is the rendered push payload.
type PushMessage struct {
	Title string
	Body  string
	Data  map[string]interface{}
}

type PushRenderer interface {
	ToPush(to Recipient) PushMessage
}

// DatabaseRenderer produces the flat record stored for the in-app feed.
type DatabaseRenderer interface {
	ToDatabase(to Recipient) map[string]interface{}
}

// Queued events are delivered through the named queue instead of inline.
type Queued interface {
	Queue() string
}

// DatabasePayload renders n's database representation as JSON. Object keys
// are emitted in sorted order so the same event always yields the same bytes.
func DatabasePayload(n Notification, to Recipient) ([]byte, error) {
	r, ok := n.(DatabaseRenderer)
	if !ok {
		return nil, fmt.Errorf("%s does not render for the database channel", n.Type())
	}
	return json.Marshal(r.ToDatabase(to))
}

// render turns n into the Message a driver on ch receives. ok is false when n
// declares ch but has no renderer for it.
func render(n Notification, to Recipient, ch Channel) (msg Message, ok bool, err error) {
	msg = Message{Type: n.Type(), Tag: n.Type()}
	switch ch {
	case ChannelMail:
		r, isMail := n.(MailRenderer)
		if !isMail {
			return msg, false, nil
		}
		mail := r.ToMail(to)
		html, text, err := mail.Render()
		if err != nil {
			return msg, true, err
		}
		msg.Subject = mail.Subject
		msg.HTML = html
		msg.Body = text
	case ChannelSMS:
		r, isSMS := n.(SMSRenderer)
		if !isSMS {
			return msg, false, nil
		}
		msg.Body = r.ToSMS(to)
	case ChannelPush:
		r, isPush := n.(PushRenderer)
		if !isPush {
			return msg, false, nil
		}
		p := r.ToPush(to)
		msg.Subject = p.Title
		msg.Body = p.Body
		msg.Data = p.Data
	case ChannelDatabase:
		r, isDB := n.(DatabaseRenderer)
		if !isDB {
			return msg, false, nil
		}
		msg.Data = r.ToDatabase(to)
	default:
		return msg, false, nil
	}
	return msg, true, nil
}
