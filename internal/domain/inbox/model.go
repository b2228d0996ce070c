package inbox

import (
	"github.com/carelink/carelink/internal/platform/notification"
)

// Page is a listing of one user's notifications.
type Page struct {
	Items       []*notification.Record `json:"items"`
	Total       int                    `json:"total"`
	UnreadCount int                    `json:"unread_count"`
	Limit       int                    `json:"limit"`
	Offset      int                    `json:"offset"`
}

// ReadAllResult reports how many notifications were marked read.
type ReadAllResult struct {
	Updated     int64 `json:"updated"`
	UnreadCount int   `json:"unread_count"`
}
