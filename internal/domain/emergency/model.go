package emergency

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("emergency alert not found")

// Severity levels.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

var severities = map[string]bool{SeverityInfo: true, SeverityWarning: true, SeverityCritical: true}

// MaxAlertLifetime caps how far out an alert may expire.
const MaxAlertLifetime = 7 * 24 * time.Hour

// EmergencyAlert is read-only once created.
type EmergencyAlert struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	Title     string     `db:"title" json:"title"`
	Message   string     `db:"message" json:"message"`
	Severity  string     `db:"severity" json:"severity"`
	ExpiresAt *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	CreatedBy uuid.UUID  `db:"created_by" json:"created_by"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// IsActive reports whether the alert has not yet expired at now.
func (a *EmergencyAlert) IsActive(now time.Time) bool {
	return a.ExpiresAt == nil || a.ExpiresAt.After(now)
}

type CreateInput struct {
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Severity  string     `json:"severity"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (in *CreateInput) Validate(now time.Time) []string {
	var problems []string
	in.Title = strings.TrimSpace(in.Title)
	in.Message = strings.TrimSpace(in.Message)
	in.Severity = strings.ToLower(strings.TrimSpace(in.Severity))
	if in.Severity == "" {
		in.Severity = SeverityCritical
	}

	if in.Title == "" {
		problems = append(problems, "title is required")
	} else if len(in.Title) > 255 {
		problems = append(problems, "title must be at most 255 characters")
	}
	if in.Message == "" {
		problems = append(problems, "message is required")
	}
	if !severities[in.Severity] {
		problems = append(problems, "severity must be one of info, warning, critical")
	}
	if in.ExpiresAt != nil {
		if !in.ExpiresAt.After(now) {
			problems = append(problems, "expires_at must be in the future")
		} else if in.ExpiresAt.Sub(now) > MaxAlertLifetime {
			problems = append(problems, "expires_at must be within 7 days")
		}
	}
	return problems
}
