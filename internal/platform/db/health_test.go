package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
)

func TestPoolStats_JSONShape(t *testing.T) {
	stats := &PoolStats{
		TotalConns:      10,
		IdleConns:       5,
		AcquiredConns:   5,
		MaxConns:        20,
		AcquireCount:    100,
		AcquireDuration: "1.5s",
		Healthy:         true,
	}

	raw, err := json.Marshal(stats)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	for _, key := range []string{"total_conns", "idle_conns", "acquired_conns", "max_conns", "acquire_count", "acquire_duration", "healthy"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("expected key %q in pool stats JSON", key)
		}
	}
	if decoded["acquire_duration"] != "1.5s" {
		t.Errorf("expected acquire_duration 1.5s, got %v", decoded["acquire_duration"])
	}
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestCheckHealth(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
		wantState  string
	}{
		{"reachable", nil, http.StatusOK, "healthy"},
		{"unreachable", errors.New("connection refused"), http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := &PoolStats{TotalConns: 2, Healthy: true}
			report, status := CheckHealth(context.Background(), stubPinger{err: tt.pingErr}, stats, "1.2.3")

			if status != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, status)
			}
			if report.Status != tt.wantState {
				t.Errorf("expected %s, got %s", tt.wantState, report.Status)
			}
			if report.Version != "1.2.3" || report.Service != "carelink" {
				t.Errorf("expected carelink 1.2.3, got %s %s", report.Service, report.Version)
			}
			if tt.pingErr != nil {
				if stats.Healthy {
					t.Error("expected pool marked unhealthy")
				}
				if report.Error != "database unreachable" {
					t.Errorf("expected withheld error detail, got %q", report.Error)
				}
			}
		})
	}
}
