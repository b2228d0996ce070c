package emergency

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/internal/platform/notification"
	"github.com/carelink/carelink/internal/platform/websocket"
)

type mockRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*EmergencyAlert
	now   time.Time
}

func newMockRepo(now time.Time) *mockRepo {
	return &mockRepo{items: make(map[uuid.UUID]*EmergencyAlert), now: now}
}

func (m *mockRepo) Create(_ context.Context, a *EmergencyAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = uuid.New()
	a.CreatedAt = m.now
	cp := *a
	m.items[a.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*EmergencyAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

func (m *mockRepo) ListActive(_ context.Context, now time.Time, limit, offset int) ([]*EmergencyAlert, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*EmergencyAlert
	for _, a := range m.items {
		if a.IsActive(now) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	total := len(out)
	if offset >= total {
		return []*EmergencyAlert{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

type stubAudience struct {
	recipients []notification.Recipient
	roles      []string
	err        error
}

func (s *stubAudience) RecipientsWithRoles(_ context.Context, roles []string) ([]notification.Recipient, error) {
	s.roles = roles
	return s.recipients, s.err
}

type recordingNotifier struct {
	n          notification.Notification
	recipients []notification.Recipient
	calls      int
}

func (r *recordingNotifier) Send(_ context.Context, n notification.Notification, recipients ...notification.Recipient) error {
	r.calls++
	r.n = n
	r.recipients = recipients
	return nil
}

type testEnv struct {
	svc      *Service
	repo     *mockRepo
	audience *stubAudience
	notifier *recordingNotifier
	hub      *websocket.Hub
	now      time.Time
}

func newTestEnv() *testEnv {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	env := &testEnv{
		repo: newMockRepo(now),
		audience: &stubAudience{recipients: []notification.Recipient{
			{ID: uuid.New(), Name: "Dr. Kamau"},
			{ID: uuid.New(), Name: "Nurse Achieng"},
		}},
		notifier: &recordingNotifier{},
		hub:      websocket.NewHub(zerolog.Nop()),
		now:      now,
	}
	env.svc = NewService(env.repo, env.audience, env.notifier, env.hub, "notifications-high", zerolog.Nop())
	env.svc.now = func() time.Time { return env.now }
	return env
}

func TestService_CreateBroadcasts(t *testing.T) {
	env := newTestEnv()
	p := &auth.Principal{UserID: uuid.New(), Roles: []string{auth.RoleNurse}}
	client := websocket.NewClient(p)
	client.Topics = websocket.DefaultTopics(p)
	env.hub.Register(client)
	defer env.hub.Unregister(client)

	expires := env.now.Add(6 * time.Hour)
	res, err := env.svc.Create(context.Background(), uuid.New(), CreateInput{
		Title: "Cholera outbreak", Message: "Report all acute watery diarrhoea cases.", ExpiresAt: &expires,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Recipients != 2 || res.Alert.Severity != SeverityCritical {
		t.Errorf("unexpected result %+v", res)
	}

	if env.notifier.calls != 1 || len(env.notifier.recipients) != 2 {
		t.Fatalf("expected one dispatch to 2 recipients, got %d calls", env.notifier.calls)
	}
	ev, ok := env.notifier.n.(EmergencyAlertNotification)
	if !ok || ev.Queue() != "notifications-high" || ev.AlertID != res.Alert.ID {
		t.Errorf("unexpected event %+v", env.notifier.n)
	}
	if strings.Join(env.audience.roles, ",") != "admin,clinician,nurse,community_health_worker" {
		t.Errorf("unexpected audience roles %v", env.audience.roles)
	}

	select {
	case raw := <-client.Send:
		var e websocket.Event
		if err := json.Unmarshal(raw, &e); err != nil {
			t.Fatal(err)
		}
		if e.Topic != websocket.AlertsTopic || e.ResourceID != res.Alert.ID.String() || e.Type != "emergency_alert.created" {
			t.Errorf("unexpected event %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("alert was not pushed to the live feed")
	}
}

func TestService_CreateSurvivesAudienceFailure(t *testing.T) {
	env := newTestEnv()
	env.audience.err = errors.New("db down")

	res, err := env.svc.Create(context.Background(), uuid.New(), CreateInput{Title: "Flood", Message: "Road closed", Severity: "warning"})
	if err != nil {
		t.Fatalf("alert should still be created: %v", err)
	}
	if res.Recipients != 0 || env.notifier.calls != 0 {
		t.Errorf("expected no dispatch, got %+v calls=%d", res, env.notifier.calls)
	}
	if _, err := env.svc.Get(context.Background(), res.Alert.ID); err != nil {
		t.Errorf("alert not stored: %v", err)
	}
}

func TestService_CreateValidation(t *testing.T) {
	env := newTestEnv()
	past := env.now.Add(-time.Minute)
	far := env.now.Add(8 * 24 * time.Hour)

	tests := []struct {
		name string
		in   CreateInput
		want string
	}{
		{"missing title", CreateInput{Message: "m"}, "title is required"},
		{"missing message", CreateInput{Title: "t"}, "message is required"},
		{"bad severity", CreateInput{Title: "t", Message: "m", Severity: "meh"}, "severity"},
		{"expired", CreateInput{Title: "t", Message: "m", ExpiresAt: &past}, "in the future"},
		{"too long", CreateInput{Title: "t", Message: "m", ExpiresAt: &far}, "within 7 days"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Create(context.Background(), uuid.New(), tt.in)
			var ve *ValidationError
			if !errors.As(err, &ve) || !strings.Contains(ve.Error(), tt.want) {
				t.Errorf("expected validation error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestService_ListActive(t *testing.T) {
	env := newTestEnv()
	soon := env.now.Add(time.Hour)
	_, _ = env.svc.Create(context.Background(), uuid.New(), CreateInput{Title: "A", Message: "m", ExpiresAt: &soon})
	_, _ = env.svc.Create(context.Background(), uuid.New(), CreateInput{Title: "B", Message: "m"})

	items, total, _ := env.svc.ListActive(context.Background(), 10, 0)
	if total != 2 || len(items) != 2 {
		t.Fatalf("expected 2 active, got %d", total)
	}

	env.now = env.now.Add(2 * time.Hour)
	items, total, _ = env.svc.ListActive(context.Background(), 10, 0)
	if total != 1 || items[0].Title != "B" {
		t.Errorf("expected only the open-ended alert, got %+v", items)
	}
}
