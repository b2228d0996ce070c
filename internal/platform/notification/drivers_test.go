package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mrz1836/postmark"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/platform/websocket"
)

type fakePostmark struct {
	sent []postmark.Email
	resp postmark.EmailResponse
	err  error
}

func (f *fakePostmark) SendEmail(_ context.Context, e postmark.Email) (postmark.EmailResponse, error) {
	f.sent = append(f.sent, e)
	return f.resp, f.err
}

func TestPostmarkDriver_Send(t *testing.T) {
	fake := &fakePostmark{resp: postmark.EmailResponse{MessageID: "pm-1"}}
	d := NewPostmarkDriver(PostmarkConfig{ServerToken: "tok", From: "noreply@carelink.test", ReplyTo: "support@carelink.test"}, zerolog.Nop(), false)
	d.client = fake

	res, err := d.Send(context.Background(), Recipient{ID: uuid.New(), Email: "doc@example.org"},
		Message{Type: "assessment_validated", Subject: "Hi", HTML: "<p>x</p>", Body: "x", Tag: "assessment_validated"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || res.Driver != "postmark" || res.Metadata["message_id"] != "pm-1" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(fake.sent) != 1 || fake.sent[0].To != "doc@example.org" || fake.sent[0].From != "noreply@carelink.test" {
		t.Fatalf("unexpected email: %+v", fake.sent)
	}
}

func TestPostmarkDriver_ProviderFailuresAreResults(t *testing.T) {
	tests := []struct {
		name string
		fake *fakePostmark
		to   Recipient
	}{
		{"transport error", &fakePostmark{err: errors.New("timeout")}, Recipient{Email: "a@b.c"}},
		{"api error code", &fakePostmark{resp: postmark.EmailResponse{ErrorCode: 300, Message: "Invalid email"}}, Recipient{Email: "a@b.c"}},
		{"missing address", &fakePostmark{}, Recipient{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewPostmarkDriver(PostmarkConfig{ServerToken: "tok", From: "f@x.y"}, zerolog.Nop(), false)
			d.client = tt.fake
			res, err := d.Send(context.Background(), tt.to, Message{Subject: "s"})
			if err != nil {
				t.Fatalf("delivery failure must not be an error: %v", err)
			}
			if res.Success {
				t.Fatal("expected unsuccessful result")
			}
		})
	}
}

func TestPostmarkDriver_Unconfigured(t *testing.T) {
	d := NewPostmarkDriver(PostmarkConfig{}, zerolog.Nop(), false)
	if d.IsConfigured() {
		t.Fatal("expected unconfigured driver")
	}
	if _, err := d.Send(context.Background(), Recipient{Email: "a@b.c"}, Message{}); err == nil {
		t.Fatal("expected misconfiguration error")
	}
}

func TestTwilioDriver_Send(t *testing.T) {
	var gotPath string
	var gotForm url.Values
	var gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, _, _ = r.BasicAuth()
		body, _ := io.ReadAll(r.Body)
		gotForm, _ = url.ParseQuery(string(body))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM123","status":"queued"}`))
	}))
	defer srv.Close()

	d := NewTwilioDriver(TwilioConfig{AccountSID: "AC1", AuthToken: "secret", From: "+15550000", BaseURL: srv.URL}, zerolog.Nop(), false)
	res, err := d.Send(context.Background(), Recipient{ID: uuid.New(), Phone: "+15551234"}, Message{Body: "Your code is 123456"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || res.Metadata["sid"] != "SM123" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if gotPath != "/Accounts/AC1/Messages.json" {
		t.Errorf("unexpected path %s", gotPath)
	}
	if gotUser != "AC1" {
		t.Errorf("expected basic auth user AC1, got %s", gotUser)
	}
	if gotForm.Get("To") != "+15551234" || gotForm.Get("Body") != "Your code is 123456" {
		t.Errorf("unexpected form: %v", gotForm)
	}
}

func TestTwilioDriver_ErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number"}`))
	}))
	defer srv.Close()

	d := NewTwilioDriver(TwilioConfig{AccountSID: "AC1", AuthToken: "secret", From: "+15550000", BaseURL: srv.URL}, zerolog.Nop(), false)
	res, err := d.Send(context.Background(), Recipient{Phone: "bad"}, Message{Body: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success || !strings.Contains(res.Message, "21211") {
		t.Fatalf("expected provider error in result, got %+v", res)
	}
}

func TestFCMDriver_Send(t *testing.T) {
	var req fcmRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"multicast_id":7,"success":1,"failure":0}`))
	}))
	defer srv.Close()

	d := NewFCMDriver(FCMConfig{ServerKey: "srv-key", Endpoint: srv.URL}, zerolog.Nop(), false)
	res, err := d.Send(context.Background(), Recipient{PushTokens: []string{"tok-1"}},
		Message{Subject: "Alert", Body: "Flooding", Data: map[string]interface{}{"priority": "high", "alert_id": 5}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if auth != "key=srv-key" {
		t.Errorf("unexpected auth header %q", auth)
	}
	if req.Priority != "high" || req.Notification.Title != "Alert" || req.Data["alert_id"] != "5" {
		t.Errorf("unexpected request: %+v", req)
	}
}

func TestFCMDriver_NoTokens(t *testing.T) {
	d := NewFCMDriver(FCMConfig{ServerKey: "k"}, zerolog.Nop(), false)
	res, err := d.Send(context.Background(), Recipient{}, Message{})
	if err != nil || res.Success {
		t.Fatalf("expected unsuccessful result without error, got %+v / %v", res, err)
	}
}

type recordingPublisher struct {
	events []websocket.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e websocket.Event) error {
	p.events = append(p.events, e)
	return nil
}

func TestDatabaseDriver_StoresAndPublishes(t *testing.T) {
	store := NewMemoryStore()
	pub := &recordingPublisher{}
	d := NewDatabaseDriver(store, pub, zerolog.Nop(), false)
	d.now = func() time.Time { return time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC) }

	to := Recipient{ID: uuid.New()}
	res, err := d.Send(context.Background(), to, Message{Type: "referral_assigned", Data: map[string]interface{}{"b": 2, "a": 1}})
	if err != nil || !res.Success {
		t.Fatalf("unexpected outcome: %+v / %v", res, err)
	}

	items, total, _ := store.ListForRecipient(context.Background(), to.ID, false, 10, 0)
	if total != 1 || string(items[0].Data) != `{"a":1,"b":2}` {
		t.Fatalf("unexpected stored records: %d %s", total, items[0].Data)
	}
	if len(pub.events) != 1 || pub.events[0].Topic != UserTopic(to.ID) {
		t.Fatalf("expected publish to user topic, got %+v", pub.events)
	}
}

func TestMemoryStore_ReadState(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	owner := uuid.New()
	other := uuid.New()

	first := &Record{Type: "a", NotifiableID: owner, CreatedAt: time.Now().Add(-time.Minute)}
	second := &Record{Type: "b", NotifiableID: owner, CreatedAt: time.Now()}
	_ = s.Insert(ctx, first)
	_ = s.Insert(ctx, second)
	_ = s.Insert(ctx, &Record{Type: "c", NotifiableID: other, CreatedAt: time.Now()})

	items, total, _ := s.ListForRecipient(ctx, owner, false, 10, 0)
	if total != 2 || items[0].Type != "b" {
		t.Fatalf("expected newest first for owner, got %d items", total)
	}

	if err := s.MarkRead(ctx, other, first.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound marking another user's record, got %v", err)
	}
	if err := s.MarkRead(ctx, owner, first.ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if n, _ := s.UnreadCount(ctx, owner); n != 1 {
		t.Fatalf("expected 1 unread, got %d", n)
	}
	if n, _ := s.MarkAllRead(ctx, owner); n != 1 {
		t.Fatalf("expected 1 marked, got %d", n)
	}
	unread, total, _ := s.ListForRecipient(ctx, owner, true, 10, 0)
	if total != 0 || len(unread) != 0 {
		t.Fatalf("expected no unread, got %d", total)
	}
}

func TestNewRegistryFromConfig(t *testing.T) {
	r, err := NewRegistryFromConfig(DriverConfig{MailDriver: "postmark", SMSDriver: "twilio", PushDriver: "mock"}, NewMemoryStore(), nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := r.Channels()
	want := []Channel{ChannelDatabase, ChannelMail, ChannelPush, ChannelSMS}
	if len(got) != len(want) {
		t.Fatalf("expected channels %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected channels %v, got %v", want, got)
		}
	}
	mail, _ := r.Driver(ChannelMail)
	if mail.Name() != "postmark" || mail.IsConfigured() {
		t.Errorf("expected unconfigured postmark driver, got %s configured=%v", mail.Name(), mail.IsConfigured())
	}

	if _, err := NewRegistryFromConfig(DriverConfig{MailDriver: "mailgun"}, nil, nil, zerolog.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestMailMessage_Render(t *testing.T) {
	m := NewMail().
		WithSubject("Referral Assigned").
		WithGreeting("Hello Dr. Okafor").
		Line("A referral needs <your> attention.").
		Action("View Referral", "https://app.carelink.test/referrals/1").
		Line("Thank you.").
		WithLevel(LevelSuccess)

	html, text, err := m.Render()
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(html, "A referral needs &lt;your&gt; attention.") {
		t.Error("expected HTML-escaped line")
	}
	if !strings.Contains(html, "https://app.carelink.test/referrals/1") {
		t.Error("expected action URL in HTML")
	}
	if !strings.Contains(text, "View Referral: https://app.carelink.test/referrals/1") {
		t.Errorf("expected action in text body, got %q", text)
	}
	if len(m.OutroLines) != 1 || m.OutroLines[0] != "Thank you." {
		t.Errorf("expected line after action to be outro, got %v", m.OutroLines)
	}
}
