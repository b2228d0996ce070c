package pagination

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextFor(target string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestFromContext_Defaults(t *testing.T) {
	p := FromContext(contextFor("/"))

	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected default offset 0, got %d", p.Offset)
	}
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		wantLimit  int
		wantOffset int
	}{
		{"limit offset", "/?limit=50&offset=10", 50, 10},
		{"page per_page", "/?page=3&per_page=15", 15, 30},
		{"first page", "/?page=1&per_page=15", 15, 0},
		{"page with default size", "/?page=2", DefaultLimit, DefaultLimit},
		{"max limit", "/?limit=500", MaxLimit, 0},
		{"negative offset", "/?offset=-5", DefaultLimit, 0},
		{"garbage", "/?limit=abc&offset=xyz", DefaultLimit, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := FromContext(contextFor(tt.target))
			if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
				t.Errorf("got limit=%d offset=%d, want limit=%d offset=%d", p.Limit, p.Offset, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

func TestNewResponse(t *testing.T) {
	resp := NewResponse([]string{"a", "b"}, 50, 20, 0)

	if resp.Total != 50 {
		t.Errorf("expected total 50, got %d", resp.Total)
	}
	if !resp.HasMore {
		t.Error("expected HasMore to be true")
	}

	last := NewResponse([]string{"a"}, 21, 20, 20)
	if last.HasMore {
		t.Error("expected HasMore to be false on the last page")
	}
}

func TestParams_Navigation(t *testing.T) {
	p := Params{Limit: 10, Offset: 5}

	if !p.HasNext(25) || p.HasNext(15) {
		t.Error("unexpected HasNext")
	}
	if !p.HasPrevious() || (Params{Limit: 10}).HasPrevious() {
		t.Error("unexpected HasPrevious")
	}
	if p.NextOffset() != 15 {
		t.Errorf("expected next offset 15, got %d", p.NextOffset())
	}
	if p.PreviousOffset() != 0 {
		t.Errorf("expected previous offset clamped to 0, got %d", p.PreviousOffset())
	}
}

func TestParams_Links(t *testing.T) {
	u, _ := url.Parse("/api/v1/assessments?status=pending&page=2&per_page=10")

	tests := []struct {
		name     string
		p        Params
		total    int
		wantSelf string
		wantNext string
		wantPrev string
	}{
		{
			"first page", Params{Limit: 10, Offset: 0}, 25,
			"/api/v1/assessments?limit=10&offset=0&status=pending",
			"/api/v1/assessments?limit=10&offset=10&status=pending",
			"",
		},
		{
			"middle page", Params{Limit: 10, Offset: 10}, 25,
			"/api/v1/assessments?limit=10&offset=10&status=pending",
			"/api/v1/assessments?limit=10&offset=20&status=pending",
			"/api/v1/assessments?limit=10&offset=0&status=pending",
		},
		{
			"last page", Params{Limit: 10, Offset: 20}, 25,
			"/api/v1/assessments?limit=10&offset=20&status=pending",
			"",
			"/api/v1/assessments?limit=10&offset=10&status=pending",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			links := tt.p.Links(u, tt.total)
			if links.Self != tt.wantSelf {
				t.Errorf("self: got %q, want %q", links.Self, tt.wantSelf)
			}
			if links.Next != tt.wantNext {
				t.Errorf("next: got %q, want %q", links.Next, tt.wantNext)
			}
			if links.Previous != tt.wantPrev {
				t.Errorf("previous: got %q, want %q", links.Previous, tt.wantPrev)
			}
		})
	}
}

func TestResponse_WithLinksJSON(t *testing.T) {
	c := contextFor("/api/v1/notifications?limit=1")
	resp := NewResponse([]int{1}, 2, 1, 0).WithLinks(c)

	b, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	links, ok := decoded["links"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected links object, got %v", decoded["links"])
	}
	if links["next"] != "/api/v1/notifications?limit=1&offset=1" {
		t.Errorf("unexpected next link %v", links["next"])
	}
	if _, ok := links["previous"]; ok {
		t.Error("expected no previous link on the first page")
	}
}
