package auth

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func contextWith(p *Principal) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if p != nil {
		req = req.WithContext(WithPrincipal(req.Context(), p))
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestRequireRole(t *testing.T) {
	grants := NewClaimGrants()
	tests := []struct {
		name     string
		p        *Principal
		wantCode int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"matching role", &Principal{UserID: uuid.New(), Roles: []string{RoleNurse}}, http.StatusOK},
		{"admin bypass", &Principal{UserID: uuid.New(), Roles: []string{RoleAdmin}}, http.StatusOK},
		{"wrong role", &Principal{UserID: uuid.New(), Roles: []string{RoleCHW}}, http.StatusForbidden},
		{"no roles", &Principal{UserID: uuid.New()}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := contextWith(tt.p)
			reached := false
			err := RequireRole(grants, RoleClinician, RoleNurse)(func(c echo.Context) error {
				reached = true
				return c.NoContent(http.StatusOK)
			})(c)

			if tt.wantCode == http.StatusOK {
				if err != nil || !reached || rec.Code != http.StatusOK {
					t.Fatalf("expected pass-through, got err=%v reached=%v", err, reached)
				}
				return
			}
			expectStatus(t, err, tt.wantCode)
			if reached {
				t.Fatal("handler must not run when the gate rejects")
			}
		})
	}
}

func TestRequireRole_ForbiddenEchoesGrants(t *testing.T) {
	c, _ := contextWith(&Principal{UserID: uuid.New(), Roles: []string{RoleCHW}})
	err := RequireRole(NewClaimGrants(), RoleClinician)(okHandler)(c)
	expectStatus(t, err, http.StatusForbidden)

	body := err.(*echo.HTTPError).Message.(map[string]interface{})
	if body["error"] != "FORBIDDEN" {
		t.Errorf("expected FORBIDDEN code, got %v", body["error"])
	}
	if !reflect.DeepEqual(body["required_roles"], []string{RoleClinician}) {
		t.Errorf("unexpected required_roles: %v", body["required_roles"])
	}
	if !reflect.DeepEqual(body["user_roles"], []string{RoleCHW}) {
		t.Errorf("unexpected user_roles: %v", body["user_roles"])
	}
}

func TestRequirePermission(t *testing.T) {
	grants := NewClaimGrants()

	// Permission implied by role.
	c, _ := contextWith(&Principal{UserID: uuid.New(), Roles: []string{RoleClinician}})
	if err := RequirePermission(grants, PermAssessmentsValidate)(okHandler)(c); err != nil {
		t.Fatalf("expected clinician to validate, got %v", err)
	}

	// Explicit permission claim.
	c, _ = contextWith(&Principal{UserID: uuid.New(), Permissions: []string{PermAssessmentsExport}})
	if err := RequirePermission(grants, PermAssessmentsExport)(okHandler)(c); err != nil {
		t.Fatalf("expected explicit permission to pass, got %v", err)
	}

	// Missing permission lists both sets.
	c, _ = contextWith(&Principal{UserID: uuid.New(), Roles: []string{RoleCHW}})
	err := RequirePermission(grants, PermAssessmentsValidate, PermReferralsManage)(okHandler)(c)
	expectStatus(t, err, http.StatusForbidden)
	body := err.(*echo.HTTPError).Message.(map[string]interface{})
	if !reflect.DeepEqual(body["required_permissions"], []string{PermAssessmentsValidate, PermReferralsManage}) {
		t.Errorf("unexpected required_permissions: %v", body["required_permissions"])
	}
	held := append([]string{}, body["user_permissions"].([]string)...)
	sort.Strings(held)
	want := append([]string{}, DefaultRolePermissions[RoleCHW]...)
	sort.Strings(want)
	if !reflect.DeepEqual(held, want) {
		t.Errorf("expected user_permissions %v, got %v", want, held)
	}

	// Anonymous.
	c, _ = contextWith(nil)
	expectStatus(t, RequirePermission(grants, PermAlertsView)(okHandler)(c), http.StatusUnauthorized)
}

type denyAll struct{}

func (denyAll) HasAnyOf(*Principal, GrantKind, []string) bool { return false }
func (denyAll) Effective(*Principal, GrantKind) []string { return nil }

func TestRequireRole_UsesInjectedChecker(t *testing.T) {
	c, _ := contextWith(&Principal{UserID: uuid.New(), Roles: []string{RoleAdmin}})
	expectStatus(t, RequireRole(denyAll{}, RoleAdmin)(okHandler)(c), http.StatusForbidden)
}

func TestClaimGrants_EffectiveDeduplicates(t *testing.T) {
	g := NewClaimGrants()
	p := &Principal{Roles: []string{RoleNurse, RoleCHW}, Permissions: []string{PermAlertsView}}
	perms := g.Effective(p, GrantPermission)
	seen := map[string]int{}
	for _, perm := range perms {
		seen[perm]++
	}
	for perm, n := range seen {
		if n > 1 {
			t.Errorf("permission %s listed %d times", perm, n)
		}
	}
	if seen[PermAssessmentsCreate] != 1 {
		t.Errorf("expected role-implied permission in effective set")
	}
}
