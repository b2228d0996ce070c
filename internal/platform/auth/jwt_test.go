package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	tokenStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func validClaims(sub string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Email: "nurse@example.org",
		Roles: []string{RoleNurse},
	}
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected HTTP %d, got nil error", code)
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != code {
		t.Fatalf("expected %d, got %d", code, httpErr.Code)
	}
}

func okHandler(c echo.Context) error { return c.String(http.StatusOK, "ok") }

func TestJWTMiddleware_Rejects(t *testing.T) {
	expired := validClaims(uuid.NewString())
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	noExp := validClaims(uuid.NewString())
	noExp.ExpiresAt = nil

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"garbage token", "Bearer not.a.jwt"},
		{"wrong key", "Bearer " + createTestToken(t, validClaims(uuid.NewString()), []byte("another-key-another-key-another"))},
		{"expired", "Bearer " + createTestToken(t, expired, testSigningKey)},
		{"no expiry", "Bearer " + createTestToken(t, noExp, testSigningKey)},
		{"non-uuid subject", "Bearer " + createTestToken(t, validClaims("dev-user"), testSigningKey)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			c := e.NewContext(req, httptest.NewRecorder())

			err := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})(okHandler)(c)
			expectStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidTokenAttachesPrincipal(t *testing.T) {
	uid := uuid.New()
	token := createTestToken(t, validClaims(uid.String()), testSigningKey)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var got *Principal
	h := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})(func(c echo.Context) error {
		got = FromEcho(c)
		return c.NoContent(http.StatusOK)
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.UserID != uid || got.Email != "nurse@example.org" || !got.HasRole(RoleNurse) {
		t.Fatalf("unexpected principal: %+v", got)
	}
}

func TestJWTMiddleware_QueryParamToken(t *testing.T) {
	uid := uuid.New()
	token := createTestToken(t, validClaims(uid.String()), testSigningKey)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/ws?access_token="+token, nil)
	c := e.NewContext(req, httptest.NewRecorder())

	if err := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, QueryParam: "access_token"})(okHandler)(c); err != nil {
		t.Fatalf("expected query token to be accepted, got %v", err)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/ws?access_token="+token, nil), httptest.NewRecorder())
	err := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})(okHandler)(c)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_IssuerAndAudience(t *testing.T) {
	claims := validClaims(uuid.NewString())
	claims.Issuer = "https://other.example.org"
	token := createTestToken(t, claims, testSigningKey)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	c := e.NewContext(req, httptest.NewRecorder())

	err := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Issuer: "https://carelink.example.org"})(okHandler)(c)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := NewTokenIssuer(testSigningKey, "carelink", "carelink-api", time.Hour)
	p := &Principal{UserID: uuid.New(), Email: "doc@example.org", Roles: []string{RoleClinician}, Permissions: []string{PermUsersManage}}

	token, exp, err := issuer.Issue(p)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(exp) < 59*time.Minute {
		t.Errorf("unexpected expiry %s", exp)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	c := e.NewContext(req, httptest.NewRecorder())

	var got *Principal
	mw := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Issuer: "carelink", Audience: "carelink-api"})
	if err := mw(func(c echo.Context) error { got = FromEcho(c); return nil })(c); err != nil {
		t.Fatalf("issued token rejected: %v", err)
	}
	if got.UserID != p.UserID || len(got.Permissions) != 1 {
		t.Fatalf("unexpected principal: %+v", got)
	}
}

func TestTokenIssuer_NoKey(t *testing.T) {
	if _, _, err := NewTokenIssuer(nil, "", "", 0).Issue(&Principal{UserID: uuid.New()}); err == nil {
		t.Fatal("expected error without signing key")
	}
}

func TestDevAuthMiddleware(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	var got *Principal
	h := DevAuthMiddleware(JWTConfig{SigningKey: testSigningKey})(func(c echo.Context) error {
		got = FromEcho(c)
		return nil
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != DevPrincipal {
		t.Fatalf("expected dev principal, got %+v", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer forged")
	c = e.NewContext(req, httptest.NewRecorder())
	expectStatus(t, h(c), http.StatusUnauthorized)
}
