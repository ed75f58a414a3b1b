package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestGenerateTokenValidation(t *testing.T) {
	t.Parallel()

	if _, _, err := GenerateToken("", false, "secret", time.Hour); err == nil {
		t.Fatal("expected error for empty account id")
	}
	if _, _, err := GenerateToken("acct", false, "", time.Hour); err == nil {
		t.Fatal("expected error for empty secret")
	}
	if _, _, err := GenerateToken("acct", false, "secret", 0); err == nil {
		t.Fatal("expected error for non-positive expiry")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	t.Parallel()

	const secret = "test-secret"
	signed, expiresAt, err := GenerateToken("acct-1", true, secret, time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Fatal("expiry should be in the future")
	}

	e := echo.New()
	var actor Actor
	handler := func(c echo.Context) error {
		a, err := ActorFromContext(c)
		if err != nil {
			return err
		}
		actor = a
		return c.NoContent(http.StatusOK)
	}
	e.GET("/me", handler, JWTMiddleware(secret, nil))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+signed)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if actor.AccountID != "acct-1" || !actor.Admin {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestMiddlewareRejectsBadToken(t *testing.T) {
	t.Parallel()

	e := echo.New()
	e.GET("/me", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, JWTMiddleware("secret", nil))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer not-a-token")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
