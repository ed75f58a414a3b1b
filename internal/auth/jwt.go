// Package auth issues and validates the HS256 JWTs used by the HTTP
// API and carries the acting account through service calls.
package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	claimSubject   = "sub"
	claimAccountID = "account_id"
	claimAdmin     = "admin"
)

// Actor identifies who is performing an operation. Privacy and
// promotion checks key off it.
type Actor struct {
	AccountID string
	Admin     bool
}

// JWTMiddleware returns a JWT auth middleware configured for HS256 tokens.
func JWTMiddleware(secret string, skipper middleware.Skipper) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(secret),
		SigningMethod: "HS256",
		TokenLookup:   "header:Authorization:Bearer ,query:token",
		Skipper:       skipper,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return jwt.MapClaims{}
		},
	})
}

// ActorFromContext extracts the acting account from JWT claims.
func ActorFromContext(c echo.Context) (Actor, error) {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok || token == nil || !token.Valid {
		return Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid token claims")
	}
	actor := Actor{AccountID: claimString(claims, claimAccountID)}
	if actor.AccountID == "" {
		actor.AccountID = claimString(claims, claimSubject)
	}
	if actor.AccountID == "" {
		return Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "account id missing")
	}
	if admin, ok := claims[claimAdmin].(bool); ok {
		actor.Admin = admin
	}
	return actor, nil
}

// GenerateToken creates a signed JWT for the account.
func GenerateToken(accountID string, admin bool, secret string, expiresIn time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(accountID) == "" {
		return "", time.Time{}, fmt.Errorf("account id is required")
	}
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, fmt.Errorf("jwt secret is required")
	}
	if expiresIn <= 0 {
		return "", time.Time{}, fmt.Errorf("jwt expires in must be positive")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(expiresIn)
	claims := jwt.MapClaims{
		claimSubject:   accountID,
		claimAccountID: accountID,
		claimAdmin:     admin,
		"iat":          now.Unix(),
		"exp":          expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func claimString(claims jwt.MapClaims, key string) string {
	raw, ok := claims[key]
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
