package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/99minutos/custody-tracker/internal/api/handler"
)

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.Claims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func runAuth(t *testing.T, header string) (*httptest.ResponseRecorder, bool, any) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	var actor any
	h := Auth("secret")(func(c echo.Context) error {
		called = true
		actor = c.Get(handler.ActorKey)
		return c.NoContent(http.StatusOK)
	})

	if err := h(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec, called, actor
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	token := sign(t, jwt.SigningMethodHS256, []byte("secret"), jwt.RegisteredClaims{
		Subject:   "warehouse-7",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	rec, called, actor := runAuth(t, "Bearer "+token)
	if !called {
		t.Fatalf("next not called")
	}
	if actor != "warehouse-7" {
		t.Fatalf("actor = %v", actor)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	expired := sign(t, jwt.SigningMethodHS256, []byte("secret"), jwt.RegisteredClaims{
		Subject:   "a",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})
	noSubject := sign(t, jwt.SigningMethodHS256, []byte("secret"), jwt.RegisteredClaims{})
	wrongKey := sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.RegisteredClaims{Subject: "a"})
	wrongAlg := sign(t, jwt.SigningMethodHS512, []byte("secret"), jwt.RegisteredClaims{Subject: "a"})

	cases := map[string]string{
		"missing header":  "",
		"invalid format":  "Token abc",
		"not a token":     "Bearer not-a-token",
		"expired":         "Bearer " + expired,
		"missing subject": "Bearer " + noSubject,
		"wrong key":       "Bearer " + wrongKey,
		"wrong algorithm": "Bearer " + wrongAlg,
	}

	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			rec, called, _ := runAuth(t, header)
			if called {
				t.Fatalf("should not reach next")
			}
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
		})
	}
}
