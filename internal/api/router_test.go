package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/99minutos/custody-tracker/internal/api/handler"
	"github.com/99minutos/custody-tracker/internal/core/domain"
	"github.com/99minutos/custody-tracker/internal/core/service"
	"github.com/99minutos/custody-tracker/internal/infrastructure/db/memory"
)

const testSecret = "test-secret"

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, ...domain.Notification) {}

type testServer struct {
	t *testing.T
	e *echo.Echo
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.NewStore()
	registry := service.NewRegistry(store, zerolog.Nop())
	if err := registry.Bootstrap(context.Background(), "admin"); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	lifecycle := service.NewLifecycleService(store, registry, nopNotifier{}, zerolog.Nop())

	reg := prometheus.NewRegistry()
	e := NewRouter(Dependencies{
		Lifecycle:  lifecycle,
		Roles:      registry,
		Health:     map[string]handler.PingFunc{"store": store.Ping},
		JWTSecret:  testSecret,
		Logger:     zerolog.Nop(),
		Registerer: reg,
		Gatherer:   reg,
	})
	return &testServer{t: t, e: e}
}

func (s *testServer) token(actor string) string {
	s.t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   actor,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	if err != nil {
		s.t.Fatalf("sign token: %v", err)
	}
	return signed
}

func (s *testServer) do(method, path, actor, body string) *httptest.ResponseRecorder {
	s.t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if actor != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(actor))
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) expect(rec *httptest.ResponseRecorder, code int) {
	s.t.Helper()
	if rec.Code != code {
		s.t.Fatalf("expected %d, got %d: %s", code, rec.Code, rec.Body.String())
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("invalid json %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestRouter_CustodyScenario(t *testing.T) {
	s := newTestServer(t)

	for actor, role := range map[string]string{"M": "manufacturer", "T": "transporter", "W": "warehouse", "R": "retailer"} {
		s.expect(s.do(http.MethodPost, "/v1/roles", "admin", `{"actor":"`+actor+`","role":"`+role+`"}`), http.StatusCreated)
	}

	rec := s.do(http.MethodPost, "/v1/products", "M", `{"sku":"SKU1","description":"Widget","location":"Factory","note":"Built"}`)
	s.expect(rec, http.StatusCreated)
	if created := decode[map[string]any](t, rec); created["id"] != float64(1) {
		t.Fatalf("unexpected create response: %v", created)
	}

	s.expect(s.do(http.MethodPost, "/v1/products/1/transfer", "M", `{"recipient":"T","role":"TRANSFER","location":"Dock","note":"Pickup"}`), http.StatusAccepted)
	s.expect(s.do(http.MethodPost, "/v1/products/1/status", "X", `{"status":"delivered","location":"Nowhere"}`), http.StatusForbidden)
	s.expect(s.do(http.MethodPost, "/v1/products/1/receive", "W", `{"location":"Hub","note":"Arrived"}`), http.StatusAccepted)
	s.expect(s.do(http.MethodPost, "/v1/products/1/admin-override", "admin", `{"owner":"R","status":"delivered"}`), http.StatusAccepted)

	rec = s.do(http.MethodGet, "/v1/products/1", "", "")
	s.expect(rec, http.StatusOK)
	p := decode[map[string]any](t, rec)
	if p["owner"] != "R" || p["status"] != "delivered" || p["history_count"] != float64(4) {
		t.Fatalf("unexpected product: %v", p)
	}

	rec = s.do(http.MethodGet, "/v1/products/1/history/count", "", "")
	s.expect(rec, http.StatusOK)
	if c := decode[map[string]any](t, rec); c["count"] != float64(4) {
		t.Fatalf("unexpected count: %v", c)
	}

	rec = s.do(http.MethodGet, "/v1/products/1/history?count=2", "", "")
	s.expect(rec, http.StatusOK)
	h := decode[struct {
		Items []map[string]any `json:"items"`
	}](t, rec)
	if len(h.Items) != 2 || h.Items[0]["role"] != "Warehouse" || h.Items[1]["note"] != "adminForceUpdate" {
		t.Fatalf("unexpected history: %v", h.Items)
	}

	rec = s.do(http.MethodGet, "/v1/products/1/history/1", "", "")
	s.expect(rec, http.StatusOK)
	if item := decode[map[string]any](t, rec); item["role"] != "TRANSFER" || item["status"] != "in_transit" {
		t.Fatalf("unexpected item: %v", item)
	}

	rec = s.do(http.MethodGet, "/v1/actors/W/roles", "", "")
	s.expect(rec, http.StatusOK)
	if r := decode[map[string]any](t, rec); len(r["roles"].([]any)) != 1 {
		t.Fatalf("unexpected roles: %v", r)
	}
}

func TestRouter_Errors(t *testing.T) {
	s := newTestServer(t)
	s.expect(s.do(http.MethodPost, "/v1/roles", "admin", `{"actor":"M","role":"manufacturer"}`), http.StatusCreated)
	s.expect(s.do(http.MethodPost, "/v1/products", "M", `{"sku":"S"}`), http.StatusCreated)

	cases := []struct {
		name   string
		method string
		path   string
		actor  string
		body   string
		code   int
	}{
		{"missing token", http.MethodPost, "/v1/products", "", `{"sku":"S"}`, http.StatusUnauthorized},
		{"non admin grant", http.MethodPost, "/v1/roles", "M", `{"actor":"M","role":"administrator"}`, http.StatusForbidden},
		{"unknown role", http.MethodPost, "/v1/roles", "admin", `{"actor":"M","role":"auditor"}`, http.StatusBadRequest},
		{"validation", http.MethodPost, "/v1/roles", "admin", `{}`, http.StatusUnprocessableEntity},
		{"create without grant", http.MethodPost, "/v1/products", "nobody", `{"sku":""}`, http.StatusForbidden},
		{"unknown status on missing product", http.MethodPost, "/v1/products/99/status", "M", `{"status":"unknown"}`, http.StatusNotFound},
		{"unknown status without grant", http.MethodPost, "/v1/products/1/status", "X", `{"status":"unknown"}`, http.StatusForbidden},
		{"override without owner", http.MethodPost, "/v1/products/1/admin-override", "M", `{}`, http.StatusForbidden},
		{"unknown product", http.MethodGet, "/v1/products/99", "", "", http.StatusNotFound},
		{"product zero", http.MethodGet, "/v1/products/0", "", "", http.StatusNotFound},
		{"bad id", http.MethodGet, "/v1/products/abc", "", "", http.StatusBadRequest},
		{"index out of range", http.MethodGet, "/v1/products/1/history/5", "", "", http.StatusNotFound},
		{"unknown status", http.MethodPost, "/v1/products/1/status", "M", `{"status":"unknown"}`, http.StatusBadRequest},
		{"recall by stranger", http.MethodPost, "/v1/products/1/recall", "X", `{"reason":"no"}`, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s.t = t
			s.expect(s.do(tc.method, tc.path, tc.actor, tc.body), tc.code)
		})
	}
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	s.expect(s.do(http.MethodGet, "/health", "", ""), http.StatusOK)
	s.expect(s.do(http.MethodGet, "/health/ready", "", ""), http.StatusOK)

	rec := s.do(http.MethodGet, "/metrics", "", "")
	s.expect(rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "http_requests_total") {
		t.Errorf("expected HTTP request metrics in output")
	}
}
