package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/R3E-Network/cause_registry/internal/httputil"
	"github.com/R3E-Network/cause_registry/internal/logging"
)

const testAddress = "NZNovKQ1VfqeXzGCpbhNodkqbYfgBHVNpN"

func generateTestKeys(t *testing.T) (*rsa.PrivateKey, *rsa.PublicKey) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate RSA key: %v", err)
	}
	return privateKey, &privateKey.PublicKey
}

func generateTestToken(t *testing.T, privateKey *rsa.PrivateKey, claims *Claims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tokenString, err := token.SignedString(privateKey)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return tokenString
}

func validClaims(address string) *Claims {
	return &Claims{
		NeoAddress: address,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "registry-test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func serveAuth(t *testing.T, m *AuthMiddleware, header string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	var seen string
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodPost, "/causes", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, seen
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env httputil.ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return env.Error.Code
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	priv, pub := generateTestKeys(t)
	m := NewAuthMiddleware(pub, "registry-test", logging.NewDiscard())

	rec, seen := serveAuth(t, m, "Bearer "+generateTestToken(t, priv, validClaims(testAddress)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if seen != testAddress {
		t.Fatalf("user id = %q, want %q", seen, testAddress)
	}
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	priv, pub := generateTestKeys(t)
	otherPriv, _ := generateTestKeys(t)
	m := NewAuthMiddleware(pub, "registry-test", logging.NewDiscard())

	expired := validClaims(testAddress)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	wrongIssuer := validClaims(testAddress)
	wrongIssuer.Issuer = "someone-else"

	hs := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims(testAddress))
	hsToken, err := hs.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign hs256: %v", err)
	}

	cases := []struct {
		name   string
		header string
		code   string
	}{
		{"missing header", "", "UNAUTHORIZED"},
		{"bad scheme", "Basic abc", "UNAUTHORIZED"},
		{"garbage", "Bearer not-a-token", "INVALID_TOKEN"},
		{"expired", "Bearer " + generateTestToken(t, priv, expired), "INVALID_TOKEN"},
		{"wrong key", "Bearer " + generateTestToken(t, otherPriv, validClaims(testAddress)), "INVALID_TOKEN"},
		{"wrong issuer", "Bearer " + generateTestToken(t, priv, wrongIssuer), "INVALID_TOKEN"},
		{"hmac", "Bearer " + hsToken, "INVALID_TOKEN"},
		{"no address", "Bearer " + generateTestToken(t, priv, validClaims("")), "INVALID_TOKEN"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, seen := serveAuth(t, m, tc.header)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			if seen != "" {
				t.Fatal("handler should not run")
			}
			if got := errorCode(t, rec); got != tc.code {
				t.Fatalf("code = %s, want %s", got, tc.code)
			}
		})
	}
}

func TestAuthMiddleware_KeepsRole(t *testing.T) {
	priv, pub := generateTestKeys(t)
	m := NewAuthMiddleware(pub, "", logging.NewDiscard())

	claims := validClaims(testAddress)
	claims.Role = "operator"

	var role string
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role = logging.GetRole(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+generateTestToken(t, priv, claims))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if role != "operator" {
		t.Fatalf("role = %q", role)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2, logging.NewDiscard())
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(user string) int {
		req := httptest.NewRequest(http.MethodGet, "/causes", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		if user != "" {
			req = req.WithContext(logging.WithUserID(req.Context(), user))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if do("") != http.StatusOK || do("") != http.StatusOK {
		t.Fatal("burst should be allowed")
	}
	if got := do(""); got != http.StatusTooManyRequests {
		t.Fatalf("third anonymous request = %d, want 429", got)
	}
	if got := do(testAddress); got != http.StatusOK {
		t.Fatalf("authenticated caller has its own bucket, got %d", got)
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(1, 1, logging.NewDiscard())
	now := time.Now()
	rl.now = func() time.Time { return now }
	rl.getLimiter("a")

	now = now.Add(time.Minute)
	rl.getLimiter("b")

	if removed := rl.Cleanup(30 * time.Second); removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, ok := rl.limiters["b"]; !ok {
		t.Fatal("recent limiter was removed")
	}
}

func TestTracingMiddlewarePropagatesTraceID(t *testing.T) {
	m := NewTracingMiddleware(logging.NewDiscard())
	var seen string
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.GetTraceID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(TraceHeader, "trace-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "trace-123" || rec.Header().Get(TraceHeader) != "trace-123" {
		t.Fatalf("trace id not propagated: ctx=%q header=%q", seen, rec.Header().Get(TraceHeader))
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Header().Get(TraceHeader) == "" {
		t.Fatal("expected generated trace id")
	}
}

func TestCORSMiddleware(t *testing.T) {
	m := NewCORSMiddleware([]string{"https://app.example.org", "*.partner.io"})
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		origin  string
		allowed bool
	}{
		{"https://app.example.org", true},
		{"https://shop.partner.io", true},
		{"https://evil.example.org", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/causes", nil)
		req.Header.Set("Origin", tc.origin)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		got := rec.Header().Get("Access-Control-Allow-Origin") == tc.origin
		if got != tc.allowed {
			t.Errorf("origin %s allowed = %v, want %v", tc.origin, got, tc.allowed)
		}
	}

	req := httptest.NewRequest(http.MethodOptions, "/causes", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req.WithContext(context.Background()))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rec.Code)
	}
}
