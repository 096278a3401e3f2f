package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func request(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(rate.Every(time.Hour), 2)(okHandler)

	assert.Equal(t, http.StatusOK, request(h, "10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusOK, request(h, "10.0.0.1:1001").Code)

	rec := request(h, "10.0.0.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"too many requests"}`, rec.Body.String())

	// Other clients have their own budget.
	assert.Equal(t, http.StatusOK, request(h, "10.0.0.2:1000").Code)
}

func TestIPLimiterEvict(t *testing.T) {
	now := time.Now()
	il := newIPLimiter(rate.Inf, 1)
	il.now = func() time.Time { return now }

	il.get("a")
	now = now.Add(time.Hour)
	il.get("b")

	assert.Equal(t, 1, il.evict(30*time.Minute))
	assert.Len(t, il.visitors, 1)
}

func TestPerMinute(t *testing.T) {
	assert.Equal(t, rate.Every(2*time.Second), PerMinute(30))
}

func TestSecurityHeaders(t *testing.T) {
	rec := request(SecurityHeaders(okHandler), "10.0.0.1:1")

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-referrer", rec.Header().Get("Referrer-Policy"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://app.example"})(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}
