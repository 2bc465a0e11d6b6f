package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"github.com/lalithlochan/cadence/internal/redis"
)

func TestIPKeyFunc(t *testing.T) {
	tests := []struct {
		name       string
		forwarded  string
		realIP     string
		remoteAddr string
		expected   string
	}{
		{"X-Forwarded-For", "1.2.3.4", "", "5.6.7.8:1234", "ip:1.2.3.4"},
		{"X-Real-IP", "", "1.2.3.4", "5.6.7.8:1234", "ip:1.2.3.4"},
		{"RemoteAddr fallback", "", "", "5.6.7.8:1234", "ip:5.6.7.8:1234"},
		{"Forwarded takes precedence", "1.1.1.1", "2.2.2.2", "3.3.3.3:1234", "ip:1.1.1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			req.RemoteAddr = tt.remoteAddr

			result := IPKeyFunc(req)
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestRateLimitMiddleware_NoLimiter(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	middleware := RateLimitMiddleware(nil, nil, IPKeyFunc)
	wrapped := middleware(handler)

	req := httptest.NewRequest("GET", "/test", nil)
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRateLimitMiddleware_RejectsOverLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := redis.NewFromAddr(context.Background(), mr.Addr(), zap.NewNop())
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	limiter := redis.NewRateLimiter(client, zap.NewNop(), redis.RateLimitConfig{
		Limit:  2,
		Window: time.Minute,
	})

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := RateLimitMiddleware(limiter, zap.NewNop(), IPKeyFunc)(handler)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/v1/campaigns/quote_follow_up/subjects", nil)
		req.Header.Set("X-Real-IP", "9.9.9.9")
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}

	req := httptest.NewRequest("POST", "/v1/campaigns/quote_follow_up/subjects", nil)
	req.Header.Set("X-Real-IP", "9.9.9.9")
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header on rejection")
	}
}
