package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/JonMunkholm/inventory/internal/config"
	"github.com/JonMunkholm/inventory/internal/core"
)

// =============================================================================
// TrustedRealIP
// =============================================================================

func TestTrustedRealIP(t *testing.T) {
	tests := []struct {
		name       string
		trusted    []string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"untrusted ignores header", []string{"10.0.0.0/8"}, "203.0.113.5:4000",
			map[string]string{"X-Real-IP": "1.2.3.4"}, "203.0.113.5:4000"},
		{"trusted uses X-Real-IP", []string{"10.0.0.0/8"}, "10.1.2.3:4000",
			map[string]string{"X-Real-IP": "198.51.100.7"}, "198.51.100.7"},
		{"trusted uses first forwarded hop", []string{"10.0.0.1"}, "10.0.0.1:4000",
			map[string]string{"X-Forwarded-For": "198.51.100.7, 10.0.0.1"}, "198.51.100.7"},
		{"invalid header ignored", []string{"10.0.0.0/8"}, "10.1.2.3:4000",
			map[string]string{"X-Real-IP": "not-an-ip"}, "10.1.2.3:4000"},
		{"no trusted proxies", nil, "10.1.2.3:4000",
			map[string]string{"X-Real-IP": "198.51.100.7"}, "10.1.2.3:4000"},
		{"bad cidr skipped", []string{"garbage", "::1"}, "[::1]:4000",
			map[string]string{"X-Real-IP": "2001:db8::5"}, "2001:db8::5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := TrustedRealIP(tt.trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.RemoteAddr
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Errorf("RemoteAddr = %q, want %q", got, tt.want)
			}
		})
	}
}

// =============================================================================
// RateLimiter
// =============================================================================

func TestRateLimiter_Allow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(ctx, 2, time.Minute)
	rl.now = func() time.Time { return now }

	for i, want := range []bool{true, true, false} {
		if got := rl.Allow("1.1.1.1"); got != want {
			t.Fatalf("request %d: Allow = %v, want %v", i+1, got, want)
		}
	}
	if !rl.Allow("2.2.2.2") {
		t.Error("other client should have its own budget")
	}

	now = now.Add(61 * time.Second)
	if !rl.Allow("1.1.1.1") {
		t.Error("budget should reset after the window")
	}
}

func TestRateLimiter_Handler(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := NewRateLimiter(ctx, 1, time.Minute)
	h := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("request %d: status = %d, want %d", i+1, rec.Code, want)
		}
		if want == http.StatusTooManyRequests && rec.Header().Get("Retry-After") != "60" {
			t.Errorf("Retry-After = %q, want 60", rec.Header().Get("Retry-After"))
		}
	}
}

// =============================================================================
// Auth and identity
// =============================================================================

func TestAPIKeyAuth_Disabled(t *testing.T) {
	h := APIKeyAuth(&config.SecurityConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestIsValidAPIKey(t *testing.T) {
	keys := []string{"alpha", "bravo"}
	tests := []struct {
		key  string
		want bool
	}{
		{"alpha", true},
		{"bravo", true},
		{"charlie", false},
		{"alph", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isValidAPIKey(tt.key, keys); got != tt.want {
			t.Errorf("isValidAPIKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestIdentity(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"header set", "alice", "alice"},
		{"header trimmed", "  bob ", "bob"},
		{"missing", "", AnonymousUser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var user, ip, ua string
			h := Identity("X-Remote-User")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				user = core.UserFromContext(r.Context())
				ip = core.GetIPAddressFromContext(r.Context())
				ua = core.GetUserAgentFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "192.0.2.9:5555"
			req.Header.Set("User-Agent", "curl/8")
			if tt.header != "" {
				req.Header.Set("X-Remote-User", tt.header)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			if user != tt.want {
				t.Errorf("user = %q, want %q", user, tt.want)
			}
			if ip != "192.0.2.9" {
				t.Errorf("ip = %q, want 192.0.2.9", ip)
			}
			if ua != "curl/8" {
				t.Errorf("user agent = %q", ua)
			}
		})
	}
}
