package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/giygas/dosecurve-api/config"
	"github.com/giygas/dosecurve-api/metrics"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(r.RemoteAddr))
})

func TestGetTokenCost(t *testing.T) {
	tests := []struct {
		name         string
		method       string
		path         string
		expectedCost int64
	}{
		{"Metrics are free", http.MethodGet, "/metrics", 0},
		{"Health endpoint", http.MethodGet, "/health", 5},
		{"Compound properties", http.MethodGet, "/v1/compound", 5},
		{"Stateless simulation", http.MethodPost, "/v1/simulate", 50},
		{"Import", http.MethodPost, "/v1/profiles/abc/doses/import", 50},
		{"Concentrations", http.MethodGet, "/v1/profiles/abc/concentrations", 20},
		{"Concentrations export", http.MethodGet, "/v1/profiles/abc/concentrations.tsv", 20},
		{"Weekly averages", http.MethodGet, "/v1/profiles/abc/weekly", 20},
		{"Dose list", http.MethodGet, "/v1/profiles/abc/doses", 10},
		{"Dose edit", http.MethodPatch, "/v1/profiles/abc/doses/0", 10},
		{"Create profile", http.MethodPost, "/v1/profiles", 10},
		{"Default endpoint", http.MethodGet, "/unknown", 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if cost := getTokenCost(req); cost != tt.expectedCost {
				t.Errorf("getTokenCost(%s) = %d, want %d", tt.path, cost, tt.expectedCost)
			}
		})
	}
}

func TestRateLimiterExhaustion(t *testing.T) {
	rl := NewRateLimiter()
	handler := rl.Handler(okHandler)

	allowed := 0
	var last *httptest.ResponseRecorder
	for i := 0; i < 25; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/simulate", nil)
		req.RemoteAddr = "203.0.113.7:1234"
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, req)
		if last.Code == http.StatusOK {
			allowed++
		}
	}

	if allowed != 20 {
		t.Errorf("Expected 20 allowed simulations from a full bucket, got %d", allowed)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429 once the bucket is empty, got %d", last.Code)
	}
	if last.Header().Get("X-RateLimit-Remaining") != "0" || last.Header().Get("Retry-After") != "60" {
		t.Errorf("Unexpected rate limit headers: %v", last.Header())
	}
	if !strings.Contains(last.Body.String(), `"code":429`) {
		t.Errorf("Expected JSON error body, got %s", last.Body.String())
	}

	// other clients keep their own bucket
	req := httptest.NewRequest(http.MethodPost, "/v1/simulate", nil)
	req.RemoteAddr = "198.51.100.1:1"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("Second client should not be limited, got %d", rr.Code)
	}
}

func TestRateLimiterKeysOnHost(t *testing.T) {
	rl := NewRateLimiter()
	handler := rl.Handler(okHandler)

	var rr *httptest.ResponseRecorder
	for _, addr := range []string{"203.0.113.9:1111", "203.0.113.9:2222", "203.0.113.9"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/compound", nil)
		req.RemoteAddr = addr
		rr = httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
	}

	if got := rr.Header().Get("X-RateLimit-Remaining"); got != "985" {
		t.Errorf("Expected connections from one host to share a bucket (985 remaining), got %s", got)
	}
}

func TestRateLimiterPrune(t *testing.T) {
	rl := NewRateLimiter()
	handler := rl.Handler(okHandler)

	for _, ip := range []string{"192.0.2.1:1", "192.0.2.2:1"} {
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil) // free, bucket stays full
		req.RemoteAddr = ip
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/simulate", nil)
	req.RemoteAddr = "192.0.2.3:1"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if remaining := rl.Prune(); remaining != 1 {
		t.Errorf("Expected 1 bucket after prune, got %d", remaining)
	}
	if gauge := testutil.ToFloat64(metrics.RateLimiterBucketsTotal); gauge != 1 {
		t.Errorf("Expected buckets gauge 1, got %v", gauge)
	}
}

func TestRealIPMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		xff      string
		expected string
	}{
		{"single IP", "203.0.113.195", "203.0.113.195"},
		{"proxy chain", "203.0.113.195, 70.41.3.18", "203.0.113.195"},
		{"no header", "", "192.0.2.1:1234"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			rr := httptest.NewRecorder()

			RealIPMiddleware(okHandler).ServeHTTP(rr, req)

			if rr.Body.String() != tt.expected {
				t.Errorf("Expected RemoteAddr %s, got %s", tt.expected, rr.Body.String())
			}
		})
	}
}

func TestBlockDirectAccessMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		remoteAddr     string
		headers        map[string]string
		expectedStatus int
	}{
		{"localhost IPv4", "127.0.0.1:1234", nil, http.StatusOK},
		{"localhost IPv6", "[::1]:1234", nil, http.StatusOK},
		{"direct IP", "203.0.113.5:1234", nil, http.StatusForbidden},
		{"via proxy X-Forwarded-For", "203.0.113.5:1234", map[string]string{"X-Forwarded-For": "198.51.100.2"}, http.StatusOK},
		{"via proxy X-Real-IP", "203.0.113.5:1234", map[string]string{"X-Real-IP": "198.51.100.2"}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rr := httptest.NewRecorder()

			BlockDirectAccessMiddleware(okHandler).ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, rr.Code)
			}
		})
	}
}

func TestRequestSizeMiddleware(t *testing.T) {
	cfg := &config.Config{MaxRequestBody: 100, MaxHeaderSize: 200}
	handler := RequestSizeMiddleware(cfg)(okHandler)

	tests := []struct {
		name           string
		body           string
		header         string
		expectedStatus int
	}{
		{"small body", strings.Repeat("a", 50), "", http.StatusOK},
		{"exactly max body", strings.Repeat("a", 100), "", http.StatusOK},
		{"body too large", strings.Repeat("a", 101), "", http.StatusRequestEntityTooLarge},
		{"headers too large", "", strings.Repeat("h", 250), http.StatusRequestHeaderFieldsTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/simulate", strings.NewReader(tt.body))
			if tt.header != "" {
				req.Header.Set("X-Large", tt.header)
			}
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, rr.Code)
			}
		})
	}
}
