package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pawanM12/deCertify/pkg/config"
)

func newTestLimiter(maxAttempts int, clock *time.Time) *AuthRateLimiter {
	rl := NewAuthRateLimiter(config.AuthRateLimitConfig{
		Enabled:        true,
		MaxAttempts:    maxAttempts,
		WindowSeconds:  60,
		LockoutSeconds: 300,
	}, zap.NewNop())
	if clock != nil {
		rl.now = func() time.Time { return *clock }
	}
	return rl
}

func TestAuthRateLimiter_Allow(t *testing.T) {
	tests := []struct {
		name        string
		maxAttempts int
		requests    int
		wantAllowed int
	}{
		{"allows up to burst", 10, 5, 5},
		{"blocks after burst", 4, 5, 2},
		{"burst is at least one", 1, 3, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := time.Now()
			rl := newTestLimiter(tt.maxAttempts, &now)

			allowed := 0
			for i := 0; i < tt.requests; i++ {
				if rl.Allow("0xabc") {
					allowed++
				}
			}
			if allowed != tt.wantAllowed {
				t.Errorf("Allow() allowed %d requests, want %d", allowed, tt.wantAllowed)
			}
		})
	}
}

func TestAuthRateLimiter_Lockout(t *testing.T) {
	now := time.Now()
	rl := newTestLimiter(2, &now)

	if !rl.Allow("0xabc") {
		t.Fatal("First attempt should be allowed")
	}
	if rl.Allow("0xabc") {
		t.Fatal("Second attempt should exceed the burst")
	}

	// Tokens refill long before the lockout ends
	now = now.Add(time.Minute)
	if rl.Allow("0xabc") {
		t.Error("Attempt during lockout should be blocked")
	}

	now = now.Add(5 * time.Minute)
	if !rl.Allow("0xabc") {
		t.Error("Attempt after lockout should be allowed")
	}

	if !rl.Allow("0xdef") {
		t.Error("Other wallets are limited independently")
	}
}

func TestAuthRateLimiter_RecordFailure(t *testing.T) {
	now := time.Now()
	rl := newTestLimiter(6, &now)

	rl.RecordFailure("0xabc")
	allowed := 0
	for i := 0; i < 3; i++ {
		if rl.Allow("0xabc") {
			allowed++
		}
	}
	if allowed != 1 {
		t.Errorf("Expected one attempt left after a failure, got %d", allowed)
	}
}

func TestAuthRateLimiter_Disabled(t *testing.T) {
	rl := NewAuthRateLimiter(config.AuthRateLimitConfig{Enabled: false, MaxAttempts: 1}, zap.NewNop())
	for i := 0; i < 100; i++ {
		if !rl.Allow("0xabc") {
			t.Fatal("Allow() should always return true when disabled")
		}
	}
}

func TestAuthRateLimiter_Concurrent(t *testing.T) {
	now := time.Now()
	rl := newTestLimiter(200, &now)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 300; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow("0xabc") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 100 {
		t.Errorf("Concurrent test: allowed %d, want 100", allowed)
	}
}

func TestWalletIdentifier(t *testing.T) {
	router := gin.New()
	var seen, body string
	router.POST("/login", func(c *gin.Context) {
		seen = WalletIdentifier(c)
		b, _ := io.ReadAll(c.Request.Body)
		body = string(b)
	})

	payload := `{"walletAddress":"0xABCdef"}`
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(payload)))

	if seen != "0xabcdef" {
		t.Errorf("WalletIdentifier() = %q, want lower-case address", seen)
	}
	if body != payload {
		t.Errorf("Body not restored: %q", body)
	}
}

func TestAuthRateLimitMiddleware(t *testing.T) {
	rl := newTestLimiter(6, nil)
	router := gin.New()
	router.Use(AuthRateLimitMiddleware(rl, WalletIdentifier))
	router.POST("/login", func(c *gin.Context) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
	})

	send := func(wallet string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"walletAddress":"`+wallet+`"}`))
		router.ServeHTTP(w, req)
		return w
	}

	// Burst of three, and the first failure costs the rest
	if w := send("0xabc"); w.Code != http.StatusUnauthorized {
		t.Fatalf("First attempt: got %d", w.Code)
	}
	w := send("0xABC")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("Second attempt: got %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") != "300" {
		t.Errorf("Retry-After = %q", w.Header().Get("Retry-After"))
	}

	if w := send("0xdef"); w.Code != http.StatusUnauthorized {
		t.Errorf("Other wallet: got %d", w.Code)
	}
}
