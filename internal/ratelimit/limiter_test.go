package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"pgregory.net/rapid"
)

func sessionKeyGenerator() *rapid.Generator[string] {
	return rapid.StringMatching(`[a-f0-9]{8,32}`)
}

// =============================================================================
// Property: requests within the burst succeed, the next one is blocked
// =============================================================================

func testRateLimiter_BurstThenBlock(t *rapid.T) {
	burst := rapid.IntRange(1, 50).Draw(t, "burst")
	rl := New(Config{RPS: 0.001, Burst: burst, IdleTimeout: time.Hour})
	key := sessionKeyGenerator().Draw(t, "key")

	for i := 0; i < burst; i++ {
		if !rl.Allow(key) {
			t.Fatalf("request %d of %d should have been allowed", i+1, burst)
		}
	}
	if rl.Allow(key) {
		t.Fatalf("request beyond burst %d should have been blocked", burst)
	}
}

func TestRateLimiter_BurstThenBlock(t *testing.T) {
	rapid.Check(t, testRateLimiter_BurstThenBlock)
}

func FuzzRateLimiter_BurstThenBlock(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testRateLimiter_BurstThenBlock))
}

// =============================================================================
// Property: keys have independent limits
// =============================================================================

func testRateLimiter_KeyIndependence(t *rapid.T) {
	rl := New(Config{RPS: 0.001, Burst: 3, IdleTimeout: time.Hour})
	a := sessionKeyGenerator().Draw(t, "a")
	b := sessionKeyGenerator().Filter(func(s string) bool { return s != a }).Draw(t, "b")

	for i := 0; i < 3; i++ {
		rl.Allow(a)
	}
	if rl.Allow(a) {
		t.Fatal("exhausted key should be blocked")
	}
	if !rl.Allow(b) {
		t.Fatal("other key should be unaffected")
	}
	if rl.Len() != 2 {
		t.Fatalf("Len = %d, want 2", rl.Len())
	}
}

func TestRateLimiter_KeyIndependence(t *testing.T) {
	rapid.Check(t, testRateLimiter_KeyIndependence)
}

func FuzzRateLimiter_KeyIndependence(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testRateLimiter_KeyIndependence))
}

func TestRateLimiter_IdleLimitersSwept(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := New(Config{RPS: 1, Burst: 1, IdleTimeout: time.Minute})
	rl.now = func() time.Time { return now }

	rl.Allow("old")
	now = now.Add(30 * time.Second)
	rl.Allow("recent")
	if rl.Len() != 2 {
		t.Fatalf("Len = %d, want 2", rl.Len())
	}

	now = now.Add(45 * time.Second)
	rl.Allow("new")
	if rl.Len() != 2 {
		t.Fatalf("Len = %d, want 2 after sweeping the idle limiter", rl.Len())
	}
	if rl.Limiter("recent") == nil {
		t.Fatal("recent limiter should survive")
	}
}

func TestRateLimiter_SameLimiterPerKey(t *testing.T) {
	rl := New(DefaultConfig)
	if rl.Limiter("k") != rl.Limiter("k") {
		t.Fatal("expected the same limiter for the same key")
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rl := New(Config{RPS: 1000, Burst: 1000, IdleTimeout: time.Hour})
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				rl.Allow("shared")
			}
		}()
	}
	wg.Wait()
	if rl.Len() != 1 {
		t.Fatalf("Len = %d, want 1", rl.Len())
	}
}

func TestMiddleware(t *testing.T) {
	rl := New(Config{RPS: 0.001, Burst: 2, IdleTimeout: time.Hour})
	h := Middleware(rl, func(r *http.Request) string { return r.Header.Get("X-Session") })(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }),
	)

	do := func(session string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/click", nil)
		if session != "" {
			req.Header.Set("X-Session", session)
		}
		h.ServeHTTP(rec, req)
		return rec
	}

	if rec := do("s1"); rec.Code != http.StatusNoContent || rec.Header().Get("X-RateLimit-Remaining") != "1" {
		t.Fatalf("first request: code=%d remaining=%q", rec.Code, rec.Header().Get("X-RateLimit-Remaining"))
	}
	do("s1")
	rec := do("s1")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request: code=%d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Fatalf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
	for i := 0; i < 5; i++ {
		if rec := do(""); rec.Code != http.StatusNoContent {
			t.Fatalf("keyless request limited: %d", rec.Code)
		}
	}
}
