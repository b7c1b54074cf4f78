package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erp/reconciler/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets bucket refill be driven by the test
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func newTestLimiter(perSecond float64, burst int) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(perSecond, burst)
	rl.now = clock.now
	return rl, clock
}

func TestRateLimiter(t *testing.T) {
	t.Run("allows the burst then blocks", func(t *testing.T) {
		limiter, _ := newTestLimiter(1, 3)
		for i := 0; i < 3; i++ {
			assert.True(t, limiter.Allow("client"), "request %d should be allowed", i+1)
		}
		assert.False(t, limiter.Allow("client"))
	})

	t.Run("separate buckets per key", func(t *testing.T) {
		limiter, _ := newTestLimiter(1, 1)
		assert.True(t, limiter.Allow("a"))
		assert.False(t, limiter.Allow("a"))
		assert.True(t, limiter.Allow("b"))
	})

	t.Run("refills over time", func(t *testing.T) {
		limiter, clock := newTestLimiter(2, 2)
		assert.True(t, limiter.Allow("client"))
		assert.True(t, limiter.Allow("client"))
		assert.False(t, limiter.Allow("client"))

		clock.advance(500 * time.Millisecond)
		assert.True(t, limiter.Allow("client"))
		assert.False(t, limiter.Allow("client"))
	})

	t.Run("remaining", func(t *testing.T) {
		limiter, _ := newTestLimiter(1, 5)
		assert.Equal(t, 5, limiter.Remaining("new"))
		limiter.Allow("new")
		limiter.Allow("new")
		assert.Equal(t, 3, limiter.Remaining("new"))
	})

	t.Run("idle buckets are evicted", func(t *testing.T) {
		limiter, clock := newTestLimiter(1, 1)
		limiter.Allow("old")
		clock.advance(time.Hour)
		limiter.Allow("fresh")

		limiter.mu.Lock()
		_, kept := limiter.clients["old"]
		limiter.mu.Unlock()
		assert.False(t, kept)
	})

	t.Run("concurrent access is safe", func(t *testing.T) {
		limiter, _ := newTestLimiter(1, 100)
		var wg sync.WaitGroup
		var allowed atomic.Int32
		for i := 0; i < 150; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if limiter.Allow("concurrent") {
					allowed.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(100), allowed.Load())
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter, _ := newTestLimiter(1, 2)
	router := gin.New()
	router.Use(RequestID(), RateLimit(limiter))
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	do := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = remote
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w := do("10.0.0.1:1000")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, do("10.0.0.1:1001").Code)

	w = do("10.0.0.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, dto.ErrCodeRateLimited, resp.Error.Code)
	assert.NotEmpty(t, resp.Error.RequestID)

	// another client has its own bucket
	assert.Equal(t, http.StatusOK, do("10.0.0.2:1000").Code)
}

func TestRateLimitByKey(t *testing.T) {
	limiter, _ := newTestLimiter(1, 1)
	router := gin.New()
	router.Use(RateLimitByKey(limiter, func(c *gin.Context) string {
		return c.GetHeader("X-Actor")
	}))
	router.POST("/sync/runs", func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})

	do := func(actor string) int {
		req := httptest.NewRequest(http.MethodPost, "/sync/runs", nil)
		req.Header.Set("X-Actor", actor)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusAccepted, do("ops"))
	assert.Equal(t, http.StatusTooManyRequests, do("ops"))
	assert.Equal(t, http.StatusAccepted, do("finance"))
}
