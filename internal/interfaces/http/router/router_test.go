package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/erp/reconciler/internal/interfaces/http/handler"
	"github.com/erp/reconciler/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())
	assert.Equal(t, "v1", r.apiVersion)
	assert.Equal(t, "/api/v1", r.BasePath())
	assert.Empty(t, r.registrars)

	r = NewRouter(gin.New(), WithAPIVersion("v2"))
	assert.Equal(t, "/api/v2", r.BasePath())
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	group := NewDomainGroup("test", "/test")
	group.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	NewRouter(engine).Register(group).Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/test/ping", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestDomainGroup(t *testing.T) {
	t.Run("name and prefix", func(t *testing.T) {
		g := NewDomainGroup("links", "/links")
		assert.Equal(t, "links", g.Name())
		assert.Equal(t, "/links", g.Prefix())
	})

	t.Run("registers every method", func(t *testing.T) {
		reply := func(c *gin.Context) { c.String(http.StatusOK, c.Request.Method) }
		g := NewDomainGroup("items", "/items")
		g.GET("", reply).POST("", reply).PUT("/:id", reply).DELETE("/:id", reply).Handle(http.MethodPatch, "/:id", reply)

		engine := gin.New()
		g.RegisterRoutes(engine.Group("/api/v1"))

		for _, tc := range []struct{ method, path string }{
			{http.MethodGet, "/api/v1/items"},
			{http.MethodPost, "/api/v1/items"},
			{http.MethodPut, "/api/v1/items/1"},
			{http.MethodDelete, "/api/v1/items/1"},
			{http.MethodPatch, "/api/v1/items/1"},
		} {
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
			assert.Equal(t, http.StatusOK, w.Code, tc.method)
			assert.Equal(t, tc.method, w.Body.String())
		}
	})

	t.Run("group middleware and subgroups", func(t *testing.T) {
		g := NewDomainGroup("parent", "/parent")
		g.Use(func(c *gin.Context) {
			c.Header("X-Group", "parent")
			c.Next()
		})
		g.Group("child", "/child").GET("/leaf", func(c *gin.Context) {
			c.String(http.StatusOK, "leaf")
		})

		engine := gin.New()
		g.RegisterRoutes(engine.Group("/api/v1"))

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/parent/child/leaf", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "parent", w.Header().Get("X-Group"))
	})
}

// testHandlers builds handlers whose services are never reached by the
// tests below
func testHandlers() Handlers {
	return Handlers{
		Sync:    handler.NewSyncHandler(nil, time.UTC),
		Link:    handler.NewLinkHandler(nil, time.UTC),
		Fee:     handler.NewFeeHandler(nil, time.UTC),
		Payment: handler.NewPaymentHandler(nil, time.UTC),
		System:  handler.NewSystemHandler(handler.WithVersion("reconciler", "test")),
	}
}

func TestAPIGroups(t *testing.T) {
	engine := gin.New()
	NewRouter(engine).Register(APIGroups(testHandlers())...).Setup()

	registered := make(map[string]bool)
	for _, r := range engine.Routes() {
		registered[r.Method+" "+r.Path] = true
	}

	expected := []string{
		"POST /api/v1/sync/runs",
		"GET /api/v1/sync/runs",
		"POST /api/v1/links/resolve",
		"POST /api/v1/links",
		"GET /api/v1/links/:marketplace/:orderId",
		"PUT /api/v1/links/:marketplace/:orderId",
		"DELETE /api/v1/links/:marketplace/:orderId",
		"GET /api/v1/links/:marketplace/:orderId/audits",
		"POST /api/v1/fees/preview",
		"POST /api/v1/fees/orders/:erpId",
		"POST /api/v1/fees/recompute",
		"GET /api/v1/fees/rules",
		"PUT /api/v1/fees/rules/:marketplace",
		"POST /api/v1/payments/:marketplace/ingest",
		"POST /api/v1/payments/:marketplace/pull",
		"POST /api/v1/payments/:marketplace/resolve",
		"GET /api/v1/payments/:marketplace/groups",
		"GET /api/v1/payments/:marketplace/discrepancies",
		"GET /api/v1/health",
		"GET /api/v1/scheduler/jobs",
		"POST /api/v1/scheduler/jobs/:name/run",
	}
	for _, route := range expected {
		assert.True(t, registered[route], "missing route %s", route)
	}
	assert.Len(t, registered, len(expected))
}

func TestNewEngine(t *testing.T) {
	t.Run("health on both paths with request id and security headers", func(t *testing.T) {
		engine := NewEngine(EngineConfig{}, testHandlers())

		for _, path := range []string{"/health", "/api/v1/health"} {
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

			assert.Equal(t, http.StatusOK, w.Code, path)
			assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
			assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
			assert.Contains(t, w.Body.String(), `"version":"test"`)
		}
	})

	t.Run("allowed origin", func(t *testing.T) {
		engine := NewEngine(EngineConfig{CORSOrigins: []string{"https://ops.example.com"}}, testHandlers())

		req := httptest.NewRequest(http.MethodOptions, "/api/v1/sync/runs", nil)
		req.Header.Set("Origin", "https://ops.example.com")
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "https://ops.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("body limit", func(t *testing.T) {
		engine := NewEngine(EngineConfig{MaxBodySize: 16}, testHandlers())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/runs",
			strings.NewReader(`{"from":"2024-01-01","to":"2024-01-31"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	t.Run("rate limit", func(t *testing.T) {
		engine := NewEngine(EngineConfig{RateLimit: 1, RateLimitBurst: 2}, testHandlers())

		codes := make([]int, 0, 3)
		for i := 0; i < 3; i++ {
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
			codes = append(codes, w.Code)
		}
		require.Len(t, codes, 3)
		assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	})

	t.Run("validation runs before services", func(t *testing.T) {
		engine := NewEngine(EngineConfig{}, testHandlers())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/links",
			strings.NewReader(`{"marketplace":"amazon","marketplace_order_id":"1","erp_order_id":1}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "ERR_VALIDATION")
	})

	t.Run("docs", func(t *testing.T) {
		enabled := NewEngine(EngineConfig{Docs: middleware.DocsConfig{Enabled: true}}, testHandlers())
		w := httptest.NewRecorder()
		enabled.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "/links/resolve")

		disabled := NewEngine(EngineConfig{}, testHandlers())
		w = httptest.NewRecorder()
		disabled.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
