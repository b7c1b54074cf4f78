package middleware

import (
	"net/http"
	"net/http/httptest"
	"runtime/pprof"
	"testing"

	"github.com/erp/reconciler/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestDefaultProfilingConfig(t *testing.T) {
	cfg := DefaultProfilingConfig()

	assert.True(t, cfg.Enabled)
	assert.Contains(t, cfg.SkipPaths, "/health")
}

func TestProfilingMiddleware_Disabled(t *testing.T) {
	r := gin.New()
	r.Use(ProfilingWithConfig(ProfilingConfig{Enabled: false}))

	var labeled bool
	r.GET("/api/v1/fees/rules", func(c *gin.Context) {
		_, labeled = pprof.Label(c.Request.Context(), telemetry.ProfilingLabelRoute)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/fees/rules", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, labeled)
}

func TestProfilingMiddleware_Labels(t *testing.T) {
	r := gin.New()
	r.Use(Profiling())

	labels := map[string]string{}
	r.GET("/api/v1/payments/:marketplace/groups", func(c *gin.Context) {
		for _, key := range []string{
			telemetry.ProfilingLabelMethod,
			telemetry.ProfilingLabelRoute,
			telemetry.ProfilingLabelController,
			telemetry.ProfilingLabelMarketplace,
		} {
			if v, ok := pprof.Label(c.Request.Context(), key); ok {
				labels[key] = v
			}
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/payments/Mercado%20Livre/groups", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]string{
		telemetry.ProfilingLabelMethod:      http.MethodGet,
		telemetry.ProfilingLabelRoute:       "/api/v1/payments/:marketplace/groups",
		telemetry.ProfilingLabelController:  "payments",
		telemetry.ProfilingLabelMarketplace: "mercado_livre",
	}, labels)
}

func TestProfilingMiddleware_UnknownMarketplaceNotLabeled(t *testing.T) {
	r := gin.New()
	r.Use(Profiling())

	var has bool
	r.GET("/api/v1/payments/:marketplace/groups", func(c *gin.Context) {
		_, has = pprof.Label(c.Request.Context(), telemetry.ProfilingLabelMarketplace)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/payments/amazon/groups", nil))
	assert.False(t, has)
}

func TestProfilingMiddleware_SkipPaths(t *testing.T) {
	r := gin.New()
	r.Use(Profiling())

	var labeled bool
	r.GET("/health", func(c *gin.Context) {
		_, labeled = pprof.Label(c.Request.Context(), telemetry.ProfilingLabelRoute)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, labeled)
}

func TestExtractControllerFromRoute(t *testing.T) {
	tests := []struct {
		route string
		want  string
	}{
		{"/api/v1/sync/runs", "sync"},
		{"/api/v1/links/:marketplace/:orderId/audits", "links"},
		{"/api/v2/fees/orders/:erpId", "fees"},
		{"/health", "health"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.route, func(t *testing.T) {
			assert.Equal(t, tt.want, extractControllerFromRoute(tt.route))
		})
	}
}

func TestIsVersionSegment(t *testing.T) {
	tests := []struct {
		segment string
		want    bool
	}{
		{"v1", true},
		{"V12", true},
		{"v", false},
		{"vx", false},
		{"links", false},
	}

	for _, tt := range tests {
		t.Run(tt.segment, func(t *testing.T) {
			assert.Equal(t, tt.want, isVersionSegment(tt.segment))
		})
	}
}
