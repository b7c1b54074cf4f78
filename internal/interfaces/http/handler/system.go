package handler

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/erp/reconciler/internal/infrastructure/scheduler"
	"github.com/erp/reconciler/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// HealthCheck checks one dependency
type HealthCheck func(ctx context.Context) error

// JobScheduler exposes the background jobs
type JobScheduler interface {
	Stats() []scheduler.JobStats
	RunNow(name string) error
}

// SystemHandler handles health and scheduler endpoints
type SystemHandler struct {
	BaseHandler
	name      string
	version   string
	startTime time.Time
	checks    map[string]HealthCheck
	scheduler JobScheduler
	timeout   time.Duration
}

// SystemHandlerOption configures a SystemHandler
type SystemHandlerOption func(*SystemHandler)

// WithHealthCheck adds a dependency check to the health endpoint
func WithHealthCheck(name string, check HealthCheck) SystemHandlerOption {
	return func(h *SystemHandler) {
		h.checks[name] = check
	}
}

// WithScheduler exposes the background jobs
func WithScheduler(s JobScheduler) SystemHandlerOption {
	return func(h *SystemHandler) {
		h.scheduler = s
	}
}

// WithVersion sets the reported service name and version
func WithVersion(name, version string) SystemHandlerOption {
	return func(h *SystemHandler) {
		h.name = name
		h.version = version
	}
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(opts ...SystemHandlerOption) *SystemHandler {
	h := &SystemHandler{
		name:      "reconciler",
		version:   "dev",
		startTime: time.Now(),
		checks:    make(map[string]HealthCheck),
		timeout:   3 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HealthResponse reports the service and its dependencies
type HealthResponse struct {
	Status    string            `json:"status"`
	Name      string            `json:"name"`
	Version   string            `json:"version"`
	GoVersion string            `json:"go_version"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Health checks every dependency and answers 503 when any is down
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	resp := HealthResponse{
		Status:    "ok",
		Name:      h.name,
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}
	if len(h.checks) > 0 {
		resp.Checks = make(map[string]string, len(h.checks))
	}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			continue
		}
		resp.Checks[name] = "ok"
	}

	if resp.Status != "ok" {
		c.JSON(http.StatusServiceUnavailable, dto.Response{Success: false, Data: resp})
		return
	}
	h.Success(c, resp)
}

// Jobs returns the execution stats of the background jobs
func (h *SystemHandler) Jobs(c *gin.Context) {
	if h.scheduler == nil {
		h.HandleError(c, scheduler.ErrSchedulerNotRunning)
		return
	}
	h.Success(c, h.scheduler.Stats())
}

// RunJob starts a background job immediately
func (h *SystemHandler) RunJob(c *gin.Context) {
	if h.scheduler == nil {
		h.HandleError(c, scheduler.ErrSchedulerNotRunning)
		return
	}
	name := c.Param("name")
	if err := h.scheduler.RunNow(name); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, gin.H{"job": name})
}
