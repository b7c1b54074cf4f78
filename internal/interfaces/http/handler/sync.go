package handler

import (
	"context"
	"time"

	"github.com/erp/reconciler/internal/application/erpsync"
	"github.com/erp/reconciler/internal/domain/erporder"
	"github.com/erp/reconciler/internal/domain/shared"
	"github.com/erp/reconciler/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// SyncService runs and lists differential ERP syncs
type SyncService interface {
	Run(ctx context.Context, req erpsync.Request) (*erpsync.Report, error)
	Runs(ctx context.Context, filter shared.Filter) (shared.Paginated[erporder.SyncRun], error)
}

// SyncHandler handles sync run endpoints
type SyncHandler struct {
	BaseHandler
	service SyncService
	loc     *time.Location
}

// NewSyncHandler creates a new SyncHandler. Calendar days are read in loc.
func NewSyncHandler(service SyncService, loc *time.Location) *SyncHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &SyncHandler{service: service, loc: loc}
}

// Run syncs the requested period and answers with the run report. A run
// that fails part way still reports what it did.
func (h *SyncHandler) Run(c *gin.Context) {
	var req dto.SyncRunRequest
	if !h.bindJSON(c, &req) {
		return
	}
	from, to, err := req.Parse(h.loc)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	report, err := h.service.Run(c.Request.Context(), erpsync.Request{
		From:       from,
		To:         to,
		PageSize:   req.PageSize,
		WindowDays: req.WindowDays,
		Trigger:    "api",
		Exclusive:  true,
	})
	if err != nil && report == nil {
		h.HandleError(c, err)
		return
	}
	if err != nil {
		_ = c.Error(err)
	}
	h.Success(c, report)
}

// List returns stored sync runs, newest first by default
func (h *SyncHandler) List(c *gin.Context) {
	var req dto.ListRequest
	if !h.bindQuery(c, &req) {
		return
	}
	page, err := h.service.Runs(c.Request.Context(), req.ToFilter())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, dto.ToSyncRunResponses(page.Items), page.Total, page.Page, page.PageSize)
}
