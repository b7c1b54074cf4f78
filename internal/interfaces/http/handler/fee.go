package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/erp/reconciler/internal/application/fees"
	"github.com/erp/reconciler/internal/domain/fee"
	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/erp/reconciler/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// FeeService prices orders and manages fee rules
type FeeService interface {
	Preview(ctx context.Context, in fee.Input) (fee.Breakdown, error)
	ComputeForOrder(ctx context.Context, req fees.ComputeRequest) (fee.Breakdown, error)
	RecomputeRange(ctx context.Context, from, to time.Time) (*fees.RecomputeReport, error)
	Rules(ctx context.Context) (fees.RulesView, error)
	UpdateRuleSet(ctx context.Context, m marketplace.Marketplace, sets []fee.RuleSet) (fees.RulesView, error)
}

// FeeHandler handles fee endpoints
type FeeHandler struct {
	BaseHandler
	service FeeService
	loc     *time.Location
	now     func() time.Time
}

// NewFeeHandler creates a new FeeHandler
func NewFeeHandler(service FeeService, loc *time.Location) *FeeHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &FeeHandler{service: service, loc: loc, now: time.Now}
}

// Preview prices a hypothetical order without storing anything
func (h *FeeHandler) Preview(c *gin.Context) {
	var req dto.FeePreviewRequest
	if !h.bindJSON(c, &req) {
		return
	}
	in, err := req.ToInput(h.loc, h.now())
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	breakdown, err := h.service.Preview(c.Request.Context(), in)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, breakdown)
}

// ComputeForOrder prices a linked ERP order and stores the result
func (h *FeeHandler) ComputeForOrder(c *gin.Context) {
	erpID, err := strconv.ParseInt(c.Param("erpId"), 10, 64)
	if err != nil || erpID <= 0 {
		h.BadRequest(c, "ERP order id must be a positive integer")
		return
	}
	var req dto.ComputeFeeRequest
	if c.Request.ContentLength != 0 && !h.bindJSON(c, &req) {
		return
	}
	breakdown, err := h.service.ComputeForOrder(c.Request.Context(), fees.ComputeRequest{
		ERPOrderID:    erpID,
		SellerVoucher: req.Voucher(),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, breakdown)
}

// Recompute reprices every order created in the period against the
// current rules
func (h *FeeHandler) Recompute(c *gin.Context) {
	var req dto.RecomputeFeesRequest
	if !h.bindJSON(c, &req) {
		return
	}
	from, to, err := req.Bounds(h.loc)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	report, err := h.service.RecomputeRange(c.Request.Context(), from, to)
	if err != nil && report == nil {
		h.HandleError(c, err)
		return
	}
	if err != nil {
		_ = c.Error(err)
	}
	h.Success(c, report)
}

// Rules returns the rule sets in force
func (h *FeeHandler) Rules(c *gin.Context) {
	view, err := h.service.Rules(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, view)
}

// UpdateRules replaces the rule sets of one marketplace
func (h *FeeHandler) UpdateRules(c *gin.Context) {
	m, ok := h.marketplaceParam(c)
	if !ok {
		return
	}
	var req dto.UpdateRuleSetRequest
	if !h.bindJSON(c, &req) {
		return
	}
	view, err := h.service.UpdateRuleSet(c.Request.Context(), m, req.RuleSets)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, view)
}
