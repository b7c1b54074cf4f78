package handler

import (
	"context"
	"time"

	linkapp "github.com/erp/reconciler/internal/application/linking"
	"github.com/erp/reconciler/internal/domain/linking"
	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/erp/reconciler/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// LinkService resolves and administers marketplace order links
type LinkService interface {
	Resolve(ctx context.Context, erpOrderID int64) (linking.Outcome, error)
	ResolveBatch(ctx context.Context, req linkapp.BatchRequest) (*linkapp.BatchReport, error)
	LinkManually(ctx context.Context, req linkapp.ManualLinkRequest) (*linking.Link, error)
	Reassign(ctx context.Context, m marketplace.Marketplace, marketplaceOrderID string, newERPOrderID int64, actor, reason string) (*linking.Link, error)
	Delete(ctx context.Context, m marketplace.Marketplace, marketplaceOrderID, actor, reason string) error
	Get(ctx context.Context, m marketplace.Marketplace, marketplaceOrderID string) (*linking.Link, error)
	Audits(ctx context.Context, m marketplace.Marketplace, marketplaceOrderID string) ([]linking.Audit, error)
}

// LinkHandler handles order link endpoints
type LinkHandler struct {
	BaseHandler
	service LinkService
	loc     *time.Location
}

// NewLinkHandler creates a new LinkHandler
func NewLinkHandler(service LinkService, loc *time.Location) *LinkHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &LinkHandler{service: service, loc: loc}
}

// Resolve links one ERP order when erp_order_id is given, otherwise it runs
// a batch over unlinked and pending orders
func (h *LinkHandler) Resolve(c *gin.Context) {
	var req dto.ResolveLinksRequest
	if !h.bindJSON(c, &req) {
		return
	}

	if req.ERPOrderID > 0 {
		outcome, err := h.service.Resolve(c.Request.Context(), req.ERPOrderID)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		h.Success(c, outcome)
		return
	}

	createdFrom, err := dto.ParseDate(req.CreatedFrom, h.loc)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	report, err := h.service.ResolveBatch(c.Request.Context(), linkapp.BatchRequest{
		CreatedFrom: createdFrom,
		Limit:       req.Limit,
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

// Create links a marketplace order to an ERP order by hand
func (h *LinkHandler) Create(c *gin.Context) {
	var req dto.CreateLinkRequest
	if !h.bindJSON(c, &req) {
		return
	}
	m, err := marketplace.ParseMarketplace(req.Marketplace)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	link, err := h.service.LinkManually(c.Request.Context(), linkapp.ManualLinkRequest{
		Marketplace:        m,
		MarketplaceOrderID: req.MarketplaceOrderID,
		ERPOrderID:         req.ERPOrderID,
		Flags:              req.Flags(),
		Actor:              getActor(c),
		Notes:              req.Notes,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, dto.ToLinkResponse(link))
}

// Get returns the link of a marketplace order
func (h *LinkHandler) Get(c *gin.Context) {
	m, ok := h.marketplaceParam(c)
	if !ok {
		return
	}
	link, err := h.service.Get(c.Request.Context(), m, c.Param("orderId"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToLinkResponse(link))
}

// Reassign points the link of a marketplace order at another ERP order
func (h *LinkHandler) Reassign(c *gin.Context) {
	m, ok := h.marketplaceParam(c)
	if !ok {
		return
	}
	var req dto.ReassignLinkRequest
	if !h.bindJSON(c, &req) {
		return
	}
	link, err := h.service.Reassign(c.Request.Context(), m, c.Param("orderId"), req.ERPOrderID, getActor(c), req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToLinkResponse(link))
}

// Delete removes the link of a marketplace order. The reason comes from
// the query string so the request needs no body.
func (h *LinkHandler) Delete(c *gin.Context) {
	m, ok := h.marketplaceParam(c)
	if !ok {
		return
	}
	reason := c.Query("reason")
	if reason == "" {
		h.ValidationError(c, []dto.ValidationDetail{{Field: "reason", Message: "This field is required"}})
		return
	}
	if err := h.service.Delete(c.Request.Context(), m, c.Param("orderId"), getActor(c), reason); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Audits returns the administrative history of a marketplace order link
func (h *LinkHandler) Audits(c *gin.Context) {
	m, ok := h.marketplaceParam(c)
	if !ok {
		return
	}
	audits, err := h.service.Audits(c.Request.Context(), m, c.Param("orderId"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToAuditResponses(audits))
}
