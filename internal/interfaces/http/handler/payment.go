package handler

import (
	"context"
	"time"

	"github.com/erp/reconciler/internal/application/payments"
	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/erp/reconciler/internal/domain/payment"
	"github.com/erp/reconciler/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PaymentService ingests, resolves and reconciles settlement lines
type PaymentService interface {
	Ingest(ctx context.Context, m marketplace.Marketplace, lines []payment.Line) (*payments.IngestReport, error)
	Pull(ctx context.Context, m marketplace.Marketplace, since time.Time) (*payments.IngestReport, error)
	Resolve(ctx context.Context, m marketplace.Marketplace) (*payments.ResolveReport, error)
	Groups(ctx context.Context, m marketplace.Marketplace, filter payment.ListFilter) ([]payment.Group, error)
	Reconcile(ctx context.Context, req payments.ReconcileRequest) (*payments.ReconcileReport, error)
}

// SettlementArchive stores uploaded batches so a later pull sees them
type SettlementArchive interface {
	Publish(ctx context.Context, m marketplace.Marketplace, lines []payment.Line) (string, error)
}

// PaymentHandler handles settlement endpoints
type PaymentHandler struct {
	BaseHandler
	service PaymentService
	archive SettlementArchive
	loc     *time.Location
	logger  *zap.Logger
}

// PaymentHandlerOption configures a PaymentHandler
type PaymentHandlerOption func(*PaymentHandler)

// WithSettlementArchive archives ingested batches that ask for it
func WithSettlementArchive(archive SettlementArchive) PaymentHandlerOption {
	return func(h *PaymentHandler) {
		h.archive = archive
	}
}

// WithPaymentLogger sets the logger
func WithPaymentLogger(logger *zap.Logger) PaymentHandlerOption {
	return func(h *PaymentHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(service PaymentService, loc *time.Location, opts ...PaymentHandlerOption) *PaymentHandler {
	if loc == nil {
		loc = time.UTC
	}
	h := &PaymentHandler{service: service, loc: loc, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Ingest stores uploaded settlement lines. Invalid lines are reported, not
// fatal. The batch is archived once stored, so a failed archive never
// loses lines.
func (h *PaymentHandler) Ingest(c *gin.Context) {
	m, ok := h.marketplaceParam(c)
	if !ok {
		return
	}
	var req dto.IngestPaymentsRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if req.Archive && h.archive == nil {
		h.HandleError(c, payments.ErrFeedNotConfigured)
		return
	}

	lines := req.ToLines()
	report, err := h.service.Ingest(c.Request.Context(), m, lines)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp := dto.IngestPaymentsResponse{Report: report}
	if req.Archive {
		key, err := h.archive.Publish(c.Request.Context(), m, lines)
		if err != nil {
			h.logger.Warn("Failed to archive settlement batch",
				zap.String("marketplace", string(m)),
				zap.Int("lines", len(lines)),
				zap.Error(err))
			_ = c.Error(err)
		}
		resp.ArchiveKey = key
	}
	h.Success(c, resp)
}

// Pull fetches new settlement files for the marketplace and ingests them
func (h *PaymentHandler) Pull(c *gin.Context) {
	m, ok := h.marketplaceParam(c)
	if !ok {
		return
	}
	var req dto.PullPaymentsRequest
	if c.Request.ContentLength != 0 && !h.bindJSON(c, &req) {
		return
	}
	var since time.Time
	if req.Since != "" {
		var err error
		if since, err = dto.ParseInstant(req.Since, h.loc); err != nil {
			h.BadRequest(c, err.Error())
			return
		}
	}
	report, err := h.service.Pull(c.Request.Context(), m, since)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// Resolve attaches unresolved payments to their ERP orders
func (h *PaymentHandler) Resolve(c *gin.Context) {
	m, ok := h.marketplaceParam(c)
	if !ok {
		return
	}
	report, err := h.service.Resolve(c.Request.Context(), m)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// Groups returns settlement lines grouped by base order
func (h *PaymentHandler) Groups(c *gin.Context) {
	m, ok := h.marketplaceParam(c)
	if !ok {
		return
	}
	var q dto.PaymentGroupsQuery
	if !h.bindQuery(c, &q) {
		return
	}
	filter, err := q.ToFilter(h.loc)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	groups, err := h.service.Groups(c.Request.Context(), m, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, groups)
}

// Discrepancies compares expected and settled values over a period
func (h *PaymentHandler) Discrepancies(c *gin.Context) {
	m, ok := h.marketplaceParam(c)
	if !ok {
		return
	}
	var q dto.DiscrepancyQuery
	if !h.bindQuery(c, &q) {
		return
	}
	from, to, err := q.Bounds(h.loc)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	report, err := h.service.Reconcile(c.Request.Context(), payments.ReconcileRequest{
		Marketplace: m,
		From:        from,
		To:          to,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}
