// Package payments ingests marketplace settlement lines, attaches them to ERP
// orders through their links and reconciles them against expected values.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erp/reconciler/internal/domain/erporder"
	"github.com/erp/reconciler/internal/domain/linking"
	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/erp/reconciler/internal/domain/payment"
	"github.com/erp/reconciler/internal/domain/reconciliation"
	"github.com/erp/reconciler/internal/domain/shared"
	"github.com/erp/reconciler/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrFeedNotConfigured is returned by Pull when no settlement feed is wired
var ErrFeedNotConfigured = errors.New("payments: settlement feed is not configured")

// Config tunes grouping, resolution and reconciliation
type Config struct {
	Epsilon           decimal.Decimal
	Tolerance         decimal.Decimal
	ResolveLimit      int
	// ResolveRetryAfter is how long a line that found no link waits before
	// a resolution pass looks at it again
	ResolveRetryAfter time.Duration
	// PullLookback is used by Pull when no start time is given
	PullLookback      time.Duration
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		Epsilon:           payment.DefaultEpsilon,
		Tolerance:         reconciliation.DefaultTolerance,
		ResolveLimit:      500,
		ResolveRetryAfter: time.Hour,
		PullLookback:      7 * 24 * time.Hour,
	}
}

// ServiceConfig holds the collaborators of the payment service
type ServiceConfig struct {
	Payments   payment.Repository
	Links      linking.Repository
	Orders     erporder.Repository
	Feed       payment.SettlementFeed
	Classifier *payment.Classifier
	Config     Config
	Logger     *zap.Logger
	Metrics    *telemetry.ReconMetrics
	Now        func() time.Time
}

// Service handles settlement payments
type Service struct {
	payments   payment.Repository
	links      linking.Repository
	orders     erporder.Repository
	feed       payment.SettlementFeed
	classifier *payment.Classifier
	grouper    *payment.Grouper
	cfg        Config
	logger     *zap.Logger
	metrics    *telemetry.ReconMetrics
	now        func() time.Time
}

// NewService creates a payment service
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	classifier := cfg.Classifier
	if classifier == nil {
		classifier = payment.MustDefaultClassifier()
	}
	c := cfg.Config
	d := DefaultConfig()
	if !c.Epsilon.IsPositive() {
		c.Epsilon = d.Epsilon
	}
	if c.Tolerance.IsNegative() || c.Tolerance.IsZero() {
		c.Tolerance = d.Tolerance
	}
	if c.ResolveLimit <= 0 {
		c.ResolveLimit = d.ResolveLimit
	}
	if c.ResolveRetryAfter <= 0 {
		c.ResolveRetryAfter = d.ResolveRetryAfter
	}
	if c.PullLookback <= 0 {
		c.PullLookback = d.PullLookback
	}
	return &Service{
		payments:   cfg.Payments,
		links:      cfg.Links,
		orders:     cfg.Orders,
		feed:       cfg.Feed,
		classifier: classifier,
		grouper:    payment.NewGrouper(classifier, c.Epsilon),
		cfg:        c,
		logger:     logger,
		metrics:    cfg.Metrics,
		now:        now,
	}
}

// IngestReport summarizes one ingestion
type IngestReport struct {
	Marketplace marketplace.Marketplace `json:"marketplace"`
	Received    int                     `json:"received"`
	Created     int                     `json:"created"`
	Duplicates  int                     `json:"duplicates"`
	Invalid     int                     `json:"invalid"`
	// Errors maps the line index to its validation error
	Errors map[int]string `json:"errors,omitempty"`
}

// Ingest classifies and stores settlement lines. Lines already stored under
// the same external reference are skipped.
func (s *Service) Ingest(ctx context.Context, m marketplace.Marketplace, lines []payment.Line) (*IngestReport, error) {
	if !m.IsValid() {
		return nil, marketplace.ErrUnknownMarketplace
	}
	ctx, span := telemetry.StartServiceSpan(ctx, "payments", "ingest",
		telemetry.WithAttribute(telemetry.SpanAttrMarketplace, string(m)),
		telemetry.WithAttribute("lines", len(lines)))
	defer span.End()

	report := &IngestReport{Marketplace: m, Received: len(lines)}
	for i, line := range lines {
		p, err := payment.NewPayment(m, line)
		if err != nil {
			report.Invalid++
			if report.Errors == nil {
				report.Errors = make(map[int]string)
			}
			report.Errors[i] = err.Error()
			continue
		}
		p.MergeTags(s.classifier.ClassifyPayment(p).Tags...)

		created, err := s.payments.CreateIfAbsent(ctx, p)
		if err != nil {
			telemetry.RecordError(span, err)
			return report, fmt.Errorf("payments: store line %d: %w", i, err)
		}
		if created {
			report.Created++
		} else {
			report.Duplicates++
		}
	}

	s.metrics.RecordPaymentsIngested(ctx, string(m), report.Created, report.Duplicates)
	s.logger.Info("Settlement lines ingested",
		zap.String("marketplace", string(m)),
		zap.Int("received", report.Received),
		zap.Int("created", report.Created),
		zap.Int("duplicates", report.Duplicates),
		zap.Int("invalid", report.Invalid))
	return report, nil
}

// Pull fetches new lines from the settlement feed and ingests them
func (s *Service) Pull(ctx context.Context, m marketplace.Marketplace, since time.Time) (*IngestReport, error) {
	if s.feed == nil {
		return nil, ErrFeedNotConfigured
	}
	if since.IsZero() {
		since = s.now().Add(-s.cfg.PullLookback)
	}
	lines, err := s.feed.Fetch(ctx, m, since)
	if err != nil {
		return nil, fmt.Errorf("payments: fetch settlement feed: %w", err)
	}
	return s.Ingest(ctx, m, lines)
}

// ResolveReport summarizes one resolution pass
type ResolveReport struct {
	Marketplace marketplace.Marketplace `json:"marketplace"`
	Considered  int                     `json:"considered"`
	Resolved    int                     `json:"resolved"`
	Unmatched   int                     `json:"unmatched"`
	Invalid     int                     `json:"invalid"`
}

// Resolve attaches unresolved payments to the ERP order their marketplace
// order is linked to. Lines that find no link are stamped and skipped by the
// passes of the next ResolveRetryAfter, so a backlog of lines that never
// match cannot hide newer ones.
func (s *Service) Resolve(ctx context.Context, m marketplace.Marketplace) (*ResolveReport, error) {
	if !m.IsValid() {
		return nil, marketplace.ErrUnknownMarketplace
	}
	ctx, span := telemetry.StartServiceSpan(ctx, "payments", "resolve",
		telemetry.WithAttribute(telemetry.SpanAttrMarketplace, string(m)))
	defer span.End()

	now := s.now()
	attemptedUntil := now.Add(-s.cfg.ResolveRetryAfter)
	pending, err := s.payments.List(ctx, m, payment.ListFilter{
		Unresolved:     true,
		AttemptedUntil: &attemptedUntil,
		Limit:          s.cfg.ResolveLimit,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("payments: list unresolved: %w", err)
	}

	report := &ResolveReport{Marketplace: m, Considered: len(pending)}
	links := make(map[string]*linking.Link)
	var missed []uuid.UUID
	for _, p := range pending {
		orderID, err := marketplace.NormalizeOrderID(m, p.Ref.BaseID)
		if err != nil {
			report.Invalid++
			missed = append(missed, p.ID)
			continue
		}
		link, cached := links[orderID]
		if !cached {
			link, err = s.links.FindByMarketplaceOrder(ctx, m, orderID)
			if err != nil && !errors.Is(err, linking.ErrLinkNotFound) {
				telemetry.RecordError(span, err)
				return report, fmt.Errorf("payments: find link: %w", err)
			}
			links[orderID] = link
		}
		if link == nil {
			report.Unmatched++
			missed = append(missed, p.ID)
			continue
		}
		if err := p.Resolve(link); err != nil {
			return report, err
		}
		if err := s.payments.UpdateResolution(ctx, p); err != nil {
			telemetry.RecordError(span, err)
			return report, fmt.Errorf("payments: store resolution: %w", err)
		}
		report.Resolved++
	}
	if len(missed) > 0 {
		if err := s.payments.MarkResolveAttempted(ctx, missed, now); err != nil {
			telemetry.RecordError(span, err)
			return report, fmt.Errorf("payments: mark attempts: %w", err)
		}
	}

	s.logger.Info("Payments resolved",
		zap.String("marketplace", string(m)),
		zap.Int("considered", report.Considered),
		zap.Int("resolved", report.Resolved),
		zap.Int("unmatched", report.Unmatched),
		zap.Int("invalid", report.Invalid))
	return report, nil
}

// Groups lists the multi-entry groups of a marketplace's payments
func (s *Service) Groups(ctx context.Context, m marketplace.Marketplace, filter payment.ListFilter) ([]payment.Group, error) {
	if !m.IsValid() {
		return nil, marketplace.ErrUnknownMarketplace
	}
	list, err := s.payments.List(ctx, m, filter)
	if err != nil {
		return nil, fmt.Errorf("payments: list: %w", err)
	}
	return s.grouper.Group(list), nil
}

// ReconcileRequest selects the period to reconcile
type ReconcileRequest struct {
	Marketplace marketplace.Marketplace
	From        time.Time
	To          time.Time
}

// ReconcileReport lists discrepancies between expected and settled values
type ReconcileReport struct {
	Marketplace   marketplace.Marketplace      `json:"marketplace"`
	From          time.Time                    `json:"from"`
	To            time.Time                    `json:"to"`
	Tolerance     decimal.Decimal              `json:"tolerance"`
	Orders        int                          `json:"orders"`
	Payments      int                          `json:"payments"`
	Counts        map[string]int               `json:"counts"`
	Discrepancies []reconciliation.Discrepancy `json:"discrepancies"`
}

const reconcilePageSize = 500

// Reconcile compares the expected net value of linked orders created in the
// period with the payments settled for them
func (s *Service) Reconcile(ctx context.Context, req ReconcileRequest) (*ReconcileReport, error) {
	m := req.Marketplace
	if !m.IsValid() {
		return nil, marketplace.ErrUnknownMarketplace
	}
	if req.To.Before(req.From) {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "range end is before range start")
	}
	ctx, span := telemetry.StartServiceSpan(ctx, "payments", "reconcile",
		telemetry.WithAttribute(telemetry.SpanAttrMarketplace, string(m)))
	defer span.End()

	from, to := req.From, req.To
	settled, err := s.payments.List(ctx, m, payment.ListFilter{From: &from, To: &to})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("payments: list: %w", err)
	}

	// settlement base ids keep their wire form (Magalu lines carry the LU- prefix)
	baseByERP := make(map[int64]string)
	for _, p := range settled {
		if p.ResolvedERPOrderID != nil {
			if _, ok := baseByERP[*p.ResolvedERPOrderID]; !ok {
				baseByERP[*p.ResolvedERPOrderID] = p.Ref.BaseID
			}
		}
	}

	prefix := string(m) + ":"
	expectations := make(map[int64]reconciliation.Expectation)
	add := func(o *erporder.Order) {
		ref, ok := o.Enrichment.LinkRef()
		if !ok || !strings.HasPrefix(ref, prefix) {
			return
		}
		base, ok := baseByERP[o.ERPID]
		if !ok {
			base = strings.TrimPrefix(ref, prefix)
		}
		e := reconciliation.Expectation{Marketplace: m, BaseOrderID: base, ERPOrderID: o.ERPID}
		if net, ok := o.ExpectedNetValue(); ok {
			e.ExpectedNet = &net
		}
		expectations[o.ERPID] = e
	}

	filter := shared.Filter{Page: 1, PageSize: reconcilePageSize, OrderDir: "asc"}
	for {
		orders, total, err := s.orders.FindCreatedBetween(ctx, from, to, filter)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("payments: list orders: %w", err)
		}
		for i := range orders {
			add(&orders[i])
		}
		if len(orders) == 0 || int64(filter.Offset()+len(orders)) >= total {
			break
		}
		filter.Page++
	}

	// orders settled in the period but created before it
	var missing []int64
	for id := range baseByERP {
		if _, ok := expectations[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		found, err := s.orders.FindByERPIDs(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("payments: load settled orders: %w", err)
		}
		for _, o := range found {
			add(o)
		}
	}

	list := make([]reconciliation.Expectation, 0, len(expectations))
	for _, e := range expectations {
		list = append(list, e)
	}
	discrepancies := reconciliation.Compare(list, settled, s.cfg.Tolerance)

	report := &ReconcileReport{
		Marketplace:   m,
		From:          from,
		To:            to,
		Tolerance:     s.cfg.Tolerance,
		Orders:        len(list),
		Payments:      len(settled),
		Counts:        make(map[string]int),
		Discrepancies: discrepancies,
	}
	for _, d := range discrepancies {
		report.Counts[string(d.Kind)]++
	}
	s.metrics.RecordDiscrepancies(ctx, string(m), report.Counts)

	s.logger.Info("Reconciliation finished",
		zap.String("marketplace", string(m)),
		zap.Int("orders", report.Orders),
		zap.Int("payments", report.Payments),
		zap.Int("discrepancies", len(discrepancies)))
	return report, nil
}
