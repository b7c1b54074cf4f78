// Package linking resolves ERP orders to the marketplace orders that
// produced them and handles administrative link corrections.
package linking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/erp/reconciler/internal/domain/erporder"
	"github.com/erp/reconciler/internal/domain/linking"
	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/erp/reconciler/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config tunes batch resolution
type Config struct {
	// Concurrency bounds parallel resolutions inside one batch
	Concurrency int
	BatchLimit  int
	// RetryAfter is the minimum wait before a pending order is retried
	RetryAfter time.Duration
	// Lookback limits batches to orders created in this period
	Lookback time.Duration
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		Concurrency: 4,
		BatchLimit:  200,
		RetryAfter:  time.Hour,
		Lookback:    60 * 24 * time.Hour,
	}
}

// ServiceConfig holds the collaborators of the linking service
type ServiceConfig struct {
	Orders  erporder.Repository
	Links   linking.Repository
	Lookups marketplace.LookupRegistry
	Config  Config
	Logger  *zap.Logger
	Metrics *telemetry.ReconMetrics
	Now     func() time.Time
}

// Service creates and administers order links
type Service struct {
	orders  erporder.Repository
	links   linking.Repository
	lookups marketplace.LookupRegistry
	cfg     Config
	logger  *zap.Logger
	metrics *telemetry.ReconMetrics
	now     func() time.Time
}

// NewService creates a linking service
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	c := cfg.Config
	d := DefaultConfig()
	if c == (Config{}) {
		c = d
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = d.BatchLimit
	}
	if c.RetryAfter < 0 {
		c.RetryAfter = 0
	}
	if c.Lookback <= 0 {
		c.Lookback = d.Lookback
	}
	return &Service{
		orders:  cfg.Orders,
		links:   cfg.Links,
		lookups: cfg.Lookups,
		cfg:     c,
		logger:  logger,
		metrics: cfg.Metrics,
		now:     now,
	}
}

// Resolve attempts to link one ERP order. Matching problems come back as a
// pending outcome; only storage failures are returned as errors.
func (s *Service) Resolve(ctx context.Context, erpOrderID int64) (linking.Outcome, error) {
	order, err := s.orders.FindByERPID(ctx, erpOrderID)
	if err != nil {
		return linking.Outcome{}, err
	}
	return s.resolve(ctx, order, linking.ProvenanceAutoLinker)
}

func (s *Service) resolve(ctx context.Context, order *erporder.Order, by linking.Provenance) (linking.Outcome, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "linking", "resolve",
		telemetry.WithAttribute("erp_order_id", order.ERPID))
	defer span.End()

	outcome, link, err := s.match(ctx, order, by)
	if err != nil {
		telemetry.RecordError(span, err)
		return linking.Outcome{}, err
	}

	status := order.LinkStatus
	if outcome.State == erporder.LinkStateLinked {
		status.MarkLinked(s.now())
		if link != nil {
			enrichment := order.Enrichment.Clone()
			if ref, _ := enrichment.LinkRef(); ref != link.Ref() {
				enrichment.SetLinkRef(link.Ref())
				if err := s.orders.UpdateEnrichment(ctx, order.ERPID, enrichment); err != nil {
					return linking.Outcome{}, fmt.Errorf("linking: store link ref: %w", err)
				}
			}
		}
	} else {
		status.MarkPending(string(outcome.Reason), s.now())
	}
	if err := s.orders.UpdateLinkStatus(ctx, order.ERPID, status); err != nil {
		return linking.Outcome{}, fmt.Errorf("linking: store link status: %w", err)
	}

	s.metrics.RecordLinkOutcome(ctx, string(outcome.Marketplace), string(outcome.State), string(outcome.Reason))
	telemetry.SetAttributes(span, "state", string(outcome.State), "reason", string(outcome.Reason))
	return outcome, nil
}

// match runs detection, normalization, lookup and link creation
func (s *Service) match(ctx context.Context, order *erporder.Order, by linking.Provenance) (linking.Outcome, *linking.Link, error) {
	existing, err := s.links.FindByERPOrder(ctx, order.ERPID)
	if err != nil {
		return linking.Outcome{}, nil, fmt.Errorf("linking: find links for ERP order: %w", err)
	}
	if len(existing) > 0 {
		l := existing[0]
		return linking.Linked(order.ERPID, &l, true), &l, nil
	}

	m, ok := marketplace.DetectFromChannel(order.Native.Channel)
	if !ok {
		return linking.Pending(order.ERPID, linking.ReasonUnknownChannel, order.Native.Channel), nil, nil
	}
	rawID := strings.TrimSpace(order.Native.EcommerceOrderID)
	if rawID == "" {
		out := linking.Pending(order.ERPID, linking.ReasonMissingExternalID, "")
		out.Marketplace = m
		return out, nil, nil
	}
	orderID, err := marketplace.NormalizeOrderID(m, rawID)
	if err != nil {
		out := linking.Pending(order.ERPID, linking.ReasonInvalidIdentifier, err.Error())
		out.Marketplace = m
		return out, nil, nil
	}

	pending := func(reason linking.PendingReason, detail string) linking.Outcome {
		out := linking.Pending(order.ERPID, reason, detail)
		out.Marketplace = m
		out.MarketplaceOrderID = orderID
		return out
	}

	if l, err := s.links.FindByMarketplaceOrder(ctx, m, orderID); err == nil {
		if l.ERPOrderID == order.ERPID {
			return linking.Linked(order.ERPID, l, true), l, nil
		}
		return pending(linking.ReasonLinkedElsewhere, fmt.Sprintf("linked to ERP order %d", l.ERPOrderID)), nil, nil
	} else if !errors.Is(err, linking.ErrLinkNotFound) {
		return linking.Outcome{}, nil, fmt.Errorf("linking: find link: %w", err)
	}

	lookup, err := s.lookups.Lookup(m)
	if err != nil {
		return pending(linking.ReasonLookupUnavailable, err.Error()), nil, nil
	}
	snap, err := lookup.LookupOrder(ctx, orderID)
	switch {
	case errors.Is(err, marketplace.ErrOrderNotFound):
		return pending(linking.ReasonNotFound, ""), nil, nil
	case err != nil:
		s.logger.Warn("Marketplace lookup failed",
			zap.String("marketplace", string(m)),
			zap.String("marketplace_order_id", orderID),
			zap.Int64("erp_order_id", order.ERPID),
			zap.Error(err))
		return pending(linking.ReasonLookupUnavailable, err.Error()), nil, nil
	}

	nativeID := orderID
	if snap.OrderID != "" {
		nativeID = snap.OrderID
	}
	units := snap.UnitCount
	if units <= 0 {
		units = order.Native.UnitCount
	}
	link, err := linking.NewLink(m, nativeID, order.ERPID, linking.Flags{
		UnitCount:     units,
		IsKit:         snap.IsKit,
		FreeShipping:  snap.FreeShipping,
		CampaignOrder: snap.Campaign,
	}, by)
	if err != nil {
		return pending(linking.ReasonInvalidIdentifier, err.Error()), nil, nil
	}

	created, err := s.links.CreateIfAbsent(ctx, link)
	if err != nil {
		return linking.Outcome{}, nil, fmt.Errorf("linking: create link: %w", err)
	}
	if !created {
		// lost a race with a concurrent resolver
		winner, err := s.links.FindByMarketplaceOrder(ctx, m, nativeID)
		if err != nil {
			return linking.Outcome{}, nil, fmt.Errorf("linking: reload link: %w", err)
		}
		if winner.ERPOrderID != order.ERPID {
			return pending(linking.ReasonLinkedElsewhere, fmt.Sprintf("linked to ERP order %d", winner.ERPOrderID)), nil, nil
		}
		return linking.Linked(order.ERPID, winner, true), winner, nil
	}

	s.logger.Info("Order linked",
		zap.Int64("erp_order_id", order.ERPID),
		zap.String("marketplace", string(m)),
		zap.String("marketplace_order_id", nativeID),
		zap.String("linked_by", string(by)))
	return linking.Linked(order.ERPID, link, false), link, nil
}

// BatchRequest selects the orders a batch looks at
type BatchRequest struct {
	CreatedFrom time.Time
	Limit       int
}

// BatchReport summarizes a batch
type BatchReport struct {
	Considered int               `json:"considered"`
	Linked     int               `json:"linked"`
	Pending    int               `json:"pending"`
	Errored    int               `json:"errored"`
	Reasons    map[string]int    `json:"reasons"`
	Outcomes   []linking.Outcome `json:"outcomes"`
	Errors     map[int64]string  `json:"errors,omitempty"`
}

// ResolveBatch retries every unlinked or pending order whose last attempt is
// old enough. Orders are resolved in parallel; each one is independent.
func (s *Service) ResolveBatch(ctx context.Context, req BatchRequest) (*BatchReport, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "linking", "resolve_batch")
	defer span.End()

	now := s.now()
	from := req.CreatedFrom
	if from.IsZero() {
		from = now.Add(-s.cfg.Lookback)
	}
	limit := req.Limit
	if limit <= 0 || limit > s.cfg.BatchLimit {
		limit = s.cfg.BatchLimit
	}
	attemptedUntil := now.Add(-s.cfg.RetryAfter)

	orders, err := s.orders.FindUnlinked(ctx, erporder.UnlinkedFilter{
		CreatedFrom:    from,
		States:         []erporder.LinkState{erporder.LinkStateUnlinked, erporder.LinkStatePending},
		Limit:          limit,
		AttemptedUntil: &attemptedUntil,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("linking: find unlinked orders: %w", err)
	}

	report := &BatchReport{
		Considered: len(orders),
		Reasons:    make(map[string]int),
		Outcomes:   make([]linking.Outcome, len(orders)),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i := range orders {
		g.Go(func() error {
			out, err := s.resolve(gctx, &orders[i], linking.ProvenanceBatchSync)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if report.Errors == nil {
					report.Errors = make(map[int64]string)
				}
				report.Errors[orders[i].ERPID] = err.Error()
				report.Errored++
				out = linking.Outcome{ERPOrderID: orders[i].ERPID, Detail: err.Error()}
			}
			report.Outcomes[i] = out
			return nil
		})
	}
	_ = g.Wait()

	for _, out := range report.Outcomes {
		switch out.State {
		case erporder.LinkStateLinked:
			report.Linked++
		case erporder.LinkStatePending:
			report.Pending++
			report.Reasons[string(out.Reason)]++
		}
	}

	s.logger.Info("Link batch finished",
		zap.Int("considered", report.Considered),
		zap.Int("linked", report.Linked),
		zap.Int("pending", report.Pending),
		zap.Int("errored", report.Errored))
	return report, ctx.Err()
}

// ManualLinkRequest creates a link chosen by an operator
type ManualLinkRequest struct {
	Marketplace        marketplace.Marketplace
	MarketplaceOrderID string
	ERPOrderID         int64
	Flags              linking.Flags
	Actor              string
	Notes              string
}

// LinkManually creates a link without consulting the marketplace
func (s *Service) LinkManually(ctx context.Context, req ManualLinkRequest) (*linking.Link, error) {
	if strings.TrimSpace(req.Actor) == "" {
		return nil, linking.ErrActorRequired
	}
	orderID, err := marketplace.NormalizeOrderID(req.Marketplace, req.MarketplaceOrderID)
	if err != nil {
		return nil, err
	}
	order, err := s.orders.FindByERPID(ctx, req.ERPOrderID)
	if err != nil {
		return nil, err
	}
	link, err := linking.NewLink(req.Marketplace, orderID, order.ERPID, req.Flags, linking.ProvenanceManual)
	if err != nil {
		return nil, err
	}
	link.Notes = strings.TrimSpace(req.Notes)

	created, err := s.links.CreateIfAbsent(ctx, link)
	if err != nil {
		return nil, fmt.Errorf("linking: create link: %w", err)
	}
	if !created {
		return nil, linking.ErrLinkExists
	}
	if err := s.markLinked(ctx, order, link); err != nil {
		return nil, err
	}

	s.logger.Info("Order linked manually",
		zap.Int64("erp_order_id", order.ERPID),
		zap.String("marketplace", string(link.Marketplace)),
		zap.String("marketplace_order_id", link.MarketplaceOrderID),
		zap.String("actor", req.Actor))
	return link, nil
}

// Reassign points an existing link at another ERP order
func (s *Service) Reassign(ctx context.Context, m marketplace.Marketplace, marketplaceOrderID string, newERPOrderID int64, actor, reason string) (*linking.Link, error) {
	link, err := s.findLink(ctx, m, marketplaceOrderID)
	if err != nil {
		return nil, err
	}
	target, err := s.orders.FindByERPID(ctx, newERPOrderID)
	if err != nil {
		return nil, err
	}
	oldERPOrderID := link.ERPOrderID

	audit, err := link.Reassign(target.ERPID, actor, reason)
	if err != nil {
		return nil, err
	}
	if err := s.links.Reassign(ctx, link, audit); err != nil {
		return nil, fmt.Errorf("linking: reassign link: %w", err)
	}

	if err := s.markUnlinked(ctx, oldERPOrderID); err != nil {
		return nil, err
	}
	if err := s.markLinked(ctx, target, link); err != nil {
		return nil, err
	}

	s.logger.Info("Link reassigned",
		zap.String("link", link.Ref()),
		zap.Int64("old_erp_order_id", oldERPOrderID),
		zap.Int64("new_erp_order_id", target.ERPID),
		zap.String("actor", actor))
	return link, nil
}

// Delete removes a link, leaving the ERP order unlinked
func (s *Service) Delete(ctx context.Context, m marketplace.Marketplace, marketplaceOrderID, actor, reason string) error {
	link, err := s.findLink(ctx, m, marketplaceOrderID)
	if err != nil {
		return err
	}
	audit, err := link.DeletionAudit(actor, reason)
	if err != nil {
		return err
	}
	if err := s.links.Delete(ctx, link, audit); err != nil {
		return fmt.Errorf("linking: delete link: %w", err)
	}
	if err := s.markUnlinked(ctx, link.ERPOrderID); err != nil {
		return err
	}
	s.logger.Info("Link deleted",
		zap.String("link", link.Ref()),
		zap.Int64("erp_order_id", link.ERPOrderID),
		zap.String("actor", actor))
	return nil
}

// Get returns the link of a marketplace order
func (s *Service) Get(ctx context.Context, m marketplace.Marketplace, marketplaceOrderID string) (*linking.Link, error) {
	return s.findLink(ctx, m, marketplaceOrderID)
}

// Audits lists the administrative history of a link
func (s *Service) Audits(ctx context.Context, m marketplace.Marketplace, marketplaceOrderID string) ([]linking.Audit, error) {
	link, err := s.findLink(ctx, m, marketplaceOrderID)
	if err != nil {
		return nil, err
	}
	return s.links.ListAudits(ctx, link.ID)
}

func (s *Service) findLink(ctx context.Context, m marketplace.Marketplace, marketplaceOrderID string) (*linking.Link, error) {
	orderID, err := marketplace.NormalizeOrderID(m, marketplaceOrderID)
	if err != nil {
		return nil, err
	}
	return s.links.FindByMarketplaceOrder(ctx, m, orderID)
}

func (s *Service) markLinked(ctx context.Context, order *erporder.Order, link *linking.Link) error {
	enrichment := order.Enrichment.Clone()
	enrichment.SetLinkRef(link.Ref())
	if err := s.orders.UpdateEnrichment(ctx, order.ERPID, enrichment); err != nil {
		return fmt.Errorf("linking: store link ref: %w", err)
	}
	status := order.LinkStatus
	status.MarkLinked(s.now())
	if err := s.orders.UpdateLinkStatus(ctx, order.ERPID, status); err != nil {
		return fmt.Errorf("linking: store link status: %w", err)
	}
	return nil
}

func (s *Service) markUnlinked(ctx context.Context, erpOrderID int64) error {
	order, err := s.orders.FindByERPID(ctx, erpOrderID)
	if errors.Is(err, erporder.ErrOrderNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	enrichment := order.Enrichment.Clone()
	delete(enrichment, erporder.KeyLinkRef)
	if err := s.orders.UpdateEnrichment(ctx, erpOrderID, enrichment); err != nil {
		return fmt.Errorf("linking: clear link ref: %w", err)
	}
	status := erporder.LinkStatus{State: erporder.LinkStateUnlinked, Reason: "unlinked by operator"}
	if err := s.orders.UpdateLinkStatus(ctx, erpOrderID, status); err != nil {
		return fmt.Errorf("linking: store link status: %w", err)
	}
	return nil
}
