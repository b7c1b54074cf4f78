// Package fees prices linked orders against the marketplace fee rules and
// stores the expected net value on the ERP order.
package fees

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/reconciler/internal/domain/erporder"
	"github.com/erp/reconciler/internal/domain/fee"
	"github.com/erp/reconciler/internal/domain/linking"
	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/erp/reconciler/internal/domain/shared"
	"github.com/erp/reconciler/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrOrderNotLinked is returned when an order has no marketplace link yet
var ErrOrderNotLinked = errors.New("fees: order is not linked to a marketplace order")

// ServiceConfig holds the collaborators of the fee service
type ServiceConfig struct {
	Rules   fee.RuleStore
	Orders  erporder.Repository
	Links   linking.Repository
	Logger  *zap.Logger
	Metrics *telemetry.ReconMetrics
	Now     func() time.Time
}

// Service computes fee breakdowns
type Service struct {
	rules   fee.RuleStore
	orders  erporder.Repository
	links   linking.Repository
	logger  *zap.Logger
	metrics *telemetry.ReconMetrics
	now     func() time.Time
}

// NewService creates a fee service
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		rules:   cfg.Rules,
		orders:  cfg.Orders,
		links:   cfg.Links,
		logger:  logger,
		metrics: cfg.Metrics,
		now:     now,
	}
}

// Preview prices an arbitrary input without storing anything
func (s *Service) Preview(ctx context.Context, in fee.Input) (fee.Breakdown, error) {
	snapshot, err := s.rules.Snapshot(ctx)
	if err != nil {
		return fee.Breakdown{}, fmt.Errorf("fees: load rules: %w", err)
	}
	if in.OrderDate.IsZero() {
		in.OrderDate = s.now()
	}
	return snapshot.Calculate(in)
}

// ComputeRequest selects the order to price
type ComputeRequest struct {
	ERPOrderID int64
	// SellerVoucher is the seller-funded discount the marketplace deducts
	// before percentage fees. The ERP gross value already excludes it.
	SellerVoucher decimal.Decimal
}

// ComputeForOrder prices a linked ERP order and stores the breakdown and the
// expected net value in its enrichment
func (s *Service) ComputeForOrder(ctx context.Context, req ComputeRequest) (fee.Breakdown, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "fees", "compute_for_order",
		telemetry.WithAttribute(telemetry.SpanAttrERPOrderID, req.ERPOrderID))
	defer span.End()

	snapshot, err := s.rules.Snapshot(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return fee.Breakdown{}, fmt.Errorf("fees: load rules: %w", err)
	}
	order, err := s.orders.FindByERPID(ctx, req.ERPOrderID)
	if err != nil {
		return fee.Breakdown{}, err
	}
	b, err := s.compute(ctx, snapshot, order, req.SellerVoucher)
	if err != nil {
		telemetry.RecordError(span, err)
		return fee.Breakdown{}, err
	}
	telemetry.SetAttributes(span, "net_value", b.NetValue.String(), "rule_version", b.RuleVersion)
	return b, nil
}

func (s *Service) compute(ctx context.Context, snapshot *fee.Snapshot, order *erporder.Order, voucher decimal.Decimal) (fee.Breakdown, error) {
	links, err := s.links.FindByERPOrder(ctx, order.ERPID)
	if err != nil {
		return fee.Breakdown{}, fmt.Errorf("fees: find link: %w", err)
	}
	if len(links) == 0 {
		s.metrics.RecordFeeComputation(ctx, "", "not_linked")
		return fee.Breakdown{}, ErrOrderNotLinked
	}
	link := links[0]

	units := link.Flags.UnitCount
	if units <= 0 {
		units = order.Native.UnitCount
	}
	b, err := snapshot.Calculate(fee.Input{
		Marketplace:   link.Marketplace,
		OrderValue:    order.Native.OrderValue(),
		UnitCount:     units,
		IsKit:         link.Flags.IsKit,
		FreeShipping:  link.Flags.FreeShipping,
		CampaignOrder: link.Flags.CampaignOrder,
		OrderDate:     order.Native.CreatedOn,
		SellerVoucher: voucher,
	})
	if err != nil {
		s.metrics.RecordFeeComputation(ctx, string(link.Marketplace), outcomeOf(err))
		return fee.Breakdown{}, err
	}

	enrichment := order.Enrichment.Clone()
	enrichment.SetFeeBreakdown(b.ToMap(), s.now())
	enrichment.SetExpectedNetValue(b.NetValue)
	if err := s.orders.UpdateEnrichment(ctx, order.ERPID, enrichment); err != nil {
		return fee.Breakdown{}, fmt.Errorf("fees: store breakdown: %w", err)
	}
	s.metrics.RecordFeeComputation(ctx, string(link.Marketplace), "computed")

	s.logger.Debug("Fees computed",
		zap.Int64("erp_order_id", order.ERPID),
		zap.String("marketplace", string(link.Marketplace)),
		zap.String("net_value", b.NetValue.StringFixed(2)),
		zap.String("rule_version", b.RuleVersion))
	return b, nil
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, fee.ErrNotComputable):
		return "not_computable"
	case errors.Is(err, fee.ErrRuleSetNotFound):
		return "no_rules"
	default:
		return "invalid"
	}
}

// RecomputeReport summarizes a recompute over a date range
type RecomputeReport struct {
	Considered    int              `json:"considered"`
	Computed      int              `json:"computed"`
	NotLinked     int              `json:"not_linked"`
	NotComputable int              `json:"not_computable"`
	Failed        int              `json:"failed"`
	RuleVersion   string           `json:"rule_version"`
	Errors        map[int64]string `json:"errors,omitempty"`
}

const recomputePageSize = 200

// isConfigurationError reports whether err comes from the rule configuration
// rather than from one order
func isConfigurationError(err error) bool {
	return errors.Is(err, fee.ErrRuleSetNotFound) ||
		errors.Is(err, fee.ErrInvalidRuleSet) ||
		errors.Is(err, fee.ErrRuleSetMismatch)
}

// RecomputeRange prices every order created in [from, to] against the
// current rules, keeping the seller voucher each order was last priced with.
// Orders that cannot be priced are counted; a rule configuration error aborts
// the run without a report.
func (s *Service) RecomputeRange(ctx context.Context, from, to time.Time) (*RecomputeReport, error) {
	if to.Before(from) {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "range end is before range start")
	}
	ctx, span := telemetry.StartServiceSpan(ctx, "fees", "recompute_range")
	defer span.End()

	snapshot, err := s.rules.Snapshot(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("fees: load rules: %w", err)
	}
	report := &RecomputeReport{RuleVersion: snapshot.Version()}

	filter := shared.Filter{Page: 1, PageSize: recomputePageSize, OrderDir: "asc"}
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		orders, total, err := s.orders.FindCreatedBetween(ctx, from, to, filter)
		if err != nil {
			telemetry.RecordError(span, err)
			return report, fmt.Errorf("fees: list orders: %w", err)
		}
		for i := range orders {
			report.Considered++
			_, err := s.compute(ctx, snapshot, &orders[i], orders[i].Enrichment.SellerVoucher())
			switch {
			case isConfigurationError(err):
				telemetry.RecordError(span, err)
				s.logger.Error("Fee recompute aborted by rule configuration",
					zap.Int64("erp_order_id", orders[i].ERPID),
					zap.Int("computed", report.Computed),
					zap.Error(err))
				return nil, fmt.Errorf("fees: recompute order %d: %w", orders[i].ERPID, err)
			case err == nil:
				report.Computed++
			case errors.Is(err, ErrOrderNotLinked):
				report.NotLinked++
			case errors.Is(err, fee.ErrNotComputable):
				report.NotComputable++
			default:
				report.Failed++
				if report.Errors == nil {
					report.Errors = make(map[int64]string)
				}
				report.Errors[orders[i].ERPID] = err.Error()
			}
		}
		if len(orders) == 0 || int64(filter.Offset()+len(orders)) >= total {
			break
		}
		filter.Page++
	}

	s.logger.Info("Fee recompute finished",
		zap.Time("from", from),
		zap.Time("to", to),
		zap.Int("considered", report.Considered),
		zap.Int("computed", report.Computed),
		zap.Int("not_linked", report.NotLinked),
		zap.Int("failed", report.Failed),
		zap.String("rule_version", report.RuleVersion))
	return report, nil
}

// RulesView is the current rule snapshot as served to operators
type RulesView struct {
	Version string        `json:"version"`
	Sets    []fee.RuleSet `json:"rule_sets"`
}

// Rules returns every configured rule set
func (s *Service) Rules(ctx context.Context) (RulesView, error) {
	snapshot, err := s.rules.Snapshot(ctx)
	if err != nil {
		return RulesView{}, fmt.Errorf("fees: load rules: %w", err)
	}
	return RulesView{Version: snapshot.Version(), Sets: snapshot.All()}, nil
}

// UpdateRuleSet replaces the rule sets of one marketplace. The next
// calculation uses them without a restart.
func (s *Service) UpdateRuleSet(ctx context.Context, m marketplace.Marketplace, sets []fee.RuleSet) (RulesView, error) {
	if !m.IsValid() {
		return RulesView{}, marketplace.ErrUnknownMarketplace
	}
	if len(sets) == 0 {
		return RulesView{}, fmt.Errorf("%w: at least one rule set is required", fee.ErrInvalidRuleSet)
	}
	for i := range sets {
		if sets[i].Marketplace == "" {
			sets[i].Marketplace = m
		}
		if sets[i].Marketplace != m {
			return RulesView{}, fmt.Errorf("%w: %s", fee.ErrRuleSetMismatch, sets[i].Marketplace)
		}
	}
	// NewSnapshot runs the same validation the store would apply on load
	if _, err := fee.NewSnapshot(sets...); err != nil {
		return RulesView{}, err
	}
	if err := s.rules.Save(ctx, m, sets); err != nil {
		return RulesView{}, fmt.Errorf("fees: save rules: %w", err)
	}

	view, err := s.Rules(ctx)
	if err != nil {
		return RulesView{}, err
	}
	s.logger.Info("Fee rules updated",
		zap.String("marketplace", string(m)),
		zap.Int("rule_sets", len(sets)),
		zap.String("version", view.Version))
	return view, nil
}
