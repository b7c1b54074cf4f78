package fee

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/shopspring/decimal"
)

// Input describes the order being priced
type Input struct {
	Marketplace marketplace.Marketplace `json:"marketplace"`
	// OrderValue is gross value minus freight
	OrderValue    decimal.Decimal `json:"order_value"`
	UnitCount     int             `json:"unit_count"`
	IsKit         bool            `json:"is_kit"`
	FreeShipping  bool            `json:"free_shipping"`
	CampaignOrder bool            `json:"campaign_order"`
	OrderDate     time.Time       `json:"order_date"`
	SellerVoucher decimal.Decimal `json:"seller_voucher"`
}

// ChargeableUnits counts a kit as a single unit
func (in Input) ChargeableUnits() int {
	if in.IsKit || in.UnitCount < 1 {
		return 1
	}
	return in.UnitCount
}

// Breakdown is the itemized result of a calculation
type Breakdown struct {
	Marketplace      marketplace.Marketplace `json:"marketplace"`
	OrderValue       decimal.Decimal         `json:"order_value"`
	SellerVoucher    decimal.Decimal         `json:"seller_voucher"`
	FeeBase          decimal.Decimal         `json:"fee_base"`
	CommissionRate   decimal.Decimal         `json:"commission_rate"`
	CommissionFee    decimal.Decimal         `json:"commission_fee"`
	Campaign         string                  `json:"campaign,omitempty"`
	CampaignRate     decimal.Decimal         `json:"campaign_rate"`
	CampaignFee      decimal.Decimal         `json:"campaign_fee"`
	ChargeableUnits  int                     `json:"chargeable_units"`
	FixedCostPerUnit decimal.Decimal         `json:"fixed_cost_per_unit"`
	FixedCost        decimal.Decimal         `json:"fixed_cost"`
	TotalFees        decimal.Decimal         `json:"total_fees"`
	NetValue         decimal.Decimal         `json:"net_value"`
	RuleVersion      string                  `json:"rule_version"`
}

// ToMap renders the breakdown for storage in an order's enrichment
func (b Breakdown) ToMap() map[string]any {
	raw, err := json.Marshal(b)
	if err != nil {
		return nil
	}
	out := make(map[string]any)
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Calculate prices an order against one rule set. It has no side effects and
// identical inputs always produce identical breakdowns.
func Calculate(rules RuleSet, in Input) (Breakdown, error) {
	if rules.Marketplace != in.Marketplace {
		return Breakdown{}, fmt.Errorf("%w: %s rules for %s order", ErrRuleSetMismatch, rules.Marketplace, in.Marketplace)
	}
	if in.SellerVoucher.IsNegative() {
		return Breakdown{}, fmt.Errorf("%w: seller voucher must not be negative", ErrInvalidFeeInput)
	}
	if !in.OrderValue.IsPositive() {
		return Breakdown{}, fmt.Errorf("%w: order value %s", ErrNotComputable, in.OrderValue.StringFixed(2))
	}
	base := in.OrderValue.Sub(in.SellerVoucher)
	if !base.IsPositive() {
		return Breakdown{}, fmt.Errorf("%w: value after voucher %s", ErrNotComputable, base.StringFixed(2))
	}

	b := Breakdown{
		Marketplace:   in.Marketplace,
		OrderValue:    round(in.OrderValue),
		SellerVoucher: round(in.SellerVoucher),
		FeeBase:       round(base),
		RuleVersion:   rules.Version(),
	}

	b.CommissionRate = rules.CommissionRate(in.FreeShipping)

	b.CampaignRate = decimal.Zero
	if c, ok := rules.CampaignAt(in.OrderDate, in.CampaignOrder); ok {
		b.Campaign = c.Name
		b.CampaignRate = c.Rate
	}

	b.CommissionFee = round(base.Mul(b.CommissionRate))
	b.CampaignFee = round(base.Mul(b.CampaignRate))

	b.ChargeableUnits = in.ChargeableUnits()
	b.FixedCostPerUnit = rules.UnitCost(base)
	fixed := b.FixedCostPerUnit.Mul(decimal.NewFromInt(int64(b.ChargeableUnits)))
	if rules.LowValueThreshold.IsPositive() && base.LessThan(rules.LowValueThreshold) {
		fixed = fixed.Mul(rules.LowValueFixedCostFactor)
	}
	b.FixedCost = round(fixed)

	b.TotalFees = b.CommissionFee.Add(b.CampaignFee).Add(b.FixedCost)
	b.NetValue = round(base).Sub(b.TotalFees)
	return b, nil
}
