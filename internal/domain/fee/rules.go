// Package fee computes the marketplace fees charged on an order and the net
// value the seller should expect to receive.
package fee

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/gowebpki/jcs"
	"github.com/shopspring/decimal"
)

// Domain errors
var (
	ErrNotComputable     = errors.New("fee: order value is not positive after freight and voucher")
	ErrRuleSetNotFound   = errors.New("fee: no rule set configured for marketplace")
	ErrInvalidRuleSet    = errors.New("fee: invalid rule set")
	ErrRuleSetMismatch   = errors.New("fee: rule set belongs to another marketplace")
	ErrInvalidFeeInput   = errors.New("fee: invalid input")
	ErrOverlappingWindow = errors.New("fee: campaign windows overlap")
)

// Campaign is a time-boxed extra commission
type Campaign struct {
	Name  string          `json:"name"`
	Rate  decimal.Decimal `json:"rate"`
	Start time.Time       `json:"start"`
	End   time.Time       `json:"end"`
	// OptIn campaigns only charge orders flagged as campaign orders;
	// the others charge every order placed inside the window.
	OptIn bool `json:"opt_in"`
}

// Contains reports whether t falls inside the inclusive window
func (c Campaign) Contains(t time.Time) bool {
	return !t.Before(c.Start) && !t.After(c.End)
}

// Tier is a value band with its own per-unit fixed cost. Min is inclusive,
// Max exclusive; a nil bound is open.
type Tier struct {
	Min  *decimal.Decimal `json:"min,omitempty"`
	Max  *decimal.Decimal `json:"max,omitempty"`
	Cost decimal.Decimal  `json:"cost"`
}

// Matches reports whether the value falls inside the band
func (t Tier) Matches(v decimal.Decimal) bool {
	if t.Min != nil && v.LessThan(*t.Min) {
		return false
	}
	if t.Max != nil && !v.LessThan(*t.Max) {
		return false
	}
	return true
}

// RuleSet is the fee configuration of one marketplace for one effective period.
// Rates are fractions: 0.14 means 14%.
type RuleSet struct {
	Marketplace                marketplace.Marketplace `json:"marketplace"`
	BaseCommissionRate         decimal.Decimal         `json:"base_commission_rate"`
	FreeShippingCommissionRate decimal.Decimal         `json:"free_shipping_commission_rate"`
	ParticipatesInFreeShipping bool                    `json:"participates_in_free_shipping"`
	FixedCostPerUnit           decimal.Decimal         `json:"fixed_cost_per_unit"`
	FixedCostTiers             []Tier                  `json:"fixed_cost_tiers,omitempty"`
	LowValueThreshold          decimal.Decimal         `json:"low_value_threshold"`
	LowValueFixedCostFactor    decimal.Decimal         `json:"low_value_fixed_cost_factor"`
	Campaigns                  []Campaign              `json:"campaigns,omitempty"`
	EffectiveFrom              *time.Time              `json:"effective_from,omitempty"`
	EffectiveTo                *time.Time              `json:"effective_to,omitempty"`
}

var one = decimal.NewFromInt(1)

func validRate(r decimal.Decimal) bool {
	return !r.IsNegative() && r.LessThan(one)
}

// Validate checks rates, costs and campaign windows
func (r RuleSet) Validate() error {
	if !r.Marketplace.IsValid() {
		return fmt.Errorf("%w: %w", ErrInvalidRuleSet, marketplace.ErrUnknownMarketplace)
	}
	if !validRate(r.BaseCommissionRate) || !validRate(r.FreeShippingCommissionRate) {
		return fmt.Errorf("%w: commission rates must be in [0, 1)", ErrInvalidRuleSet)
	}
	if r.FixedCostPerUnit.IsNegative() {
		return fmt.Errorf("%w: fixed cost per unit must not be negative", ErrInvalidRuleSet)
	}
	for _, t := range r.FixedCostTiers {
		if t.Cost.IsNegative() {
			return fmt.Errorf("%w: tier cost must not be negative", ErrInvalidRuleSet)
		}
		if t.Min != nil && t.Max != nil && !t.Min.LessThan(*t.Max) {
			return fmt.Errorf("%w: tier min must be below max", ErrInvalidRuleSet)
		}
	}
	if r.LowValueThreshold.IsNegative() || r.LowValueFixedCostFactor.IsNegative() {
		return fmt.Errorf("%w: low value settings must not be negative", ErrInvalidRuleSet)
	}
	if r.EffectiveFrom != nil && r.EffectiveTo != nil && r.EffectiveTo.Before(*r.EffectiveFrom) {
		return fmt.Errorf("%w: effective period ends before it starts", ErrInvalidRuleSet)
	}

	campaigns := append([]Campaign(nil), r.Campaigns...)
	sort.Slice(campaigns, func(i, j int) bool { return campaigns[i].Start.Before(campaigns[j].Start) })
	for i, c := range campaigns {
		if !validRate(c.Rate) {
			return fmt.Errorf("%w: campaign %q rate must be in [0, 1)", ErrInvalidRuleSet, c.Name)
		}
		if c.End.Before(c.Start) {
			return fmt.Errorf("%w: campaign %q ends before it starts", ErrInvalidRuleSet, c.Name)
		}
		if i > 0 && !campaigns[i-1].End.Before(c.Start) {
			return fmt.Errorf("%w: %q and %q", ErrOverlappingWindow, campaigns[i-1].Name, c.Name)
		}
	}
	return nil
}

// EffectiveAt reports whether the rule set applies on the given date
func (r RuleSet) EffectiveAt(t time.Time) bool {
	if r.EffectiveFrom != nil && t.Before(*r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo != nil && t.After(*r.EffectiveTo) {
		return false
	}
	return true
}

// CommissionRate selects the rate for step one of the calculation
func (r RuleSet) CommissionRate(freeShipping bool) decimal.Decimal {
	if freeShipping && r.ParticipatesInFreeShipping {
		return r.FreeShippingCommissionRate
	}
	return r.BaseCommissionRate
}

// CampaignAt returns the campaign charging an order placed at t, if any
func (r RuleSet) CampaignAt(t time.Time, campaignOrder bool) (Campaign, bool) {
	for _, c := range r.Campaigns {
		if !c.Contains(t) {
			continue
		}
		if c.OptIn && !campaignOrder {
			continue
		}
		return c, true
	}
	return Campaign{}, false
}

// UnitCost returns the per-unit fixed cost for an order value.
// Tiers take precedence over the flat per-unit cost when one matches.
func (r RuleSet) UnitCost(value decimal.Decimal) decimal.Decimal {
	for _, t := range r.FixedCostTiers {
		if t.Matches(value) {
			return t.Cost
		}
	}
	return r.FixedCostPerUnit
}

// Version is a content hash identifying this exact configuration
func (r RuleSet) Version() string {
	raw, err := json.Marshal(r)
	if err != nil {
		return ""
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:8])
}
