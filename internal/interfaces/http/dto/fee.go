package dto

import (
	"strings"
	"time"

	"github.com/erp/reconciler/internal/domain/fee"
	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/shopspring/decimal"
)

// FeePreviewRequest prices a hypothetical order. Amounts are decimal
// strings so no precision is lost in transit.
type FeePreviewRequest struct {
	Marketplace   string `json:"marketplace" binding:"required,marketplace"`
	OrderValue    string `json:"order_value" binding:"required,decimal"`
	UnitCount     int    `json:"unit_count" binding:"omitempty,min=1"`
	IsKit         bool   `json:"is_kit"`
	FreeShipping  bool   `json:"free_shipping"`
	CampaignOrder bool   `json:"campaign_order"`
	// OrderDate is an RFC 3339 instant or a calendar day; empty means now
	OrderDate     string `json:"order_date"`
	SellerVoucher string `json:"seller_voucher" binding:"omitempty,decimal"`
}

// ToInput converts the request. Calendar days are read in loc.
func (r FeePreviewRequest) ToInput(loc *time.Location, now time.Time) (fee.Input, error) {
	m, err := marketplace.ParseMarketplace(r.Marketplace)
	if err != nil {
		return fee.Input{}, err
	}
	value, err := decimal.NewFromString(strings.TrimSpace(r.OrderValue))
	if err != nil {
		return fee.Input{}, err
	}
	voucher := decimal.Zero
	if r.SellerVoucher != "" {
		if voucher, err = decimal.NewFromString(strings.TrimSpace(r.SellerVoucher)); err != nil {
			return fee.Input{}, err
		}
	}
	orderDate := now
	if r.OrderDate != "" {
		if orderDate, err = ParseInstant(r.OrderDate, loc); err != nil {
			return fee.Input{}, err
		}
	}
	return fee.Input{
		Marketplace:   m,
		OrderValue:    value,
		UnitCount:     r.UnitCount,
		IsKit:         r.IsKit,
		FreeShipping:  r.FreeShipping,
		CampaignOrder: r.CampaignOrder,
		OrderDate:     orderDate,
		SellerVoucher: voucher,
	}, nil
}

// ComputeFeeRequest prices a linked ERP order
type ComputeFeeRequest struct {
	SellerVoucher string `json:"seller_voucher" binding:"omitempty,decimal"`
}

// Voucher returns the seller voucher, zero when absent
func (r ComputeFeeRequest) Voucher() decimal.Decimal {
	v, err := decimal.NewFromString(strings.TrimSpace(r.SellerVoucher))
	if err != nil {
		return decimal.Zero
	}
	return v
}

// RecomputeFeesRequest reprices every order created in a period
type RecomputeFeesRequest struct {
	DateRange
}

// UpdateRuleSetRequest replaces the rule sets of one marketplace
type UpdateRuleSetRequest struct {
	RuleSets []fee.RuleSet `json:"rule_sets" binding:"required,min=1"`
}
