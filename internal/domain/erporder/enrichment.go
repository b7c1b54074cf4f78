package erporder

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Well-known enrichment keys
const (
	KeyExpectedNetValue = "expected_net_value"
	KeyFeeBreakdown     = "fee_breakdown"
	KeyFeeComputedAt    = "fee_computed_at"
	KeyLinkRef          = "link_ref"
	KeyTags             = "tags"
)

// Enrichment holds values written by processes other than the raw ERP sync
type Enrichment map[string]any

// Clone returns a shallow copy that is safe to mutate at the top level
func (e Enrichment) Clone() Enrichment {
	out := make(Enrichment, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// ExpectedNetValue reads the fee-adjusted net value
func (e Enrichment) ExpectedNetValue() (decimal.Decimal, bool) {
	return decimalOf(e[KeyExpectedNetValue])
}

// SellerVoucher reads the voucher the stored fee breakdown was computed with.
// Orders priced without one report zero.
func (e Enrichment) SellerVoucher() decimal.Decimal {
	breakdown, ok := e[KeyFeeBreakdown].(map[string]any)
	if !ok {
		return decimal.Zero
	}
	v, ok := decimalOf(breakdown["seller_voucher"])
	if !ok || v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// decimalOf accepts the shapes a decimal takes in memory and after a JSON
// column round trip
func decimalOf(raw any) (decimal.Decimal, bool) {
	switch v := raw.(type) {
	case decimal.Decimal:
		return v, true
	case string:
		d, err := decimal.NewFromString(v)
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(v), true
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		return d, err == nil
	}
	return decimal.Zero, false
}

// SetExpectedNetValue stores the net value as a string to keep precision in JSON
func (e Enrichment) SetExpectedNetValue(v decimal.Decimal) {
	e[KeyExpectedNetValue] = v.StringFixed(2)
}

// SetFeeBreakdown stores a JSON-compatible snapshot of a fee breakdown
func (e Enrichment) SetFeeBreakdown(snapshot map[string]any, at time.Time) {
	e[KeyFeeBreakdown] = snapshot
	e[KeyFeeComputedAt] = at.UTC().Format(time.RFC3339)
}

// LinkRef returns the "marketplace:order" reference of the resolved link
func (e Enrichment) LinkRef() (string, bool) {
	v, ok := e[KeyLinkRef].(string)
	return v, ok && v != ""
}

// SetLinkRef records the resolved marketplace order reference
func (e Enrichment) SetLinkRef(ref string) {
	e[KeyLinkRef] = ref
}

// Tags returns the enrichment tags in sorted order
func (e Enrichment) Tags() []string {
	var tags []string
	switch v := e[KeyTags].(type) {
	case []string:
		tags = append(tags, v...)
	case []any:
		for _, t := range v {
			if s, ok := t.(string); ok {
				tags = append(tags, s)
			}
		}
	}
	sort.Strings(tags)
	return tags
}

// AddTags merges tags without duplicates
func (e Enrichment) AddTags(tags ...string) {
	seen := make(map[string]bool)
	merged := make([]string, 0)
	for _, t := range append(e.Tags(), tags...) {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		merged = append(merged, t)
	}
	sort.Strings(merged)
	e[KeyTags] = merged
}
