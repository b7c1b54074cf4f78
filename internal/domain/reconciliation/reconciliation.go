// Package reconciliation compares what the fee engine expected an order to
// settle for with what the marketplace actually paid.
package reconciliation

import (
	"sort"

	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/erp/reconciler/internal/domain/payment"
	"github.com/shopspring/decimal"
)

// Kind classifies a discrepancy
type Kind string

const (
	KindAmountMismatch     Kind = "amount_mismatch"
	KindMissingSettlement  Kind = "missing_settlement"
	KindUnresolvedPayment  Kind = "unresolved_payment"
	KindMissingExpectation Kind = "missing_expectation"
)

// DefaultTolerance absorbs rounding differences between our fees and the marketplace's
var DefaultTolerance = decimal.RequireFromString("0.05")

// Expectation is the net value computed for a linked ERP order
type Expectation struct {
	Marketplace marketplace.Marketplace
	BaseOrderID string
	ERPOrderID  int64
	// ExpectedNet is nil when fees were never computed for the order
	ExpectedNet *decimal.Decimal
}

// Discrepancy is one order whose settlement does not match expectations
type Discrepancy struct {
	Marketplace marketplace.Marketplace `json:"marketplace"`
	BaseOrderID string                  `json:"base_order_id"`
	ERPOrderID  *int64                  `json:"erp_order_id,omitempty"`
	Kind        Kind                    `json:"kind"`
	Expected    *decimal.Decimal        `json:"expected,omitempty"`
	Settled     *decimal.Decimal        `json:"settled,omitempty"`
	Difference  *decimal.Decimal        `json:"difference,omitempty"`
}

type key struct {
	m    marketplace.Marketplace
	base string
}

type settlement struct {
	net        decimal.Decimal
	unresolved bool
	erpOrderID *int64
}

// Compare matches expectations against settled payments. Orders are keyed by
// marketplace and base order id; the result is sorted by that key.
func Compare(expectations []Expectation, payments []*payment.Payment, tolerance decimal.Decimal) []Discrepancy {
	if tolerance.IsNegative() {
		tolerance = decimal.Zero
	}

	expected := make(map[key]Expectation, len(expectations))
	for _, e := range expectations {
		expected[key{e.Marketplace, marketplace.StripSuffix(e.BaseOrderID)}] = e
	}

	settled := make(map[key]*settlement)
	for _, p := range payments {
		k := key{p.Marketplace, p.Ref.BaseID}
		s, ok := settled[k]
		if !ok {
			s = &settlement{net: decimal.Zero}
			settled[k] = s
		}
		s.net = s.net.Add(p.SignedAmount())
		if p.ResolvedERPOrderID == nil {
			s.unresolved = true
		} else if s.erpOrderID == nil {
			id := *p.ResolvedERPOrderID
			s.erpOrderID = &id
		}
	}

	keys := make([]key, 0, len(expected)+len(settled))
	for k := range expected {
		keys = append(keys, k)
	}
	for k := range settled {
		if _, ok := expected[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].m != keys[j].m {
			return keys[i].m < keys[j].m
		}
		return keys[i].base < keys[j].base
	})

	out := make([]Discrepancy, 0)
	for _, k := range keys {
		e, hasExp := expected[k]
		s, hasSettled := settled[k]
		d := Discrepancy{Marketplace: k.m, BaseOrderID: k.base}
		if hasExp {
			id := e.ERPOrderID
			d.ERPOrderID = &id
			d.Expected = e.ExpectedNet
		} else if hasSettled {
			d.ERPOrderID = s.erpOrderID
		}
		if hasSettled {
			net := s.net
			d.Settled = &net
		}

		switch {
		case hasSettled && s.unresolved:
			d.Kind = KindUnresolvedPayment
		case !hasSettled:
			d.Kind = KindMissingSettlement
		case !hasExp || e.ExpectedNet == nil:
			d.Kind = KindMissingExpectation
		default:
			diff := s.net.Sub(*e.ExpectedNet)
			if diff.Abs().LessThanOrEqual(tolerance) {
				continue
			}
			d.Kind = KindAmountMismatch
			d.Difference = &diff
		}
		out = append(out, d)
	}
	return out
}
