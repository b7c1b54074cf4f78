package payment

import (
	"sort"

	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/shopspring/decimal"
)

// Suggested group tags
const (
	TagMultipleEntries = "multiple entries"
	TagHasRefund       = "has refund"
	TagHasAdjustment   = "has adjustment"
	TagZeroBalance     = "zero balance"
)

// DefaultEpsilon is the balance below which a group counts as settled to zero
var DefaultEpsilon = decimal.RequireFromString("0.01")

// Group collects the settlement lines of one marketplace order
type Group struct {
	Marketplace   marketplace.Marketplace `json:"marketplace"`
	BaseOrderID   string                  `json:"base_order_id"`
	Members       []*Payment              `json:"-"`
	MemberRefs    []string                `json:"member_refs"`
	Net           decimal.Decimal         `json:"net"`
	HasRefund     bool                    `json:"has_refund"`
	HasAdjustment bool                    `json:"has_adjustment"`
	ZeroBalance   bool                    `json:"zero_balance"`
	SuggestedTags []string                `json:"suggested_tags"`
}

// Grouper detects orders settled through more than one line
type Grouper struct {
	Classifier *Classifier
	Epsilon    decimal.Decimal
}

// NewGrouper builds a grouper; a non-positive epsilon falls back to the default
func NewGrouper(c *Classifier, epsilon decimal.Decimal) *Grouper {
	if !epsilon.IsPositive() {
		epsilon = DefaultEpsilon
	}
	return &Grouper{Classifier: c, Epsilon: epsilon}
}

type groupKey struct {
	m    marketplace.Marketplace
	base string
}

// Group returns one group per base order id with more than one member,
// ordered by marketplace then base id. Singleton groups are omitted.
func (g *Grouper) Group(payments []*Payment) []Group {
	buckets := make(map[groupKey][]*Payment)
	var keys []groupKey
	for _, p := range payments {
		k := groupKey{m: p.Marketplace, base: groupBase(p)}
		if _, ok := buckets[k]; !ok {
			keys = append(keys, k)
		}
		buckets[k] = append(buckets[k], p)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].m != keys[j].m {
			return keys[i].m < keys[j].m
		}
		return keys[i].base < keys[j].base
	})

	groups := make([]Group, 0)
	for _, k := range keys {
		members := buckets[k]
		if len(members) < 2 {
			continue
		}
		groups = append(groups, g.summarize(k, members))
	}
	return groups
}

// groupBase is the marketplace-normalized order id, so prefixed and bare
// forms of the same order share a group. Ids that do not normalize group on
// the stripped raw id.
func groupBase(p *Payment) string {
	raw := p.RawOrderID()
	if id, err := marketplace.NormalizeOrderID(p.Marketplace, raw); err == nil {
		return id
	}
	return marketplace.StripSuffix(raw)
}

func (g *Grouper) summarize(k groupKey, members []*Payment) Group {
	grp := Group{
		Marketplace: k.m,
		BaseOrderID: k.base,
		Members:     members,
		Net:         decimal.Zero,
	}
	for _, p := range members {
		grp.MemberRefs = append(grp.MemberRefs, p.RawOrderID())
		grp.Net = grp.Net.Add(p.SignedAmount())

		refund, adjustment := p.Ref.Kind.IsRefund(), p.Ref.Kind.IsAdjustment()
		if g.Classifier != nil {
			c := g.Classifier.ClassifyPayment(p)
			refund = refund || c.IsRefund
			adjustment = adjustment || c.IsAdjustment
		}
		grp.HasRefund = grp.HasRefund || refund
		grp.HasAdjustment = grp.HasAdjustment || adjustment
	}
	grp.ZeroBalance = grp.Net.Abs().LessThan(g.Epsilon)

	grp.SuggestedTags = []string{TagMultipleEntries}
	if grp.HasRefund {
		grp.SuggestedTags = append(grp.SuggestedTags, TagHasRefund)
	}
	if grp.HasAdjustment {
		grp.SuggestedTags = append(grp.SuggestedTags, TagHasAdjustment)
	}
	if grp.ZeroBalance {
		grp.SuggestedTags = append(grp.SuggestedTags, TagZeroBalance)
	}
	return grp
}
