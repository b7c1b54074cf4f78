package fee

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/gowebpki/jcs"
	"github.com/shopspring/decimal"
)

// Snapshot is an immutable view of every configured rule set
type Snapshot struct {
	sets map[marketplace.Marketplace][]RuleSet
}

// NewSnapshot validates the rule sets and indexes them by marketplace
func NewSnapshot(sets ...RuleSet) (*Snapshot, error) {
	s := &Snapshot{sets: make(map[marketplace.Marketplace][]RuleSet)}
	for _, rs := range sets {
		if err := rs.Validate(); err != nil {
			return nil, err
		}
		s.sets[rs.Marketplace] = append(s.sets[rs.Marketplace], rs)
	}
	for m := range s.sets {
		list := s.sets[m]
		// most recent effective period first; open-ended start sorts last
		sort.SliceStable(list, func(i, j int) bool {
			return effectiveFrom(list[i]).After(effectiveFrom(list[j]))
		})
	}
	return s, nil
}

func effectiveFrom(r RuleSet) time.Time {
	if r.EffectiveFrom == nil {
		return time.Time{}
	}
	return *r.EffectiveFrom
}

// RuleSetFor returns the rule set in force for a marketplace on a date
func (s *Snapshot) RuleSetFor(m marketplace.Marketplace, at time.Time) (RuleSet, error) {
	for _, rs := range s.sets[m] {
		if rs.EffectiveAt(at) {
			return rs, nil
		}
	}
	return RuleSet{}, fmt.Errorf("%w: %s on %s", ErrRuleSetNotFound, m, at.Format(time.DateOnly))
}

// All returns the rule sets ordered by marketplace then effective date
func (s *Snapshot) All() []RuleSet {
	out := make([]RuleSet, 0)
	for _, m := range marketplace.All() {
		out = append(out, s.sets[m]...)
	}
	return out
}

// Calculate picks the rule set for the input and runs the calculation
func (s *Snapshot) Calculate(in Input) (Breakdown, error) {
	rs, err := s.RuleSetFor(in.Marketplace, in.OrderDate)
	if err != nil {
		return Breakdown{}, err
	}
	return Calculate(rs, in)
}

// Version hashes the whole snapshot
func (s *Snapshot) Version() string {
	raw, err := json.Marshal(s.All())
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

// RuleStore provides the current rule snapshot. Implementations must pick up
// edits without a restart.
type RuleStore interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
	// Save replaces the rule sets of one marketplace
	Save(ctx context.Context, m marketplace.Marketplace, sets []RuleSet) error
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// DefaultRuleSets are the built-in rates used when no rule has been configured
func DefaultRuleSets() []RuleSet {
	return []RuleSet{
		{
			Marketplace:                marketplace.Shopee,
			BaseCommissionRate:         dec("0.14"),
			FreeShippingCommissionRate: dec("0.20"),
			FixedCostPerUnit:           dec("4.00"),
			Campaigns: []Campaign{{
				Name:  "nov_dec",
				Rate:  dec("0.035"),
				// 2024-11-01 00:00 to 2024-12-31 23:59:59, Brasília time
				Start: time.Date(2024, 11, 1, 3, 0, 0, 0, time.UTC),
				End:   time.Date(2025, 1, 1, 2, 59, 59, 0, time.UTC),
				OptIn: true,
			}},
		},
		{
			Marketplace:                marketplace.MercadoLivre,
			BaseCommissionRate:         dec("0.165"),
			FreeShippingCommissionRate: dec("0.165"),
			FixedCostPerUnit:           dec("5.00"),
			FixedCostTiers: []Tier{
				{Max: decPtr("79"), Cost: dec("5.00")},
				{Min: decPtr("79"), Max: decPtr("140"), Cost: dec("9.00")},
				{Min: decPtr("140"), Cost: dec("13.00")},
			},
			LowValueThreshold:       dec("12.50"),
			LowValueFixedCostFactor: dec("0.5"),
		},
		{
			Marketplace:                marketplace.Magalu,
			BaseCommissionRate:         dec("0.145"),
			FreeShippingCommissionRate: dec("0.145"),
			FixedCostPerUnit:           dec("4.00"),
		},
	}
}
