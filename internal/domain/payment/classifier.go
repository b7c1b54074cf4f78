package payment

import (
	"fmt"
	"sort"

	"github.com/erp/reconciler/internal/domain/shared"
)

// Classification is the result of classifying one payment
type Classification struct {
	Tags         []string `json:"tags"`
	IsRefund     bool     `json:"is_refund"`
	IsAdjustment bool     `json:"is_adjustment"`
	MatchedRules []string `json:"matched_rules"`
	// GuardErrors lists rules whose guard failed to evaluate; they count as not matched
	GuardErrors []string `json:"guard_errors,omitempty"`
}

// Classifier tags payments with the union of every matching rule
type Classifier struct {
	rules []Rule
}

// NewClassifier compiles the rules and orders them by descending priority.
// Custom rules are placed ahead of built-in ones of equal priority.
func NewClassifier(custom []Rule, builtin []Rule) (*Classifier, error) {
	all := make([]Rule, 0, len(custom)+len(builtin))
	for _, set := range [][]Rule{custom, builtin} {
		for _, r := range set {
			compiled, err := r.Compile()
			if err != nil {
				return nil, err
			}
			all = append(all, compiled)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Priority > all[j].Priority })
	return &Classifier{rules: all}, nil
}

// MustDefaultClassifier returns a classifier with only the built-in rules
func MustDefaultClassifier() *Classifier {
	c, err := NewClassifier(nil, BuiltinRules())
	if err != nil {
		panic(fmt.Sprintf("payment: builtin rules do not compile: %v", err))
	}
	return c
}

// Rules returns the compiled rules in evaluation order
func (c *Classifier) Rules() []Rule {
	return append([]Rule(nil), c.rules...)
}

// Classify evaluates every applicable rule against the subject's folded text
func (c *Classifier) Classify(s Subject) Classification {
	folded := shared.Fold(s.Text)
	out := Classification{Tags: []string{}, MatchedRules: []string{}}
	seen := make(map[string]struct{})

	for _, r := range c.rules {
		if !r.appliesTo(s.Marketplace) || !r.matches(folded) {
			continue
		}
		if r.Guard != nil {
			ok, err := r.Guard.Allow(s)
			if err != nil {
				out.GuardErrors = append(out.GuardErrors, r.Name)
				continue
			}
			if !ok {
				continue
			}
		}
		out.MatchedRules = append(out.MatchedRules, r.Name)
		for _, tag := range r.Tags {
			if _, dup := seen[tag]; dup {
				continue
			}
			seen[tag] = struct{}{}
			out.Tags = append(out.Tags, tag)
			if _, ok := refundTags[tag]; ok {
				out.IsRefund = true
			}
			if _, ok := adjustmentTags[tag]; ok {
				out.IsAdjustment = true
			}
		}
	}
	return out
}

// ClassifyPayment builds the subject from a stored payment
func (c *Classifier) ClassifyPayment(p *Payment) Classification {
	return c.Classify(SubjectOf(p))
}

// SubjectOf describes a payment for classification
func SubjectOf(p *Payment) Subject {
	return Subject{
		Marketplace: p.Marketplace,
		Text:        p.Text(),
		Amount:      p.Amount,
		IsExpense:   p.IsExpense,
		OrderID:     p.RawOrderID(),
		SubEvent:    p.Ref.Kind,
	}
}
