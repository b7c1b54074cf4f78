package payment

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/erp/reconciler/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// RuleKind selects how a rule's pattern is matched
type RuleKind string

const (
	RuleKindKeyword RuleKind = "keyword"
	RuleKindRegex   RuleKind = "regex"
)

// IsValid checks if the kind is known
func (k RuleKind) IsValid() bool {
	return k == RuleKindKeyword || k == RuleKindRegex
}

// Subject is what a rule guard sees about the payment being classified
type Subject struct {
	Marketplace marketplace.Marketplace
	Text        string
	Amount      decimal.Decimal
	IsExpense   bool
	OrderID     string
	SubEvent    marketplace.SubEventKind
}

// Guard is an extra condition a rule must satisfy besides its pattern
type Guard interface {
	Allow(s Subject) (bool, error)
}

// Rule maps a text pattern to tags
type Rule struct {
	Name     string
	Kind     RuleKind
	Pattern  string
	Tags     []string
	Priority int
	// Marketplace restricts the rule; empty applies to all
	Marketplace marketplace.Marketplace
	Guard       Guard

	re      *regexp.Regexp
	keyword string
}

// Compile validates the rule and prepares its matcher. Patterns are matched
// against folded text, so keywords are folded too and regexes are
// case-insensitive.
func (r Rule) Compile() (Rule, error) {
	if strings.TrimSpace(r.Pattern) == "" {
		return r, fmt.Errorf("%w: %q has an empty pattern", ErrInvalidRule, r.Name)
	}
	if len(r.Tags) == 0 {
		return r, fmt.Errorf("%w: %q has no tags", ErrInvalidRule, r.Name)
	}
	if r.Marketplace != "" && !r.Marketplace.IsValid() {
		return r, fmt.Errorf("%w: %q: %w", ErrInvalidRule, r.Name, marketplace.ErrUnknownMarketplace)
	}
	if r.Kind == "" {
		r.Kind = RuleKindRegex
	}
	switch r.Kind {
	case RuleKindKeyword:
		r.keyword = shared.Fold(r.Pattern)
	case RuleKindRegex:
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			return r, fmt.Errorf("%w: %q: %w", ErrInvalidRule, r.Name, err)
		}
		r.re = re
	default:
		return r, fmt.Errorf("%w: %q has unknown kind %q", ErrInvalidRule, r.Name, r.Kind)
	}
	if r.Name == "" {
		r.Name = r.Pattern
	}
	return r, nil
}

func (r Rule) appliesTo(m marketplace.Marketplace) bool {
	return r.Marketplace == "" || r.Marketplace == m
}

func (r Rule) matches(folded string) bool {
	if r.re != nil {
		return r.re.MatchString(folded)
	}
	return r.keyword != "" && strings.Contains(folded, r.keyword)
}

// BuiltinRules are the default classification patterns. Patterns are
// written against folded text.
func BuiltinRules() []Rule {
	return []Rule{
		{Name: "reembolso", Pattern: `reembolso`, Tags: []string{"reembolso"}, Priority: 100},
		{Name: "devolucao", Pattern: `devolucao`, Tags: []string{"devolucao", "reembolso"}, Priority: 100},
		{Name: "estorno", Pattern: `estorno`, Tags: []string{"estorno", "reembolso"}, Priority: 100},
		{Name: "chargeback", Pattern: `chargeback`, Tags: []string{"chargeback", "reembolso"}, Priority: 100},

		{Name: "ajuste", Pattern: `ajuste`, Tags: []string{"ajuste"}, Priority: 90},
		{Name: "compensacao", Pattern: `compensacao`, Tags: []string{"compensacao", "ajuste"}, Priority: 90},
		{Name: "correcao", Pattern: `correcao`, Tags: []string{"correcao", "ajuste"}, Priority: 90},

		{Name: "taxa", Pattern: `taxa`, Tags: []string{"taxa"}, Priority: 80},
		{Name: "tarifa", Pattern: `tarifa`, Tags: []string{"tarifa"}, Priority: 80},
		{Name: "comissao", Pattern: `comissao`, Tags: []string{"comissao"}, Priority: 80},
		{Name: "frete", Pattern: `frete`, Tags: []string{"frete"}, Priority: 80},
		{Name: "mdr", Pattern: `\bmdr\b`, Tags: []string{"mdr", "taxa"}, Priority: 80},

		{Name: "anuncio", Pattern: `anuncio`, Tags: []string{"anuncio", "marketing"}, Priority: 70},
		{Name: "publicidade", Pattern: `publicidade`, Tags: []string{"publicidade", "marketing"}, Priority: 70},
		{Name: "promocao", Pattern: `promocao`, Tags: []string{"promocao", "marketing"}, Priority: 70},
		{Name: "cupom", Pattern: `cupom`, Tags: []string{"cupom", "desconto"}, Priority: 70},

		{Name: "retirada", Pattern: `retirada`, Tags: []string{"retirada", "saque"}, Priority: 60},
		{Name: "saque", Pattern: `saque`, Tags: []string{"saque", "retirada"}, Priority: 60},
		{Name: "transferencia", Pattern: `transferencia`, Tags: []string{"transferencia"}, Priority: 60},

		{Name: "desconto", Pattern: `desconto`, Tags: []string{"desconto"}, Priority: 50},
		{Name: "abatimento", Pattern: `abatimento`, Tags: []string{"abatimento", "desconto"}, Priority: 50},
	}
}

var (
	refundTags     = map[string]struct{}{"reembolso": {}, "devolucao": {}, "estorno": {}, "chargeback": {}}
	adjustmentTags = map[string]struct{}{"ajuste": {}, "compensacao": {}, "correcao": {}}
)
