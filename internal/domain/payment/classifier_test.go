package payment

import (
	"errors"
	"testing"

	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifier_Builtin(t *testing.T) {
	c := MustDefaultClassifier()

	tests := []struct {
		name       string
		text       string
		tags       []string
		refund     bool
		adjustment bool
	}{
		{
			name:   "partial refund for a return",
			text:   "Reembolso parcial referente a devolução",
			tags:   []string{"reembolso", "devolucao"},
			refund: true,
		},
		{
			name:       "adjustment",
			text:       "AJUSTE de compensação",
			tags:       []string{"ajuste", "compensacao"},
			adjustment: true,
		},
		{
			name:   "fees sorted after higher priorities",
			text:   "Estorno de tarifa de frete",
			tags:   []string{"estorno", "reembolso", "tarifa", "frete"},
			refund: true,
		},
		{
			name: "marketing",
			text: "Recarga de anúncios",
			tags: []string{"anuncio", "marketing"},
		},
		{
			name: "nothing matches",
			text: "Venda do pedido",
			tags: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(Subject{Marketplace: marketplace.Shopee, Text: tt.text})
			assert.Equal(t, tt.tags, got.Tags)
			assert.Equal(t, tt.refund, got.IsRefund)
			assert.Equal(t, tt.adjustment, got.IsAdjustment)
		})
	}
}

type stubGuard struct {
	allow bool
	err   error
}

func (g stubGuard) Allow(Subject) (bool, error) { return g.allow, g.err }

func TestClassifier_CustomRules(t *testing.T) {
	custom := []Rule{
		{Name: "ml-envios", Kind: RuleKindKeyword, Pattern: "Mercado Envios", Tags: []string{"frete", "envios"}, Priority: 95, Marketplace: marketplace.MercadoLivre},
		{Name: "big-credit", Pattern: "venda", Tags: []string{"venda-alta"}, Priority: 10, Guard: stubGuard{allow: true}},
		{Name: "blocked", Pattern: "venda", Tags: []string{"never"}, Priority: 10, Guard: stubGuard{allow: false}},
		{Name: "broken", Pattern: "venda", Tags: []string{"never"}, Priority: 10, Guard: stubGuard{err: errors.New("boom")}},
	}
	c, err := NewClassifier(custom, BuiltinRules())
	require.NoError(t, err)

	got := c.Classify(Subject{Marketplace: marketplace.MercadoLivre, Text: "Venda - tarifa Mercado Envios", Amount: decimal.NewFromInt(500)})
	assert.Equal(t, []string{"frete", "envios", "tarifa", "venda-alta"}, got.Tags)
	assert.Equal(t, []string{"ml-envios", "tarifa", "big-credit"}, got.MatchedRules)
	assert.Equal(t, []string{"broken"}, got.GuardErrors)

	got = c.Classify(Subject{Marketplace: marketplace.Shopee, Text: "Mercado Envios"})
	assert.NotContains(t, got.Tags, "envios")
}

func TestClassifier_PriorityOrderWinsOverDefinitionOrder(t *testing.T) {
	c, err := NewClassifier([]Rule{
		{Name: "low", Pattern: "x", Tags: []string{"b", "a"}, Priority: 1},
		{Name: "high", Pattern: "x", Tags: []string{"a"}, Priority: 50},
	}, nil)
	require.NoError(t, err)

	got := c.Classify(Subject{Text: "x"})
	assert.Equal(t, []string{"a", "b"}, got.Tags)
	assert.Equal(t, []string{"high", "low"}, got.MatchedRules)
}

func TestRule_Compile(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
	}{
		{"empty pattern", Rule{Name: "a", Tags: []string{"x"}}},
		{"no tags", Rule{Name: "a", Pattern: "x"}},
		{"bad regex", Rule{Name: "a", Pattern: "(", Tags: []string{"x"}}},
		{"bad kind", Rule{Name: "a", Kind: "glob", Pattern: "x", Tags: []string{"x"}}},
		{"bad marketplace", Rule{Name: "a", Pattern: "x", Tags: []string{"x"}, Marketplace: "ebay"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.rule.Compile()
			assert.ErrorIs(t, err, ErrInvalidRule)
		})
	}
}
