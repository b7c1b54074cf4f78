package payment

import (
	"testing"

	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrouper_AdjustmentScenario(t *testing.T) {
	g := NewGrouper(MustDefaultClassifier(), decimal.Zero)

	groups := g.Group([]*Payment{
		newTestPayment(t, marketplace.Shopee, "X", "100", false, ""),
		newTestPayment(t, marketplace.Shopee, "X_AJUSTE", "-20", true, ""),
	})

	require.Len(t, groups, 1)
	grp := groups[0]
	assert.Equal(t, "X", grp.BaseOrderID)
	assert.Equal(t, "80", grp.Net.String())
	assert.True(t, grp.HasAdjustment)
	assert.False(t, grp.HasRefund)
	assert.False(t, grp.ZeroBalance)
	assert.Equal(t, []string{TagMultipleEntries, TagHasAdjustment}, grp.SuggestedTags)
	assert.Equal(t, []string{"X", "X_AJUSTE"}, grp.MemberRefs)
}

func TestGrouper(t *testing.T) {
	g := NewGrouper(MustDefaultClassifier(), DefaultEpsilon)

	payments := []*Payment{
		newTestPayment(t, marketplace.Shopee, "B1", "50", false, "Venda"),
		newTestPayment(t, marketplace.Shopee, "B1_2", "50", true, "Devolução ao comprador"),
		newTestPayment(t, marketplace.Shopee, "A1", "30", false, "Venda"),
		newTestPayment(t, marketplace.Shopee, "SOLO", "10", false, "Venda"),
		newTestPayment(t, marketplace.Magalu, "A1", "10", false, "Venda"),
		newTestPayment(t, marketplace.Shopee, "A1_REEMBOLSO", "29.995", true, ""),
	}

	groups := g.Group(payments)
	require.Len(t, groups, 2)

	assert.Equal(t, "A1", groups[0].BaseOrderID)
	assert.Equal(t, marketplace.Shopee, groups[0].Marketplace)
	assert.True(t, groups[0].HasRefund)
	assert.True(t, groups[0].ZeroBalance)
	assert.Equal(t, []string{TagMultipleEntries, TagHasRefund, TagZeroBalance}, groups[0].SuggestedTags)

	assert.Equal(t, "B1", groups[1].BaseOrderID)
	assert.True(t, groups[1].Net.IsZero())
	assert.True(t, groups[1].HasRefund)
	assert.Len(t, groups[1].Members, 2)
}

func TestGrouper_NormalizesMarketplaceIDs(t *testing.T) {
	g := NewGrouper(MustDefaultClassifier(), DefaultEpsilon)

	groups := g.Group([]*Payment{
		newTestPayment(t, marketplace.Magalu, "LU-123", "100", false, "Venda"),
		newTestPayment(t, marketplace.Magalu, "123_AJUSTE", "-5", true, ""),
		newTestPayment(t, marketplace.MercadoLivre, "0042", "10", false, "Venda"),
		newTestPayment(t, marketplace.MercadoLivre, "42_2", "3", true, ""),
	})

	require.Len(t, groups, 2)
	byMarket := map[marketplace.Marketplace]Group{}
	for _, grp := range groups {
		byMarket[grp.Marketplace] = grp
	}
	assert.Equal(t, "123", byMarket[marketplace.Magalu].BaseOrderID)
	assert.Equal(t, "95", byMarket[marketplace.Magalu].Net.String())
	assert.Equal(t, []string{"LU-123", "123_AJUSTE"}, byMarket[marketplace.Magalu].MemberRefs)
	assert.Equal(t, "42", byMarket[marketplace.MercadoLivre].BaseOrderID)
}

func TestGrouper_SingletonsAreNotReported(t *testing.T) {
	g := NewGrouper(nil, DefaultEpsilon)
	groups := g.Group([]*Payment{
		newTestPayment(t, marketplace.Shopee, "ONE", "1", false, ""),
		newTestPayment(t, marketplace.Shopee, "TWO_FRETE", "1", true, ""),
	})
	assert.Empty(t, groups)
}

func TestGrouper_BaseIDMatchesLinkingStrip(t *testing.T) {
	for _, raw := range []string{"X_AJUSTE", "X_REEMBOLSO_3", "X_2", "X_retirada1"} {
		p := newTestPayment(t, marketplace.Shopee, raw, "1", false, "")
		assert.Equal(t, marketplace.StripSuffix(raw), p.Ref.BaseID, raw)
	}
}
