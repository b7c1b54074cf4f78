package payment

import (
	"errors"
	"testing"
	"time"

	"github.com/erp/reconciler/internal/domain/linking"
	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPayment(t *testing.T, m marketplace.Marketplace, orderID, amount string, expense bool, desc string) *Payment {
	t.Helper()
	p, err := NewPayment(m, Line{
		OrderID:     orderID,
		Amount:      decimal.RequireFromString(amount),
		IsExpense:   expense,
		Description: desc,
		OccurredAt:  time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return p
}

func TestNewPayment(t *testing.T) {
	p := newTestPayment(t, marketplace.Shopee, "240601ABC_AJUSTE_2", "-5", true, "Ajuste")
	assert.Equal(t, "240601ABC", p.Ref.BaseID)
	assert.Equal(t, marketplace.SubEventAdjustment, p.Ref.Kind)
	assert.Equal(t, "240601ABC_AJUSTE_2", p.RawOrderID())
	assert.NotEmpty(t, p.ExternalRef)
	assert.False(t, p.IsResolved())

	_, err := NewPayment(marketplace.Shopee, Line{OrderID: "  "})
	assert.ErrorIs(t, err, ErrInvalidPayment)

	_, err = NewPayment("ebay", Line{OrderID: "1"})
	assert.ErrorIs(t, err, ErrInvalidPayment)
}

func TestPayment_SignedAmount(t *testing.T) {
	tests := []struct {
		amount  string
		expense bool
		want    string
	}{
		{"100", false, "100"},
		{"-20", true, "-20"},
		{"20", true, "-20"},
		{"-7.5", false, "-7.5"},
	}
	for _, tt := range tests {
		p := &Payment{Amount: decimal.RequireFromString(tt.amount), IsExpense: tt.expense}
		assert.Equal(t, tt.want, p.SignedAmount().String())
	}
}

// The resolution must carry the ERP order id, never the link row id.
func TestPayment_ResolveStoresERPOrderID(t *testing.T) {
	link, err := linking.NewLink(marketplace.MercadoLivre, "2000001", 987654, linking.Flags{}, linking.ProvenanceAutoLinker)
	require.NoError(t, err)

	p := newTestPayment(t, marketplace.MercadoLivre, "2000001", "80", false, "Venda")
	require.NoError(t, p.Resolve(link))

	require.NotNil(t, p.ResolvedERPOrderID)
	assert.Equal(t, int64(987654), *p.ResolvedERPOrderID)
	assert.NotEqual(t, link.ID.String(), "987654")
	assert.NoError(t, p.CheckResolution(link))

	link.ERPOrderID = 42
	assert.Equal(t, int64(987654), *p.ResolvedERPOrderID, "resolution must be a copy")
	assert.ErrorIs(t, p.CheckResolution(link), ErrResolutionMismatch)
}

func TestPayment_ResolveRejectsForeignLink(t *testing.T) {
	link, err := linking.NewLink(marketplace.Shopee, "X", 1, linking.Flags{}, "")
	require.NoError(t, err)

	p := newTestPayment(t, marketplace.Magalu, "X", "1", false, "")
	assert.ErrorIs(t, p.Resolve(link), ErrLinkMismatch)
	assert.Nil(t, p.ResolvedERPOrderID)
	assert.True(t, errors.Is(p.Resolve(nil), linking.ErrLinkNotFound))
}

func TestPayment_MergeTags(t *testing.T) {
	p := &Payment{Tags: []string{"taxa"}}
	assert.True(t, p.MergeTags("frete", "taxa", " "))
	assert.Equal(t, []string{"frete", "taxa"}, p.Tags)
	assert.False(t, p.MergeTags("frete"))
}
