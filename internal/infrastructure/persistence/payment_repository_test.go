package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/erp/reconciler/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPayment(t *testing.T, m marketplace.Marketplace, ref, orderID, amount string, at time.Time) *payment.Payment {
	t.Helper()
	p, err := payment.NewPayment(m, payment.Line{
		ExternalRef:     ref,
		OrderID:         orderID,
		Amount:          decimal.RequireFromString(amount),
		TransactionType: "Repasse",
		Description:     "Venda " + orderID,
		OccurredAt:      at,
	})
	require.NoError(t, err)
	return p
}

func TestGormPaymentRepository_CreateIfAbsent(t *testing.T) {
	db := setupReconTestDB(t)
	repo := NewGormPaymentRepository(db)
	ctx := context.Background()

	p := newTestPayment(t, marketplace.Shopee, "tx-1", "240915ABCD12", "99.90", testDay)
	created, err := repo.CreateIfAbsent(ctx, p)
	require.NoError(t, err)
	assert.True(t, created)

	dup := newTestPayment(t, marketplace.Shopee, "tx-1", "240915ABCD12", "99.90", testDay)
	created, err = repo.CreateIfAbsent(ctx, dup)
	require.NoError(t, err)
	assert.False(t, created)

	_, err = repo.FindByID(ctx, dup.ID)
	assert.ErrorIs(t, err, payment.ErrPaymentNotFound)

	got, err := repo.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "240915ABCD12", got.Ref.BaseID)
	assert.True(t, decimal.RequireFromString("99.90").Equal(got.Amount))
	assert.False(t, got.IsResolved())
	assert.Empty(t, got.Tags)
}

func TestGormPaymentRepository_List(t *testing.T) {
	db := setupReconTestDB(t)
	repo := NewGormPaymentRepository(db)
	ctx := context.Background()

	payments := []*payment.Payment{
		newTestPayment(t, marketplace.MercadoLivre, "a", "2000001", "50.00", testDay.Add(2*time.Hour)),
		newTestPayment(t, marketplace.MercadoLivre, "b", "2000001_REEMBOLSO", "-10.00", testDay.Add(3*time.Hour)),
		newTestPayment(t, marketplace.MercadoLivre, "c", "2000002", "30.00", testDay.Add(time.Hour)),
		newTestPayment(t, marketplace.Shopee, "d", "240915ABCD12", "20.00", testDay),
	}
	for _, p := range payments {
		_, err := repo.CreateIfAbsent(ctx, p)
		require.NoError(t, err)
	}
	erpID := int64(77)
	payments[2].ResolvedERPOrderID = &erpID
	payments[2].Tags = []string{"sale"}
	payments[2].UpdatedAt = testDay.Add(24 * time.Hour)
	require.NoError(t, repo.UpdateResolution(ctx, payments[2]))

	from, to := testDay.Add(90*time.Minute), testDay.Add(4*time.Hour)
	tests := []struct {
		name   string
		filter payment.ListFilter
		want   []string
	}{
		{"all of marketplace in occurrence order", payment.ListFilter{}, []string{"c", "a", "b"}},
		{"by base order includes sub-events", payment.ListFilter{BaseOrderID: "2000001"}, []string{"a", "b"}},
		{"unresolved only", payment.ListFilter{Unresolved: true}, []string{"a", "b"}},
		{"time window", payment.ListFilter{From: &from, To: &to}, []string{"a", "b"}},
		{"limit", payment.ListFilter{Limit: 1}, []string{"c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.List(ctx, marketplace.MercadoLivre, tt.filter)
			require.NoError(t, err)
			refs := make([]string, len(got))
			for i, p := range got {
				refs[i] = p.ExternalRef
			}
			assert.Equal(t, tt.want, refs)
		})
	}
}

func TestGormPaymentRepository_ResolveAttempts(t *testing.T) {
	db := setupReconTestDB(t)
	repo := NewGormPaymentRepository(db)
	ctx := context.Background()

	old := newTestPayment(t, marketplace.Shopee, "old", "240101AAAA11", "5.00", testDay)
	older := newTestPayment(t, marketplace.Shopee, "older", "231201BBBB22", "6.00", testDay.Add(-time.Hour))
	fresh := newTestPayment(t, marketplace.Shopee, "fresh", "240915ABCD12", "7.00", testDay.Add(time.Hour))
	for _, p := range []*payment.Payment{old, older, fresh} {
		_, err := repo.CreateIfAbsent(ctx, p)
		require.NoError(t, err)
	}

	require.NoError(t, repo.MarkResolveAttempted(ctx, nil, testDay))
	require.NoError(t, repo.MarkResolveAttempted(ctx, []uuid.UUID{older.ID}, testDay.Add(2*time.Hour)))
	require.NoError(t, repo.MarkResolveAttempted(ctx, []uuid.UUID{old.ID}, testDay.Add(3*time.Hour)))

	refs := func(filter payment.ListFilter) []string {
		got, err := repo.List(ctx, marketplace.Shopee, filter)
		require.NoError(t, err)
		out := make([]string, len(got))
		for i, p := range got {
			out[i] = p.ExternalRef
		}
		return out
	}

	recent := testDay.Add(150 * time.Minute)
	assert.Equal(t, []string{"fresh", "older"}, refs(payment.ListFilter{Unresolved: true, AttemptedUntil: &recent}))

	later := testDay.Add(4 * time.Hour)
	assert.Equal(t, []string{"fresh", "older", "old"}, refs(payment.ListFilter{Unresolved: true, AttemptedUntil: &later}))
	assert.Equal(t, []string{"fresh"}, refs(payment.ListFilter{Unresolved: true, AttemptedUntil: &later, Limit: 1}))

	got, err := repo.FindByID(ctx, old.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ResolveAttemptedAt)
	assert.True(t, got.ResolveAttemptedAt.Equal(testDay.Add(3*time.Hour)))
}

func TestGormPaymentRepository_UpdateResolution(t *testing.T) {
	db := setupReconTestDB(t)
	repo := NewGormPaymentRepository(db)
	ctx := context.Background()

	missing := newTestPayment(t, marketplace.Shopee, "x", "240915ABCD12", "1.00", testDay)
	missing.ID = uuid.New()
	assert.ErrorIs(t, repo.UpdateResolution(ctx, missing), payment.ErrPaymentNotFound)

	p := newTestPayment(t, marketplace.Shopee, "tx-9", "240915ABCD12", "12.00", testDay)
	_, err := repo.CreateIfAbsent(ctx, p)
	require.NoError(t, err)

	erpID := int64(501)
	p.ResolvedERPOrderID = &erpID
	p.Tags = []string{"commission", "sale"}
	require.NoError(t, repo.UpdateResolution(ctx, p))

	got, err := repo.FindByID(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ResolvedERPOrderID)
	assert.Equal(t, erpID, *got.ResolvedERPOrderID)
	assert.Equal(t, []string{"commission", "sale"}, got.Tags)
}
