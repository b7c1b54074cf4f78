package persistence

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/erp/reconciler/internal/domain/erporder"
	"github.com/erp/reconciler/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDay = time.Date(2024, 9, 15, 12, 0, 0, 0, time.UTC)

func newTestOrder(erpID int64, createdOn time.Time) *erporder.Order {
	freight := decimal.RequireFromString("15.00")
	return &erporder.Order{
		ERPID: erpID,
		Native: erporder.NativeFields{
			ERPID:            erpID,
			OrderNumber:      1000 + erpID,
			EcommerceOrderID: "240915ABCD12",
			Channel:          "Shopee",
			CreatedOn:        createdOn,
			GrossValue:       decimal.RequireFromString("115.00"),
			FreightValue:     &freight,
			DiscountValue:    decimal.Zero,
			Status:           erporder.StatusCode(9),
			UnitCount:        2,
		},
		Enrichment:   erporder.Enrichment{"source": "sync"},
		RawPayload:   json.RawMessage(`{"id":1}`),
		ContentHash:  "hash-1",
		FirstSeenAt:  createdOn,
		LastSyncedAt: createdOn,
	}
}

func TestGormERPOrderRepository_FindByERPID(t *testing.T) {
	db := setupReconTestDB(t)
	repo := NewGormERPOrderRepository(db)
	ctx := context.Background()

	_, err := repo.FindByERPID(ctx, 1)
	assert.ErrorIs(t, err, erporder.ErrOrderNotFound)

	require.NoError(t, repo.Upsert(ctx, newTestOrder(1, testDay)))
	got, err := repo.FindByERPID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1001), got.Native.OrderNumber)
	assert.True(t, decimal.RequireFromString("100").Equal(got.Native.OrderValue()))
	assert.Equal(t, erporder.LinkStateUnlinked, got.LinkStatus.State)
	assert.Equal(t, "sync", got.Enrichment["source"])
}

func TestGormERPOrderRepository_UpsertKeepsLinkStatus(t *testing.T) {
	db := setupReconTestDB(t)
	repo := NewGormERPOrderRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, newTestOrder(7, testDay)))
	at := testDay.Add(time.Hour)
	require.NoError(t, repo.UpdateLinkStatus(ctx, 7, erporder.LinkStatus{
		State:       erporder.LinkStateLinked,
		Attempts:    1,
		AttemptedAt: &at,
	}))

	changed := newTestOrder(7, testDay)
	changed.Native.GrossValue = decimal.RequireFromString("130.00")
	changed.ContentHash = "hash-2"
	changed.FirstSeenAt = testDay.Add(48 * time.Hour)
	require.NoError(t, repo.Upsert(ctx, changed))

	got, err := repo.FindByERPID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "hash-2", got.ContentHash)
	assert.True(t, decimal.RequireFromString("130").Equal(got.Native.GrossValue))
	assert.Equal(t, erporder.LinkStateLinked, got.LinkStatus.State)
	assert.Equal(t, 1, got.LinkStatus.Attempts)
	assert.True(t, testDay.Equal(got.FirstSeenAt))
}

func TestGormERPOrderRepository_UpdateLinkStatus(t *testing.T) {
	db := setupReconTestDB(t)
	repo := NewGormERPOrderRepository(db)
	ctx := context.Background()

	tests := []struct {
		name    string
		erpID   int64
		status  erporder.LinkStatus
		wantErr error
	}{
		{"unknown order", 99, erporder.LinkStatus{State: erporder.LinkStatePending}, erporder.ErrOrderNotFound},
		{"invalid state", 1, erporder.LinkStatus{State: "bogus"}, shared.ErrInvalidInput},
		{"pending", 1, erporder.LinkStatus{State: erporder.LinkStatePending, Reason: "lookup_failed", Attempts: 1}, nil},
	}
	require.NoError(t, repo.Upsert(ctx, newTestOrder(1, testDay)))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.UpdateLinkStatus(ctx, tt.erpID, tt.status)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			got, err := repo.FindByERPID(ctx, tt.erpID)
			require.NoError(t, err)
			assert.Equal(t, tt.status.State, got.LinkStatus.State)
			assert.Equal(t, tt.status.Reason, got.LinkStatus.Reason)
		})
	}
}

func TestGormERPOrderRepository_UpdateEnrichment(t *testing.T) {
	db := setupReconTestDB(t)
	repo := NewGormERPOrderRepository(db)
	ctx := context.Background()

	assert.ErrorIs(t, repo.UpdateEnrichment(ctx, 5, erporder.Enrichment{}), erporder.ErrOrderNotFound)

	require.NoError(t, repo.Upsert(ctx, newTestOrder(5, testDay)))
	require.NoError(t, repo.UpdateEnrichment(ctx, 5, erporder.Enrichment{"expected_net_value": "80.10"}))

	got, err := repo.FindByERPID(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "80.10", got.Enrichment["expected_net_value"])
	assert.NotContains(t, got.Enrichment, "source")
}

func TestGormERPOrderRepository_FindByERPIDs(t *testing.T) {
	db := setupReconTestDB(t)
	repo := NewGormERPOrderRepository(db)
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		require.NoError(t, repo.Upsert(ctx, newTestOrder(id, testDay)))
	}

	empty, err := repo.FindByERPIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	got, err := repo.FindByERPIDs(ctx, []int64{1, 3, 42})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, got, int64(1))
	assert.Contains(t, got, int64(3))
	assert.NotContains(t, got, int64(42))
}

func TestGormERPOrderRepository_FindUnlinked(t *testing.T) {
	db := setupReconTestDB(t)
	repo := NewGormERPOrderRepository(db)
	ctx := context.Background()

	for i := int64(1); i <= 4; i++ {
		require.NoError(t, repo.Upsert(ctx, newTestOrder(i, testDay.Add(time.Duration(i)*time.Hour))))
	}
	recent := testDay.Add(10 * time.Hour)
	require.NoError(t, repo.UpdateLinkStatus(ctx, 2, erporder.LinkStatus{State: erporder.LinkStateLinked, AttemptedAt: &recent}))
	require.NoError(t, repo.UpdateLinkStatus(ctx, 3, erporder.LinkStatus{State: erporder.LinkStatePending, AttemptedAt: &recent}))

	t.Run("newest first across unlinked and pending", func(t *testing.T) {
		got, err := repo.FindUnlinked(ctx, erporder.UnlinkedFilter{})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []int64{4, 3, 1}, []int64{got[0].ERPID, got[1].ERPID, got[2].ERPID})
	})

	t.Run("recently attempted orders wait", func(t *testing.T) {
		until := testDay.Add(5 * time.Hour)
		got, err := repo.FindUnlinked(ctx, erporder.UnlinkedFilter{AttemptedUntil: &until})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, int64(4), got[0].ERPID)
		assert.Equal(t, int64(1), got[1].ERPID)
	})

	t.Run("created from and limit", func(t *testing.T) {
		got, err := repo.FindUnlinked(ctx, erporder.UnlinkedFilter{
			CreatedFrom: testDay.Add(2 * time.Hour),
			Limit:       1,
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, int64(4), got[0].ERPID)
	})

	t.Run("explicit states", func(t *testing.T) {
		got, err := repo.FindUnlinked(ctx, erporder.UnlinkedFilter{States: []erporder.LinkState{erporder.LinkStatePending}})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, int64(3), got[0].ERPID)
	})
}

func TestGormERPOrderRepository_FindCreatedBetween(t *testing.T) {
	db := setupReconTestDB(t)
	repo := NewGormERPOrderRepository(db)
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, repo.Upsert(ctx, newTestOrder(i, testDay.AddDate(0, 0, int(i)))))
	}

	from, to := testDay.AddDate(0, 0, 2), testDay.AddDate(0, 0, 4)
	got, total, err := repo.FindCreatedBetween(ctx, from, to, shared.Filter{Page: 1, PageSize: 2, OrderDir: "asc"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].ERPID)
	assert.Equal(t, int64(3), got[1].ERPID)

	page2, _, err := repo.FindCreatedBetween(ctx, from, to, shared.Filter{Page: 2, PageSize: 2, OrderDir: "asc"})
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, int64(4), page2[0].ERPID)
}
