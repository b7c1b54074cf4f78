package persistence

import (
	"context"
	"testing"

	"github.com/erp/reconciler/internal/domain/linking"
	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLink(t *testing.T, m marketplace.Marketplace, orderID string, erpID int64) *linking.Link {
	t.Helper()
	link, err := linking.NewLink(m, orderID, erpID, linking.Flags{UnitCount: 2, FreeShipping: true}, linking.ProvenanceAutoLinker)
	require.NoError(t, err)
	return link
}

func TestGormLinkRepository_CreateIfAbsent(t *testing.T) {
	db := setupReconTestDB(t)
	repo := NewGormLinkRepository(db)
	ctx := context.Background()

	first := newTestLink(t, marketplace.Shopee, "240915ABCD12", 10)
	created, err := repo.CreateIfAbsent(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)

	// a concurrent resolver loses the race and must not overwrite the winner
	second := newTestLink(t, marketplace.Shopee, "240915ABCD12", 11)
	created, err = repo.CreateIfAbsent(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)

	got, err := repo.FindByMarketplaceOrder(ctx, marketplace.Shopee, "240915ABCD12")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, int64(10), got.ERPOrderID)
	assert.Equal(t, 2, got.Flags.UnitCount)
	assert.True(t, got.Flags.FreeShipping)
	assert.True(t, linking.FullConfidence.Equal(got.Confidence))

	// same order id on another marketplace is a different link
	other := newTestLink(t, marketplace.MercadoLivre, "240915ABCD12", 12)
	created, err = repo.CreateIfAbsent(ctx, other)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestGormLinkRepository_FindByMarketplaceOrder_NotFound(t *testing.T) {
	repo := NewGormLinkRepository(setupReconTestDB(t))
	_, err := repo.FindByMarketplaceOrder(context.Background(), marketplace.Magalu, "LU-1")
	assert.ErrorIs(t, err, linking.ErrLinkNotFound)
}

func TestGormLinkRepository_FindByERPOrder(t *testing.T) {
	db := setupReconTestDB(t)
	repo := NewGormLinkRepository(db)
	ctx := context.Background()

	for _, l := range []*linking.Link{
		newTestLink(t, marketplace.Shopee, "A1", 10),
		newTestLink(t, marketplace.MercadoLivre, "2000001", 10),
		newTestLink(t, marketplace.Shopee, "B2", 20),
	} {
		_, err := repo.CreateIfAbsent(ctx, l)
		require.NoError(t, err)
	}

	links, err := repo.FindByERPOrder(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, links, 2)

	none, err := repo.FindByERPOrder(ctx, 99)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGormLinkRepository_ReassignWritesAudit(t *testing.T) {
	db := setupReconTestDB(t)
	repo := NewGormLinkRepository(db)
	ctx := context.Background()

	link := newTestLink(t, marketplace.Shopee, "240915ABCD12", 10)
	_, err := repo.CreateIfAbsent(ctx, link)
	require.NoError(t, err)

	audit, err := link.Reassign(20, "ops@example.com", "wrong order picked")
	require.NoError(t, err)
	require.NoError(t, repo.Reassign(ctx, link, audit))

	got, err := repo.FindByMarketplaceOrder(ctx, marketplace.Shopee, "240915ABCD12")
	require.NoError(t, err)
	assert.Equal(t, int64(20), got.ERPOrderID)

	audits, err := repo.ListAudits(ctx, link.ID)
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Equal(t, linking.AuditActionReassign, audits[0].Action)
	assert.Equal(t, int64(10), audits[0].OldERPOrderID)
	require.NotNil(t, audits[0].NewERPOrderID)
	assert.Equal(t, int64(20), *audits[0].NewERPOrderID)
	assert.Equal(t, "ops@example.com", audits[0].Actor)
}

func TestGormLinkRepository_DeleteWritesAudit(t *testing.T) {
	db := setupReconTestDB(t)
	repo := NewGormLinkRepository(db)
	ctx := context.Background()

	link := newTestLink(t, marketplace.Magalu, "LU-99", 30)
	_, err := repo.CreateIfAbsent(ctx, link)
	require.NoError(t, err)

	audit, err := link.DeletionAudit("ops@example.com", "duplicate")
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, link, audit))

	_, err = repo.FindByMarketplaceOrder(ctx, marketplace.Magalu, "LU-99")
	assert.ErrorIs(t, err, linking.ErrLinkNotFound)

	audits, err := repo.ListAudits(ctx, link.ID)
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Equal(t, linking.AuditActionDelete, audits[0].Action)
	assert.Nil(t, audits[0].NewERPOrderID)

	// deleting again neither succeeds nor writes a second audit
	again, err := link.DeletionAudit("ops@example.com", "retry")
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Delete(ctx, link, again), linking.ErrLinkNotFound)
	audits, err = repo.ListAudits(ctx, link.ID)
	require.NoError(t, err)
	assert.Len(t, audits, 1)
}
