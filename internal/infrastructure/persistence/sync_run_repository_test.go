package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/erp/reconciler/internal/domain/erporder"
	"github.com/erp/reconciler/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormSyncRunRepository_CreateUpdateList(t *testing.T) {
	db := setupReconTestDB(t)
	repo := NewGormSyncRunRepository(db)
	ctx := context.Background()

	var runs []*erporder.SyncRun
	for i := 0; i < 3; i++ {
		run := erporder.NewSyncRun("scheduler", testDay.AddDate(0, 0, -7), testDay)
		run.StartedAt = testDay.Add(time.Duration(i) * time.Hour)
		require.NoError(t, repo.Create(ctx, run))
		runs = append(runs, run)
	}

	finished := testDay.Add(3 * time.Hour)
	runs[2].Status = erporder.SyncRunPartial
	runs[2].Processed = 250
	runs[2].Changed = 12
	runs[2].Error = "request budget exhausted"
	runs[2].FinishedAt = &finished
	require.NoError(t, repo.Update(ctx, runs[2]))

	got, total, err := repo.List(ctx, shared.Filter{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, got, 2)
	assert.Equal(t, runs[2].ID, got[0].ID)
	assert.Equal(t, erporder.SyncRunPartial, got[0].Status)
	assert.Equal(t, 250, got[0].Processed)
	assert.Equal(t, "request budget exhausted", got[0].Error)
	require.NotNil(t, got[0].FinishedAt)
	assert.Equal(t, runs[1].ID, got[1].ID)
	assert.Equal(t, erporder.SyncRunRunning, got[1].Status)

	asc, _, err := repo.List(ctx, shared.Filter{Page: 1, PageSize: 10, OrderDir: "asc"})
	require.NoError(t, err)
	require.Len(t, asc, 3)
	assert.Equal(t, runs[0].ID, asc[0].ID)
}
