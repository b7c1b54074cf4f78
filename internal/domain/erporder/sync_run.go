package erporder

import (
	"context"
	"time"

	"github.com/erp/reconciler/internal/domain/shared"
	"github.com/google/uuid"
)

// SyncRunStatus is the outcome of a sync run
type SyncRunStatus string

const (
	SyncRunRunning SyncRunStatus = "running"
	SyncRunSuccess SyncRunStatus = "success"
	// SyncRunPartial means some records were skipped or the request budget ran out
	SyncRunPartial SyncRunStatus = "partial"
	SyncRunFailed  SyncRunStatus = "failed"
)

// SyncRun is the persisted history entry of one sync execution
type SyncRun struct {
	ID         uuid.UUID
	Trigger    string
	From       time.Time
	To         time.Time
	Status     SyncRunStatus
	Processed  int
	Changed    int
	Unchanged  int
	Errored    int
	Pages      int
	Requests   int
	Windows    int
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// NewSyncRun starts a run record
func NewSyncRun(trigger string, from, to time.Time) *SyncRun {
	return &SyncRun{
		ID:        uuid.New(),
		Trigger:   trigger,
		From:      from,
		To:        to,
		Status:    SyncRunRunning,
		StartedAt: time.Now(),
	}
}

// SyncRunRepository stores sync run history
type SyncRunRepository interface {
	Create(ctx context.Context, run *SyncRun) error
	Update(ctx context.Context, run *SyncRun) error
	List(ctx context.Context, filter shared.Filter) ([]SyncRun, int64, error)
}
