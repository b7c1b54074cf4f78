package dto

import (
	"time"

	"github.com/erp/reconciler/internal/domain/erporder"
)

// SyncRunRequest triggers a differential sync over a period
type SyncRunRequest struct {
	DateRange
	PageSize   int `json:"page_size" binding:"omitempty,min=1,max=100"`
	WindowDays int `json:"window_days" binding:"omitempty,min=1,max=31"`
}

// SyncRunResponse is a stored sync run
type SyncRunResponse struct {
	ID         string                 `json:"id"`
	Trigger    string                 `json:"trigger"`
	From       time.Time              `json:"from"`
	To         time.Time              `json:"to"`
	Status     erporder.SyncRunStatus `json:"status"`
	Processed  int                    `json:"processed"`
	Changed    int                    `json:"changed"`
	Unchanged  int                    `json:"unchanged"`
	Errored    int                    `json:"errored"`
	Pages      int                    `json:"pages"`
	Requests   int                    `json:"requests"`
	Windows    int                    `json:"windows"`
	Error      string                 `json:"error,omitempty"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt *time.Time             `json:"finished_at,omitempty"`
}

// ToSyncRunResponse converts a sync run
func ToSyncRunResponse(r erporder.SyncRun) SyncRunResponse {
	return SyncRunResponse{
		ID:         r.ID.String(),
		Trigger:    r.Trigger,
		From:       r.From,
		To:         r.To,
		Status:     r.Status,
		Processed:  r.Processed,
		Changed:    r.Changed,
		Unchanged:  r.Unchanged,
		Errored:    r.Errored,
		Pages:      r.Pages,
		Requests:   r.Requests,
		Windows:    r.Windows,
		Error:      r.Error,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
}

// ToSyncRunResponses converts a page of sync runs
func ToSyncRunResponses(runs []erporder.SyncRun) []SyncRunResponse {
	out := make([]SyncRunResponse, len(runs))
	for i, r := range runs {
		out[i] = ToSyncRunResponse(r)
	}
	return out
}
