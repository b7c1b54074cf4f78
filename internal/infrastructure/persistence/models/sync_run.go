package models

import (
	"time"

	"github.com/erp/reconciler/internal/domain/erporder"
	"github.com/google/uuid"
)

// SyncRunModel is one row of the ERP sync history
type SyncRunModel struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Trigger    string     `gorm:"type:varchar(32);not null"`
	RangeFrom  time.Time  `gorm:"not null"`
	RangeTo    time.Time  `gorm:"not null"`
	Status     string     `gorm:"type:varchar(16);not null;index"`
	Processed  int        `gorm:"not null;default:0"`
	Changed    int        `gorm:"not null;default:0"`
	Unchanged  int        `gorm:"not null;default:0"`
	Errored    int        `gorm:"not null;default:0"`
	Pages      int        `gorm:"not null;default:0"`
	Requests   int        `gorm:"not null;default:0"`
	Windows    int        `gorm:"not null;default:0"`
	Error      string     `gorm:"type:text"`
	StartedAt  time.Time  `gorm:"not null;index"`
	FinishedAt *time.Time `gorm:"column:finished_at"`
}

// TableName returns the table name for GORM
func (SyncRunModel) TableName() string {
	return "sync_runs"
}

// ToDomain converts the model to a domain sync run
func (m *SyncRunModel) ToDomain() erporder.SyncRun {
	return erporder.SyncRun{
		ID:         m.ID,
		Trigger:    m.Trigger,
		From:       m.RangeFrom,
		To:         m.RangeTo,
		Status:     erporder.SyncRunStatus(m.Status),
		Processed:  m.Processed,
		Changed:    m.Changed,
		Unchanged:  m.Unchanged,
		Errored:    m.Errored,
		Pages:      m.Pages,
		Requests:   m.Requests,
		Windows:    m.Windows,
		Error:      m.Error,
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
	}
}

// SyncRunModelFromDomain converts a domain sync run to its model
func SyncRunModelFromDomain(r *erporder.SyncRun) *SyncRunModel {
	return &SyncRunModel{
		ID:         r.ID,
		Trigger:    r.Trigger,
		RangeFrom:  r.From,
		RangeTo:    r.To,
		Status:     string(r.Status),
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
