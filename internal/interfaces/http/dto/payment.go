package dto

import (
	"strings"
	"time"

	"github.com/erp/reconciler/internal/domain/payment"
	"github.com/shopspring/decimal"
)

// PaymentLineRequest is one settlement line as exported by a marketplace
type PaymentLineRequest struct {
	ExternalRef     string    `json:"external_ref" binding:"required,max=128"`
	OrderID         string    `json:"order_id" binding:"max=64"`
	Amount          string    `json:"amount" binding:"required,decimal"`
	IsExpense       bool      `json:"is_expense"`
	TransactionType string    `json:"transaction_type" binding:"max=128"`
	Description     string    `json:"description" binding:"max=1000"`
	OccurredAt      time.Time `json:"occurred_at" binding:"required"`
}

// IngestPaymentsRequest uploads settlement lines. Archive also publishes
// the batch to the settlement bucket, when one is configured.
type IngestPaymentsRequest struct {
	Lines   []PaymentLineRequest `json:"lines" binding:"required,min=1,max=5000,dive"`
	Archive bool                 `json:"archive"`
}

// ToLines converts the uploaded lines
func (r IngestPaymentsRequest) ToLines() []payment.Line {
	out := make([]payment.Line, len(r.Lines))
	for i, l := range r.Lines {
		amount, _ := decimal.NewFromString(strings.TrimSpace(l.Amount))
		out[i] = payment.Line{
			ExternalRef:     l.ExternalRef,
			OrderID:         l.OrderID,
			Amount:          amount,
			IsExpense:       l.IsExpense,
			TransactionType: l.TransactionType,
			Description:     l.Description,
			OccurredAt:      l.OccurredAt,
		}
	}
	return out
}

// IngestPaymentsResponse reports an ingestion and where its batch was archived
type IngestPaymentsResponse struct {
	Report     any    `json:"report"`
	ArchiveKey string `json:"archive_key,omitempty"`
}

// PullPaymentsRequest pulls settlement files from the feed. An empty Since
// uses the configured lookback.
type PullPaymentsRequest struct {
	Since string `json:"since"`
}

// PaymentGroupsQuery filters settlement groups
type PaymentGroupsQuery struct {
	From        string `form:"from" binding:"omitempty,datetime=2006-01-02"`
	To          string `form:"to" binding:"omitempty,datetime=2006-01-02"`
	BaseOrderID string `form:"base_order_id" binding:"max=64"`
	Unresolved  bool   `form:"unresolved"`
	Limit       int    `form:"limit" binding:"omitempty,min=1,max=5000"`
}

// ToFilter converts the query; days are read in loc and To covers the whole day
func (q PaymentGroupsQuery) ToFilter(loc *time.Location) (payment.ListFilter, error) {
	filter := payment.ListFilter{
		BaseOrderID: q.BaseOrderID,
		Unresolved:  q.Unresolved,
		Limit:       q.Limit,
	}
	if q.From != "" {
		from, err := ParseDate(q.From, loc)
		if err != nil {
			return payment.ListFilter{}, err
		}
		filter.From = &from
	}
	if q.To != "" {
		to, err := ParseDate(q.To, loc)
		if err != nil {
			return payment.ListFilter{}, err
		}
		end := to.AddDate(0, 0, 1).Add(-time.Nanosecond)
		filter.To = &end
	}
	return filter, nil
}

// DiscrepancyQuery selects the period to reconcile
type DiscrepancyQuery struct {
	DateRange
}
