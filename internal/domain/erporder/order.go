// Package erporder models ERP sales orders as a two-layer record: the native
// fields owned by the ERP sync and an enrichment map owned by downstream steps.
package erporder

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Domain errors
var (
	ErrOrderNotFound      = errors.New("erporder: order not found")
	ErrMissingStableID    = errors.New("erporder: record has no stable ERP id")
	ErrMissingCreatedDate = errors.New("erporder: record has no creation date")
	ErrNonPositiveValue   = errors.New("erporder: order value after freight is not positive")
)

// StatusCode is the ERP's numeric order situation
type StatusCode int

const (
	StatusOpen         StatusCode = 0
	StatusInvoiced     StatusCode = 1
	StatusCanceled     StatusCode = 2
	StatusApproved     StatusCode = 3
	StatusPreparing    StatusCode = 4
	StatusShipped      StatusCode = 5
	StatusDelivered    StatusCode = 6
	StatusReadyToShip  StatusCode = 7
	StatusIncomplete   StatusCode = 8
	StatusNotDelivered StatusCode = 9
)

// Description returns the label the ERP shows for the status
func (s StatusCode) Description() string {
	switch s {
	case StatusOpen:
		return "Aberta"
	case StatusInvoiced:
		return "Faturada"
	case StatusCanceled:
		return "Cancelada"
	case StatusApproved:
		return "Aprovada"
	case StatusPreparing:
		return "Preparando envio"
	case StatusShipped:
		return "Enviada"
	case StatusDelivered:
		return "Entregue"
	case StatusReadyToShip:
		return "Pronto para envio"
	case StatusIncomplete:
		return "Dados incompletos"
	case StatusNotDelivered:
		return "Não entregue"
	default:
		return "Desconhecido"
	}
}

// IsTerminal reports whether the order reached end of life
func (s StatusCode) IsTerminal() bool {
	return s == StatusCanceled || s == StatusDelivered || s == StatusNotDelivered
}

// NativeFields are the values that originate from the raw ERP payload.
// FreightValue is nil when the payload did not carry it (list payloads
// omit freight unless explicitly requested).
type NativeFields struct {
	ERPID            int64            `json:"erp_id"`
	OrderNumber      int64            `json:"order_number,omitempty"`
	EcommerceOrderID string           `json:"ecommerce_order_id,omitempty"`
	Channel          string           `json:"channel"`
	CreatedOn        time.Time        `json:"created_on"`
	UpdatedOn        *time.Time       `json:"updated_on,omitempty"`
	GrossValue       decimal.Decimal  `json:"gross_value"`
	FreightValue     *decimal.Decimal `json:"freight_value,omitempty"`
	DiscountValue    decimal.Decimal  `json:"discount_value"`
	Status           StatusCode       `json:"status"`
	CustomerName     string           `json:"customer_name,omitempty"`
	UnitCount        int              `json:"unit_count,omitempty"`
}

// Freight returns the freight value or zero when unknown
func (n NativeFields) Freight() decimal.Decimal {
	if n.FreightValue == nil {
		return decimal.Zero
	}
	return *n.FreightValue
}

// OrderValue is the gross value minus freight, the base for fee calculation
func (n NativeFields) OrderValue() decimal.Decimal {
	return n.GrossValue.Sub(n.Freight())
}

// Order is the persisted ERP order record
type Order struct {
	ERPID        int64
	Native       NativeFields
	Enrichment   Enrichment
	RawPayload   json.RawMessage
	ContentHash  string
	LinkStatus   LinkStatus
	FirstSeenAt  time.Time
	LastSyncedAt time.Time
}

// ExpectedNetValue returns the stored fee-adjusted net value, if computed
func (o *Order) ExpectedNetValue() (decimal.Decimal, bool) {
	return o.Enrichment.ExpectedNetValue()
}

// RemoteOrder is one record as returned by the ERP API
type RemoteOrder struct {
	Native NativeFields
	Raw    json.RawMessage
}

// Validate checks the fields the sync engine cannot do without
func (r RemoteOrder) Validate() error {
	if r.Native.ERPID <= 0 {
		return ErrMissingStableID
	}
	if r.Native.CreatedOn.IsZero() {
		return ErrMissingCreatedDate
	}
	return nil
}

// ProvidedFields decodes the top-level keys of the raw payload.
// A payload that is not a JSON object provides nothing.
func (r RemoteOrder) ProvidedFields() map[string]any {
	if len(r.Raw) == 0 {
		return nil
	}
	var fields map[string]any
	if err := json.Unmarshal(r.Raw, &fields); err != nil {
		return nil
	}
	return fields
}
