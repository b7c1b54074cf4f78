package linking

import (
	"github.com/erp/reconciler/internal/domain/erporder"
	"github.com/erp/reconciler/internal/domain/marketplace"
)

// PendingReason explains why an order stayed unlinked on this attempt
type PendingReason string

const (
	ReasonUnknownChannel    PendingReason = "unknown_channel"
	ReasonMissingExternalID PendingReason = "missing_external_id"
	ReasonInvalidIdentifier PendingReason = "invalid_identifier"
	ReasonNotFound          PendingReason = "not_found"
	ReasonLookupUnavailable PendingReason = "lookup_unavailable"
	// ReasonLinkedElsewhere means the marketplace order already belongs to another ERP order
	ReasonLinkedElsewhere PendingReason = "linked_to_other_order"
)

// Outcome is the result of one resolution attempt for one ERP order
type Outcome struct {
	ERPOrderID         int64                   `json:"erp_order_id"`
	State              erporder.LinkState      `json:"state"`
	Reason             PendingReason           `json:"reason,omitempty"`
	Marketplace        marketplace.Marketplace `json:"marketplace,omitempty"`
	MarketplaceOrderID string                  `json:"marketplace_order_id,omitempty"`
	// AlreadyLinked is set when an existing link satisfied the order
	AlreadyLinked bool   `json:"already_linked,omitempty"`
	Detail        string `json:"detail,omitempty"`
}

// Linked builds a successful outcome
func Linked(erpOrderID int64, l *Link, already bool) Outcome {
	return Outcome{
		ERPOrderID:         erpOrderID,
		State:              erporder.LinkStateLinked,
		Marketplace:        l.Marketplace,
		MarketplaceOrderID: l.MarketplaceOrderID,
		AlreadyLinked:      already,
	}
}

// Pending builds a deferred outcome
func Pending(erpOrderID int64, reason PendingReason, detail string) Outcome {
	return Outcome{
		ERPOrderID: erpOrderID,
		State:      erporder.LinkStatePending,
		Reason:     reason,
		Detail:     detail,
	}
}
