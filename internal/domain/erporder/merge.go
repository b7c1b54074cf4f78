package erporder

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"
)

// ContentHash returns the hex SHA-256 of the RFC 8785 canonical form of the
// payload, so key order and whitespace differences hash identically.
func ContentHash(raw []byte) (string, error) {
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("erporder: canonicalize payload: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Merge applies an incoming ERP record on top of the stored one.
//
// Native fields present in the incoming record overwrite the stored values,
// even when the payload sets them to an empty value. Optional native fields
// whose source keys are absent from the payload keep their stored value.
// Enrichment entries survive unless the payload carries a top-level field of
// the same name, in which case the payload value wins. Status and update
// timestamp follow whichever side is newer.
func Merge(existing *Order, incoming RemoteOrder, hash string, now time.Time) *Order {
	if existing == nil {
		return &Order{
			ERPID:        incoming.Native.ERPID,
			Native:       incoming.Native,
			Enrichment:   Enrichment{},
			RawPayload:   incoming.Raw,
			ContentHash:  hash,
			LinkStatus:   LinkStatus{State: LinkStateUnlinked},
			FirstSeenAt:  now,
			LastSyncedAt: now,
		}
	}

	native := incoming.Native
	prev := existing.Native

	provided := incoming.ProvidedFields()
	omitted := func(field nativeField, zero bool) bool {
		if provided == nil {
			return zero
		}
		for _, key := range nativeSources[field] {
			if _, ok := provided[key]; ok {
				return false
			}
		}
		return true
	}

	if omitted(fieldFreight, native.FreightValue == nil) {
		native.FreightValue = prev.FreightValue
	}
	if omitted(fieldEcommerceOrderID, native.EcommerceOrderID == "") {
		native.EcommerceOrderID = prev.EcommerceOrderID
	}
	if omitted(fieldChannel, native.Channel == "") {
		native.Channel = prev.Channel
	}
	if omitted(fieldCustomerName, native.CustomerName == "") {
		native.CustomerName = prev.CustomerName
	}
	if omitted(fieldUnitCount, native.UnitCount == 0) {
		native.UnitCount = prev.UnitCount
	}
	if omitted(fieldOrderNumber, native.OrderNumber == 0) {
		native.OrderNumber = prev.OrderNumber
	}
	if isOlder(native.UpdatedOn, prev.UpdatedOn) {
		native.Status = prev.Status
		native.UpdatedOn = prev.UpdatedOn
	}

	enrichment := existing.Enrichment.Clone()
	if len(enrichment) > 0 {
		for key := range enrichment {
			if v, ok := provided[key]; ok {
				enrichment[key] = v
			}
		}
	}

	firstSeen := existing.FirstSeenAt
	if firstSeen.IsZero() {
		firstSeen = now
	}

	return &Order{
		ERPID:        existing.ERPID,
		Native:       native,
		Enrichment:   enrichment,
		RawPayload:   incoming.Raw,
		ContentHash:  hash,
		LinkStatus:   existing.LinkStatus,
		FirstSeenAt:  firstSeen,
		LastSyncedAt: now,
	}
}

func isOlder(candidate, current *time.Time) bool {
	if candidate == nil || current == nil {
		return false
	}
	return candidate.Before(*current)
}

type nativeField int

const (
	fieldFreight nativeField = iota
	fieldEcommerceOrderID
	fieldChannel
	fieldCustomerName
	fieldUnitCount
	fieldOrderNumber
)

// nativeSources lists the top-level payload keys each optional native field
// is read from
var nativeSources = map[nativeField][]string{
	fieldFreight:          {"valorFrete"},
	fieldEcommerceOrderID: {"ecommerce"},
	fieldChannel:          {"canalVenda", "ecommerce"},
	fieldCustomerName:     {"cliente"},
	fieldUnitCount:        {"itens"},
	fieldOrderNumber:      {"numeroPedido", "numero"},
}
