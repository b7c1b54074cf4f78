package marketplace

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// SubEventKind describes what a suffixed settlement line represents
type SubEventKind string

const (
	SubEventNone       SubEventKind = ""
	SubEventAdjustment SubEventKind = "AJUSTE"
	SubEventRefund     SubEventKind = "REEMBOLSO"
	SubEventWithdrawal SubEventKind = "RETIRADA"
	SubEventFreight    SubEventKind = "FRETE"
	SubEventCommission SubEventKind = "COMISSAO"
	// SubEventSequence marks a bare numeric disambiguator such as "X_2"
	SubEventSequence SubEventKind = "SEQ"
)

// IsAdjustment reports whether the sub-event is an adjustment line
func (k SubEventKind) IsAdjustment() bool {
	return k == SubEventAdjustment
}

// IsRefund reports whether the sub-event is a refund line
func (k SubEventKind) IsRefund() bool {
	return k == SubEventRefund
}

var (
	keywordSuffix  = regexp.MustCompile(`(?i)_(AJUSTE|REEMBOLSO|RETIRADA|FRETE|COMISSAO)(?:_?(\d+))?$`)
	sequenceSuffix = regexp.MustCompile(`_(\d+)$`)
)

// OrderRef is the parsed form of a settlement order identifier:
// the marketplace order it belongs to plus the sub-event it encodes.
type OrderRef struct {
	BaseID string       `json:"base_id"`
	Kind   SubEventKind `json:"kind,omitempty"`
	Seq    string       `json:"seq,omitempty"`
}

// ParseOrderRef splits a raw identifier into base id and sub-event.
// The base id is always StripSuffix(raw).
func ParseOrderRef(raw string) OrderRef {
	id := strings.TrimSpace(raw)
	ref := OrderRef{}

	if m := keywordSuffix.FindStringSubmatchIndex(id); m != nil {
		ref.Kind = SubEventKind(strings.ToUpper(id[m[2]:m[3]]))
		if m[4] >= 0 {
			ref.Seq = id[m[4]:m[5]]
		}
		id = id[:m[0]]
	}
	if m := sequenceSuffix.FindStringSubmatchIndex(id); m != nil {
		if ref.Kind == SubEventNone {
			ref.Kind = SubEventSequence
			ref.Seq = id[m[2]:m[3]]
		}
		id = id[:m[0]]
	}
	ref.BaseID = id
	return ref
}

// StripSuffix removes adjustment, refund, withdrawal and numeric suffixes
// from a settlement order identifier. Both order linking and payment
// grouping must derive base ids through this function.
func StripSuffix(raw string) string {
	id := strings.TrimSpace(raw)
	id = keywordSuffix.ReplaceAllString(id, "")
	return sequenceSuffix.ReplaceAllString(id, "")
}

// IsSubEvent reports whether the reference carries a sub-event suffix
func (r OrderRef) IsSubEvent() bool {
	return r.Kind != SubEventNone
}

// String renders the canonical wire form of the reference
func (r OrderRef) String() string {
	switch r.Kind {
	case SubEventNone:
		return r.BaseID
	case SubEventSequence:
		return r.BaseID + "_" + r.Seq
	default:
		if r.Seq != "" {
			return r.BaseID + "_" + string(r.Kind) + "_" + r.Seq
		}
		return r.BaseID + "_" + string(r.Kind)
	}
}

const magaluPrefix = "LU-"

// NormalizeOrderID converts an identifier as it appears in ERP or settlement
// payloads into the marketplace's native form. Suffixes are stripped first.
func NormalizeOrderID(m Marketplace, raw string) (string, error) {
	id := StripSuffix(raw)
	if id == "" {
		return "", fmt.Errorf("%w: empty identifier", ErrInvalidOrderID)
	}

	switch m {
	case Magalu:
		if len(id) >= len(magaluPrefix) && strings.EqualFold(id[:len(magaluPrefix)], magaluPrefix) {
			id = id[len(magaluPrefix):]
		}
		if id == "" {
			return "", fmt.Errorf("%w: %q has no order number after prefix", ErrInvalidOrderID, raw)
		}
		return id, nil
	case MercadoLivre:
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil || n <= 0 {
			return "", fmt.Errorf("%w: %q is not a numeric order id", ErrInvalidOrderID, raw)
		}
		return strconv.FormatInt(n, 10), nil
	case Shopee:
		return id, nil
	default:
		return "", ErrUnknownMarketplace
	}
}
