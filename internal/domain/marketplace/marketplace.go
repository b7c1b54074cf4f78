// Package marketplace holds the marketplace enum, channel detection and the
// identifier rules each marketplace imposes on its order ids.
package marketplace

import (
	"errors"
	"strings"

	"github.com/erp/reconciler/internal/domain/shared"
)

// Marketplace identifies one of the external sales channels
type Marketplace string

const (
	Shopee       Marketplace = "shopee"
	MercadoLivre Marketplace = "mercado_livre"
	Magalu       Marketplace = "magalu"
)

// Domain errors
var (
	ErrUnknownMarketplace = errors.New("marketplace: unknown marketplace")
	ErrInvalidOrderID     = errors.New("marketplace: invalid order identifier")
	ErrOrderNotFound      = errors.New("marketplace: order not found")
	ErrLookupUnavailable  = errors.New("marketplace: lookup unavailable")
)

// All returns every supported marketplace in a stable order
func All() []Marketplace {
	return []Marketplace{Shopee, MercadoLivre, Magalu}
}

// IsValid reports whether the marketplace is supported
func (m Marketplace) IsValid() bool {
	switch m {
	case Shopee, MercadoLivre, Magalu:
		return true
	}
	return false
}

// String returns the marketplace code
func (m Marketplace) String() string {
	return string(m)
}

// DisplayName returns the channel label used by the ERP
func (m Marketplace) DisplayName() string {
	switch m {
	case Shopee:
		return "Shopee"
	case MercadoLivre:
		return "Mercado Livre"
	case Magalu:
		return "Magalu"
	default:
		return string(m)
	}
}

// aliases are matched as substrings of a folded channel label.
// Order matters: the first marketplace with a matching alias wins.
var aliases = []struct {
	marketplace Marketplace
	needles     []string
}{
	{Shopee, []string{"shopee"}},
	{MercadoLivre, []string{"mercado", "meli"}},
	{Magalu, []string{"magalu", "magazine"}},
}

// DetectFromChannel infers the marketplace from a free-text sales channel label
func DetectFromChannel(channel string) (Marketplace, bool) {
	folded := shared.Fold(channel)
	if folded == "" {
		return "", false
	}
	for _, a := range aliases {
		for _, needle := range a.needles {
			if strings.Contains(folded, needle) {
				return a.marketplace, true
			}
		}
	}
	return "", false
}

// ParseMarketplace accepts a code, display name or channel alias
func ParseMarketplace(raw string) (Marketplace, error) {
	m := Marketplace(strings.ToLower(strings.TrimSpace(raw)))
	if m.IsValid() {
		return m, nil
	}
	if detected, ok := DetectFromChannel(raw); ok {
		return detected, nil
	}
	return "", ErrUnknownMarketplace
}

// OtherChannel is the label stored when the ERP reports no channel
const OtherChannel = "Outros"

// CanonicalChannel maps the many spellings of an ERP channel onto a stable label.
// Unrecognised labels are returned unchanged.
func CanonicalChannel(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return OtherChannel
	}
	if m, ok := DetectFromChannel(trimmed); ok {
		return m.DisplayName()
	}
	folded := shared.Fold(trimmed)
	switch {
	case strings.Contains(folded, "olist"):
		return "Olist"
	case strings.Contains(folded, "amazon"):
		return "Amazon"
	case strings.Contains(folded, "site"), strings.Contains(folded, "loja"):
		return "Loja própria"
	}
	return trimmed
}
