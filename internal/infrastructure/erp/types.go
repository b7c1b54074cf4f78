package erp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/erp/reconciler/internal/domain/erporder"
	"github.com/shopspring/decimal"
)

// listOrdersResponse is the body of GET /pedidos. Items stay raw so the
// content hash sees exactly what the ERP sent.
type listOrdersResponse struct {
	Items      []json.RawMessage `json:"itens"`
	Total      *int              `json:"total,omitempty"`
	Pagination *pagination       `json:"paginacao,omitempty"`
}

type pagination struct {
	Page    int `json:"pagina"`
	Pages   int `json:"paginas"`
	PerPage int `json:"por_pagina"`
	Total   int `json:"total"`
}

// total prefers the top-level total and falls back to the pagination block
func (r *listOrdersResponse) total() *int {
	if r.Total != nil {
		return r.Total
	}
	if r.Pagination != nil && r.Pagination.Total > 0 {
		t := r.Pagination.Total
		return &t
	}
	return nil
}

// orderItem is one entry of the listing
type orderItem struct {
	ID            int64        `json:"id"`
	Status        *int         `json:"situacao"`
	OrderNumber   int64        `json:"numeroPedido"`
	Number        int64        `json:"numero"`
	CreatedAt     string       `json:"dataCriacao"`
	UpdatedAt     string       `json:"dataAtualizacao"`
	Value         *flexDecimal `json:"valor"`
	TotalValue    *flexDecimal `json:"valorTotalPedido"`
	FreightValue  *flexDecimal `json:"valorFrete"`
	DiscountValue *flexDecimal `json:"valorDesconto"`
	SalesChannel  string       `json:"canalVenda"`
	Ecommerce     *struct {
		Name          string `json:"nome"`
		Channel       string `json:"canal"`
		ExternalOrder string `json:"numeroPedidoEcommerce"`
	} `json:"ecommerce"`
	Customer *struct {
		Name string `json:"nome"`
	} `json:"cliente"`
	Items []struct {
		Quantity *flexDecimal `json:"quantidade"`
	} `json:"itens"`
}

// toRemote maps a raw listing entry to the domain record. Entries that do
// not decode still produce a RemoteOrder so the engine can count them.
func toRemote(raw json.RawMessage, loc *time.Location) erporder.RemoteOrder {
	out := erporder.RemoteOrder{Raw: raw}
	var item orderItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return out
	}

	n := erporder.NativeFields{
		ERPID:       item.ID,
		OrderNumber: item.OrderNumber,
	}
	if n.OrderNumber == 0 {
		n.OrderNumber = item.Number
	}
	if item.Status != nil {
		n.Status = erporder.StatusCode(*item.Status)
	}
	if t, ok := parseTime(item.CreatedAt, loc); ok {
		n.CreatedOn = t
	}
	if t, ok := parseTime(item.UpdatedAt, loc); ok {
		n.UpdatedOn = &t
	}

	switch {
	case item.TotalValue != nil:
		n.GrossValue = item.TotalValue.Decimal
	case item.Value != nil:
		n.GrossValue = item.Value.Decimal
	}
	if item.FreightValue != nil {
		f := item.FreightValue.Decimal
		n.FreightValue = &f
	}
	if item.DiscountValue != nil {
		n.DiscountValue = item.DiscountValue.Decimal
	}

	channel := item.SalesChannel
	if item.Ecommerce != nil {
		n.EcommerceOrderID = strings.TrimSpace(item.Ecommerce.ExternalOrder)
		if channel == "" {
			channel = item.Ecommerce.Name
		}
		if channel == "" {
			channel = item.Ecommerce.Channel
		}
	}
	n.Channel = strings.TrimSpace(channel)
	if item.Customer != nil {
		n.CustomerName = strings.TrimSpace(item.Customer.Name)
	}
	for _, it := range item.Items {
		if it.Quantity != nil {
			n.UnitCount += int(it.Quantity.IntPart())
		}
	}

	out.Native = n
	return out
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.DateOnly,
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
}

// parseTime accepts the ISO and Brazilian day-first layouts the ERP uses
func parseTime(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "0000-00-00") {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// flexDecimal decodes monetary values sent either as JSON numbers or as
// strings in "1234.56" or "1.234,56" form
type flexDecimal struct {
	decimal.Decimal
}

func (d *flexDecimal) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		d.Decimal = decimal.Zero
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	v, err := parseAmount(s)
	if err != nil {
		return err
	}
	d.Decimal = v
	return nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("erp: invalid amount %q: %w", s, err)
	}
	return v, nil
}
