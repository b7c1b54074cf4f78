package ecommerce

import (
	"strings"

	"github.com/shopspring/decimal"
)

// shopeeOrderDetailResponse is the envelope of /api/v2/order/get_order_detail
type shopeeOrderDetailResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Response  struct {
		OrderList []shopeeOrder `json:"order_list"`
	} `json:"response"`
}

type shopeeOrder struct {
	OrderSN     string          `json:"order_sn"`
	OrderStatus string          `json:"order_status"`
	CreateTime  int64           `json:"create_time"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	ItemList    []shopeeItem    `json:"item_list"`
}

type shopeeItem struct {
	ItemID                 int64  `json:"item_id"`
	ModelQuantityPurchased int    `json:"model_quantity_purchased"`
	PromotionType          string `json:"promotion_type"`
}

// shopeeOrderDetailFields are the optional blocks requested on every lookup
const shopeeOrderDetailFields = "item_list,total_amount"

func (o *shopeeOrder) unitCount() int {
	n := 0
	for _, it := range o.ItemList {
		n += it.ModelQuantityPurchased
	}
	return n
}

// isKit reports a bundle deal: several listings sold as one priced unit
func (o *shopeeOrder) isKit() bool {
	for _, it := range o.ItemList {
		if strings.EqualFold(it.PromotionType, "bundle_deal") {
			return true
		}
	}
	return false
}

// isCampaign reports items sold under a flash sale or platform campaign
func (o *shopeeOrder) isCampaign() bool {
	for _, it := range o.ItemList {
		switch strings.ToLower(it.PromotionType) {
		case "flash_sale", "campaign", "shopee_flash_sale":
			return true
		}
	}
	return false
}
