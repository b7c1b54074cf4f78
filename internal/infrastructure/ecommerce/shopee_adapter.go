package ecommerce

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/erp/reconciler/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const shopeeOrderDetailPath = "/api/v2/order/get_order_detail"

// ShopeeAdapter looks orders up through the Shopee Open Platform
type ShopeeAdapter struct {
	config *ShopeeConfig
	client *apiClient
	now    func() time.Time
}

// NewShopeeAdapter creates a new Shopee adapter with the given configuration
func NewShopeeAdapter(config *ShopeeConfig, logger *zap.Logger) (*ShopeeAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &ShopeeAdapter{
		config: config,
		client: newAPIClient(marketplace.Shopee, config.ClientConfig, logger),
		now:    time.Now,
	}, nil
}

// Marketplace returns the marketplace this adapter handles
func (a *ShopeeAdapter) Marketplace() marketplace.Marketplace {
	return marketplace.Shopee
}

// LookupOrder fetches a single order by its order_sn
func (a *ShopeeAdapter) LookupOrder(ctx context.Context, orderID string) (*marketplace.OrderSnapshot, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "shopee_adapter", "lookup_order",
		telemetry.WithAttribute("marketplace_order_id", orderID))
	defer span.End()

	ts := a.now().Unix()
	q := url.Values{}
	q.Set("partner_id", strconv.FormatInt(a.config.PartnerID, 10))
	q.Set("timestamp", strconv.FormatInt(ts, 10))
	q.Set("access_token", a.config.AccessToken)
	q.Set("shop_id", strconv.FormatInt(a.config.ShopID, 10))
	q.Set("sign", a.config.Sign(shopeeOrderDetailPath, ts))
	q.Set("order_sn_list", orderID)
	q.Set("response_optional_fields", shopeeOrderDetailFields)

	req, err := http.NewRequest(http.MethodGet, a.config.BaseURL+shopeeOrderDetailPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("shopee: failed to create request: %w", err)
	}
	body, err := a.client.do(ctx, req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	var resp shopeeOrderDetailResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("%w: shopee: failed to parse response: %v", marketplace.ErrLookupUnavailable, err)
	}
	// Shopee answers 200 with an error code for business failures
	if resp.Error != "" {
		if resp.Error == "error_not_found" {
			return nil, marketplace.ErrOrderNotFound
		}
		err := fmt.Errorf("%w: shopee: %s - %s", marketplace.ErrLookupUnavailable, resp.Error, resp.Message)
		telemetry.RecordError(span, err)
		return nil, err
	}

	for i := range resp.Response.OrderList {
		o := &resp.Response.OrderList[i]
		if o.OrderSN != orderID {
			continue
		}
		return &marketplace.OrderSnapshot{
			Marketplace: marketplace.Shopee,
			OrderID:     o.OrderSN,
			Status:      o.OrderStatus,
			TotalAmount: o.TotalAmount,
			UnitCount:   o.unitCount(),
			IsKit:       o.isKit(),
			Campaign:    o.isCampaign(),
			CreatedAt:   time.Unix(o.CreateTime, 0).UTC(),
		}, nil
	}
	return nil, marketplace.ErrOrderNotFound
}

var _ marketplace.OrderLookup = (*ShopeeAdapter)(nil)
