package ecommerce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/erp/reconciler/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MagaluProductionAPIURL is the production API endpoint
const MagaluProductionAPIURL = "https://api.magalu.com"

// ErrMagaluConfigMissingAccessToken is returned for a config without a token
var ErrMagaluConfigMissingAccessToken = errors.New("magalu: access token is required")

// MagaluConfig holds configuration for the Magalu seller API
type MagaluConfig struct {
	ClientConfig
	AccessToken string
}

// Validate validates the configuration and fills defaults
func (c *MagaluConfig) Validate() error {
	if c.AccessToken == "" {
		return ErrMagaluConfigMissingAccessToken
	}
	c.ClientConfig = c.ClientConfig.withDefaults(MagaluProductionAPIURL)
	return nil
}

type magaluOrder struct {
	Code     string    `json:"code"`
	Status   string    `json:"status"`
	PlacedAt time.Time `json:"placed_at"`
	Total    struct {
		Order    decimal.Decimal `json:"order"`
		Freight  decimal.Decimal `json:"freight"`
		Discount decimal.Decimal `json:"discount"`
	} `json:"total"`
	Deliveries []struct {
		Items []struct {
			Quantity int `json:"quantity"`
		} `json:"items"`
	} `json:"deliveries"`
}

func (o *magaluOrder) unitCount() int {
	n := 0
	for _, d := range o.Deliveries {
		for _, it := range d.Items {
			q := it.Quantity
			if q <= 0 {
				q = 1
			}
			n += q
		}
	}
	return n
}

// MagaluAdapter looks orders up through the Magalu seller API
type MagaluAdapter struct {
	config *MagaluConfig
	client *apiClient
}

// NewMagaluAdapter creates a new Magalu adapter
func NewMagaluAdapter(config *MagaluConfig, logger *zap.Logger) (*MagaluAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &MagaluAdapter{
		config: config,
		client: newAPIClient(marketplace.Magalu, config.ClientConfig, logger),
	}, nil
}

// Marketplace returns the marketplace this adapter handles
func (a *MagaluAdapter) Marketplace() marketplace.Marketplace {
	return marketplace.Magalu
}

// LookupOrder fetches an order by its code. The caller passes the native
// code, without the LU- prefix the ERP stores.
func (a *MagaluAdapter) LookupOrder(ctx context.Context, orderID string) (*marketplace.OrderSnapshot, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "magalu_adapter", "lookup_order",
		telemetry.WithAttribute("marketplace_order_id", orderID))
	defer span.End()

	req, err := http.NewRequest(http.MethodGet, a.config.BaseURL+"/seller/v1/orders/"+url.PathEscape(orderID), nil)
	if err != nil {
		return nil, fmt.Errorf("magalu: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.config.AccessToken)
	req.Header.Set("Accept", "application/json")

	body, err := a.client.do(ctx, req)
	if err != nil {
		if !errors.Is(err, marketplace.ErrOrderNotFound) {
			telemetry.RecordError(span, err)
		}
		return nil, err
	}

	var order magaluOrder
	if err := json.Unmarshal(body, &order); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("%w: magalu: failed to parse response: %v", marketplace.ErrLookupUnavailable, err)
	}
	return &marketplace.OrderSnapshot{
		Marketplace:  marketplace.Magalu,
		OrderID:      orderID,
		Status:       order.Status,
		TotalAmount:  order.Total.Order,
		UnitCount:    order.unitCount(),
		FreeShipping: order.Total.Freight.IsZero(),
		CreatedAt:    order.PlacedAt.UTC(),
	}, nil
}

var _ marketplace.OrderLookup = (*MagaluAdapter)(nil)
