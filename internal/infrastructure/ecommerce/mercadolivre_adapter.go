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

// MercadoLivreProductionAPIURL is the production API endpoint
const MercadoLivreProductionAPIURL = "https://api.mercadolibre.com"

// ErrMercadoLivreConfigMissingAccessToken is returned for a config without a token
var ErrMercadoLivreConfigMissingAccessToken = errors.New("mercado_livre: access token is required")

// MercadoLivreConfig holds configuration for the Mercado Livre API
type MercadoLivreConfig struct {
	ClientConfig
	AccessToken string
}

// Validate validates the configuration and fills defaults
func (c *MercadoLivreConfig) Validate() error {
	if c.AccessToken == "" {
		return ErrMercadoLivreConfigMissingAccessToken
	}
	c.ClientConfig = c.ClientConfig.withDefaults(MercadoLivreProductionAPIURL)
	return nil
}

type meliOrder struct {
	ID          int64           `json:"id"`
	Status      string          `json:"status"`
	DateCreated time.Time       `json:"date_created"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	PackID      *int64          `json:"pack_id"`
	Tags        []string        `json:"tags"`
	OrderItems  []struct {
		Quantity int `json:"quantity"`
	} `json:"order_items"`
}

type meliPack struct {
	ID     int64 `json:"id"`
	Orders []struct {
		ID int64 `json:"id"`
	} `json:"orders"`
}

func (o *meliOrder) hasTag(tag string) bool {
	for _, t := range o.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// MercadoLivreAdapter looks orders up through the Mercado Livre API. ERP
// orders often carry the pack id instead of the order id, so a miss on
// /orders falls back to /packs.
type MercadoLivreAdapter struct {
	config *MercadoLivreConfig
	client *apiClient
}

// NewMercadoLivreAdapter creates a new Mercado Livre adapter
func NewMercadoLivreAdapter(config *MercadoLivreConfig, logger *zap.Logger) (*MercadoLivreAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &MercadoLivreAdapter{
		config: config,
		client: newAPIClient(marketplace.MercadoLivre, config.ClientConfig, logger),
	}, nil
}

// Marketplace returns the marketplace this adapter handles
func (a *MercadoLivreAdapter) Marketplace() marketplace.Marketplace {
	return marketplace.MercadoLivre
}

// LookupOrder fetches an order by order id or, failing that, by pack id.
// The snapshot always carries the order id.
func (a *MercadoLivreAdapter) LookupOrder(ctx context.Context, orderID string) (*marketplace.OrderSnapshot, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "mercadolivre_adapter", "lookup_order",
		telemetry.WithAttribute("marketplace_order_id", orderID))
	defer span.End()

	order, err := a.getOrder(ctx, orderID)
	if errors.Is(err, marketplace.ErrOrderNotFound) {
		telemetry.SetAttribute(span, "pack_fallback", true)
		order, err = a.getOrderByPack(ctx, orderID)
	}
	if err != nil {
		if !errors.Is(err, marketplace.ErrOrderNotFound) {
			telemetry.RecordError(span, err)
		}
		return nil, err
	}

	units := 0
	for _, it := range order.OrderItems {
		units += it.Quantity
	}
	return &marketplace.OrderSnapshot{
		Marketplace:  marketplace.MercadoLivre,
		OrderID:      fmt.Sprintf("%d", order.ID),
		Status:       order.Status,
		TotalAmount:  order.TotalAmount,
		UnitCount:    units,
		FreeShipping: order.hasTag("free_shipping"),
		CreatedAt:    order.DateCreated.UTC(),
	}, nil
}

func (a *MercadoLivreAdapter) getOrder(ctx context.Context, id string) (*meliOrder, error) {
	var order meliOrder
	if err := a.getJSON(ctx, "/orders/"+url.PathEscape(id), &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (a *MercadoLivreAdapter) getOrderByPack(ctx context.Context, packID string) (*meliOrder, error) {
	var pack meliPack
	if err := a.getJSON(ctx, "/packs/"+url.PathEscape(packID), &pack); err != nil {
		return nil, err
	}
	if len(pack.Orders) == 0 {
		return nil, marketplace.ErrOrderNotFound
	}
	return a.getOrder(ctx, fmt.Sprintf("%d", pack.Orders[0].ID))
}

func (a *MercadoLivreAdapter) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, a.config.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("mercado_livre: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.config.AccessToken)
	req.Header.Set("Accept", "application/json")

	body, err := a.client.do(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: mercado_livre: failed to parse response: %v", marketplace.ErrLookupUnavailable, err)
	}
	return nil
}

var _ marketplace.OrderLookup = (*MercadoLivreAdapter)(nil)
