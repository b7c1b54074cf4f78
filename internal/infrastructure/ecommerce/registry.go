package ecommerce

import (
	"fmt"
	"strconv"

	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/erp/reconciler/internal/infrastructure/config"
	"go.uber.org/zap"
)

// NewRegistry builds a lookup registry with one breaker-guarded adapter per
// enabled marketplace. Disabled marketplaces are absent, which the resolver
// reports as a lookup being unavailable.
func NewRegistry(cfg config.MarketplacesConfig, logger *zap.Logger) (marketplace.StaticRegistry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var lookups []marketplace.OrderLookup

	if c := cfg.Shopee; c.Enabled {
		partnerID, err := strconv.ParseInt(c.PartnerID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("shopee: invalid partner id %q: %w", c.PartnerID, err)
		}
		shopID, err := strconv.ParseInt(c.ShopID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("shopee: invalid shop id %q: %w", c.ShopID, err)
		}
		a, err := NewShopeeAdapter(&ShopeeConfig{
			ClientConfig: clientConfig(c),
			PartnerID:    partnerID,
			PartnerKey:   c.PartnerKey,
			ShopID:       shopID,
			AccessToken:  c.AccessToken,
		}, logger)
		if err != nil {
			return nil, err
		}
		lookups = append(lookups, NewBreakerLookup(a, breakerConfig(c), logger))
	}

	if c := cfg.MercadoLivre; c.Enabled {
		a, err := NewMercadoLivreAdapter(&MercadoLivreConfig{
			ClientConfig: clientConfig(c),
			AccessToken:  c.AccessToken,
		}, logger)
		if err != nil {
			return nil, err
		}
		lookups = append(lookups, NewBreakerLookup(a, breakerConfig(c), logger))
	}

	if c := cfg.Magalu; c.Enabled {
		a, err := NewMagaluAdapter(&MagaluConfig{
			ClientConfig: clientConfig(c),
			AccessToken:  c.AccessToken,
		}, logger)
		if err != nil {
			return nil, err
		}
		lookups = append(lookups, NewBreakerLookup(a, breakerConfig(c), logger))
	}

	logger.Info("Marketplace lookups configured", zap.Int("count", len(lookups)))
	return marketplace.NewStaticRegistry(lookups...), nil
}

func clientConfig(c config.MarketplaceClientConfig) ClientConfig {
	return ClientConfig{
		BaseURL:           c.BaseURL,
		Timeout:           c.Timeout,
		RequestsPerSecond: c.RequestsPerSecond,
	}
}

func breakerConfig(c config.MarketplaceClientConfig) BreakerConfig {
	cfg := DefaultBreakerConfig()
	if c.BreakerFailures > 0 {
		cfg.ConsecutiveFailures = c.BreakerFailures
	}
	if c.BreakerTimeout > 0 {
		cfg.Timeout = c.BreakerTimeout
	}
	return cfg
}
