// Package ecommerce holds the marketplace order lookup adapters used by the
// linking resolver to confirm that a marketplace order exists.
package ecommerce

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/erp/reconciler/internal/domain/marketplace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxResponseSize is the maximum allowed response size from a marketplace API (10MB)
const maxResponseSize = 10 * 1024 * 1024

// ClientConfig holds the settings every adapter shares
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
	// RequestsPerSecond paces calls; zero disables pacing
	RequestsPerSecond float64
}

func (c ClientConfig) withDefaults(baseURL string) ClientConfig {
	if c.BaseURL == "" {
		c.BaseURL = baseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	return c
}

// apiClient is the paced HTTP transport shared by the adapters
type apiClient struct {
	name       marketplace.Marketplace
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

func newAPIClient(name marketplace.Marketplace, cfg ClientConfig, logger *zap.Logger) *apiClient {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &apiClient{
		name:       name,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		logger:     logger,
	}
}

// do waits for the limiter, sends req and returns the body of a 2xx
// response. 404 maps to ErrOrderNotFound; any other failure is
// ErrLookupUnavailable so the resolver retries later.
func (c *apiClient) do(ctx context.Context, req *http.Request) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s rate limiter: %v", marketplace.ErrLookupUnavailable, c.name, err)
	}

	resp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", marketplace.ErrLookupUnavailable, c.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: failed to read response: %v", marketplace.ErrLookupUnavailable, c.name, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, marketplace.ErrOrderNotFound
	case resp.StatusCode >= 400:
		c.logger.Debug("Marketplace API error",
			zap.String("marketplace", string(c.name)),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", truncate(body, 512)))
		return nil, fmt.Errorf("%w: %s: HTTP %d", marketplace.ErrLookupUnavailable, c.name, resp.StatusCode)
	}
	return body, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
