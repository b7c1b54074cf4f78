// Package erp is the HTTP client of the ERP order API (v3 public API).
package erp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/erp/reconciler/internal/domain/erporder"
	"github.com/erp/reconciler/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// maxResponseSize caps a single listing body (10MB)
const maxResponseSize = 10 * 1024 * 1024

// Client lists ERP orders. It implements erporder.Source.
type Client struct {
	cfg        Config
	httpClient *http.Client
	location   *time.Location
	logger     *zap.Logger
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the authenticated HTTP client, mostly for tests
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithLocation sets the zone of the ERP's naive timestamps (default UTC)
func WithLocation(loc *time.Location) Option {
	return func(cl *Client) { cl.location = loc }
}

// WithLogger sets the client logger
func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// NewClient builds a client whose requests carry a bearer token obtained
// with the refresh-token grant and renewed before it expires
func NewClient(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		cfg:      cfg,
		location: time.UTC,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &oauth2.Transport{
				Source: NewTokenSource(ctx, cfg),
				Base:   http.DefaultTransport,
			},
		}
	}
	return c, nil
}

// NewTokenSource returns a caching token source for the ERP's OAuth2 server.
// Rotated refresh tokens returned by the server are picked up automatically.
func NewTokenSource(ctx context.Context, cfg Config) oauth2.TokenSource {
	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	// the token endpoint gets its own timeout independent of the caller's context
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: cfg.Timeout})
	return oauth2.ReuseTokenSource(nil, oc.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken}))
}

// ListOrdersByPeriod fetches one page of orders created in [From, To]
func (c *Client) ListOrdersByPeriod(ctx context.Context, req erporder.ListRequest) (*erporder.ListPage, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "erp_client", "list_orders",
		telemetry.WithAttribute("offset", req.Offset),
		telemetry.WithAttribute("limit", req.Limit),
	)
	defer span.End()

	sort := req.Sort
	if sort == "" {
		sort = erporder.SortDesc
	}
	q := url.Values{}
	q.Set("dataInicial", req.From.Format(time.DateOnly))
	q.Set("dataFinal", req.To.Format(time.DateOnly))
	q.Set("limit", strconv.Itoa(req.Limit))
	q.Set("offset", strconv.Itoa(req.Offset))
	q.Set("orderBy", string(sort))
	if f := c.cfg.fields(); f != "" {
		q.Set("fields", f)
	}

	body, err := c.get(ctx, "/pedidos", q)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	var resp listOrdersResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		err = fmt.Errorf("%w: decode order listing: %v", erporder.ErrInvalidResponse, err)
		telemetry.RecordError(span, err)
		return nil, err
	}

	page := &erporder.ListPage{
		Items: make([]erporder.RemoteOrder, 0, len(resp.Items)),
		Total: resp.total(),
	}
	for _, raw := range resp.Items {
		page.Items = append(page.Items, toRemote(raw, c.location))
	}
	telemetry.SetAttribute(span, "items", len(page.Items))
	return page, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	u := c.cfg.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("erp: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", erporder.ErrSourceUnavailable, err)
	}

	if err := classifyStatus(resp, body); err != nil {
		c.logger.Warn("ERP request failed",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.Error(err))
		return nil, err
	}
	return body, nil
}

// apiError is the error body the ERP returns on 4xx
type apiError struct {
	Code    string `json:"code"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (e apiError) text() string {
	for _, s := range []string{e.Message, e.Error, e.Code} {
		if s != "" {
			return s
		}
	}
	return ""
}

// classifyStatus maps HTTP failures to the source errors the sync engine
// distinguishes: retryable (rate limit, unavailable) or fatal.
func classifyStatus(resp *http.Response, body []byte) error {
	if resp.StatusCode < 300 {
		return nil
	}
	var ae apiError
	_ = json.Unmarshal(body, &ae)
	detail := ae.text()
	if detail == "" {
		detail = strings.TrimSpace(string(body))
		if len(detail) > 200 {
			detail = detail[:200]
		}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: retry after %q", erporder.ErrRateLimited, resp.Header.Get("Retry-After"))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d: %s", erporder.ErrUnauthorized, resp.StatusCode, detail)
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", erporder.ErrSourceUnavailable, resp.StatusCode, detail)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", erporder.ErrInvalidResponse, resp.StatusCode, detail)
	}
}

func classifyTransportError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.Response != nil && re.Response.StatusCode >= 500 {
			return fmt.Errorf("%w: token endpoint: %v", erporder.ErrSourceUnavailable, err)
		}
		return fmt.Errorf("%w: token refresh: %v", erporder.ErrUnauthorized, err)
	}
	// a caller that gave up is not an outage
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", erporder.ErrSourceUnavailable, err)
}

var _ erporder.Source = (*Client)(nil)
