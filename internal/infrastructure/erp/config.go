package erp

import (
	"errors"
	"strings"
	"time"
)

// Config errors
var (
	ErrConfigMissingBaseURL      = errors.New("erp: base URL is required")
	ErrConfigMissingTokenURL     = errors.New("erp: token URL is required")
	ErrConfigMissingClientID     = errors.New("erp: client id is required")
	ErrConfigMissingClientSecret = errors.New("erp: client secret is required")
	ErrConfigMissingRefreshToken = errors.New("erp: refresh token is required")
)

// DefaultFields are the optional value fields requested on every listing.
// Without them the ERP omits freight and the lite payload cannot be told
// apart from a zero freight order.
const DefaultFields = "valorFrete,valorTotalPedido,valorTotalProdutos,valorDesconto,valorOutrasDespesas,transportador"

// Config holds the ERP API endpoint and OAuth2 client
type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	RefreshToken string
	Timeout      time.Duration
	// Fields overrides DefaultFields; "-" requests the lite payload
	Fields string
}

// Validate checks required fields and fills defaults
func (c *Config) Validate() error {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	switch {
	case c.BaseURL == "":
		return ErrConfigMissingBaseURL
	case c.TokenURL == "":
		return ErrConfigMissingTokenURL
	case c.ClientID == "":
		return ErrConfigMissingClientID
	case c.ClientSecret == "":
		return ErrConfigMissingClientSecret
	case c.RefreshToken == "":
		return ErrConfigMissingRefreshToken
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Fields == "" {
		c.Fields = DefaultFields
	}
	return nil
}

func (c *Config) fields() string {
	if c.Fields == "-" {
		return ""
	}
	return c.Fields
}
