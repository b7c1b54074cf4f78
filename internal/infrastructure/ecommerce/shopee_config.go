package ecommerce

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
)

// ShopeeConfig holds configuration for the Shopee Open Platform v2 API
type ShopeeConfig struct {
	ClientConfig
	// PartnerID is the application id issued by the open platform
	PartnerID int64
	// PartnerKey signs every request
	PartnerKey string
	// ShopID is the seller shop the access token was granted for
	ShopID int64
	// AccessToken is the shop-level access token
	AccessToken string
}

// ShopeeProductionAPIURL is the production API endpoint
const ShopeeProductionAPIURL = "https://partner.shopeemobile.com"

// Errors for Shopee configuration
var (
	ErrShopeeConfigMissingPartnerID   = errors.New("shopee: partner id is required")
	ErrShopeeConfigMissingPartnerKey  = errors.New("shopee: partner key is required")
	ErrShopeeConfigMissingShopID      = errors.New("shopee: shop id is required")
	ErrShopeeConfigMissingAccessToken = errors.New("shopee: access token is required")
)

// Validate validates the Shopee configuration and fills defaults
func (c *ShopeeConfig) Validate() error {
	if c.PartnerID <= 0 {
		return ErrShopeeConfigMissingPartnerID
	}
	if c.PartnerKey == "" {
		return ErrShopeeConfigMissingPartnerKey
	}
	if c.ShopID <= 0 {
		return ErrShopeeConfigMissingShopID
	}
	if c.AccessToken == "" {
		return ErrShopeeConfigMissingAccessToken
	}
	c.ClientConfig = c.ClientConfig.withDefaults(ShopeeProductionAPIURL)
	return nil
}

// Sign computes the shop-level request signature: the lowercase hex
// HMAC-SHA256, keyed by the partner key, of
// partner_id + api path + timestamp + access_token + shop_id
func (c *ShopeeConfig) Sign(path string, timestamp int64) string {
	base := strconv.FormatInt(c.PartnerID, 10) + path + strconv.FormatInt(timestamp, 10) +
		c.AccessToken + strconv.FormatInt(c.ShopID, 10)
	h := hmac.New(sha256.New, []byte(c.PartnerKey))
	h.Write([]byte(base))
	return hex.EncodeToString(h.Sum(nil))
}
