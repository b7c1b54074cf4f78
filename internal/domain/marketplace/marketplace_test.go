package marketplace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarketplace_IsValid(t *testing.T) {
	assert.True(t, Shopee.IsValid())
	assert.True(t, MercadoLivre.IsValid())
	assert.True(t, Magalu.IsValid())
	assert.False(t, Marketplace("amazon").IsValid())
	assert.False(t, Marketplace("").IsValid())
}

func TestDetectFromChannel(t *testing.T) {
	tests := []struct {
		channel string
		want    Marketplace
		ok      bool
	}{
		{"Shopee", Shopee, true},
		{"SHOPEE BR", Shopee, true},
		{"Mercado Livre", MercadoLivre, true},
		{"meli full", MercadoLivre, true},
		{"Magazine Luiza", Magalu, true},
		{"magalu", Magalu, true},
		{"Loja própria", "", false},
		{"", "", false},
		{"   ", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.channel, func(t *testing.T) {
			got, ok := DetectFromChannel(tt.channel)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseMarketplace(t *testing.T) {
	m, err := ParseMarketplace("mercado_livre")
	require.NoError(t, err)
	assert.Equal(t, MercadoLivre, m)

	m, err = ParseMarketplace("Mercado Livre")
	require.NoError(t, err)
	assert.Equal(t, MercadoLivre, m)

	_, err = ParseMarketplace("ebay")
	assert.ErrorIs(t, err, ErrUnknownMarketplace)
}

func TestCanonicalChannel(t *testing.T) {
	assert.Equal(t, OtherChannel, CanonicalChannel(""))
	assert.Equal(t, "Shopee", CanonicalChannel("shopee"))
	assert.Equal(t, "Mercado Livre", CanonicalChannel("MercadoLivre"))
	assert.Equal(t, "Magalu", CanonicalChannel("Magazine Luiza"))
	assert.Equal(t, "Amazon", CanonicalChannel("amazon.com.br"))
	assert.Equal(t, "Loja própria", CanonicalChannel("Site"))
	assert.Equal(t, "Balcão", CanonicalChannel("Balcão"))
}

func TestStaticRegistry(t *testing.T) {
	r := NewStaticRegistry(fakeLookup{m: Shopee})

	l, err := r.Lookup(Shopee)
	require.NoError(t, err)
	assert.Equal(t, Shopee, l.Marketplace())

	_, err = r.Lookup(Magalu)
	assert.ErrorIs(t, err, ErrUnknownMarketplace)
}
