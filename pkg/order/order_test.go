package order

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/perpsigner/pkg/crypto"
	"github.com/uhyunpark/perpsigner/pkg/fixedpoint"
)

// Fixtures shared by the package tests. The expected values were computed with
// an independent implementation of the same layout.
const (
	testSecpKey   = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testEdSeed    = "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"
	testMarketHex = "0x0000000000000000000000000000000000000000000000004254432d50455250" // "BTC-PERP"
	testExpiryMs  = 1767225600000
)

func mustKey(t *testing.T, curve crypto.Curve, hexKey string) crypto.KeyPair {
	t.Helper()
	kp, err := crypto.FromPrivateKeyHex(curve, hexKey)
	require.NoError(t, err)
	return kp
}

// goldenOrder is price=100 quantity=1 leverage=1 isBuy=true salt=1.
func goldenOrder(t *testing.T, maker Address) Order {
	t.Helper()
	o, err := NewBuilder(fixedpoint.Default()).Build(Params{
		Market:     crypto.MustHexToAddress(testMarketHex),
		Maker:      maker,
		IsBuy:      true,
		Price:      decimal.NewFromInt(100),
		Quantity:   decimal.NewFromInt(1),
		Leverage:   decimal.NewFromInt(1),
		Expiration: testExpiryMs,
		Salt:       big.NewInt(1),
	})
	require.NoError(t, err)
	return o
}

func TestBuilderScalesFields(t *testing.T) {
	kp := mustKey(t, crypto.Secp256k1, testSecpKey)
	o := goldenOrder(t, kp.Address())

	require.Equal(t, "100000000000", o.Price.String())
	require.Equal(t, "1000000000", o.Quantity.String())
	require.Equal(t, "1000000000", o.Leverage.String())
	require.Equal(t, "0", o.TriggerPrice.String())
	require.Equal(t, "1767225600000", o.Expiration.String())
	require.Equal(t, "1", o.Salt.String())
}

func TestBuilderRejectsExcessPrecision(t *testing.T) {
	b := NewBuilder(fixedpoint.Default())
	_, err := b.Build(Params{
		Market:   crypto.MustHexToAddress(testMarketHex),
		Maker:    crypto.MustHexToAddress("0x1"),
		Price:    decimal.RequireFromString("100.0000000001"),
		Quantity: decimal.NewFromInt(1),
		Leverage: decimal.NewFromInt(1),
	})
	require.ErrorIs(t, err, fixedpoint.ErrPrecision)
}

func TestBuilderValidates(t *testing.T) {
	b := NewBuilder(fixedpoint.Default())
	base := Params{
		Market:   crypto.MustHexToAddress(testMarketHex),
		Maker:    crypto.MustHexToAddress("0x1"),
		Price:    decimal.NewFromInt(1),
		Quantity: decimal.NewFromInt(1),
		Leverage: decimal.NewFromInt(1),
	}

	tests := []struct {
		name   string
		mutate func(p *Params)
	}{
		{"zero quantity", func(p *Params) { p.Quantity = decimal.Zero }},
		{"zero leverage", func(p *Params) { p.Leverage = decimal.Zero }},
		{"missing market", func(p *Params) { p.Market = Address{} }},
		{"missing maker", func(p *Params) { p.Maker = Address{} }},
		{"negative expiration", func(p *Params) { p.Expiration = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)
			_, err := b.Build(p)
			require.ErrorIs(t, err, ErrInvalidOrder)
		})
	}

	// nil salt draws a random one
	o, err := b.Build(base)
	require.NoError(t, err)
	require.NotNil(t, o.Salt)
}

func TestWithHelpersCopy(t *testing.T) {
	o := goldenOrder(t, crypto.MustHexToAddress("0x1"))
	salt := big.NewInt(7)

	o2 := o.WithSalt(salt)
	salt.SetInt64(8)

	require.Equal(t, "1", o.Salt.String())
	require.Equal(t, "7", o2.Salt.String())
	require.False(t, o.Equal(o2))
	require.True(t, o.Equal(o.WithSalt(big.NewInt(1))))
}
