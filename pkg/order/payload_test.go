package order

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/perpsigner/pkg/crypto"
)

func TestPayloadUsesIntegerStrings(t *testing.T) {
	kp := mustKey(t, crypto.Secp256k1, testSecpKey)
	p := ToPayload(goldenOrder(t, kp.Address()))

	assert.Equal(t, "100000000000", p.Price)
	assert.Equal(t, "1000000000", p.Quantity)
	assert.Equal(t, "0", p.TriggerPrice)
	assert.Equal(t, "1767225600000", p.Expiration)
	assert.Equal(t, kp.Address().Hex(), p.Maker)
}

func TestSignedOrderSerializeRoundTrip(t *testing.T) {
	kp := mustKey(t, crypto.Ed25519, testEdSeed)
	signed, err := Sign(context.Background(), goldenOrder(t, kp.Address()), kp)
	require.NoError(t, err)

	data, err := signed.Serialize()
	require.NoError(t, err)
	assert.Contains(t, string(data), goldenEdHash)

	back, err := Deserialize(data)
	require.NoError(t, err)
	assert.True(t, signed.Order.Equal(back.Order))
	assert.Equal(t, signed.TypedSignature, back.TypedSignature)

	valid, err := back.Verify(kp.PublicKey())
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestSignedPayloadHashIgnoresCase(t *testing.T) {
	kp := mustKey(t, crypto.Secp256k1, testSecpKey)
	signed, err := Sign(context.Background(), goldenOrder(t, kp.Address()), kp)
	require.NoError(t, err)

	p, err := ToSignedPayload(signed)
	require.NoError(t, err)
	p.Hash = "0x" + strings.ToUpper(strings.TrimPrefix(p.Hash, "0x"))

	parsed, err := p.ToSignedOrder()
	require.NoError(t, err)
	assert.True(t, parsed.Order.Equal(signed.Order))

	p.Hash = "0xnothex"
	_, err = p.ToSignedOrder()
	require.ErrorIs(t, err, ErrHashFormat)
}

func TestSignedPayloadHashMismatch(t *testing.T) {
	kp := mustKey(t, crypto.Secp256k1, testSecpKey)
	signed, err := Sign(context.Background(), goldenOrder(t, kp.Address()), kp)
	require.NoError(t, err)

	p, err := ToSignedPayload(signed)
	require.NoError(t, err)
	p.Order.Price = "101000000000"

	_, err = p.ToSignedOrder()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash mismatch")

	// Without a hash the payload parses; the signature simply no longer verifies.
	p.Hash = ""
	parsed, err := p.ToSignedOrder()
	require.NoError(t, err)
	valid, err := parsed.Verify(kp.PublicKey())
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestPayloadRejectsBadNumbers(t *testing.T) {
	base := ToPayload(goldenOrder(t, crypto.MustHexToAddress("0x1")))

	for _, bad := range []string{"-1", "1.5", "abc"} {
		p := base
		p.Price = bad
		_, err := p.ToOrder()
		assert.Error(t, err, bad)
	}

	p := base
	p.Maker = "0x" + strings.Repeat("ab", 33)
	_, err := p.ToOrder()
	assert.Error(t, err)
}

func TestDeserializeGarbage(t *testing.T) {
	_, err := Deserialize([]byte("{not json"))
	require.Error(t, err)

	data, err := json.Marshal(SignedPayload{Order: ToPayload(goldenOrder(t, crypto.MustHexToAddress("0x1"))), TypedSignature: "0x01"})
	require.NoError(t, err)
	_, err = Deserialize(data)
	require.Error(t, err)
}
