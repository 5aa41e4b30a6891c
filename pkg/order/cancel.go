package order

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/uhyunpark/perpsigner/pkg/crypto"
)

var ErrHashFormat = errors.New("malformed hash")

// MaxCancelHashes bounds one cancellation so its count fits the u16 prefix.
const MaxCancelHashes = 1<<16 - 1

// Cancellation asks the contract to mark a maker's orders, identified by hash,
// as no longer fillable.
type Cancellation struct {
	Market      Address
	Maker       Address
	OrderHashes []Hash
}

// SignedCancellation is a Cancellation plus the maker's typed signature.
type SignedCancellation struct {
	Cancellation   Cancellation
	TypedSignature crypto.TypedSignature
}

// EncodeCancellation lays out market || maker || count (u16 BE) || hashes.
// Its length is 66 + 32n, which never equals an order's 161 bytes.
func EncodeCancellation(c Cancellation) ([]byte, error) {
	if len(c.OrderHashes) == 0 {
		return nil, fmt.Errorf("%w: cancellation without order hashes", ErrInvalidOrder)
	}
	if len(c.OrderHashes) > MaxCancelHashes {
		return nil, fmt.Errorf("%w: %d hashes, max %d", ErrFieldOverflow, len(c.OrderHashes), MaxCancelHashes)
	}

	buf := make([]byte, 0, 2*crypto.AddressLength+2+32*len(c.OrderHashes))
	buf = append(buf, c.Market[:]...)
	buf = append(buf, c.Maker[:]...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(c.OrderHashes)))
	for _, h := range c.OrderHashes {
		buf = append(buf, h[:]...)
	}
	return buf, nil
}

// HashCancellation returns keccak256(EncodeCancellation(c)).
func HashCancellation(c Cancellation) (Hash, error) {
	enc, err := EncodeCancellation(c)
	if err != nil {
		return Hash{}, err
	}
	return Hash(ethcrypto.Keccak256Hash(enc)), nil
}

// SignCancellation signs a cancellation the same way orders are signed.
func SignCancellation(ctx context.Context, c Cancellation, signer crypto.Signer) (SignedCancellation, error) {
	hash, err := HashCancellation(c)
	if err != nil {
		return SignedCancellation{}, fmt.Errorf("failed to hash cancellation: %w", err)
	}
	sig, err := signer.Sign(ctx, hash[:])
	if err != nil {
		return SignedCancellation{}, fmt.Errorf("failed to sign cancellation: %w", err)
	}
	typed, err := crypto.NewTypedSignature(sig, signer.Curve())
	if err != nil {
		return SignedCancellation{}, err
	}
	return SignedCancellation{Cancellation: c, TypedSignature: typed}, nil
}

// VerifyCancellation has the same result contract as Verify.
func VerifyCancellation(c Cancellation, sig crypto.TypedSignature, pub crypto.PublicKey) (bool, error) {
	raw, curve, err := sig.Split()
	if err != nil {
		return false, err
	}
	if pub == nil {
		return false, fmt.Errorf("%w: nil public key", crypto.ErrKeyFormat)
	}
	if curve != pub.Curve() {
		return false, fmt.Errorf("%w: signature %s, key %s", ErrCurveMismatch, curve, pub.Curve())
	}
	hash, err := HashCancellation(c)
	if err != nil {
		return false, fmt.Errorf("failed to hash cancellation: %w", err)
	}
	return crypto.Verify(pub, hash[:], raw)
}

// CancelPayload is a SignedCancellation on the wire.
type CancelPayload struct {
	Market         string   `json:"market"`
	Maker          string   `json:"maker"`
	OrderHashes    []string `json:"orderHashes"`
	TypedSignature string   `json:"typedSignature"`
}

// ToCancelPayload converts a signed cancellation to its wire form.
func ToCancelPayload(s SignedCancellation) CancelPayload {
	hashes := make([]string, len(s.Cancellation.OrderHashes))
	for i, h := range s.Cancellation.OrderHashes {
		hashes[i] = h.Hex()
	}
	return CancelPayload{
		Market:         s.Cancellation.Market.Hex(),
		Maker:          s.Cancellation.Maker.Hex(),
		OrderHashes:    hashes,
		TypedSignature: s.TypedSignature.Hex(),
	}
}

// ParseHash decodes a 0x-prefixed 32-byte hash.
func ParseHash(s string) (Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return Hash{}, fmt.Errorf("%w: %v", ErrHashFormat, err)
	}
	if len(b) != len(Hash{}) {
		return Hash{}, fmt.Errorf("%w: want 32 bytes, got %d", ErrHashFormat, len(b))
	}
	return Hash(b), nil
}
