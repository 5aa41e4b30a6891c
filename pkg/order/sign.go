package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/uhyunpark/perpsigner/pkg/crypto"
)

var ErrCurveMismatch = errors.New("signature curve does not match public key")

// SignedOrder is an order plus the maker's typed signature over its hash.
type SignedOrder struct {
	Order          Order
	TypedSignature crypto.TypedSignature
}

// Hash returns the order hash the signature covers.
func (s SignedOrder) Hash() (Hash, error) { return HashOrder(s.Order) }

// Verify checks the signature against pub.
func (s SignedOrder) Verify(pub crypto.PublicKey) (bool, error) {
	return Verify(s.Order, s.TypedSignature, pub)
}

// Sign hashes the order and signs the digest. Both curves sign the same
// 32-byte digest; the signer's curve is appended as the trailing tag.
func Sign(ctx context.Context, o Order, signer crypto.Signer) (SignedOrder, error) {
	hash, err := HashOrder(o)
	if err != nil {
		return SignedOrder{}, fmt.Errorf("failed to hash order: %w", err)
	}

	sig, err := signer.Sign(ctx, hash[:])
	if err != nil {
		return SignedOrder{}, fmt.Errorf("failed to sign order: %w", err)
	}

	typed, err := crypto.NewTypedSignature(sig, signer.Curve())
	if err != nil {
		return SignedOrder{}, err
	}

	return SignedOrder{Order: o, TypedSignature: typed}, nil
}

// Verify reports whether sig is a valid signature of o under pub.
//
// A signature that is well formed but wrong (other key, other order content)
// yields (false, nil). Malformed input returns an error: bad lengths, an
// unknown curve tag, a tag that disagrees with the key's curve, or an order
// that cannot be encoded.
func Verify(o Order, sig crypto.TypedSignature, pub crypto.PublicKey) (bool, error) {
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

	hash, err := HashOrder(o)
	if err != nil {
		return false, fmt.Errorf("failed to hash order: %w", err)
	}

	return crypto.Verify(pub, hash[:], raw)
}

// VerifyMaker is Verify plus the check the contract applies to direct
// (non-delegated) orders: the key must derive to the order's maker.
func VerifyMaker(o Order, sig crypto.TypedSignature, pub crypto.PublicKey) (bool, error) {
	valid, err := Verify(o, sig, pub)
	if err != nil || !valid {
		return valid, err
	}
	return crypto.DeriveAddress(pub) == o.Maker, nil
}

// RecoverSigner returns the address that produced a secp256k1 typed signature.
// Ed25519 signatures do not carry enough information for recovery; callers
// must supply the public key and use Verify instead.
func RecoverSigner(o Order, sig crypto.TypedSignature) (Address, error) {
	raw, curve, err := sig.Split()
	if err != nil {
		return Address{}, err
	}
	if curve != crypto.Secp256k1 {
		return Address{}, fmt.Errorf("%w: recovery needs secp256k1, got %s", crypto.ErrUnsupportedCurve, curve)
	}

	hash, err := HashOrder(o)
	if err != nil {
		return Address{}, fmt.Errorf("failed to hash order: %w", err)
	}

	pub, err := crypto.RecoverSecp256k1(hash[:], raw)
	if err != nil {
		return Address{}, err
	}
	return crypto.DeriveAddress(pub), nil
}
