package crypto

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// TypedSignature is a raw signature followed by one curve tag byte:
// 66 bytes for secp256k1, 65 bytes for ed25519.
type TypedSignature []byte

// NewTypedSignature appends the curve tag after checking the raw width.
func NewTypedSignature(signature []byte, curve Curve) (TypedSignature, error) {
	want, err := curve.SignatureLength()
	if err != nil {
		return nil, err
	}
	if len(signature) != want {
		return nil, fmt.Errorf("%w: %s signature must be %d bytes, got %d", ErrSignatureFormat, curve, want, len(signature))
	}
	if curve == Secp256k1 {
		if err := checkRecoveryID(signature); err != nil {
			return nil, err
		}
	}
	out := make(TypedSignature, 0, want+1)
	out = append(out, signature...)
	return append(out, curve.Tag()), nil
}

// Split separates the raw signature from its curve and validates the width.
func (t TypedSignature) Split() ([]byte, Curve, error) {
	if len(t) == 0 {
		return nil, 0, fmt.Errorf("%w: empty signature", ErrSignatureFormat)
	}
	curve, err := CurveFromTag(t[len(t)-1])
	if err != nil {
		return nil, 0, err
	}
	sig := t[:len(t)-1]
	want, _ := curve.SignatureLength()
	if len(sig) != want {
		return nil, 0, fmt.Errorf("%w: %s signature must be %d bytes, got %d", ErrSignatureFormat, curve, want, len(sig))
	}
	if curve == Secp256k1 {
		if err := checkRecoveryID(sig); err != nil {
			return nil, 0, err
		}
	}
	return sig, curve, nil
}

// Curve returns the curve named by the trailer, without validating length.
func (t TypedSignature) Curve() (Curve, error) {
	if len(t) == 0 {
		return 0, fmt.Errorf("%w: empty signature", ErrSignatureFormat)
	}
	return CurveFromTag(t[len(t)-1])
}

// Hex returns the 0x-prefixed form the settlement layer expects.
func (t TypedSignature) Hex() string { return "0x" + hex.EncodeToString(t) }

func (t TypedSignature) String() string { return t.Hex() }

func (t TypedSignature) MarshalText() ([]byte, error) { return []byte(t.Hex()), nil }

func (t *TypedSignature) UnmarshalText(b []byte) error {
	parsed, err := ParseTypedSignatureHex(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTypedSignatureHex decodes hex (with or without 0x). Only the hex itself
// is checked here; Split validates the layout.
func ParseTypedSignatureHex(s string) (TypedSignature, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid hex signature: %v", ErrSignatureFormat, err)
	}
	return TypedSignature(raw), nil
}
