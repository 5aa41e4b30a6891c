package crypto

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnsupportedCurve = errors.New("unsupported curve")
	ErrKeyFormat        = errors.New("malformed key")
	ErrSignatureFormat  = errors.New("malformed signature")
	ErrAddressFormat    = errors.New("malformed address")
)

// Curve identifies a signature scheme. The numeric value is the tag byte used
// both in address derivation and as the trailer of a typed signature, so it
// must never change.
type Curve uint8

const (
	Ed25519   Curve = 0x00
	Secp256k1 Curve = 0x01
)

// Signature and key widths per curve
const (
	Secp256k1SignatureLength = 65 // [R || S || V]
	Ed25519SignatureLength   = 64
	Secp256k1PublicKeyLength = 33 // compressed
	Ed25519PublicKeyLength   = 32
	DigestLength             = 32
)

// Curves lists every supported curve in tag order.
var Curves = []Curve{Ed25519, Secp256k1}

func (c Curve) String() string {
	switch c {
	case Ed25519:
		return "ed25519"
	case Secp256k1:
		return "secp256k1"
	default:
		return fmt.Sprintf("curve(0x%02x)", uint8(c))
	}
}

// Tag returns the single byte that identifies the curve on the wire.
func (c Curve) Tag() byte { return byte(c) }

// Valid reports whether c is one of the supported curves.
func (c Curve) Valid() bool {
	return c == Ed25519 || c == Secp256k1
}

// SignatureLength returns the raw (untagged) signature width for the curve.
func (c Curve) SignatureLength() (int, error) {
	switch c {
	case Ed25519:
		return Ed25519SignatureLength, nil
	case Secp256k1:
		return Secp256k1SignatureLength, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedCurve, c)
	}
}

// CurveFromTag maps a wire tag back to its curve.
func CurveFromTag(tag byte) (Curve, error) {
	c := Curve(tag)
	if !c.Valid() {
		return 0, fmt.Errorf("%w: tag 0x%02x", ErrUnsupportedCurve, tag)
	}
	return c, nil
}

// ParseCurve accepts the curve names used in config and API payloads.
func ParseCurve(name string) (Curve, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "ed25519":
		return Ed25519, nil
	case "secp256k1", "secp", "ecdsa":
		return Secp256k1, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedCurve, name)
	}
}

// MarshalText encodes the curve by name.
func (c Curve) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurve, c)
	}
	return []byte(c.String()), nil
}

// UnmarshalText decodes a curve name.
func (c *Curve) UnmarshalText(b []byte) error {
	parsed, err := ParseCurve(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
