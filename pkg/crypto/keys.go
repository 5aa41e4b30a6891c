package crypto

import (
	"encoding/hex"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// PublicKey is a curve-tagged public key. The only implementations are
// Secp256k1PublicKey and Ed25519PublicKey.
type PublicKey interface {
	Curve() Curve
	// Bytes returns the raw key exactly as it enters address derivation.
	Bytes() []byte
	Hex() string

	isPublicKey()
}

// Secp256k1PublicKey holds a compressed SEC1 point.
type Secp256k1PublicKey [Secp256k1PublicKeyLength]byte

func (Secp256k1PublicKey) Curve() Curve     { return Secp256k1 }
func (k Secp256k1PublicKey) Bytes() []byte  { return k[:] }
func (k Secp256k1PublicKey) Hex() string    { return "0x" + hex.EncodeToString(k[:]) }
func (Secp256k1PublicKey) isPublicKey()     {}
func (k Secp256k1PublicKey) String() string { return k.Hex() }

// Uncompressed returns the 65-byte 0x04 || X || Y form.
func (k Secp256k1PublicKey) Uncompressed() ([]byte, error) {
	pub, err := ethcrypto.DecompressPubkey(k[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyFormat, err)
	}
	return ethcrypto.FromECDSAPub(pub), nil
}

// Ed25519PublicKey holds the 32-byte encoded point.
type Ed25519PublicKey [Ed25519PublicKeyLength]byte

func (Ed25519PublicKey) Curve() Curve     { return Ed25519 }
func (k Ed25519PublicKey) Bytes() []byte  { return k[:] }
func (k Ed25519PublicKey) Hex() string    { return "0x" + hex.EncodeToString(k[:]) }
func (Ed25519PublicKey) isPublicKey()     {}
func (k Ed25519PublicKey) String() string { return k.Hex() }

// ParsePublicKey validates raw key bytes for a curve.
// secp256k1 accepts the 33-byte compressed or 65-byte uncompressed encoding and
// always normalizes to compressed.
func ParsePublicKey(curve Curve, b []byte) (PublicKey, error) {
	switch curve {
	case Secp256k1:
		switch len(b) {
		case Secp256k1PublicKeyLength:
			if _, err := ethcrypto.DecompressPubkey(b); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrKeyFormat, err)
			}
			var k Secp256k1PublicKey
			copy(k[:], b)
			return k, nil
		case 65:
			pub, err := ethcrypto.UnmarshalPubkey(b)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrKeyFormat, err)
			}
			var k Secp256k1PublicKey
			copy(k[:], ethcrypto.CompressPubkey(pub))
			return k, nil
		default:
			return nil, fmt.Errorf("%w: secp256k1 public key must be 33 or 65 bytes, got %d", ErrKeyFormat, len(b))
		}

	case Ed25519:
		if len(b) != Ed25519PublicKeyLength {
			return nil, fmt.Errorf("%w: ed25519 public key must be %d bytes, got %d", ErrKeyFormat, Ed25519PublicKeyLength, len(b))
		}
		var k Ed25519PublicKey
		copy(k[:], b)
		return k, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurve, curve)
	}
}

// ParsePublicKeyHex is ParsePublicKey for 0x-prefixed or bare hex.
func ParsePublicKeyHex(curve Curve, s string) (PublicKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyFormat, err)
	}
	return ParsePublicKey(curve, raw)
}
