package crypto

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// AddressLength is the native on-chain address width.
const AddressLength = 32

// Address is a 32-byte chain address (accounts and market objects alike).
type Address [AddressLength]byte

// ZeroAddress is the all-zero address.
var ZeroAddress Address

// HexToAddress parses "0x..." or bare hex. Short inputs are left-padded, so
// "0x6" is the same address as its 64-character form.
func HexToAddress(s string) (Address, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return Address{}, fmt.Errorf("%w: empty", ErrAddressFormat)
	}
	if len(s) > 2*AddressLength {
		return Address{}, fmt.Errorf("%w: %d hex chars", ErrAddressFormat, len(s))
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrAddressFormat, err)
	}
	return BytesToAddress(raw), nil
}

// MustHexToAddress is HexToAddress for constants and tests.
func MustHexToAddress(s string) Address {
	addr, err := HexToAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// BytesToAddress left-pads b into an address; longer input keeps the last 32 bytes.
func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

func (a Address) Bytes() []byte { return a[:] }

// Hex returns the canonical lowercase 0x-prefixed form.
func (a Address) Hex() string { return "0x" + hex.EncodeToString(a[:]) }

func (a Address) String() string { return a.Hex() }

func (a Address) IsZero() bool { return a == ZeroAddress }

func (a Address) MarshalText() ([]byte, error) { return []byte(a.Hex()), nil }

func (a *Address) UnmarshalText(b []byte) error {
	parsed, err := HexToAddress(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// DeriveAddress computes blake2b-256(tag || publicKey). The tag byte keeps an
// ed25519 key and a secp256k1 key with colliding bytes from mapping to the
// same account.
func DeriveAddress(pub PublicKey) Address {
	raw := pub.Bytes()
	buf := make([]byte, 0, 1+len(raw))
	buf = append(buf, pub.Curve().Tag())
	buf = append(buf, raw...)
	return Address(blake2b.Sum256(buf))
}

// RecoverAddress parses a raw public key for the given curve and derives its address.
func RecoverAddress(publicKey []byte, curve Curve) (Address, error) {
	pub, err := ParsePublicKey(curve, publicKey)
	if err != nil {
		return Address{}, err
	}
	return DeriveAddress(pub), nil
}
