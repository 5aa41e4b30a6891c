package order

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"

	pcrypto "github.com/uhyunpark/perpsigner/pkg/crypto"
)

// Canonical layout. Any change here is a protocol break that needs a
// coordinated contract upgrade.
//
//	offset  field          width
//	0       market         32
//	32      maker          32
//	64      flags          1   bit0 isBuy, bit1 reduceOnly
//	65      price          16  big-endian u128
//	81      quantity       16
//	97      leverage       16
//	113     triggerPrice   16
//	129     expiration     16
//	145     salt           16
const (
	IntWidth      = 16
	EncodedLength = 2*pcrypto.AddressLength + 1 + 6*IntWidth

	flagIsBuy      byte = 1 << 0
	flagReduceOnly byte = 1 << 1
)

var ErrFieldOverflow = errors.New("field does not fit its encoded width")

var maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// Hash is the Keccak-256 digest of an order's canonical encoding.
type Hash [32]byte

func (h Hash) Bytes() []byte  { return h[:] }
func (h Hash) Hex() string    { return fmt.Sprintf("0x%x", h[:]) }
func (h Hash) String() string { return h.Hex() }

func (h Hash) MarshalText() ([]byte, error) { return []byte(h.Hex()), nil }

// Flags packs the two booleans into the single flags byte.
func (o Order) Flags() byte {
	var f byte
	if o.IsBuy {
		f |= flagIsBuy
	}
	if o.ReduceOnly {
		f |= flagReduceOnly
	}
	return f
}

// Encode serializes the order into its fixed 161-byte layout. A numeric field
// that is negative or wider than 128 bits is an error; nothing is truncated.
func Encode(o Order) ([]byte, error) {
	buf := make([]byte, 0, EncodedLength)
	buf = append(buf, o.Market[:]...)
	buf = append(buf, o.Maker[:]...)
	buf = append(buf, o.Flags())

	fields := []struct {
		name string
		v    *big.Int
	}{
		{"price", o.Price},
		{"quantity", o.Quantity},
		{"leverage", o.Leverage},
		{"triggerPrice", o.TriggerPrice},
		{"expiration", o.Expiration},
		{"salt", o.Salt},
	}
	for _, f := range fields {
		b, err := encodeUint128(f.v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
		buf = append(buf, b...)
	}
	return buf, nil
}

// HashOrder returns keccak256(Encode(o)), the digest every signer signs.
func HashOrder(o Order) (Hash, error) {
	enc, err := Encode(o)
	if err != nil {
		return Hash{}, err
	}
	return Hash(crypto.Keccak256Hash(enc)), nil
}

// MustHash is HashOrder for orders already known to encode.
func MustHash(o Order) Hash {
	h, err := HashOrder(o)
	if err != nil {
		panic(err)
	}
	return h
}

func encodeUint128(v *big.Int) ([]byte, error) {
	if v == nil {
		return make([]byte, IntWidth), nil
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative value %s", ErrFieldOverflow, v)
	}
	if v.Cmp(maxUint128) > 0 {
		return nil, fmt.Errorf("%w: %s exceeds 128 bits", ErrFieldOverflow, v)
	}
	return math.PaddedBigBytes(v, IntWidth), nil
}

func decodeUint128(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}

// Decode parses a canonical encoding back into an order.
func Decode(b []byte) (Order, error) {
	if len(b) != EncodedLength {
		return Order{}, fmt.Errorf("encoded order must be %d bytes, got %d", EncodedLength, len(b))
	}
	flags := b[64]
	if flags&^(flagIsBuy|flagReduceOnly) != 0 {
		return Order{}, fmt.Errorf("unknown flag bits 0x%02x", flags)
	}

	var o Order
	copy(o.Market[:], b[0:32])
	copy(o.Maker[:], b[32:64])
	o.IsBuy = flags&flagIsBuy != 0
	o.ReduceOnly = flags&flagReduceOnly != 0

	off := 65
	for _, dst := range []**big.Int{&o.Price, &o.Quantity, &o.Leverage, &o.TriggerPrice, &o.Expiration, &o.Salt} {
		*dst = decodeUint128(b[off : off+IntWidth])
		off += IntWidth
	}
	return o, nil
}
