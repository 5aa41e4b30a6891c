package order

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/uhyunpark/perpsigner/pkg/crypto"
)

// Payload is the wire form of an order: addresses as 0x hex, numeric fields
// as decimal strings of the fixed-point integers (never human decimals).
type Payload struct {
	Market       string `json:"market"`
	Maker        string `json:"maker"`
	IsBuy        bool   `json:"isBuy"`
	ReduceOnly   bool   `json:"reduceOnly"`
	Price        string `json:"price"`        // BigInt as string
	Quantity     string `json:"quantity"`     // BigInt as string
	Leverage     string `json:"leverage"`     // BigInt as string
	TriggerPrice string `json:"triggerPrice"` // BigInt as string
	Expiration   string `json:"expiration"`   // Unix ms (0 = no expiry)
	Salt         string `json:"salt"`         // BigInt as string
}

// SignedPayload is a SignedOrder on the wire.
type SignedPayload struct {
	Order          Payload `json:"order"`
	Hash           string  `json:"hash"`
	TypedSignature string  `json:"typedSignature"` // 0x hex, curve tag last
}

// ToPayload converts an order to its wire form.
func ToPayload(o Order) Payload {
	return Payload{
		Market:       o.Market.Hex(),
		Maker:        o.Maker.Hex(),
		IsBuy:        o.IsBuy,
		ReduceOnly:   o.ReduceOnly,
		Price:        intString(o.Price),
		Quantity:     intString(o.Quantity),
		Leverage:     intString(o.Leverage),
		TriggerPrice: intString(o.TriggerPrice),
		Expiration:   intString(o.Expiration),
		Salt:         intString(o.Salt),
	}
}

// ToOrder parses a wire payload.
func (p Payload) ToOrder() (Order, error) {
	market, err := crypto.HexToAddress(p.Market)
	if err != nil {
		return Order{}, fmt.Errorf("invalid market: %w", err)
	}
	maker, err := crypto.HexToAddress(p.Maker)
	if err != nil {
		return Order{}, fmt.Errorf("invalid maker: %w", err)
	}

	o := Order{Market: market, Maker: maker, IsBuy: p.IsBuy, ReduceOnly: p.ReduceOnly}
	fields := []struct {
		name string
		in   string
		dst  **big.Int
	}{
		{"price", p.Price, &o.Price},
		{"quantity", p.Quantity, &o.Quantity},
		{"leverage", p.Leverage, &o.Leverage},
		{"triggerPrice", p.TriggerPrice, &o.TriggerPrice},
		{"expiration", p.Expiration, &o.Expiration},
		{"salt", p.Salt, &o.Salt},
	}
	for _, f := range fields {
		n, err := parseInt(f.in)
		if err != nil {
			return Order{}, fmt.Errorf("invalid %s: %w", f.name, err)
		}
		*f.dst = n
	}
	return o, nil
}

// ToSignedPayload converts a signed order to its wire form.
func ToSignedPayload(s SignedOrder) (SignedPayload, error) {
	hash, err := s.Hash()
	if err != nil {
		return SignedPayload{}, err
	}
	return SignedPayload{
		Order:          ToPayload(s.Order),
		Hash:           hash.Hex(),
		TypedSignature: s.TypedSignature.Hex(),
	}, nil
}

// ToSignedOrder parses a wire signed order. The hash field is informational
// and is checked against the recomputed hash when present.
func (p SignedPayload) ToSignedOrder() (SignedOrder, error) {
	o, err := p.Order.ToOrder()
	if err != nil {
		return SignedOrder{}, err
	}
	sig, err := crypto.ParseTypedSignatureHex(p.TypedSignature)
	if err != nil {
		return SignedOrder{}, err
	}
	if _, _, err := sig.Split(); err != nil {
		return SignedOrder{}, err
	}
	if p.Hash != "" {
		claimed, err := ParseHash(p.Hash)
		if err != nil {
			return SignedOrder{}, err
		}
		hash, err := HashOrder(o)
		if err != nil {
			return SignedOrder{}, err
		}
		if hash != claimed {
			return SignedOrder{}, fmt.Errorf("%w: hash mismatch: payload %s, computed %s", ErrInvalidOrder, p.Hash, hash.Hex())
		}
	}
	return SignedOrder{Order: o, TypedSignature: sig}, nil
}

// Serialize converts a signed order to JSON bytes.
func (s SignedOrder) Serialize() ([]byte, error) {
	p, err := ToSignedPayload(s)
	if err != nil {
		return nil, err
	}
	return json.Marshal(p)
}

// Deserialize parses JSON bytes into a SignedOrder.
func Deserialize(data []byte) (SignedOrder, error) {
	var p SignedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return SignedOrder{}, fmt.Errorf("failed to unmarshal signed order: %w", err)
	}
	return p.ToSignedOrder()
}

func intString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

func parseInt(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: not a decimal integer: %q", ErrInvalidOrder, s)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative value %s", ErrInvalidOrder, s)
	}
	return n, nil
}
