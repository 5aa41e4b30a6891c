package trader

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/uhyunpark/perpsigner/pkg/crypto"
	"github.com/uhyunpark/perpsigner/pkg/order"
)

// FillPayload is the settlement form of a FillInstruction: hex signatures and
// keys, numbers as decimal strings of the fixed-point integers.
type FillPayload struct {
	MakerOrder     order.Payload `json:"makerOrder"`
	MakerSignature string        `json:"makerSignature"`
	MakerPublicKey string        `json:"makerPublicKey"`
	MakerCurve     crypto.Curve  `json:"makerCurve"`
	TakerOrder     order.Payload `json:"takerOrder"`
	TakerSignature string        `json:"takerSignature"`
	TakerPublicKey string        `json:"takerPublicKey"`
	TakerCurve     crypto.Curve  `json:"takerCurve"`
	FillQuantity   string        `json:"fillQuantity"`
	FillPrice      string        `json:"fillPrice"`
}

// Payload renders the instruction for the settlement layer.
func (f FillInstruction) Payload() FillPayload {
	p := FillPayload{
		MakerOrder:     order.ToPayload(f.MakerOrder),
		MakerSignature: f.MakerSignature.Hex(),
		TakerOrder:     order.ToPayload(f.TakerOrder),
		TakerSignature: f.TakerSignature.Hex(),
		FillQuantity:   f.FillQuantity.String(),
		FillPrice:      f.FillPrice.String(),
	}
	if f.MakerPublicKey != nil {
		p.MakerPublicKey = f.MakerPublicKey.Hex()
		p.MakerCurve = f.MakerPublicKey.Curve()
	}
	if f.TakerPublicKey != nil {
		p.TakerPublicKey = f.TakerPublicKey.Hex()
		p.TakerCurve = f.TakerPublicKey.Curve()
	}
	return p
}

// ToFillInstruction parses a payload received from a peer or client. It does
// not verify the signatures; call Verify on the result.
func (p FillPayload) ToFillInstruction() (FillInstruction, error) {
	var f FillInstruction
	var err error

	if f.MakerOrder, err = p.MakerOrder.ToOrder(); err != nil {
		return FillInstruction{}, fmt.Errorf("maker order: %w", err)
	}
	if f.TakerOrder, err = p.TakerOrder.ToOrder(); err != nil {
		return FillInstruction{}, fmt.Errorf("taker order: %w", err)
	}
	if f.MakerSignature, err = crypto.ParseTypedSignatureHex(p.MakerSignature); err != nil {
		return FillInstruction{}, fmt.Errorf("maker signature: %w", err)
	}
	if f.TakerSignature, err = crypto.ParseTypedSignatureHex(p.TakerSignature); err != nil {
		return FillInstruction{}, fmt.Errorf("taker signature: %w", err)
	}
	if f.MakerPublicKey, err = crypto.ParsePublicKeyHex(p.MakerCurve, p.MakerPublicKey); err != nil {
		return FillInstruction{}, fmt.Errorf("maker public key: %w", err)
	}
	if f.TakerPublicKey, err = crypto.ParsePublicKeyHex(p.TakerCurve, p.TakerPublicKey); err != nil {
		return FillInstruction{}, fmt.Errorf("taker public key: %w", err)
	}

	qty, ok := new(big.Int).SetString(p.FillQuantity, 10)
	if !ok || qty.Sign() <= 0 {
		return FillInstruction{}, fmt.Errorf("%w: %q", ErrFillQuantity, p.FillQuantity)
	}
	price, ok := new(big.Int).SetString(p.FillPrice, 10)
	if !ok || price.Sign() <= 0 {
		return FillInstruction{}, fmt.Errorf("%w: %q", ErrFillPrice, p.FillPrice)
	}
	f.FillQuantity, f.FillPrice = qty, price

	if qty.Cmp(f.MakerOrder.Quantity) > 0 || qty.Cmp(f.TakerOrder.Quantity) > 0 {
		return FillInstruction{}, fmt.Errorf("%w: %s exceeds an order quantity", ErrFillQuantity, qty)
	}
	return f, nil
}

// Encode returns the JSON form of the payload.
func (f FillInstruction) Encode() ([]byte, error) {
	return json.Marshal(f.Payload())
}

// DecodeFill parses JSON produced by Encode.
func DecodeFill(data []byte) (FillInstruction, error) {
	var p FillPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return FillInstruction{}, fmt.Errorf("failed to unmarshal fill: %w", err)
	}
	return p.ToFillInstruction()
}
