// Command sign-order builds one order from flags, signs it and prints the
// signed payload as JSON. Without --key a fresh key is generated and printed.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/shopspring/decimal"
	flag "github.com/spf13/pflag"

	"github.com/uhyunpark/perpsigner/pkg/crypto"
	"github.com/uhyunpark/perpsigner/pkg/fixedpoint"
	"github.com/uhyunpark/perpsigner/pkg/order"
)

type output struct {
	order.SignedPayload
	Curve      crypto.Curve `json:"curve"`
	PublicKey  string       `json:"publicKey"`
	PrivateKey string       `json:"privateKey,omitempty"` // only for generated keys
	Encoding   string       `json:"encoding"`
}

func main() {
	var (
		curveName  = flag.String("curve", "secp256k1", "signing curve: secp256k1 or ed25519")
		keyHex     = flag.String("key", "", "hex private key (secp256k1) or seed (ed25519); generated when empty")
		market     = flag.String("market", "0x4254432d50455250", "market identifier, 0x hex")
		isBuy      = flag.Bool("buy", true, "buy side")
		reduceOnly = flag.Bool("reduce-only", false, "reduce-only order")
		price      = flag.String("price", "100", "limit price")
		qty        = flag.String("qty", "1", "quantity")
		leverage   = flag.String("leverage", "1", "leverage")
		trigger    = flag.String("trigger", "0", "trigger price (0 = none)")
		expiration = flag.Int64("expiration", 0, "expiry, Unix ms (0 = no expiry)")
		salt       = flag.String("salt", "", "salt; random when empty")
		scale      = flag.Int32("scale", fixedpoint.DefaultScale, "fixed-point decimal places")
	)
	flag.Parse()

	if err := run(*curveName, *keyHex, *market, *isBuy, *reduceOnly, *price, *qty, *leverage, *trigger, *expiration, *salt, *scale); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(curveName, keyHex, marketHex string, isBuy, reduceOnly bool, price, qty, leverage, trigger string, expiration int64, saltStr string, scale int32) error {
	curve, err := crypto.ParseCurve(curveName)
	if err != nil {
		return err
	}

	var (
		kp        crypto.KeyPair
		generated bool
	)
	if keyHex == "" {
		kp, err = crypto.GenerateKey(curve)
		generated = true
	} else {
		kp, err = crypto.FromPrivateKeyHex(curve, keyHex)
	}
	if err != nil {
		return err
	}

	marketAddr, err := crypto.HexToAddress(marketHex)
	if err != nil {
		return err
	}

	codec, err := fixedpoint.New(scale)
	if err != nil {
		return err
	}

	params := order.Params{
		Market:     marketAddr,
		Maker:      kp.Address(),
		IsBuy:      isBuy,
		ReduceOnly: reduceOnly,
		Expiration: expiration,
	}
	for _, f := range []struct {
		name string
		in   string
		dst  *decimal.Decimal
	}{
		{"price", price, &params.Price},
		{"qty", qty, &params.Quantity},
		{"leverage", leverage, &params.Leverage},
		{"trigger", trigger, &params.TriggerPrice},
	} {
		if *f.dst, err = decimal.NewFromString(f.in); err != nil {
			return fmt.Errorf("invalid --%s: %w", f.name, err)
		}
	}
	if saltStr != "" {
		s, ok := new(big.Int).SetString(saltStr, 10)
		if !ok {
			return fmt.Errorf("invalid --salt %q", saltStr)
		}
		params.Salt = s
	}

	o, err := order.NewBuilder(codec).Build(params)
	if err != nil {
		return err
	}

	signed, err := order.Sign(context.Background(), o, kp)
	if err != nil {
		return err
	}

	// Round-trip through the verifier before printing anything.
	ok, err := order.VerifyMaker(signed.Order, signed.TypedSignature, kp.PublicKey())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("signature does not verify")
	}

	payload, err := order.ToSignedPayload(signed)
	if err != nil {
		return err
	}
	enc, err := order.Encode(signed.Order)
	if err != nil {
		return err
	}

	out := output{
		SignedPayload: payload,
		Curve:         curve,
		PublicKey:     kp.PublicKey().Hex(),
		Encoding:      fmt.Sprintf("0x%x", enc),
	}
	if generated {
		out.PrivateKey = kp.PrivateKeyHex()
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
