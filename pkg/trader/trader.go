// Package trader pairs a maker order with a taker order and produces the fill
// instruction the settlement layer submits. It never looks at margin or
// leverage feasibility; the contract owns that.
package trader

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"github.com/uhyunpark/perpsigner/pkg/crypto"
	"github.com/uhyunpark/perpsigner/pkg/order"
)

var (
	ErrFillQuantity = errors.New("invalid fill quantity")
	ErrFillPrice    = errors.New("invalid fill price")
	ErrOrderPairing = errors.New("orders cannot be paired")
	ErrMissingKey   = errors.New("missing signer")
)

// MirrorOrder is the implicit counterparty of a resting order: same market,
// price, quantity, leverage, trigger price, expiration and salt, opposite
// side, never reduce-only, owned by taker.
func MirrorOrder(maker order.Order, taker order.Address) order.Order {
	return order.Order{
		Market:       maker.Market,
		Maker:        taker,
		IsBuy:        !maker.IsBuy,
		ReduceOnly:   false,
		Price:        cloneInt(maker.Price),
		Quantity:     cloneInt(maker.Quantity),
		TriggerPrice: cloneInt(maker.TriggerPrice),
		Leverage:     cloneInt(maker.Leverage),
		Expiration:   cloneInt(maker.Expiration),
		Salt:         cloneInt(maker.Salt),
	}
}

// TradeRequest is the input to SetupTrade. TakerOrder, FillQuantity and
// FillPrice are optional.
type TradeRequest struct {
	MakerOrder   order.Order
	TakerOrder   *order.Order
	MakerSigner  crypto.Signer
	TakerSigner  crypto.Signer
	FillQuantity *big.Int
	FillPrice    *big.Int
}

// FillInstruction is two signed orders plus the agreed fill. The public keys
// travel with it because ed25519 signatures cannot be recovered.
type FillInstruction struct {
	MakerOrder     order.Order
	MakerSignature crypto.TypedSignature
	MakerPublicKey crypto.PublicKey
	TakerOrder     order.Order
	TakerSignature crypto.TypedSignature
	TakerPublicKey crypto.PublicKey
	FillQuantity   *big.Int
	FillPrice      *big.Int
}

// Market returns the market both orders trade.
func (f FillInstruction) Market() order.Address { return f.MakerOrder.Market }

// Verify re-checks both signatures and that each key owns its order.
func (f FillInstruction) Verify() (bool, error) {
	ok, err := order.VerifyMaker(f.MakerOrder, f.MakerSignature, f.MakerPublicKey)
	if err != nil || !ok {
		return ok, err
	}
	return order.VerifyMaker(f.TakerOrder, f.TakerSignature, f.TakerPublicKey)
}

// Trader builds fill instructions. It holds no mutable state, so one Trader
// can serve any number of goroutines.
type Trader struct {
	log *zap.SugaredLogger
}

// New returns a Trader. A nil logger disables logging.
func New(logger *zap.SugaredLogger) *Trader {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Trader{log: logger}
}

// SetupTrade signs the maker order and the taker order (mirrored from the
// maker when absent) and selects the fill.
//
// The fill quantity defaults to the smaller of the two order quantities, which
// is the maker quantity for a mirrored taker. An explicit quantity must be
// positive and no larger than either order. The fill price defaults to the
// maker price.
func (t *Trader) SetupTrade(ctx context.Context, req TradeRequest) (FillInstruction, error) {
	if req.MakerSigner == nil || req.TakerSigner == nil {
		return FillInstruction{}, ErrMissingKey
	}

	maker := req.MakerOrder
	var taker order.Order
	if req.TakerOrder != nil {
		taker = *req.TakerOrder
	} else {
		taker = MirrorOrder(maker, crypto.DeriveAddress(req.TakerSigner.PublicKey()))
	}

	if err := checkPairing(maker, taker, req.MakerSigner, req.TakerSigner); err != nil {
		return FillInstruction{}, err
	}

	qty, err := fillQuantity(maker, taker, req.FillQuantity)
	if err != nil {
		return FillInstruction{}, err
	}

	price := cloneInt(maker.Price)
	if req.FillPrice != nil {
		if req.FillPrice.Sign() <= 0 {
			return FillInstruction{}, fmt.Errorf("%w: %s", ErrFillPrice, req.FillPrice)
		}
		price = cloneInt(req.FillPrice)
	}
	if price == nil || price.Sign() <= 0 {
		return FillInstruction{}, fmt.Errorf("%w: maker order has no price", ErrFillPrice)
	}

	signedMaker, err := order.Sign(ctx, maker, req.MakerSigner)
	if err != nil {
		return FillInstruction{}, fmt.Errorf("maker: %w", err)
	}
	signedTaker, err := order.Sign(ctx, taker, req.TakerSigner)
	if err != nil {
		return FillInstruction{}, fmt.Errorf("taker: %w", err)
	}

	t.log.Infow("trade_setup",
		"market", maker.Market.Hex(),
		"maker", maker.Maker.Hex(),
		"taker", taker.Maker.Hex(),
		"maker_side", maker.Side(),
		"fill_quantity", qty.String(),
		"fill_price", price.String(),
		"mirrored", req.TakerOrder == nil,
	)

	return FillInstruction{
		MakerOrder:     signedMaker.Order,
		MakerSignature: signedMaker.TypedSignature,
		MakerPublicKey: req.MakerSigner.PublicKey(),
		TakerOrder:     signedTaker.Order,
		TakerSignature: signedTaker.TypedSignature,
		TakerPublicKey: req.TakerSigner.PublicKey(),
		FillQuantity:   qty,
		FillPrice:      price,
	}, nil
}

func checkPairing(maker, taker order.Order, makerSigner, takerSigner crypto.Signer) error {
	if maker.Market != taker.Market {
		return fmt.Errorf("%w: markets differ (%s vs %s)", ErrOrderPairing, maker.Market, taker.Market)
	}
	if maker.IsBuy == taker.IsBuy {
		return fmt.Errorf("%w: both orders are %s", ErrOrderPairing, maker.Side())
	}
	if crypto.DeriveAddress(makerSigner.PublicKey()) != maker.Maker {
		return fmt.Errorf("%w: maker key does not own the maker order", ErrOrderPairing)
	}
	if crypto.DeriveAddress(takerSigner.PublicKey()) != taker.Maker {
		return fmt.Errorf("%w: taker key does not own the taker order", ErrOrderPairing)
	}
	if maker.Maker == taker.Maker {
		return fmt.Errorf("%w: self trade", ErrOrderPairing)
	}
	return nil
}

func fillQuantity(maker, taker order.Order, requested *big.Int) (*big.Int, error) {
	if maker.Quantity == nil || taker.Quantity == nil {
		return nil, fmt.Errorf("%w: order without quantity", ErrFillQuantity)
	}
	limit := maker.Quantity
	if taker.Quantity.Cmp(limit) < 0 {
		limit = taker.Quantity
	}
	if limit.Sign() <= 0 {
		return nil, fmt.Errorf("%w: nothing to fill", ErrFillQuantity)
	}
	if requested == nil {
		return cloneInt(limit), nil
	}
	if requested.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s is not positive", ErrFillQuantity, requested)
	}
	if requested.Cmp(limit) > 0 {
		return nil, fmt.Errorf("%w: %s exceeds available %s", ErrFillQuantity, requested, limit)
	}
	return cloneInt(requested), nil
}

func cloneInt(n *big.Int) *big.Int {
	if n == nil {
		return nil
	}
	return new(big.Int).Set(n)
}
