// Package order holds the canonical order model and everything that must be
// computed identically off-chain and in the contract: the fixed byte layout,
// the order hash and signatures over it.
package order

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/perpsigner/pkg/crypto"
	"github.com/uhyunpark/perpsigner/pkg/fixedpoint"
)

// Address is the 32-byte chain address used for markets and makers.
type Address = crypto.Address

var ErrInvalidOrder = errors.New("invalid order")

// Order is a trade intent. Numeric fields are fixed-point integers at the
// codec scale, except Expiration (unix milliseconds) and Salt (raw nonce).
// Orders are values: the With* helpers return modified copies and nothing in
// this package mutates the big.Ints it is handed.
type Order struct {
	Market       Address
	Maker        Address
	IsBuy        bool
	ReduceOnly   bool
	Price        *big.Int
	Quantity     *big.Int
	TriggerPrice *big.Int
	Leverage     *big.Int
	Expiration   *big.Int
	Salt         *big.Int
}

// Side returns "buy" or "sell" for logs.
func (o Order) Side() string {
	if o.IsBuy {
		return "buy"
	}
	return "sell"
}

func (o Order) WithSalt(salt *big.Int) Order {
	o.Salt = copyInt(salt)
	return o
}

func (o Order) WithPrice(price *big.Int) Order {
	o.Price = copyInt(price)
	return o
}

func (o Order) WithQuantity(qty *big.Int) Order {
	o.Quantity = copyInt(qty)
	return o
}

func (o Order) WithMaker(maker Address) Order {
	o.Maker = maker
	return o
}

// Equal compares field values; nil numeric fields equal zero, matching the
// encoding.
func (o Order) Equal(other Order) bool {
	return o.Market == other.Market &&
		o.Maker == other.Maker &&
		o.IsBuy == other.IsBuy &&
		o.ReduceOnly == other.ReduceOnly &&
		cmpInt(o.Price, other.Price) == 0 &&
		cmpInt(o.Quantity, other.Quantity) == 0 &&
		cmpInt(o.TriggerPrice, other.TriggerPrice) == 0 &&
		cmpInt(o.Leverage, other.Leverage) == 0 &&
		cmpInt(o.Expiration, other.Expiration) == 0 &&
		cmpInt(o.Salt, other.Salt) == 0
}

// Params is an order in human units. Decimal fields go through the codec;
// Expiration is unix milliseconds; a nil Salt is drawn at random.
type Params struct {
	Market       Address
	Maker        Address
	IsBuy        bool
	ReduceOnly   bool
	Price        decimal.Decimal
	Quantity     decimal.Decimal
	TriggerPrice decimal.Decimal
	Leverage     decimal.Decimal
	Expiration   int64
	Salt         *big.Int
}

// Builder turns Params into Orders at a fixed scale.
type Builder struct {
	Codec fixedpoint.Codec
}

// NewBuilder returns a builder for the given codec.
func NewBuilder(codec fixedpoint.Codec) *Builder {
	return &Builder{Codec: codec}
}

// Build converts every monetary field exactly. Values with more decimal places
// than the scale are rejected rather than rounded.
func (b *Builder) Build(p Params) (Order, error) {
	price, err := b.Codec.ToFixedPointExact(p.Price)
	if err != nil {
		return Order{}, fmt.Errorf("price: %w", err)
	}
	qty, err := b.Codec.ToFixedPointExact(p.Quantity)
	if err != nil {
		return Order{}, fmt.Errorf("quantity: %w", err)
	}
	trigger, err := b.Codec.ToFixedPointExact(p.TriggerPrice)
	if err != nil {
		return Order{}, fmt.Errorf("trigger price: %w", err)
	}
	leverage, err := b.Codec.ToFixedPointExact(p.Leverage)
	if err != nil {
		return Order{}, fmt.Errorf("leverage: %w", err)
	}
	if p.Expiration < 0 {
		return Order{}, fmt.Errorf("%w: negative expiration %d", ErrInvalidOrder, p.Expiration)
	}

	salt := copyInt(p.Salt)
	if salt == nil {
		s, err := crypto.GenerateSalt()
		if err != nil {
			return Order{}, err
		}
		salt = new(big.Int).SetUint64(s)
	}

	o := Order{
		Market:       p.Market,
		Maker:        p.Maker,
		IsBuy:        p.IsBuy,
		ReduceOnly:   p.ReduceOnly,
		Price:        price,
		Quantity:     qty,
		TriggerPrice: trigger,
		Leverage:     leverage,
		Expiration:   big.NewInt(p.Expiration),
		Salt:         salt,
	}
	if err := o.Validate(); err != nil {
		return Order{}, err
	}
	return o, nil
}

// Validate performs the structural checks that do not need the contract:
// a market, a maker, and positive quantity and leverage. Margin feasibility is
// left to the contract.
func (o Order) Validate() error {
	if o.Market.IsZero() {
		return fmt.Errorf("%w: missing market", ErrInvalidOrder)
	}
	if o.Maker.IsZero() {
		return fmt.Errorf("%w: missing maker", ErrInvalidOrder)
	}
	if o.Quantity == nil || o.Quantity.Sign() <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	}
	if o.Leverage == nil || o.Leverage.Sign() <= 0 {
		return fmt.Errorf("%w: leverage must be positive", ErrInvalidOrder)
	}
	if o.Price != nil && o.Price.Sign() < 0 {
		return fmt.Errorf("%w: negative price", ErrInvalidOrder)
	}
	return nil
}

func copyInt(n *big.Int) *big.Int {
	if n == nil {
		return nil
	}
	return new(big.Int).Set(n)
}

func cmpInt(a, b *big.Int) int {
	if a == nil {
		a = new(big.Int)
	}
	if b == nil {
		b = new(big.Int)
	}
	return a.Cmp(b)
}
