package trader

import (
	"fmt"
	"math/big"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/perpsigner/pkg/crypto"
	"github.com/uhyunpark/perpsigner/pkg/order"
	"github.com/uhyunpark/perpsigner/pkg/util"
)

// Generator creates random valid orders and trade requests for a fixed set of
// signers. It is not safe for concurrent use.
type Generator struct {
	signers []crypto.Signer // simulated traders
	markets []order.Address
	builder *order.Builder
	clock   util.Clock
	ttl     time.Duration
	rng     *rand.Rand
	salts   map[order.Address]uint64 // per-maker counter, keeps hashes unique
}

// NewGenerator creates numAccounts fresh keys, alternating between curves.
func NewGenerator(numAccounts int, markets []order.Address, builder *order.Builder, clock util.Clock, seed int64) (*Generator, error) {
	if numAccounts < 2 {
		return nil, fmt.Errorf("need at least 2 accounts, got %d", numAccounts)
	}
	signers := make([]crypto.Signer, numAccounts)
	for i := range signers {
		kp, err := crypto.GenerateKey(crypto.Curves[i%len(crypto.Curves)])
		if err != nil {
			return nil, err
		}
		signers[i] = kp
	}
	return NewGeneratorWithSigners(signers, markets, builder, clock, seed)
}

// NewGeneratorWithSigners uses the given signers, e.g. keys from the keystore.
func NewGeneratorWithSigners(signers []crypto.Signer, markets []order.Address, builder *order.Builder, clock util.Clock, seed int64) (*Generator, error) {
	if len(signers) < 2 {
		return nil, fmt.Errorf("need at least 2 signers, got %d", len(signers))
	}
	if len(markets) == 0 {
		return nil, fmt.Errorf("need at least one market")
	}
	if clock == nil {
		clock = util.RealClock{}
	}
	return &Generator{
		signers: signers,
		markets: markets,
		builder: builder,
		clock:   clock,
		ttl:     time.Hour,
		rng:     rand.New(rand.NewSource(seed)),
		salts:   make(map[order.Address]uint64),
	}, nil
}

// Signers returns the generator's signers.
func (g *Generator) Signers() []crypto.Signer { return g.signers }

// GenerateOrder returns a random order owned by one of the signers together
// with that signer.
func (g *Generator) GenerateOrder() (order.Order, crypto.Signer, error) {
	signer := g.signers[g.rng.Intn(len(g.signers))]
	o, err := g.orderFor(signer)
	return o, signer, err
}

// GenerateTrade returns a request pairing a random maker order with a
// distinct taker. Half of the requests carry an explicit taker order; the
// rest rely on the mirrored default. Some request a partial fill.
func (g *Generator) GenerateTrade() (TradeRequest, error) {
	mi := g.rng.Intn(len(g.signers))
	ti := (mi + 1 + g.rng.Intn(len(g.signers)-1)) % len(g.signers)
	makerSigner, takerSigner := g.signers[mi], g.signers[ti]

	maker, err := g.orderFor(makerSigner)
	if err != nil {
		return TradeRequest{}, err
	}
	req := TradeRequest{MakerOrder: maker, MakerSigner: makerSigner, TakerSigner: takerSigner}

	if g.rng.Intn(2) == 1 {
		taker := MirrorOrder(maker, takerSigner.Address()).WithSalt(g.nextSalt(takerSigner.Address()))
		req.TakerOrder = &taker
	}
	// 30% partial fills
	if g.rng.Intn(100) < 30 {
		half := new(big.Int).Rsh(maker.Quantity, 1)
		if half.Sign() > 0 {
			req.FillQuantity = half
		}
	}
	return req, nil
}

// GenerateCancel returns a cancellation of n freshly generated orders of one
// signer, all on one market.
func (g *Generator) GenerateCancel(n int) (order.Cancellation, crypto.Signer, error) {
	signer := g.signers[g.rng.Intn(len(g.signers))]
	market := g.randomMarket()
	c := order.Cancellation{Market: market, Maker: signer.Address()}
	for i := 0; i < n; i++ {
		o, err := g.orderOn(signer, market)
		if err != nil {
			return order.Cancellation{}, nil, err
		}
		c.OrderHashes = append(c.OrderHashes, order.MustHash(o))
	}
	return c, signer, nil
}

func (g *Generator) randomMarket() order.Address {
	return g.markets[g.rng.Intn(len(g.markets))]
}

func (g *Generator) orderFor(signer crypto.Signer) (order.Order, error) {
	return g.orderOn(signer, g.randomMarket())
}

func (g *Generator) orderOn(signer crypto.Signer, market order.Address) (order.Order, error) {
	// Random price around 50,000 (±5%) with cent ticks
	cents := int64(5_000_000 + g.rng.Intn(500_000) - 250_000)
	// 0.01 to 1.00
	lots := int64(g.rng.Intn(100) + 1)
	leverage := int64(g.rng.Intn(20) + 1)

	maker := signer.Address()
	return g.builder.Build(order.Params{
		Market:     market,
		Maker:      maker,
		IsBuy:      g.rng.Intn(2) == 0,
		Price:      decimal.New(cents, -2),
		Quantity:   decimal.New(lots, -2),
		Leverage:   decimal.NewFromInt(leverage),
		Expiration: util.ExpiryMillis(g.clock, g.ttl),
		Salt:       g.nextSalt(maker),
	})
}

func (g *Generator) nextSalt(maker order.Address) *big.Int {
	g.salts[maker]++
	return new(big.Int).SetUint64(g.salts[maker])
}
