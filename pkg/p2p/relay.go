// Package p2p gossips fill instructions between signer nodes so every node's
// settlement layer sees every fill. Peers re-verify both signatures before a
// fill is accepted or forwarded.
package p2p

import (
	"context"
	"fmt"
	"sync"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"github.com/uhyunpark/perpsigner/pkg/trader"
)

// DefaultTopic is the gossip topic carrying fills.
const DefaultTopic = "perpsigner-fills"

// FillHandler receives verified fills published by other peers.
type FillHandler func(ctx context.Context, f trader.FillInstruction)

type Config struct {
	ListenAddr string
	Bootstrap  []string
	Topic      string
	Logger     *zap.SugaredLogger
}

// Relay is a libp2p host joined to the fill topic.
type Relay struct {
	h     host.Host
	ps    *pubsub.PubSub
	log   *zap.SugaredLogger
	topic *pubsub.Topic
	sub   *pubsub.Subscription

	muH     sync.RWMutex
	handler FillHandler
}

func NewRelay(ctx context.Context, cfg Config) (*Relay, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}

	var opts []libp2p.Option
	if cfg.ListenAddr != "" {
		maddr, err := ma.NewMultiaddr(cfg.ListenAddr)
		if err != nil {
			return nil, err
		}
		opts = append(opts, libp2p.ListenAddrs(maddr))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, err
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		return nil, err
	}

	r := &Relay{h: h, ps: ps, log: cfg.Logger}

	// Invalid fills are rejected before they are delivered or forwarded.
	if err := ps.RegisterTopicValidator(cfg.Topic, r.validate); err != nil {
		h.Close()
		return nil, err
	}
	if r.topic, err = ps.Join(cfg.Topic); err != nil {
		h.Close()
		return nil, err
	}
	if r.sub, err = r.topic.Subscribe(); err != nil {
		h.Close()
		return nil, err
	}

	for _, bs := range cfg.Bootstrap {
		if err := connectMultiaddr(ctx, h, bs); err != nil {
			cfg.Logger.Warnw("bootstrap_connect_failed", "addr", bs, "err", err)
		}
	}

	go r.handleFills(ctx)

	cfg.Logger.Infow("libp2p_ready", "peer", h.ID().String(), "listen", cfg.ListenAddr, "topic", cfg.Topic)
	return r, nil
}

func connectMultiaddr(ctx context.Context, h host.Host, addr string) error {
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(m)
	if err != nil {
		return err
	}
	return h.Connect(ctx, *info)
}

// Connect dials a peer by its full /p2p multiaddr.
func (r *Relay) Connect(ctx context.Context, addr string) error {
	return connectMultiaddr(ctx, r.h, addr)
}

// SetHandler installs the callback for fills from other peers.
func (r *Relay) SetHandler(h FillHandler) { r.muH.Lock(); r.handler = h; r.muH.Unlock() }

func (r *Relay) Host() host.Host { return r.h }

// Addrs returns dialable multiaddrs including the peer ID.
func (r *Relay) Addrs() []string {
	out := make([]string, 0, len(r.h.Addrs()))
	for _, a := range r.h.Addrs() {
		out = append(out, fmt.Sprintf("%s/p2p/%s", a, r.h.ID()))
	}
	return out
}

// PublishFill gossips a fill. Fills that fail verification are rejected
// locally by the topic validator and never leave the node.
func (r *Relay) PublishFill(ctx context.Context, f trader.FillInstruction) error {
	fillJSON, err := f.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode fill: %w", err)
	}
	data, err := encodeFill(fillJSON)
	if err != nil {
		return err
	}
	return r.topic.Publish(ctx, data)
}

func (r *Relay) Close() error {
	r.sub.Cancel()
	r.topic.Close()
	return r.h.Close()
}

func parseFill(data []byte) (trader.FillInstruction, error) {
	fillJSON, err := decodeFill(data)
	if err != nil {
		return trader.FillInstruction{}, err
	}
	f, err := trader.DecodeFill(fillJSON)
	if err != nil {
		return trader.FillInstruction{}, err
	}
	ok, err := f.Verify()
	if err != nil {
		return trader.FillInstruction{}, err
	}
	if !ok {
		return trader.FillInstruction{}, fmt.Errorf("fill signature does not verify")
	}
	return f, nil
}

func (r *Relay) validate(_ context.Context, from peer.ID, msg *pubsub.Message) bool {
	if _, err := parseFill(msg.Data); err != nil {
		r.log.Warnw("fill_rejected", "from", from.String(), "err", err)
		return false
	}
	return true
}

// inbound

func (r *Relay) handleFills(ctx context.Context) {
	for {
		msg, err := r.sub.Next(ctx)
		if err != nil {
			return
		}
		if msg.GetFrom() == r.h.ID() {
			continue
		}
		f, err := parseFill(msg.Data)
		if err != nil {
			continue
		}

		r.muH.RLock()
		h := r.handler
		r.muH.RUnlock()

		r.log.Infow("fill_received",
			"from", msg.GetFrom().String(),
			"market", f.Market().Hex(),
			"fill_quantity", f.FillQuantity.String(),
		)
		if h != nil {
			h(ctx, f)
		}
	}
}
