package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/uhyunpark/perpsigner/params"
	"github.com/uhyunpark/perpsigner/pkg/api"
	"github.com/uhyunpark/perpsigner/pkg/crypto"
	"github.com/uhyunpark/perpsigner/pkg/fixedpoint"
	"github.com/uhyunpark/perpsigner/pkg/keystore"
	"github.com/uhyunpark/perpsigner/pkg/order"
	"github.com/uhyunpark/perpsigner/pkg/outbox"
	"github.com/uhyunpark/perpsigner/pkg/p2p"
	"github.com/uhyunpark/perpsigner/pkg/trader"
	"github.com/uhyunpark/perpsigner/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	logger, err := util.NewLogger(util.LogOptions{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Log.File, "level", cfg.Log.Level)

	codec, err := fixedpoint.New(cfg.Codec.Scale)
	if err != nil {
		sugar.Fatalw("codec_init_failed", "scale", cfg.Codec.Scale, "err", err)
	}

	// ---- Keystore ----
	var keys keystore.Store
	if cfg.Keystore.InMemory {
		keys = keystore.NewMemoryStore()
		sugar.Warn("keystore_in_memory - keys are lost on exit")
	} else {
		ps, err := keystore.NewPebbleStore(cfg.Keystore.Path)
		if err != nil {
			sugar.Fatalw("keystore_open_failed", "path", cfg.Keystore.Path, "err", err)
		}
		keys = ps
	}
	defer keys.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	box := outbox.New()

	opts := api.Options{
		Codec:          codec,
		Keys:           keys,
		Outbox:         box,
		Logger:         sugar,
		AllowedOrigins: cfg.API.AllowedOrigins,
	}

	// ---- Fill relay (optional) ----
	var relay *p2p.Relay
	if cfg.P2P.Enabled {
		relay, err = p2p.NewRelay(ctx, p2p.Config{
			ListenAddr: cfg.P2P.ListenAddr,
			Bootstrap:  cfg.P2P.Bootstrap,
			Logger:     sugar,
		})
		if err != nil {
			sugar.Fatalw("libp2p_init_failed", "err", err)
		}
		defer relay.Close()
		opts.Relay = relay
		sugar.Infow("p2p_addrs", "addrs", relay.Addrs())
	}

	apiServer := api.NewServer(opts)

	// Fills gossiped by peers reach our settlement queue and WebSocket clients.
	if relay != nil {
		relay.SetHandler(func(_ context.Context, f trader.FillInstruction) {
			if err := box.PushFill(f); err != nil {
				sugar.Warnw("peer_fill_dropped", "err", err)
				return
			}
			apiServer.BroadcastFill(f)
		})
	}

	// ---- Trade feeder (optional) ----
	if cfg.Feeder.Enabled {
		market := crypto.MustHexToAddress("0x0000000000000000000000000000000000000000000000004254432d50455250")
		gen, err := trader.NewGenerator(cfg.Feeder.Accounts, []order.Address{market}, order.NewBuilder(codec), util.RealClock{}, time.Now().UnixNano())
		if err != nil {
			sugar.Fatalw("feeder_init_failed", "err", err)
		}
		sink := func(f trader.FillInstruction) {
			if err := box.PushFill(f); err != nil {
				sugar.Warnw("feeder_fill_dropped", "err", err)
				return
			}
			apiServer.BroadcastFill(f)
			if relay != nil {
				if err := relay.PublishFill(ctx, f); err != nil {
					sugar.Warnw("fill_publish_failed", "err", err)
				}
			}
		}
		cancelFeeder := trader.StartFeeder(ctx, gen, trader.New(sugar), trader.FeederConfig{
			BatchSize: cfg.Feeder.BatchSize,
			Interval:  cfg.Feeder.Interval,
		}, sink, sugar)
		defer cancelFeeder()
	} else {
		sugar.Info("txgen_disabled")
	}

	sugar.Infow("signerd_starting",
		"scale", codec.Scale(),
		"api_addr", cfg.API.Addr,
		"p2p_enabled", cfg.P2P.Enabled,
		"keystore_in_memory", cfg.Keystore.InMemory)

	// ---- API Server ----
	go func() {
		if err := apiServer.Start(ctx, cfg.API.Addr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	// Progress logging loop
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := apiServer.Shutdown(shutdownCtx); err != nil {
				sugar.Warnw("api_shutdown_failed", "err", err)
			}
			cancel()
			sugar.Info("signerd_stopped")
			return
		case <-ticker.C:
			counts := box.Counts()
			sugar.Infow("outbox_status",
				"pending", box.Len(),
				"fills", counts[outbox.KindFill],
				"cancels", counts[outbox.KindCancel],
				"ws_clients", apiServer.Hub().ClientCount())
		}
	}
}
