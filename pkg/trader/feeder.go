package trader

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// FeederConfig controls synthetic trade generation.
type FeederConfig struct {
	BatchSize int           // trades per tick
	Interval  time.Duration // tick period
}

// DefaultFeederConfig produces 100 trades per second.
func DefaultFeederConfig() FeederConfig {
	return FeederConfig{
		BatchSize: 10,
		Interval:  100 * time.Millisecond,
	}
}

// StartFeeder runs a goroutine that sets up generated trades and hands each
// fill to sink until ctx is done. The returned function stops it.
func StartFeeder(ctx context.Context, gen *Generator, t *Trader, cfg FeederConfig, sink func(FillInstruction), logger *zap.SugaredLogger) context.CancelFunc {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.BatchSize <= 0 || cfg.Interval <= 0 {
		cfg = DefaultFeederConfig()
	}

	feedCtx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()

		start := time.Now()
		total, failed := 0, 0

		logger.Infow("feeder_started", "batch", cfg.BatchSize, "interval", cfg.Interval)

		for {
			select {
			case <-feedCtx.Done():
				elapsed := time.Since(start)
				logger.Infow("feeder_stopped",
					"fills", total,
					"failed", failed,
					"elapsed", elapsed.Round(time.Millisecond),
					"rate", float64(total)/elapsed.Seconds(),
				)
				return

			case <-ticker.C:
				for i := 0; i < cfg.BatchSize; i++ {
					req, err := gen.GenerateTrade()
					if err != nil {
						failed++
						logger.Warnw("feeder_generate_failed", "err", err)
						continue
					}
					fill, err := t.SetupTrade(feedCtx, req)
					if err != nil {
						failed++
						logger.Warnw("feeder_trade_failed", "err", err)
						continue
					}
					sink(fill)
					total++
				}
			}
		}
	}()

	return cancel
}
