package transactions

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is how often a Sweeper purges expired records.
const DefaultSweepInterval = time.Hour

// Sweeper periodically removes expired records from stores that lack native
// expiry.
type Sweeper struct {
	expirer  Expirer
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewSweeper(expirer Expirer, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		expirer:  expirer,
		interval: interval,
		logger:   logger.With(slog.String("agent", "transaction_sweeper")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.Sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep runs a single purge and returns how many records were removed.
func (s *Sweeper) Sweep(ctx context.Context) int64 {
	removed, err := s.expirer.DeleteExpired(ctx, s.now())
	if err != nil {
		s.logger.Error("expired transaction purge failed", slog.Any("error", err))
		return 0
	}
	if removed > 0 {
		s.logger.Info("expired transactions purged", slog.Int64("removed", removed))
	}
	return removed
}
