package bootstrap

import (
	"context"
	"time"

	"github.com/MrEthical07/couponauth/internal/logging"
)

const sweepTimeout = 30 * time.Second

// expiredDeleter is implemented by refresh.PostgresStore. Redis records
// expire on their own.
type expiredDeleter interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int, error)
}

// startRefreshSweeper deletes expired refresh records every interval. The
// returned func stops the loop and waits for an in-flight sweep.
func startRefreshSweeper(store expiredDeleter, interval time.Duration, log logging.Logger) func() error {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				sweepExpired(ctx, store, now, log)
			}
		}
	}()

	return func() error {
		cancel()
		<-done
		return nil
	}
}

func sweepExpired(ctx context.Context, store expiredDeleter, now time.Time, log logging.Logger) {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	n, err := store.DeleteExpired(ctx, now)
	if err != nil {
		log.Warn(ctx, "refresh sweep failed", "error", err)
		return
	}
	if n > 0 {
		log.Info(ctx, "expired refresh records removed", "count", n)
	}
}
