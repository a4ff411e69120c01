package bootstrap

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/couponauth/internal/logging"
)

type countingDeleter struct {
	calls atomic.Int32
	fail  bool
}

func (d *countingDeleter) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	d.calls.Add(1)
	if cutoff.IsZero() {
		return 0, errors.New("zero cutoff")
	}
	if d.fail {
		return 0, errors.New("database down")
	}
	return 2, nil
}

func TestRefreshSweeperRunsUntilStopped(t *testing.T) {
	store := &countingDeleter{}
	stop := startRefreshSweeper(store, 5*time.Millisecond, logging.Discard())

	require.Eventually(t, func() bool { return store.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, stop())

	after := store.calls.Load()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, after, store.calls.Load())
}

func TestRefreshSweeperSurvivesErrors(t *testing.T) {
	store := &countingDeleter{fail: true}
	stop := startRefreshSweeper(store, 5*time.Millisecond, logging.Discard())
	t.Cleanup(func() { _ = stop() })

	require.Eventually(t, func() bool { return store.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
}
