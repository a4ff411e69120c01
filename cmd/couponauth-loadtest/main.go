package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/couponauth/internal/rate"
	"github.com/MrEthical07/couponauth/refresh"
)

type tokenState struct {
	owner string
	token string
	mu    sync.Mutex
}

func main() {
	var (
		records     = flag.Int("records", 20000, "number of refresh records to seed")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per phase")
		racers      = flag.Int("racers", 8, "goroutines rotating the same token in the race phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "lt", "key prefix")
	)
	flag.Parse()

	if *records <= 0 || *concurrency <= 0 || *ops <= 0 || *racers <= 1 {
		fmt.Fprintln(os.Stderr, "records, concurrency and ops must be > 0; racers must be > 1")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	store := refresh.NewRedisStore(client, refresh.RedisConfig{Prefix: *prefix})
	limiter := rate.New(client, rate.Config{
		Prefix: *prefix,
		Policies: map[rate.Class]rate.Policy{
			rate.ClassGeneral: {Limit: 60, Window: time.Minute},
		},
	})

	states := make([]tokenState, *records)
	fmt.Printf("seeding %d refresh records...\n", *records)
	startSeed := time.Now()
	for i := range states {
		owner := fmt.Sprintf("acct-%d", i%(*records/4+1))
		issued, err := store.Create(ctx, owner)
		if err != nil {
			fmt.Fprintf(os.Stderr, "create failed: %v\n", err)
			os.Exit(1)
		}
		states[i].owner = owner
		states[i].token = issued.Token
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	rotateStats := runRotatePhase(ctx, store, states, *ops, *concurrency)
	raceStats, violations := runRacePhase(ctx, store, *ops / *racers, *racers, *concurrency)
	limitStats := runLimiterPhase(ctx, limiter, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("rotate", rotateStats)
	printStats("race", raceStats)
	printStats("ratelimit", limitStats)
	if violations > 0 {
		fmt.Fprintf(os.Stderr, "race phase: %d tokens rotated more than once\n", violations)
		os.Exit(1)
	}
}

// runRotatePhase rotates random records, one caller per record at a time.
func runRotatePhase(ctx context.Context, store refresh.Store, states []tokenState, ops, concurrency int) phaseStats {
	return runPhase(ops, concurrency, func(r *rand.Rand, _ int) error {
		state := &states[r.Intn(len(states))]
		state.mu.Lock()
		defer state.mu.Unlock()

		next, err := store.Rotate(ctx, state.token)
		if err != nil {
			return err
		}
		state.token = next.Token
		return nil
	})
}

// runRacePhase presents each fresh token from racers goroutines at once and
// counts tokens that rotated more than once.
func runRacePhase(ctx context.Context, store refresh.Store, tokens, racers, concurrency int) (phaseStats, int64) {
	var violations int64
	stats := runPhase(tokens, concurrency/racers+1, func(_ *rand.Rand, i int) error {
		issued, err := store.Create(ctx, fmt.Sprintf("race-%d", i))
		if err != nil {
			return err
		}

		var (
			wg   sync.WaitGroup
			wins int64
		)
		start := make(chan struct{})
		for j := 0; j < racers; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if _, err := store.Rotate(ctx, issued.Token); err == nil {
					atomic.AddInt64(&wins, 1)
				}
			}()
		}
		close(start)
		wg.Wait()

		if wins != 1 {
			atomic.AddInt64(&violations, 1)
			return fmt.Errorf("token rotated %d times", wins)
		}
		return nil
	})
	return stats, violations
}

// runLimiterPhase drives the general class across a small identity pool so
// that both allowed and denied paths are measured. Denials are not failures.
func runLimiterPhase(ctx context.Context, limiter *rate.Limiter, ops, concurrency int) phaseStats {
	return runPhase(ops, concurrency, func(r *rand.Rand, _ int) error {
		identity := fmt.Sprintf("ip:10.0.%d.%d", r.Intn(8), r.Intn(250))
		_, err := limiter.CheckAndIncrement(ctx, identity, rate.ClassGeneral)
		if errors.Is(err, rate.ErrRedisUnavailable) {
			return err
		}
		return nil
	})
}

func runPhase(ops, concurrency int, op func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
