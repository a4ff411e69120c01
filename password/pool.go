package password

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Pool runs hashing and verification with bounded concurrency so a burst of
// logins cannot take every CPU away from unrelated requests.
//
// A caller that gives up (ctx done) while its job is running gets ctx.Err();
// the job itself finishes in the background and releases its slot.
type Pool struct {
	hasher  *Argon2
	slots   *semaphore.Weighted
	workers int

	decoyOnce sync.Once
	decoy     string
	decoyErr  error
}

// DefaultWorkers is half of GOMAXPROCS, never less than one.
func DefaultWorkers() int {
	n := runtime.GOMAXPROCS(0) / 2
	if n < 1 {
		n = 1
	}
	return n
}

// NewPool wraps hasher with at most workers concurrent Argon2 computations.
func NewPool(hasher *Argon2, workers int) (*Pool, error) {
	if hasher == nil {
		return nil, errors.New("password pool requires a hasher")
	}
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	return &Pool{
		hasher:  hasher,
		slots:   semaphore.NewWeighted(int64(workers)),
		workers: workers,
	}, nil
}

// Workers is the maximum number of concurrent Argon2 computations.
func (p *Pool) Workers() int {
	return p.workers
}

// Hasher returns the underlying hasher.
func (p *Pool) Hasher() *Argon2 {
	return p.hasher
}

// Hash is Argon2.Hash scheduled on the pool.
func (p *Pool) Hash(ctx context.Context, password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	type out struct {
		hash string
		err  error
	}
	res, err := run(ctx, p.slots, func() out {
		h, err := p.hasher.Hash(password)
		return out{hash: h, err: err}
	})
	if err != nil {
		return "", err
	}
	return res.hash, res.err
}

// Verify is Argon2.Verify scheduled on the pool.
func (p *Pool) Verify(ctx context.Context, password, encodedHash string) (Result, error) {
	if password == "" {
		return Result{}, ErrEmptyPassword
	}

	type out struct {
		result Result
		err    error
	}
	res, err := run(ctx, p.slots, func() out {
		r, err := p.hasher.Verify(password, encodedHash)
		return out{result: r, err: err}
	})
	if err != nil {
		return Result{}, err
	}
	return res.result, res.err
}

// VerifyDummy spends one verification against a decoy hash. Login calls it
// when no account matches so both failure paths cost the same.
func (p *Pool) VerifyDummy(ctx context.Context, password string) {
	p.decoyOnce.Do(func() {
		p.decoy, p.decoyErr = p.hasher.Hash("decoy-password-never-matches")
	})
	if p.decoyErr != nil || password == "" {
		return
	}
	_, _ = p.Verify(ctx, password, p.decoy)
}

func run[T any](ctx context.Context, slots *semaphore.Weighted, job func() T) (T, error) {
	var zero T
	if err := slots.Acquire(ctx, 1); err != nil {
		return zero, err
	}

	done := make(chan T, 1)
	go func() {
		defer slots.Release(1)
		done <- job()
	}()

	select {
	case v := <-done:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
