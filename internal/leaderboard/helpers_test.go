package leaderboard_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/cenkalti/backoff/v5"

	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/domain/partition"
	"github.com/okian/podium/internal/leaderboard"
	"github.com/okian/podium/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// fastRetries keeps retry tests from sleeping.
var fastRetries = leaderboard.WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} })

// errPass makes a hook fall through to the wrapped backend.
var errPass = errors.New("pass through")

// faultyBackend wraps a backend and lets tests intercept primitives.
type faultyBackend struct {
	repository.Backend

	mu      sync.Mutex
	calls   map[string]int
	onGet    func(ctx context.Context, call int, key repository.Key) (repository.Row, error)
	onInsert func(ctx context.Context, call int, key repository.Key, row repository.Row) (int64, error)
	onCAS    func(ctx context.Context, call int, key repository.Key, expected int64, row repository.Row) (int64, error)
	onAppend func(ctx context.Context, call int, table repository.Table, id partition.ID, row repository.Row) (int64, error)
	onEnsure func(ctx context.Context, call int, table repository.Table, id partition.ID) error
}

func newFaultyBackend() *faultyBackend {
	return &faultyBackend{Backend: repository.NewMemoryBackend(), calls: make(map[string]int)}
}

func (f *faultyBackend) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	return f.calls[name]
}

func (f *faultyBackend) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *faultyBackend) EnsurePartition(ctx context.Context, table repository.Table, id partition.ID) error {
	n := f.count("ensure")
	if f.onEnsure != nil {
		if err := f.onEnsure(ctx, n, table, id); !errors.Is(err, errPass) {
			return err
		}
	}
	return f.Backend.EnsurePartition(ctx, table, id)
}

func (f *faultyBackend) Get(ctx context.Context, key repository.Key) (repository.Row, error) {
	n := f.count("get")
	if f.onGet != nil {
		if r, err := f.onGet(ctx, n, key); !errors.Is(err, errPass) {
			return r, err
		}
	}
	return f.Backend.Get(ctx, key)
}

func (f *faultyBackend) Insert(ctx context.Context, key repository.Key, row repository.Row) (int64, error) {
	n := f.count("insert")
	if f.onInsert != nil {
		if r, err := f.onInsert(ctx, n, key, row); !errors.Is(err, errPass) {
			return r, err
		}
	}
	return f.Backend.Insert(ctx, key, row)
}

func (f *faultyBackend) CompareAndSwap(ctx context.Context, key repository.Key, expected int64, row repository.Row) (int64, error) {
	n := f.count("cas")
	if f.onCAS != nil {
		if r, err := f.onCAS(ctx, n, key, expected, row); !errors.Is(err, errPass) {
			return r, err
		}
	}
	return f.Backend.CompareAndSwap(ctx, key, expected, row)
}

func (f *faultyBackend) Append(ctx context.Context, table repository.Table, id partition.ID, row repository.Row) (int64, error) {
	n := f.count("append")
	if f.onAppend != nil {
		if r, err := f.onAppend(ctx, n, table, id, row); !errors.Is(err, errPass) {
			return r, err
		}
	}
	return f.Backend.Append(ctx, table, id, row)
}
