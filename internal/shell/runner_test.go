package shell

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfields/tradeshell/internal/session"
	"github.com/mfields/tradeshell/pkg/logger"
)

func newTestRunner(reg *Registry) (*Runner, *bytes.Buffer) {
	out := &bytes.Buffer{}
	deps := &Deps{
		Sess: session.New(""),
		Out:  out,
		Log:  logger.NewNop(),
	}
	return NewRunner(reg, deps), out
}

func TestRunLineSequentialOrder(t *testing.T) {
	var mu sync.Mutex
	var got []string
	reg := NewRegistry()
	for _, name := range []string{"a", "b", "c"} {
		name := name
		reg.Register(func(context.Context, *Deps, []string) error {
			mu.Lock()
			got = append(got, name)
			mu.Unlock()
			return nil
		}, name)
	}

	r, _ := newTestRunner(reg)
	require.NoError(t, r.RunLine(context.Background(), "a; b; c"))
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestRunLineConcurrentGroupRunsTogether(t *testing.T) {
	var running atomic.Int32
	var peak atomic.Int32
	started := make(chan struct{}, 2)
	release := make(chan struct{})

	reg := NewRegistry()
	slow := func(context.Context, *Deps, []string) error {
		n := running.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		started <- struct{}{}
		<-release
		running.Add(-1)
		return nil
	}
	reg.Register(slow, "slow")

	r, _ := newTestRunner(reg)
	done := make(chan error, 1)
	go func() { done <- r.RunLine(context.Background(), "slow&; slow&") }()

	// both must be in flight before either finishes
	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatal("concurrent command did not start")
		}
	}
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(2), peak.Load())
}

func TestRunLineConcurrentFailureIsolated(t *testing.T) {
	var ran atomic.Bool
	reg := NewRegistry()
	reg.Register(func(context.Context, *Deps, []string) error {
		return errors.New("boom")
	}, "bad")
	reg.Register(func(context.Context, *Deps, []string) error {
		ran.Store(true)
		return nil
	}, "good")

	r, out := newTestRunner(reg)
	require.NoError(t, r.RunLine(context.Background(), "bad&; good&"))
	assert.True(t, ran.Load())
	assert.Contains(t, out.String(), "boom")
}

func TestRunLineConcurrentPanicIsolated(t *testing.T) {
	var ran atomic.Bool
	reg := NewRegistry()
	reg.Register(func(context.Context, *Deps, []string) error {
		panic("member blew up")
	}, "bad")
	reg.Register(func(context.Context, *Deps, []string) error {
		ran.Store(true)
		return nil
	}, "good")
	reg.Register(func(context.Context, *Deps, []string) error {
		return nil
	}, "after")

	r, out := newTestRunner(reg)
	require.NotPanics(t, func() {
		require.NoError(t, r.RunLine(context.Background(), "bad&; good&; after"))
	})
	assert.True(t, ran.Load())
	assert.Contains(t, out.String(), "member blew up")
}

func TestRunLineErrorsDoNotStopSequence(t *testing.T) {
	var ran atomic.Bool
	reg := NewRegistry()
	reg.Register(func(context.Context, *Deps, []string) error {
		return errors.New("boom")
	}, "bad")
	reg.Register(func(context.Context, *Deps, []string) error {
		ran.Store(true)
		return nil
	}, "good")

	r, out := newTestRunner(reg)
	require.NoError(t, r.RunLine(context.Background(), "bad; good"))
	assert.True(t, ran.Load())
	assert.Contains(t, out.String(), "boom")
}

func TestRunLineGroupRunsBeforeSequential(t *testing.T) {
	var mu sync.Mutex
	var got []string
	record := func(name string) OpFunc {
		return func(context.Context, *Deps, []string) error {
			mu.Lock()
			got = append(got, name)
			mu.Unlock()
			return nil
		}
	}
	reg := NewRegistry()
	reg.Register(record("a"), "a")
	reg.Register(record("b"), "b")
	reg.Register(record("c"), "c")

	r, _ := newTestRunner(reg)
	require.NoError(t, r.RunLine(context.Background(), "a&; b&; c"))

	require.Len(t, got, 3)
	assert.Equal(t, "c", got[2]) // group completes before the sequential command
	assert.ElementsMatch(t, []string{"a", "b"}, got[:2])
}
