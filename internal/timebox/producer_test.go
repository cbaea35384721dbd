package timebox

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitDone(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("producer %s did not finish", h.ID())
	}
}

func TestProvideAsync_DeliversValue(t *testing.T) {
	c := mustNew(t, ReactionSpec[string]{Name: "stuff", Priority: 1, Slots: []SlotSpec{Require[Dog]()}, Body: setFlag("stuff")})

	h := c.ProvideAsync(context.Background(), func(context.Context) (any, error) {
		return Dog{Name: "baz"}, nil
	}, 0)
	assert.NotEmpty(t, h.ID())

	out, err := c.React(context.Background(), time.Second)
	require.NoError(t, err)
	assertFired(t, out, "stuff")

	waitDone(t, h)
	assert.True(t, h.Delivered())
	assert.NoError(t, h.Err())
	assert.Equal(t, 0, c.Pending(), "handles are cleared after each round")
}

func TestProvideAsync_CancelsOutstandingProducers(t *testing.T) {
	var flag atomic.Int32
	release := make(chan struct{})

	c := mustNew(t,
		ReactionSpec[string]{Name: "dog", Priority: 1, Slots: []SlotSpec{Require[Dog]()}, Body: func(_ context.Context, _ Args, r *ResultBox[string]) error {
			flag.Store(1)
			r.Set("dog")
			return nil
		}},
		ReactionSpec[string]{Name: "dogAndCat", Priority: 0, Slots: []SlotSpec{Require[Dog](), Require[Cat]()}, Body: setFlag("dogAndCat")},
	)

	dog := c.ProvideAsync(context.Background(), func(context.Context) (any, error) {
		return Dog{Name: "foo"}, nil
	}, 0)
	cat := c.ProvideAsync(context.Background(), func(context.Context) (any, error) {
		// Ignores cancellation on purpose: past its point of no return.
		<-release
		flag.Store(2)
		return Cat{Lives: 42}, nil
	}, 0)
	assert.Equal(t, 2, c.Pending())

	out, err := c.React(context.Background(), time.Second)
	require.NoError(t, err)
	assertFired(t, out, "dog")
	assert.Equal(t, int32(1), flag.Load())

	close(release)
	waitDone(t, dog)
	waitDone(t, cat)

	assert.True(t, dog.Delivered())
	assert.False(t, cat.Delivered(), "late value must be dropped")
	assert.ErrorIs(t, cat.Err(), ErrProducerCancelled)

	for _, info := range c.Reactions() {
		if info.Name == "dogAndCat" {
			assert.False(t, info.Satisfied, "late Cat must not bind")
		}
	}
}

func TestProvideAsync_CooperativeCancel(t *testing.T) {
	c := mustNew(t, ReactionSpec[string]{Name: "fallback", Priority: 1, Body: setFlag("fallback")})

	h := c.ProvideAsync(context.Background(), func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, 0)

	out, err := c.React(context.Background(), time.Millisecond)
	require.NoError(t, err)
	assertFired(t, out, "fallback")

	waitDone(t, h)
	assert.ErrorIs(t, h.Err(), ErrProducerCancelled)
	assert.False(t, IsProducerError(h.Err()))
}

func TestProvideAsync_FailureStaysOnHandle(t *testing.T) {
	boom := errors.New("boom")
	c := mustNew(t,
		ReactionSpec[string]{Name: "best", Priority: 3, Slots: []SlotSpec{Require[Dog]()}, Body: setFlag("first")},
		ReactionSpec[string]{Name: "fallback", Priority: 0, Body: setFlag("fallback")},
	)

	h := c.ProvideAsync(context.Background(), func(context.Context) (any, error) {
		return nil, boom
	}, 0)
	waitDone(t, h)

	require.Error(t, h.Err())
	assert.True(t, IsProducerError(h.Err()))
	assert.ErrorIs(t, h.Err(), boom)

	out, err := c.React(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	assertFired(t, out, "fallback")
}

func TestProvideAsync_PanicAndNilAreFailures(t *testing.T) {
	c := mustNew(t, ReactionSpec[string]{Name: "fallback", Priority: 0, Body: setFlag("fallback")})

	panicky := c.ProvideAsync(context.Background(), func(context.Context) (any, error) {
		panic("kaboom")
	}, 0)
	nothing := c.ProvideAsync(context.Background(), func(context.Context) (any, error) {
		return nil, nil
	}, 0)
	waitDone(t, panicky)
	waitDone(t, nothing)

	assert.True(t, IsProducerError(panicky.Err()))
	assert.True(t, IsProducerError(nothing.Err()))
	assert.ErrorIs(t, nothing.Err(), ErrNilValue)
}

func TestProvideAsync_Authority(t *testing.T) {
	c := mustNew(t,
		ReactionSpec[string]{Name: "best", Priority: 3, Slots: []SlotSpec{Require[Dog]().WithMinAuthority(10)}, Body: setFlag("first")},
		ReactionSpec[string]{Name: "okay", Priority: 2, Slots: []SlotSpec{Require[Dog]()}, Body: setFlag("second")},
	)

	h := c.ProvideAsync(context.Background(), func(context.Context) (any, error) {
		return Dog{}, nil
	}, 10)

	out, err := c.React(context.Background(), time.Second)
	require.NoError(t, err)
	assertFired(t, out, "first")
	waitDone(t, h)
}

func TestProvideAsync_MaxProducers(t *testing.T) {
	var running, peak atomic.Int32
	c, err := New([]ReactionSpec[string]{
		{Name: "gather", Priority: 1, Slots: []SlotSpec{Gather[Dog]()}, Body: func(_ context.Context, args Args, r *ResultBox[string]) error {
			r.Set("gather")
			return nil
		}},
	}, WithMaxProducers(2))
	require.NoError(t, err)

	handles := make([]*Handle, 6)
	for i := range handles {
		handles[i] = c.ProvideAsync(context.Background(), func(context.Context) (any, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return Dog{}, nil
		}, 0)
	}
	for _, h := range handles {
		waitDone(t, h)
	}

	assert.LessOrEqual(t, peak.Load(), int32(2))

	out, err := c.React(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	assertFired(t, out, "gather")
}

func TestProvideAsync_ParentContext(t *testing.T) {
	c := mustNew(t)
	ctx, cancel := context.WithCancel(context.Background())

	h := c.ProvideAsync(ctx, func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, 0)
	cancel()
	waitDone(t, h)

	assert.ErrorIs(t, h.Err(), ErrProducerCancelled)
}

func TestProvideAsync_NilContext(t *testing.T) {
	c := mustNew(t, ReactionSpec[string]{Name: "dog", Priority: 1, Slots: []SlotSpec{Require[Dog]()}, Body: setFlag("dog")})

	var ctx context.Context
	h := c.ProvideAsync(ctx, func(context.Context) (any, error) {
		return Dog{Name: "rex"}, nil
	}, 0)
	waitDone(t, h)
	require.NoError(t, h.Err())
	assert.True(t, h.Delivered())

	out, err := c.React(context.Background(), time.Second)
	require.NoError(t, err)
	assertFired(t, out, "dog")
}
