package evalstate_test

import (
	"testing"

	"github.com/delaneyj/deltasim/bits"
	"github.com/delaneyj/deltasim/evalstate"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func declare(t *testing.T, s *evalstate.State, path string, width int) evalstate.Handle {
	t.Helper()
	h, err := s.Declare(path, width, bits.Zero(width))
	require.NoError(t, err)
	return h
}

func TestDeclare(t *testing.T) {
	s := evalstate.New()
	a := declare(t, s, "top.a", 8)
	assert.NotEqual(t, evalstate.None, a)

	_, err := s.Declare("top.a", 8, bits.Zero(8))
	assert.ErrorIs(t, err, evalstate.ErrDuplicateSignal)

	h, ok := s.Lookup("top.a")
	assert.True(t, ok)
	assert.Equal(t, a, h)
	assert.Equal(t, "top.a", s.Path(a))
	assert.Equal(t, 8, s.Width(a))
	assert.Equal(t, 1, s.Len())
}

func TestReadDefaults(t *testing.T) {
	s := evalstate.New()
	a := declare(t, s, "a", 4)
	assert.True(t, s.Read(a).IsZero())
	assert.Equal(t, 4, s.Read(a).Width())
	assert.True(t, s.ReadPath("nope").IsZero())
	assert.True(t, s.Read(evalstate.None).IsZero())
}

func TestWriteImmediateChangeDetection(t *testing.T) {
	s := evalstate.New()
	a := declare(t, s, "a", 8)

	calls := 0
	require.NoError(t, s.Watch(a, func(h evalstate.Handle, old, cur bits.Value) {
		calls++
	}))

	changed, err := s.WriteImmediate(a, bits.New(8, 5))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 1, calls)

	changed, err = s.WriteImmediate(a, bits.New(8, 5))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, calls)

	// masked to the same value
	changed, err = s.WriteImmediate(a, bits.New(16, 0x105))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, calls)
}

func TestWatcherOrder(t *testing.T) {
	s := evalstate.New()
	a := declare(t, s, "a", 1)

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		require.NoError(t, s.Watch(a, func(evalstate.Handle, bits.Value, bits.Value) {
			order = append(order, i)
		}))
	}
	_, err := s.WriteImmediate(a, bits.Bool(true))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestDeferredLastWriteWins(t *testing.T) {
	s := evalstate.New()
	a := declare(t, s, "a", 8)

	require.NoError(t, s.WriteDeferred(a, bits.New(8, 1)))
	require.NoError(t, s.WriteDeferred(a, bits.New(8, 2)))
	assert.True(t, s.Read(a).IsZero())

	p, ok := s.Pending(a)
	assert.True(t, ok)
	assert.Equal(t, uint64(2), p.Uint64())

	changed := s.Commit()
	assert.Equal(t, []evalstate.Handle{a}, changed)
	assert.Equal(t, uint64(2), s.Read(a).Uint64())
	assert.False(t, s.HasPending())
}

//	a, b written deferred; a's watcher must already see b's new value
func TestCommitAtomicity(t *testing.T) {
	s := evalstate.New()
	a := declare(t, s, "a", 8)
	b := declare(t, s, "b", 8)

	var seenB uint64
	require.NoError(t, s.Watch(a, func(evalstate.Handle, bits.Value, bits.Value) {
		seenB = s.Read(b).Uint64()
	}))

	require.NoError(t, s.WriteDeferred(a, bits.New(8, 1)))
	require.NoError(t, s.WriteDeferred(b, bits.New(8, 9)))
	s.Commit()
	assert.Equal(t, uint64(9), seenB)
}

func TestCommitSkipsUnchanged(t *testing.T) {
	s := evalstate.New()
	a := declare(t, s, "a", 8)
	calls := 0
	require.NoError(t, s.Watch(a, func(evalstate.Handle, bits.Value, bits.Value) { calls++ }))

	require.NoError(t, s.WriteDeferred(a, bits.New(8, 0)))
	assert.Empty(t, s.Commit())
	assert.Equal(t, 0, calls)
}

func TestSetValueDoesNotNotify(t *testing.T) {
	s := evalstate.New()
	a := declare(t, s, "a", 8)
	calls := 0
	require.NoError(t, s.Watch(a, func(evalstate.Handle, bits.Value, bits.Value) { calls++ }))

	require.NoError(t, s.SetValue(a, bits.New(8, 42)))
	assert.Equal(t, uint64(42), s.Read(a).Uint64())
	assert.Equal(t, 0, calls)
}

func TestAlias(t *testing.T) {
	s := evalstate.New()
	parent := declare(t, s, "top.clock", 1)
	child := declare(t, s, "top.c.clock", 1)

	calls := 0
	require.NoError(t, s.Watch(child, func(h evalstate.Handle, _, _ bits.Value) {
		assert.Equal(t, parent, h)
		calls++
	}))
	require.NoError(t, s.Alias(child, parent))
	assert.Equal(t, parent, s.Root(child))
	assert.False(t, s.IsRoot(child))

	_, err := s.WriteImmediate(parent, bits.Bool(true))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), s.Read(child).Uint64())
	assert.Equal(t, 1, calls)

	_, err = s.WriteImmediate(child, bits.Bool(false))
	assert.ErrorIs(t, err, evalstate.ErrBoundSignal)

	err = s.Alias(child, parent)
	assert.True(t, errors.Is(err, evalstate.ErrAlreadyBound))
}

func TestAliasErrors(t *testing.T) {
	s := evalstate.New()
	a := declare(t, s, "a", 1)
	b := declare(t, s, "b", 1)
	w := declare(t, s, "w", 8)

	assert.ErrorIs(t, s.Alias(a, w), evalstate.ErrWidthMismatch)
	require.NoError(t, s.Alias(a, b))
	assert.ErrorIs(t, s.Alias(b, a), evalstate.ErrBindCycle)
	assert.ErrorIs(t, s.Alias(a, evalstate.Handle(99)), evalstate.ErrUnknownSignal)
}

func TestTie(t *testing.T) {
	s := evalstate.New()
	en := declare(t, s, "en", 1)
	require.NoError(t, s.Tie(en, bits.Bool(true)))
	assert.True(t, s.IsTied(en))
	assert.Equal(t, uint64(1), s.Read(en).Uint64())

	_, err := s.WriteImmediate(en, bits.Bool(false))
	assert.ErrorIs(t, err, evalstate.ErrTiedSignal)
	assert.ErrorIs(t, s.WriteDeferred(en, bits.Bool(false)), evalstate.ErrTiedSignal)
}

func TestObserveAndDigest(t *testing.T) {
	build := func() *evalstate.State {
		s := evalstate.New()
		declare(t, s, "a", 8)
		declare(t, s, "b", 100)
		return s
	}
	s1, s2 := build(), build()
	assert.Equal(t, s1.Digest(), s2.Digest())

	var seen []string
	s1.Observe(func(h evalstate.Handle, _, cur bits.Value) {
		seen = append(seen, s1.Path(h)+"="+cur.String())
	})
	a, _ := s1.Lookup("a")
	_, err := s1.WriteImmediate(a, bits.New(8, 3))
	require.NoError(t, err)
	assert.Equal(t, []string{"a=3"}, seen)
	assert.NotEqual(t, s1.Digest(), s2.Digest())
}
