package kernel_test

import (
	"context"
	"testing"

	"github.com/delaneyj/deltasim/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLock(t *testing.T) {
	s := newSim(t, signals())
	l := kernel.NewLock("bus")

	var gotAt kernel.Time
	var releaseErr error
	tried := true
	s.Spawn("holder", func(t *kernel.Task) error {
		l.Acquire(t)
		t.Wait(5 * kernel.NS)
		return l.Release()
	})
	s.Spawn("contender", func(t *kernel.Task) error {
		t.Wait(kernel.NS)
		tried = l.TryAcquire(t)
		l.Acquire(t)
		gotAt = t.Now()
		if err := l.Release(); err != nil {
			return err
		}
		releaseErr = l.Release()
		return nil
	})
	require.NoError(t, s.Advance(context.Background(), 10*kernel.NS))
	assert.False(t, tried)
	assert.Equal(t, 5*kernel.NS, gotAt)
	assert.ErrorIs(t, releaseErr, kernel.ErrAlreadyReleased)
	assert.False(t, l.Locked())
	assert.Nil(t, l.Owner())
}

type bank struct {
	name string
	busy int
}

func TestClaimPool(t *testing.T) {
	s := newSim(t, signals())
	pool := kernel.NewClaimPool("banks", bank{name: "b0"}, bank{name: "b1"})
	require.Equal(t, 2, pool.Len())

	onlyB0 := func(b bank, _ int) bool { return b.name == "b0" }

	var lockedAt kernel.Time
	var secondDrop error
	var shared []int
	var seen bank
	s.Spawn("owner", func(t *kernel.Task) error {
		c := pool.Lock(t, onlyB0)
		c.SetValue(bank{name: c.Value().name, busy: 1})
		t.Wait(4 * kernel.NS)
		if err := c.Drop(); err != nil {
			return err
		}
		secondDrop = c.Drop()
		return nil
	})
	s.Spawn("waiter", func(t *kernel.Task) error {
		c := pool.Lock(t, onlyB0)
		lockedAt = t.Now()
		seen = c.Value()
		return c.Drop()
	})
	for _, name := range []string{"r0", "r1"} {
		s.Spawn(name, func(t *kernel.Task) error {
			c := pool.Share(t, func(b bank, _ int) bool { return b.name == "b1" })
			shared = append(shared, c.ID())
			t.Wait(kernel.NS)
			return c.Drop()
		})
	}

	require.NoError(t, s.Advance(context.Background(), 10*kernel.NS))
	assert.Equal(t, 4*kernel.NS, lockedAt)
	assert.ErrorIs(t, secondDrop, kernel.ErrAlreadyReleased)
	assert.Equal(t, []int{1, 1}, shared)
	assert.Equal(t, bank{name: "b0", busy: 1}, seen)
}

func TestClaimLockWaitsForShares(t *testing.T) {
	s := newSim(t, signals())
	pool := kernel.NewClaimPool("regs", 7)
	var lockedAt kernel.Time
	s.Spawn("reader", func(t *kernel.Task) error {
		c := pool.Share(t, nil)
		t.Wait(3 * kernel.NS)
		return c.Drop()
	})
	s.Spawn("writer", func(t *kernel.Task) error {
		c := pool.Lock(t, nil)
		lockedAt = t.Now()
		c.SetValue(c.Value() + 1)
		return c.Drop()
	})
	require.NoError(t, s.Advance(context.Background(), 5*kernel.NS))
	assert.Equal(t, 3*kernel.NS, lockedAt)
}

func TestChannel(t *testing.T) {
	s := newSim(t, signals())
	ch := kernel.NewChannel[int]("fifo", 1)

	var got []int
	var lastPut kernel.Time
	s.Spawn("producer", func(t *kernel.Task) error {
		for i := 1; i <= 3; i++ {
			ch.Put(t, i)
			lastPut = t.Now()
		}
		return nil
	})
	s.Spawn("consumer", func(t *kernel.Task) error {
		for i := 0; i < 3; i++ {
			got = append(got, ch.Get(t))
			t.Wait(2 * kernel.NS)
		}
		return nil
	})
	require.NoError(t, s.Advance(context.Background(), 10*kernel.NS))
	assert.Equal(t, []int{1, 2, 3}, got)
	assert.Equal(t, 2*kernel.NS, lastPut)
	assert.Equal(t, 0, ch.Len())
}

func TestChannelTryOps(t *testing.T) {
	unbounded := kernel.NewChannel[string]("log", 0)
	for _, v := range []string{"a", "b", "c"} {
		assert.True(t, unbounded.TryPut(v))
	}
	assert.Equal(t, 3, unbounded.Len())
	v, ok := unbounded.TryGet()
	assert.True(t, ok)
	assert.Equal(t, "a", v)

	bounded := kernel.NewChannel[string]("one", 1)
	assert.True(t, bounded.TryPut("x"))
	assert.False(t, bounded.TryPut("y"))
	_, _ = bounded.TryGet()
	_, ok = bounded.TryGet()
	assert.False(t, ok)
}

func TestMemory(t *testing.T) {
	m := kernel.NewMemory("rom", 4, 8)
	require.NoError(t, m.WriteUint(2, 0x1ab))

	v, err := m.Read(2)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xab), v.Uint64())
	assert.Equal(t, 8, v.Width())

	v, err = m.Read(3)
	require.NoError(t, err)
	assert.True(t, v.IsZero())

	for _, i := range []int{-1, 4} {
		_, err = m.Read(i)
		var idx *kernel.IndexError
		require.ErrorAs(t, err, &idx)
		assert.Equal(t, i, idx.Index)
		assert.Equal(t, "rom", idx.Memory)
		assert.Error(t, m.WriteUint(i, 1))
	}
}

func TestMemoryWritesAreImmediate(t *testing.T) {
	var seen uint64
	typ := &kernel.Type{
		Name:   "Scratch",
		Fields: []kernel.Field{field("clock", 1)},
		Build: func(b *kernel.Builder) {
			clk := b.Signal("clock")
			mem := b.Memory("mem", 2, 8)
			b.Sync("store", clk, func(ev *kernel.Eval) error {
				return mem.WriteUint(0, 5)
			})
			b.Sync("load", clk, func(ev *kernel.Eval) error {
				v, err := mem.Read(0)
				seen = v.Uint64()
				return err
			})
		},
	}
	s := newSim(t, typ)
	require.NoError(t, s.Tick(s.MustSignal("clock")))
	assert.Equal(t, uint64(5), seen)
}
