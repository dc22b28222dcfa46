// Package designs holds reference designs used by the command line tools
// and end-to-end tests.
package designs

import (
	"fmt"

	"github.com/delaneyj/deltasim/bits"
	"github.com/delaneyj/deltasim/kernel"
)

// Counter counts rising clock edges while reset is low.
//
//	clock, reset -> [tick] -> count
func Counter(width int) *kernel.Type {
	return &kernel.Type{
		Name: "Counter",
		Fields: []kernel.Field{
			{Name: "clock", Width: 1, Dir: kernel.Input},
			{Name: "reset", Width: 1, Dir: kernel.Input},
			{Name: "count", Width: width, Dir: kernel.Output},
		},
		Build: func(b *kernel.Builder) {
			clock, reset, count := b.Signal("clock"), b.Signal("reset"), b.Signal("count")
			one := bits.New(width, 1)
			b.Sync("tick", clock, func(ev *kernel.Eval) error {
				if ev.InReset() {
					ev.SetUint(count, 0)
					return nil
				}
				ev.Set(count, ev.Get(count).Add(one))
				return nil
			}, kernel.WithReset(reset))
		},
	}
}

// Cascade is two chained comb stages: sum = a + b, out = sum*2 + 1.
func Cascade() *kernel.Type {
	return &kernel.Type{
		Name: "Cascade",
		Fields: []kernel.Field{
			{Name: "a", Width: 16, Dir: kernel.Input},
			{Name: "b", Width: 16, Dir: kernel.Input},
			{Name: "sum", Width: 16, Dir: kernel.Internal},
			{Name: "out", Width: 16, Dir: kernel.Output},
		},
		Build: func(b *kernel.Builder) {
			a, bb, sum, out := b.Signal("a"), b.Signal("b"), b.Signal("sum"), b.Signal("out")
			b.Comb("stage1", func(ev *kernel.Eval) error {
				ev.Set(sum, ev.Get(a).Add(ev.Get(bb)))
				return nil
			}, a, bb)
			b.Comb("stage2", func(ev *kernel.Eval) error {
				ev.SetUint(out, ev.Uint(sum)*2+1)
				return nil
			})
		},
	}
}

// Divider toggles out every n rising edges of clock.
func Divider(n uint64) *kernel.Type {
	return &kernel.Type{
		Name: "Divider",
		Fields: []kernel.Field{
			{Name: "clock", Width: 1, Dir: kernel.Input},
			{Name: "out", Width: 1, Dir: kernel.Output},
			{Name: "phase", Width: 32, Dir: kernel.Internal},
		},
		Build: func(b *kernel.Builder) {
			clock, out, phase := b.Signal("clock"), b.Signal("out"), b.Signal("phase")
			b.Sync("divide", clock, func(ev *kernel.Eval) error {
				p := ev.Uint(phase) + 1
				if p >= n {
					p = 0
					ev.SetUint(out, ev.Uint(out)^1)
				}
				ev.SetUint(phase, p)
				return nil
			})
		},
	}
}

// Top wraps a counter and exposes twice its count through a comb process.
//
//	clock ─┬─> counter.clock
//	reset ─┴─> counter.reset    counter.count ─> [double] ─> doubled
func Top() *kernel.Type {
	return &kernel.Type{
		Name: "Top",
		Fields: []kernel.Field{
			{Name: "clock", Width: 1, Dir: kernel.Input},
			{Name: "reset", Width: 1, Dir: kernel.Input},
			{Name: "doubled", Width: 33, Dir: kernel.Output},
		},
		Subs: []kernel.Sub{{Name: "counter", Type: Counter(32)}},
		Binds: []kernel.Bind{
			kernel.Wire("counter.clock", "clock"),
			kernel.Wire("counter.reset", "reset"),
		},
		Build: func(b *kernel.Builder) {
			count, doubled := b.Signal("counter.count"), b.Signal("doubled")
			b.Comb("double", func(ev *kernel.Eval) error {
				ev.SetUint(doubled, ev.Uint(count)*2)
				return nil
			}, count)
		},
	}
}

// Grid is a w-wide, h-deep mesh of comb stages. Every stage of row r adds
// one to its predecessor in row r-1, so out[i] == in + h.
func Grid(w, h int) *kernel.Type {
	fields := []kernel.Field{{Name: "in", Width: 32, Dir: kernel.Input}}
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			fields = append(fields, kernel.Field{Name: cell(r, c), Width: 32})
		}
	}
	return &kernel.Type{
		Name:   fmt.Sprintf("Grid%dx%d", w, h),
		Fields: fields,
		Build: func(b *kernel.Builder) {
			one := bits.New(32, 1)
			for r := 0; r < h; r++ {
				for c := 0; c < w; c++ {
					src := b.Signal("in")
					if r > 0 {
						src = b.Signal(cell(r-1, c))
					}
					dst := b.Signal(cell(r, c))
					b.Comb(cell(r, c), func(ev *kernel.Eval) error {
						ev.Set(dst, ev.Get(src).Add(one))
						return nil
					}, src)
				}
			}
		},
	}
}

func cell(r, c int) string {
	return fmt.Sprintf("s%d_%d", r, c)
}

// GridOut is the name of the last-row signal of column c in a Grid.
func GridOut(h, c int) string {
	return cell(h-1, c)
}
