package designs

import (
	"github.com/delaneyj/deltasim/kernel"
)

// RAM is a synchronous single-port memory. On each rising edge it writes
// wdata when we is high and registers the word at addr into rdata, read
// before the write.
func RAM(words, width int) *kernel.Type {
	return &kernel.Type{
		Name: "RAM",
		Fields: []kernel.Field{
			{Name: "clock", Width: 1, Dir: kernel.Input},
			{Name: "we", Width: 1, Dir: kernel.Input},
			{Name: "addr", Width: 16, Dir: kernel.Input},
			{Name: "wdata", Width: width, Dir: kernel.Input},
			{Name: "rdata", Width: width, Dir: kernel.Output},
		},
		Build: func(b *kernel.Builder) {
			clock, we, addr := b.Signal("clock"), b.Signal("we"), b.Signal("addr")
			wdata, rdata := b.Signal("wdata"), b.Signal("rdata")
			mem := b.Memory("mem", words, width)
			b.Sync("access", clock, func(ev *kernel.Eval) error {
				a := int(ev.Uint(addr))
				v, err := mem.Read(a)
				if err != nil {
					return err
				}
				ev.Set(rdata, v)
				if ev.Bool(we) {
					return mem.Write(a, ev.Get(wdata))
				}
				return nil
			})
		},
	}
}
