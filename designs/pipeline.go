package designs

import (
	"github.com/delaneyj/deltasim/kernel"
)

// Sink accepts items; Put may suspend the calling task.
type Sink interface {
	Put(t *kernel.Task, v uint64)
}

type channelSink struct {
	ch *kernel.Channel[uint64]
}

func (s channelSink) Put(t *kernel.Task, v uint64) { s.ch.Put(t, v) }

// Producer sends 1..n through its out port, one item per period.
func Producer(n uint64, period kernel.Time) *kernel.Type {
	return &kernel.Type{
		Name: "Producer",
		Fields: []kernel.Field{
			{Name: "sent", Width: 32, Dir: kernel.Output},
		},
		Build: func(b *kernel.Builder) {
			out := b.Port("out")
			sent := b.Signal("sent")
			b.Process("produce", func(t *kernel.Task) error {
				sink, err := kernel.PortAs[Sink](out)
				if err != nil {
					return err
				}
				for i := uint64(1); i <= n; i++ {
					t.Wait(period)
					sink.Put(t, i)
					if err := t.SetUint(sent, i); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

// Consumer exports a bounded channel as "in" and accumulates what it
// receives into total, taking latency per item.
func Consumer(depth int, latency kernel.Time) *kernel.Type {
	return &kernel.Type{
		Name: "Consumer",
		Fields: []kernel.Field{
			{Name: "last", Width: 32, Dir: kernel.Output},
			{Name: "total", Width: 32, Dir: kernel.Output},
		},
		Build: func(b *kernel.Builder) {
			ch := kernel.NewChannel[uint64](b.Component().Path()+".in", depth)
			b.Export("in", channelSink{ch: ch})
			last, total := b.Signal("last"), b.Signal("total")
			b.Process("consume", func(t *kernel.Task) error {
				for {
					v := ch.Get(t)
					t.Wait(latency)
					if err := t.SetUint(last, v); err != nil {
						return err
					}
					if err := t.SetUint(total, t.Uint(total)+v); err != nil {
						return err
					}
				}
			})
		},
	}
}

// Pipeline connects a producer to a consumer through port/export binds.
//
//	producer.out ──> consumer.in
func Pipeline(n uint64) *kernel.Type {
	return &kernel.Type{
		Name: "Pipeline",
		Fields: []kernel.Field{
			{Name: "total", Width: 32, Dir: kernel.Output},
		},
		Subs: []kernel.Sub{
			{Name: "producer", Type: Producer(n, 10*kernel.NS)},
			{Name: "consumer", Type: Consumer(2, 25*kernel.NS)},
		},
		Binds: []kernel.Bind{
			kernel.Wire("total", "consumer.total"),
			kernel.Wire("producer.out", "consumer.in"),
		},
	}
}
