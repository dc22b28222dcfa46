package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"runtime/pprof"
	"time"

	"github.com/delaneyj/deltasim/designs"
	"github.com/delaneyj/deltasim/kernel"
	"github.com/jamiealquiza/tachymeter"
	"github.com/jedib0t/go-pretty/v6/table"
)

var (
	ww    = []int{1, 10, 100}
	hh    = []int{1, 10, 100}
	iters = 100

	profile = flag.String("cpuprofile", "", "write a CPU profile, e.g. default.pgo")
)

func main() {
	flag.Parse()

	if *profile != "" {
		f, err := os.Create(*profile)
		if err != nil {
			log.Fatal(err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal(err)
		}
		defer pprof.StopCPUProfile()
	}

	// kernel logging would dominate the timings
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	log.Printf("warming up")
	benchmarkPropagate(false)

	benchmarkPropagate(true)
	benchmarkClocked(true)
}

func newTable(title string) table.Writer {
	tbl := table.NewWriter()
	tbl.SetTitle(title)
	tbl.SetOutputMirror(os.Stdout)
	tbl.AppendHeader(table.Row{"benchmark", "avg", "min", "p75", "p99", "max"})
	return tbl
}

func appendCalc(tbl table.Writer, name string, calc *tachymeter.Metrics) {
	tbl.AppendRows([]table.Row{
		{
			name,
			calc.Time.Avg,
			calc.Time.Min,
			calc.Time.P75,
			calc.Time.P99,
			calc.Time.Max,
		},
	})
}

// benchmarkPropagate times one settle of a w*h comb grid after its input
// changes.
func benchmarkPropagate(shouldRender bool) {
	tbl := newTable("Comb propagation")

	for _, w := range ww {
		for _, h := range hh {
			tach := tachymeter.New(&tachymeter.Config{Size: iters})

			s, err := kernel.New(designs.Grid(w, h))
			if err != nil {
				log.Fatal(err)
			}
			in := s.MustSignal("in")
			out := s.MustSignal(designs.GridOut(h, w-1))

			for i := 0; i < iters; i++ {
				start := time.Now()
				if err := s.SetUint(in, s.GetUint(in)+1); err != nil {
					log.Fatal(err)
				}
				tach.AddTime(time.Since(start))
			}
			if got, want := s.GetUint(out), uint64(iters+h); got != want {
				log.Fatalf("grid %dx%d settled to %d, want %d", w, h, got, want)
			}
			s.Shutdown()

			appendCalc(tbl, fmt.Sprintf("propagate: %d * %d", w, h), tach.Calc())
		}
	}

	if shouldRender {
		tbl.Render()
	}
}

// benchmarkClocked times one clock period of task-driven designs, which
// includes the task hand-off, the edge and the commit.
func benchmarkClocked(shouldRender bool) {
	tbl := newTable("Clocked designs")
	ctx := context.Background()

	for _, name := range []string{"counter", "top", "divider"} {
		sc, _ := designs.Lookup(name)
		tach := tachymeter.New(&tachymeter.Config{Size: iters})

		s, err := kernel.New(sc.Type())
		if err != nil {
			log.Fatal(err)
		}
		if err := sc.Stimulus(s); err != nil {
			log.Fatal(err)
		}
		for i := 0; i < iters; i++ {
			start := time.Now()
			if err := s.Advance(ctx, 10*kernel.NS); err != nil {
				log.Fatal(err)
			}
			tach.AddTime(time.Since(start))
		}
		s.Shutdown()

		appendCalc(tbl, "period: "+name, tach.Calc())
	}

	if shouldRender {
		tbl.Render()
	}
}
