package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/delaneyj/deltasim/designs"
	"github.com/delaneyj/deltasim/kernel"
	"github.com/delaneyj/deltasim/vcd"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
)

const (
	designKey   = "design"
	configKey   = "config"
	vcdKey      = "vcd"
	durationKey = "duration"
	listKey     = "list"
)

func main() {
	cmd := &cli.Command{
		Name:  "deltasim",
		Usage: "Simulate a reference design on the delta-cycle kernel",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  designKey,
				Usage: "Scenario to run",
				Value: "counter",
			},
			&cli.StringFlag{
				Name:  configKey,
				Usage: "YAML kernel configuration",
			},
			&cli.StringFlag{
				Name:  vcdKey,
				Usage: "Write a waveform to this file",
			},
			&cli.StringFlag{
				Name:  durationKey,
				Usage: "Simulated time to run, e.g. 500ns; defaults to the scenario's",
			},
			&cli.BoolFlag{
				Name:  listKey,
				Usage: "List the available scenarios",
			},
		},
		Action: simulate,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func simulate(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool(listKey) {
		listScenarios()
		return nil
	}

	sc, ok := designs.Lookup(cmd.String(designKey))
	if !ok {
		return errors.Errorf("unknown design %q, see --%s", cmd.String(designKey), listKey)
	}

	cfg := kernel.DefaultConfig()
	if path := cmd.String(configKey); path != "" {
		var err error
		if cfg, err = kernel.LoadConfig(path); err != nil {
			return err
		}
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	duration := sc.Duration
	if d := cmd.String(durationKey); d != "" {
		if duration, err = kernel.ParseTime(d); err != nil {
			return err
		}
	}

	opts := []kernel.Option{kernel.WithConfig(cfg), kernel.WithLogger(logger)}
	var wave *vcd.Writer
	if path := cmd.String(vcdKey); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return errors.Wrap(err, "create vcd")
		}
		defer f.Close()
		wave = vcd.New(f, vcd.WithTimescale(cfg.TimescaleUnit()))
		opts = append(opts, kernel.WithTracer(wave))
	}

	s, err := kernel.New(sc.Type(), opts...)
	if err != nil {
		return err
	}
	defer s.Shutdown()

	if err := sc.Stimulus(s); err != nil {
		return errors.Wrapf(err, "stimulus for %s", sc.Name)
	}

	start := time.Now()
	log.Printf("Simulating %s for %s", sc.Name, duration)
	runErr := s.Advance(ctx, duration)
	log.Printf("Simulation of %s stopped at %s after %v", sc.Name, s.Now(), time.Since(start))

	if wave != nil {
		if err := wave.Close(); err != nil {
			return err
		}
		log.Printf("Waveform written to %s", cmd.String(vcdKey))
	}

	printSignals(s)
	printStats(s.Stats())
	return runErr
}

func listScenarios() {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"design", "duration", "description"})
	for _, name := range designs.Names() {
		sc, _ := designs.Lookup(name)
		table.Append([]string{sc.Name, sc.Duration.String(), sc.Description})
	}
	table.Render()
}

func printSignals(s *kernel.Simulator) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"signal", "width", "dir", "value"})
	var walk func(c *kernel.Component)
	walk = func(c *kernel.Component) {
		for _, f := range c.Type().Fields {
			h, ok := c.Signal(f.Name)
			if !ok {
				continue
			}
			width := "-"
			if f.Width > 0 {
				width = strconv.Itoa(f.Width)
			}
			table.Append([]string{s.Path(h), width, f.Dir.String(), s.Get(h).String()})
		}
		for _, ch := range c.Children() {
			walk(ch)
		}
	}
	walk(s.Root())
	table.Render()
}

func printStats(st kernel.Stats) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"counter", "total"})
	rows := []struct {
		name string
		n    uint64
	}{
		{"instants", st.Instants},
		{"deltas", st.Deltas},
		{"commits", st.Commits},
		{"comb evaluations", st.CombEvals},
		{"sync evaluations", st.SyncEvals},
		{"task resumptions", st.Resumptions},
	}
	for _, r := range rows {
		table.Append([]string{r.name, humanize.Comma(int64(r.n))})
	}
	table.Render()
}
