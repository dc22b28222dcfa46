package kernel_test

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/delaneyj/deltasim/bits"
	"github.com/delaneyj/deltasim/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := kernel.LoadConfig(writeConfig(t, `
comb_limit: 5
delta_limit: 100
drivers: strict
timescale: 10ps
log_level: debug
`))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.CombLimit)
	assert.Equal(t, 100, cfg.DeltaLimit)
	assert.Equal(t, kernel.DefaultConfig().InstantLimit, cfg.InstantLimit)
	assert.Equal(t, kernel.Strict, cfg.Drivers)
	assert.Equal(t, 10*kernel.PS, cfg.TimescaleUnit())

	lvl, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := kernel.LoadConfig(writeConfig(t, "delta_limits: 3\n"))
	assert.Error(t, err)

	_, err = kernel.LoadConfig(writeConfig(t, "drivers: sometimes\n"))
	assert.ErrorIs(t, err, kernel.ErrConfig)

	_, err = kernel.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, kernel.DefaultConfig().Validate())

	cases := map[string]func(*kernel.Config){
		"negative comb limit": func(c *kernel.Config) { c.CombLimit = -1 },
		"zero delta limit":    func(c *kernel.Config) { c.DeltaLimit = 0 },
		"zero instant limit":  func(c *kernel.Config) { c.InstantLimit = 0 },
		"bad timescale":       func(c *kernel.Config) { c.Timescale = "fortnight" },
		"bad log level":       func(c *kernel.Config) { c.LogLevel = "chatty" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := kernel.DefaultConfig()
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), kernel.ErrConfig)

			_, err := kernel.New(signals("x"), kernel.WithConfig(cfg))
			assert.ErrorIs(t, err, kernel.ErrConfig)
		})
	}
}

func TestParseTime(t *testing.T) {
	good := map[string]kernel.Time{
		"10ns":   10 * kernel.NS,
		"2.5us":  2500 * kernel.NS,
		"2.5µs":  2500 * kernel.NS,
		"1 ms":   kernel.MS,
		"1s":     kernel.S,
		"100fs":  100 * kernel.FS,
		"3ps":    3 * kernel.PS,
		"7":      7 * kernel.NS,
		" 4ns  ": 4 * kernel.NS,
	}
	for in, want := range good {
		got, err := kernel.ParseTime(in)
		if assert.NoError(t, err, in) {
			assert.Equal(t, want, got, in)
		}
	}
	for _, in := range []string{"", "ns", "5m", "10 Hz", "-1ns"} {
		_, err := kernel.ParseTime(in)
		assert.Error(t, err, in)
	}
}

func TestTimeString(t *testing.T) {
	assert.Equal(t, "0 s", kernel.Time(0).String())
	assert.Equal(t, "10 ns", (10 * kernel.NS).String())
	assert.Equal(t, "1.5 ns", (1500 * kernel.PS).String())
	assert.InDelta(t, 2e-6, (2 * kernel.US).Seconds(), 1e-18)
}

func TestLoggerCarriesSession(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := newSim(t, signals("x"), kernel.WithLogger(log), kernel.WithMeterProvider(noop.NewMeterProvider()))
	require.NoError(t, s.Advance(context.Background(), kernel.NS))

	out := buf.String()
	assert.Contains(t, out, "design elaborated")
	assert.Contains(t, out, "session_id="+s.SessionID())
	assert.Contains(t, out, "advanced")
	assert.Len(t, s.SessionID(), 12)
}

type recordingTracer struct {
	names   map[int][]string
	changes []string
}

func (r *recordingTracer) Register(id int, scope, name string, width int, dir kernel.Direction) {
	if r.names == nil {
		r.names = map[int][]string{}
	}
	r.names[id] = append(r.names[id], scope+"."+name)
}

func (r *recordingTracer) Change(at kernel.Time, id int, v bits.Value) {
	r.changes = append(r.changes, at.String()+" "+r.names[id][0]+"="+v.String())
}

func TestTracerSeesBoundSignalsOnce(t *testing.T) {
	child := &kernel.Type{Name: "Child", Fields: []kernel.Field{field("in", 8)}}
	typ := &kernel.Type{
		Name:   "Parent",
		Fields: []kernel.Field{field("x", 8)},
		Subs:   []kernel.Sub{{Name: "c", Type: child}},
		Binds:  []kernel.Bind{kernel.Wire("c.in", "x")},
	}
	tr := &recordingTracer{}
	s := newSim(t, typ, kernel.WithTracer(tr))

	x := s.MustSignal("x")
	assert.ElementsMatch(t, []string{"top.x", "top.c.in"}, tr.names[int(x)])
	assert.Len(t, tr.names, 1)

	s.Spawn("poke", func(t *kernel.Task) error {
		t.Wait(3 * kernel.NS)
		return t.SetUint(x, 9)
	})
	require.NoError(t, s.Advance(context.Background(), 5*kernel.NS))
	assert.Equal(t, []string{"0 s top.x=0", "3 ns top.x=9"}, tr.changes)
}
