// Package kernel simulates hierarchical hardware/software designs under
// discrete-event semantics: comb processes settle through delta cycles,
// sync processes commit deferred writes on clock edges and tasks advance
// simulated time cooperatively.
package kernel

import (
	"context"
	"log/slog"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/delaneyj/deltasim/bits"
	"github.com/delaneyj/deltasim/evalstate"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/metric"
)

// Simulator owns an elaborated design. It is not safe for concurrent use;
// independent simulators may run in parallel.
type Simulator struct {
	cfg           Config
	log           *slog.Logger
	tracer        Tracer
	meterProvider metric.MeterProvider
	sessionID     string

	state   *evalstate.State
	graph   *graph
	root    *Component
	procs   []*Process
	numComb int

	queue     []*Process
	triggered mapset.Set[*Process]
	drivers   map[Signal]*Process
	settling  bool

	now        Time
	seq        uint64
	timers     timerHeap
	readyQ     []readyItem
	deltaQ     []*Task
	condQ      []*Task
	tasks      map[uint64]*Task
	current    *Task
	nextTaskID uint64

	fatal  error
	closed bool

	stats       Stats
	flushed     Stats
	flushedNow  Time
	metricsOnce sync.Once
	inst        instruments
}

const rootName = "top"

// New elaborates top: it declares every signal of the tree, applies binds,
// builds processes and settles the initial state.
func New(top *Type, opts ...Option) (*Simulator, error) {
	s := &Simulator{
		cfg:       DefaultConfig(),
		log:       slog.Default(),
		state:     evalstate.New(),
		triggered: mapset.NewThreadUnsafeSet[*Process](),
		drivers:   map[Signal]*Process{},
		tasks:     map[uint64]*Task{},
		sessionID: uuid.NewString()[:12],
	}
	for _, o := range opts {
		o(s)
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	s.graph = newGraph(s)
	if err := s.elaborate(top); err != nil {
		s.log.Error("elaboration failed",
			slog.String("session_id", s.sessionID),
			slog.String("error", err.Error()),
		)
		s.Shutdown()
		return nil, err
	}
	s.log.Info("design elaborated",
		slog.String("session_id", s.sessionID),
		slog.String("design", top.Name),
		slog.Int("signals", s.state.Len()),
		slog.Int("processes", len(s.procs)),
		slog.Int("tasks", len(s.tasks)),
	)
	return s, nil
}

func (s *Simulator) elaborate(top *Type) error {
	if top == nil {
		return configErrorf("nil top type")
	}
	root, err := s.instantiate(rootName, top, nil, nil)
	if err != nil {
		return err
	}
	s.root = root

	methodBinds, err := s.bindSignals()
	if err != nil {
		return err
	}

	var errs []error
	s.root.walkPost(func(c *Component) {
		if c.typ.Build == nil {
			return
		}
		b := &Builder{sim: s, comp: c}
		c.typ.Build(b)
		errs = append(errs, b.errs...)
	})
	if len(errs) > 0 {
		return errs[0]
	}
	if err := s.bindMethods(methodBinds); err != nil {
		return err
	}

	for _, p := range s.procs {
		switch p.kind {
		case Comb:
			s.numComb++
			for _, sig := range p.sens {
				s.graph.addComb(sig, p)
			}
			s.enqueue(p)
		case Sync:
			s.graph.addSync(p)
		}
	}
	if err := s.settle(); err != nil {
		return errors.Wrap(err, "initial settle")
	}
	s.installTracer()
	return nil
}

func (s *Simulator) instantiate(name string, typ *Type, parent *Component, stack []*Type) (*Component, error) {
	for _, t := range stack {
		if t == typ {
			return nil, configErrorf("type %s contains itself", typ.Name)
		}
	}
	stack = append(stack, typ)

	c := newComponent(name, typ, parent)
	for _, f := range typ.Fields {
		if f.Name == "" {
			return nil, configErrorf("%s: field without a name", c.path)
		}
		if _, ok := c.fields[f.Name]; ok {
			return nil, configErrorf("%s: duplicate field %q", c.path, f.Name)
		}
		if f.Width < 0 {
			return nil, configErrorf("%s.%s: negative width", c.path, f.Name)
		}
		h, err := s.state.Declare(c.path+"."+f.Name, f.Width, bits.New(f.Width, f.Reset))
		if err != nil {
			return nil, errors.Wrap(ErrConfig, err.Error())
		}
		c.fields[f.Name] = f
		c.signals[f.Name] = h
	}
	for _, sub := range typ.Subs {
		if sub.Type == nil {
			return nil, configErrorf("%s: sub-component %q has no type", c.path, sub.Name)
		}
		if _, ok := c.fields[sub.Name]; ok {
			return nil, configErrorf("%s: %q is both a field and a sub-component", c.path, sub.Name)
		}
		if _, ok := c.byName[sub.Name]; ok {
			return nil, configErrorf("%s: duplicate sub-component %q", c.path, sub.Name)
		}
		ch, err := s.instantiate(sub.Name, sub.Type, c, stack)
		if err != nil {
			return nil, err
		}
		c.children = append(c.children, ch)
		c.byName[sub.Name] = ch
	}
	return c, nil
}

func (s *Simulator) fail(err error) error {
	if s.fatal == nil {
		s.fatal = err
		s.log.Error("simulation failed",
			slog.String("session_id", s.sessionID),
			slog.String("now", s.now.String()),
			slog.String("error", err.Error()),
		)
	}
	return s.fatal
}

func (s *Simulator) usable() error {
	if s.closed {
		return ErrShutdown
	}
	return s.fatal
}

func (s *Simulator) Root() *Component      { return s.root }
func (s *Simulator) Now() Time             { return s.now }
func (s *Simulator) Config() Config        { return s.cfg }
func (s *Simulator) SessionID() string     { return s.sessionID }
func (s *Simulator) Stats() Stats          { return s.stats }
func (s *Simulator) Err() error            { return s.fatal }
func (s *Simulator) Digest() uint64        { return s.state.Digest() }
func (s *Simulator) Processes() []*Process { return s.procs }

// Signal resolves a path relative to the root component.
func (s *Simulator) Signal(path string) (Signal, error) {
	h, ok := s.root.lookupSignal(path)
	if !ok {
		return NoSignal, errors.Wrap(evalstate.ErrUnknownSignal, path)
	}
	return h, nil
}

// MustSignal is Signal that panics on unknown paths.
func (s *Simulator) MustSignal(path string) Signal {
	h, err := s.Signal(path)
	if err != nil {
		panic(err)
	}
	return h
}

// Path returns the hierarchical name of a signal.
func (s *Simulator) Path(sig Signal) string { return s.state.Path(sig) }
func (s *Simulator) Width(sig Signal) int   { return s.state.Width(sig) }

func (s *Simulator) Get(sig Signal) bits.Value { return s.state.Read(sig) }
func (s *Simulator) GetUint(sig Signal) uint64 { return s.state.Read(sig).Uint64() }

// Set writes sig immediately and settles the design. Called from within a
// task it behaves like Task.Set.
func (s *Simulator) Set(sig Signal, v bits.Value) error {
	if err := s.usable(); err != nil {
		return err
	}
	if _, err := s.state.WriteImmediate(sig, v); err != nil {
		return err
	}
	if s.current != nil {
		return nil
	}
	return s.Settle()
}

func (s *Simulator) SetUint(sig Signal, v uint64) error {
	return s.Set(sig, bits.New(s.state.Width(sig), v))
}

// Settle runs delta cycles until the design is stable.
func (s *Simulator) Settle() error {
	if err := s.usable(); err != nil {
		return err
	}
	if err := s.settle(); err != nil {
		return s.fail(err)
	}
	if s.log.Enabled(context.Background(), slog.LevelDebug) {
		s.log.Debug("settled",
			slog.String("session_id", s.sessionID),
			slog.String("now", s.now.String()),
			slog.Uint64("deltas", s.stats.Deltas),
		)
	}
	return nil
}

// Tick drives one full clock pulse, 1 then 0, settling after each half.
func (s *Simulator) Tick(clk Signal) error {
	if err := s.SetUint(clk, 1); err != nil {
		return err
	}
	return s.SetUint(clk, 0)
}

// Spawn starts a detached task. Its failure stops the simulation.
func (s *Simulator) Spawn(name string, body TaskFunc) *Task {
	return s.newTask(name, body, nil, nil)
}

// Clock spawns a task toggling clk every half period, starting high after
// the first half period.
func (s *Simulator) Clock(clk Signal, period Time) *Task {
	half := period / 2
	if half == 0 {
		half = 1
	}
	return s.Spawn(s.state.Path(clk)+".clock", func(t *Task) error {
		for {
			t.Wait(half)
			if err := t.SetUint(clk, t.Uint(clk)^1); err != nil {
				return err
			}
		}
	})
}

// Shutdown kills every live task and releases their goroutines. The
// simulator cannot be advanced afterwards.
func (s *Simulator) Shutdown() {
	if s.closed {
		return
	}
	if s.current != nil {
		panic(errors.New("Shutdown called from inside a task"))
	}
	live := s.liveTasks()
	for _, t := range live {
		s.kill(t)
	}
	s.closed = true
	s.timers = nil
	s.readyQ = nil
	s.deltaQ = nil
	s.condQ = nil
	s.log.Debug("simulator shut down",
		slog.String("session_id", s.sessionID),
		slog.Int("tasks_killed", len(live)),
	)
}
