package kernel

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/delaneyj/deltasim/bits"
	"github.com/pkg/errors"
)

type ProcKind uint8

const (
	Comb ProcKind = iota
	Sync
)

func (k ProcKind) String() string {
	if k == Sync {
		return "sync"
	}
	return "comb"
}

// Edge selects the clock transition a sync process or edge wait reacts to.
type Edge uint8

const (
	Posedge Edge = iota
	Negedge
	AnyEdge
)

func (e Edge) String() string {
	switch e {
	case Negedge:
		return "negedge"
	case AnyEdge:
		return "edge"
	default:
		return "posedge"
	}
}

func (e Edge) matches(old, cur bits.Value) bool {
	o, c := old.Bit(0), cur.Bit(0)
	switch e {
	case Posedge:
		return o == 0 && c == 1
	case Negedge:
		return o == 1 && c == 0
	default:
		return !old.Equal(cur)
	}
}

// ProcFunc is the body of a comb or sync process. A returned error stops
// the simulation.
type ProcFunc func(ev *Eval) error

// Process is a comb or sync process bound to its owning component.
type Process struct {
	id   int
	kind ProcKind
	name string
	comp *Component
	body ProcFunc

	// comb
	sens  []Signal
	infer bool

	// sync
	clock    Signal
	reset    Signal
	edge     Edge
	resetLow bool

	queued bool
	fires  int
	wrote  []Signal
}

func (p *Process) Kind() ProcKind { return p.kind }
func (p *Process) Name() string   { return p.name }

// Path is the process name qualified by its component path.
func (p *Process) Path() string {
	return p.comp.path + "." + p.name
}

type SyncOption func(*Process)

// WithReset attaches a reset signal, readable through Eval.InReset.
func WithReset(rst Signal) SyncOption {
	return func(p *Process) { p.reset = rst }
}

func OnEdge(e Edge) SyncOption {
	return func(p *Process) { p.edge = e }
}

// ResetActiveLow makes InReset report true while the reset signal is 0.
func ResetActiveLow() SyncOption {
	return func(p *Process) { p.resetLow = true }
}

// Eval is the access context handed to a process body. Comb processes
// write immediately; sync processes defer their writes to the commit that
// follows the clock edge. The first failed write is returned after the body.
type Eval struct {
	sim   *Simulator
	proc  *Process
	reads mapset.Set[Signal]
	err   error
}

func (ev *Eval) Process() *Process { return ev.proc }
func (ev *Eval) Now() Time        { return ev.sim.now }

func (ev *Eval) Get(s Signal) bits.Value {
	if ev.proc.infer {
		ev.reads.Add(ev.sim.state.Root(s))
	}
	return ev.sim.state.Read(s)
}

func (ev *Eval) Uint(s Signal) uint64 { return ev.Get(s).Uint64() }
func (ev *Eval) Bool(s Signal) bool   { return ev.Get(s).Bool() }

func (ev *Eval) Set(s Signal, v bits.Value) {
	if ev.err != nil {
		return
	}
	var err error
	if ev.proc.kind == Sync {
		err = ev.sim.deferWrite(ev.proc, s, v)
	} else {
		_, err = ev.sim.state.WriteImmediate(s, v)
	}
	if err != nil {
		ev.err = errors.Wrapf(err, "%s %s writing %s", ev.proc.kind, ev.proc.Path(), ev.sim.state.Path(s))
		return
	}
	ev.proc.wrote = append(ev.proc.wrote, ev.sim.state.Root(s))
}

// SetUint writes v masked to the signal's width.
func (ev *Eval) SetUint(s Signal, v uint64) {
	ev.Set(s, bits.New(ev.sim.state.Width(s), v))
}

func (ev *Eval) SetBool(s Signal, b bool) {
	ev.Set(s, bits.Bool(b))
}

// InReset reports whether the sync process' reset is asserted. Processes
// without a reset are never in reset.
func (ev *Eval) InReset() bool {
	p := ev.proc
	if p.reset == NoSignal {
		return false
	}
	on := ev.sim.state.Read(p.reset).Bool()
	if p.resetLow {
		return !on
	}
	return on
}

// Fail records err to be returned once the body finishes.
func (ev *Eval) Fail(err error) {
	if ev.err == nil && err != nil {
		ev.err = err
	}
}

func (s *Simulator) evaluate(p *Process) error {
	ev := Eval{sim: s, proc: p}
	if p.infer {
		ev.reads = mapset.NewThreadUnsafeSet[Signal]()
	}
	p.wrote = p.wrote[:0]
	err := p.body(&ev)
	if err != nil {
		return errors.Wrapf(err, "%s process %s", p.kind, p.Path())
	}
	if ev.err != nil {
		return ev.err
	}
	if p.infer {
		for _, r := range ev.reads.ToSlice() {
			s.graph.addComb(r, p)
		}
	}
	return nil
}
