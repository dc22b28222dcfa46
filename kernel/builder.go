package kernel

import (
	"github.com/pkg/errors"
)

// Builder registers the behaviour of one component instance. Signal
// lookups happen here, once; process bodies capture the returned handles.
// Lookup failures are collected and reported by New.
type Builder struct {
	sim  *Simulator
	comp *Component
	errs []error
}

func (b *Builder) Component() *Component { return b.comp }
func (b *Builder) Simulator() *Simulator { return b.sim }

func (b *Builder) errorf(format string, args ...any) {
	b.errs = append(b.errs, errors.Wrapf(configErrorf(format, args...), "component %s", b.comp.path))
}

// Signal resolves a path relative to the component, e.g. "count" or
// "child.count".
func (b *Builder) Signal(path string) Signal {
	h, ok := b.comp.lookupSignal(path)
	if !ok {
		b.errorf("unknown signal %q", path)
		return NoSignal
	}
	return h
}

func (b *Builder) newProcess(kind ProcKind, name string, body ProcFunc) *Process {
	if name == "" {
		b.errorf("%s process without a name", kind)
	}
	for _, p := range b.comp.procs {
		if p.name == name {
			b.errorf("duplicate process %q", name)
		}
	}
	if body == nil {
		b.errorf("%s process %q has no body", kind, name)
	}
	p := &Process{
		id:   len(b.sim.procs),
		kind: kind,
		name: name,
		comp: b.comp,
		body: body,
	}
	b.comp.procs = append(b.comp.procs, p)
	b.sim.procs = append(b.sim.procs, p)
	return p
}

// Comb registers a combinational process. Without sens the sensitivity is
// inferred from the signals the body reads.
func (b *Builder) Comb(name string, body ProcFunc, sens ...Signal) *Process {
	p := b.newProcess(Comb, name, body)
	for _, s := range sens {
		if s == NoSignal {
			b.errorf("comb process %q: invalid signal in sensitivity list", name)
		}
	}
	p.sens = sens
	p.infer = len(sens) == 0
	return p
}

// Sync registers a process evaluated on edges of clock.
func (b *Builder) Sync(name string, clock Signal, body ProcFunc, opts ...SyncOption) *Process {
	p := b.newProcess(Sync, name, body)
	p.clock = clock
	for _, o := range opts {
		o(p)
	}
	if clock == NoSignal || b.sim.state.Path(clock) == "" {
		b.errorf("sync process %q: clock is not a valid signal", name)
	}
	if p.reset != NoSignal && b.sim.state.Path(p.reset) == "" {
		b.errorf("sync process %q: reset is not a valid signal", name)
	}
	return p
}

// Process registers a task started when simulation begins.
func (b *Builder) Process(name string, body TaskFunc) *Task {
	if body == nil {
		b.errorf("process task %q has no body", name)
		return nil
	}
	return b.sim.newTask(b.comp.path+"."+name, body, nil, b.comp)
}

func (b *Builder) Port(name string) *Port {
	if _, ok := b.comp.ports[name]; ok {
		b.errorf("duplicate port %q", name)
	}
	p := &Port{name: name, comp: b.comp}
	b.comp.ports[name] = p
	return p
}

// Export declares a provided interface. impl may be nil when the export is
// bound to a sub-component's export.
func (b *Builder) Export(name string, impl any) *Export {
	if _, ok := b.comp.exports[name]; ok {
		b.errorf("duplicate export %q", name)
	}
	e := &Export{name: name, comp: b.comp, impl: impl}
	b.comp.exports[name] = e
	return e
}

func (b *Builder) Memory(name string, size, width int) *Memory {
	if size <= 0 {
		b.errorf("memory %q: size must be positive", name)
	}
	m := NewMemory(b.comp.path+"."+name, size, width)
	b.comp.memories[name] = m
	return m
}

func (b *Builder) Event(name string) *Event {
	return b.sim.NewEvent(b.comp.path + "." + name)
}
