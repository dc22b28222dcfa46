package kernel

import (
	"fmt"
	"runtime"
	"sort"

	"github.com/delaneyj/deltasim/bits"
	"github.com/pkg/errors"
)

// TaskFunc is the body of a task. It may suspend by calling the Wait
// methods of t; a returned error fails the task.
type TaskFunc func(t *Task) error

type taskState uint8

const (
	taskReady taskState = iota
	taskRunning
	taskWaiting
	taskDone
)

type waitKind uint8

const (
	waitNone waitKind = iota
	waitTime
	waitDelta
	waitCond
	waitEvent
	waitEdge
	waitJoin
)

func (w waitKind) String() string {
	return [...]string{"none", "time", "delta", "condition", "event", "edge", "join"}[w]
}

// Task is a cooperatively scheduled thread of simulated behaviour. Its
// body runs on its own goroutine, but only while the scheduler has handed
// it control, so exactly one task runs at any moment.
type Task struct {
	id       uint64
	name     string
	sim      *Simulator
	parent   *Task
	comp     *Component
	body     TaskFunc
	detached bool
	children []*Task

	state   taskState
	wait    waitKind
	waitGen uint64
	cond    func() bool
	joiners []*Task
	joined  bool

	started bool
	killed  bool
	err     error
	resume  chan struct{}
	yield   chan struct{}
}

func (s *Simulator) newTask(name string, body TaskFunc, parent *Task, comp *Component) *Task {
	s.nextTaskID++
	t := &Task{
		id:     s.nextTaskID,
		name:   name,
		sim:    s,
		parent: parent,
		comp:   comp,
		body:   body,
		resume: make(chan struct{}),
		yield:  make(chan struct{}),
	}
	if parent == nil {
		t.detached = true
	} else {
		parent.children = append(parent.children, t)
	}
	s.tasks[t.id] = t
	s.ready(t)
	return t
}

func (t *Task) ID() uint64            { return t.id }
func (t *Task) Name() string          { return t.name }
func (t *Task) Parent() *Task         { return t.parent }
func (t *Task) Component() *Component { return t.comp }
func (t *Task) Now() Time             { return t.sim.now }
func (t *Task) Simulator() *Simulator { return t.sim }

// Done reports whether the task finished, failed or was killed.
func (t *Task) Done() bool { return t.done() }

func (t *Task) done() bool { return t.state == taskDone }

// Err returns the error the body returned, once done.
func (t *Task) Err() error { return t.err }

func (t *Task) String() string {
	return fmt.Sprintf("%s#%d", t.name, t.id)
}

func (t *Task) run() {
	defer func() {
		if r := recover(); r != nil {
			t.err = errors.Errorf("panic: %v", r)
		}
		t.state = taskDone
		t.yield <- struct{}{}
	}()
	<-t.resume
	if t.killed {
		return
	}
	t.err = t.body(t)
}

func (t *Task) mustRun(op string) {
	if t.sim.current != t {
		panic(errors.Errorf("task %s: %s called outside the task's own body", t, op))
	}
}

// suspend hands control back to the scheduler and parks until resumed.
func (t *Task) suspend(w waitKind) {
	if t.killed {
		runtime.Goexit()
	}
	t.state = taskWaiting
	t.wait = w
	t.waitGen++
	t.yield <- struct{}{}
	<-t.resume
	if t.killed {
		runtime.Goexit()
	}
}

// Wait suspends for d of simulated time. Wait(0) is a delta yield.
func (t *Task) Wait(d Time) {
	if d == 0 {
		t.WaitDelta()
		return
	}
	t.mustRun("Wait")
	t.sim.pushTimer(t.sim.now+d, t, t.waitGen+1, nil)
	t.suspend(waitTime)
}

// WaitDelta yields without advancing time. The task resumes after the
// instant's settled state has been seen by every other ready task.
func (t *Task) WaitDelta() {
	t.mustRun("WaitDelta")
	t.sim.deltaQ = append(t.sim.deltaQ, t)
	t.suspend(waitDelta)
}

// WaitUntil returns once pred holds. pred is evaluated by the scheduler
// after each settle; a predicate that already holds returns immediately.
func (t *Task) WaitUntil(pred func() bool) {
	t.mustRun("WaitUntil")
	if pred() {
		return
	}
	t.cond = pred
	t.sim.addCond(t)
	t.suspend(waitCond)
	t.cond = nil
}

// WaitEvent returns once ev is set. A set event returns immediately.
func (t *Task) WaitEvent(ev *Event) {
	t.mustRun("WaitEvent")
	if ev.set {
		return
	}
	ev.waiters = append(ev.waiters, t)
	t.suspend(waitEvent)
}

// WaitEdge returns after the next matching transition of sig.
func (t *Task) WaitEdge(sig Signal, e Edge) {
	t.mustRun("WaitEdge")
	t.sim.graph.addEdgeWait(sig, t, e)
	t.suspend(waitEdge)
}

// Fork starts a child task. The child's failure is reported by Join; a
// failed child that is not joined fails the simulation as soon as its
// parent is suspended in anything other than Join, or has returned.
func (t *Task) Fork(name string, body TaskFunc) *Task {
	return t.sim.newTask(name, body, t, t.comp)
}

// Join waits for child to finish and returns its error.
func (t *Task) Join(child *Task) error {
	t.mustRun("Join")
	if !child.done() {
		child.joiners = append(child.joiners, t)
		t.suspend(waitJoin)
	}
	child.joined = true
	switch {
	case child.killed:
		return errors.Wrap(ErrKilled, child.String())
	case child.err != nil:
		return &TaskError{Task: child.String(), Err: child.err}
	}
	return nil
}

// Kill cancels the task and its unfinished children. A killed task is never
// resumed again.
func (t *Task) Kill() {
	s := t.sim
	if t.done() {
		return
	}
	if s.current == t {
		for _, c := range t.children {
			s.kill(c)
		}
		t.killed = true
		runtime.Goexit()
	}
	s.kill(t)
}

func (t *Task) Get(sig Signal) bits.Value { return t.sim.state.Read(sig) }
func (t *Task) Uint(sig Signal) uint64    { return t.Get(sig).Uint64() }
func (t *Task) Bool(sig Signal) bool      { return t.Get(sig).Bool() }

// Set writes sig immediately. Dependent comb processes settle when the
// task next suspends.
func (t *Task) Set(sig Signal, v bits.Value) error {
	_, err := t.sim.state.WriteImmediate(sig, v)
	return errors.Wrapf(err, "task %s", t)
}

func (t *Task) SetUint(sig Signal, v uint64) error {
	return t.Set(sig, bits.New(t.sim.state.Width(sig), v))
}

func (s *Simulator) kill(t *Task) {
	for _, c := range t.children {
		if !c.done() {
			s.kill(c)
		}
	}
	if t.done() {
		return
	}
	t.killed = true
	if t == s.current {
		// unwinds at its next suspension point
		return
	}
	if t.started {
		t.resume <- struct{}{}
		<-t.yield
	}
	t.state = taskDone
	s.finish(t)
}

// finish releases a completed task and applies the failure rules.
func (s *Simulator) finish(t *Task) {
	delete(s.tasks, t.id)
	for _, j := range t.joiners {
		if !j.done() {
			s.ready(j)
		}
	}
	if t.err != nil && !t.killed && len(t.joiners) == 0 && t.detached {
		s.fail(&TaskError{Task: t.String(), Err: t.err})
	}
	if p := t.parent; p != nil && !t.detached && p.state == taskWaiting && p.wait != waitJoin {
		s.orphans(p)
	}
	for _, c := range t.children {
		if !c.done() {
			c.detached = true
		}
	}
	s.orphans(t)
}

// orphans fails the simulation for every child of t that failed and that
// nobody joined.
func (s *Simulator) orphans(t *Task) {
	for _, c := range t.children {
		if c.done() && c.err != nil && !c.joined && !c.killed && len(c.joiners) == 0 {
			c.joined = true
			s.fail(&TaskError{Task: c.String(), Err: c.err})
		}
	}
}

func (s *Simulator) liveTasks() []*Task {
	ts := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		ts = append(ts, t)
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].id < ts[j].id })
	return ts
}
