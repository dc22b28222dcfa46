package kernel

// Event is a level-triggered flag tasks can wait on. It stays set until
// cleared.
type Event struct {
	sim     *Simulator
	name    string
	set     bool
	waiters []*Task
	at      []TaskFunc
}

func (s *Simulator) NewEvent(name string) *Event {
	return &Event{sim: s, name: name}
}

func (e *Event) Name() string { return e.name }
func (e *Event) IsSet() bool  { return e.set }
func (e *Event) Clear()       { e.set = false }

// Set marks the event, wakes every waiter and starts one task per At hook.
func (e *Event) Set() {
	e.set = true
	ws := e.waiters
	e.waiters = nil
	for _, t := range ws {
		if !t.done() && t.wait == waitEvent {
			e.sim.ready(t)
		}
	}
	for _, body := range e.at {
		e.sim.newTask(e.name+".at", body, nil, nil)
	}
}

// At registers a task body started each time the event is set.
func (e *Event) At(body TaskFunc) {
	e.at = append(e.at, body)
}
