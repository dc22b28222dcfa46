package kernel

import "github.com/delaneyj/deltasim/bits"

// Tracer records signal changes. Signals sharing storage through a bind
// are registered with the same id.
type Tracer interface {
	Register(id int, scope, name string, width int, dir Direction)
	Change(at Time, id int, v bits.Value)
}

func (s *Simulator) installTracer() {
	if s.tracer == nil {
		return
	}
	s.root.walk(func(c *Component) {
		for _, f := range c.typ.Fields {
			h := c.signals[f.Name]
			s.tracer.Register(int(s.state.Root(h)), c.path, f.Name, f.Width, f.Dir)
		}
	})
	for _, h := range s.state.Signals() {
		if s.state.IsRoot(h) {
			s.tracer.Change(s.now, int(h), s.state.Read(h))
		}
	}
	s.state.Observe(func(h Signal, _, cur bits.Value) {
		s.tracer.Change(s.now, int(h), cur)
	})
}
