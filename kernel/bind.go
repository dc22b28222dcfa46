package kernel

import (
	"github.com/delaneyj/deltasim/bits"
	"github.com/pkg/errors"
)

// bindSignals applies signal-to-signal and signal-to-constant binds in
// declaration order, parents before children. Binds whose ends are not
// both signals are returned for bindMethods.
func (s *Simulator) bindSignals() ([]pendingBind, error) {
	var rest []pendingBind
	var err error
	s.root.walk(func(c *Component) {
		for _, b := range c.typ.Binds {
			if err != nil {
				return
			}
			cons, ok := c.lookupSignal(b.Consumer)
			if b.Tied {
				if !ok {
					err = configErrorf("%s: tie of unknown signal %q", c.path, b.Consumer)
					return
				}
				if e := s.state.Tie(cons, bits.New(s.state.Width(cons), b.Value)); e != nil {
					err = errors.Wrapf(ErrConfig, "%s: %v", c.path, e)
				}
				continue
			}
			prov, pok := c.lookupSignal(b.Provider)
			switch {
			case ok && pok:
				if e := s.state.Alias(cons, prov); e != nil {
					err = errors.Wrapf(ErrConfig, "%s: bind %s -> %s: %v", c.path, b.Consumer, b.Provider, e)
				}
			case ok != pok:
				err = configErrorf("%s: bind %s -> %s mixes a signal with a non-signal", c.path, b.Consumer, b.Provider)
			default:
				rest = append(rest, pendingBind{comp: c, bind: b})
			}
		}
	})
	return rest, err
}

type pendingBind struct {
	comp *Component
	bind Bind
}

// bindMethods routes ports and exports once every component is built.
func (s *Simulator) bindMethods(binds []pendingBind) error {
	for _, pb := range binds {
		c, b := pb.comp, pb.bind
		cc, cname, ok1 := c.resolve(b.Consumer)
		pc, pname, ok2 := c.resolve(b.Provider)
		if !ok1 || !ok2 {
			return configErrorf("%s: bind %s -> %s: unknown path", c.path, b.Consumer, b.Provider)
		}
		if port, ok := cc.ports[cname]; ok {
			if port.Bound() {
				return configErrorf("%s: port %s is already bound", c.path, port.Path())
			}
			if ex, ok := pc.exports[pname]; ok {
				port.export = ex
				continue
			}
			if peer, ok := pc.ports[pname]; ok {
				port.peer = peer
				continue
			}
			return configErrorf("%s: bind %s -> %s: provider is not a port or export", c.path, b.Consumer, b.Provider)
		}
		if ex, ok := cc.exports[cname]; ok {
			target, ok := pc.exports[pname]
			if !ok {
				return configErrorf("%s: bind %s -> %s: export must bind to an export", c.path, b.Consumer, b.Provider)
			}
			if ex.target != nil {
				return configErrorf("%s: export %s is already bound", c.path, ex.Path())
			}
			ex.target = target
			continue
		}
		return configErrorf("%s: bind %s -> %s: unknown consumer", c.path, b.Consumer, b.Provider)
	}

	var err error
	s.root.walk(func(c *Component) {
		for _, p := range c.ports {
			if err != nil {
				return
			}
			if _, e := p.Impl(); e != nil && errors.Is(e, ErrConfig) {
				err = e
			}
		}
		for _, ex := range c.exports {
			if err != nil {
				return
			}
			if _, e := ex.resolve(nil); e != nil && errors.Is(e, ErrConfig) {
				err = e
			}
		}
	})
	return err
}
