package kernel

import (
	"github.com/pkg/errors"
)

// Port is a required interface of a component. It is bound to an export,
// or to a port of an enclosing component that forwards it.
type Port struct {
	name   string
	comp   *Component
	peer   *Port
	export *Export
}

// Export is a provided interface. impl is any value whose methods
// implement it; methods that take a *Task may suspend.
type Export struct {
	name   string
	comp   *Component
	impl   any
	target *Export
}

func (p *Port) Name() string { return p.name }
func (p *Port) Path() string { return p.comp.path + "." + p.name }

func (p *Port) Bound() bool { return p.peer != nil || p.export != nil }

func (e *Export) Name() string { return e.name }
func (e *Export) Path() string { return e.comp.path + "." + e.name }

// Impl follows the bind chain to the implementing value.
func (p *Port) Impl() (any, error) {
	ex, err := p.resolve(nil)
	if err != nil {
		return nil, err
	}
	return ex.resolve(nil)
}

func (p *Port) resolve(seen map[any]bool) (*Export, error) {
	cur := p
	for {
		if seen[cur] {
			return nil, configErrorf("bind cycle through port %s", cur.Path())
		}
		if seen == nil {
			seen = map[any]bool{}
		}
		seen[cur] = true
		switch {
		case cur.export != nil:
			return cur.export, nil
		case cur.peer != nil:
			cur = cur.peer
		default:
			return nil, errors.Wrap(ErrUnboundPort, cur.Path())
		}
	}
}

func (e *Export) resolve(seen map[any]bool) (any, error) {
	cur := e
	for {
		if seen == nil {
			seen = map[any]bool{}
		}
		if seen[cur] {
			return nil, configErrorf("bind cycle through export %s", cur.Path())
		}
		seen[cur] = true
		if cur.target == nil {
			if cur.impl == nil {
				return nil, errors.Wrapf(ErrUnboundPort, "export %s has no implementation", cur.Path())
			}
			return cur.impl, nil
		}
		cur = cur.target
	}
}

// PortAs resolves p and asserts the implementation to T.
func PortAs[T any](p *Port) (T, error) {
	var zero T
	impl, err := p.Impl()
	if err != nil {
		return zero, err
	}
	v, ok := impl.(T)
	if !ok {
		return zero, errors.Errorf("port %s: %T does not implement %T", p.Path(), impl, (*T)(nil))
	}
	return v, nil
}
