package kernel

import (
	"strings"

	"github.com/delaneyj/deltasim/evalstate"
)

// Signal is a handle to a signal resolved at elaboration.
type Signal = evalstate.Handle

const NoSignal Signal = evalstate.None

type Direction uint8

const (
	Internal Direction = iota
	Input
	Output
	InOut
)

func (d Direction) String() string {
	switch d {
	case Input:
		return "input"
	case Output:
		return "output"
	case InOut:
		return "inout"
	default:
		return "internal"
	}
}

// Field declares a signal of a component type.
type Field struct {
	Name  string
	Width int
	Dir   Direction
	Reset uint64
}

// Sub declares a named sub-component instance.
type Sub struct {
	Name string
	Type *Type
}

// Bind connects a consumer to a provider, both given as paths relative to
// the component declaring the bind. Tied binds carry a constant instead of
// a provider.
type Bind struct {
	Consumer string
	Provider string
	Value    uint64
	Tied     bool
}

// Wire binds consumer to provider. Signals alias, ports and exports route
// method calls.
func Wire(consumer, provider string) Bind {
	return Bind{Consumer: consumer, Provider: provider}
}

// Tie binds a signal to a constant.
func Tie(consumer string, v uint64) Bind {
	return Bind{Consumer: consumer, Value: v, Tied: true}
}

// Type describes a component. Build runs once per instance after every
// signal of the tree exists and signal binds are applied.
type Type struct {
	Name   string
	Fields []Field
	Subs   []Sub
	Binds  []Bind
	Build  func(b *Builder)
}

// Component is an elaborated instance of a Type.
type Component struct {
	name     string
	path     string
	typ      *Type
	parent   *Component
	children []*Component
	byName   map[string]*Component
	signals  map[string]Signal
	fields   map[string]Field
	ports    map[string]*Port
	exports  map[string]*Export
	memories map[string]*Memory
	procs    []*Process
}

func newComponent(name string, typ *Type, parent *Component) *Component {
	path := name
	if parent != nil {
		path = parent.path + "." + name
	}
	return &Component{
		name:     name,
		path:     path,
		typ:      typ,
		parent:   parent,
		byName:   map[string]*Component{},
		signals:  map[string]Signal{},
		fields:   map[string]Field{},
		ports:    map[string]*Port{},
		exports:  map[string]*Export{},
		memories: map[string]*Memory{},
	}
}

func (c *Component) Name() string                 { return c.name }
func (c *Component) Path() string                 { return c.path }
func (c *Component) Type() *Type                  { return c.typ }
func (c *Component) Parent() *Component           { return c.parent }
func (c *Component) Children() []*Component       { return c.children }
func (c *Component) Child(name string) *Component { return c.byName[name] }

// Signal returns a local field's handle.
func (c *Component) Signal(name string) (Signal, bool) {
	h, ok := c.signals[name]
	return h, ok
}

func (c *Component) Port(name string) *Port     { return c.ports[name] }
func (c *Component) Export(name string) *Export { return c.exports[name] }
func (c *Component) Memory(name string) *Memory { return c.memories[name] }

// resolve walks a dotted relative path down to the owning component and
// returns it with the trailing member name.
func (c *Component) resolve(path string) (*Component, string, bool) {
	parts := strings.Split(path, ".")
	cur := c
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur.byName[p]
		if !ok {
			return nil, "", false
		}
		cur = next
	}
	return cur, parts[len(parts)-1], true
}

func (c *Component) lookupSignal(path string) (Signal, bool) {
	owner, name, ok := c.resolve(path)
	if !ok {
		return NoSignal, false
	}
	h, ok := owner.signals[name]
	return h, ok
}

// walk visits the tree in pre-order.
func (c *Component) walk(fn func(*Component)) {
	fn(c)
	for _, ch := range c.children {
		ch.walk(fn)
	}
}

// walkPost visits children before their parent.
func (c *Component) walkPost(fn func(*Component)) {
	for _, ch := range c.children {
		ch.walkPost(fn)
	}
	fn(c)
}
