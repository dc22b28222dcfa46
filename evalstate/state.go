// Package evalstate stores the committed and pending values of every signal
// in a design. Signals are addressed by handles resolved once at
// elaboration; deferred writes are held until Commit moves them all at once.
package evalstate

import (
	"github.com/cespare/xxhash/v2"
	"github.com/delaneyj/deltasim/bits"
	"github.com/pkg/errors"
)

// Handle addresses a signal slot. The zero handle is never valid.
type Handle int32

const None Handle = 0

// Watcher is notified after a signal's committed value changed. h is the
// root handle of the changed signal.
type Watcher func(h Handle, old, cur bits.Value)

var (
	ErrUnknownSignal   = errors.New("unknown signal")
	ErrDuplicateSignal = errors.New("duplicate signal")
	ErrTiedSignal      = errors.New("signal is tied to a constant")
	ErrBoundSignal     = errors.New("signal is driven through a bind")
	ErrAlreadyBound    = errors.New("signal is already bound")
	ErrBindCycle       = errors.New("bind cycle")
	ErrWidthMismatch   = errors.New("width mismatch")
)

type slot struct {
	path     string
	width    int
	alias    Handle
	bound    bool
	tied     bool
	cur      bits.Value
	next     bits.Value
	pending  bool
	watchers []Watcher
}

// State is the signal arena of one simulated design. It is not safe for
// concurrent use.
type State struct {
	slots     []slot
	index     map[string]Handle
	pending   []Handle
	observers []Watcher
	changed   []change
}

type change struct {
	h        Handle
	old, cur bits.Value
}

func New() *State {
	return &State{
		slots: make([]slot, 1),
		index: map[string]Handle{},
	}
}

// Declare adds a signal with an initial committed value.
func (s *State) Declare(path string, width int, init bits.Value) (Handle, error) {
	if _, ok := s.index[path]; ok {
		return None, errors.Wrap(ErrDuplicateSignal, path)
	}
	h := Handle(len(s.slots))
	s.slots = append(s.slots, slot{
		path:  path,
		width: width,
		cur:   init.Resize(width),
	})
	s.index[path] = h
	return h, nil
}

func (s *State) valid(h Handle) bool {
	return h > None && int(h) < len(s.slots)
}

func (s *State) Lookup(path string) (Handle, bool) {
	h, ok := s.index[path]
	return h, ok
}

func (s *State) Path(h Handle) string {
	if !s.valid(h) {
		return ""
	}
	return s.slots[h].path
}

func (s *State) Width(h Handle) int {
	if !s.valid(h) {
		return bits.Unbounded
	}
	return s.slots[h].width
}

// Len returns the number of declared signals.
func (s *State) Len() int { return len(s.slots) - 1 }

// Signals returns every handle in declaration order.
func (s *State) Signals() []Handle {
	hs := make([]Handle, 0, s.Len())
	for h := 1; h < len(s.slots); h++ {
		hs = append(hs, Handle(h))
	}
	return hs
}

// Root follows alias links to the signal that owns storage for h.
func (s *State) Root(h Handle) Handle {
	if !s.valid(h) {
		return None
	}
	for s.slots[h].alias != None {
		h = s.slots[h].alias
	}
	return h
}

// IsRoot reports whether h owns its own storage.
func (s *State) IsRoot(h Handle) bool {
	return s.valid(h) && s.slots[h].alias == None
}

func (s *State) IsTied(h Handle) bool {
	r := s.Root(h)
	return r != None && s.slots[r].tied
}

// Read returns the committed value. Unknown handles read as an unbounded
// zero.
func (s *State) Read(h Handle) bits.Value {
	r := s.Root(h)
	if r == None {
		return bits.Zero(bits.Unbounded)
	}
	return s.slots[r].cur
}

// ReadPath reads by hierarchical path and never fails.
func (s *State) ReadPath(path string) bits.Value {
	return s.Read(s.index[path])
}

func (s *State) writable(h Handle) (Handle, error) {
	if !s.valid(h) {
		return None, errors.Wrapf(ErrUnknownSignal, "handle %d", h)
	}
	if s.slots[h].bound {
		return None, errors.Wrap(ErrBoundSignal, s.slots[h].path)
	}
	r := s.Root(h)
	if s.slots[r].tied {
		return None, errors.Wrap(ErrTiedSignal, s.slots[h].path)
	}
	return r, nil
}

// WriteImmediate commits v right away. Watchers run in registration order,
// and only when the masked value differs from the committed one.
func (s *State) WriteImmediate(h Handle, v bits.Value) (bool, error) {
	r, err := s.writable(h)
	if err != nil {
		return false, err
	}
	sl := &s.slots[r]
	v = v.Resize(sl.width)
	if sl.cur.Equal(v) {
		return false, nil
	}
	old := sl.cur
	sl.cur = v
	s.notify(r, old, v)
	return true, nil
}

// WriteDeferred records v as the pending value. The last write before
// Commit wins and Read is unaffected until then.
func (s *State) WriteDeferred(h Handle, v bits.Value) error {
	r, err := s.writable(h)
	if err != nil {
		return err
	}
	sl := &s.slots[r]
	if !sl.pending {
		sl.pending = true
		s.pending = append(s.pending, r)
	}
	sl.next = v.Resize(sl.width)
	return nil
}

// Pending returns the outstanding deferred value of h.
func (s *State) Pending(h Handle) (bits.Value, bool) {
	r := s.Root(h)
	if r == None || !s.slots[r].pending {
		return bits.Value{}, false
	}
	return s.slots[r].next, true
}

func (s *State) HasPending() bool { return len(s.pending) > 0 }

// Commit moves every pending value into the committed state, then notifies
// watchers of the signals that changed in first-write order. Watchers never
// see a partially committed batch. The changed root handles are returned.
func (s *State) Commit() []Handle {
	if len(s.pending) == 0 {
		return nil
	}
	s.changed = s.changed[:0]
	for _, r := range s.pending {
		sl := &s.slots[r]
		sl.pending = false
		if sl.cur.Equal(sl.next) {
			continue
		}
		s.changed = append(s.changed, change{h: r, old: sl.cur, cur: sl.next})
		sl.cur = sl.next
	}
	s.pending = s.pending[:0]

	changed := make([]change, len(s.changed))
	copy(changed, s.changed)
	hs := make([]Handle, len(changed))
	for i, c := range changed {
		hs[i] = c.h
		s.notify(c.h, c.old, c.cur)
	}
	return hs
}

// SetValue initializes a signal without notifying anyone.
func (s *State) SetValue(h Handle, v bits.Value) error {
	r := s.Root(h)
	if r == None {
		return errors.Wrapf(ErrUnknownSignal, "handle %d", h)
	}
	s.slots[r].cur = v.Resize(s.slots[r].width)
	return nil
}

// Watch appends a watcher to h's root.
func (s *State) Watch(h Handle, w Watcher) error {
	r := s.Root(h)
	if r == None {
		return errors.Wrapf(ErrUnknownSignal, "handle %d", h)
	}
	s.slots[r].watchers = append(s.slots[r].watchers, w)
	return nil
}

// Observe registers a hook called for every committed change after the
// signal's own watchers.
func (s *State) Observe(w Watcher) {
	s.observers = append(s.observers, w)
}

func (s *State) notify(r Handle, old, cur bits.Value) {
	for _, w := range s.slots[r].watchers {
		w(r, old, cur)
	}
	for _, w := range s.observers {
		w(r, old, cur)
	}
}

// Alias makes consumer share provider's storage. The consumer can no longer
// be written directly and takes the provider's committed value.
func (s *State) Alias(consumer, provider Handle) error {
	if !s.valid(consumer) || !s.valid(provider) {
		return errors.Wrapf(ErrUnknownSignal, "alias %d -> %d", consumer, provider)
	}
	c := &s.slots[consumer]
	if c.bound || c.tied {
		return errors.Wrap(ErrAlreadyBound, c.path)
	}
	if s.Root(provider) == consumer {
		return errors.Wrapf(ErrBindCycle, "%s -> %s", c.path, s.slots[provider].path)
	}
	if c.width != s.slots[provider].width {
		return errors.Wrapf(ErrWidthMismatch, "%s (%d) -> %s (%d)",
			c.path, c.width, s.slots[provider].path, s.slots[provider].width)
	}
	r := s.Root(provider)
	c.alias = provider
	c.bound = true
	if len(c.watchers) > 0 {
		s.slots[r].watchers = append(s.slots[r].watchers, c.watchers...)
		c.watchers = nil
	}
	if c.pending {
		c.pending = false
		for i, p := range s.pending {
			if p == consumer {
				s.pending = append(s.pending[:i], s.pending[i+1:]...)
				break
			}
		}
	}
	return nil
}

// Tie fixes h to a constant. Later writes fail with ErrTiedSignal.
func (s *State) Tie(h Handle, v bits.Value) error {
	if !s.valid(h) {
		return errors.Wrapf(ErrUnknownSignal, "handle %d", h)
	}
	sl := &s.slots[h]
	if sl.bound || sl.tied {
		return errors.Wrap(ErrAlreadyBound, sl.path)
	}
	sl.tied = true
	sl.cur = v.Resize(sl.width)
	return nil
}

// Digest hashes the path and committed value of every root signal.
func (s *State) Digest() uint64 {
	d := xxhash.New()
	buf := make([]byte, 0, 64)
	for h := 1; h < len(s.slots); h++ {
		sl := &s.slots[h]
		if sl.alias != None {
			continue
		}
		buf = append(buf[:0], sl.path...)
		buf = append(buf, 0)
		buf = sl.cur.AppendBytes(buf)
		d.Write(buf)
	}
	return d.Sum64()
}
