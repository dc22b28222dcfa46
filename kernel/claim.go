package kernel

import "github.com/pkg/errors"

type claimState uint8

const (
	claimFree claimState = iota
	claimLocked
	claimShared
)

// ClaimPool hands out exclusive or shared claims on a fixed list of
// resources. Tasks block until a resource accepted by their filter frees up.
type ClaimPool[T any] struct {
	name      string
	resources []T
	state     []claimState
	shares    []int
}

// Claim is a held resource. Drop releases it exactly once.
type Claim[T any] struct {
	pool    *ClaimPool[T]
	id      int
	dropped bool
}

func NewClaimPool[T any](name string, resources ...T) *ClaimPool[T] {
	return &ClaimPool[T]{
		name:      name,
		resources: resources,
		state:     make([]claimState, len(resources)),
		shares:    make([]int, len(resources)),
	}
}

func (p *ClaimPool[T]) Len() int { return len(p.resources) }

func (p *ClaimPool[T]) pick(filter func(T, int) bool, ok func(claimState) bool) int {
	for i, r := range p.resources {
		if ok(p.state[i]) && (filter == nil || filter(r, i)) {
			return i
		}
	}
	return -1
}

func (p *ClaimPool[T]) claim(t *Task, filter func(T, int) bool, ok func(claimState) bool) int {
	i := p.pick(filter, ok)
	for i < 0 {
		t.WaitUntil(func() bool { return p.pick(filter, ok) >= 0 })
		i = p.pick(filter, ok)
	}
	return i
}

// Lock takes a resource exclusively. filter may be nil.
func (p *ClaimPool[T]) Lock(t *Task, filter func(T, int) bool) *Claim[T] {
	i := p.claim(t, filter, func(s claimState) bool { return s == claimFree })
	p.state[i] = claimLocked
	return &Claim[T]{pool: p, id: i}
}

// Share takes a resource that is free or already shared.
func (p *ClaimPool[T]) Share(t *Task, filter func(T, int) bool) *Claim[T] {
	i := p.claim(t, filter, func(s claimState) bool { return s != claimLocked })
	p.state[i] = claimShared
	p.shares[i]++
	return &Claim[T]{pool: p, id: i}
}

func (c *Claim[T]) ID() int { return c.id }

// Value returns the claimed resource.
func (c *Claim[T]) Value() T { return c.pool.resources[c.id] }

func (c *Claim[T]) SetValue(v T) { c.pool.resources[c.id] = v }

// Drop releases the claim. A second Drop returns ErrAlreadyReleased.
func (c *Claim[T]) Drop() error {
	p := c.pool
	if c.dropped {
		return errors.Wrapf(ErrAlreadyReleased, "%s[%d]", p.name, c.id)
	}
	switch p.state[c.id] {
	case claimLocked:
		p.state[c.id] = claimFree
	case claimShared:
		p.shares[c.id]--
		if p.shares[c.id] <= 0 {
			p.shares[c.id] = 0
			p.state[c.id] = claimFree
		}
	default:
		return errors.Errorf("%s[%d]: resource state mismatch", p.name, c.id)
	}
	c.dropped = true
	return nil
}
