package kernel

import "github.com/pkg/errors"

// Lock is a mutex between tasks. Waiters acquire it in task id order.
type Lock struct {
	name  string
	owner *Task
}

func NewLock(name string) *Lock {
	return &Lock{name: name}
}

func (l *Lock) Locked() bool { return l.owner != nil }
func (l *Lock) Owner() *Task { return l.owner }

// Acquire suspends t until the lock is free, then takes it.
func (l *Lock) Acquire(t *Task) {
	for l.owner != nil {
		t.WaitUntil(func() bool { return l.owner == nil })
	}
	l.owner = t
}

func (l *Lock) TryAcquire(t *Task) bool {
	if l.owner != nil {
		return false
	}
	l.owner = t
	return true
}

// Release frees the lock. Releasing a free lock is an error.
func (l *Lock) Release() error {
	if l.owner == nil {
		return errors.Wrap(ErrAlreadyReleased, l.name)
	}
	l.owner = nil
	return nil
}
