package kernel

// Channel is a FIFO between tasks. A zero capacity is unbounded.
type Channel[T any] struct {
	name  string
	cap   int
	queue []T
}

func NewChannel[T any](name string, capacity int) *Channel[T] {
	return &Channel[T]{name: name, cap: capacity}
}

func (c *Channel[T]) Name() string { return c.name }
func (c *Channel[T]) Len() int     { return len(c.queue) }

func (c *Channel[T]) CanPut() bool { return c.cap == 0 || len(c.queue) < c.cap }
func (c *Channel[T]) CanGet() bool { return len(c.queue) > 0 }

// Put appends v, suspending t while the channel is full.
func (c *Channel[T]) Put(t *Task, v T) {
	for !c.CanPut() {
		t.WaitUntil(c.CanPut)
	}
	c.queue = append(c.queue, v)
}

// Get removes the oldest item, suspending t while the channel is empty.
func (c *Channel[T]) Get(t *Task) T {
	for !c.CanGet() {
		t.WaitUntil(c.CanGet)
	}
	return c.pop()
}

func (c *Channel[T]) TryPut(v T) bool {
	if !c.CanPut() {
		return false
	}
	c.queue = append(c.queue, v)
	return true
}

func (c *Channel[T]) TryGet() (T, bool) {
	if !c.CanGet() {
		var zero T
		return zero, false
	}
	return c.pop(), true
}

func (c *Channel[T]) pop() T {
	v := c.queue[0]
	var zero T
	c.queue[0] = zero
	c.queue = c.queue[1:]
	return v
}
