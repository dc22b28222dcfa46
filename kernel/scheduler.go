package kernel

import (
	"container/heap"
	"context"
	"log/slog"
	"sort"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type timer struct {
	at   Time
	seq  uint64
	task *Task
	gen  uint64
	fn   func()
}

// timerHeap orders wake-ups by time, then by scheduling order.
type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)   { *h = append(*h, x.(*timer)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

type readyItem struct {
	task *Task
	fn   func()
}

func (s *Simulator) pushTimer(at Time, t *Task, gen uint64, fn func()) {
	s.seq++
	heap.Push(&s.timers, &timer{at: at, seq: s.seq, task: t, gen: gen, fn: fn})
}

func (s *Simulator) ready(t *Task) {
	t.state = taskReady
	t.wait = waitNone
	s.readyQ = append(s.readyQ, readyItem{task: t})
}

func (s *Simulator) addCond(t *Task) {
	i := sort.Search(len(s.condQ), func(i int) bool { return s.condQ[i].id > t.id })
	s.condQ = append(s.condQ, nil)
	copy(s.condQ[i+1:], s.condQ[i:])
	s.condQ[i] = t
}

// After runs fn on the scheduler once d has elapsed.
func (s *Simulator) After(d Time, fn func()) {
	s.pushTimer(s.now+d, nil, 0, fn)
}

// collectConds readies every condition waiter whose predicate holds, in
// task id order.
func (s *Simulator) collectConds() bool {
	woke := false
	kept := s.condQ[:0]
	for _, t := range s.condQ {
		if t.done() || t.wait != waitCond {
			continue
		}
		if t.cond() {
			s.ready(t)
			woke = true
			continue
		}
		kept = append(kept, t)
	}
	for i := len(kept); i < len(s.condQ); i++ {
		s.condQ[i] = nil
	}
	s.condQ = kept
	return woke
}

// next picks what runs next within the current instant: ready entries
// first, then satisfied condition waiters, then delta yields.
func (s *Simulator) next() (readyItem, bool) {
	for {
		for len(s.readyQ) > 0 {
			it := s.readyQ[0]
			s.readyQ[0] = readyItem{}
			s.readyQ = s.readyQ[1:]
			if it.task != nil && (it.task.done() || it.task.state != taskReady) {
				continue
			}
			return it, true
		}
		if s.collectConds() {
			continue
		}
		if len(s.deltaQ) > 0 {
			q := s.deltaQ
			s.deltaQ = nil
			for _, t := range q {
				if !t.done() && t.wait == waitDelta {
					s.ready(t)
				}
			}
			continue
		}
		return readyItem{}, false
	}
}

func (s *Simulator) resume(t *Task) {
	s.current = t
	t.state = taskRunning
	s.stats.Resumptions++
	if !t.started {
		t.started = true
		go t.run()
	}
	t.resume <- struct{}{}
	<-t.yield
	s.current = nil
	switch {
	case t.done():
		s.finish(t)
	case t.wait != waitJoin:
		s.orphans(t)
	}
}

// runInstant settles and resumes runnable work until nothing at the
// current time remains.
func (s *Simulator) runInstant() error {
	s.stats.Instants++
	for n := 0; ; n++ {
		if err := s.settle(); err != nil {
			return s.fail(err)
		}
		if s.fatal != nil {
			return s.fatal
		}
		it, ok := s.next()
		if !ok {
			return nil
		}
		if n >= s.cfg.InstantLimit {
			return s.fail(errors.Wrapf(ErrZeroTimeLoop, "%d resumptions at %s", n, s.now))
		}
		if it.fn != nil {
			it.fn()
			continue
		}
		if s.log.Enabled(context.Background(), slog.LevelDebug) {
			s.log.Debug("resume task",
				slog.String("session_id", s.sessionID),
				slog.String("task", it.task.String()),
				slog.String("now", s.now.String()),
			)
		}
		s.resume(it.task)
	}
}

// popDue readies every timer due at the current time.
func (s *Simulator) popDue() {
	for len(s.timers) > 0 && s.timers[0].at <= s.now {
		tm := heap.Pop(&s.timers).(*timer)
		switch {
		case tm.fn != nil:
			s.readyQ = append(s.readyQ, readyItem{fn: tm.fn})
		case tm.task != nil && !tm.task.done() && tm.task.wait == waitTime && tm.task.waitGen == tm.gen:
			s.ready(tm.task)
		}
	}
}

func (s *Simulator) run(ctx context.Context, end Time, bounded bool) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.runInstant(); err != nil {
			return err
		}
		if len(s.timers) == 0 {
			break
		}
		at := s.timers[0].at
		if bounded && at > end {
			break
		}
		s.now = at
		s.popDue()
	}
	if bounded {
		s.now = end
	}
	return nil
}

// Advance simulates d more time. Everything scheduled at or before now+d
// runs; the clock then stops at exactly now+d.
func (s *Simulator) Advance(ctx context.Context, d Time) error {
	if err := s.usable(); err != nil {
		return err
	}
	end := s.now + d
	ctx, span := tracer.Start(ctx, "kernel.Advance",
		trace.WithAttributes(
			attribute.String("design", s.root.typ.Name),
			attribute.String("session_id", s.sessionID),
			attribute.Int64("from_fs", int64(s.now)),
			attribute.Int64("to_fs", int64(end)),
		),
	)
	defer span.End()

	err := s.run(ctx, end, true)
	s.flushMetrics(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	s.log.Debug("advanced",
		slog.String("session_id", s.sessionID),
		slog.String("now", s.now.String()),
		slog.Uint64("deltas", s.stats.Deltas),
	)
	return nil
}

// Run simulates until no timed wake-up remains. Designs with free-running
// clocks never finish; bound them with Advance or ctx.
func (s *Simulator) Run(ctx context.Context) error {
	if err := s.usable(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "kernel.Run",
		trace.WithAttributes(
			attribute.String("design", s.root.typ.Name),
			attribute.String("session_id", s.sessionID),
		),
	)
	defer span.End()

	err := s.run(ctx, 0, false)
	s.flushMetrics(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}
