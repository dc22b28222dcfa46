package kernel

import (
	"log/slog"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
)

func (s *Simulator) enqueue(p *Process) {
	if p.queued {
		return
	}
	p.queued = true
	s.queue = append(s.queue, p)
}

func (s *Simulator) combLimit() int {
	if s.cfg.CombLimit > 0 {
		return s.cfg.CombLimit
	}
	if s.numComb > 0 {
		return s.numComb
	}
	return 1
}

// settle runs delta cycles until no comb process is dirty, no clock edge is
// pending and no deferred write is outstanding. Each delta alternates the
// triggered sync processes and the comb queue until no edge is left, so a
// clock derived by comb logic fires in the same delta as its source, then
// commits once.
func (s *Simulator) settle() error {
	if s.settling {
		return nil
	}
	s.settling = true
	defer func() { s.settling = false }()

	for n := 0; ; n++ {
		if n >= s.cfg.DeltaLimit {
			return errors.Wrapf(ErrDeltaLimit, "%d deltas at %s", n, s.now)
		}
		if err := s.runDelta(); err != nil {
			return err
		}
		s.stats.Deltas++
		if s.state.HasPending() {
			s.state.Commit()
			s.stats.Commits++
			continue
		}
		if s.triggered.Cardinality() == 0 && len(s.queue) == 0 {
			return nil
		}
	}
}

// runDelta evaluates everything up to the next commit. Comb processes never
// see deferred values, so every pass still reads the pre-edge state.
func (s *Simulator) runDelta() error {
	clear(s.drivers)
	for pass := 0; ; pass++ {
		if pass >= s.cfg.DeltaLimit {
			return errors.Wrapf(ErrDeltaLimit, "%d edge passes at %s", pass, s.now)
		}
		if s.triggered.Cardinality() > 0 {
			if err := s.runSync(); err != nil {
				return err
			}
		}
		if err := s.runComb(); err != nil {
			return err
		}
		if s.triggered.Cardinality() == 0 {
			return nil
		}
	}
}

func (s *Simulator) runComb() error {
	limit := s.combLimit()
	var fired []*Process
	defer func() {
		for _, p := range fired {
			p.fires = 0
		}
	}()

	for len(s.queue) > 0 {
		p := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		p.queued = false

		if p.fires == 0 {
			fired = append(fired, p)
		}
		p.fires++
		if p.fires > limit {
			err := s.combLoop(fired, limit)
			s.clearQueue()
			return err
		}
		s.stats.CombEvals++
		if err := s.evaluate(p); err != nil {
			s.clearQueue()
			return err
		}
	}
	s.queue = s.queue[:0]
	return nil
}

func (s *Simulator) clearQueue() {
	for _, p := range s.queue {
		p.queued = false
	}
	s.queue = s.queue[:0]
}

// combLoop describes the processes that re-fired within the delta and the
// signals they wrote.
func (s *Simulator) combLoop(fired []*Process, limit int) error {
	procs := mapset.NewThreadUnsafeSet[string]()
	sigs := mapset.NewThreadUnsafeSet[string]()
	for _, p := range fired {
		if p.fires < 2 {
			continue
		}
		procs.Add(p.Path())
		for _, w := range p.wrote {
			sigs.Add(s.state.Path(w))
		}
	}
	e := &CombLoopError{
		Processes: procs.ToSlice(),
		Signals:   sigs.ToSlice(),
		Limit:     limit,
	}
	sort.Strings(e.Processes)
	sort.Strings(e.Signals)
	s.log.Error("combinational loop",
		slog.String("session_id", s.sessionID),
		slog.Any("processes", e.Processes),
		slog.Any("signals", e.Signals),
	)
	return e
}
