package kernel

import (
	"sort"

	"github.com/delaneyj/deltasim/bits"
	"github.com/pkg/errors"
)

// runSync evaluates every process triggered by the pending edges in
// registration order. Their writes stay deferred until the delta commits,
// so each body reads the state as it was before the edge.
func (s *Simulator) runSync() error {
	batch := s.triggered.ToSlice()
	s.triggered.Clear()
	sort.Slice(batch, func(i, j int) bool { return batch[i].id < batch[j].id })

	for _, p := range batch {
		s.stats.SyncEvals++
		if err := s.evaluate(p); err != nil {
			return err
		}
	}
	return nil
}

func (s *Simulator) deferWrite(p *Process, sig Signal, v bits.Value) error {
	if s.cfg.Drivers == Strict {
		root := s.state.Root(sig)
		if prev, ok := s.drivers[root]; ok && prev != p {
			return errors.Wrapf(ErrMultipleDrivers, "%s and %s", prev.Path(), p.Path())
		}
		s.drivers[root] = p
	}
	return s.state.WriteDeferred(sig, v)
}
