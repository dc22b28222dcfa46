package designs

import (
	"sort"

	"github.com/delaneyj/deltasim/kernel"
)

// Scenario is a design with the stimulus that drives it.
type Scenario struct {
	Name        string
	Description string
	Type        func() *kernel.Type
	// Stimulus starts clocks and tasks before simulation.
	Stimulus func(s *kernel.Simulator) error
	Duration kernel.Time
}

var scenarios = map[string]Scenario{
	"counter": {
		Name:        "counter",
		Description: "32-bit up-counter, 10ns clock, reset for the first cycle",
		Type:        func() *kernel.Type { return Counter(32) },
		Stimulus:    clockWithReset("clock", "reset", 10*kernel.NS),
		Duration:    200 * kernel.NS,
	},
	"top": {
		Name:        "top",
		Description: "counter wrapped in a parent comb stage through bound clock and reset",
		Type:        Top,
		Stimulus:    clockWithReset("clock", "reset", 10*kernel.NS),
		Duration:    200 * kernel.NS,
	},
	"cascade": {
		Name:        "cascade",
		Description: "two chained comb stages driven by a task",
		Type:        Cascade,
		Stimulus: func(s *kernel.Simulator) error {
			a, err := s.Signal("a")
			if err != nil {
				return err
			}
			b, err := s.Signal("b")
			if err != nil {
				return err
			}
			s.Spawn("drive", func(t *kernel.Task) error {
				for i := uint64(0); i < 8; i++ {
					t.Wait(5 * kernel.NS)
					if err := t.SetUint(a, i); err != nil {
						return err
					}
					if err := t.SetUint(b, i+1); err != nil {
						return err
					}
				}
				return nil
			})
			return nil
		},
		Duration: 50 * kernel.NS,
	},
	"divider": {
		Name:        "divider",
		Description: "clock divided by 4",
		Type:        func() *kernel.Type { return Divider(4) },
		Stimulus: func(s *kernel.Simulator) error {
			clk, err := s.Signal("clock")
			if err != nil {
				return err
			}
			s.Clock(clk, 10*kernel.NS)
			return nil
		},
		Duration: 200 * kernel.NS,
	},
	"pipeline": {
		Name:        "pipeline",
		Description: "producer and consumer tasks joined by a port/export bound channel",
		Type:        func() *kernel.Type { return Pipeline(10) },
		Stimulus:    func(*kernel.Simulator) error { return nil },
		Duration:    500 * kernel.NS,
	},
}

func clockWithReset(clock, reset string, period kernel.Time) func(*kernel.Simulator) error {
	return func(s *kernel.Simulator) error {
		clk, err := s.Signal(clock)
		if err != nil {
			return err
		}
		rst, err := s.Signal(reset)
		if err != nil {
			return err
		}
		if err := s.SetUint(rst, 1); err != nil {
			return err
		}
		s.Clock(clk, period)
		s.Spawn("release-reset", func(t *kernel.Task) error {
			t.Wait(period)
			return t.SetUint(rst, 0)
		})
		return nil
	}
}

// Lookup returns a scenario by name.
func Lookup(name string) (Scenario, bool) {
	sc, ok := scenarios[name]
	return sc, ok
}

// Names lists the scenarios in alphabetical order.
func Names() []string {
	names := make([]string, 0, len(scenarios))
	for n := range scenarios {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
