package kernel

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/delaneyj/deltasim/bits"
)

// graph maps root signals to the processes and waiters that react to them.
// Every watched signal has exactly one evalstate watcher that dispatches to
// the lists below.
type graph struct {
	sim      *Simulator
	comb     map[Signal][]*Process
	combSeen map[Signal]mapset.Set[*Process]
	sync     map[Signal][]*Process
	edges    map[Signal][]*edgeWait
	watched  mapset.Set[Signal]
}

type edgeWait struct {
	task *Task
	edge Edge
}

func newGraph(sim *Simulator) *graph {
	return &graph{
		sim:      sim,
		comb:     map[Signal][]*Process{},
		combSeen: map[Signal]mapset.Set[*Process]{},
		sync:     map[Signal][]*Process{},
		edges:    map[Signal][]*edgeWait{},
		watched:  mapset.NewThreadUnsafeSet[Signal](),
	}
}

func (g *graph) watch(root Signal) {
	if g.watched.Contains(root) {
		return
	}
	g.watched.Add(root)
	g.sim.state.Watch(root, g.onChange)
}

func (g *graph) addComb(sig Signal, p *Process) {
	root := g.sim.state.Root(sig)
	if root == NoSignal {
		return
	}
	seen, ok := g.combSeen[root]
	if !ok {
		seen = mapset.NewThreadUnsafeSet[*Process]()
		g.combSeen[root] = seen
	}
	if !seen.Add(p) {
		return
	}
	g.comb[root] = append(g.comb[root], p)
	g.watch(root)
}

func (g *graph) addSync(p *Process) {
	root := g.sim.state.Root(p.clock)
	g.sync[root] = append(g.sync[root], p)
	g.watch(root)
}

func (g *graph) addEdgeWait(sig Signal, t *Task, e Edge) {
	root := g.sim.state.Root(sig)
	g.edges[root] = append(g.edges[root], &edgeWait{task: t, edge: e})
	g.watch(root)
}

func (g *graph) onChange(h Signal, old, cur bits.Value) {
	for _, p := range g.comb[h] {
		g.sim.enqueue(p)
	}
	for _, p := range g.sync[h] {
		if p.edge.matches(old, cur) {
			g.sim.triggered.Add(p)
		}
	}
	if ws := g.edges[h]; len(ws) > 0 {
		kept := ws[:0]
		for _, w := range ws {
			if w.task.done() || w.task.wait != waitEdge {
				continue
			}
			if w.edge.matches(old, cur) {
				g.sim.ready(w.task)
				continue
			}
			kept = append(kept, w)
		}
		g.edges[h] = kept
	}
}
