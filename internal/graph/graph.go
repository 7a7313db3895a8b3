// Package graph implements the execution graph: an in-memory DAG over
// stages supporting topological depth, readiness, cycle detection, and
// parallel-group scheduling fairness. It mirrors the resolver/scheduler
// split the teacher uses for its workflow engine, generalized from module
// instances to stages.
package graph

import (
	"fmt"
	"sort"

	"github.com/cosmix/loom-sub004/internal/stage"
)

// Node is the graph's view of one stage: identity, dependency edges, and a
// mirror of the persisted status. The graph never owns stage data; it
// holds a borrowed copy refreshed from the persistence layer on every
// Build.
type Node struct {
	ID            string
	Dependencies  []string
	ParallelGroup string
	Status        stage.Status
	Merged        bool
	Depth         int
	Held          bool
}

// Graph is the DAG over stage nodes, with dependents computed from the
// declared dependency edges.
type Graph struct {
	nodes     map[string]*Node
	dependents map[string][]string
	order     []string // nodes in topological (dependency-respecting) order
}

// Build constructs a Graph from the given stages, computing topological
// depth for every node and detecting cycles via a DFS gray/black coloring.
// On a cycle, it returns an error naming at least one participant.
func Build(stages []stage.Stage) (*Graph, error) {
	g := &Graph{
		nodes:      make(map[string]*Node, len(stages)),
		dependents: make(map[string][]string),
	}
	for _, s := range stages {
		g.nodes[s.ID] = &Node{
			ID:            s.ID,
			Dependencies:  append([]string{}, s.Dependencies...),
			ParallelGroup: s.ParallelGroup,
			Status:        s.Status,
			Merged:        s.Merged,
			Held:          s.Held,
		}
	}
	for _, n := range g.nodes {
		for _, dep := range n.Dependencies {
			g.dependents[dep] = append(g.dependents[dep], n.ID)
		}
	}

	order, err := g.topoSort()
	if err != nil {
		return nil, err
	}
	g.order = order
	g.computeDepths()
	return g, nil
}

// color states for the DFS cycle check.
const (
	white = iota
	gray
	black
)

func (g *Graph) topoSort() ([]string, error) {
	colors := make(map[string]int, len(g.nodes))
	order := make([]string, 0, len(g.nodes))

	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var visit func(id string, stack []string) error
	visit = func(id string, stack []string) error {
		switch colors[id] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("graph: cycle detected involving stage %q", id)
		}
		colors[id] = gray
		node, ok := g.nodes[id]
		if !ok {
			return fmt.Errorf("graph: dependency %q does not exist", id)
		}
		deps := append([]string{}, node.Dependencies...)
		sort.Strings(deps)
		for _, dep := range deps {
			if _, ok := g.nodes[dep]; !ok {
				return fmt.Errorf("graph: stage %q depends on unknown stage %q", id, dep)
			}
			if err := visit(dep, append(stack, id)); err != nil {
				return err
			}
		}
		colors[id] = black
		order = append(order, id)
		return nil
	}

	for _, id := range ids {
		if err := visit(id, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func (g *Graph) computeDepths() {
	for _, id := range g.order {
		node := g.nodes[id]
		depth := 0
		for _, dep := range node.Dependencies {
			if d, ok := g.nodes[dep]; ok && d.Depth+1 > depth {
				depth = d.Depth + 1
			}
		}
		node.Depth = depth
	}
}

// Node returns the node for id, or nil if it doesn't exist.
func (g *Graph) Node(id string) *Node {
	return g.nodes[id]
}

// Nodes returns every node, in (depth ASC, id ASC) order — the fairness
// ordering the orchestrator loop consumes stages in.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Depth != out[j].Depth {
			return out[i].Depth < out[j].Depth
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// dependencySatisfied reports whether dep satisfies readiness for a
// dependent: Completed+merged does; Skipped explicitly does not.
func (g *Graph) dependencySatisfied(depID string) bool {
	dep, ok := g.nodes[depID]
	if !ok {
		return false
	}
	return dep.Status == stage.Completed && dep.Merged
}

// Ready returns nodes whose dependencies are all satisfied and whose
// status is WaitingForDeps (promoted to Queued by the caller) or already
// Queued, excluding held stages. Order is (depth ASC, id ASC).
func (g *Graph) Ready() []*Node {
	var out []*Node
	for _, n := range g.Nodes() {
		if n.Held {
			continue
		}
		switch n.Status {
		case stage.Queued:
			out = append(out, n)
		case stage.WaitingForDeps:
			if g.allDepsSatisfied(n) {
				out = append(out, n)
			}
		}
	}
	return out
}

func (g *Graph) allDepsSatisfied(n *Node) bool {
	for _, dep := range n.Dependencies {
		if !g.dependencySatisfied(dep) {
			return false
		}
	}
	return true
}

// Leaves returns nodes nobody depends on.
func (g *Graph) Leaves() []*Node {
	var out []*Node
	for _, n := range g.Nodes() {
		if len(g.dependents[n.ID]) == 0 {
			out = append(out, n)
		}
	}
	return out
}

// Dependents returns the nodes that declare a dependency on id.
func (g *Graph) Dependents(id string) []string {
	return append([]string{}, g.dependents[id]...)
}

// IsComplete reports whether every leaf is Completed or Skipped. Per the
// spec's resolved open question, all-Skipped leaves count as plan
// completion even though a Skipped stage never auto-promotes its own
// dependents.
func (g *Graph) IsComplete() bool {
	for _, n := range g.Leaves() {
		if n.Status != stage.Completed && n.Status != stage.Skipped {
			return false
		}
	}
	return true
}

// UpdateReadyStatus is idempotent: it returns the ids of every
// WaitingForDeps node whose dependencies are now all satisfied, the set
// the orchestrator promotes to Queued and persists. Calling it again
// against the same persisted state (before those promotions land) returns
// the same set.
func (g *Graph) UpdateReadyStatus() []string {
	var ids []string
	for _, n := range g.Nodes() {
		if n.Status == stage.WaitingForDeps && g.allDepsSatisfied(n) {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

// ReadyGroups partitions the ready set into parallel groups (group tag ->
// members) and a slice of ungrouped nodes, so the scheduler can treat a
// group as a single schedulable unit and never start only part of it.
func (g *Graph) ReadyGroups() (groups map[string][]*Node, ungrouped []*Node) {
	groups = make(map[string][]*Node)
	for _, n := range g.Ready() {
		if n.ParallelGroup == "" {
			ungrouped = append(ungrouped, n)
			continue
		}
		groups[n.ParallelGroup] = append(groups[n.ParallelGroup], n)
	}
	return groups, ungrouped
}
