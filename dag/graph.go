// Package dag holds the explicit step graph of a pipeline run and the executor that interprets it.
package dag

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/relloyd/taxipipe/period"
)

// RunContext identifies one pipeline run and is passed to every step.
type RunContext struct {
	RunID       string        `json:"runId"`
	LogicalDate time.Time     `json:"logicalDate"`
	Period      period.Period `json:"period"`
}

// Step is the unit of work attached to a node.
type Step func(ctx context.Context, run RunContext) error

// Node is a named step with the nodes it must wait for.
type Node struct {
	Name  string
	Stage string // stage the node belongs to, used to resume a run part way through.
	Deps  []string
	Step  Step
}

// Graph is a validated set of nodes.
type Graph struct {
	nodes []Node
	index map[string]int
}

// NewGraph builds and validates a graph from nodes.
func NewGraph(nodes ...Node) (*Graph, error) {
	g := &Graph{index: make(map[string]int, len(nodes))}
	for _, n := range nodes {
		if n.Name == "" {
			return nil, fmt.Errorf("node with empty name")
		}
		if _, ok := g.index[n.Name]; ok {
			return nil, fmt.Errorf("duplicate node %q", n.Name)
		}
		if n.Step == nil {
			return nil, fmt.Errorf("node %q has no step", n.Name)
		}
		g.index[n.Name] = len(g.nodes)
		g.nodes = append(g.nodes, n)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Validate rejects unknown or repeated dependencies and cycles.
func (g *Graph) Validate() error {
	for _, n := range g.nodes {
		seen := make(map[string]bool, len(n.Deps))
		for _, d := range n.Deps {
			if _, ok := g.index[d]; !ok {
				return fmt.Errorf("node %q depends on unknown node %q", n.Name, d)
			}
			if seen[d] {
				return fmt.Errorf("node %q lists dependency %q more than once", n.Name, d)
			}
			seen[d] = true
		}
	}
	_, err := g.TopoOrder()
	return err
}

// TopoOrder returns node names so that every node follows its dependencies.
// Ties are broken by insertion order.
func (g *Graph) TopoOrder() ([]string, error) {
	inDegree := make(map[string]int, len(g.nodes))
	for _, n := range g.nodes {
		inDegree[n.Name] = len(n.Deps)
	}
	retval := make([]string, 0, len(g.nodes))
	done := make(map[string]bool, len(g.nodes))
	for len(retval) < len(g.nodes) {
		progressed := false
		for _, n := range g.nodes {
			if done[n.Name] || inDegree[n.Name] > 0 {
				continue
			}
			done[n.Name] = true
			retval = append(retval, n.Name)
			progressed = true
			for _, m := range g.Dependants(n.Name) {
				inDegree[m]--
			}
		}
		if !progressed {
			remaining := make([]string, 0)
			for _, n := range g.nodes {
				if !done[n.Name] {
					remaining = append(remaining, n.Name)
				}
			}
			sort.Strings(remaining)
			return nil, fmt.Errorf("cycle detected between nodes %v", remaining)
		}
	}
	return retval, nil
}

// Dependants returns the nodes that list name as a dependency.
func (g *Graph) Dependants(name string) []string {
	retval := make([]string, 0)
	for _, n := range g.nodes {
		for _, d := range n.Deps {
			if d == name {
				retval = append(retval, n.Name)
				break
			}
		}
	}
	return retval
}

// Node returns the named node.
func (g *Graph) Node(name string) (Node, bool) {
	idx, ok := g.index[name]
	if !ok {
		return Node{}, false
	}
	return g.nodes[idx], true
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []Node {
	return append([]Node(nil), g.nodes...)
}

// Stages returns the distinct stage names in first-seen topological order.
func (g *Graph) Stages() []string {
	order, _ := g.TopoOrder()
	seen := make(map[string]bool)
	retval := make([]string, 0)
	for _, name := range order {
		s := g.nodes[g.index[name]].Stage
		if !seen[s] {
			seen[s] = true
			retval = append(retval, s)
		}
	}
	return retval
}
