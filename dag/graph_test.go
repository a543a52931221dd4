package dag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(ctx context.Context, run RunContext) error { return nil }

func TestNewGraphValidates(t *testing.T) {
	_, err := NewGraph(Node{Name: "a", Step: noop}, Node{Name: "a", Step: noop})
	assert.ErrorContains(t, err, "duplicate node")

	_, err = NewGraph(Node{Name: "a", Deps: []string{"missing"}, Step: noop})
	assert.ErrorContains(t, err, "unknown node")

	_, err = NewGraph(
		Node{Name: "a", Deps: []string{"c"}, Step: noop},
		Node{Name: "b", Deps: []string{"a"}, Step: noop},
		Node{Name: "c", Deps: []string{"b"}, Step: noop},
	)
	assert.ErrorContains(t, err, "cycle detected")

	_, err = NewGraph(Node{Name: "a"})
	assert.ErrorContains(t, err, "no step")

	_, err = NewGraph(
		Node{Name: "a", Step: noop},
		Node{Name: "b", Deps: []string{"a", "a"}, Step: noop},
	)
	assert.ErrorContains(t, err, `node "b" lists dependency "a" more than once`)
}

func TestTopoOrderAndStages(t *testing.T) {
	g, err := NewGraph(
		Node{Name: "log_run", Stage: "log", Deps: []string{"transform"}, Step: noop},
		Node{Name: "transform", Stage: "transform", Deps: []string{"load_green", "load_yellow"}, Step: noop},
		Node{Name: "fetch_green", Stage: "fetch", Step: noop},
		Node{Name: "fetch_yellow", Stage: "fetch", Step: noop},
		Node{Name: "load_green", Stage: "load", Deps: []string{"fetch_green"}, Step: noop},
		Node{Name: "load_yellow", Stage: "load", Deps: []string{"fetch_yellow"}, Step: noop},
	)
	require.NoError(t, err)
	order, err := g.TopoOrder()
	require.NoError(t, err)
	pos := make(map[string]int)
	for i, n := range order {
		pos[n] = i
	}
	for _, n := range g.Nodes() {
		for _, d := range n.Deps {
			assert.Less(t, pos[d], pos[n.Name], "%v must follow %v", n.Name, d)
		}
	}
	assert.Equal(t, []string{"fetch", "load", "transform", "log"}, g.Stages())
	assert.ElementsMatch(t, []string{"load_green"}, g.Dependants("fetch_green"))
}
