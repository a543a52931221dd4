package dag

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder captures step completion order.
type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) step(name string, err error) Step {
	return func(ctx context.Context, run RunContext) error {
		r.mu.Lock()
		r.order = append(r.order, name)
		r.mu.Unlock()
		return err
	}
}

func (r *recorder) ran() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func pipelineGraph(t *testing.T, r *recorder, failing string) *Graph {
	stepFor := func(name string) Step {
		if name == failing {
			return r.step(name, errors.New("boom"))
		}
		return r.step(name, nil)
	}
	g, err := NewGraph(
		Node{Name: "fetch_green", Stage: "fetch", Step: stepFor("fetch_green")},
		Node{Name: "fetch_yellow", Stage: "fetch", Step: stepFor("fetch_yellow")},
		Node{Name: "load_green", Stage: "load", Deps: []string{"fetch_green"}, Step: stepFor("load_green")},
		Node{Name: "load_yellow", Stage: "load", Deps: []string{"fetch_yellow"}, Step: stepFor("load_yellow")},
		Node{Name: "transform", Stage: "transform", Deps: []string{"load_green", "load_yellow"}, Step: stepFor("transform")},
		Node{Name: "log_run", Stage: "log", Deps: []string{"transform"}, Step: stepFor("log_run")},
	)
	require.NoError(t, err)
	return g
}

func TestExecutorRunsAllInDependencyOrder(t *testing.T) {
	r := &recorder{}
	g := pipelineGraph(t, r, "")
	var done int32
	e := &Executor{OnStepDone: func(run RunContext, res NodeResult) {
		atomic.AddInt32(&done, 1)
		assert.Equal(t, "run-1", run.RunID)
	}}
	res := e.Run(context.Background(), RunContext{RunID: "run-1"}, g)
	require.NoError(t, res.Err)
	assert.Equal(t, int32(6), atomic.LoadInt32(&done))
	ran := r.ran()
	require.Len(t, ran, 6)
	pos := make(map[string]int)
	for i, n := range ran {
		pos[n] = i
	}
	assert.Less(t, pos["fetch_green"], pos["load_green"])
	assert.Less(t, pos["load_yellow"], pos["transform"])
	assert.Equal(t, "log_run", ran[5])
	for _, n := range res.Nodes {
		assert.Equal(t, StatusSucceeded, n.Status, n.Name)
		assert.Equal(t, 1, n.Attempts)
	}
}

func TestExecutorFailureBlocksOnlyDependants(t *testing.T) {
	r := &recorder{}
	g := pipelineGraph(t, r, "fetch_yellow")
	res := (&Executor{}).Run(context.Background(), RunContext{RunID: "run-2"}, g)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "step fetch_yellow")
	assert.Equal(t, StatusFailed, res.Nodes["fetch_yellow"].Status)
	assert.Equal(t, "boom", res.Nodes["fetch_yellow"].Error)
	assert.Equal(t, StatusUpstreamFailed, res.Nodes["load_yellow"].Status)
	assert.Equal(t, StatusUpstreamFailed, res.Nodes["transform"].Status)
	assert.Equal(t, StatusUpstreamFailed, res.Nodes["log_run"].Status)
	// The independent green branch still ran.
	assert.Equal(t, StatusSucceeded, res.Nodes["load_green"].Status)
	assert.NotContains(t, r.ran(), "transform")
}

func TestExecutorRetries(t *testing.T) {
	var calls int32
	flaky := func(ctx context.Context, run RunContext) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("transient")
		}
		return nil
	}
	g, err := NewGraph(Node{Name: "flaky", Step: flaky})
	require.NoError(t, err)
	// Test 1 - two retries are enough.
	res := (&Executor{Retries: 2, RetryDelay: time.Millisecond}).Run(context.Background(), RunContext{}, g)
	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.Nodes["flaky"].Attempts)
	// Test 2 - no retries by default.
	atomic.StoreInt32(&calls, 0)
	res = (&Executor{}).Run(context.Background(), RunContext{}, g)
	require.Error(t, res.Err)
	assert.Equal(t, 1, res.Nodes["flaky"].Attempts)
}

func TestExecutorStepTimeoutAndPanic(t *testing.T) {
	slow := func(ctx context.Context, run RunContext) error {
		<-ctx.Done()
		return ctx.Err()
	}
	bad := func(ctx context.Context, run RunContext) error {
		panic("unexpected")
	}
	g, err := NewGraph(Node{Name: "slow", Step: slow}, Node{Name: "bad", Step: bad})
	require.NoError(t, err)
	res := (&Executor{StepTimeout: 10 * time.Millisecond, Concurrency: 1}).Run(context.Background(), RunContext{}, g)
	require.Error(t, res.Err)
	assert.Equal(t, StatusFailed, res.Nodes["slow"].Status)
	assert.Contains(t, res.Nodes["slow"].Error, "deadline exceeded")
	assert.Contains(t, res.Nodes["bad"].Error, "panicked")
}

func TestExecutorSkip(t *testing.T) {
	r := &recorder{}
	g := pipelineGraph(t, r, "")
	skip := map[string]bool{"fetch_green": true, "fetch_yellow": true, "load_green": true, "load_yellow": true}
	res := (&Executor{Skip: skip}).Run(context.Background(), RunContext{}, g)
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"transform", "log_run"}, r.ran())
	assert.Equal(t, StatusSkipped, res.Nodes["load_green"].Status)
	assert.Equal(t, StatusSucceeded, res.Nodes["log_run"].Status)
}
