package dag

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/relloyd/taxipipe/logger"
	"golang.org/x/sync/errgroup"
)

type Status string

const (
	StatusPending        Status = "pending"
	StatusRunning        Status = "running"
	StatusSucceeded      Status = "succeeded"
	StatusFailed         Status = "failed"
	StatusUpstreamFailed Status = "upstream_failed"
	StatusSkipped        Status = "skipped"
)

// satisfied reports whether dependants may start after a node ends in s.
func (s Status) satisfied() bool {
	return s == StatusSucceeded || s == StatusSkipped
}

// Finished reports whether s is terminal.
func (s Status) Finished() bool {
	return s != StatusPending && s != StatusRunning
}

type NodeResult struct {
	Name     string    `json:"name"`
	Stage    string    `json:"stage"`
	Status   Status    `json:"status"`
	Attempts int       `json:"attempts"`
	Error    string    `json:"error,omitempty"`
	Started  time.Time `json:"started,omitempty"`
	Finished time.Time `json:"finished,omitempty"`
	err      error
}

type Result struct {
	Nodes map[string]NodeResult
	Err   error // aggregate of failed node errors.
}

type Executor struct {
	Log         logger.Logger
	StepTimeout time.Duration   // bound on each attempt; zero means none.
	Retries     int             // extra attempts after the first failure.
	RetryDelay  time.Duration   // wait between attempts.
	Concurrency int             // maximum steps in flight; zero means unbounded.
	Skip        map[string]bool // nodes treated as already done.
	OnStepDone  func(run RunContext, r NodeResult)
}

// Run executes g for run, starting each node once all of its dependencies have succeeded.
// A failed node marks its transitive dependants upstream_failed; independent branches carry on.
func (e *Executor) Run(ctx context.Context, run RunContext, g *Graph) Result {
	var mu sync.Mutex
	results := make(map[string]NodeResult, len(g.nodes))
	for _, n := range g.nodes {
		results[n.Name] = NodeResult{Name: n.Name, Stage: n.Stage, Status: StatusPending}
	}
	doneChan := make(chan NodeResult, len(g.nodes))
	var eg errgroup.Group
	if e.Concurrency > 0 {
		eg.SetLimit(e.Concurrency)
	}
	finish := func(r NodeResult) {
		mu.Lock()
		results[r.Name] = r
		mu.Unlock()
		if e.OnStepDone != nil {
			e.OnStepDone(run, r)
		}
	}
	// schedule launches or resolves every pending node whose dependencies are settled.
	// It returns the number of nodes resolved without running.
	schedule := func() int {
		resolved := 0
		for changed := true; changed; {
			changed = false
			for _, n := range g.nodes {
				mu.Lock()
				r := results[n.Name]
				mu.Unlock()
				if r.Status != StatusPending {
					continue
				}
				ready, blocked := true, false
				for _, d := range n.Deps {
					mu.Lock()
					ds := results[d].Status
					mu.Unlock()
					switch {
					case ds == StatusFailed || ds == StatusUpstreamFailed:
						blocked = true
					case !ds.satisfied():
						ready = false
					}
				}
				switch {
				case blocked:
					r.Status = StatusUpstreamFailed
					finish(r)
					resolved++
					changed = true
				case ready && e.Skip[n.Name]:
					r.Status = StatusSkipped
					finish(r)
					resolved++
					changed = true
				case ready:
					r.Status = StatusRunning
					mu.Lock()
					results[n.Name] = r
					mu.Unlock()
					n := n
					eg.Go(func() error {
						doneChan <- e.runNode(ctx, run, n)
						return nil
					})
				}
			}
		}
		return resolved
	}
	remaining := len(g.nodes)
	remaining -= schedule()
	for remaining > 0 {
		r := <-doneChan
		finish(r)
		remaining--
		remaining -= schedule()
	}
	_ = eg.Wait()
	// Aggregate errors in graph order.
	var merr *multierror.Error
	for _, n := range g.nodes {
		if r := results[n.Name]; r.err != nil {
			merr = multierror.Append(merr, errors.Wrapf(r.err, "step %v", n.Name))
		}
	}
	return Result{Nodes: results, Err: merr.ErrorOrNil()}
}

// runNode runs a node's step with retries and returns its final result.
func (e *Executor) runNode(ctx context.Context, run RunContext, n Node) NodeResult {
	r := NodeResult{Name: n.Name, Stage: n.Stage, Started: time.Now()}
	for {
		r.Attempts++
		if e.Log != nil {
			e.Log.Info("step ", n.Name, " starting attempt ", r.Attempts, " for run ", run.RunID)
		}
		r.err = e.attempt(ctx, run, n)
		if r.err == nil || r.Attempts > e.Retries || ctx.Err() != nil {
			break
		}
		if e.Log != nil {
			e.Log.Warn("step ", n.Name, " attempt ", r.Attempts, " failed: ", r.err)
		}
		select {
		case <-ctx.Done():
		case <-time.After(e.RetryDelay):
		}
	}
	r.Finished = time.Now()
	if r.err != nil {
		r.Status = StatusFailed
		r.Error = r.err.Error()
		if e.Log != nil {
			e.Log.Error("step ", n.Name, " failed: ", r.err)
		}
	} else {
		r.Status = StatusSucceeded
		if e.Log != nil {
			e.Log.Info("step ", n.Name, " complete")
		}
	}
	return r
}

func (e *Executor) attempt(ctx context.Context, run RunContext, n Node) (err error) {
	if e.StepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.StepTimeout)
		defer cancel()
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("step panicked: %v", p)
		}
	}()
	return n.Step(ctx, run)
}
