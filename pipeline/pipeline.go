// Package pipeline wires the fetch, load, transform and run-log steps into the run graph
// and tracks each run through its lifecycle.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/qmuntal/stateless"
	"github.com/relloyd/taxipipe/constants"
	"github.com/relloyd/taxipipe/dag"
	"github.com/relloyd/taxipipe/feed"
	"github.com/relloyd/taxipipe/fetcher"
	"github.com/relloyd/taxipipe/helper"
	"github.com/relloyd/taxipipe/loader"
	"github.com/relloyd/taxipipe/logger"
	"github.com/relloyd/taxipipe/period"
	"github.com/relloyd/taxipipe/runlog"
	"github.com/relloyd/taxipipe/transform"
	"github.com/rs/xid"
)

const (
	StageFetch     = "fetch"
	StageLoad      = "load"
	StageTransform = "transform"
	StageLog       = "log"
)

// Stages lists the stages in execution order; any of them can be passed as the resume point of a run.
var Stages = []string{StageFetch, StageLoad, StageTransform, StageLog}

type FeedFetcher interface {
	FetchFeed(ctx context.Context, n feed.Name, p period.Period) (fetcher.LandedObject, error)
}

type LandingLoader interface {
	LoadLanding(ctx context.Context, runID string, n feed.Name, p period.Period) (loader.LoadResult, error)
}

type RunLogger interface {
	LogRun(ctx context.Context, runID string, tableName string) (runlog.Record, error)
}

type Config struct {
	Log          logger.Logger    `errorTxt:"logger" mandatory:"yes"`
	Fetcher      FeedFetcher      `errorTxt:"fetcher" mandatory:"yes"`
	Loader       LandingLoader    `errorTxt:"loader" mandatory:"yes"`
	Transformer  transform.Runner `errorTxt:"transform runner" mandatory:"yes"`
	RunLogger    RunLogger        `errorTxt:"run logger" mandatory:"yes"`
	Feeds        []feed.Name      // defaults to feed.All.
	LogTables    []string         // tables counted by the run logger; defaults to stg_taxi.
	FetchTimeout time.Duration    // extra bound on each fetch step.
	StepTimeout  time.Duration
	Retries      int
	RetryDelay   time.Duration
	Concurrency  int
	Registry     *SafeMapRunInfo // optional; receives run progress.
}

type Pipeline struct {
	cfg Config
}

func New(cfg Config) (*Pipeline, error) {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil {
		return nil, err
	}
	if len(cfg.Feeds) == 0 {
		cfg.Feeds = feed.All
	}
	if len(cfg.LogTables) == 0 {
		cfg.LogTables = []string{constants.DefaultRunLogTargetTable}
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = time.Duration(constants.DefaultFetchTimeoutSeconds) * time.Second
	}
	if cfg.Registry == nil {
		cfg.Registry = NewSafeMapRunInfo()
	}
	return &Pipeline{cfg: cfg}, nil
}

// Registry returns the run registry used by this pipeline.
func (p *Pipeline) Registry() *SafeMapRunInfo {
	return p.cfg.Registry
}

// NewRunContext returns a run with a fresh id for logicalDate.
// The run covers the calendar month before the logical date.
func NewRunContext(logicalDate time.Time) dag.RunContext {
	return dag.RunContext{
		RunID:       xid.New().String(),
		LogicalDate: logicalDate,
		Period:      period.FromLogicalDate(logicalDate),
	}
}

// Graph returns the run graph: fetch_<feed> -> load_<feed> -> transform -> log_run.
func (p *Pipeline) Graph() (*dag.Graph, error) {
	return p.graph(nil)
}

// graph builds the run graph; t, if not nil, collects step outputs.
func (p *Pipeline) graph(t *tracker) (*dag.Graph, error) {
	nodes := make([]dag.Node, 0, 2*len(p.cfg.Feeds)+2)
	loads := make([]string, 0, len(p.cfg.Feeds))
	for _, f := range p.cfg.Feeds {
		f := f
		fetchName := constants.StepFetchPrefix + string(f)
		loadName := constants.StepLoadPrefix + string(f)
		loads = append(loads, loadName)
		nodes = append(nodes,
			dag.Node{Name: fetchName, Stage: StageFetch, Step: func(ctx context.Context, run dag.RunContext) error {
				ctx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
				defer cancel()
				o, err := p.cfg.Fetcher.FetchFeed(ctx, f, run.Period)
				if err == nil {
					t.addLanded(o)
				}
				return err
			}},
			dag.Node{Name: loadName, Stage: StageLoad, Deps: []string{fetchName}, Step: func(ctx context.Context, run dag.RunContext) error {
				r, err := p.cfg.Loader.LoadLanding(ctx, run.RunID, f, run.Period)
				if err == nil {
					t.addLoad(r)
				}
				return err
			}},
		)
	}
	nodes = append(nodes,
		dag.Node{Name: constants.StepTransform, Stage: StageTransform, Deps: loads, Step: func(ctx context.Context, run dag.RunContext) error {
			return p.cfg.Transformer.Run(ctx, run)
		}},
		dag.Node{Name: constants.StepLogRun, Stage: StageLog, Deps: []string{constants.StepTransform}, Step: func(ctx context.Context, run dag.RunContext) error {
			for _, table := range p.cfg.LogTables {
				r, err := p.cfg.RunLogger.LogRun(ctx, run.RunID, table)
				if err != nil {
					return err
				}
				t.addLogged(r)
			}
			return nil
		}},
	)
	return dag.NewGraph(nodes...)
}

// Run executes the graph for run. When from names a stage, steps in earlier stages are
// marked skipped; fetch and load are idempotent so resuming part way through is safe.
func (p *Pipeline) Run(ctx context.Context, run dag.RunContext, from string) (RunInfo, error) {
	skipBefore := 0
	if from != "" {
		skipBefore = -1
		for idx, s := range Stages {
			if s == from {
				skipBefore = idx
			}
		}
		if skipBefore < 0 {
			return RunInfo{}, fmt.Errorf("unknown stage %q (expected one of %v)", from, Stages)
		}
	}
	t := newTracker(p.cfg.Registry, RunInfo{
		Run:       run,
		State:     StatePending,
		From:      from,
		Steps:     make(map[string]dag.NodeResult),
		StartTime: time.Now(),
	})
	g, err := p.graph(t)
	if err != nil {
		return RunInfo{}, err
	}
	skip := make(map[string]bool)
	for _, n := range g.Nodes() {
		for idx := 0; idx < skipBefore; idx++ {
			if n.Stage == Stages[idx] {
				skip[n.Name] = true
			}
		}
	}
	t.stages = g.Stages()
	t.stageNodes = make(map[string][]string)
	for _, n := range g.Nodes() {
		t.stageNodes[n.Stage] = append(t.stageNodes[n.Stage], n.Name)
	}
	log := p.cfg.Log.WithField("runId", run.RunID)
	log.Info("starting run for period ", run.Period, " (logical date ", run.LogicalDate.Format(constants.TimeFormatLogicalDate), ")")
	e := &dag.Executor{
		Log:         log,
		StepTimeout: p.cfg.StepTimeout,
		Retries:     p.cfg.Retries,
		RetryDelay:  p.cfg.RetryDelay,
		Concurrency: p.cfg.Concurrency,
		Skip:        skip,
		OnStepDone:  t.stepDone,
	}
	res := e.Run(ctx, run, g)
	info := t.finish(res.Err)
	if res.Err != nil {
		log.Error("run failed after stage ", info.LastCompletedStage, ": ", res.Err)
		return info, res.Err
	}
	log.Info("run complete in state ", info.State)
	return info, nil
}

// tracker moves the run state machine as stages complete and publishes progress.
type tracker struct {
	mu         sync.Mutex
	registry   *SafeMapRunInfo
	info       RunInfo
	machine    *stateless.StateMachine
	stages     []string
	stageNodes map[string][]string
	nextStage  int
}

func newTracker(registry *SafeMapRunInfo, info RunInfo) *tracker {
	t := &tracker{registry: registry, info: info, machine: NewRunStateMachine()}
	registry.Store(info.Run.RunID, info)
	return t
}

func (t *tracker) stepDone(run dag.RunContext, r dag.NodeResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.info.Steps[r.Name] = r
	if r.Status == dag.StatusFailed {
		t.fire(TriggerFail)
	}
	// Advance through every stage whose steps have all succeeded, in order.
	for t.nextStage < len(t.stages) && t.stageSatisfied(t.stages[t.nextStage]) {
		stage := t.stages[t.nextStage]
		if !t.fire(stageTriggers[stage]) {
			break
		}
		t.info.LastCompletedStage = stage
		t.nextStage++
	}
	t.registry.Store(run.RunID, t.info)
}

func (t *tracker) stageSatisfied(stage string) bool {
	for _, name := range t.stageNodes[stage] {
		s := t.info.Steps[name].Status
		if s != dag.StatusSucceeded && s != dag.StatusSkipped {
			return false
		}
	}
	return true
}

// fire applies trigger if the machine permits it and records the new state.
func (t *tracker) fire(trigger Trigger) bool {
	if ok, _ := t.machine.CanFire(trigger); !ok {
		return false
	}
	if err := t.machine.Fire(trigger); err != nil {
		return false
	}
	t.info.State = t.machine.MustState().(State)
	return true
}

func (t *tracker) finish(err error) RunInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.fire(TriggerFail)
		t.info.Error = err.Error()
	}
	t.info.EndTime = time.Now()
	t.registry.Store(t.info.Run.RunID, t.info)
	return t.info.copy()
}

func (t *tracker) addLanded(o fetcher.LandedObject) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.info.Landed = append(t.info.Landed, o)
}

func (t *tracker) addLoad(r loader.LoadResult) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.info.Loads = append(t.info.Loads, r)
}

func (t *tracker) addLogged(r runlog.Record) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.info.Logged = append(t.info.Logged, r)
}
