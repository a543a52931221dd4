package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/relloyd/taxipipe/constants"
	"github.com/relloyd/taxipipe/dag"
	"github.com/relloyd/taxipipe/feed"
	"github.com/relloyd/taxipipe/fetcher"
	"github.com/relloyd/taxipipe/loader"
	"github.com/relloyd/taxipipe/logger"
	"github.com/relloyd/taxipipe/period"
	"github.com/relloyd/taxipipe/runlog"
	"github.com/relloyd/taxipipe/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSteps struct {
	mu           sync.Mutex
	calls        []string
	failFetch    feed.Name
	failTransform bool
}

func (f *fakeSteps) record(s string) {
	f.mu.Lock()
	f.calls = append(f.calls, s)
	f.mu.Unlock()
}

func (f *fakeSteps) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeSteps) FetchFeed(ctx context.Context, n feed.Name, p period.Period) (fetcher.LandedObject, error) {
	f.record("fetch " + string(n) + " " + p.String())
	if n == f.failFetch {
		return fetcher.LandedObject{}, errors.New("404")
	}
	return fetcher.LandedObject{Feed: n, Key: feed.New(n, p).StorageKey(constants.KeyLayoutPartitioned)}, nil
}

func (f *fakeSteps) LoadLanding(ctx context.Context, runID string, n feed.Name, p period.Period) (loader.LoadResult, error) {
	f.record("load " + string(n))
	return loader.LoadResult{Feed: n, RowsLoaded: 10}, nil
}

func (f *fakeSteps) Name() string { return "fake" }

func (f *fakeSteps) Run(ctx context.Context, run dag.RunContext) error {
	f.record("transform")
	if f.failTransform {
		return errors.New("model failed")
	}
	return nil
}

func (f *fakeSteps) LogRun(ctx context.Context, runID string, tableName string) (runlog.Record, error) {
	f.record("log " + tableName)
	return runlog.Record{RunID: runID, TableName: tableName, TotalRows: 100}, nil
}

var _ transform.Runner = &fakeSteps{}

func newTestPipeline(t *testing.T, f *fakeSteps) *Pipeline {
	p, err := New(Config{
		Log:         logger.NewLogger("taxipipe", "error", true),
		Fetcher:     f,
		Loader:      f,
		Transformer: f,
		RunLogger:   f,
	})
	require.NoError(t, err)
	return p
}

func march2025() dag.RunContext {
	return NewRunContext(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
}

func TestNewRunContext(t *testing.T) {
	a := march2025()
	b := march2025()
	assert.Equal(t, "2025-02", a.Period.String())
	assert.NotEmpty(t, a.RunID)
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestPipelineRunSucceeds(t *testing.T) {
	f := &fakeSteps{}
	p := newTestPipeline(t, f)
	run := march2025()
	info, err := p.Run(context.Background(), run, "")
	require.NoError(t, err)
	assert.Equal(t, StateLogged, info.State)
	assert.Equal(t, StageLog, info.LastCompletedStage)
	assert.Len(t, info.Landed, 2)
	assert.Len(t, info.Loads, 2)
	require.Len(t, info.Logged, 1)
	assert.Equal(t, constants.DefaultRunLogTargetTable, info.Logged[0].TableName)
	assert.Contains(t, f.called(), "fetch green 2025-02")
	assert.Contains(t, f.called(), "fetch yellow 2025-02")
	calls := f.called()
	assert.Equal(t, "log stg_taxi", calls[len(calls)-1])
	stored, ok := p.Registry().Load(run.RunID)
	require.True(t, ok)
	assert.Equal(t, StateLogged, stored.State)
	assert.False(t, stored.EndTime.IsZero())
}

func TestPipelineFetchFailure(t *testing.T) {
	f := &fakeSteps{failFetch: feed.Yellow}
	p := newTestPipeline(t, f)
	info, err := p.Run(context.Background(), march2025(), "")
	require.Error(t, err)
	assert.Equal(t, StateFailed, info.State)
	assert.Equal(t, "", info.LastCompletedStage)
	assert.Equal(t, dag.StatusSucceeded, info.Steps["load_green"].Status)
	assert.Equal(t, dag.StatusUpstreamFailed, info.Steps["load_yellow"].Status)
	assert.Equal(t, dag.StatusUpstreamFailed, info.Steps["log_run"].Status)
	assert.NotContains(t, f.called(), "transform")
	assert.Contains(t, info.Error, "fetch_yellow")
}

func TestPipelineTransformFailureRecordsLastStage(t *testing.T) {
	f := &fakeSteps{failTransform: true}
	p := newTestPipeline(t, f)
	info, err := p.Run(context.Background(), march2025(), "")
	require.Error(t, err)
	assert.Equal(t, StateFailed, info.State)
	assert.Equal(t, StageLoad, info.LastCompletedStage)
	assert.Empty(t, info.Logged)
}

func TestPipelineResumeFromStage(t *testing.T) {
	f := &fakeSteps{}
	p := newTestPipeline(t, f)
	info, err := p.Run(context.Background(), march2025(), StageTransform)
	require.NoError(t, err)
	assert.Equal(t, []string{"transform", "log stg_taxi"}, f.called())
	assert.Equal(t, StateLogged, info.State)
	assert.Equal(t, dag.StatusSkipped, info.Steps["fetch_green"].Status)

	_, err = p.Run(context.Background(), march2025(), "publish")
	assert.ErrorContains(t, err, "unknown stage")
}

func TestRunStateMachineOrder(t *testing.T) {
	m := NewRunStateMachine()
	// States cannot be skipped.
	assert.Error(t, m.Fire(TriggerLanded))
	for _, tr := range []Trigger{TriggerFetched, TriggerLanded, TriggerTransformed, TriggerLogged} {
		require.NoError(t, m.Fire(tr))
	}
	assert.Equal(t, StateLogged, m.MustState())
	// LOGGED is terminal.
	assert.Error(t, m.Fire(TriggerFail))

	m = NewRunStateMachine()
	require.NoError(t, m.Fire(TriggerFetched))
	require.NoError(t, m.Fire(TriggerFail))
	assert.Equal(t, StateFailed, m.MustState())
	assert.True(t, StateFailed.Finished())
}

func TestRegistryListOrder(t *testing.T) {
	r := NewSafeMapRunInfo()
	now := time.Now()
	r.Store("a", RunInfo{Run: dag.RunContext{RunID: "a"}, StartTime: now.Add(-time.Hour)})
	r.Store("b", RunInfo{Run: dag.RunContext{RunID: "b"}, StartTime: now})
	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].Run.RunID)
	r.Delete("b")
	_, ok := r.Load("b")
	assert.False(t, ok)
}
