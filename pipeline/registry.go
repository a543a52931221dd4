package pipeline

import (
	"sort"
	"sync"
	"time"

	"github.com/relloyd/taxipipe/dag"
	"github.com/relloyd/taxipipe/fetcher"
	"github.com/relloyd/taxipipe/loader"
	"github.com/relloyd/taxipipe/runlog"
)

// RunInfo is the observable state of one pipeline run.
type RunInfo struct {
	Run                dag.RunContext            `json:"run"`
	State              State                     `json:"state"`
	LastCompletedStage string                    `json:"lastCompletedStage"`
	From               string                    `json:"from,omitempty"`
	Steps              map[string]dag.NodeResult `json:"steps"`
	Landed             []fetcher.LandedObject    `json:"landed"`
	Loads              []loader.LoadResult       `json:"loads"`
	Logged             []runlog.Record           `json:"logged"`
	StartTime          time.Time                 `json:"startTime"`
	EndTime            time.Time                 `json:"endTime,omitempty"`
	Error              string                    `json:"error,omitempty"`
}

// copy returns a RunInfo that shares no maps or slices with i.
func (i RunInfo) copy() RunInfo {
	steps := make(map[string]dag.NodeResult, len(i.Steps))
	for k, v := range i.Steps {
		steps[k] = v
	}
	i.Steps = steps
	i.Landed = append([]fetcher.LandedObject(nil), i.Landed...)
	i.Loads = append([]loader.LoadResult(nil), i.Loads...)
	i.Logged = append([]runlog.Record(nil), i.Logged...)
	return i
}

// SafeMapRunInfo wraps a map of RunInfo keyed by run id with locking, via Load() and Store() methods.
type SafeMapRunInfo struct {
	sync.RWMutex
	Internal map[string]RunInfo
}

func NewSafeMapRunInfo() *SafeMapRunInfo {
	ri := SafeMapRunInfo{}
	ri.Internal = make(map[string]RunInfo)
	return &ri
}

func (t *SafeMapRunInfo) Load(key string) (ri RunInfo, ok bool) {
	t.RLock()
	ri, ok = t.Internal[key]
	t.RUnlock()
	if ok {
		ri = ri.copy()
	}
	return
}

func (t *SafeMapRunInfo) Store(key string, value RunInfo) {
	t.Lock()
	t.Internal[key] = value.copy()
	t.Unlock()
}

func (t *SafeMapRunInfo) Delete(key string) {
	t.Lock()
	delete(t.Internal, key)
	t.Unlock()
}

// List returns all runs, most recent first.
func (t *SafeMapRunInfo) List() []RunInfo {
	t.RLock()
	retval := make([]RunInfo, 0, len(t.Internal))
	for _, v := range t.Internal {
		retval = append(retval, v.copy())
	}
	t.RUnlock()
	sort.Slice(retval, func(i, j int) bool {
		return retval[i].StartTime.After(retval[j].StartTime)
	})
	return retval
}
