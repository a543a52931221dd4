package actions

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/relloyd/taxipipe/aws/s3"
	"github.com/relloyd/taxipipe/config"
	"github.com/relloyd/taxipipe/constants"
	"github.com/relloyd/taxipipe/logger"
	"github.com/relloyd/taxipipe/pipeerr"
	"github.com/relloyd/taxipipe/pipeline"
	"github.com/relloyd/taxipipe/rdbms/shared"
)

type testEnv struct {
	cfg    config.Config
	store  *s3.MemoryClient
	db     *shared.MockConnectionWithMockTx
	source *httptest.Server
	hits   int32
}

func newTestEnv(t *testing.T) *testEnv {
	e := &testEnv{
		store: s3.NewMemoryClient(),
		db:    shared.NewMockConnectionWithMockTx(nil, constants.ConnectionTypeSnowflake),
	}
	e.source = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&e.hits, 1)
		_, _ = w.Write([]byte("PAR1 " + strings.TrimPrefix(r.URL.Path, "/")))
	}))
	t.Cleanup(e.source.Close)
	e.cfg = config.Default()
	e.cfg.Source.BaseURL = e.source.URL
	e.cfg.Store.Bucket = "landing"
	e.cfg.Store.Prefix = "raw"
	e.cfg.Store.Region = "eu-west-2"
	e.cfg.Warehouse.Type = constants.ConnectionTypeMockSnowflake
	e.cfg.Transform.Type = constants.TransformTypeNone
	e.cfg.Log.Level = "error"
	return e
}

func (e *testEnv) connector() Connector {
	return Connector{
		NewStore: func(b s3.AwsS3Bucket) (s3.Client, error) { return e.store, nil },
		OpenDb: func(ctx context.Context, log logger.Logger, c shared.ConnectionDetails) (shared.Connector, error) {
			return e.db, nil
		},
	}
}

func (e *testEnv) runConfig(logicalDate string) *RunConfig {
	return &RunConfig{
		Config:      e.cfg,
		Connector:   e.connector(),
		Log:         logger.NewLogger("taxipipe", "error", true),
		LogicalDate: logicalDate,
	}
}

func (e *testEnv) scriptWarehouse() {
	for _, f := range []string{"green", "yellow"} {
		e.db.AddQueryResult(shared.MockQueryResult{
			Match:   "COPY INTO " + f + "_taxi",
			Columns: []string{"file", "status", "rows_loaded"},
			Rows:    [][]interface{}{{"s3://landing/raw/" + f + "/2025/01/" + f + "_tripdata_2025-01.parquet", "LOADED", int64(50)}},
		})
	}
	e.db.AddQueryResult(shared.MockQueryResult{
		Match:   "select count(*)",
		Columns: []string{"COUNT", "NEW", "MAX"},
		Rows:    [][]interface{}{{int64(100), int64(12), time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)}},
	})
}

func TestRunPipelineEndToEnd(t *testing.T) {
	e := newTestEnv(t)
	e.scriptWarehouse()
	registry := pipeline.NewSafeMapRunInfo()
	info, err := RunPipeline(context.Background(), e.runConfig("2025-02-01"), registry)
	if err != nil {
		t.Fatal(err)
	}
	if info.State != pipeline.StateLogged || info.Run.Period.String() != "2025-01" {
		t.Fatalf("unexpected run info %+v", info)
	}
	keys := e.store.Keys()
	if len(keys) != 2 || keys[0] != "green/2025/01/green_tripdata_2025-01.parquet" || keys[1] != "yellow/2025/01/yellow_tripdata_2025-01.parquet" {
		t.Fatalf("unexpected landed keys %v", keys)
	}
	if len(info.Loads) != 2 || info.Loads[0].RowsLoaded+info.Loads[1].RowsLoaded != 100 {
		t.Fatalf("unexpected loads %+v", info.Loads)
	}
	if s, args := e.db.StatementsContaining("insert into metadata.processing_log"); len(s) != 1 || args[0][1] != constants.DefaultRunLogTargetTable {
		t.Fatalf("expected one processing log insert; got %v %v", s, args)
	}
	if _, ok := registry.Load(info.Run.RunID); !ok {
		t.Fatal("expected the run to be registered")
	}
	if !e.db.IsClosed() {
		t.Fatal("expected the warehouse connection to be closed")
	}
}

func TestRunPipelineFromTransformSkipsFetch(t *testing.T) {
	e := newTestEnv(t)
	e.scriptWarehouse()
	rc := e.runConfig("2025-02-01")
	rc.From = pipeline.StageTransform
	info, err := RunPipeline(context.Background(), rc, nil)
	if err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&e.hits) != 0 || len(e.store.Keys()) != 0 {
		t.Fatal("expected no downloads when resuming from transform")
	}
	if s, _ := e.db.StatementsContaining("COPY INTO"); len(s) != 0 {
		t.Fatalf("expected no loads; got %v", s)
	}
	if info.State != pipeline.StateLogged {
		t.Fatalf("expected LOGGED; got %v", info.State)
	}
}

func TestRunFetchOnlyNeedsTheStore(t *testing.T) {
	e := newTestEnv(t)
	rc := e.runConfig("")
	rc.Period = "2024-12"
	rc.Connector.OpenDb = func(ctx context.Context, log logger.Logger, c shared.ConnectionDetails) (shared.Connector, error) {
		t.Fatal("fetch must not open the warehouse")
		return nil, nil
	}
	landed, err := RunFetch(context.Background(), rc)
	if err != nil {
		t.Fatal(err)
	}
	if len(landed) != 2 || landed[0].Key != "green/2024/12/green_tripdata_2024-12.parquet" {
		t.Fatalf("unexpected landed objects %+v", landed)
	}
}

func TestRunLoadReportsMissingFiles(t *testing.T) {
	e := newTestEnv(t)
	_, err := RunLoad(context.Background(), e.runConfig("2025-02-01"))
	var lerr *pipeerr.LoadError
	if !errors.As(err, &lerr) || !errors.Is(err, pipeerr.ErrNoFilesMatched) {
		t.Fatalf("expected a LoadError for missing files; got %v", err)
	}
	e.cfg.Load.OnNoFiles = constants.OnNoFilesSkip
	res, err := RunLoad(context.Background(), e.runConfig("2025-02-01"))
	if err != nil || len(res) != 2 || res[0].RowsLoaded != 0 {
		t.Fatalf("expected two empty loads; got %+v, %v", res, err)
	}
}

func TestRunLogRun(t *testing.T) {
	e := newTestEnv(t)
	e.scriptWarehouse()
	rc := e.runConfig("")
	if _, err := RunLogRun(context.Background(), rc); err == nil {
		t.Fatal("expected an error without a run id")
	}
	rc.RunID = "manual-1"
	recs, err := RunLogRun(context.Background(), rc)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].TotalRows != 100 || recs[0].NewRows != 12 || recs[0].RunID != "manual-1" {
		t.Fatalf("unexpected records %+v", recs)
	}
}

func TestRunContext(t *testing.T) {
	rc := &RunConfig{LogicalDate: "2025-03-01"}
	run, err := rc.runContext(time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if run.Period.String() != "2025-02" || run.RunID == "" {
		t.Fatalf("unexpected run %+v", run)
	}
	rc = &RunConfig{Period: "2024-07", RunID: "abc"}
	run, err = rc.runContext(time.Date(2025, 5, 17, 13, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if run.Period.String() != "2024-07" || run.RunID != "abc" || !run.LogicalDate.Equal(time.Date(2025, 5, 17, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected run %+v", run)
	}
	for _, bad := range []*RunConfig{{LogicalDate: "01/03/2025"}, {Period: "2025-13"}} {
		if _, err := bad.runContext(time.Now()); err == nil {
			t.Fatalf("expected an error for %+v", bad)
		}
	}
}

func TestBuildValidatesSections(t *testing.T) {
	e := newTestEnv(t)
	e.cfg.Store.Bucket = ""
	_, err := RunFetch(context.Background(), e.runConfig(""))
	if err == nil || !strings.Contains(err.Error(), "store.bucket") {
		t.Fatalf("expected missing bucket to be reported; got %v", err)
	}
	e = newTestEnv(t)
	e.cfg.Warehouse.Type = constants.ConnectionTypeSnowflake
	e.cfg.Warehouse.DSN = ""
	_, err = RunLogRun(context.Background(), &RunConfig{Config: e.cfg, Connector: e.connector(), RunID: "x"})
	if err == nil || !strings.Contains(err.Error(), "warehouse.dsn") {
		t.Fatalf("expected missing dsn to be reported; got %v", err)
	}
}
