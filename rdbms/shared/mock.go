package shared

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/relloyd/taxipipe/logger"
)

// MockQueryResult is returned by the mock connection for any query containing Match (case-insensitive).
type MockQueryResult struct {
	Match   string
	Columns []string
	Rows    [][]interface{}
	Err     error
}

// MockConnectionWithMockTx records every statement executed against it and serves scripted query results.
// Statements run on a transaction are recorded against the parent connection in execution order.
type MockConnectionWithMockTx struct {
	log       logger.Logger
	mu        sync.Mutex
	DbType    string
	sqlText   []string
	args      [][]interface{}
	results   []*MockQueryResult
	execErrs  map[string]error
	commits   int
	rollbacks int
	closed    bool
}

func NewMockConnectionWithMockTx(log logger.Logger, dbType string) *MockConnectionWithMockTx {
	return &MockConnectionWithMockTx{log: log, DbType: dbType, execErrs: make(map[string]error)}
}

// AddQueryResult queues a result. Results for the same Match are served in order; the last one repeats.
func (m *MockConnectionWithMockTx) AddQueryResult(r MockQueryResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, &r)
}

// AddExecError makes any statement containing match fail with err.
func (m *MockConnectionWithMockTx) AddExecError(match string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execErrs[strings.ToLower(match)] = err
}

// Statements returns all SQL seen so far.
func (m *MockConnectionWithMockTx) Statements() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sqlText...)
}

// StatementsContaining returns the SQL and bound args of every statement containing match.
func (m *MockConnectionWithMockTx) StatementsContaining(match string) (sqlText []string, args [][]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for idx, s := range m.sqlText {
		if containsFold(s, match) {
			sqlText = append(sqlText, s)
			args = append(args, m.args[idx])
		}
	}
	return
}

func (m *MockConnectionWithMockTx) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

func (m *MockConnectionWithMockTx) Rollbacks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rollbacks
}

func (m *MockConnectionWithMockTx) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Connector:

func (m *MockConnectionWithMockTx) Begin() (Transacter, error) {
	return m.BeginTx(context.Background())
}

func (m *MockConnectionWithMockTx) BeginTx(ctx context.Context) (Transacter, error) {
	return &MockTx{conn: m}, nil
}

func (m *MockConnectionWithMockTx) ExecContext(ctx context.Context, query string, args ...interface{}) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(query, args)
	for match, err := range m.execErrs {
		if containsFold(query, match) {
			return nil, err
		}
	}
	return mockResult{}, nil
}

func (m *MockConnectionWithMockTx) QueryContext(ctx context.Context, query string, args ...interface{}) (Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(query, args)
	for idx, r := range m.results {
		if !containsFold(query, r.Match) {
			continue
		}
		if m.hasLaterMatch(idx, r.Match) { // consume queued results in order.
			m.results = append(m.results[:idx], m.results[idx+1:]...)
		}
		if r.Err != nil {
			return nil, r.Err
		}
		return &MockRows{columns: r.Columns, rows: r.Rows, idx: -1}, nil
	}
	return &MockRows{idx: -1}, nil
}

func (m *MockConnectionWithMockTx) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *MockConnectionWithMockTx) GetType() string {
	return m.DbType
}

func (m *MockConnectionWithMockTx) record(query string, args []interface{}) {
	if m.log != nil {
		m.log.Debug("mock connection received: ", query, " args: ", args)
	}
	m.sqlText = append(m.sqlText, query)
	m.args = append(m.args, args)
}

func (m *MockConnectionWithMockTx) hasLaterMatch(idx int, match string) bool {
	for _, r := range m.results[idx+1:] {
		if strings.EqualFold(r.Match, match) {
			return true
		}
	}
	return false
}

// Transacter:

type MockTx struct {
	conn *MockConnectionWithMockTx
}

func (t *MockTx) ExecContext(ctx context.Context, query string, args ...interface{}) (Result, error) {
	return t.conn.ExecContext(ctx, query, args...)
}

func (t *MockTx) QueryContext(ctx context.Context, query string, args ...interface{}) (Rows, error) {
	return t.conn.QueryContext(ctx, query, args...)
}

func (t *MockTx) Commit() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	t.conn.commits++
	return nil
}

func (t *MockTx) Rollback() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	t.conn.rollbacks++
	return nil
}

// Rows:

type MockRows struct {
	columns []string
	rows    [][]interface{}
	idx     int
}

func (r *MockRows) Columns() ([]string, error) {
	return r.columns, nil
}

func (r *MockRows) Next() bool {
	r.idx++
	return r.idx < len(r.rows)
}

func (r *MockRows) Scan(dest ...interface{}) error {
	if r.idx < 0 || r.idx >= len(r.rows) {
		return sql.ErrNoRows
	}
	row := r.rows[r.idx]
	if len(dest) != len(row) {
		return fmt.Errorf("mock scan expected %v destinations but got %v", len(row), len(dest))
	}
	for i := range row {
		if err := assign(dest[i], row[i]); err != nil {
			return fmt.Errorf("mock scan of column %v: %w", i, err)
		}
	}
	return nil
}

func (r *MockRows) Err() error {
	return nil
}

func (r *MockRows) Close() error {
	return nil
}

type mockResult struct{}

func (mockResult) LastInsertId() (int64, error) { return 0, nil }
func (mockResult) RowsAffected() (int64, error) { return 1, nil }

// assign copies src into the pointer dest using the conversions the tests rely on.
func assign(dest, src interface{}) error {
	if s, ok := dest.(sql.Scanner); ok {
		return s.Scan(src)
	}
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Ptr || dv.IsNil() {
		return fmt.Errorf("destination %T is not a pointer", dest)
	}
	ev := dv.Elem()
	if src == nil {
		ev.Set(reflect.Zero(ev.Type()))
		return nil
	}
	sv := reflect.ValueOf(src)
	switch {
	case sv.Type().AssignableTo(ev.Type()):
		ev.Set(sv)
	case ev.Kind() == reflect.String:
		ev.SetString(fmt.Sprint(src))
	case sv.Type().ConvertibleTo(ev.Type()):
		ev.Set(sv.Convert(ev.Type()))
	default:
		return fmt.Errorf("cannot assign %T to %T", src, dest)
	}
	return nil
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
