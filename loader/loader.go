// Package loader copies landed trip-record files from the Snowflake stage into landing tables.
package loader

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/relloyd/taxipipe/aws/s3"
	"github.com/relloyd/taxipipe/constants"
	"github.com/relloyd/taxipipe/feed"
	"github.com/relloyd/taxipipe/helper"
	"github.com/relloyd/taxipipe/logger"
	"github.com/relloyd/taxipipe/period"
	"github.com/relloyd/taxipipe/pipeerr"
	"github.com/relloyd/taxipipe/rdbms"
	"github.com/relloyd/taxipipe/rdbms/shared"
)

type Config struct {
	Log                 logger.Logger     `errorTxt:"logger" mandatory:"yes"`
	Db                  shared.Connector  `errorTxt:"warehouse connection" mandatory:"yes"`
	Store               s3.Lister         `errorTxt:"object store client" mandatory:"yes"`
	Database            string            `errorTxt:"warehouse database" mandatory:"yes"`
	Schema              string            `errorTxt:"warehouse schema" mandatory:"yes"`
	Stage               string            `errorTxt:"warehouse stage" mandatory:"yes"`
	ManifestTable       string            // defaults to constants.DefaultManifestTable.
	Tables              map[string]string // landing table per feed; defaults to <feed>_taxi.
	KeyLayout           string            // must match the layout used by the fetcher.
	OnNoFiles           string            // constants.OnNoFilesError or constants.OnNoFilesSkip.
	LoadTimestampColumn string            // landing column stamped with the load time; empty to skip.
	StatementTimeout    time.Duration
}

// LoadResult summarises one LoadLanding call.
type LoadResult struct {
	Feed         feed.Name `json:"feed"`
	Table        string    `json:"table"`
	RowsLoaded   int64     `json:"rowsLoaded"`
	FilesLoaded  int       `json:"filesLoaded"`
	FilesSkipped int       `json:"filesSkipped"`
	Files        []string  `json:"files"`
}

type Loader struct {
	cfg      Config
	manifest rdbms.SchemaTable
	use      []string
}

// New validates cfg and returns a Loader with defaults applied.
func New(cfg Config) (*Loader, error) {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil {
		return nil, err
	}
	if cfg.ManifestTable == "" {
		cfg.ManifestTable = constants.DefaultManifestTable
	}
	if cfg.KeyLayout == "" {
		cfg.KeyLayout = constants.KeyLayoutPartitioned
	}
	switch cfg.OnNoFiles {
	case "":
		cfg.OnNoFiles = constants.OnNoFilesError
	case constants.OnNoFilesError, constants.OnNoFilesSkip:
	default:
		return nil, fmt.Errorf("unsupported on_no_files policy %q", cfg.OnNoFiles)
	}
	if cfg.StatementTimeout <= 0 {
		cfg.StatementTimeout = time.Duration(constants.DefaultStatementTimeoutSecs) * time.Second
	}
	manifest, err := rdbms.ParseSchemaTable(cfg.ManifestTable)
	if err != nil {
		return nil, err
	}
	use, err := UseSql(cfg.Database, cfg.Schema)
	if err != nil {
		return nil, err
	}
	return &Loader{cfg: cfg, manifest: manifest, use: use}, nil
}

// TableFor returns the landing table configured for feed n.
func (l *Loader) TableFor(n feed.Name) string {
	if t, ok := l.cfg.Tables[string(n)]; ok && t != "" {
		return t
	}
	return fmt.Sprintf(constants.DefaultLandingTableTemplate, n)
}

// LoadLanding copies the staged file for feed n in period p into the feed's landing table.
// Files already recorded in the load manifest with the same checksum are not copied again.
func (l *Loader) LoadLanding(ctx context.Context, runID string, n feed.Name, p period.Period) (retval LoadResult, err error) {
	d := feed.New(n, p)
	table := l.TableFor(n)
	retval = LoadResult{Feed: n, Table: table, Files: make([]string, 0)}
	log := l.cfg.Log.WithField("feed", string(n)).WithField("table", table).WithField("runId", runID)
	fail := func(e error) (LoadResult, error) {
		return retval, &pipeerr.LoadError{Feed: string(n), Table: table, Err: e}
	}
	st, err := rdbms.ParseSchemaTable(table)
	if err != nil {
		return fail(err)
	}
	// Find the candidate files in the landing bucket.
	candidates, err := l.candidates(ctx, d)
	if err != nil {
		return fail(errors.Wrap(err, "unable to list staged files"))
	}
	if len(candidates) == 0 {
		if l.cfg.OnNoFiles == constants.OnNoFilesSkip {
			log.Warn("no staged files match ", d.Pattern(), "; skipping load")
			return retval, nil
		}
		return fail(pipeerr.ErrNoFilesMatched)
	}
	copySql, err := CopyIntoSql(st, l.cfg.Stage, d.Prefix(l.cfg.KeyLayout), d.Pattern(), l.cfg.LoadTimestampColumn)
	if err != nil {
		return fail(err)
	}
	// Start a transaction and set autocommit off.
	tx, err := l.cfg.Db.BeginTx(ctx)
	if err != nil {
		return fail(errors.Wrap(err, "unable to start transaction"))
	}
	rollbackRequired := true
	defer func() {
		if rollbackRequired {
			if e := tx.Rollback(); e != nil {
				log.Error("rollback failed: ", e)
			}
		}
	}()
	stmts := append([]string{"alter session set autocommit = false"}, l.use...)
	for _, stmt := range stmts {
		if err = l.exec(ctx, tx, stmt); err != nil {
			return fail(err)
		}
	}
	// Skip files whose checksum is already in the manifest.
	loaded, err := l.loadedChecksums(ctx, tx, table)
	if err != nil {
		return fail(err)
	}
	pending := make(map[string]s3.Object, len(candidates))
	for _, c := range candidates {
		if loaded[c.Key][c.ETag] {
			log.Info("file ", c.Key, " already loaded with checksum ", c.ETag)
			retval.FilesSkipped++
			continue
		}
		pending[c.Key] = c
	}
	if len(pending) == 0 {
		log.Info("nothing to load")
		return retval, nil
	}
	// Copy.
	log.Info("loading ", len(pending), " file(s) from stage ", l.cfg.Stage)
	log.Debug("executing query: ", copySql)
	copied, err := l.copyInto(ctx, tx, copySql)
	if err != nil {
		return fail(err)
	}
	// Record each file that was copied.
	now := time.Now().UTC()
	for key, c := range pending {
		rows, ok := copied.rowsFor(key)
		if !ok { // if Snowflake's own load history already had it...
			log.Info("file ", key, " was not copied by the warehouse")
			retval.FilesSkipped++
			continue
		}
		args := append([]interface{}{table, key, c.ETag, rows, runID}, rdbms.TimestampLtzArgs(now)...)
		if err = l.exec(ctx, tx, manifestInsertSql(l.manifest), args...); err != nil {
			return fail(errors.Wrap(err, "unable to record load manifest"))
		}
		retval.RowsLoaded += rows
		retval.FilesLoaded++
		retval.Files = append(retval.Files, key)
	}
	if err = tx.Commit(); err != nil {
		return fail(errors.Wrap(err, "commit failed"))
	}
	rollbackRequired = false
	log.Info("loaded ", retval.RowsLoaded, " rows from ", retval.FilesLoaded, " file(s)")
	return retval, nil
}

// candidates lists objects under the feed prefix whose base name is the period's file name.
func (l *Loader) candidates(ctx context.Context, d feed.Descriptor) ([]s3.Object, error) {
	prefix := d.Prefix(l.cfg.KeyLayout)
	if prefix != "" {
		prefix += "/"
	}
	objects, err := l.cfg.Store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	retval := make([]s3.Object, 0, 1)
	for _, o := range objects {
		if path.Base(o.Key) == d.FileName() {
			retval = append(retval, o)
		}
	}
	return retval, nil
}

func (l *Loader) exec(ctx context.Context, tx shared.Execer, query string, args ...interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.StatementTimeout)
	defer cancel()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrapf(err, "error executing SQL: '%v'", query)
	}
	return nil
}

// loadedChecksums returns the checksums recorded in the manifest for table, by file.
// A file republished with new content has one row per version.
func (l *Loader) loadedChecksums(ctx context.Context, tx shared.Querier, table string) (map[string]map[string]bool, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.StatementTimeout)
	defer cancel()
	c := &rdbms.RowCollector{}
	if err := rdbms.SqlQuery(ctx, l.cfg.Log, tx, manifestSelectSql(l.manifest), c, table); err != nil {
		return nil, errors.Wrap(err, "unable to read load manifest")
	}
	retval := make(map[string]map[string]bool, len(c.Rows))
	for _, row := range c.Rows {
		f := asString(row[0])
		if retval[f] == nil {
			retval[f] = make(map[string]bool)
		}
		retval[f][asString(row[1])] = true
	}
	return retval, nil
}

// copyResult holds the per-file rows reported by COPY INTO.
type copyResult map[string]int64

// rowsFor matches key against the stage paths reported by the warehouse.
func (c copyResult) rowsFor(key string) (int64, bool) {
	for f, rows := range c {
		if strings.HasSuffix(f, "/"+key) || f == key {
			return rows, true
		}
	}
	return 0, false
}

func (l *Loader) copyInto(ctx context.Context, tx shared.Querier, copySql string) (copyResult, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.StatementTimeout)
	defer cancel()
	c := &rdbms.RowCollector{}
	if err := rdbms.SqlQuery(ctx, l.cfg.Log, tx, copySql, c); err != nil {
		return nil, err
	}
	idxFile, idxStatus, idxRows := -1, -1, -1
	for idx, h := range c.Header {
		switch strings.ToLower(h) {
		case "file":
			idxFile = idx
		case "status":
			idxStatus = idx
		case "rows_loaded":
			idxRows = idx
		}
	}
	retval := make(copyResult)
	if idxFile < 0 || idxRows < 0 { // if the warehouse reported "0 files processed"...
		return retval, nil
	}
	for _, row := range c.Rows {
		status := ""
		if idxStatus >= 0 {
			status = strings.ToUpper(asString(row[idxStatus]))
		}
		if status == "LOAD_FAILED" {
			return nil, fmt.Errorf("file %v was rejected by COPY INTO", asString(row[idxFile]))
		}
		rows, err := asInt64(row[idxRows])
		if err != nil {
			return nil, errors.Wrap(err, "unable to read rows_loaded")
		}
		retval[asString(row[idxFile])] = rows
	}
	return retval, nil
}

func asString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

func asInt64(v interface{}) (int64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case float64:
		return int64(x), nil
	default:
		return strconv.ParseInt(strings.TrimSpace(asString(v)), 10, 64)
	}
}
