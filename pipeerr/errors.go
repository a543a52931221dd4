// Package pipeerr holds the failure taxonomy shared by the pipeline steps.
// Every step returns one of these so the orchestrating layer can tell a failed
// download from a rejected load without parsing messages.
package pipeerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNoFilesMatched is wrapped by LoadError when the stage holds no file for the period.
var ErrNoFilesMatched = errors.New("no staged files matched the load pattern")

// NetworkError means a download failed or returned a non-2xx status.
type NetworkError struct {
	Feed       string
	URL        string
	StatusCode int // zero when no response was received
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download of feed %v from %v failed with HTTP status %v: %v", e.Feed, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("download of feed %v from %v failed: %v", e.Feed, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// StorageWriteError means the object store rejected a put.
type StorageWriteError struct {
	Feed string
	Key  string
	Err  error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("unable to write feed %v to object key %v: %v", e.Feed, e.Key, e.Err)
}

func (e *StorageWriteError) Unwrap() error { return e.Err }

// LoadError means the bulk copy was rejected, matched nothing or could not run.
type LoadError struct {
	Feed  string
	Table string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load of feed %v into table %v failed: %v", e.Feed, e.Table, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// LogError means the run log aggregation or insert failed.
type LogError struct {
	RunID string
	Table string
	Err   error
}

func (e *LogError) Error() string {
	return fmt.Sprintf("run log for run %v table %v failed: %v", e.RunID, e.Table, e.Err)
}

func (e *LogError) Unwrap() error { return e.Err }

// TransformError means the transform stage exited unsuccessfully.
type TransformError struct {
	Runner string
	Err    error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform stage (%v) failed: %v", e.Runner, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }
