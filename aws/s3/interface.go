//go:generate mockgen -package mocks -destination mocks/interface.go -source=interface.go
package s3

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrKeyNotFound = errors.New("key not found")

// Object describes a stored object. Key is relative to the client prefix.
type Object struct {
	Key          string
	ETag         string // quotes removed
	Size         int64
	LastModified time.Time
}

type BasicClient interface {
	Lister
	Getter
	Putter
	Header
	Deleter
}

type Client interface {
	BasicClient
	Uploader
}

type Lister interface {
	// List returns all objects whose key starts with prefix.
	List(ctx context.Context, prefix string) (objects []Object, err error)
}

type Getter interface {
	// Get returns ErrKeyNotFound if the given key doesn't exist.
	Get(ctx context.Context, key string) (data []byte, err error)
}

type Putter interface {
	// Put replaces any object already stored at key.
	Put(ctx context.Context, key string, data []byte) (err error)
}

type Header interface {
	// Head returns ErrKeyNotFound if the given key doesn't exist.
	Head(ctx context.Context, key string) (Object, error)
}

type Deleter interface {
	Delete(ctx context.Context, key string) error
}

// Uploader streams r to key in parts without holding the whole body in memory.
// Any object already stored at key is replaced once the upload completes.
type Uploader interface {
	Upload(ctx context.Context, key string, r io.Reader) (Object, error)
}
