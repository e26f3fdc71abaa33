// Package filestore keeps rendered exports in an object store.
//
// A Store is bound to one bucket and key prefix when it is opened. Keys
// passed to it are relative to that prefix, so callers never see where the
// provider actually puts the bytes.
package filestore

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/koustreak/pgstudio/internal/errs"
)

// Store holds export files.
type Store interface {
	Ping(ctx context.Context) error
	Close() error

	// Prepare creates the bucket when it is missing.
	Prepare(ctx context.Context) error

	// Save uploads size bytes of r under key. A size of -1 reads until EOF.
	Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) (*File, error)

	// List returns stored files ordered by key, starting after the key
	// after. A limit of 0 returns everything.
	List(ctx context.Context, after string, limit int) ([]File, error)

	// Open streams the content of key. Callers must close the Download.
	Open(ctx context.Context, key string) (Download, error)

	Stat(ctx context.Context, key string) (*File, error)

	// URL returns a link that downloads key without credentials for ttl.
	URL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// File describes one stored export.
type File struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"contentType"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"lastModified"`
}

// Download is an open export.
type Download interface {
	io.ReadCloser
	File() *File
}

// CheckKey rejects keys that could escape the store's prefix.
func CheckKey(key string) error {
	if key == "" {
		return errs.New(errs.ErrKindInvalidInput, "export key cannot be empty")
	}
	if strings.HasPrefix(key, "/") || strings.HasSuffix(key, "/") {
		return errs.Newf(errs.ErrKindInvalidInput, "invalid export key '%s'", key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return errs.Newf(errs.ErrKindInvalidInput, "invalid export key '%s'", key)
		}
	}
	return nil
}
