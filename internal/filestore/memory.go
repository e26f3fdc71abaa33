package filestore

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/koustreak/pgstudio/internal/errs"
)

// MemoryStore keeps exports in process memory for the "memory" provider.
// Its URLs point at the server's own download route. Contents are lost on
// restart.
type MemoryStore struct {
	urlBase  string
	maxBytes int64

	mu    sync.RWMutex
	files map[string]*memFile
	used  int64
}

type memFile struct {
	file File
	data []byte
}

// NewMemoryStore creates an empty store. URLs are urlBase followed by the
// escaped key. maxBytes caps the total content; 0 means no cap.
func NewMemoryStore(urlBase string, maxBytes int64) *MemoryStore {
	return &MemoryStore{
		urlBase:  urlBase,
		maxBytes: maxBytes,
		files:    make(map[string]*memFile),
	}
}

func (m *MemoryStore) Ping(context.Context) error    { return nil }
func (m *MemoryStore) Close() error                  { return nil }
func (m *MemoryStore) Prepare(context.Context) error { return nil }

func (m *MemoryStore) Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) (*File, error) {
	if err := CheckKey(key); err != nil {
		return nil, err
	}
	if size >= 0 {
		r = io.LimitReader(r, size)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to read upload", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindTimeout, "upload cancelled", err)
	}

	sum := md5.Sum(data)
	f := &memFile{
		file: File{
			Key:          key,
			Size:         int64(len(data)),
			ContentType:  contentType,
			ETag:         hex.EncodeToString(sum[:]),
			LastModified: time.Now().UTC(),
		},
		data: data,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	grow := f.file.Size
	if prev, ok := m.files[key]; ok {
		grow -= prev.file.Size
	}
	if m.maxBytes > 0 && m.used+grow > m.maxBytes {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "export store is full (%d byte limit)", m.maxBytes)
	}
	m.files[key] = f
	m.used += grow

	saved := f.file
	return &saved, nil
}

func (m *MemoryStore) List(_ context.Context, after string, limit int) ([]File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.files))
	for k := range m.files {
		if k > after {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	out := make([]File, len(keys))
	for i, k := range keys {
		out[i] = m.files[k].file
	}
	return out, nil
}

func (m *MemoryStore) Open(_ context.Context, key string) (Download, error) {
	f, err := m.lookup(key)
	if err != nil {
		return nil, err
	}
	file := f.file
	return &memDownload{Reader: bytes.NewReader(f.data), file: &file}, nil
}

func (m *MemoryStore) Stat(_ context.Context, key string) (*File, error) {
	f, err := m.lookup(key)
	if err != nil {
		return nil, err
	}
	file := f.file
	return &file, nil
}

// URL ignores ttl: memory exports live until restart.
func (m *MemoryStore) URL(_ context.Context, key string, _ time.Duration) (string, error) {
	if _, err := m.lookup(key); err != nil {
		return "", err
	}
	return m.urlBase + escapeKey(key), nil
}

func (m *MemoryStore) lookup(key string) (*memFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[key]
	if !ok {
		return nil, errs.Newf(errs.ErrKindNotFound, "export '%s' not found", key)
	}
	return f, nil
}

// escapeKey escapes each segment of key and keeps the slashes.
func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

type memDownload struct {
	*bytes.Reader
	file *File
}

func (d *memDownload) Close() error { return nil }
func (d *memDownload) File() *File  { return d.file }

var _ Store = (*MemoryStore)(nil)
