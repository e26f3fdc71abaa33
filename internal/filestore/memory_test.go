package filestore

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/koustreak/pgstudio/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func save(t *testing.T, s *MemoryStore, key, body string) *File {
	t.Helper()
	f, err := s.Save(context.Background(), key, strings.NewReader(body), int64(len(body)), "text/csv")
	require.NoError(t, err)
	return f
}

func TestMemoryStore_SaveOpen(t *testing.T) {
	s := NewMemoryStore("/api/exports/", 0)
	ctx := context.Background()

	f := save(t, s, "2024/03/09/stock.csv", "id,symbol\n1,MSFT\n")
	assert.Equal(t, int64(17), f.Size)
	assert.Equal(t, "text/csv", f.ContentType)
	assert.Len(t, f.ETag, 32)

	dl, err := s.Open(ctx, "2024/03/09/stock.csv")
	require.NoError(t, err)
	defer dl.Close()

	body, err := io.ReadAll(dl)
	require.NoError(t, err)
	assert.Equal(t, "id,symbol\n1,MSFT\n", string(body))
	assert.Equal(t, "2024/03/09/stock.csv", dl.File().Key)

	stat, err := s.Stat(ctx, "2024/03/09/stock.csv")
	require.NoError(t, err)
	assert.Equal(t, f.ETag, stat.ETag)
}

func TestMemoryStore_Missing(t *testing.T) {
	s := NewMemoryStore("/api/exports/", 0)
	ctx := context.Background()

	_, err := s.Open(ctx, "nope.csv")
	assert.True(t, errs.IsNotFound(err))

	_, err = s.URL(ctx, "nope.csv", time.Minute)
	assert.True(t, errs.IsNotFound(err))
}

func TestMemoryStore_SizeCap(t *testing.T) {
	s := NewMemoryStore("", 10)

	save(t, s, "a.csv", "12345")
	_, err := s.Save(context.Background(), "b.csv", strings.NewReader("123456"), 6, "text/csv")
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))

	// overwriting reuses the old file's share of the cap
	save(t, s, "a.csv", "1234567890")
}

func TestMemoryStore_List(t *testing.T) {
	s := NewMemoryStore("", 0)
	ctx := context.Background()
	save(t, s, "2024/01/02/b.csv", "b")
	save(t, s, "2024/01/02/a.csv", "a")
	save(t, s, "top.json", "{}")

	all, err := s.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "2024/01/02/a.csv", all[0].Key)
	assert.Equal(t, "top.json", all[2].Key)

	page, err := s.List(ctx, "2024/01/02/a.csv", 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "2024/01/02/b.csv", page[0].Key)
}

func TestMemoryStore_URL(t *testing.T) {
	s := NewMemoryStore("/api/exports/", 0)
	save(t, s, "2024/my report.csv", "x")

	u, err := s.URL(context.Background(), "2024/my report.csv", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "/api/exports/2024/my%20report.csv", u)
}

func TestCheckKey(t *testing.T) {
	for _, key := range []string{"a.csv", "2024/03/09/x-stock.csv"} {
		assert.NoError(t, CheckKey(key), key)
	}
	for _, key := range []string{"", "/etc/passwd", "../secrets.csv", "a/../../b", "a//b", "dir/", "./a"} {
		assert.True(t, errs.IsInvalidInput(CheckKey(key)), key)
	}

	_, err := NewMemoryStore("", 0).Save(context.Background(), "../x", strings.NewReader("x"), 1, "text/csv")
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, (&Config{}).Validate(), "disabled config is valid")

	cfg := DefaultConfig("localhost:9000", "minioadmin", "minioadmin")
	assert.NoError(t, cfg.Validate())

	cfg.Endpoint = ""
	assert.True(t, errs.IsInvalidInput(cfg.Validate()))

	mem := &Config{Provider: ProviderMemory, Bucket: "b", URLExpiry: time.Minute}
	assert.NoError(t, mem.Validate())

	mem.URLExpiry = 0
	assert.Error(t, mem.Validate())

	bad := &Config{Provider: "s4", Bucket: "b", URLExpiry: time.Minute}
	assert.Contains(t, bad.Validate().Error(), "unsupported export provider")
}
