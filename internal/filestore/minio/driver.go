// Package minio stores exports in MinIO or any S3-compatible service.
package minio

import (
	"context"
	"io"
	"strings"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/koustreak/pgstudio/internal/errs"
	"github.com/koustreak/pgstudio/internal/filestore"
)

// Driver keeps exports under one bucket and prefix. It is safe for
// concurrent use.
type Driver struct {
	client *miniogo.Client
	bucket string
	prefix string
	region string
}

// New connects to the endpoint of cfg and checks the credentials with a
// bucket lookup.
func New(ctx context.Context, cfg *filestore.Config) (*Driver, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to create minio client", err)
	}

	d := &Driver{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		region: cfg.Region,
	}
	if err := d.Ping(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Driver) object(key string) string { return d.prefix + key }

// Ping looks up the export bucket. A missing bucket is fine; Prepare
// creates it.
func (d *Driver) Ping(ctx context.Context) error {
	if _, err := d.client.BucketExists(ctx, d.bucket); err != nil {
		return mapError(err, "cannot reach export store at "+d.client.EndpointURL().Host)
	}
	return nil
}

// Close is a no-op; the SDK holds no persistent connections.
func (d *Driver) Close() error { return nil }

func (d *Driver) Prepare(ctx context.Context) error {
	exists, err := d.client.BucketExists(ctx, d.bucket)
	if err != nil {
		return mapError(err, "failed to check export bucket")
	}
	if exists {
		return nil
	}
	err = d.client.MakeBucket(ctx, d.bucket, miniogo.MakeBucketOptions{Region: d.region})
	if err != nil {
		// another instance may have created it meanwhile
		if resp := miniogo.ToErrorResponse(err); resp.Code == "BucketAlreadyOwnedByYou" {
			return nil
		}
		return mapError(err, "failed to create export bucket '"+d.bucket+"'")
	}
	return nil
}

func (d *Driver) Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) (*filestore.File, error) {
	if err := filestore.CheckKey(key); err != nil {
		return nil, err
	}
	up, err := d.client.PutObject(ctx, d.bucket, d.object(key), r, size, miniogo.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, mapError(err, "failed to upload export")
	}
	return &filestore.File{
		Key:          key,
		Size:         up.Size,
		ContentType:  contentType,
		ETag:         up.ETag,
		LastModified: up.LastModified,
	}, nil
}

func (d *Driver) List(ctx context.Context, after string, limit int) ([]filestore.File, error) {
	opts := miniogo.ListObjectsOptions{Prefix: d.prefix, Recursive: true}
	if after != "" {
		opts.StartAfter = d.object(after)
	}

	// cancelling stops the SDK's listing goroutine when we stop early
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	files := make([]filestore.File, 0)
	for obj := range d.client.ListObjects(ctx, d.bucket, opts) {
		if obj.Err != nil {
			return nil, mapError(obj.Err, "failed to list exports")
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		files = append(files, d.file(obj))
		if limit > 0 && len(files) >= limit {
			break
		}
	}
	return files, nil
}

func (d *Driver) Open(ctx context.Context, key string) (filestore.Download, error) {
	if err := filestore.CheckKey(key); err != nil {
		return nil, err
	}
	obj, err := d.client.GetObject(ctx, d.bucket, d.object(key), miniogo.GetObjectOptions{})
	if err != nil {
		return nil, mapError(err, "failed to open export")
	}
	// GetObject is lazy; Stat surfaces a missing key before streaming starts
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, mapError(err, "failed to open export '"+key+"'")
	}
	return &download{ReadCloser: obj, file: d.file(info)}, nil
}

func (d *Driver) Stat(ctx context.Context, key string) (*filestore.File, error) {
	if err := filestore.CheckKey(key); err != nil {
		return nil, err
	}
	info, err := d.client.StatObject(ctx, d.bucket, d.object(key), miniogo.StatObjectOptions{})
	if err != nil {
		return nil, mapError(err, "failed to stat export '"+key+"'")
	}
	f := d.file(info)
	return &f, nil
}

// URL presigns a GET for key.
func (d *Driver) URL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := d.client.PresignedGetObject(ctx, d.bucket, d.object(key), ttl, nil)
	if err != nil {
		return "", mapError(err, "failed to presign export URL")
	}
	return u.String(), nil
}

func (d *Driver) file(info miniogo.ObjectInfo) filestore.File {
	return filestore.File{
		Key:          strings.TrimPrefix(info.Key, d.prefix),
		Size:         info.Size,
		ContentType:  info.ContentType,
		ETag:         info.ETag,
		LastModified: info.LastModified,
	}
}

type download struct {
	io.ReadCloser
	file filestore.File
}

func (d *download) File() *filestore.File { return &d.file }

var _ filestore.Store = (*Driver)(nil)
