// Package s3 implements store.Store over an S3-compatible bucket, for
// deployments where receive/send directories are backed by object storage
// rather than local disk.
//
// S3 has no true random-access append: Writer in append mode downloads the
// existing object, concatenates the new bytes in memory, and re-uploads
// the whole object on Close. This is adequate for PeSIT's sync-point sizes
// (spec recommends interval_kb in the hundreds of KB to low MB) but is not
// intended for very large single-entity transfers; large transfers should
// use the local backend.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/nexfin/pesitd/pkg/store"
)

// Store is an S3-backed store.Store. Paths are used directly as object keys
// (after an optional prefix).
type Store struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
}

// Config configures a Store.
type Config struct {
	Client    *s3.Client
	Bucket    string
	KeyPrefix string
}

// New creates an S3-backed store. It does not verify bucket access; callers
// that want a fail-fast startup check should call Store.Ping.
func New(cfg Config) (*Store, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("s3: client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}
	return &Store{client: cfg.Client, bucket: cfg.Bucket, keyPrefix: cfg.KeyPrefix}, nil
}

// Ping verifies the configured bucket is reachable.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("s3: access bucket %q: %w", s.bucket, err)
	}
	return nil
}

func (s *Store) key(path string) string {
	if s.keyPrefix == "" {
		return path
	}
	return s.keyPrefix + path
}

func mapAWSError(err error) error {
	if err == nil {
		return nil
	}
	var nsk *types.NoSuchKey
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsk) || errors.As(err, &nsb) {
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	}
	return err
}

// Writer buffers the full object in memory and uploads it on Close. In
// append mode, the existing object (if any) is downloaded first and the new
// bytes are appended before re-upload.
func (s *Store) Writer(ctx context.Context, path string, appendMode bool) (io.WriteCloser, error) {
	w := &objectWriter{ctx: ctx, store: s, key: s.key(path)}
	if appendMode {
		existing, err := s.getObject(ctx, w.key)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		w.buf.Write(existing)
	}
	return w, nil
}

type objectWriter struct {
	ctx   context.Context
	store *Store
	key   string
	buf   bytes.Buffer
}

func (w *objectWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *objectWriter) Close() error {
	_, err := w.store.client.PutObject(w.ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.store.bucket),
		Key:    aws.String(w.key),
		Body:   bytes.NewReader(w.buf.Bytes()),
	})
	if err != nil {
		return fmt.Errorf("s3: put object %q: %w", w.key, err)
	}
	return nil
}

func (s *Store) getObject(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapAWSError(err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *Store) Reader(ctx context.Context, path string, offset int64) (io.ReadCloser, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	}
	if offset > 0 {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-", offset))
	}
	out, err := s.client.GetObject(ctx, input)
	if err != nil {
		return nil, mapAWSError(err)
	}
	return out.Body, nil
}

func (s *Store) Size(ctx context.Context, path string) (int64, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		return 0, mapAWSError(err)
	}
	if out.ContentLength == nil {
		return 0, nil
	}
	return *out.ContentLength, nil
}

func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err == nil {
		return true, nil
	}
	mapped := mapAWSError(err)
	if errors.Is(mapped, store.ErrNotFound) {
		return false, nil
	}
	return false, mapped
}

func (s *Store) IsReadable(ctx context.Context, path string) (bool, error) {
	return s.Exists(ctx, path)
}

// MkdirAll is a no-op: S3 has no directories, only key prefixes.
func (s *Store) MkdirAll(_ context.Context, _ string) error { return nil }

func (s *Store) Delete(ctx context.Context, path string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		return fmt.Errorf("s3: delete object %q: %w", path, err)
	}
	return nil
}

var _ store.Store = (*Store)(nil)
