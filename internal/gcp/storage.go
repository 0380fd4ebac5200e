package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// BlobStore reads and writes statement objects in one GCS bucket.
type BlobStore struct {
	bucket      *storage.BucketHandle
	name        string
	maxRetries  int
	backoff     time.Duration
	callTimeout time.Duration
}

// NewBlobStore returns a store over the named bucket.
func NewBlobStore(client *storage.Client, bucket string) *BlobStore {
	return &BlobStore{
		bucket:      client.Bucket(bucket),
		name:        bucket,
		maxRetries:  4,
		backoff:     1 * time.Second,
		callTimeout: 50 * time.Second,
	}
}

// URI returns the gs:// address of an object.
func (b *BlobStore) URI(key string) string {
	return fmt.Sprintf("gs://%s/%s", b.name, key)
}

// Put writes an object, overwriting any previous content. Transient failures
// are retried with exponential backoff.
func (b *BlobStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	backoff := b.backoff
	var lastErr error

	for i := 0; i < b.maxRetries; i++ {
		err := b.write(ctx, b.bucket.Object(key), data, contentType)
		if err == nil {
			return nil
		}

		lastErr = err
		slog.Warn(
			"Upload failed, will retry.",
			"gcsObject", key,
			"attempt", i+1,
			"maxRetries", b.maxRetries,
			"backoff", backoff.String(),
			"error", err,
		)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			slog.Error("Context cancelled during backoff. Aborting retries.", "gcsObject", key, "error", ctx.Err())
			return ctx.Err()
		}
	}
	slog.Error("Upload failed after all retries.", "gcsObject", key, "error", lastErr)
	return fmt.Errorf("upload for %s failed after all retries: %w", key, lastErr)
}

// PutIfAbsent writes an object only if it does not exist yet. It reports
// false without error when the object was already there.
func (b *BlobStore) PutIfAbsent(ctx context.Context, key string, data []byte, contentType string) (bool, error) {
	obj := b.bucket.Object(key).If(storage.Conditions{DoesNotExist: true})
	if err := b.write(ctx, obj, data, contentType); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
			slog.Info("Object already exists, reusing it.", "gcsObject", key)
			return false, nil
		}
		return false, fmt.Errorf("failed to write gs://%s/%s: %w", b.name, key, err)
	}
	return true, nil
}

// Get reads a whole object.
func (b *BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := b.bucket.Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", b.name, key, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", b.name, key, err)
	}
	return data, nil
}

func (b *BlobStore) write(ctx context.Context, obj *storage.ObjectHandle, data []byte, contentType string) error {
	writeCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	w := obj.NewWriter(writeCtx)
	w.ContentType = contentType
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return fmt.Errorf("io.Copy to GCS failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer (finalize upload): %w", err)
	}
	return nil
}
