// Package gcs provides a content-addressed BlobStore backed by Google
// Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"

	"github.com/civicarchive/lexharvest/internal/digest"
	"github.com/civicarchive/lexharvest/internal/pipeline"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
}

// BlobStore archives blobs in a GCS bucket keyed by SHA-384 digest.
type BlobStore struct {
	client *storage.Client
	bucket string
	retry  pipeline.RetryPolicy
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config, retry pipeline.RetryPolicy) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if retry == nil {
		retry = pipeline.NewExponentialRetryPolicy()
	}
	return &BlobStore{client: client, bucket: cfg.Bucket, retry: retry}, nil
}

// Store hashes src in a single streaming pass, then uploads unless an
// object with that digest already exists. The upload target key is
// derived from the digest, so the bytes are spooled to a scratch file
// first; the blob is never registered downstream before the store
// confirms durability.
func (s *BlobStore) Store(ctx context.Context, src io.Reader, contentType, contentDisposition string) (pipeline.BlobRef, error) {
	scratch, err := os.CreateTemp("", "lexharvest-blob-*")
	if err != nil {
		return pipeline.BlobRef{}, fmt.Errorf("create scratch file: %w", err)
	}
	defer func() {
		scratch.Close()
		os.Remove(scratch.Name())
	}()

	d, size, err := digest.Copy(scratch, src)
	if err != nil {
		return pipeline.BlobRef{}, fmt.Errorf("spool blob: %w", err)
	}

	ref := pipeline.BlobRef{
		Digest:     d,
		StorageURL: s.url(d),
		Size:       size,
	}

	exists, err := s.Exists(ctx, d)
	if err != nil {
		return pipeline.BlobRef{}, err
	}
	if exists {
		return ref, nil
	}

	err = pipeline.Retry(ctx, s.retry, func(ctx context.Context) error {
		if _, err := scratch.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewind scratch file: %w", err)
		}
		writer := s.client.Bucket(s.bucket).Object(d.BlobKey()).NewWriter(ctx)
		if contentType != "" {
			writer.ContentType = contentType
		}
		if contentDisposition != "" {
			writer.ContentDisposition = contentDisposition
		}
		if _, err := io.Copy(writer, scratch); err != nil {
			closeErr := writer.Close()
			if closeErr != nil {
				return fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
			}
			return fmt.Errorf("copy object: %w", err)
		}
		if err := writer.Close(); err != nil {
			return fmt.Errorf("close writer: %w", err)
		}
		return nil
	})
	if err != nil {
		return pipeline.BlobRef{}, err
	}
	return ref, nil
}

// Fetch streams the archived bytes for digest into sink.
func (s *BlobStore) Fetch(ctx context.Context, d pipeline.Digest, sink io.Writer) error {
	return fetchInto(ctx, s.retry, sink, func(ctx context.Context) (io.ReadCloser, error) {
		reader, err := s.client.Bucket(s.bucket).Object(d.BlobKey()).NewReader(ctx)
		if err != nil {
			if errors.Is(err, storage.ErrObjectNotExist) {
				return nil, fmt.Errorf("%w: %s", pipeline.ErrMissingBlob, d)
			}
			return nil, fmt.Errorf("open object reader: %w", err)
		}
		return reader, nil
	})
}

// fetchInto retries the reader open only. sink cannot be rewound
// between attempts, so it is written in a single pass; a retried copy
// would append a second full object after a partial one.
func fetchInto(ctx context.Context, retry pipeline.RetryPolicy, sink io.Writer, open func(ctx context.Context) (io.ReadCloser, error)) error {
	var reader io.ReadCloser
	err := pipeline.Retry(ctx, retry, func(ctx context.Context) error {
		r, openErr := open(ctx)
		if openErr != nil {
			return openErr
		}
		reader = r
		return nil
	})
	if err != nil {
		return err
	}
	defer reader.Close()
	if _, err := io.Copy(sink, reader); err != nil {
		return fmt.Errorf("stream object: %w", err)
	}
	return nil
}

// Exists checks object metadata without reading the body.
func (s *BlobStore) Exists(ctx context.Context, d pipeline.Digest) (bool, error) {
	var found bool
	err := pipeline.Retry(ctx, s.retry, func(ctx context.Context) error {
		_, err := s.client.Bucket(s.bucket).Object(d.BlobKey()).Attrs(ctx)
		if errors.Is(err, storage.ErrObjectNotExist) {
			found = false
			return nil
		}
		if err != nil {
			return fmt.Errorf("object attrs: %w", err)
		}
		found = true
		return nil
	})
	return found, err
}

func (s *BlobStore) url(d pipeline.Digest) string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, d.BlobKey())
}
