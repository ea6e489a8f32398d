// Package memory stores blob content in-memory for tests and dry runs.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/civicarchive/lexharvest/internal/digest"
	"github.com/civicarchive/lexharvest/internal/pipeline"
)

// BlobStore keeps blobs in a map keyed by digest.
type BlobStore struct {
	mu     sync.RWMutex
	blobs  map[pipeline.Digest][]byte
	writes int
}

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[pipeline.Digest][]byte)}
}

// Store hashes src and keeps a copy unless the digest is present.
func (s *BlobStore) Store(_ context.Context, src io.Reader, _, _ string) (pipeline.BlobRef, error) {
	var buf bytes.Buffer
	d, size, err := digest.Copy(&buf, src)
	if err != nil {
		return pipeline.BlobRef{}, fmt.Errorf("read source: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[d]; !ok {
		s.blobs[d] = append([]byte(nil), buf.Bytes()...)
		s.writes++
	}
	return pipeline.BlobRef{
		Digest:     d,
		StorageURL: fmt.Sprintf("memory://%s", d.BlobKey()),
		Size:       size,
	}, nil
}

// Fetch copies the stored bytes into sink.
func (s *BlobStore) Fetch(_ context.Context, d pipeline.Digest, sink io.Writer) error {
	s.mu.RLock()
	data, ok := s.blobs[d]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", pipeline.ErrMissingBlob, d)
	}
	if _, err := sink.Write(data); err != nil {
		return fmt.Errorf("write to sink: %w", err)
	}
	return nil
}

// Exists reports whether the digest is stored.
func (s *BlobStore) Exists(_ context.Context, d pipeline.Digest) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[d]
	return ok, nil
}

// Writes returns the number of distinct uploads performed. Test hook.
func (s *BlobStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}
