// Package memory provides an in-memory registry store for tests and
// dry runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/civicarchive/lexharvest/internal/pipeline"
)

type docKey struct {
	downloadID     string
	extractionType pipeline.ExtractionType
	argsKey        string
}

type originDigest struct {
	originURL string
	digest    pipeline.Digest
}

// Store keeps registry state in maps guarded by one mutex.
type Store struct {
	mu            sync.RWMutex
	downloads     map[string]pipeline.Download
	byOriginHash  map[originDigest]string
	lastDownloads map[string]pipeline.LastDownloadInfo
	documents     map[docKey][]pipeline.Document
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		downloads:     make(map[string]pipeline.Download),
		byOriginHash:  make(map[originDigest]string),
		lastDownloads: make(map[string]pipeline.LastDownloadInfo),
		documents:     make(map[docKey][]pipeline.Document),
	}
}

// UpsertDownload returns the prior row on an (origin, digest) conflict.
func (s *Store) UpsertDownload(_ context.Context, d pipeline.Download) (pipeline.Download, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := originDigest{originURL: d.OriginURL, digest: d.Digest}
	if existingID, ok := s.byOriginHash[key]; ok {
		return s.downloads[existingID], nil
	}
	s.downloads[d.ID] = d
	s.byOriginHash[key] = d.ID
	return d, nil
}

// GetDownload loads a download by ID.
func (s *Store) GetDownload(_ context.Context, id string) (pipeline.Download, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.downloads[id]
	if !ok {
		return pipeline.Download{}, fmt.Errorf("download %s not found", id)
	}
	return d, nil
}

// PutLastDownload overwrites the per-origin record.
func (s *Store) PutLastDownload(_ context.Context, info pipeline.LastDownloadInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastDownloads[info.OriginURL] = info
	return nil
}

// GetLastDownload returns pipeline.ErrNoDownload when absent.
func (s *Store) GetLastDownload(_ context.Context, originURL string) (pipeline.LastDownloadInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.lastDownloads[originURL]
	if !ok {
		return pipeline.LastDownloadInfo{}, fmt.Errorf("%w: %s", pipeline.ErrNoDownload, originURL)
	}
	return info, nil
}

// ListDocuments returns nil for an unregistered batch.
func (s *Store) ListDocuments(_ context.Context, downloadID string, extractionType pipeline.ExtractionType, argsKey string) ([]pipeline.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs, ok := s.documents[docKey{downloadID, extractionType, argsKey}]
	if !ok {
		return nil, nil
	}
	// A registered-but-empty batch must stay distinguishable from an
	// unregistered one, so the copy is never nil.
	out := make([]pipeline.Document, 0, len(docs))
	return append(out, docs...), nil
}

// InsertDocuments records an extraction batch, including empty ones.
func (s *Store) InsertDocuments(_ context.Context, downloadID string, extractionType pipeline.ExtractionType, argsKey string, docs []pipeline.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := docKey{downloadID, extractionType, argsKey}
	if _, ok := s.documents[key]; ok {
		return nil
	}
	stored := make([]pipeline.Document, 0, len(docs))
	s.documents[key] = append(stored, docs...)
	return nil
}
