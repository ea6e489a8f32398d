// Package local implements a content-addressed blob store on the local
// filesystem, for development and single-host runs.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/civicarchive/lexharvest/internal/digest"
	"github.com/civicarchive/lexharvest/internal/pipeline"
)

// Config captures the parameters for the local filesystem blob store.
type Config struct {
	// BaseDir is the root directory where blobs will be stored.
	BaseDir string `mapstructure:"base_dir"`
}

// BlobStore writes blobs under BaseDir keyed by SHA-384 digest.
type BlobStore struct {
	baseDir string
}

// New creates a new local filesystem-backed blob store.
func New(cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if err := os.MkdirAll(cfg.BaseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}
	return &BlobStore{baseDir: cfg.BaseDir}, nil
}

// Store hashes src while spooling, then moves the spool into place
// unless the digest already exists. The rename makes the write atomic;
// partial spools never become visible.
func (s *BlobStore) Store(ctx context.Context, src io.Reader, _, _ string) (pipeline.BlobRef, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.BlobRef{}, err
	}
	spool, err := os.CreateTemp(s.baseDir, "spool-*")
	if err != nil {
		return pipeline.BlobRef{}, fmt.Errorf("create spool file: %w", err)
	}
	spoolPath := spool.Name()
	defer os.Remove(spoolPath)

	d, size, err := digest.Copy(spool, src)
	if closeErr := spool.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close spool file: %w", closeErr)
	}
	if err != nil {
		return pipeline.BlobRef{}, err
	}

	path := s.path(d)
	ref := pipeline.BlobRef{Digest: d, StorageURL: "file://" + path, Size: size}

	if _, err := os.Stat(path); err == nil {
		return ref, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return pipeline.BlobRef{}, fmt.Errorf("create blob directory: %w", err)
	}
	if err := os.Rename(spoolPath, path); err != nil {
		return pipeline.BlobRef{}, fmt.Errorf("finalize blob: %w", err)
	}
	return ref, nil
}

// Fetch streams the archived bytes for digest into sink.
func (s *BlobStore) Fetch(ctx context.Context, d pipeline.Digest, sink io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.Open(s.path(d))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", pipeline.ErrMissingBlob, d)
		}
		return fmt.Errorf("open blob: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(sink, f); err != nil {
		return fmt.Errorf("stream blob: %w", err)
	}
	return nil
}

// Exists checks for the blob file without reading it.
func (s *BlobStore) Exists(_ context.Context, d pipeline.Digest) (bool, error) {
	_, err := os.Stat(s.path(d))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat blob: %w", err)
}

func (s *BlobStore) path(d pipeline.Digest) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(d.BlobKey()))
}
