// Package digest provides SHA-384 hashing utilities for blob keys.
package digest

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/civicarchive/lexharvest/internal/pipeline"
)

// Bytes hashes the input and returns a hex digest.
func Bytes(data []byte) pipeline.Digest {
	sum := sha512.Sum384(data)
	return pipeline.Digest(hex.EncodeToString(sum[:]))
}

// Copy streams src into dst while hashing, returning the digest and the
// number of bytes copied. A nil dst hashes without writing.
func Copy(dst io.Writer, src io.Reader) (pipeline.Digest, int64, error) {
	h := sha512.New384()
	var w io.Writer = h
	if dst != nil {
		w = io.MultiWriter(dst, h)
	}
	n, err := io.Copy(w, src)
	if err != nil {
		return "", n, fmt.Errorf("copy while hashing: %w", err)
	}
	return pipeline.Digest(hex.EncodeToString(h.Sum(nil))), n, nil
}

// File hashes the contents of the file at path.
func File(path string) (pipeline.Digest, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Copy(nil, f)
}
