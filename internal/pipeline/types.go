// Package pipeline defines core types shared across subsystems.
package pipeline

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"
)

// Digest is the SHA-384 hash of a blob's exact bytes, hex encoded.
// It is the primary archival key for the blob store.
type Digest string

// DigestHexLen is the length of a hex-encoded SHA-384 digest.
const DigestHexLen = sha512.Size384 * 2

// Valid reports whether d is a well-formed hex SHA-384 digest.
func (d Digest) Valid() bool {
	if len(d) != DigestHexLen {
		return false
	}
	_, err := hex.DecodeString(string(d))
	return err == nil
}

// String implements fmt.Stringer.
func (d Digest) String() string { return string(d) }

// BlobKey returns the object-store key for this digest.
func (d Digest) BlobKey() string {
	return fmt.Sprintf("file-by-sha384/%s", string(d))
}

// BlobRef ties a digest to the storage URL holding its bytes.
// Created at most once per unique digest across all runs.
type BlobRef struct {
	Digest     Digest `json:"digest"`
	StorageURL string `json:"storage_url"`
	Size       int64  `json:"size"`
}

// LastDownloadInfo is the per-origin-URL record consulted by the
// conditional cache. Overwritten on each successful re-fetch.
type LastDownloadInfo struct {
	OriginURL  string      `json:"origin_url"`
	Digest     Digest      `json:"digest"`
	StorageURL string      `json:"storage_url"`
	Headers    http.Header `json:"headers"`
	FetchedAt  time.Time   `json:"fetched_at"`
	DownloadID string      `json:"download_id"`
}

// ETag returns the recorded ETag response header, if any.
func (i LastDownloadInfo) ETag() string {
	return i.Headers.Get("Etag")
}

// LastModified returns the recorded Last-Modified response header, if any.
func (i LastDownloadInfo) LastModified() string {
	return i.Headers.Get("Last-Modified")
}

// Download binds an origin URL to a blob plus the serve-from policy and
// the response metadata observed at fetch time. Registered once per
// (origin URL, digest) pair.
type Download struct {
	ID              string      `json:"id"`
	OriginURL       string      `json:"origin_url"`
	Digest          Digest      `json:"digest"`
	StorageURL      string      `json:"storage_url"`
	MIMEType        string      `json:"mime_type"`
	Encoding        string      `json:"encoding,omitempty"`
	ServeFromOrigin bool        `json:"serve_from_origin"`
	Filename        string      `json:"filename,omitempty"`
	Headers         http.Header `json:"headers"`
	CreatedAt       time.Time   `json:"created_at"`
}

// Document is an extracted-text artifact produced by the extraction
// engine from a download. Zero or more per download.
type Document struct {
	ID         string `json:"id"`
	DownloadID string `json:"download_id"`
	Text       string `json:"text"`
	PageCount  int    `json:"page_count"`
	Language   string `json:"language,omitempty"`
}

// File is what the conditional cache hands back to extractors: the
// fetched (or archived) bytes on disk plus provenance.
type File struct {
	// Path of the temporary file holding the body. The caller owns it.
	Path string
	// FinalURL is the URL after redirects; equals the origin URL on a
	// cache hit.
	FinalURL string
	// Digest of the file bytes.
	Digest Digest
	// StorageURL of the archived blob.
	StorageURL string
	// Headers observed at original fetch time.
	Headers http.Header
	// MIMEType and Encoding parsed from Content-Type.
	MIMEType string
	Encoding string
	// DownloadID of the prior registration, set only on cache hits.
	DownloadID string
	// Cached is true when the bytes were served from the archive.
	Cached bool
	// Size in bytes.
	Size int64
}

// ScraperKind tags an extractor with the class of records it emits.
type ScraperKind string

// Extractor type tags.
const (
	KindBills    ScraperKind = "bills"
	KindNotices  ScraperKind = "notices"
	KindGazettes ScraperKind = "gazettes"
	KindMetadata ScraperKind = "metadata"
)

// ExtractorInfo is the constant metadata every extractor declares.
type ExtractorInfo struct {
	Name        string
	Kind        ScraperKind
	CountryCode string
	Group       string
	Chamber     string
	// Languages is the jurisdiction's official language list, used as
	// the default for localized date parsing.
	Languages []string
	// SchemaPath points at the JSON Schema records must satisfy.
	SchemaPath string
	// Args declares the CLI arguments the extractor accepts.
	Args []ArgSpec
}

// ArgSpec declares one named CLI argument for an extractor.
type ArgSpec struct {
	Name     string
	Usage    string
	Default  string
	Required bool
}

// Args is the parsed argument set injected into Scrape.
type Args map[string]string

// Get returns the argument value or the empty string.
func (a Args) Get(name string) string { return a[name] }
