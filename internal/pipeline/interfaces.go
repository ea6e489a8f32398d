package pipeline

import (
	"context"
	"io"
	"time"
)

// BlobStore archives blobs keyed by their SHA-384 digest.
type BlobStore interface {
	// Store streams src into the store, computing the digest along the
	// way. Uploading bytes whose digest already exists is a no-op.
	Store(ctx context.Context, src io.Reader, contentType, contentDisposition string) (BlobRef, error)
	// Fetch streams the archived bytes for digest into sink. Returns
	// ErrMissingBlob when absent.
	Fetch(ctx context.Context, digest Digest, sink io.Writer) error
	// Exists reports whether the digest is already archived. This is a
	// metadata query, never a full object read.
	Exists(ctx context.Context, digest Digest) (bool, error)
}

// Registry is the arbiter of the download and document identity spaces.
type Registry interface {
	RegisterDownload(ctx context.Context, req RegisterDownloadRequest) (Download, error)
	RegisterDocuments(ctx context.Context, downloadID string, extractionType ExtractionType, args map[string]string) ([]Document, error)
	LastDownloadInfo(ctx context.Context, originURL string) (LastDownloadInfo, error)
}

// RegisterDownloadRequest carries everything the registry records for a
// fetched binary. ServeFromOrigin nil means "apply the MIME default".
type RegisterDownloadRequest struct {
	OriginURL       string
	Digest          Digest
	StorageURL      string
	ServeFromOrigin *bool
	Filename        string
	MIMEType        string
	Encoding        string
	Headers         map[string][]string
	FetchedAt       time.Time
}

// Publisher commits validated records to the durable outbound queue.
type Publisher interface {
	// Publish writes the canonical encoding of payload and returns the
	// queue acknowledgment ID. digest may be empty; when set the queue
	// deduplicates server-side.
	Publish(ctx context.Context, payload []byte, digest string) (string, error)
	Close() error
}

// ExtractionEngine turns archived binaries into documents. External
// collaborator; the registry drives it.
type ExtractionEngine interface {
	Extract(ctx context.Context, req ExtractRequest) ([]ExtractedDocument, error)
}

// ExtractRequest is the typed request handed to the extraction engine.
type ExtractRequest struct {
	Digest         Digest            `json:"digest"`
	StorageURL     string            `json:"storage_url"`
	ExtractionType ExtractionType    `json:"extraction_type"`
	Args           map[string]string `json:"args,omitempty"`
}

// ExtractedDocument is one engine result prior to ID assignment.
type ExtractedDocument struct {
	Text      string `json:"text"`
	PageCount int    `json:"page_count"`
	Language  string `json:"language,omitempty"`
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock with time.Now in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// IDGenerator produces download and document IDs.
type IDGenerator interface {
	NewID() (string, error)
}
