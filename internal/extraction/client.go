// Package extraction provides the client for the external
// content-extraction engine. The engine turns archived binaries into
// searchable text; the pipeline only hands it a typed request and
// consumes the response.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/civicarchive/lexharvest/internal/pipeline"
)

// Config controls the HTTP client for the engine.
type Config struct {
	// Endpoint is the engine's extract URL.
	Endpoint string
	Timeout  time.Duration
}

// Client implements pipeline.ExtractionEngine over HTTP.
type Client struct {
	endpoint string
	http     *http.Client
	retry    pipeline.RetryPolicy
	logger   *zap.Logger
}

// New builds a Client.
func New(cfg Config, retry pipeline.RetryPolicy, logger *zap.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("extraction endpoint is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if retry == nil {
		retry = pipeline.NewExponentialRetryPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoint: cfg.Endpoint,
		http:     &http.Client{Timeout: cfg.Timeout},
		retry:    retry,
		logger:   logger,
	}, nil
}

type extractResponse struct {
	Documents []pipeline.ExtractedDocument `json:"documents"`
}

// Extract POSTs the request to the engine and decodes its documents.
func (c *Client) Extract(ctx context.Context, req pipeline.ExtractRequest) ([]pipeline.ExtractedDocument, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal extract request: %w", err)
	}

	var docs []pipeline.ExtractedDocument
	err = pipeline.Retry(ctx, c.retry, func(ctx context.Context) error {
		httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
		if reqErr != nil {
			return fmt.Errorf("build extract request: %w", reqErr)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, doErr := c.http.Do(httpReq)
		if doErr != nil {
			return fmt.Errorf("call extraction engine: %w", doErr)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return fmt.Errorf("extraction engine returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
		}

		var decoded extractResponse
		if decErr := json.NewDecoder(resp.Body).Decode(&decoded); decErr != nil {
			return fmt.Errorf("decode extraction response: %w", decErr)
		}
		docs = decoded.Documents
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("extraction engine returned documents",
		zap.String("digest", req.Digest.String()),
		zap.String("extraction_type", string(req.ExtractionType)),
		zap.Int("documents", len(docs)),
	)
	return docs, nil
}
