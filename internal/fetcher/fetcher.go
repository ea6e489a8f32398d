// Package fetcher implements the streaming HTTP layer every extractor
// drives through. Bodies are spooled to disk, never buffered whole in
// memory, and a configurable size ceiling applies.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/civicarchive/lexharvest/internal/metrics"
	"github.com/civicarchive/lexharvest/internal/pipeline"
)

// DefaultMaxBodySize is the download ceiling applied when the config
// does not override it (200 MiB).
const DefaultMaxBodySize = 200 << 20

const defaultUserAgent = "lexharvest/1.0 (+https://github.com/civicarchive/lexharvest)"

// Config controls client behavior.
type Config struct {
	UserAgent string
	// Timeout bounds the wait for response headers. The body stream is
	// not capped by it; a large download on a slow source only has to
	// finish within RetryMaxElapse.
	Timeout        time.Duration
	MaxBodySize    int64
	RetryCount     int
	RetryWait      time.Duration
	RetryMaxWait   time.Duration
	RetryMaxElapse time.Duration
}

// RequestArgs carries the per-request knobs callers may set. Header
// values override the defaults field-by-field.
type RequestArgs struct {
	Headers  http.Header
	Query    map[string]string
	FormData map[string]string
	Body     []byte
}

// Response is the result of one fetch. Body is an open stream the
// caller must close; for HEAD requests it is nil.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       io.ReadCloser
	FinalURL   string
	MIMEType   string
	Encoding   string
}

// Close releases the underlying body stream.
func (r *Response) Close() error {
	if r.Body == nil {
		return nil
	}
	return r.Body.Close()
}

// Fetcher issues GET/POST/HEAD requests with bounded retries.
type Fetcher struct {
	client *resty.Client
	cfg    Config
	logger *zap.Logger
}

// New builds a Fetcher. The retry policy covers connection errors and
// HTTP 5xx with bounded attempts, bounded per-attempt delay, and a
// bounded total budget enforced via the request context.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.RetryCount == 0 {
		cfg.RetryCount = 3
	}
	if cfg.RetryWait == 0 {
		cfg.RetryWait = 500 * time.Millisecond
	}
	if cfg.RetryMaxWait == 0 {
		cfg.RetryMaxWait = 10 * time.Second
	}
	if cfg.RetryMaxElapse == 0 {
		cfg.RetryMaxElapse = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// Timeout goes on the transport, not the client. http.Client.Timeout
	// would cut off the body read, and a near-ceiling download takes
	// longer than any sane header timeout.
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.Timeout

	client := resty.New().
		SetTransport(transport).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(cfg.RetryMaxWait).
		SetDoNotParseResponse(true).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "*/*").
		SetHeader("Accept-Language", "en").
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled)
			}
			return resp.StatusCode() >= http.StatusInternalServerError
		}).
		AddRetryHook(func(resp *resty.Response, err error) {
			logger.Debug("retrying request",
				zap.String("url", resp.Request.URL),
				zap.Error(err),
			)
		})

	return &Fetcher{client: client, cfg: cfg, logger: logger}
}

// Get issues a GET request. The response body streams.
func (f *Fetcher) Get(ctx context.Context, url string, args RequestArgs) (*Response, error) {
	return f.do(ctx, http.MethodGet, url, args)
}

// Post issues a POST request. The response body streams.
func (f *Fetcher) Post(ctx context.Context, url string, args RequestArgs) (*Response, error) {
	return f.do(ctx, http.MethodPost, url, args)
}

// Head issues a HEAD request for pre-flight MIME and size inspection.
func (f *Fetcher) Head(ctx context.Context, url string, args RequestArgs) (*Response, error) {
	resp, err := f.do(ctx, http.MethodHead, url, args)
	if err != nil {
		return nil, err
	}
	// HEAD bodies are empty; release the connection eagerly.
	_ = resp.Close()
	resp.Body = nil
	return resp, nil
}

// MaxBodySize returns the configured download ceiling.
func (f *Fetcher) MaxBodySize() int64 {
	return f.cfg.MaxBodySize
}

func (f *Fetcher) do(ctx context.Context, method, url string, args RequestArgs) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.RetryMaxElapse)
	req := f.client.R().SetContext(ctx)
	for key, values := range args.Headers {
		req.SetHeader(key, strings.Join(values, ", "))
	}
	if len(args.Query) > 0 {
		req.SetQueryParams(args.Query)
	}
	if len(args.FormData) > 0 {
		req.SetFormData(args.FormData)
	}
	if args.Body != nil {
		req.SetBody(args.Body)
	}

	resp, err := req.Execute(method, url)
	if err != nil {
		cancel()
		metrics.RequestsTotal.WithLabelValues(method, "error").Inc()
		return nil, &pipeline.RequestError{URL: url, Method: method, Err: err}
	}
	metrics.RequestsTotal.WithLabelValues(method, fmt.Sprintf("%d", resp.StatusCode())).Inc()

	rawBody := resp.RawBody()
	if rawBody == nil {
		rawBody = io.NopCloser(strings.NewReader(""))
	}

	mimeType, encoding := parseContentType(resp.Header().Get("Content-Type"))
	out := &Response{
		StatusCode: resp.StatusCode(),
		Headers:    resp.Header(),
		FinalURL:   resp.RawResponse.Request.URL.String(),
		MIMEType:   mimeType,
		Encoding:   encoding,
	}
	if method == http.MethodHead {
		out.Body = cancelOnClose{ReadCloser: rawBody, cancel: cancel}
		return out, nil
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		_ = rawBody.Close()
		cancel()
		return nil, &pipeline.RequestError{
			URL:    url,
			Method: method,
			Status: resp.StatusCode(),
			Err:    fmt.Errorf("unexpected status %s", resp.Status()),
		}
	}
	out.Body = cancelOnClose{ReadCloser: rawBody, cancel: cancel}
	return out, nil
}

// DownloadToFile streams the response body into a temporary file while
// enforcing the size ceiling. The caller owns the returned path. On
// failure the partial file is discarded.
func (f *Fetcher) DownloadToFile(resp *Response, dir string) (path string, size int64, err error) {
	defer resp.Close()

	// Fail fast when the server declares an oversize body.
	if declared := resp.Headers.Get("Content-Length"); declared != "" {
		if length, parseErr := strconv.ParseInt(declared, 10, 64); parseErr == nil && length > f.cfg.MaxBodySize {
			metrics.OversizeDownloadsTotal.Inc()
			return "", 0, fmt.Errorf("%w: declared %d bytes, ceiling %d", pipeline.ErrFileTooLarge, length, f.cfg.MaxBodySize)
		}
	}

	tmp, err := os.CreateTemp(dir, "lexharvest-fetch-*")
	if err != nil {
		return "", 0, fmt.Errorf("create download file: %w", err)
	}
	path = tmp.Name()
	defer func() {
		closeErr := tmp.Close()
		if err == nil && closeErr != nil {
			err = fmt.Errorf("close download file: %w", closeErr)
		}
		if err != nil {
			os.Remove(path)
			path = ""
		}
	}()

	limited := io.LimitReader(resp.Body, f.cfg.MaxBodySize+1)
	size, err = io.Copy(tmp, limited)
	if err != nil {
		return "", size, fmt.Errorf("stream body: %w", err)
	}
	if size > f.cfg.MaxBodySize {
		metrics.OversizeDownloadsTotal.Inc()
		return "", size, fmt.Errorf("%w: ceiling %d bytes", pipeline.ErrFileTooLarge, f.cfg.MaxBodySize)
	}
	return path, size, nil
}

func parseContentType(header string) (mimeType, encoding string) {
	if header == "" {
		return "", ""
	}
	mediaType, params, err := mime.ParseMediaType(header)
	if err != nil {
		return "", ""
	}
	return mediaType, params["charset"]
}

// cancelOnClose ties the retry-budget context to the body lifetime.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
