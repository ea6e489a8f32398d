package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/civicarchive/lexharvest/internal/pipeline"
)

func testRetry() pipeline.RetryPolicy {
	return pipeline.NewRetryPolicy(3, time.Millisecond, 5*time.Millisecond, time.Second)
}

func TestFetchIntoWritesSinkOnceAcrossRetries(t *testing.T) {
	t.Parallel()

	body := "%PDF-1.7 gazette no. 12"
	opens := 0
	open := func(context.Context) (io.ReadCloser, error) {
		opens++
		if opens == 1 {
			return nil, errors.New("open object reader: connection reset")
		}
		return io.NopCloser(strings.NewReader(body)), nil
	}

	var sink bytes.Buffer
	require.NoError(t, fetchInto(context.Background(), testRetry(), &sink, open))
	require.Equal(t, 2, opens)
	require.Equal(t, body, sink.String(), "a retried open must not duplicate bytes in the sink")
}

func TestFetchIntoDoesNotRetryMissingBlob(t *testing.T) {
	t.Parallel()

	d := pipeline.Digest(strings.Repeat("ab", 48))
	opens := 0
	open := func(context.Context) (io.ReadCloser, error) {
		opens++
		return nil, fmt.Errorf("%w: %s", pipeline.ErrMissingBlob, d)
	}

	err := fetchInto(context.Background(), testRetry(), &bytes.Buffer{}, open)
	require.ErrorIs(t, err, pipeline.ErrMissingBlob)
	require.Equal(t, 1, opens)
}

// brokenReader fails partway through the body.
type brokenReader struct {
	head io.Reader
	done bool
}

func (r *brokenReader) Read(p []byte) (int, error) {
	n, err := r.head.Read(p)
	if errors.Is(err, io.EOF) && !r.done {
		r.done = true
		return n, errors.New("stream object: unexpected EOF")
	}
	return n, err
}

func (r *brokenReader) Close() error { return nil }

func TestFetchIntoStreamFailureSurfacesWithoutSecondCopy(t *testing.T) {
	t.Parallel()

	opens := 0
	open := func(context.Context) (io.ReadCloser, error) {
		opens++
		return &brokenReader{head: strings.NewReader("partial")}, nil
	}

	var sink bytes.Buffer
	err := fetchInto(context.Background(), testRetry(), &sink, open)
	require.Error(t, err)
	require.Equal(t, 1, opens, "a mid-stream failure must not reopen and append")
	require.Equal(t, "partial", sink.String())
}
