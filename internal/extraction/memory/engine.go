// Package memory provides an in-process extraction engine for tests
// and noop runs.
package memory

import (
	"context"
	"sync"

	"github.com/civicarchive/lexharvest/internal/pipeline"
)

// Engine returns canned documents per digest, or nothing.
type Engine struct {
	mu      sync.Mutex
	results map[pipeline.Digest][]pipeline.ExtractedDocument
	err     error
	calls   []pipeline.ExtractRequest
}

// NewEngine creates an empty engine.
func NewEngine() *Engine {
	return &Engine{results: make(map[pipeline.Digest][]pipeline.ExtractedDocument)}
}

// SetResult registers canned documents for a digest.
func (e *Engine) SetResult(d pipeline.Digest, docs []pipeline.ExtractedDocument) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results[d] = docs
}

// SetError makes every Extract call fail.
func (e *Engine) SetError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

// Extract returns the canned documents for the request's digest.
func (e *Engine) Extract(_ context.Context, req pipeline.ExtractRequest) ([]pipeline.ExtractedDocument, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, req)
	if e.err != nil {
		return nil, e.err
	}
	return e.results[req.Digest], nil
}

// Calls returns the requests seen so far. Test hook.
func (e *Engine) Calls() []pipeline.ExtractRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]pipeline.ExtractRequest(nil), e.calls...)
}
