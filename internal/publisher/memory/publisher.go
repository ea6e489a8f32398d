// Package memory provides an in-process publisher for tests and dry
// runs.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Message is one published payload with its digest attribute.
type Message struct {
	Payload []byte
	Digest  string
}

// Publisher records published messages.
type Publisher struct {
	mu       sync.Mutex
	messages []Message
	err      error
	closed   bool
}

// NewPublisher creates an empty publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// SetError makes every Publish call fail.
func (p *Publisher) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Publish appends the message and returns a synthetic ack ID.
func (p *Publisher) Publish(_ context.Context, payload []byte, digest string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.messages = append(p.messages, Message{
		Payload: append([]byte(nil), payload...),
		Digest:  digest,
	})
	return fmt.Sprintf("msg-%d", len(p.messages)), nil
}

// Close marks the publisher closed.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Messages returns what was published so far. Test hook.
func (p *Publisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.messages...)
}

// Closed reports whether Close was called. Test hook.
func (p *Publisher) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
