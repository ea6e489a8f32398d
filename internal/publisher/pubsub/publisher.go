// Package pubsub publishes validated records to a Google Cloud
// Pub/Sub topic. Downstream consumers dedup on the digest attribute,
// so the same canonical payload may be published more than once.
package pubsub

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/civicarchive/lexharvest/internal/metrics"
	"github.com/civicarchive/lexharvest/internal/pipeline"
)

// Config controls the Pub/Sub publisher.
type Config struct {
	ProjectID string
	TopicID   string
}

// Validate checks required fields.
func (c Config) Validate() error {
	if c.ProjectID == "" {
		return fmt.Errorf("pubsub project id is required")
	}
	if c.TopicID == "" {
		return fmt.Errorf("pubsub topic id is required")
	}
	return nil
}

// Publisher implements pipeline.Publisher on a Pub/Sub topic.
type Publisher struct {
	client    *pubsub.Client
	topic     *pubsub.Topic
	retry     pipeline.RetryPolicy
	logger    *zap.Logger
	extractor string
	ownClient bool
}

// New connects to Pub/Sub and binds the topic. Close releases the
// client.
func New(ctx context.Context, cfg Config, extractor string, retry pipeline.RetryPolicy, logger *zap.Logger) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	p := NewWithClient(client, cfg.TopicID, extractor, retry, logger)
	p.ownClient = true
	return p, nil
}

// NewWithClient wraps an existing client, used with pstest in tests.
func NewWithClient(client *pubsub.Client, topicID, extractor string, retry pipeline.RetryPolicy, logger *zap.Logger) *Publisher {
	if retry == nil {
		retry = pipeline.NewExponentialRetryPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		client:    client,
		topic:     client.Topic(topicID),
		retry:     retry,
		logger:    logger,
		extractor: extractor,
	}
}

// Publish sends one canonical record payload and returns the server's
// message ID. The digest attribute carries the SHA-384 of the primary
// archived file so consumers can dedup republished records.
func (p *Publisher) Publish(ctx context.Context, payload []byte, digest string) (string, error) {
	msg := &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"digest":    digest,
			"extractor": p.extractor,
		},
	}
	var serverID string
	err := pipeline.Retry(ctx, p.retry, func(ctx context.Context) error {
		result := p.topic.Publish(ctx, msg)
		id, getErr := result.Get(ctx)
		if getErr != nil {
			return fmt.Errorf("publish record: %w", getErr)
		}
		serverID = id
		return nil
	})
	if err != nil {
		return "", err
	}
	metrics.RecordsPublishedTotal.WithLabelValues(p.extractor).Inc()
	p.logger.Debug("record published",
		zap.String("message_id", serverID),
		zap.String("digest", digest),
		zap.Int("bytes", len(payload)),
	)
	return serverID, nil
}

// Close flushes outstanding messages and releases the client when
// this publisher created it.
func (p *Publisher) Close() error {
	p.topic.Stop()
	if p.ownClient {
		return p.client.Close()
	}
	return nil
}
