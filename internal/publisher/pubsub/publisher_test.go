package pubsub_test

import (
	"context"
	"strings"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/civicarchive/lexharvest/internal/pipeline"
	"github.com/civicarchive/lexharvest/internal/publisher/pubsub"
)

func TestPublisherDeliversPayloadWithDigestAttribute(t *testing.T) {
	ctx := context.Background()

	srv := pstest.NewServer()
	defer srv.Close()

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	client, err := gcppubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	defer client.Close()

	topic, err := client.CreateTopic(ctx, "bill-records")
	require.NoError(t, err)
	sub, err := client.CreateSubscription(ctx, "sub-id", gcppubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	retry := pipeline.NewRetryPolicy(2, time.Millisecond, 5*time.Millisecond, time.Second)
	p := pubsub.NewWithClient(client, "bill-records", "ca-federal", retry, nil)
	defer p.Close()

	digest := strings.Repeat("ab", 48)
	payload := []byte(`{"bill_id":"c-12"}`)
	msgID, err := p.Publish(ctx, payload, digest)
	require.NoError(t, err)
	require.NotEmpty(t, msgID)

	received := make(chan *gcppubsub.Message, 1)
	recvCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	go func() {
		_ = sub.Receive(recvCtx, func(_ context.Context, msg *gcppubsub.Message) {
			received <- msg
			msg.Ack()
			cancel()
		})
	}()

	select {
	case msg := <-received:
		require.Equal(t, payload, msg.Data)
		require.Equal(t, digest, msg.Attributes["digest"])
		require.Equal(t, "ca-federal", msg.Attributes["extractor"])
	case <-recvCtx.Done():
		t.Fatal("no message received")
	}
}

func TestConfigValidation(t *testing.T) {
	t.Parallel()

	require.Error(t, pubsub.Config{TopicID: "t"}.Validate())
	require.Error(t, pubsub.Config{ProjectID: "p"}.Validate())
	require.NoError(t, pubsub.Config{ProjectID: "p", TopicID: "t"}.Validate())
}
