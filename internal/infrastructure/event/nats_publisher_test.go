package event

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/domain/tenancy"
	"go.uber.org/zap"
)

// testConnect connects to NATS or skips the test if NATS_URL is not set
func testConnect(t *testing.T, stream string) *NATSPublisher {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	p, err := ConnectNATS(context.Background(), url, stream, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = p.js.DeleteStream(context.Background(), stream)
		assert.NoError(t, p.Close())
	})
	return p
}

func TestNATSPublisher_Publish(t *testing.T) {
	stream := "TENANT_EVENTS_TEST"
	p := testConnect(t, stream)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	event := tenancy.NewEvent(tenancy.EventTenantSuspended, "t-1", time.Now().UTC(), map[string]any{"reason": "non-payment"})
	require.NoError(t, p.Publish(ctx, event))
	require.NoError(t, p.Publish(ctx, event), "duplicate publish is deduplicated")

	consumer, err := p.js.CreateOrUpdateConsumer(ctx, stream, jetstream.ConsumerConfig{
		FilterSubject: "tenant.suspended",
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	require.NoError(t, err)

	batch, err := consumer.Fetch(2, jetstream.FetchMaxWait(2*time.Second))
	require.NoError(t, err)

	var received []tenancy.Event
	for msg := range batch.Messages() {
		var got tenancy.Event
		require.NoError(t, json.Unmarshal(msg.Data(), &got))
		received = append(received, got)
		require.NoError(t, msg.Ack())
	}

	require.Len(t, received, 1)
	assert.Equal(t, event.ID, received[0].ID)
	assert.Equal(t, "non-payment", received[0].Payload["reason"])
}
