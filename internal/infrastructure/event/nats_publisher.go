package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/domain/tenancy"
	"go.uber.org/zap"
)

// Stream settings for tenant lifecycle events
const (
	DefaultStreamName = "TENANT_EVENTS"
	DefaultSubjects   = "tenant.>"
)

// NATSPublisher publishes tenant events to a JetStream stream. The subject
// of each message is the event type, e.g. "tenant.suspended".
type NATSPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *zap.Logger
}

// ConnectNATS connects to url and makes sure the stream exists
func ConnectNATS(ctx context.Context, url, stream string, logger *zap.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("hr-tenancy"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	if stream == "" {
		stream = DefaultStreamName
	}
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     stream,
		Subjects: []string{DefaultSubjects},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	logger.Info("NATS connected", zap.String("url", url), zap.String("stream", stream))
	return &NATSPublisher{nc: nc, js: js, logger: logger}, nil
}

// Publish sends the event. The event id doubles as the JetStream message
// id so retried publishes are deduplicated.
func (p *NATSPublisher) Publish(ctx context.Context, event *tenancy.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	subject := string(event.Type)
	if _, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(event.ID)); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	p.logger.Debug("Published tenant event",
		zap.String("subject", subject),
		zap.String("event_id", event.ID))
	return nil
}

// Close drains and closes the connection
func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}

// Ensure NATSPublisher implements tenancy.EventPublisher
var _ tenancy.EventPublisher = (*NATSPublisher)(nil)
