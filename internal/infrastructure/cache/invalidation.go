package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultInvalidationChannel = "hr:tenant-cache:invalidate"
	defaultCloseTimeout        = 5 * time.Second
)

// InvalidationMessage tells other instances to drop local copies of keys
type InvalidationMessage struct {
	Keys      []string `json:"keys"`
	Origin    string   `json:"origin"`
	Timestamp int64    `json:"timestamp"`
}

// RedisCacheInvalidator broadcasts cache invalidations over Redis Pub/Sub
type RedisCacheInvalidator struct {
	client    *redis.Client
	channel   string
	origin    string
	logger    *zap.Logger
	cancelFn  context.CancelFunc
	readyCh   chan struct{}
	readyOnce sync.Once
	doneCh    chan struct{}
	doneOnce  sync.Once
	mu        sync.Mutex
	isRunning bool
}

// RedisCacheInvalidatorOption is a functional option for configuring the invalidator
type RedisCacheInvalidatorOption func(*RedisCacheInvalidator)

// WithInvalidatorChannel sets the Pub/Sub channel name
func WithInvalidatorChannel(channel string) RedisCacheInvalidatorOption {
	return func(i *RedisCacheInvalidator) {
		i.channel = channel
	}
}

// WithInvalidatorLogger sets the logger for the invalidator
func WithInvalidatorLogger(logger *zap.Logger) RedisCacheInvalidatorOption {
	return func(i *RedisCacheInvalidator) {
		i.logger = logger
	}
}

// NewRedisCacheInvalidator creates an invalidator over an existing client.
// Each invalidator gets a unique origin so it can ignore its own messages.
func NewRedisCacheInvalidator(client *redis.Client, opts ...RedisCacheInvalidatorOption) *RedisCacheInvalidator {
	i := &RedisCacheInvalidator{
		client:  client,
		channel: defaultInvalidationChannel,
		origin:  uuid.NewString(),
		logger:  zap.NewNop(),
		readyCh: make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Origin identifies this instance in published messages
func (i *RedisCacheInvalidator) Origin() string {
	return i.origin
}

// Publish notifies all subscribers that keys changed
func (i *RedisCacheInvalidator) Publish(ctx context.Context, keys ...string) error {
	msg := InvalidationMessage{
		Keys:      keys,
		Origin:    i.origin,
		Timestamp: time.Now().UnixNano(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal invalidation message: %w", err)
	}

	if err := i.client.Publish(ctx, i.channel, data).Err(); err != nil {
		i.logger.Error("Failed to publish cache invalidation",
			zap.String("channel", i.channel),
			zap.Error(err))
		return fmt.Errorf("failed to publish message: %w", err)
	}

	i.logger.Debug("Published cache invalidation",
		zap.Strings("keys", keys),
		zap.String("channel", i.channel))
	return nil
}

// Subscribe listens for invalidations from other instances and calls
// callback for each. It blocks until ctx is done or Close is called.
func (i *RedisCacheInvalidator) Subscribe(ctx context.Context, callback func(msg InvalidationMessage)) error {
	i.mu.Lock()
	if i.isRunning {
		i.mu.Unlock()
		return fmt.Errorf("subscription already running")
	}
	i.isRunning = true
	subCtx, cancel := context.WithCancel(ctx)
	i.cancelFn = cancel
	i.mu.Unlock()

	pubsub := i.client.Subscribe(subCtx, i.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(subCtx); err != nil {
		i.stopped()
		return fmt.Errorf("failed to subscribe to channel: %w", err)
	}
	i.readyOnce.Do(func() { close(i.readyCh) })

	i.logger.Info("Subscribed to tenant cache invalidation channel",
		zap.String("channel", i.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-subCtx.Done():
			i.logger.Info("Tenant cache invalidation subscription stopped")
			i.stopped()
			return subCtx.Err()
		case msg, ok := <-ch:
			if !ok {
				i.logger.Warn("Tenant cache invalidation channel closed")
				i.stopped()
				return nil
			}

			var inv InvalidationMessage
			if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
				i.logger.Error("Failed to unmarshal invalidation message",
					zap.String("payload", msg.Payload),
					zap.Error(err))
				continue
			}
			if inv.Origin == i.origin {
				continue
			}

			func() {
				defer func() {
					if r := recover(); r != nil {
						i.logger.Error("Panic in cache invalidation callback", zap.Any("panic", r))
					}
				}()
				callback(inv)
			}()
		}
	}
}

// Ready is closed once the subscription is confirmed by Redis
func (i *RedisCacheInvalidator) Ready() <-chan struct{} {
	return i.readyCh
}

func (i *RedisCacheInvalidator) stopped() {
	i.mu.Lock()
	i.isRunning = false
	i.mu.Unlock()
	i.doneOnce.Do(func() {
		close(i.doneCh)
	})
}

// Close stops the subscription. The client is owned by the caller.
func (i *RedisCacheInvalidator) Close() error {
	i.mu.Lock()
	cancelFn := i.cancelFn
	i.mu.Unlock()

	if cancelFn != nil {
		cancelFn()
		select {
		case <-i.doneCh:
		case <-time.After(defaultCloseTimeout):
			i.logger.Warn("Timeout waiting for subscription to stop")
		}
	}
	return nil
}
