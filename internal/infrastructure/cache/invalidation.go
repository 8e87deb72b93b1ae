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
	defaultCloseTimeout        = 5 * time.Second
	DefaultInvalidationChannel = "enforcement:invalidate"
)

// InvalidationMessage tells every engine instance that a tenant's cached
// usage and enforcement data is stale
type InvalidationMessage struct {
	TenantID  uuid.UUID `json:"tenant_id"`
	Reason    string    `json:"reason"`
	Timestamp int64     `json:"timestamp"`
}

// InvalidationHandler reacts to an invalidation
type InvalidationHandler func(ctx context.Context, msg InvalidationMessage)

// InvalidationBus delivers invalidations to every engine instance
type InvalidationBus interface {
	BroadcastInvalidation(ctx context.Context, tenantID uuid.UUID, reason string) error
	Subscribe(ctx context.Context, handler InvalidationHandler) error
	Close() error
}

var (
	_ InvalidationBus = (*RedisInvalidationBus)(nil)
	_ InvalidationBus = (*LocalInvalidationBus)(nil)
)

// RedisInvalidationBus fans invalidations out over Redis Pub/Sub
type RedisInvalidationBus struct {
	client    *redis.Client
	channel   string
	logger    *zap.Logger
	cancelFn  context.CancelFunc
	doneCh    chan struct{}
	doneOnce  sync.Once
	mu        sync.Mutex
	isRunning bool
}

// RedisInvalidationBusOption is a functional option for configuring the bus
type RedisInvalidationBusOption func(*RedisInvalidationBus)

// WithInvalidationChannel sets the Pub/Sub channel name
func WithInvalidationChannel(channel string) RedisInvalidationBusOption {
	return func(b *RedisInvalidationBus) {
		if channel != "" {
			b.channel = channel
		}
	}
}

// WithInvalidationLogger sets the logger for the bus
func WithInvalidationLogger(logger *zap.Logger) RedisInvalidationBusOption {
	return func(b *RedisInvalidationBus) {
		b.logger = logger
	}
}

// NewRedisInvalidationBus creates a bus on an existing client. The caller owns the client.
func NewRedisInvalidationBus(client *redis.Client, opts ...RedisInvalidationBusOption) *RedisInvalidationBus {
	b := &RedisInvalidationBus{
		client:  client,
		channel: DefaultInvalidationChannel,
		logger:  zap.NewNop(),
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BroadcastInvalidation publishes an invalidation for a tenant
func (b *RedisInvalidationBus) BroadcastInvalidation(ctx context.Context, tenantID uuid.UUID, reason string) error {
	msg := InvalidationMessage{
		TenantID:  tenantID,
		Reason:    reason,
		Timestamp: time.Now().UnixNano(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal invalidation: %w", err)
	}

	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish invalidation",
			zap.String("channel", b.channel),
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}

	b.logger.Debug("Published invalidation",
		zap.String("tenant_id", tenantID.String()),
		zap.String("reason", reason))
	return nil
}

// Subscribe blocks, invoking handler for every received invalidation until
// ctx is cancelled or Close is called
func (b *RedisInvalidationBus) Subscribe(ctx context.Context, handler InvalidationHandler) error {
	b.mu.Lock()
	if b.isRunning {
		b.mu.Unlock()
		return fmt.Errorf("subscription already running")
	}
	b.isRunning = true
	subCtx, cancel := context.WithCancel(ctx)
	b.cancelFn = cancel
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.isRunning = false
		b.mu.Unlock()
		b.markDone()
	}()

	pubsub := b.client.Subscribe(subCtx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(subCtx); err != nil {
		return fmt.Errorf("failed to subscribe to channel: %w", err)
	}

	b.logger.Info("Subscribed to invalidation channel", zap.String("channel", b.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-subCtx.Done():
			b.logger.Info("Invalidation subscription stopped")
			return subCtx.Err()
		case msg, ok := <-ch:
			if !ok {
				b.logger.Warn("Invalidation channel closed")
				return nil
			}
			var inv InvalidationMessage
			if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
				b.logger.Error("Failed to unmarshal invalidation",
					zap.String("payload", msg.Payload),
					zap.Error(err))
				continue
			}
			dispatch(subCtx, b.logger, handler, inv)
		}
	}
}

func (b *RedisInvalidationBus) markDone() {
	b.doneOnce.Do(func() {
		close(b.doneCh)
	})
}

// Close stops a running subscription
func (b *RedisInvalidationBus) Close() error {
	b.mu.Lock()
	cancelFn := b.cancelFn
	b.mu.Unlock()

	if cancelFn != nil {
		cancelFn()
		select {
		case <-b.doneCh:
		case <-time.After(defaultCloseTimeout):
			b.logger.Warn("Timeout waiting for subscription to stop")
		}
	}
	return nil
}

// LocalInvalidationBus delivers invalidations in-process when Redis is disabled
type LocalInvalidationBus struct {
	mu       sync.RWMutex
	handlers []InvalidationHandler
	logger   *zap.Logger
}

// NewLocalInvalidationBus creates an in-process bus
func NewLocalInvalidationBus(logger *zap.Logger) *LocalInvalidationBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalInvalidationBus{logger: logger}
}

// Subscribe registers handler and returns immediately
func (b *LocalInvalidationBus) Subscribe(_ context.Context, handler InvalidationHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
	return nil
}

// BroadcastInvalidation runs every handler synchronously
func (b *LocalInvalidationBus) BroadcastInvalidation(ctx context.Context, tenantID uuid.UUID, reason string) error {
	msg := InvalidationMessage{TenantID: tenantID, Reason: reason, Timestamp: time.Now().UnixNano()}

	b.mu.RLock()
	handlers := make([]InvalidationHandler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		dispatch(ctx, b.logger, h, msg)
	}
	return nil
}

// Close is a no-op
func (b *LocalInvalidationBus) Close() error {
	return nil
}

func dispatch(ctx context.Context, logger *zap.Logger, handler InvalidationHandler, msg InvalidationMessage) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in invalidation handler",
				zap.String("tenant_id", msg.TenantID.String()),
				zap.Any("panic", r))
		}
	}()
	handler(ctx, msg)
}
