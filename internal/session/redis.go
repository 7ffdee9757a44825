package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultKeyPrefix namespaces session keys in Redis.
const DefaultKeyPrefix = "bookingpipe:session:"

// RedisOpts configures a RedisStore.
type RedisOpts struct {
	KeyPrefix string
	TTL       time.Duration // zero keeps sessions until they are deleted
	Tracer    trace.Tracer
}

// RedisOption defines a configuration option for RedisStore.
type RedisOption func(*RedisOpts)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(o *RedisOpts) { o.KeyPrefix = prefix }
}

// WithTTL expires idle sessions after ttl. Every write refreshes the expiry.
func WithTTL(ttl time.Duration) RedisOption {
	return func(o *RedisOpts) { o.TTL = ttl }
}

// WithTracer sets the tracer used for session I/O spans.
func WithTracer(tracer trace.Tracer) RedisOption {
	return func(o *RedisOpts) { o.Tracer = tracer }
}

// RedisStore keeps sessions in Redis as JSON so several processes can share them.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	tracer trace.Tracer
}

// NewRedisStore creates a RedisStore using client.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	cfg := RedisOpts{KeyPrefix: DefaultKeyPrefix}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("bookingpipe.internal.session")
	}
	slog.Debug("RedisStore created", "prefix", cfg.KeyPrefix, "ttl", cfg.TTL)
	return &RedisStore{client: client, prefix: cfg.KeyPrefix, ttl: cfg.TTL, tracer: cfg.Tracer}
}

func (r *RedisStore) key(identity string) string {
	return r.prefix + identity
}

func (r *RedisStore) GetOrCreate(ctx context.Context, identity string) (*Session, error) {
	ctx, span := r.tracer.Start(ctx, "session.get_or_create", trace.WithAttributes(attribute.String("identity", identity)))
	defer span.End()

	data, err := r.client.Get(ctx, r.key(identity)).Bytes()
	if errors.Is(err, redis.Nil) {
		s := New(identity)
		if err := r.write(ctx, identity, s); err != nil {
			span.RecordError(err)
			return nil, err
		}
		slog.Debug("RedisStore created session", "identity", identity)
		return s, nil
	}
	if err != nil {
		span.RecordError(err)
		slog.Error("RedisStore GetOrCreate failed", "error", err, "identity", identity)
		return nil, fmt.Errorf("session: failed to load session for %s: %w", identity, err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		span.RecordError(err)
		slog.Error("RedisStore GetOrCreate decode failed", "error", err, "identity", identity)
		return nil, fmt.Errorf("session: failed to decode session for %s: %w", identity, err)
	}
	return &s, nil
}

func (r *RedisStore) Replace(ctx context.Context, identity string, s *Session) error {
	ctx, span := r.tracer.Start(ctx, "session.replace", trace.WithAttributes(attribute.String("identity", identity)))
	defer span.End()

	if err := r.write(ctx, identity, s); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (r *RedisStore) write(ctx context.Context, identity string, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: failed to encode session for %s: %w", identity, err)
	}
	if err := r.client.Set(ctx, r.key(identity), data, r.ttl).Err(); err != nil {
		slog.Error("RedisStore write failed", "error", err, "identity", identity)
		return fmt.Errorf("session: failed to persist session for %s: %w", identity, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, identity string) error {
	ctx, span := r.tracer.Start(ctx, "session.delete", trace.WithAttributes(attribute.String("identity", identity)))
	defer span.End()

	if err := r.client.Del(ctx, r.key(identity)).Err(); err != nil {
		span.RecordError(err)
		slog.Error("RedisStore Delete failed", "error", err, "identity", identity)
		return fmt.Errorf("session: failed to delete session for %s: %w", identity, err)
	}
	slog.Debug("RedisStore deleted session", "identity", identity)
	return nil
}

// Count scans the key prefix and returns the number of stored sessions.
func (r *RedisStore) Count(ctx context.Context) (int, error) {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("session: failed to scan sessions: %w", err)
		}
		total += len(keys)
		if next == 0 {
			return total, nil
		}
		cursor = next
	}
}
