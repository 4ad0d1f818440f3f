// Package cache provides the session cache collaborator: a Redis-backed store for
// deployments and an in-process LRU store for the lite server and tests.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/clinical-decision-support-server/internal/domain"
)

const defaultKeyPrefix = "cds:session:"

// RedisSessionStore keeps session records as JSON blobs in Redis. Writes use SETNX so a
// session id can only be written once; expiry is left to Redis.
type RedisSessionStore struct {
	client  *redis.Client
	prefix  string
	breaker *gobreaker.CircuitBreaker
	logger  *logrus.Logger
}

// NewRedisSessionStore connects to Redis and verifies the connection
func NewRedisSessionStore(config domain.CacheConfig, logger *logrus.Logger) (*RedisSessionStore, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisSessionStoreWithClient(client, config.KeyPrefix, logger), nil
}

// NewRedisSessionStoreWithClient wraps an existing client
func NewRedisSessionStoreWithClient(client *redis.Client, prefix string, logger *logrus.Logger) *RedisSessionStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}

	settings := gobreaker.Settings{
		Name:        "SessionCache",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrSessionExists)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit_breaker": name,
				"from_state":      from.String(),
				"to_state":        to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}

	return &RedisSessionStore{
		client:  client,
		prefix:  prefix,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

// SaveSession writes the record once. A second write for the same id returns
// domain.ErrSessionExists and leaves the stored record untouched.
func (s *RedisSessionStore) SaveSession(ctx context.Context, record *domain.SessionRecord, ttl time.Duration) error {
	if record == nil || record.SessionID == "" {
		return domain.NewValidationError("sessionId", "session id is required", nil)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}

	_, err = s.breaker.Execute(func() (interface{}, error) {
		created, err := s.client.SetNX(ctx, s.key(record.SessionID), data, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to write session: %w", err)
		}
		if !created {
			return nil, fmt.Errorf("session %s: %w", record.SessionID, domain.ErrSessionExists)
		}
		return nil, nil
	})
	if err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"session_id": record.SessionID,
		"ttl":        ttl,
		"bytes":      len(data),
	}).Debug("Session record cached")
	return nil
}

// GetSession reads a record. Expired or unknown ids return domain.ErrNotFound.
func (s *RedisSessionStore) GetSession(ctx context.Context, sessionID string) (*domain.SessionRecord, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		val, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read session: %w", err)
		}
		return val, nil
	})
	if err != nil {
		return nil, err
	}

	var record domain.SessionRecord
	if err := json.Unmarshal(result.([]byte), &record); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", sessionID, err)
	}
	return &record, nil
}

// Ping checks connectivity for health endpoints
func (s *RedisSessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying client
func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}

func (s *RedisSessionStore) key(sessionID string) string {
	return s.prefix + sessionID
}
