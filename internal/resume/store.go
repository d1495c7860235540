// Package resume remembers where playback of a file stopped.
package resume

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/NekoSaan/h264Player/internal/config"
	"github.com/NekoSaan/h264Player/internal/logger"
	"github.com/NekoSaan/h264Player/internal/player"
)

// DefaultKeyPrefix is used when the configuration leaves the prefix empty.
const DefaultKeyPrefix = "h264player:resume:"

// Entry is the stored record for one input.
type Entry struct {
	Input      string    `json:"input"`
	PositionUS int64     `json:"position_us"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Store keeps resume positions in Redis, one key per input path. Keys
// expire after the configured TTL.
type Store struct {
	client *redis.Client
	logger logger.Logger
	prefix string
	ttl    time.Duration
}

var _ player.ResumeStore = (*Store)(nil)

// NewStore wraps an existing client.
func NewStore(client *redis.Client, prefix string, ttl time.Duration, log logger.Logger) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{
		client: client,
		logger: logger.WithComponent(logger.OrNull(log), "resume"),
		prefix: prefix,
		ttl:    ttl,
	}
}

// Connect creates a client from cfg and checks that Redis answers.
func Connect(ctx context.Context, cfg *config.ResumeConfig, log logger.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: cfg.DialTimeout,
	})

	s := NewStore(client, cfg.KeyPrefix, cfg.TTL, log)
	if err := s.Ping(ctx); err != nil {
		client.Close()
		return nil, err
	}
	s.logger.WithField("addr", cfg.RedisAddr).Debug("Connected to resume store")
	return s, nil
}

func (s *Store) key(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return s.prefix + path
}

// Load returns the saved position for path. ok is false when nothing is
// stored.
func (s *Store) Load(ctx context.Context, path string) (time.Duration, bool, error) {
	data, err := s.client.Get(ctx, s.key(path)).Bytes()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to load resume position: %w", err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return 0, false, fmt.Errorf("failed to decode resume position: %w", err)
	}
	if e.PositionUS < 0 {
		return 0, false, nil
	}
	return time.Duration(e.PositionUS) * time.Microsecond, true, nil
}

// Save stores pos for path, replacing any earlier entry and refreshing the
// TTL.
func (s *Store) Save(ctx context.Context, path string, pos time.Duration) error {
	data, err := json.Marshal(Entry{
		Input:      path,
		PositionUS: pos.Microseconds(),
		UpdatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode resume position: %w", err)
	}

	if err := s.client.Set(ctx, s.key(path), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save resume position: %w", err)
	}

	s.logger.WithFields(logger.Fields{
		"input":    path,
		"position": pos.String(),
	}).Debug("Resume position saved")
	return nil
}

// Clear forgets path. Clearing a path with no entry is not an error.
func (s *Store) Clear(ctx context.Context, path string) error {
	if err := s.client.Del(ctx, s.key(path)).Err(); err != nil {
		return fmt.Errorf("failed to clear resume position: %w", err)
	}
	return nil
}

// Name implements the control server's health checker.
func (s *Store) Name() string { return "resume_store" }

// Check implements the control server's health checker.
func (s *Store) Check(ctx context.Context) error {
	return s.Ping(ctx)
}

// Ping checks Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
