package redis

import (
	"context"
	"sync"
	"time"

	"quicktestly/internal/app"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// AttemptStore is a Redis-aware implementation of app.AttemptRepository.
// Notes:
//   - Attempts own a live timer, so the attempt itself stays in a local map.
//   - Redis holds a liveness marker per attempt (quiz:attempt:{id} -> quiz/user) that
//     expires on its own if the process dies, so other instances can count live attempts.
type AttemptStore struct {
	client   *redis.Client
	ttl      time.Duration
	logger   *zap.Logger
	mu       sync.RWMutex
	attempts map[string]*app.Attempt
}

func NewAttemptStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *AttemptStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttemptStore{
		client:   client,
		ttl:      ttl,
		logger:   logger,
		attempts: make(map[string]*app.Attempt),
	}
}

func (s *AttemptStore) Put(attempt *app.Attempt) {
	s.mu.Lock()
	s.attempts[attempt.ID()] = attempt
	s.mu.Unlock()

	ttl := s.ttl
	if limit := time.Duration(attempt.Quiz().TimeLimitSeconds()) * time.Second; limit > 0 {
		ttl = limit + time.Minute
	}
	// best-effort liveness marker
	ctx := context.Background()
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key(attempt.ID()), "quiz_id", attempt.Quiz().ID, "user_id", attempt.User().ID)
	pipe.Expire(ctx, s.key(attempt.ID()), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("redis set attempt marker failed", zap.String("attempt_id", attempt.ID()), zap.Error(err))
	}
}

func (s *AttemptStore) Get(attemptID string) (*app.Attempt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[attemptID]
	return attempt, ok
}

func (s *AttemptStore) Delete(attemptID string) {
	s.mu.Lock()
	delete(s.attempts, attemptID)
	s.mu.Unlock()
	if err := s.client.Del(context.Background(), s.key(attemptID)).Err(); err != nil {
		s.logger.Warn("redis delete attempt marker failed", zap.String("attempt_id", attemptID), zap.Error(err))
	}
}

func (s *AttemptStore) List() []*app.Attempt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*app.Attempt, 0, len(s.attempts))
	for _, a := range s.attempts {
		out = append(out, a)
	}
	return out
}

// CountLive counts liveness markers across all instances.
func (s *AttemptStore) CountLive(ctx context.Context) (int, error) {
	var (
		cursor uint64
		count  int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, "quiz:attempt:*", 100).Result()
		if err != nil {
			return 0, err
		}
		count += len(keys)
		if next == 0 {
			return count, nil
		}
		cursor = next
	}
}

func (s *AttemptStore) key(attemptID string) string {
	return "quiz:attempt:" + attemptID
}
