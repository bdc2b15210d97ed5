package app

import (
	"context"
	"sync"
	"time"

	"quicktestly/internal/domain"

	"go.uber.org/zap"
)

// LeaderboardHub fans quiz leaderboards out to subscribers whenever a result is saved.
type LeaderboardHub struct {
	results ResultStore
	limit   int
	now     func() time.Time
	logger  *zap.Logger

	mu     sync.Mutex
	topics map[string]map[chan domain.Leaderboard]struct{}
}

func NewLeaderboardHub(results ResultStore, limit int, logger *zap.Logger) *LeaderboardHub {
	return newLeaderboardHubWithClock(results, limit, logger, time.Now)
}

// newLeaderboardHubWithClock allows deterministic timestamps in tests.
func newLeaderboardHubWithClock(results ResultStore, limit int, logger *zap.Logger, now func() time.Time) *LeaderboardHub {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeaderboardHub{
		results: results,
		limit:   limit,
		now:     now,
		logger:  logger,
		topics:  make(map[string]map[chan domain.Leaderboard]struct{}),
	}
}

// Subscribe returns a channel primed with the current leaderboard of quizID.
// The caller must invoke the returned cancel function to avoid leaks.
func (h *LeaderboardHub) Subscribe(ctx context.Context, quizID string) (<-chan domain.Leaderboard, func(), error) {
	initial, err := h.snapshot(ctx, quizID)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan domain.Leaderboard, 8)
	ch <- initial

	h.mu.Lock()
	subs, ok := h.topics[quizID]
	if !ok {
		subs = make(map[chan domain.Leaderboard]struct{})
		h.topics[quizID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.topics[quizID]
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(h.topics, quizID)
		}
	}
	return ch, cancel, nil
}

// Subscribers counts the open subscriptions of quizID.
func (h *LeaderboardHub) Subscribers(quizID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[quizID])
}

// Publish recomputes the leaderboard of quizID and delivers it to every subscriber.
func (h *LeaderboardHub) Publish(ctx context.Context, quizID string) {
	if h.Subscribers(quizID) == 0 {
		return
	}
	lb, err := h.snapshot(ctx, quizID)
	if err != nil {
		h.logger.Warn("leaderboard refresh failed", zap.String("quiz_id", quizID), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.topics[quizID] {
		select {
		case ch <- lb:
		default:
			// slow subscriber: drop its oldest pending update
			select {
			case <-ch:
			default:
			}
			ch <- lb
		}
	}
}

func (h *LeaderboardHub) snapshot(ctx context.Context, quizID string) (domain.Leaderboard, error) {
	results, err := h.results.LeaderboardForQuiz(ctx, quizID, h.limit)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return domain.Leaderboard{
		QuizID:    quizID,
		Entries:   rank(results),
		UpdatedAt: h.now(),
	}, nil
}
