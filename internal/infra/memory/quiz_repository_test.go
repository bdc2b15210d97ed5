package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quicktestly/internal/domain"
)

func TestQuizRepositoryCaches(t *testing.T) {
	loader := &countingLoader{QuizLoader: NewQuizStore(sampleQuiz())}
	repo := NewQuizRepository(loader, time.Minute)

	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.count() != 1 {
		t.Fatalf("expected loader once, got %d", loader.count())
	}

	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if loader.count() != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.count())
	}
}

func TestQuizRepositoryExpiresAndInvalidates(t *testing.T) {
	loader := &countingLoader{QuizLoader: NewQuizStore(sampleQuiz())}
	repo := NewQuizRepository(loader, time.Minute)
	now := time.Now()
	repo.clock = func() time.Time { return now }

	_, _ = repo.GetQuiz(context.Background(), "quiz-1")
	now = now.Add(2 * time.Minute)
	_, _ = repo.GetQuiz(context.Background(), "quiz-1")
	if loader.count() != 2 {
		t.Fatalf("expired entry should reload, calls %d", loader.count())
	}

	repo.Invalidate(context.Background(), "quiz-1")
	_, _ = repo.GetQuiz(context.Background(), "quiz-1")
	if loader.count() != 3 {
		t.Fatalf("invalidated entry should reload, calls %d", loader.count())
	}
}

func TestQuizRepositoryDoesNotCacheMisses(t *testing.T) {
	loader := &countingLoader{QuizLoader: NewQuizStore()}
	repo := NewQuizRepository(loader, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := repo.GetQuiz(context.Background(), "nope"); !errors.Is(err, domain.ErrQuizNotFound) {
			t.Fatalf("expected ErrQuizNotFound, got %v", err)
		}
	}
	if loader.count() != 2 {
		t.Fatalf("misses must not be cached, calls %d", loader.count())
	}
}

type countingLoader struct {
	QuizLoader
	mu    sync.Mutex
	calls int
}

func (l *countingLoader) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	return l.QuizLoader.GetQuiz(ctx, quizID)
}

func (l *countingLoader) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:        "quiz-1",
		Name:      "Arithmetic",
		TimeLimit: 5,
		IsPublic:  true,
		Questions: []domain.Question{
			{
				ID:            "q1",
				Text:          "What is 2 + 2?",
				Options:       []string{"3", "4"},
				CorrectAnswer: "4",
			},
		},
		QuestionCount:      1,
		CreatedByTeacherID: "t1",
	}
}
