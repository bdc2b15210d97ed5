package memory

import (
	"context"
	"sort"
	"sync"

	"quicktestly/internal/domain"

	"github.com/google/uuid"
)

// QuizStore keeps quizzes in a map; it backs tests, demos and single-node setups.
type QuizStore struct {
	mu      sync.RWMutex
	quizzes map[string]domain.Quiz
}

func NewQuizStore(seed ...domain.Quiz) *QuizStore {
	s := &QuizStore{quizzes: make(map[string]domain.Quiz, len(seed))}
	for _, q := range seed {
		s.quizzes[q.ID] = cloneQuiz(q)
	}
	return s
}

func (s *QuizStore) GetQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if quiz, ok := s.quizzes[quizID]; ok {
		return cloneQuiz(quiz), nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

func (s *QuizStore) ListPublicQuizzes(_ context.Context) ([]domain.Quiz, error) {
	return s.list(func(q domain.Quiz) bool { return q.IsPublic }), nil
}

func (s *QuizStore) ListQuizzesByTeacher(_ context.Context, teacherID string) ([]domain.Quiz, error) {
	return s.list(func(q domain.Quiz) bool { return q.CreatedByTeacherID == teacherID }), nil
}

func (s *QuizStore) CreateQuiz(_ context.Context, quiz domain.Quiz) (string, error) {
	if quiz.ID == "" {
		quiz.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizzes[quiz.ID] = cloneQuiz(quiz)
	return quiz.ID, nil
}

func (s *QuizStore) UpdateQuiz(_ context.Context, quiz domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[quiz.ID]; !ok {
		return domain.ErrQuizNotFound
	}
	s.quizzes[quiz.ID] = cloneQuiz(quiz)
	return nil
}

func (s *QuizStore) DeleteQuiz(_ context.Context, quizID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[quizID]; !ok {
		return domain.ErrQuizNotFound
	}
	delete(s.quizzes, quizID)
	return nil
}

func (s *QuizStore) list(keep func(domain.Quiz) bool) []domain.Quiz {
	s.mu.RLock()
	out := make([]domain.Quiz, 0, len(s.quizzes))
	for _, q := range s.quizzes {
		if keep(q) {
			out = append(out, cloneQuiz(q))
		}
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func cloneQuiz(q domain.Quiz) domain.Quiz {
	out := q
	out.Questions = make([]domain.Question, len(q.Questions))
	for i, question := range q.Questions {
		question.Options = append([]string(nil), question.Options...)
		out.Questions[i] = question
	}
	return out
}

// ResultStore keeps results in insertion order.
type ResultStore struct {
	mu      sync.RWMutex
	results []domain.Result
}

func NewResultStore() *ResultStore {
	return &ResultStore{}
}

func (s *ResultStore) SubmitResult(_ context.Context, result domain.Result) (string, error) {
	result.ID = uuid.NewString()
	result.Answers = cloneAnswers(result.Answers)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return result.ID, nil
}

func (s *ResultStore) ListResultsForQuiz(_ context.Context, quizID string) ([]domain.Result, error) {
	out := s.filter(func(r domain.Result) bool { return r.QuizID == quizID })
	sortNewestFirst(out)
	return out, nil
}

func (s *ResultStore) ListResultsForUser(_ context.Context, userID string) ([]domain.Result, error) {
	out := s.filter(func(r domain.Result) bool { return r.UserID == userID })
	sortNewestFirst(out)
	return out, nil
}

func (s *ResultStore) LeaderboardForQuiz(_ context.Context, quizID string, limit int) ([]domain.Result, error) {
	return top(s.filter(func(r domain.Result) bool { return r.QuizID == quizID }), limit), nil
}

func (s *ResultStore) GlobalLeaderboard(_ context.Context, limit int) ([]domain.Result, error) {
	return top(s.filter(func(domain.Result) bool { return true }), limit), nil
}

func (s *ResultStore) filter(keep func(domain.Result) bool) []domain.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Result, 0, len(s.results))
	for _, r := range s.results {
		if keep(r) {
			r.Answers = cloneAnswers(r.Answers)
			out = append(out, r)
		}
	}
	return out
}

func top(results []domain.Result, limit int) []domain.Result {
	sort.SliceStable(results, func(i, j int) bool {
		return domain.RanksBefore(results[i], results[j])
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func sortNewestFirst(results []domain.Result) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CompletedAt.After(results[j].CompletedAt)
	})
}

func cloneAnswers(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
