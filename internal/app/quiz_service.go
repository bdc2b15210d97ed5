package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"quicktestly/internal/domain"

	"go.uber.org/zap"
)

// DefaultLeaderboardLimit is used when a caller asks for a non-positive limit.
const DefaultLeaderboardLimit = 10

const (
	maxLeaderboardLimit = 100
	recentActivityLimit = 10
)

// QuizStore is the quiz half of the external document store.
type QuizStore interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	ListPublicQuizzes(ctx context.Context) ([]domain.Quiz, error)
	ListQuizzesByTeacher(ctx context.Context, teacherID string) ([]domain.Quiz, error)
	CreateQuiz(ctx context.Context, quiz domain.Quiz) (string, error)
	UpdateQuiz(ctx context.Context, quiz domain.Quiz) error
	DeleteQuiz(ctx context.Context, quizID string) error
}

// ResultStore is the result half of the external document store. Leaderboards are
// ordered by score desc, then time spent asc.
type ResultStore interface {
	SubmitResult(ctx context.Context, result domain.Result) (string, error)
	ListResultsForQuiz(ctx context.Context, quizID string) ([]domain.Result, error)
	ListResultsForUser(ctx context.Context, userID string) ([]domain.Result, error)
	LeaderboardForQuiz(ctx context.Context, quizID string, limit int) ([]domain.Result, error)
	GlobalLeaderboard(ctx context.Context, limit int) ([]domain.Result, error)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	Invalidate(ctx context.Context, quizID string)
}

// QuizService contains quiz authoring and the read side of results.
type QuizService struct {
	store   QuizStore
	quizzes QuizRepository
	results ResultStore
	logger  *zap.Logger
	now     func() time.Time
}

func NewQuizService(store QuizStore, quizzes QuizRepository, results ResultStore, logger *zap.Logger) *QuizService {
	return NewQuizServiceWithClock(store, quizzes, results, logger, time.Now)
}

// NewQuizServiceWithClock is test-only for deterministic timestamps.
func NewQuizServiceWithClock(store QuizStore, quizzes QuizRepository, results ResultStore, logger *zap.Logger, now func() time.Time) *QuizService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuizService{store: store, quizzes: quizzes, results: results, logger: logger, now: now}
}

// CreateQuiz validates the input and stores a new quiz owned by teacher.
func (s *QuizService) CreateQuiz(ctx context.Context, teacher domain.Identity, input QuizInput) (domain.Quiz, error) {
	if !teacher.IsTeacher() {
		return domain.Quiz{}, domain.ErrForbidden
	}
	quiz, err := input.Build()
	if err != nil {
		return domain.Quiz{}, err
	}
	now := s.now()
	quiz.CreatedByTeacherID = teacher.ID
	quiz.CreatedByTeacherName = teacher.Name
	quiz.CreatedByTeacherEmail = teacher.Email
	quiz.CreatedAt = now
	quiz.UpdatedAt = now

	id, err := s.store.CreateQuiz(ctx, quiz)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("create quiz: %w", err)
	}
	quiz.ID = id
	s.logger.Info("quiz created", zap.String("quiz_id", id), zap.String("teacher_id", teacher.ID), zap.Int("questions", quiz.QuestionCount))
	return quiz, nil
}

// UpdateQuiz replaces the content of a quiz the teacher owns.
func (s *QuizService) UpdateQuiz(ctx context.Context, teacher domain.Identity, quizID string, input QuizInput) (domain.Quiz, error) {
	existing, err := s.ownedQuiz(ctx, teacher, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	quiz, err := input.Build()
	if err != nil {
		return domain.Quiz{}, err
	}
	quiz.ID = existing.ID
	quiz.CreatedByTeacherID = existing.CreatedByTeacherID
	quiz.CreatedByTeacherName = existing.CreatedByTeacherName
	quiz.CreatedByTeacherEmail = existing.CreatedByTeacherEmail
	quiz.CreatedAt = existing.CreatedAt
	quiz.UpdatedAt = s.now()

	if err := s.store.UpdateQuiz(ctx, quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("update quiz: %w", err)
	}
	s.quizzes.Invalidate(ctx, quizID)
	return quiz, nil
}

// DeleteQuiz removes a quiz the teacher owns. Results are kept.
func (s *QuizService) DeleteQuiz(ctx context.Context, teacher domain.Identity, quizID string) error {
	if _, err := s.ownedQuiz(ctx, teacher, quizID); err != nil {
		return err
	}
	if err := s.store.DeleteQuiz(ctx, quizID); err != nil {
		return fmt.Errorf("delete quiz: %w", err)
	}
	s.quizzes.Invalidate(ctx, quizID)
	s.logger.Info("quiz deleted", zap.String("quiz_id", quizID), zap.String("teacher_id", teacher.ID))
	return nil
}

// GetQuiz returns a quiz; correct answers are stripped unless viewer owns it.
func (s *QuizService) GetQuiz(ctx context.Context, viewer domain.Identity, quizID string) (domain.Quiz, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if quiz.CreatedByTeacherID != "" && quiz.CreatedByTeacherID == viewer.ID {
		return quiz, nil
	}
	return quiz.WithoutAnswers(), nil
}

// ListPublicQuizzes returns published quizzes without answers, newest first.
func (s *QuizService) ListPublicQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	quizzes, err := s.store.ListPublicQuizzes(ctx)
	if err != nil {
		return nil, err
	}
	for i := range quizzes {
		quizzes[i] = quizzes[i].WithoutAnswers()
	}
	return quizzes, nil
}

// ListTeacherQuizzes returns the quizzes authored by teacher, newest first.
func (s *QuizService) ListTeacherQuizzes(ctx context.Context, teacher domain.Identity) ([]domain.Quiz, error) {
	if !teacher.IsTeacher() {
		return nil, domain.ErrForbidden
	}
	return s.store.ListQuizzesByTeacher(ctx, teacher.ID)
}

// QuizResults returns every result of a quiz the teacher owns, with aggregate stats.
func (s *QuizService) QuizResults(ctx context.Context, teacher domain.Identity, quizID string) ([]domain.Result, domain.QuizStats, error) {
	if _, err := s.ownedQuiz(ctx, teacher, quizID); err != nil {
		return nil, domain.QuizStats{}, err
	}
	results, err := s.results.ListResultsForQuiz(ctx, quizID)
	if err != nil {
		return nil, domain.QuizStats{}, err
	}
	return results, ComputeStats(results), nil
}

// TeacherResults gathers results across the teacher's quizzes, optionally narrowed to one
// quiz and to a case-insensitive search over student name, email and quiz name.
func (s *QuizService) TeacherResults(ctx context.Context, teacher domain.Identity, quizID, search string) ([]domain.Result, domain.QuizStats, error) {
	quizzes, err := s.ListTeacherQuizzes(ctx, teacher)
	if err != nil {
		return nil, domain.QuizStats{}, err
	}
	var all []domain.Result
	for _, quiz := range quizzes {
		if quizID != "" && quiz.ID != quizID {
			continue
		}
		results, err := s.results.ListResultsForQuiz(ctx, quiz.ID)
		if err != nil {
			return nil, domain.QuizStats{}, err
		}
		all = append(all, results...)
	}
	sortByCompletion(all)
	filtered := FilterResults(all, "", search)
	return filtered, ComputeStats(filtered), nil
}

// TeacherDashboard aggregates attempts over all of the teacher's quizzes.
func (s *QuizService) TeacherDashboard(ctx context.Context, teacher domain.Identity) (domain.TeacherStats, error) {
	quizzes, err := s.ListTeacherQuizzes(ctx, teacher)
	if err != nil {
		return domain.TeacherStats{}, err
	}
	var all []domain.Result
	for _, quiz := range quizzes {
		results, err := s.results.ListResultsForQuiz(ctx, quiz.ID)
		if err != nil {
			return domain.TeacherStats{}, err
		}
		all = append(all, results...)
	}
	stats := ComputeStats(all)
	sortByCompletion(all)
	if len(all) > recentActivityLimit {
		all = all[:recentActivityLimit]
	}
	return domain.TeacherStats{
		TotalQuizzes:   len(quizzes),
		TotalStudents:  stats.UniqueStudents,
		TotalAttempts:  stats.TotalAttempts,
		AverageScore:   stats.AverageScore,
		RecentActivity: all,
	}, nil
}

// UserResults returns the user's results, newest first.
func (s *QuizService) UserResults(ctx context.Context, userID string) ([]domain.Result, error) {
	return s.results.ListResultsForUser(ctx, userID)
}

// UserStats backs the student dashboard.
func (s *QuizService) UserStats(ctx context.Context, userID string) (domain.UserStats, error) {
	results, err := s.results.ListResultsForUser(ctx, userID)
	if err != nil {
		return domain.UserStats{}, err
	}
	stats := domain.UserStats{TotalQuizzes: len(results)}
	if len(results) == 0 {
		stats.RecentResults = []domain.Result{}
		return stats, nil
	}
	total := 0
	for _, r := range results {
		total += r.Score
		stats.TotalTimeSpent += r.TimeSpent
		if r.Score > stats.BestScore {
			stats.BestScore = r.Score
		}
	}
	stats.AverageScore = percentage(total, len(results)*100)
	recent := append([]domain.Result(nil), results...)
	sortByCompletion(recent)
	if len(recent) > 5 {
		recent = recent[:5]
	}
	stats.RecentResults = recent
	return stats, nil
}

// QuizLeaderboard returns the ranked top results of a quiz.
func (s *QuizService) QuizLeaderboard(ctx context.Context, quizID string, limit int) (domain.Leaderboard, error) {
	results, err := s.results.LeaderboardForQuiz(ctx, quizID, clampLimit(limit))
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return domain.Leaderboard{QuizID: quizID, Entries: rank(results), UpdatedAt: s.now()}, nil
}

// GlobalLeaderboard returns the ranked top results across all quizzes.
func (s *QuizService) GlobalLeaderboard(ctx context.Context, limit int) (domain.Leaderboard, error) {
	results, err := s.results.GlobalLeaderboard(ctx, clampLimit(limit))
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return domain.Leaderboard{Entries: rank(results), UpdatedAt: s.now()}, nil
}

// UserRank is the 1-based position of the user's best entry in the quiz leaderboard,
// or 0 when the user is not on it.
func (s *QuizService) UserRank(ctx context.Context, quizID, userID string, limit int) (int, error) {
	lb, err := s.QuizLeaderboard(ctx, quizID, limit)
	if err != nil {
		return 0, err
	}
	for _, entry := range lb.Entries {
		if entry.UserID == userID {
			return entry.Rank, nil
		}
	}
	return 0, nil
}

func (s *QuizService) ownedQuiz(ctx context.Context, teacher domain.Identity, quizID string) (domain.Quiz, error) {
	if !teacher.IsTeacher() {
		return domain.Quiz{}, domain.ErrForbidden
	}
	quiz, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if quiz.CreatedByTeacherID != teacher.ID {
		return domain.Quiz{}, domain.ErrForbidden
	}
	return quiz, nil
}

// ComputeStats aggregates attempts: rounded average, distinct students and pass rate.
func ComputeStats(results []domain.Result) domain.QuizStats {
	if len(results) == 0 {
		return domain.QuizStats{}
	}
	total, passed := 0, 0
	students := make(map[string]struct{}, len(results))
	for _, r := range results {
		total += r.Score
		students[r.UserID] = struct{}{}
		if r.Score >= domain.PassingScore {
			passed++
		}
	}
	return domain.QuizStats{
		TotalAttempts:  len(results),
		AverageScore:   percentage(total, len(results)*100),
		UniqueStudents: len(students),
		PassRate:       percentage(passed, len(results)),
	}
}

// FilterResults keeps results of quizID (when set) matching search (when set).
func FilterResults(results []domain.Result, quizID, search string) []domain.Result {
	search = strings.ToLower(strings.TrimSpace(search))
	out := make([]domain.Result, 0, len(results))
	for _, r := range results {
		if quizID != "" && r.QuizID != quizID {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(r.UserName), search) &&
			!strings.Contains(strings.ToLower(r.UserEmail), search) &&
			!strings.Contains(strings.ToLower(r.QuizName), search) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func rank(results []domain.Result) []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(results))
	for i, r := range results {
		entries = append(entries, domain.LeaderboardEntry{Rank: i + 1, Result: r})
	}
	return entries
}

func sortByCompletion(results []domain.Result) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CompletedAt.After(results[j].CompletedAt)
	})
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLeaderboardLimit
	}
	if limit > maxLeaderboardLimit {
		return maxLeaderboardLimit
	}
	return limit
}
