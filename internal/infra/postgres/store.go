package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"quicktestly/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuizStore keeps quiz documents as JSONB rows.
type QuizStore struct {
	pool *pgxpool.Pool
}

func NewQuizStore(pool *pgxpool.Pool) *QuizStore {
	return &QuizStore{pool: pool}
}

func (s *QuizStore) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM quizzes WHERE id=$1`, quizID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, domain.Transient("load quiz", err)
	}
	return decodeQuiz(raw)
}

func (s *QuizStore) ListPublicQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	return s.query(ctx, `SELECT data FROM quizzes WHERE is_public ORDER BY created_at DESC`)
}

func (s *QuizStore) ListQuizzesByTeacher(ctx context.Context, teacherID string) ([]domain.Quiz, error) {
	return s.query(ctx, `SELECT data FROM quizzes WHERE teacher_id=$1 ORDER BY created_at DESC`, teacherID)
}

func (s *QuizStore) CreateQuiz(ctx context.Context, quiz domain.Quiz) (string, error) {
	if quiz.ID == "" {
		quiz.ID = uuid.NewString()
	}
	data, err := json.Marshal(quiz)
	if err != nil {
		return "", fmt.Errorf("marshal quiz: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO quizzes (id, teacher_id, is_public, created_at, data) VALUES ($1, $2, $3, $4, $5)`,
		quiz.ID, quiz.CreatedByTeacherID, quiz.IsPublic, quiz.CreatedAt, data)
	if err != nil {
		return "", domain.Transient("insert quiz", err)
	}
	return quiz.ID, nil
}

func (s *QuizStore) UpdateQuiz(ctx context.Context, quiz domain.Quiz) error {
	data, err := json.Marshal(quiz)
	if err != nil {
		return fmt.Errorf("marshal quiz: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE quizzes SET is_public=$2, data=$3 WHERE id=$1`,
		quiz.ID, quiz.IsPublic, data)
	if err != nil {
		return domain.Transient("update quiz", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func (s *QuizStore) DeleteQuiz(ctx context.Context, quizID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM quizzes WHERE id=$1`, quizID)
	if err != nil {
		return domain.Transient("delete quiz", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func (s *QuizStore) query(ctx context.Context, sql string, args ...interface{}) ([]domain.Quiz, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, domain.Transient("list quizzes", err)
	}
	defer rows.Close()

	quizzes := []domain.Quiz{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		quiz, err := decodeQuiz(raw)
		if err != nil {
			return nil, err
		}
		quizzes = append(quizzes, quiz)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Transient("list quizzes", err)
	}
	return quizzes, nil
}

func decodeQuiz(raw []byte) (domain.Quiz, error) {
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	return quiz, nil
}

// ResultStore keeps result documents as JSONB rows with the ranking columns broken out.
type ResultStore struct {
	pool *pgxpool.Pool
}

func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

func (s *ResultStore) SubmitResult(ctx context.Context, result domain.Result) (string, error) {
	result.ID = uuid.NewString()
	data, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO results (id, quiz_id, user_id, score, time_spent, completed_at, data) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		result.ID, result.QuizID, result.UserID, result.Score, result.TimeSpent, result.CompletedAt, data)
	if err != nil {
		return "", domain.Transient("insert result", err)
	}
	return result.ID, nil
}

func (s *ResultStore) ListResultsForQuiz(ctx context.Context, quizID string) ([]domain.Result, error) {
	return s.query(ctx, `SELECT data FROM results WHERE quiz_id=$1 ORDER BY completed_at DESC`, quizID)
}

func (s *ResultStore) ListResultsForUser(ctx context.Context, userID string) ([]domain.Result, error) {
	return s.query(ctx, `SELECT data FROM results WHERE user_id=$1 ORDER BY completed_at DESC`, userID)
}

func (s *ResultStore) LeaderboardForQuiz(ctx context.Context, quizID string, limit int) ([]domain.Result, error) {
	return s.query(ctx,
		`SELECT data FROM results WHERE quiz_id=$1 ORDER BY score DESC, time_spent ASC, completed_at ASC LIMIT $2`,
		quizID, limit)
}

func (s *ResultStore) GlobalLeaderboard(ctx context.Context, limit int) ([]domain.Result, error) {
	return s.query(ctx,
		`SELECT data FROM results ORDER BY score DESC, time_spent ASC, completed_at ASC LIMIT $1`,
		limit)
}

func (s *ResultStore) query(ctx context.Context, sql string, args ...interface{}) ([]domain.Result, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, domain.Transient("list results", err)
	}
	defer rows.Close()

	results := []domain.Result{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		var result domain.Result
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Transient("list results", err)
	}
	return results, nil
}
