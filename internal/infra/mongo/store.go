package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quicktestly/internal/domain"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Connect opens a client and verifies it with a ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// EnsureIndexes creates the indexes backing listings and leaderboards.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("quizzes").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "is_public", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "created_by_teacher_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("quiz indexes: %w", err)
	}
	_, err = db.Collection("results").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "quiz_id", Value: 1}, {Key: "score", Value: -1}, {Key: "time_spent", Value: 1}}},
		{Keys: bson.D{{Key: "score", Value: -1}, {Key: "time_spent", Value: 1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "completed_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("result indexes: %w", err)
	}
	return nil
}

var leaderboardSort = bson.D{
	{Key: "score", Value: -1},
	{Key: "time_spent", Value: 1},
	{Key: "completed_at", Value: 1},
}

// QuizStore keeps quizzes in the "quizzes" collection.
type QuizStore struct {
	col *mongo.Collection
}

func NewQuizStore(db *mongo.Database) *QuizStore {
	return &QuizStore{col: db.Collection("quizzes")}
}

func (s *QuizStore) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := s.col.FindOne(ctx, bson.M{"_id": quizID}).Decode(&quiz)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, domain.Transient("find quiz", err)
	}
	return quiz, nil
}

func (s *QuizStore) ListPublicQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	return s.find(ctx, bson.M{"is_public": true})
}

func (s *QuizStore) ListQuizzesByTeacher(ctx context.Context, teacherID string) ([]domain.Quiz, error) {
	return s.find(ctx, bson.M{"created_by_teacher_id": teacherID})
}

func (s *QuizStore) CreateQuiz(ctx context.Context, quiz domain.Quiz) (string, error) {
	if quiz.ID == "" {
		quiz.ID = uuid.NewString()
	}
	if _, err := s.col.InsertOne(ctx, quiz); err != nil {
		return "", domain.Transient("insert quiz", err)
	}
	return quiz.ID, nil
}

func (s *QuizStore) UpdateQuiz(ctx context.Context, quiz domain.Quiz) error {
	res, err := s.col.ReplaceOne(ctx, bson.M{"_id": quiz.ID}, quiz)
	if err != nil {
		return domain.Transient("replace quiz", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func (s *QuizStore) DeleteQuiz(ctx context.Context, quizID string) error {
	res, err := s.col.DeleteOne(ctx, bson.M{"_id": quizID})
	if err != nil {
		return domain.Transient("delete quiz", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func (s *QuizStore) find(ctx context.Context, filter bson.M) ([]domain.Quiz, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, domain.Transient("find quizzes", err)
	}
	defer cur.Close(ctx)
	quizzes := []domain.Quiz{}
	if err := cur.All(ctx, &quizzes); err != nil {
		return nil, fmt.Errorf("decode quizzes: %w", err)
	}
	return quizzes, nil
}

// ResultStore keeps results in the "results" collection.
type ResultStore struct {
	col *mongo.Collection
}

func NewResultStore(db *mongo.Database) *ResultStore {
	return &ResultStore{col: db.Collection("results")}
}

func (s *ResultStore) SubmitResult(ctx context.Context, result domain.Result) (string, error) {
	result.ID = uuid.NewString()
	if _, err := s.col.InsertOne(ctx, result); err != nil {
		return "", domain.Transient("insert result", err)
	}
	return result.ID, nil
}

func (s *ResultStore) ListResultsForQuiz(ctx context.Context, quizID string) ([]domain.Result, error) {
	return s.find(ctx, bson.M{"quiz_id": quizID}, options.Find().SetSort(bson.D{{Key: "completed_at", Value: -1}}))
}

func (s *ResultStore) ListResultsForUser(ctx context.Context, userID string) ([]domain.Result, error) {
	return s.find(ctx, bson.M{"user_id": userID}, options.Find().SetSort(bson.D{{Key: "completed_at", Value: -1}}))
}

func (s *ResultStore) LeaderboardForQuiz(ctx context.Context, quizID string, limit int) ([]domain.Result, error) {
	return s.find(ctx, bson.M{"quiz_id": quizID}, options.Find().SetSort(leaderboardSort).SetLimit(int64(limit)))
}

func (s *ResultStore) GlobalLeaderboard(ctx context.Context, limit int) ([]domain.Result, error) {
	return s.find(ctx, bson.M{}, options.Find().SetSort(leaderboardSort).SetLimit(int64(limit)))
}

func (s *ResultStore) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.Result, error) {
	cur, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, domain.Transient("find results", err)
	}
	defer cur.Close(ctx)
	results := []domain.Result{}
	if err := cur.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	return results, nil
}
