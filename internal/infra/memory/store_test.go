package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"quicktestly/internal/domain"
)

func TestQuizStoreCRUD(t *testing.T) {
	ctx := context.Background()
	store := NewQuizStore()

	quiz := sampleQuiz()
	quiz.ID = ""
	id, err := store.CreateQuiz(ctx, quiz)
	if err != nil || id == "" {
		t.Fatalf("create: %q %v", id, err)
	}

	got, err := store.GetQuiz(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.Questions[0].Options[0] = "mutated"
	again, _ := store.GetQuiz(ctx, id)
	if again.Questions[0].Options[0] != "3" {
		t.Fatalf("store handed out shared state")
	}

	again.Name = "Renamed"
	if err := store.UpdateQuiz(ctx, again); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := store.UpdateQuiz(ctx, domain.Quiz{ID: "missing"}); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected not found on update, got %v", err)
	}

	mine, _ := store.ListQuizzesByTeacher(ctx, "t1")
	if len(mine) != 1 || mine[0].Name != "Renamed" {
		t.Fatalf("unexpected teacher list %+v", mine)
	}

	if err := store.DeleteQuiz(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.DeleteQuiz(ctx, id); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestQuizStoreListsPublicNewestFirst(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	older := sampleQuiz()
	older.ID, older.CreatedAt = "older", base
	newer := sampleQuiz()
	newer.ID, newer.CreatedAt = "newer", base.Add(time.Hour)
	private := sampleQuiz()
	private.ID, private.IsPublic = "private", false

	store := NewQuizStore(older, newer, private)
	public, _ := store.ListPublicQuizzes(ctx)
	if len(public) != 2 || public[0].ID != "newer" || public[1].ID != "older" {
		t.Fatalf("unexpected public list %+v", public)
	}
}

func TestResultStoreLeaderboards(t *testing.T) {
	ctx := context.Background()
	store := NewResultStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	seed := []domain.Result{
		{QuizID: "q", UserID: "a", Score: 80, TimeSpent: 100, CompletedAt: base},
		{QuizID: "q", UserID: "b", Score: 80, TimeSpent: 50, CompletedAt: base.Add(time.Minute)},
		{QuizID: "q", UserID: "c", Score: 80, TimeSpent: 50, CompletedAt: base.Add(2 * time.Minute)},
		{QuizID: "other", UserID: "a", Score: 100, TimeSpent: 500, CompletedAt: base},
	}
	for _, r := range seed {
		id, err := store.SubmitResult(ctx, r)
		if err != nil || id == "" {
			t.Fatalf("submit: %q %v", id, err)
		}
	}

	lb, _ := store.LeaderboardForQuiz(ctx, "q", 10)
	if len(lb) != 3 || lb[0].UserID != "b" || lb[1].UserID != "c" || lb[2].UserID != "a" {
		t.Fatalf("unexpected order %+v", lb)
	}
	global, _ := store.GlobalLeaderboard(ctx, 2)
	if len(global) != 2 || global[0].QuizID != "other" {
		t.Fatalf("unexpected global %+v", global)
	}

	mine, _ := store.ListResultsForUser(ctx, "a")
	if len(mine) != 2 {
		t.Fatalf("expected 2 results for a, got %d", len(mine))
	}
	forQuiz, _ := store.ListResultsForQuiz(ctx, "q")
	if len(forQuiz) != 3 || forQuiz[0].UserID != "c" {
		t.Fatalf("quiz results should be newest first, got %+v", forQuiz)
	}
}
