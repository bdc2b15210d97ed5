package app_test

import (
	"context"
	"testing"
	"time"

	"quicktestly/internal/app"
	"quicktestly/internal/domain"
	"quicktestly/internal/infra/memory"
)

func TestHubBroadcastsToSubscribers(t *testing.T) {
	ctx := context.Background()
	results := memory.NewResultStore()
	hub := app.NewLeaderboardHub(results, 3, nil)

	a, cancelA, err := hub.Subscribe(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancelA()
	b, cancelB, _ := hub.Subscribe(ctx, "quiz-1")
	<-a
	<-b
	if hub.Subscribers("quiz-1") != 2 {
		t.Fatalf("expected 2 subscribers")
	}

	for i, score := range []int{10, 80, 50, 99} {
		_, _ = results.SubmitResult(ctx, domain.Result{QuizID: "quiz-1", UserID: string(rune('a' + i)), Score: score, CompletedAt: time.Now()})
	}
	hub.Publish(ctx, "quiz-1")

	for _, ch := range []<-chan domain.Leaderboard{a, b} {
		select {
		case lb := <-ch:
			if len(lb.Entries) != 3 || lb.Entries[0].Score != 99 || lb.Entries[2].Score != 50 {
				t.Fatalf("unexpected board %+v", lb.Entries)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber missed the update")
		}
	}

	cancelB()
	cancelB()
	if hub.Subscribers("quiz-1") != 1 {
		t.Fatalf("cancel should remove the subscriber")
	}
	if _, ok := <-b; ok {
		t.Fatalf("cancelled channel should be closed")
	}
}

func TestHubKeepsLatestForSlowSubscribers(t *testing.T) {
	ctx := context.Background()
	results := memory.NewResultStore()
	hub := app.NewLeaderboardHub(results, 10, nil)

	ch, cancel, _ := hub.Subscribe(ctx, "quiz-1")
	defer cancel()

	for i := 0; i < 20; i++ {
		_, _ = results.SubmitResult(ctx, domain.Result{QuizID: "quiz-1", UserID: "u", Score: i, CompletedAt: time.Now()})
		hub.Publish(ctx, "quiz-1")
	}

	var last domain.Leaderboard
	for {
		select {
		case lb := <-ch:
			last = lb
			continue
		default:
		}
		break
	}
	if len(last.Entries) == 0 || last.Entries[0].Score != 19 {
		t.Fatalf("latest update lost, got %+v", last.Entries)
	}
}

func TestHubPublishWithoutSubscribersIsNoop(t *testing.T) {
	hub := app.NewLeaderboardHub(memory.NewResultStore(), 0, nil)
	hub.Publish(context.Background(), "nobody-listens")
	if hub.Subscribers("nobody-listens") != 0 {
		t.Fatalf("publish must not create topics")
	}
}
