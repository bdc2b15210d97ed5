package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"quicktestly/internal/domain"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type fakeChannel struct {
	exchange string
	key      string
	msg      amqp091.Publishing
	err      error
	closed   bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp091.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return f.err
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestPublishResultSubmitted(t *testing.T) {
	ch := &fakeChannel{}
	p := newPublisherWithChannel(ch, "quiz.events", zap.NewNop())

	result := domain.Result{
		ID:             "r1",
		QuizID:         "quiz-1",
		UserID:         "u1",
		Score:          75,
		CorrectAnswers: 3,
		TotalQuestions: 4,
		TimeSpent:      90,
		AutoSubmitted:  true,
		CompletedAt:    time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC),
	}
	if err := p.PublishResultSubmitted(context.Background(), result); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if ch.exchange != "quiz.events" || ch.key != RoutingKeyResultSubmitted {
		t.Fatalf("published to %s/%s", ch.exchange, ch.key)
	}
	if ch.msg.MessageId != "r1" || ch.msg.DeliveryMode != amqp091.Persistent {
		t.Fatalf("unexpected publishing %+v", ch.msg)
	}

	var event ResultSubmittedEvent
	if err := json.Unmarshal(ch.msg.Body, &event); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if event.Type != RoutingKeyResultSubmitted || event.Score != 75 || !event.AutoSubmitted {
		t.Fatalf("unexpected event %+v", event)
	}

	p.Close()
	if !ch.closed {
		t.Fatalf("close should release the channel")
	}
}

func TestPublishFailureIsReturned(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	p := newPublisherWithChannel(ch, "quiz.events", zap.NewNop())
	if err := p.PublishResultSubmitted(context.Background(), domain.Result{ID: "r1"}); err == nil {
		t.Fatalf("expected publish error")
	}
}
