package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"quicktestly/internal/domain"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RoutingKeyResultSubmitted is the routing key of result events.
const RoutingKeyResultSubmitted = "result.submitted"

// ResultSubmittedEvent is the body published for every saved result.
type ResultSubmittedEvent struct {
	Type           string    `json:"type"`
	ResultID       string    `json:"resultId"`
	QuizID         string    `json:"quizId"`
	QuizName       string    `json:"quizName"`
	UserID         string    `json:"userId"`
	Score          int       `json:"score"`
	CorrectAnswers int       `json:"correctAnswers"`
	TotalQuestions int       `json:"totalQuestions"`
	TimeSpent      int       `json:"timeSpent"`
	AutoSubmitted  bool      `json:"autoSubmitted"`
	CompletedAt    time.Time `json:"completedAt"`
}

// NewResultSubmittedEvent builds the event body from a saved result.
func NewResultSubmittedEvent(r domain.Result) ResultSubmittedEvent {
	return ResultSubmittedEvent{
		Type:           RoutingKeyResultSubmitted,
		ResultID:       r.ID,
		QuizID:         r.QuizID,
		QuizName:       r.QuizName,
		UserID:         r.UserID,
		Score:          r.Score,
		CorrectAnswers: r.CorrectAnswers,
		TotalQuestions: r.TotalQuestions,
		TimeSpent:      r.TimeSpent,
		AutoSubmitted:  r.AutoSubmitted,
		CompletedAt:    r.CompletedAt,
	}
}

// channel is the subset of *amqp091.Channel the publisher needs.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Publisher sends result events to a topic exchange.
type Publisher struct {
	conn     *amqp091.Connection
	ch       channel
	exchange string
	logger   *zap.Logger
}

// NewPublisher dials RabbitMQ and declares a durable topic exchange.
func NewPublisher(uri, exchange string, logger *zap.Logger) (*Publisher, error) {
	conn, err := amqp091.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	return &Publisher{conn: conn, ch: ch, exchange: exchange, logger: logger}, nil
}

// newPublisherWithChannel wires a publisher around an existing channel (tests).
func newPublisherWithChannel(ch channel, exchange string, logger *zap.Logger) *Publisher {
	return &Publisher{ch: ch, exchange: exchange, logger: logger}
}

// PublishResultSubmitted implements app.ResultPublisher.
func (p *Publisher) PublishResultSubmitted(ctx context.Context, result domain.Result) error {
	body, err := json.Marshal(NewResultSubmittedEvent(result))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = p.ch.PublishWithContext(pubCtx, p.exchange, RoutingKeyResultSubmitted, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		MessageId:    result.ID,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	p.logger.Debug("published event", zap.String("routing_key", RoutingKeyResultSubmitted), zap.String("result_id", result.ID))
	return nil
}

// Close releases the channel and connection.
func (p *Publisher) Close() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}
