package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"quicktestly/internal/app"
	"quicktestly/internal/domain"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type selectPayload struct {
	QuestionID string `json:"questionId"`
	Option     string `json:"option"`
}

type gotoPayload struct {
	Index int `json:"index"`
}

type submitPayload struct {
	Confirmed bool `json:"confirmed"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
	// Code is the HTTP status matching err, so clients can tell a missing quiz from an outage.
	Code int `json:"code,omitempty"`
}

type startedPayload struct {
	AttemptID      string            `json:"attemptId"`
	QuizID         string            `json:"quizId"`
	QuizName       string            `json:"quizName"`
	Description    string            `json:"description"`
	Questions      []domain.Question `json:"questions"`
	TotalQuestions int               `json:"totalQuestions"`
	Remaining      int               `json:"remaining"`
	CurrentIndex   int               `json:"currentIndex"`
}

type statePayload struct {
	CurrentIndex   int `json:"currentIndex"`
	AnsweredCount  int `json:"answeredCount"`
	TotalQuestions int `json:"totalQuestions"`
	Remaining      int `json:"remaining"`
}

type remainingPayload struct {
	Remaining int `json:"remaining"`
}

type confirmPayload struct {
	Unanswered int `json:"unanswered"`
}

type persistErrorPayload struct {
	Result  resultView `json:"result"`
	Message string     `json:"message"`
}

func errorMessage(msg string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg}}
}

func errorFor(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error(), Code: statusFor(err)}}
}

// attemptNotifier turns attempt signals into outbound messages. Timer signals are
// dropped when the client is not keeping up; everything else is delivered.
type attemptNotifier struct {
	mu     sync.Mutex
	closed bool
	send   chan outboundMessage[any]
}

func newAttemptNotifier() *attemptNotifier {
	return &attemptNotifier{send: make(chan outboundMessage[any], 32)}
}

func (n *attemptNotifier) OnWarning(remaining int) {
	n.offer(outboundMessage[any]{Type: "warning", Payload: remainingPayload{Remaining: remaining}})
}

func (n *attemptNotifier) OnTick(remaining int) {
	n.offer(outboundMessage[any]{Type: "tick", Payload: remainingPayload{Remaining: remaining}})
}

func (n *attemptNotifier) OnSubmitted(result domain.Result, err error) {
	var perr *domain.PersistenceError
	switch {
	case err == nil:
		n.deliver(outboundMessage[any]{Type: "result", Payload: resultView{Result: result, Grade: domain.Grade(result.Score)}})
	case errors.As(err, &perr):
		n.deliver(outboundMessage[any]{Type: "persistError", Payload: persistErrorPayload{
			Result:  resultView{Result: perr.Result, Grade: domain.Grade(perr.Result.Score)},
			Message: "your result could not be saved, retry to save it again",
		}})
	default:
		n.deliver(errorMessage(err.Error()))
	}
}

func (n *attemptNotifier) offer(msg outboundMessage[any]) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	select {
	case n.send <- msg:
	default:
	}
}

// deliver blocks until the writer takes msg. The writer drains until close.
func (n *attemptNotifier) deliver(msg outboundMessage[any]) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.send <- msg
}

func (n *attemptNotifier) close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.closed {
		n.closed = true
		close(n.send)
	}
}

// attemptWS upgrades the request and runs one quiz attempt over the connection.
// Closing the connection before submitting abandons the attempt.
func (h *Handler) attemptWS(c *gin.Context) {
	quizID := c.Query("quizId")
	if quizID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing quizId"})
		return
	}
	user := identity(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	notifier := newAttemptNotifier()
	attempt, err := h.attempts.StartAttempt(ctx, quizID, user, notifier)
	if err != nil {
		_ = conn.WriteJSON(errorFor(err))
		return
	}

	writerDone := make(chan struct{})

	// single writer; on failure it keeps draining so deliver never blocks forever
	go func() {
		defer close(writerDone)
		for msg := range notifier.send {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", zap.String("attempt_id", attempt.ID()), zap.Error(err))
				_ = conn.Close()
				for range notifier.send {
				}
				return
			}
		}
	}()

	presented := attempt.Quiz().WithoutAnswers()
	notifier.deliver(outboundMessage[any]{Type: "started", Payload: startedPayload{
		AttemptID:      attempt.ID(),
		QuizID:         presented.ID,
		QuizName:       presented.Name,
		Description:    presented.Description,
		Questions:      presented.Questions,
		TotalQuestions: len(presented.Questions),
		Remaining:      attempt.Remaining(),
		CurrentIndex:   attempt.CurrentIndex(),
	}})

	state := func() outboundMessage[any] {
		return outboundMessage[any]{Type: "state", Payload: statePayload{
			CurrentIndex:   attempt.CurrentIndex(),
			AnsweredCount:  attempt.AnsweredCount(),
			TotalQuestions: len(presented.Questions),
			Remaining:      attempt.Remaining(),
		}}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "select":
			var payload selectPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				notifier.deliver(errorMessage("invalid select payload"))
				continue
			}
			if err := attempt.Select(payload.QuestionID, payload.Option); err != nil {
				notifier.deliver(errorMessage(err.Error()))
				continue
			}
			notifier.deliver(state())
		case "goto":
			var payload gotoPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				notifier.deliver(errorMessage("invalid goto payload"))
				continue
			}
			attempt.GoToQuestion(payload.Index)
			notifier.deliver(state())
		case "next":
			attempt.Next()
			notifier.deliver(state())
		case "previous":
			attempt.Previous()
			notifier.deliver(state())
		case "submit":
			var payload submitPayload
			if len(inbound.Payload) > 0 {
				if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
					notifier.deliver(errorMessage("invalid submit payload"))
					continue
				}
			}
			// the outcome itself reaches the client through OnSubmitted
			_, err := attempt.Submit(ctx, app.SubmitOptions{Confirmed: payload.Confirmed})
			var unanswered *domain.UnansweredError
			switch {
			case errors.As(err, &unanswered):
				notifier.deliver(outboundMessage[any]{Type: "confirm", Payload: confirmPayload{Unanswered: unanswered.Unanswered}})
			case errors.Is(err, domain.ErrAttemptClosed):
				notifier.deliver(errorMessage(err.Error()))
			}
		case "retry":
			if _, err := attempt.RetryPersist(ctx); errors.Is(err, domain.ErrNothingToRetry) {
				notifier.deliver(errorMessage(err.Error()))
			}
		default:
			notifier.deliver(errorMessage("unsupported message type"))
		}
	}

	attempt.Abandon()
	notifier.close()
	<-writerDone
}

// leaderboardWS streams a quiz leaderboard until the client goes away.
func (h *Handler) leaderboardWS(c *gin.Context) {
	quizID := c.Query("quizId")
	if quizID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing quizId"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	updates, cancel, err := h.hub.Subscribe(c.Request.Context(), quizID)
	if err != nil {
		_ = conn.WriteJSON(errorFor(err))
		return
	}
	defer cancel()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case lb, ok := <-updates:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(outboundMessage[domain.Leaderboard]{Type: "leaderboard", Payload: lb}); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}
