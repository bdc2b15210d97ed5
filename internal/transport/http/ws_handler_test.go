package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"quicktestly/internal/app"
	"quicktestly/internal/domain"
	"quicktestly/internal/infra/memory"
	"quicktestly/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var (
	alice   = domain.Identity{ID: "u1", Name: "Alice", Email: "alice@example.com", Role: domain.RoleUser}
	teacher = domain.Identity{ID: "t1", Name: "Ms Smith", Email: "smith@example.com", Role: domain.RoleTeacher}
)

type testServer struct {
	server  *httptest.Server
	auth    *Authenticator
	quizzes *memory.QuizStore
	results *memory.ResultStore
	ticks   chan time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := &testServer{
		auth:    NewAuthenticator("test-secret"),
		quizzes: memory.NewQuizStore(sampleQuiz()),
		results: memory.NewResultStore(),
		ticks:   make(chan time.Time),
	}
	repo := memory.NewQuizRepository(ts.quizzes, time.Minute)
	attempts := memory.NewAttemptStore()
	hub := app.NewLeaderboardHub(ts.results, 10, nil)
	source := func() (<-chan time.Time, func()) { return ts.ticks, func() {} }
	attemptService := app.NewAttemptService(repo, ts.results, attempts, nil, app.WithHub(hub), app.WithTickSource(source))
	quizService := app.NewQuizService(ts.quizzes, repo, ts.results, nil)

	done := make(chan struct{})
	handler := NewHandler(quizService, attemptService, hub, attempts, ts.auth, nil)
	ts.server = httptest.NewServer(handler.Router(RouterOptions{
		Mode:      gin.TestMode,
		RateLimit: 1000,
		Metrics:   metrics.New(),
		Done:      done,
	}))
	t.Cleanup(func() {
		attemptService.Shutdown()
		ts.server.Close()
		close(done)
	})
	return ts
}

func (ts *testServer) token(t *testing.T, id domain.Identity) string {
	t.Helper()
	token, err := ts.auth.Issue(id, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (ts *testServer) dial(t *testing.T, path string, query url.Values) *websocket.Conn {
	t.Helper()
	u := "ws" + ts.server.URL[len("http"):] + path + "?" + query.Encode()
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketAttemptFlow(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t, "/ws/attempt", url.Values{"quizId": {"quiz-1"}, "token": {ts.token(t, alice)}})

	_, started := readNext(conn, t, "started")
	questions, _ := started["questions"].([]any)
	if len(questions) != 2 || started["remaining"] != float64(60) {
		t.Fatalf("unexpected started payload %v", started)
	}
	for _, q := range questions {
		if _, leaked := q.(map[string]any)["correctAnswer"]; leaked {
			t.Fatalf("correct answer sent to the client")
		}
	}

	send(t, conn, "select", map[string]any{"questionId": "q1", "option": "4"})
	_, state := readNext(conn, t, "state")
	if state["answeredCount"] != float64(1) {
		t.Fatalf("expected 1 answered, got %v", state)
	}

	send(t, conn, "select", map[string]any{"questionId": "q1", "option": "42"})
	readNext(conn, t, "error")

	send(t, conn, "next", nil)
	_, state = readNext(conn, t, "state")
	if state["currentIndex"] != float64(1) {
		t.Fatalf("expected index 1, got %v", state)
	}

	send(t, conn, "submit", map[string]any{})
	_, confirm := readNext(conn, t, "confirm")
	if confirm["unanswered"] != float64(1) {
		t.Fatalf("expected 1 unanswered, got %v", confirm)
	}

	send(t, conn, "submit", map[string]any{"confirmed": true})
	_, result := readNext(conn, t, "result")
	if result["score"] != float64(50) || result["grade"] != "D" || result["autoSubmitted"] != false {
		t.Fatalf("unexpected result %v", result)
	}

	send(t, conn, "submit", map[string]any{"confirmed": true})
	readNext(conn, t, "error")

	stored, _ := ts.results.ListResultsForUser(context.Background(), alice.ID)
	if len(stored) != 1 || stored[0].Answers["q1"] != "4" {
		t.Fatalf("expected one stored result, got %+v", stored)
	}
}

func TestWebSocketAutoSubmitsOnExpiry(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t, "/ws/attempt", url.Values{"quizId": {"quiz-1"}, "token": {ts.token(t, alice)}})
	readNext(conn, t, "started")

	for i := 0; i < 60; i++ {
		ts.ticks <- time.Now()
	}

	seen := map[string]int{}
	for {
		typ, payload := readNext(conn, t, "")
		seen[typ]++
		if typ == "result" {
			if payload["autoSubmitted"] != true || payload["score"] != float64(0) {
				t.Fatalf("unexpected auto-submitted result %v", payload)
			}
			break
		}
	}
	if seen["warning"] != 1 || seen["tick"] == 0 {
		t.Fatalf("expected a warning and ticks before the result, got %v", seen)
	}
}

func TestWebSocketRequiresToken(t *testing.T) {
	ts := newTestServer(t)
	u := "ws" + ts.server.URL[len("http"):] + "/ws/attempt?quizId=quiz-1"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestWebSocketUnknownQuiz(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t, "/ws/attempt", url.Values{"quizId": {"nope"}, "token": {ts.token(t, alice)}})
	_, payload := readNext(conn, t, "error")
	if payload["code"] != float64(http.StatusNotFound) {
		t.Fatalf("expected code 404 so the client can redirect, got %v", payload)
	}
}

func TestWebSocketTransientStartFailure(t *testing.T) {
	got := errorFor(domain.Transient("load quiz", errors.New("timeout")))
	payload, ok := got.Payload.(errorPayload)
	if !ok || got.Type != "error" || payload.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected a 503 error message, got %+v", got)
	}
}

func TestLeaderboardStream(t *testing.T) {
	ts := newTestServer(t)
	board := ts.dial(t, "/ws/leaderboard", url.Values{"quizId": {"quiz-1"}, "token": {ts.token(t, teacher)}})
	_, initial := readNext(board, t, "leaderboard")
	if entries, _ := initial["entries"].([]any); len(entries) != 0 {
		t.Fatalf("expected empty board, got %v", initial)
	}

	conn := ts.dial(t, "/ws/attempt", url.Values{"quizId": {"quiz-1"}, "token": {ts.token(t, alice)}})
	readNext(conn, t, "started")
	send(t, conn, "select", map[string]any{"questionId": "q1", "option": "4"})
	readNext(conn, t, "state")
	send(t, conn, "select", map[string]any{"questionId": "q2", "option": "Paris"})
	readNext(conn, t, "state")
	send(t, conn, "submit", nil)
	readNext(conn, t, "result")

	_, update := readNext(board, t, "leaderboard")
	entries, _ := update["entries"].([]any)
	if len(entries) != 1 {
		t.Fatalf("expected one leaderboard entry, got %v", update)
	}
	entry := entries[0].(map[string]any)
	if entry["userId"] != alice.ID || entry["score"] != float64(100) || entry["rank"] != float64(1) {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	msg := map[string]any{"type": typ}
	if payload != nil {
		msg["payload"] = payload
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s (%v)", expect, msg.Type, msg.Payload)
	}
	return msg.Type, msg.Payload
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:          "quiz-1",
		Name:        "Warm-up",
		Description: "Two quick questions",
		TimeLimit:   1,
		IsPublic:    true,
		Questions: []domain.Question{
			{ID: "q1", Text: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectAnswer: "4"},
			{ID: "q2", Text: "Capital of France?", Options: []string{"Paris", "Rome"}, CorrectAnswer: "Paris"},
		},
		QuestionCount:      2,
		CreatedByTeacherID: teacher.ID,
		CreatedAt:          time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC),
	}
}
