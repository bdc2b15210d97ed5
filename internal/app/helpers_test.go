package app_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"quicktestly/internal/app"
	"quicktestly/internal/domain"
	"quicktestly/internal/infra/memory"
)

// fourQuestionQuiz has q1..q4 with options A-D; the correct answer is always "A".
func fourQuestionQuiz(id string, minutes int) domain.Quiz {
	questions := make([]domain.Question, 0, 4)
	for i := 1; i <= 4; i++ {
		questions = append(questions, domain.Question{
			ID:            fmt.Sprintf("q%d", i),
			Text:          fmt.Sprintf("Question %d", i),
			Options:       []string{"A", "B", "C", "D"},
			CorrectAnswer: "A",
		})
	}
	return domain.Quiz{
		ID:                 id,
		Name:               "Sample " + id,
		Description:        "four questions",
		TimeLimit:          minutes,
		IsPublic:           true,
		Questions:          questions,
		QuestionCount:      len(questions),
		CreatedByTeacherID: "t1",
	}
}

var student = domain.Identity{ID: "u1", Name: "Alice", Email: "alice@example.com", Role: domain.RoleUser}

// manualTicks never ticks on its own; tests push ticks through the returned channel.
func manualTicks() (app.TickSource, chan<- time.Time) {
	ch := make(chan time.Time)
	return func() (<-chan time.Time, func()) { return ch, func() {} }, ch
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type submission struct {
	result domain.Result
	err    error
}

type recordingNotifier struct {
	mu        sync.Mutex
	warnings  []int
	ticks     []int
	submitted chan submission
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{submitted: make(chan submission, 4)}
}

func (n *recordingNotifier) OnWarning(remaining int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.warnings = append(n.warnings, remaining)
}

func (n *recordingNotifier) OnTick(remaining int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ticks = append(n.ticks, remaining)
}

func (n *recordingNotifier) OnSubmitted(result domain.Result, err error) {
	n.submitted <- submission{result: result, err: err}
}

func (n *recordingNotifier) signals() ([]int, []int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]int(nil), n.warnings...), append([]int(nil), n.ticks...)
}

func (n *recordingNotifier) wait() (submission, error) {
	select {
	case s := <-n.submitted:
		return s, nil
	case <-time.After(5 * time.Second):
		return submission{}, fmt.Errorf("no submission within 5s")
	}
}

// flakyResults fails SubmitResult while fail is set.
type flakyResults struct {
	*memory.ResultStore
	mu   sync.Mutex
	fail bool
}

func (f *flakyResults) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

func (f *flakyResults) SubmitResult(ctx context.Context, result domain.Result) (string, error) {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return "", domain.Transient("insert result", fmt.Errorf("connection refused"))
	}
	return f.ResultStore.SubmitResult(ctx, result)
}

type testEnv struct {
	quizzes  *memory.QuizStore
	results  *memory.ResultStore
	attempts *memory.AttemptStore
	clock    *fakeClock
	ticks    chan<- time.Time
	service  *app.AttemptService
}

func newTestEnv(results app.ResultStore, opts ...app.AttemptOption) *testEnv {
	env := &testEnv{
		quizzes:  memory.NewQuizStore(fourQuestionQuiz("quiz-1", 1)),
		attempts: memory.NewAttemptStore(),
		clock:    newFakeClock(),
	}
	if results == nil {
		env.results = memory.NewResultStore()
		results = env.results
	}
	source, ticks := manualTicks()
	env.ticks = ticks
	base := []app.AttemptOption{app.WithClock(env.clock.Now), app.WithTickSource(source)}
	env.service = app.NewAttemptService(
		memory.NewQuizRepository(env.quizzes, time.Minute),
		results,
		env.attempts,
		nil,
		append(base, opts...)...,
	)
	return env
}
