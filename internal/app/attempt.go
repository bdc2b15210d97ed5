package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"quicktestly/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AttemptRepository tracks live attempts (in-memory, Redis, etc).
type AttemptRepository interface {
	Put(attempt *Attempt)
	Get(attemptID string) (*Attempt, bool)
	Delete(attemptID string)
	List() []*Attempt
}

// ResultPublisher announces persisted results to other services.
type ResultPublisher interface {
	PublishResultSubmitted(ctx context.Context, result domain.Result) error
}

// Recorder receives attempt lifecycle counters.
type Recorder interface {
	AttemptStarted()
	AttemptSubmitted(auto bool)
	AttemptAbandoned()
	PersistFailed()
}

// AttemptNotifier receives the signals of a running attempt. OnWarning and OnTick are
// called from the timer and must not block.
type AttemptNotifier interface {
	OnWarning(remaining int)
	OnTick(remaining int)
	OnSubmitted(result domain.Result, err error)
}

// SubmitOptions controls Attempt.Submit.
type SubmitOptions struct {
	// Forced skips the unanswered-questions confirmation. Timer expiry submits forced.
	Forced bool
	// Confirmed is the caller's answer to a previous confirmation prompt.
	Confirmed bool
}

// AttemptOption customizes an AttemptService.
type AttemptOption func(*AttemptService)

func WithPublisher(p ResultPublisher) AttemptOption {
	return func(s *AttemptService) { s.publisher = p }
}

func WithHub(h *LeaderboardHub) AttemptOption {
	return func(s *AttemptService) { s.hub = h }
}

func WithRecorder(r Recorder) AttemptOption {
	return func(s *AttemptService) { s.recorder = r }
}

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) AttemptOption {
	return func(s *AttemptService) { s.now = now }
}

// WithTickSource replaces the one-second ticker driving attempt timers.
func WithTickSource(src TickSource) AttemptOption {
	return func(s *AttemptService) { s.tickSource = src }
}

// WithForwardOnly forbids moving back to earlier questions.
func WithForwardOnly(forwardOnly bool) AttemptOption {
	return func(s *AttemptService) { s.forwardOnly = forwardOnly }
}

// WithPersistTimeout bounds the result save issued by an auto-submit.
func WithPersistTimeout(d time.Duration) AttemptOption {
	return func(s *AttemptService) { s.persistTimeout = d }
}

// AttemptService starts attempts and owns what they need to finish: result storage,
// event publishing and leaderboard fan-out.
type AttemptService struct {
	quizzes  QuizRepository
	results  ResultStore
	attempts AttemptRepository
	logger   *zap.Logger

	publisher      ResultPublisher
	hub            *LeaderboardHub
	recorder       Recorder
	now            func() time.Time
	tickSource     TickSource
	forwardOnly    bool
	persistTimeout time.Duration
}

func NewAttemptService(quizzes QuizRepository, results ResultStore, attempts AttemptRepository, logger *zap.Logger, opts ...AttemptOption) *AttemptService {
	s := &AttemptService{
		quizzes:        quizzes,
		results:        results,
		attempts:       attempts,
		logger:         logger,
		recorder:       nopRecorder{},
		now:            time.Now,
		tickSource:     EveryTicker(time.Second),
		persistTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// StartAttempt fetches the quiz once, shuffles it and starts the countdown.
func (s *AttemptService) StartAttempt(ctx context.Context, quizID string, user domain.Identity, notifier AttemptNotifier) (*Attempt, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if err := validateAttemptQuiz(quiz); err != nil {
		return nil, err
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}

	a := &Attempt{
		id:          uuid.NewString(),
		quiz:        ShuffleQuiz(quiz),
		user:        user,
		startedAt:   s.now(),
		service:     s,
		notifier:    notifier,
		forwardOnly: s.forwardOnly,
		baseCtx:     context.WithoutCancel(ctx),
		ledger:      NewLedger(),
	}
	a.timer = NewTimer(quiz.TimeLimitSeconds(), s.tickSource, TimerHooks{
		OnWarning: notifier.OnWarning,
		OnTick:    notifier.OnTick,
		OnExpire:  a.expire,
	})

	s.attempts.Put(a)
	s.recorder.AttemptStarted()
	a.timer.Start()

	s.logger.Info("attempt started",
		zap.String("attempt_id", a.id),
		zap.String("quiz_id", quiz.ID),
		zap.String("user_id", user.ID),
		zap.Int("questions", len(quiz.Questions)),
		zap.Int("time_limit_seconds", quiz.TimeLimitSeconds()),
	)
	return a, nil
}

// Attempt returns a live attempt by ID.
func (s *AttemptService) Attempt(attemptID string) (*Attempt, bool) {
	return s.attempts.Get(attemptID)
}

// Shutdown abandons every live attempt so no timer outlives the server.
func (s *AttemptService) Shutdown() {
	for _, a := range s.attempts.List() {
		a.Abandon()
	}
}

func (s *AttemptService) persist(ctx context.Context, result domain.Result) (domain.Result, error) {
	id, err := s.results.SubmitResult(ctx, result)
	if err != nil {
		s.recorder.PersistFailed()
		s.logger.Error("persist result failed",
			zap.String("quiz_id", result.QuizID),
			zap.String("user_id", result.UserID),
			zap.Error(err),
		)
		return result, &domain.PersistenceError{Result: result, Err: err}
	}
	result.ID = id

	if s.publisher != nil {
		if err := s.publisher.PublishResultSubmitted(ctx, result); err != nil {
			s.logger.Warn("publish result event failed", zap.String("result_id", id), zap.Error(err))
		}
	}
	if s.hub != nil {
		s.hub.Publish(ctx, result.QuizID)
	}
	return result, nil
}

func validateAttemptQuiz(quiz domain.Quiz) error {
	verr := &domain.ValidationError{}
	if len(quiz.Questions) == 0 {
		verr.Add("questions", "quiz has no questions")
	}
	if quiz.TimeLimit <= 0 {
		verr.Add("timeLimit", "must be positive")
	}
	seen := make(map[string]struct{}, len(quiz.Questions))
	for _, q := range quiz.Questions {
		if _, dup := seen[q.ID]; dup || q.ID == "" {
			verr.Add("questions."+q.ID, "question id missing or duplicated")
		}
		seen[q.ID] = struct{}{}
		if !q.HasOption(q.CorrectAnswer) {
			verr.Add("questions."+q.ID, "correct answer is not one of the options")
		}
	}
	return verr.OrNil()
}

// Attempt is one user's pass through a quiz. It is owned by a single session.
type Attempt struct {
	id          string
	quiz        domain.Quiz // presented snapshot
	user        domain.Identity
	startedAt   time.Time
	service     *AttemptService
	notifier    AttemptNotifier
	forwardOnly bool
	baseCtx     context.Context
	timer       *Timer

	mu         sync.Mutex
	index      int
	ledger     *Ledger
	closed     bool
	result     *domain.Result
	persisted  bool
	persisting bool
}

// ID identifies the attempt.
func (a *Attempt) ID() string { return a.id }

// Quiz returns the presented snapshot, correct answers included.
func (a *Attempt) Quiz() domain.Quiz { return a.quiz }

// User returns the attempt owner.
func (a *Attempt) User() domain.Identity { return a.user }

// StartedAt is the attempt start instant.
func (a *Attempt) StartedAt() time.Time { return a.startedAt }

// Remaining returns the seconds left on the timer.
func (a *Attempt) Remaining() int { return a.timer.Remaining() }

// TimerState exposes the countdown state.
func (a *Attempt) TimerState() TimerState { return a.timer.State() }

// CurrentIndex is the 0-based position of the displayed question.
func (a *Attempt) CurrentIndex() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.index
}

// CurrentQuestion returns the displayed question.
func (a *Attempt) CurrentQuestion() domain.Question {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.quiz.Questions[a.index]
}

// AnsweredCount is the number of questions with a recorded answer.
func (a *Attempt) AnsweredCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ledger.AnsweredCount()
}

// Answer returns the recorded option for a question.
func (a *Attempt) Answer(questionID string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ledger.Get(questionID)
}

// GoToQuestion moves to index when it is in range; otherwise nothing changes.
func (a *Attempt) GoToQuestion(index int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.moveLocked(index)
}

// Next moves forward one question, stopping at the last.
func (a *Attempt) Next() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.moveLocked(a.index + 1)
}

// Previous moves back one question, stopping at the first.
func (a *Attempt) Previous() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.moveLocked(a.index - 1)
}

func (a *Attempt) moveLocked(index int) {
	if a.closed || index < 0 || index >= len(a.quiz.Questions) {
		return
	}
	if a.forwardOnly && index < a.index {
		return
	}
	a.index = index
}

// Select records option as the answer to questionID, replacing any earlier choice.
func (a *Attempt) Select(questionID, option string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return domain.ErrAttemptClosed
	}
	q, ok := a.questionLocked(questionID)
	if !ok {
		return domain.ErrQuestionNotFound
	}
	if !q.HasOption(option) {
		return domain.ErrOptionNotFound
	}
	a.ledger.Select(questionID, option)
	return nil
}

func (a *Attempt) questionLocked(questionID string) (domain.Question, bool) {
	for _, q := range a.quiz.Questions {
		if q.ID == questionID {
			return q, true
		}
	}
	return domain.Question{}, false
}

// Submit ends the attempt, scores it and saves the result. Without Forced or Confirmed it
// returns *domain.UnansweredError and changes nothing when questions are unanswered.
// Only the first admitted call proceeds; later calls get domain.ErrAttemptClosed.
// A save failure returns the scored result with a *domain.PersistenceError; see RetryPersist.
func (a *Attempt) Submit(ctx context.Context, opts SubmitOptions) (domain.Result, error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return domain.Result{}, domain.ErrAttemptClosed
	}
	if !opts.Forced && !opts.Confirmed {
		if unanswered := len(a.quiz.Questions) - a.ledger.AnsweredCount(); unanswered > 0 {
			a.mu.Unlock()
			return domain.Result{}, &domain.UnansweredError{Unanswered: unanswered}
		}
	}
	a.closed = true
	submittedAt := a.service.now()
	score, err := ScoreAttempt(a.quiz.Questions, a.ledger, a.startedAt, submittedAt)
	answers := a.ledger.Snapshot()
	a.mu.Unlock()

	a.timer.Stop()
	a.service.attempts.Delete(a.id)

	if err != nil {
		a.notifier.OnSubmitted(domain.Result{}, err)
		return domain.Result{}, err
	}

	result := domain.Result{
		QuizID:         a.quiz.ID,
		QuizName:       a.quiz.Name,
		UserID:         a.user.ID,
		UserName:       a.user.Name,
		UserEmail:      a.user.Email,
		Score:          score.Score,
		CorrectAnswers: score.CorrectAnswers,
		TotalQuestions: score.TotalQuestions,
		TimeSpent:      score.TimeSpent,
		Answers:        answers,
		AutoSubmitted:  opts.Forced,
		CompletedAt:    submittedAt,
	}
	a.service.recorder.AttemptSubmitted(opts.Forced)

	a.mu.Lock()
	a.persisting = true
	a.mu.Unlock()

	return a.finish(ctx, result)
}

// RetryPersist saves the already scored result again after a persistence failure.
func (a *Attempt) RetryPersist(ctx context.Context) (domain.Result, error) {
	a.mu.Lock()
	if a.result == nil || a.persisting {
		a.mu.Unlock()
		return domain.Result{}, domain.ErrNothingToRetry
	}
	if a.persisted {
		a.mu.Unlock()
		return *a.result, domain.ErrNothingToRetry
	}
	a.persisting = true
	result := *a.result
	a.mu.Unlock()

	return a.finish(ctx, result)
}

// Result returns the scored result once the attempt was submitted, and whether it is saved.
func (a *Attempt) Result() (domain.Result, bool, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.result == nil {
		return domain.Result{}, false, false
	}
	return *a.result, true, a.persisted
}

func (a *Attempt) finish(ctx context.Context, result domain.Result) (domain.Result, error) {
	saved, err := a.service.persist(ctx, result)

	a.mu.Lock()
	a.result = &saved
	a.persisted = err == nil
	a.persisting = false
	a.mu.Unlock()

	if err == nil {
		a.service.logger.Info("attempt submitted",
			zap.String("attempt_id", a.id),
			zap.String("result_id", saved.ID),
			zap.Int("score", saved.Score),
			zap.Bool("auto", saved.AutoSubmitted),
		)
	}
	a.notifier.OnSubmitted(saved, err)
	return saved, err
}

// Abandon tears the attempt down without submitting it.
func (a *Attempt) Abandon() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.mu.Unlock()

	a.timer.Stop()
	a.service.attempts.Delete(a.id)
	a.service.recorder.AttemptAbandoned()
	a.service.logger.Info("attempt abandoned", zap.String("attempt_id", a.id))
}

func (a *Attempt) expire() {
	ctx, cancel := context.WithTimeout(a.baseCtx, a.service.persistTimeout)
	defer cancel()
	if _, err := a.Submit(ctx, SubmitOptions{Forced: true}); err != nil && !errors.Is(err, domain.ErrAttemptClosed) {
		a.service.logger.Warn("auto-submit failed", zap.String("attempt_id", a.id), zap.Error(err))
	}
}

type nopRecorder struct{}

func (nopRecorder) AttemptStarted()       {}
func (nopRecorder) AttemptSubmitted(bool) {}
func (nopRecorder) AttemptAbandoned()     {}
func (nopRecorder) PersistFailed()        {}

type nopNotifier struct{}

func (nopNotifier) OnWarning(int)                    {}
func (nopNotifier) OnTick(int)                       {}
func (nopNotifier) OnSubmitted(domain.Result, error) {}
