package app

// Ledger records the option value chosen for each question of an attempt.
// Answers are keyed by question ID and hold the option value, never its shuffled index.
// It is not safe for concurrent use; Attempt guards it.
type Ledger struct {
	answers map[string]string
}

func NewLedger() *Ledger {
	return &Ledger{answers: make(map[string]string)}
}

// Select sets or replaces the answer for a question.
func (l *Ledger) Select(questionID, option string) {
	l.answers[questionID] = option
}

// Get returns the recorded option, or false when the question is unanswered.
func (l *Ledger) Get(questionID string) (string, bool) {
	option, ok := l.answers[questionID]
	return option, ok
}

// AnsweredCount is the number of distinct questions with a recorded answer.
func (l *Ledger) AnsweredCount() int {
	return len(l.answers)
}

// Snapshot copies the recorded answers.
func (l *Ledger) Snapshot() map[string]string {
	out := make(map[string]string, len(l.answers))
	for k, v := range l.answers {
		out[k] = v
	}
	return out
}
