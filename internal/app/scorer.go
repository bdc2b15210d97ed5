package app

import (
	"math"
	"time"

	"quicktestly/internal/domain"
)

// Score is the outcome of grading a ledger against the presented questions.
type Score struct {
	Score          int
	CorrectAnswers int
	TotalQuestions int
	TimeSpent      int
}

// ScoreAttempt grades answers by comparing option values. It has no side effects.
func ScoreAttempt(questions []domain.Question, ledger *Ledger, startedAt, submittedAt time.Time) (Score, error) {
	total := len(questions)
	if total == 0 {
		return Score{}, domain.NewValidationError("questions", "quiz has no questions")
	}

	correct := 0
	for _, q := range questions {
		if answer, ok := ledger.Get(q.ID); ok && answer == q.CorrectAnswer {
			correct++
		}
	}

	return Score{
		Score:          percentage(correct, total),
		CorrectAnswers: correct,
		TotalQuestions: total,
		TimeSpent:      elapsedSeconds(startedAt, submittedAt),
	}, nil
}

// percentage is round-half-up of 100*part/total in integer arithmetic.
func percentage(part, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*part + total) / (2 * total)
}

func elapsedSeconds(from, to time.Time) int {
	secs := int(math.Round(to.Sub(from).Seconds()))
	if secs < 0 {
		return 0
	}
	return secs
}
