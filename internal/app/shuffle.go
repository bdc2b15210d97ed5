package app

import (
	"math/rand"

	"quicktestly/internal/domain"
)

// Shuffle returns a uniformly random permutation of items. The input is never mutated.
func Shuffle[T any](items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	if len(out) < 2 {
		return out
	}
	rand.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

// ShuffleQuiz produces the presented snapshot of a quiz: question order and each
// question's option order are permuted independently.
func ShuffleQuiz(quiz domain.Quiz) domain.Quiz {
	presented := quiz
	presented.Questions = Shuffle(quiz.Questions)
	for i := range presented.Questions {
		presented.Questions[i].Options = Shuffle(presented.Questions[i].Options)
	}
	return presented
}
