package app

import (
	"errors"
	"fmt"
	"strings"

	"quicktestly/internal/domain"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// QuestionInput is one authored question. The correct option is named by index.
type QuestionInput struct {
	ID                 string   `json:"id" validate:"omitempty,max=64"`
	Text               string   `json:"questionText" validate:"required,max=1000"`
	Options            []string `json:"options" validate:"min=2,max=6,unique,dive,required,max=500"`
	CorrectAnswerIndex int      `json:"correctAnswerIndex" validate:"gte=0"`
	ImageURL           string   `json:"imageUrl" validate:"omitempty,url"`
}

// QuizInput is the authoring payload for creating or replacing a quiz.
type QuizInput struct {
	Name        string          `json:"name" validate:"required,max=180"`
	Description string          `json:"description" validate:"required,max=2000"`
	TimeLimit   int             `json:"timeLimit" validate:"gte=1,lte=300"`
	IsPublic    bool            `json:"isPublic"`
	Questions   []QuestionInput `json:"questions" validate:"min=1,max=200,dive"`
}

// Build validates the input and converts it into a quiz whose correct answers are
// stored by option value. Question IDs default to q1..qN.
func (in QuizInput) Build() (domain.Quiz, error) {
	in = in.trimmed()

	verr := &domain.ValidationError{}
	if err := validate.Struct(in); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return domain.Quiz{}, err
		}
		for _, fe := range fieldErrs {
			verr.Add(fieldName(fe), describe(fe))
		}
	}

	seen := make(map[string]struct{}, len(in.Questions))
	for i, q := range in.Questions {
		if q.CorrectAnswerIndex >= len(q.Options) {
			verr.Add(fmt.Sprintf("questions[%d].correctAnswerIndex", i), "out of range")
		}
		id := questionID(q, i)
		if _, dup := seen[id]; dup {
			verr.Add(fmt.Sprintf("questions[%d].id", i), "duplicated")
		}
		seen[id] = struct{}{}
	}
	if err := verr.OrNil(); err != nil {
		return domain.Quiz{}, err
	}

	questions := make([]domain.Question, 0, len(in.Questions))
	for i, q := range in.Questions {
		questions = append(questions, domain.Question{
			ID:            questionID(q, i),
			Text:          q.Text,
			Options:       q.Options,
			CorrectAnswer: q.Options[q.CorrectAnswerIndex],
			ImageURL:      q.ImageURL,
		})
	}
	return domain.Quiz{
		Name:          in.Name,
		Description:   in.Description,
		TimeLimit:     in.TimeLimit,
		IsPublic:      in.IsPublic,
		Questions:     questions,
		QuestionCount: len(questions),
	}, nil
}

func (in QuizInput) trimmed() QuizInput {
	out := in
	out.Name = strings.TrimSpace(in.Name)
	out.Description = strings.TrimSpace(in.Description)
	out.Questions = make([]QuestionInput, len(in.Questions))
	for i, q := range in.Questions {
		q.ID = strings.TrimSpace(q.ID)
		q.Text = strings.TrimSpace(q.Text)
		q.ImageURL = strings.TrimSpace(q.ImageURL)
		opts := make([]string, len(q.Options))
		for j, o := range q.Options {
			opts[j] = strings.TrimSpace(o)
		}
		q.Options = opts
		out.Questions[i] = q
	}
	return out
}

func questionID(q QuestionInput, index int) string {
	if q.ID != "" {
		return q.ID
	}
	return fmt.Sprintf("q%d", index+1)
}

// fieldName turns "QuizInput.Questions[0].Options[1]" into "Questions[0].Options[1]".
func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must have at least " + fe.Param()
	case "max":
		return "must have at most " + fe.Param()
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	case "unique":
		return "must not contain duplicates"
	case "url":
		return "must be a URL"
	default:
		return "failed " + fe.Tag()
	}
}
