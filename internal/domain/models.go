package domain

import "time"

// Role names carried by identities.
const (
	RoleTeacher = "teacher"
	RoleUser    = "user"
)

// PassingScore is the minimum score counted as a pass in statistics.
const PassingScore = 60

// Identity is the caller as reported by the identity provider.
type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// IsTeacher reports whether the identity may author quizzes.
func (i Identity) IsTeacher() bool {
	return i.Role == RoleTeacher
}

// Question models an MCQ question with exactly one correct option value.
type Question struct {
	ID            string   `json:"id" bson:"id"`
	Text          string   `json:"questionText" bson:"question_text"`
	Options       []string `json:"options" bson:"options"`
	CorrectAnswer string   `json:"correctAnswer,omitempty" bson:"correct_answer"`
	ImageURL      string   `json:"imageUrl,omitempty" bson:"image_url,omitempty"`
}

// HasOption reports whether value is one of the question's options.
func (q Question) HasOption(value string) bool {
	for _, opt := range q.Options {
		if opt == value {
			return true
		}
	}
	return false
}

// Quiz is an authored collection of questions.
type Quiz struct {
	ID                    string     `json:"id" bson:"_id,omitempty"`
	Name                  string     `json:"name" bson:"name"`
	Description           string     `json:"description" bson:"description"`
	TimeLimit             int        `json:"timeLimit" bson:"time_limit"` // minutes
	IsPublic              bool       `json:"isPublic" bson:"is_public"`
	Questions             []Question `json:"questions" bson:"questions"`
	QuestionCount         int        `json:"questionCount" bson:"question_count"`
	CreatedByTeacherID    string     `json:"createdByTeacherId" bson:"created_by_teacher_id"`
	CreatedByTeacherName  string     `json:"createdByTeacherName" bson:"created_by_teacher_name"`
	CreatedByTeacherEmail string     `json:"createdByTeacherEmail" bson:"created_by_teacher_email"`
	CreatedAt             time.Time  `json:"createdAt" bson:"created_at"`
	UpdatedAt             time.Time  `json:"updatedAt" bson:"updated_at"`
}

// TimeLimitSeconds is the attempt duration.
func (q Quiz) TimeLimitSeconds() int {
	return q.TimeLimit * 60
}

// WithoutAnswers returns a copy safe to show to quiz takers.
func (q Quiz) WithoutAnswers() Quiz {
	out := q
	out.Questions = make([]Question, len(q.Questions))
	for i, question := range q.Questions {
		question.CorrectAnswer = ""
		question.Options = append([]string(nil), question.Options...)
		out.Questions[i] = question
	}
	return out
}

// Result is the persisted outcome of a submitted attempt.
type Result struct {
	ID             string            `json:"id" bson:"_id,omitempty"`
	QuizID         string            `json:"quizId" bson:"quiz_id"`
	QuizName       string            `json:"quizName" bson:"quiz_name"`
	UserID         string            `json:"userId" bson:"user_id"`
	UserName       string            `json:"userName" bson:"user_name"`
	UserEmail      string            `json:"userEmail" bson:"user_email"`
	Score          int               `json:"score" bson:"score"`
	CorrectAnswers int               `json:"correctAnswers" bson:"correct_answers"`
	TotalQuestions int               `json:"totalQuestions" bson:"total_questions"`
	TimeSpent      int               `json:"timeSpent" bson:"time_spent"` // seconds
	Answers        map[string]string `json:"answers" bson:"answers"`
	AutoSubmitted  bool              `json:"autoSubmitted" bson:"auto_submitted"`
	CompletedAt    time.Time         `json:"completedAt" bson:"completed_at"`
}

// LeaderboardEntry is a ranked result.
type LeaderboardEntry struct {
	Rank int `json:"rank"`
	Result
}

// Leaderboard captures the ordered scoreboard for a quiz, or the global one when QuizID is empty.
type Leaderboard struct {
	QuizID    string             `json:"quizId,omitempty"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// QuizStats aggregates a set of results.
type QuizStats struct {
	TotalAttempts  int `json:"totalAttempts"`
	AverageScore   int `json:"averageScore"`
	UniqueStudents int `json:"uniqueStudents"`
	PassRate       int `json:"passRate"`
}

// TeacherStats backs the teacher dashboard.
type TeacherStats struct {
	TotalQuizzes   int      `json:"totalQuizzes"`
	TotalStudents  int      `json:"totalStudents"`
	TotalAttempts  int      `json:"totalAttempts"`
	AverageScore   int      `json:"averageScore"`
	RecentActivity []Result `json:"recentActivity"`
}

// UserStats backs the student dashboard.
type UserStats struct {
	TotalQuizzes   int      `json:"totalQuizzes"`
	AverageScore   int      `json:"averageScore"`
	BestScore      int      `json:"bestScore"`
	TotalTimeSpent int      `json:"totalTimeSpent"`
	RecentResults  []Result `json:"recentResults"`
}

// Grade maps a percentage score to a letter.
func Grade(score int) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 75:
		return "B"
	case score >= 60:
		return "C"
	default:
		return "D"
	}
}

// RanksBefore orders leaderboard results: score desc, time spent asc, then earliest completion.
func RanksBefore(a, b Result) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.TimeSpent != b.TimeSpent {
		return a.TimeSpent < b.TimeSpent
	}
	return a.CompletedAt.Before(b.CompletedAt)
}
