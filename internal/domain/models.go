package domain

import "time"

// Question models a multiple-choice question with exactly one correct option.
type Question struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
}

// HasOption reports whether option is one of the question's choices.
func (q Question) HasOption(option string) bool {
	for _, o := range q.Options {
		if o == option {
			return true
		}
	}
	return false
}

// Quiz is a named collection of questions.
type Quiz struct {
	ID        string     `json:"id"`
	Questions []Question `json:"questions"`
}

// QuizConfig describes one playable daily quiz.
type QuizConfig struct {
	ID                string `json:"id" yaml:"id"`
	Name              string `json:"name" yaml:"name"`
	TimeLimitSeconds  int    `json:"timeLimitSeconds" yaml:"time_limit_seconds"`
	PointsPerQuestion int    `json:"pointsPerQuestion" yaml:"points_per_question"`
	ExpiresInSeconds  int    `json:"expiresInSeconds" yaml:"expires_in_seconds"`
}

// DefaultQuizConfig mirrors the daily quiz shipped with the game.
func DefaultQuizConfig() QuizConfig {
	return QuizConfig{
		ID:                "daily_001",
		Name:              "Golden Boot Legends",
		TimeLimitSeconds:  90,
		PointsPerQuestion: 10,
		ExpiresInSeconds:  86400,
	}
}

// QuizStatus is the lifecycle phase of a quiz session.
type QuizStatus string

const (
	QuizReady    QuizStatus = "ready"
	QuizActive   QuizStatus = "active"
	QuizChecking QuizStatus = "checking"
	QuizFinished QuizStatus = "finished"
	QuizExpired  QuizStatus = "expired"
)

// QuizSnapshot is a read-only view of a quiz session.
type QuizSnapshot struct {
	QuizID           string      `json:"quizId"`
	Status           QuizStatus  `json:"status"`
	QuestionIndex    int         `json:"questionIndex"`
	Total            int         `json:"total"`
	Question         *Question   `json:"question,omitempty"`
	Selection        string      `json:"selection,omitempty"`
	Score            int         `json:"score"`
	RemainingSeconds int         `json:"remainingSeconds"`
	Result           *QuizResult `json:"result,omitempty"`
}

// QuizResult is computed once when a session finishes.
type QuizResult struct {
	Answered int `json:"answered"`
	Correct  int `json:"correct"`
	Points   int `json:"points"`
	Accuracy int `json:"accuracy"`
	Total    int `json:"total"`
}

// AnswerResult summarizes the outcome of a submission.
type AnswerResult struct {
	QuestionID string `json:"questionId"`
	Correct    bool   `json:"correct"`
	Awarded    int    `json:"awarded"`
	TotalScore int    `json:"totalScore"`
}

// HapticPattern alternates vibration and pause durations.
type HapticPattern []time.Duration

var (
	// PulseCorrect is the short tap played on a correct answer.
	PulseCorrect = HapticPattern{100 * time.Millisecond}
	// PulseIncorrect is the double pulse played on a wrong answer.
	PulseIncorrect = HapticPattern{100 * time.Millisecond, 50 * time.Millisecond, 100 * time.Millisecond}
)

// Milliseconds returns the pattern in the form device drivers expect.
func (p HapticPattern) Milliseconds() []int64 {
	out := make([]int64, len(p))
	for i, d := range p {
		out[i] = d.Milliseconds()
	}
	return out
}

// ScoreSubmission is sent to the score endpoint after a quiz.
type ScoreSubmission struct {
	UserID   string `json:"user_id"`
	QuizID   string `json:"quiz_id,omitempty"`
	Points   int    `json:"points"`
	Correct  int    `json:"correct"`
	Answered int    `json:"answered"`
}

// ScoreStanding is the server's answer to a score submission.
type ScoreStanding struct {
	OverallScore int `json:"overall_score"`
	Rank         int `json:"rank"`
}
