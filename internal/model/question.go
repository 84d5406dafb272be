package model

import (
	"github.com/google/uuid"
)

// QuestionType enumerates the choice formats the engine accepts.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTypeTrueFalse      QuestionType = "TRUE_FALSE"
)

// Question is a single pre-normalized choice question.
type Question struct {
	ID                          string       `json:"id"`
	Text                        string       `json:"question"`
	Type                        QuestionType `json:"type,omitempty"`
	Options                     []string     `json:"options"`
	CorrectIndex                int          `json:"correct_index"`
	Points                      float64      `json:"points,omitempty"`
	Topic                       string       `json:"topic"`
	Difficulty                  string       `json:"difficulty"`
	Solution                    string       `json:"solution,omitempty"`
	PYQYear                     *int         `json:"pyq_year,omitempty"`
	PerQuestionTimeLimitSeconds *int         `json:"per_question_time_limit_seconds,omitempty"`
}

// QuestionSet is the immutable, ordered input of an attempt.
type QuestionSet struct {
	ID        uuid.UUID  `json:"id"`
	Title     string     `json:"title"`
	Section   string     `json:"section,omitempty"`
	Questions []Question `json:"questions"`
}

// Len returns the number of questions in the set.
func (qs QuestionSet) Len() int { return len(qs.Questions) }

// QuestionForCandidate is a question stripped of its answer key and solution,
// sent to the candidate while the attempt is running.
type QuestionForCandidate struct {
	Index      int      `json:"index"`
	ID         string   `json:"id"`
	Text       string   `json:"question"`
	Options    []string `json:"options"`
	Topic      string   `json:"topic"`
	Difficulty string   `json:"difficulty"`
	PYQYear    *int     `json:"pyq_year,omitempty"`
}

// ForCandidate projects q at position index into its candidate-safe form.
func (q Question) ForCandidate(index int) QuestionForCandidate {
	return QuestionForCandidate{
		Index:      index,
		ID:         q.ID,
		Text:       q.Text,
		Options:    q.Options,
		Topic:      q.Topic,
		Difficulty: q.Difficulty,
		PYQYear:    q.PYQYear,
	}
}
