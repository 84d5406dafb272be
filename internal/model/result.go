package model

// Status is the graded outcome of a single question.
type Status string

const (
	StatusCorrect    Status = "correct"
	StatusIncorrect  Status = "incorrect"
	StatusUnanswered Status = "unanswered"
)

// QuestionResult is the per-question line of a Result.
type QuestionResult struct {
	Index             int     `json:"index"`
	QuestionID        string  `json:"question_id"`
	Number            int     `json:"number"`
	Text              string  `json:"question"`
	Topic             string  `json:"topic"`
	Difficulty        string  `json:"difficulty"`
	UserAnswer        *int    `json:"user_answer"`
	CorrectAnswer     int     `json:"correct_answer"`
	Status            Status  `json:"status"`
	Bookmarked        bool    `json:"bookmarked"`
	TimeSpentSeconds  int     `json:"time_spent_seconds"`
	ScoreContribution float64 `json:"score_contribution"`
	Points            float64 `json:"points,omitempty"`
	Solution          string  `json:"solution,omitempty"`
}

// Answered reports whether the question received an answer.
func (r QuestionResult) Answered() bool { return r.Status != StatusUnanswered }

// GroupStats aggregates results sharing a topic or difficulty.
type GroupStats struct {
	Total      int `json:"total"`
	Attempted  int `json:"attempted"`
	Correct    int `json:"correct"`
	Incorrect  int `json:"incorrect"`
	Unanswered int `json:"unanswered"`
	TimeTotal  int `json:"time_total"`
}

// QuestionCounts holds the headline counts of a Result.
type QuestionCounts struct {
	Total      int `json:"total"`
	Answered   int `json:"answered"`
	Correct    int `json:"correct"`
	Incorrect  int `json:"incorrect"`
	Unanswered int `json:"unanswered"`
}

// Result is the graded, immutable outcome of a submitted attempt.
type Result struct {
	AttemptID              string                `json:"attempt_id"`
	QuestionSetID          string                `json:"question_set_id"`
	Score                  float64               `json:"score"`
	ScorePercentage        int                   `json:"score_percentage"`
	TotalQuestions         int                   `json:"total_questions"`
	TotalTimeMs            int64                 `json:"total_time_ms"`
	NegativeMarkingEnabled bool                  `json:"negative_marking_enabled"`
	PerQuestion            []QuestionResult      `json:"per_question"`
	TopicStats             map[string]GroupStats `json:"topic_stats"`
	DifficultyStats        map[string]GroupStats `json:"difficulty_stats"`
	TopicOrder             []string              `json:"topic_order"`
	DifficultyOrder        []string              `json:"difficulty_order"`
	QuestionCounts         QuestionCounts        `json:"question_counts"`
}
