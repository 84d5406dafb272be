package model

// Snapshot is the persisted shape of a session, consumed by the persistence port.
// Timestamps are Unix milliseconds.
type Snapshot struct {
	AttemptID              string  `json:"attempt_id"`
	QuestionSetID          string  `json:"question_set_id"`
	QuestionCount          int     `json:"question_count"`
	TestStart              int64   `json:"test_start"`
	TestEnd                *int64  `json:"test_end"`
	CurrentQuestion        int     `json:"current_question"`
	Answers                []*int  `json:"answers"`
	Bookmarked             []bool  `json:"bookmarked"`
	TimeSpentSeconds       []int   `json:"time_spent_seconds"`
	TestDurationMinutes    float64 `json:"test_duration_minutes"`
	NegativeMarkingEnabled bool    `json:"negative_marking_enabled"`
	EnhancedTimerEnabled   bool    `json:"enhanced_timer_enabled"`
	SavedAt                int64   `json:"saved_at,omitempty"`
}

// Finished reports whether the snapshot belongs to a submitted attempt.
func (s Snapshot) Finished() bool { return s.TestEnd != nil }
