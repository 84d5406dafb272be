package session

import (
	"encoding/json"
	"time"

	"github.com/stemsi/exstem-engine/internal/examerr"
	"github.com/stemsi/exstem-engine/internal/model"
)

// Snapshot copies the state into its persisted shape.
func (s *State) Snapshot() model.Snapshot {
	snap := model.Snapshot{
		AttemptID:              s.attemptID,
		QuestionSetID:          s.questionSetID,
		QuestionCount:          len(s.answers),
		TestStart:              s.testStart.UnixMilli(),
		CurrentQuestion:        s.current,
		Answers:                make([]*int, len(s.answers)),
		Bookmarked:             append([]bool(nil), s.bookmarked...),
		TimeSpentSeconds:       append([]int(nil), s.timeSpent...),
		TestDurationMinutes:    s.durationMinutes,
		NegativeMarkingEnabled: s.negativeMarking,
		EnhancedTimerEnabled:   s.enhancedTimer,
	}
	for i, a := range s.answers {
		if a != nil {
			v := *a
			snap.Answers[i] = &v
		}
	}
	if s.testEnd != nil {
		end := s.testEnd.UnixMilli()
		snap.TestEnd = &end
	}
	return snap
}

// FromSnapshot rebuilds a state. Length mismatches are CorruptState; an
// out-of-range cursor is clamped and negative entries are reset to defaults.
// expectedCount is the size of the question set being resumed, or 0 to
// trust the snapshot's own declaration.
func FromSnapshot(snap model.Snapshot, expectedCount int) (*State, error) {
	const op = "session.FromSnapshot"

	n := snap.QuestionCount
	if n <= 0 {
		return nil, examerr.New(examerr.CorruptState, op, "question count %d", n)
	}
	if expectedCount > 0 && n != expectedCount {
		return nil, examerr.New(examerr.CorruptState, op, "snapshot has %d questions, question set has %d", n, expectedCount)
	}
	if len(snap.Answers) != n || len(snap.Bookmarked) != n || len(snap.TimeSpentSeconds) != n {
		return nil, examerr.New(examerr.CorruptState, op,
			"array length mismatch: answers=%d bookmarked=%d time_spent=%d, want %d",
			len(snap.Answers), len(snap.Bookmarked), len(snap.TimeSpentSeconds), n)
	}
	if !(snap.TestDurationMinutes > 0) {
		return nil, examerr.New(examerr.CorruptState, op, "duration %v minutes", snap.TestDurationMinutes)
	}

	s := &State{
		attemptID:       snap.AttemptID,
		questionSetID:   snap.QuestionSetID,
		testStart:       time.UnixMilli(snap.TestStart),
		current:         clamp(snap.CurrentQuestion, 0, n-1),
		answers:         make([]*int, n),
		bookmarked:      append([]bool(nil), snap.Bookmarked...),
		timeSpent:       make([]int, n),
		durationMinutes: snap.TestDurationMinutes,
		negativeMarking: snap.NegativeMarkingEnabled,
		enhancedTimer:   snap.EnhancedTimerEnabled,
	}
	for i, a := range snap.Answers {
		if a != nil && *a >= 0 {
			v := *a
			s.answers[i] = &v
		}
	}
	for i, t := range snap.TimeSpentSeconds {
		if t > 0 {
			s.timeSpent[i] = t
		}
	}
	if snap.TestEnd != nil {
		end := time.UnixMilli(*snap.TestEnd)
		s.testEnd = &end
	}
	return s, nil
}

// Serialize encodes the state as JSON.
func (s *State) Serialize() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}

// Deserialize decodes a payload produced by Serialize.
func Deserialize(data []byte, expectedCount int) (*State, error) {
	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, examerr.Wrap(examerr.CorruptState, "session.Deserialize", err)
	}
	return FromSnapshot(snap, expectedCount)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
