package session

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/stemsi/exstem-engine/internal/examerr"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 123456789, time.UTC)

func newState(t *testing.T, n int) *State {
	t.Helper()
	s, err := Start(n, 30, Options{AttemptID: "a-1", QuestionSetID: "qs-1", NegativeMarking: true}, t0)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return s
}

func TestStartRejectsBadConfiguration(t *testing.T) {
	tests := []struct {
		name     string
		count    int
		duration float64
	}{
		{"zero questions", 0, 30},
		{"negative questions", -2, 30},
		{"zero duration", 3, 0},
		{"negative duration", 3, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Start(tt.count, tt.duration, Options{}, t0)
			if !errors.Is(err, examerr.ErrInvalidConfiguration) {
				t.Fatalf("expected InvalidConfiguration, got %v", err)
			}
		})
	}
}

func TestStartDefaults(t *testing.T) {
	s := newState(t, 4)

	if s.Count() != 4 || s.Current() != 0 || s.Finished() {
		t.Fatalf("unexpected initial state: count=%d current=%d finished=%v", s.Count(), s.Current(), s.Finished())
	}
	for i := 0; i < 4; i++ {
		if _, ok := s.Answer(i); ok {
			t.Errorf("question %d should be unanswered", i)
		}
		if s.Bookmarked(i) || s.TimeSpent(i) != 0 {
			t.Errorf("question %d should have default bookmark/time", i)
		}
	}
	if got := s.TestStart(); !got.Equal(time.UnixMilli(t0.UnixMilli())) {
		t.Errorf("test start %v not truncated to ms", got)
	}
	if got := s.Deadline().Sub(s.TestStart()); got != 30*time.Minute {
		t.Errorf("deadline offset = %v", got)
	}
}

func TestAnswersKeepLength(t *testing.T) {
	s := newState(t, 3)

	ops := []func() error{
		func() error { return s.SetAnswer(0, 2) },
		func() error { return s.SetAnswer(2, 1) },
		func() error { return s.ClearAnswer(0) },
		func() error { return s.SetAnswer(1, 0) },
		func() error { return s.SetAnswer(3, 0) },
		func() error { return s.SetAnswer(1, -1) },
		func() error { return s.ClearAnswer(-1) },
	}
	for _, op := range ops {
		_ = op()
		snap := s.Snapshot()
		if len(snap.Answers) != 3 {
			t.Fatalf("answers length = %d", len(snap.Answers))
		}
		for i, a := range snap.Answers {
			if a != nil && *a < 0 {
				t.Fatalf("answer %d is negative: %d", i, *a)
			}
		}
	}

	if _, ok := s.Answer(0); ok {
		t.Error("answer 0 should be cleared")
	}
	if v, ok := s.Answer(1); !ok || v != 0 {
		t.Errorf("answer 1 = %d,%v want 0,true", v, ok)
	}
	if s.AnsweredCount() != 2 {
		t.Errorf("answered = %d, want 2", s.AnsweredCount())
	}
}

func TestIndexErrors(t *testing.T) {
	s := newState(t, 2)

	if err := s.SetCurrentQuestion(2); !errors.Is(err, examerr.ErrOutOfRange) {
		t.Errorf("SetCurrentQuestion(2) = %v", err)
	}
	if err := s.SetCurrentQuestion(-1); !errors.Is(err, examerr.ErrOutOfRange) {
		t.Errorf("SetCurrentQuestion(-1) = %v", err)
	}
	if _, err := s.ToggleBookmark(5); !errors.Is(err, examerr.ErrOutOfRange) {
		t.Errorf("ToggleBookmark(5) = %v", err)
	}
	if err := s.UpdateTimeSpent(0, -3); !errors.Is(err, examerr.ErrOutOfRange) {
		t.Errorf("UpdateTimeSpent negative = %v", err)
	}
	if s.Current() != 0 {
		t.Errorf("cursor moved to %d", s.Current())
	}
}

func TestUpdateTimeSpentSets(t *testing.T) {
	s := newState(t, 2)

	if err := s.UpdateTimeSpent(1, 12); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateTimeSpent(1, 15); err != nil {
		t.Fatal(err)
	}
	if got := s.TimeSpent(1); got != 15 {
		t.Errorf("time spent = %d, want 15", got)
	}
}

func TestMutationsAfterFinish(t *testing.T) {
	s := newState(t, 3)
	_ = s.SetAnswer(0, 1)
	_, _ = s.ToggleBookmark(2)

	if err := s.Finish(t0.Add(5 * time.Minute)); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	before := s.Snapshot()

	if err := s.SetAnswer(1, 0); !errors.Is(err, examerr.ErrInvalidState) {
		t.Errorf("SetAnswer after finish = %v", err)
	}
	if err := s.ClearAnswer(0); !errors.Is(err, examerr.ErrInvalidState) {
		t.Errorf("ClearAnswer after finish = %v", err)
	}
	if _, err := s.ToggleBookmark(2); !errors.Is(err, examerr.ErrInvalidState) {
		t.Errorf("ToggleBookmark after finish = %v", err)
	}
	if err := s.SetCurrentQuestion(1); !errors.Is(err, examerr.ErrInvalidState) {
		t.Errorf("SetCurrentQuestion after finish = %v", err)
	}
	if err := s.Finish(t0.Add(6 * time.Minute)); !errors.Is(err, examerr.ErrAlreadyFinished) {
		t.Errorf("second Finish = %v", err)
	}

	if after := s.Snapshot(); !reflect.DeepEqual(before, after) {
		t.Errorf("state changed after finish:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	s := newState(t, 3)
	_ = s.SetAnswer(0, 1)
	_ = s.SetAnswer(2, 0)
	_, _ = s.ToggleBookmark(1)
	_ = s.UpdateTimeSpent(0, 17)
	_ = s.SetCurrentQuestion(2)

	data, err := s.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	got, err := Deserialize(data, 3)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if !reflect.DeepEqual(s.Snapshot(), got.Snapshot()) {
		t.Errorf("round trip mismatch:\nwant %+v\ngot  %+v", s.Snapshot(), got.Snapshot())
	}

	_ = s.Finish(t0.Add(time.Minute))
	data, _ = s.Serialize()
	got, err = Deserialize(data, 0)
	if err != nil {
		t.Fatalf("Deserialize finished: %v", err)
	}
	if !got.Finished() || !reflect.DeepEqual(s.Snapshot(), got.Snapshot()) {
		t.Error("finished state did not round trip")
	}
}

func TestDeserializeCorrupt(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		expected int
	}{
		{"answers too short", `{"question_count":3,"test_start":1,"answers":[null,1],"bookmarked":[false,false,false],"time_spent_seconds":[0,0,0],"test_duration_minutes":10}`, 0},
		{"bookmarks too long", `{"question_count":2,"test_start":1,"answers":[null,1],"bookmarked":[false,false,true],"time_spent_seconds":[0,0],"test_duration_minutes":10}`, 0},
		{"count disagrees with set", `{"question_count":2,"test_start":1,"answers":[null,1],"bookmarked":[false,false],"time_spent_seconds":[0,0],"test_duration_minutes":10}`, 5},
		{"zero duration", `{"question_count":1,"test_start":1,"answers":[null],"bookmarked":[false],"time_spent_seconds":[0],"test_duration_minutes":0}`, 0},
		{"not json", `{"question_count":`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Deserialize([]byte(tt.payload), tt.expected)
			if !errors.Is(err, examerr.ErrCorruptState) {
				t.Fatalf("expected CorruptState, got %v", err)
			}
		})
	}
}

func TestDeserializeRecoversWhereSafe(t *testing.T) {
	payload := `{"question_count":3,"test_start":1000,"current_question":9,
		"answers":[-4,1,null],"bookmarked":[false,true,false],"time_spent_seconds":[-2,8,0],
		"test_duration_minutes":20}`

	s, err := Deserialize([]byte(payload), 3)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if s.Current() != 2 {
		t.Errorf("current = %d, want clamped 2", s.Current())
	}
	if _, ok := s.Answer(0); ok {
		t.Error("negative answer should default to unanswered")
	}
	if s.TimeSpent(0) != 0 || s.TimeSpent(1) != 8 {
		t.Errorf("time spent = [%d %d]", s.TimeSpent(0), s.TimeSpent(1))
	}
	if !s.Bookmarked(1) {
		t.Error("bookmark lost")
	}
}
