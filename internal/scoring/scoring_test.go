package scoring

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/examerr"
	"github.com/stemsi/exstem-engine/internal/model"
)

func intp(v int) *int { return &v }

func questionSet(topics ...string) model.QuestionSet {
	qs := model.QuestionSet{Title: "Units and Measurements"}
	for i, topic := range topics {
		qs.Questions = append(qs.Questions, model.Question{
			ID:           "q" + string(rune('a'+i)),
			Text:         "question",
			Options:      []string{"A", "B", "C", "D"},
			CorrectIndex: i % 4,
			Topic:        topic,
			Difficulty:   "Easy",
		})
	}
	return qs
}

func finishedSnapshot(answers []*int, negative bool) model.Snapshot {
	end := int64(91_000)
	n := len(answers)
	return model.Snapshot{
		AttemptID:              "attempt-1",
		QuestionCount:          n,
		TestStart:              1_000,
		TestEnd:                &end,
		Answers:                answers,
		Bookmarked:             make([]bool, n),
		TimeSpentSeconds:       make([]int, n),
		TestDurationMinutes:    30,
		NegativeMarkingEnabled: negative,
	}
}

func TestScoreScenario(t *testing.T) {
	set := questionSet("Units", "Units", "Errors")
	// q0 correct (0), q1 wrong (correct is 1), q2 skipped.
	answers := []*int{intp(0), intp(3), nil}

	tests := []struct {
		name     string
		negative bool
		score    float64
		pct      int
		contrib  []float64
	}{
		{"no negative marking", false, 1, 33, []float64{1, 0, 0}},
		{"negative marking", true, 0.67, 22, []float64{1, -0.33, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := New(zerolog.Nop()).Score(set, finishedSnapshot(answers, tt.negative))
			if err != nil {
				t.Fatalf("Score: %v", err)
			}
			if res.Score != tt.score {
				t.Errorf("score = %v, want %v", res.Score, tt.score)
			}
			if res.ScorePercentage != tt.pct {
				t.Errorf("percentage = %d, want %d", res.ScorePercentage, tt.pct)
			}
			want := model.QuestionCounts{Total: 3, Answered: 2, Correct: 1, Incorrect: 1, Unanswered: 1}
			if res.QuestionCounts != want {
				t.Errorf("counts = %+v, want %+v", res.QuestionCounts, want)
			}
			for i, c := range tt.contrib {
				if res.PerQuestion[i].ScoreContribution != c {
					t.Errorf("contribution[%d] = %v, want %v", i, res.PerQuestion[i].ScoreContribution, c)
				}
			}
			if res.TotalTimeMs != 90_000 {
				t.Errorf("total time = %d", res.TotalTimeMs)
			}
		})
	}
}

func TestScoreIsIdempotent(t *testing.T) {
	set := questionSet("A", "B", "A", "C")
	snap := finishedSnapshot([]*int{intp(0), nil, intp(1), intp(3)}, true)
	s := New(zerolog.Nop())

	first, err := s.Score(set, snap)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Score(set, snap)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("scoring the same snapshot twice gave different results")
	}
}

func TestNoPenaltyWithoutNegativeMarking(t *testing.T) {
	set := questionSet("A", "A", "A", "A", "A")
	snap := finishedSnapshot([]*int{intp(3), intp(3), intp(3), intp(0), nil}, false)

	res, err := New(zerolog.Nop()).Score(set, snap)
	if err != nil {
		t.Fatal(err)
	}
	for _, q := range res.PerQuestion {
		if q.ScoreContribution < 0 {
			t.Errorf("question %d contributed %v", q.Index, q.ScoreContribution)
		}
	}
	c := res.QuestionCounts
	if c.Correct+c.Incorrect+c.Unanswered != c.Total || c.Answered+c.Unanswered != c.Total {
		t.Errorf("counts do not add up: %+v", c)
	}
}

func TestNegativeScoreIsNotClamped(t *testing.T) {
	set := questionSet("A", "A", "A")
	snap := finishedSnapshot([]*int{intp(1), intp(0), intp(0)}, true)

	res, err := New(zerolog.Nop()).Score(set, snap)
	if err != nil {
		t.Fatal(err)
	}
	if res.Score != -0.99 {
		t.Errorf("score = %v, want -0.99", res.Score)
	}
	if res.ScorePercentage != -33 {
		t.Errorf("percentage = %d, want -33", res.ScorePercentage)
	}
	if got := Tracking(res).CompletionScore; got != 0 {
		t.Errorf("completion score = %d, want 0", got)
	}
}

func TestGroupingIsCaseSensitive(t *testing.T) {
	set := questionSet("Vectors", "vectors", "Vectors")
	set.Questions[1].Difficulty = "Hard"
	snap := finishedSnapshot([]*int{intp(0), nil, intp(0)}, false)
	snap.TimeSpentSeconds = []int{10, 20, 30}

	res, err := New(zerolog.Nop()).Score(set, snap)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(res.TopicOrder, []string{"Vectors", "vectors"}) {
		t.Errorf("topic order = %v", res.TopicOrder)
	}
	want := model.GroupStats{Total: 2, Attempted: 2, Correct: 1, Incorrect: 1, TimeTotal: 40}
	if got := res.TopicStats["Vectors"]; got != want {
		t.Errorf("Vectors stats = %+v, want %+v", got, want)
	}
	if got := res.TopicStats["vectors"]; got.Total != 1 || got.Unanswered != 1 {
		t.Errorf("vectors stats = %+v", got)
	}
	if got := res.DifficultyStats["Easy"].Total; got != 2 {
		t.Errorf("Easy total = %d", got)
	}
}

func TestScoreRejectsUnusableInput(t *testing.T) {
	set := questionSet("A", "B")
	s := New(zerolog.Nop())

	running := finishedSnapshot([]*int{nil, nil}, false)
	running.TestEnd = nil
	if _, err := s.Score(set, running); !errors.Is(err, examerr.ErrInvalidState) {
		t.Errorf("unfinished snapshot: %v", err)
	}

	short := finishedSnapshot([]*int{nil}, false)
	if _, err := s.Score(set, short); !errors.Is(err, examerr.ErrCorruptState) {
		t.Errorf("mismatched snapshot: %v", err)
	}
}

func TestCountViolationIsLogged(t *testing.T) {
	var buf bytes.Buffer
	s := New(zerolog.New(&buf))

	s.checkCounts(model.Result{AttemptID: "x", QuestionCounts: model.QuestionCounts{Total: 3, Answered: 2, Correct: 1, Incorrect: 0, Unanswered: 1}})
	if !strings.Contains(buf.String(), "Question count validation failed") {
		t.Errorf("expected a log line, got %q", buf.String())
	}
}

func TestTrackingAndDisplay(t *testing.T) {
	set := questionSet("A", "A", "A", "A")
	snap := finishedSnapshot([]*int{intp(0), intp(1), intp(0), nil}, true)

	res, err := New(zerolog.Nop()).Score(set, snap)
	if err != nil {
		t.Fatal(err)
	}
	ts := Tracking(res)
	if ts.AnsweredPercentage != 75 || ts.CorrectPercentage != 50 || ts.AccuracyPercentage != 67 {
		t.Errorf("percentages = %+v", ts)
	}
	if ts.NegativeScore != -0.33 || ts.PositiveScore != 2 {
		t.Errorf("breakdown = +%v %v", ts.PositiveScore, ts.NegativeScore)
	}
	if ts.AvgTimePerAnsweredMs != 30_000 {
		t.Errorf("avg time = %d", ts.AvgTimePerAnsweredMs)
	}
	if got := DisplayScore(res); got != "1.67/4" {
		t.Errorf("display = %q", got)
	}

	res.NegativeMarkingEnabled = false
	res.Score = 2
	if got := DisplayScore(res); got != "2/4" {
		t.Errorf("display = %q", got)
	}
}

func TestAnalyze(t *testing.T) {
	res := model.Result{
		TopicOrder: []string{"Units", "Errors", "Dimensions", "Vectors", "Skipped"},
		TopicStats: map[string]model.GroupStats{
			"Units":      {Attempted: 5, Correct: 5, TimeTotal: 100},
			"Errors":     {Attempted: 4, Correct: 1, TimeTotal: 400},
			"Dimensions": {Attempted: 3, Correct: 2, TimeTotal: 300},
			"Vectors":    {Attempted: 2, Correct: 1, TimeTotal: 60},
			"Skipped":    {Total: 2, Unanswered: 2},
		},
	}

	a := Analyze(res)

	var order []string
	for _, ti := range a.Topics {
		order = append(order, ti.Topic)
	}
	if !reflect.DeepEqual(order, []string{"Units", "Dimensions", "Vectors", "Errors"}) {
		t.Errorf("ranking = %v", order)
	}
	if len(a.Strengths) != 1 || a.Strengths[0].Topic != "Units" {
		t.Errorf("strengths = %+v", a.Strengths)
	}
	if len(a.Weaknesses) != 2 || a.Weaknesses[0].Topic != "Vectors" || a.Weaknesses[1].Topic != "Errors" {
		t.Errorf("weaknesses = %+v", a.Weaknesses)
	}
	// Weakest three are Errors, Vectors, Dimensions; all below 70%.
	if len(a.Focus) != 3 || a.Focus[0].Topic != "Errors" || a.Focus[2].Topic != "Dimensions" {
		t.Errorf("focus = %+v", a.Focus)
	}
	if len(a.Slow) != 2 || a.Slow[0].Topic != "Dimensions" || a.Slow[1].Topic != "Errors" {
		t.Errorf("slow = %+v", a.Slow)
	}
}
