package scoring

import (
	"fmt"
	"math"
	"sort"

	"github.com/stemsi/exstem-engine/internal/model"
)

// TrackingStats are the headline numbers of the results screen.
type TrackingStats struct {
	model.QuestionCounts

	AnsweredPercentage   int `json:"answered_percentage"`
	CorrectPercentage    int `json:"correct_percentage"`
	IncorrectPercentage  int `json:"incorrect_percentage"`
	UnansweredPercentage int `json:"unanswered_percentage"`
	AccuracyPercentage   int `json:"accuracy_percentage"`

	TotalScore    float64 `json:"total_score"`
	MaxScore      int     `json:"max_score"`
	PositiveScore float64 `json:"positive_score"`
	NegativeScore float64 `json:"negative_score"`
	// CompletionScore is the score percentage with the score floored at zero.
	CompletionScore int `json:"completion_score"`
	// AvgTimePerAnsweredMs is 0 when nothing was answered.
	AvgTimePerAnsweredMs int64 `json:"avg_time_per_answered_ms"`
}

// Tracking derives TrackingStats from a result.
func Tracking(res model.Result) TrackingStats {
	c := res.QuestionCounts
	ts := TrackingStats{
		QuestionCounts:       c,
		AnsweredPercentage:   percentage(float64(c.Answered), c.Total),
		CorrectPercentage:    percentage(float64(c.Correct), c.Total),
		IncorrectPercentage:  percentage(float64(c.Incorrect), c.Total),
		UnansweredPercentage: percentage(float64(c.Unanswered), c.Total),
		AccuracyPercentage:   percentage(float64(c.Correct), c.Answered),
		TotalScore:           res.Score,
		MaxScore:             c.Total,
		PositiveScore:        float64(c.Correct),
		CompletionScore:      percentage(math.Max(0, res.Score), c.Total),
	}
	if res.NegativeMarkingEnabled {
		ts.NegativeScore = float64(c.Incorrect*incorrectMark) / 100
	}
	if c.Answered > 0 {
		ts.AvgTimePerAnsweredMs = int64(roundHalfUp(float64(res.TotalTimeMs) / float64(c.Answered)))
	}
	return ts
}

// TopicInsight is one topic line of the performance analysis.
type TopicInsight struct {
	Topic           string  `json:"topic"`
	Accuracy        float64 `json:"accuracy"`
	AccuracyPercent int     `json:"accuracy_percent"`
	AvgTimeSeconds  float64 `json:"avg_time_seconds"`
}

// Analysis groups attempted topics by how well the candidate did.
type Analysis struct {
	Topics     []TopicInsight `json:"topics"`
	Strengths  []TopicInsight `json:"strengths"`
	Weaknesses []TopicInsight `json:"weaknesses"`
	Focus      []TopicInsight `json:"focus"`
	Slow       []TopicInsight `json:"slow"`
}

const (
	strengthAccuracy = 0.8
	weaknessAccuracy = 0.6
	focusAccuracy    = 0.7
	focusMax         = 3
	slowAvgSeconds   = 90
	slowMax          = 2
)

// Analyze ranks attempted topics by accuracy, best first. Ties keep the
// order in which topics first appeared.
func Analyze(res model.Result) Analysis {
	var a Analysis
	for _, topic := range res.TopicOrder {
		st := res.TopicStats[topic]
		if st.Attempted == 0 {
			continue
		}
		acc := float64(st.Correct) / float64(st.Attempted)
		a.Topics = append(a.Topics, TopicInsight{
			Topic:           topic,
			Accuracy:        acc,
			AccuracyPercent: roundHalfUp(acc * 100),
			AvgTimeSeconds:  float64(st.TimeTotal) / float64(st.Attempted),
		})
	}
	sort.SliceStable(a.Topics, func(i, j int) bool { return a.Topics[i].Accuracy > a.Topics[j].Accuracy })

	for _, t := range a.Topics {
		if t.Accuracy > strengthAccuracy {
			a.Strengths = append(a.Strengths, t)
		}
		if t.Accuracy < weaknessAccuracy {
			a.Weaknesses = append(a.Weaknesses, t)
		}
		if t.AvgTimeSeconds > slowAvgSeconds && len(a.Slow) < slowMax {
			a.Slow = append(a.Slow, t)
		}
	}

	for i := len(a.Topics) - 1; i >= 0 && i >= len(a.Topics)-focusMax; i-- {
		if a.Topics[i].Accuracy < focusAccuracy {
			a.Focus = append(a.Focus, a.Topics[i])
		}
	}
	return a
}

// DisplayScore renders the score line, e.g. "0.67/3" with negative marking
// and "1/3" without.
func DisplayScore(res model.Result) string {
	if res.NegativeMarkingEnabled {
		return fmt.Sprintf("%.2f/%d", res.Score, res.TotalQuestions)
	}
	return fmt.Sprintf("%d/%d", roundHalfUp(res.Score), res.TotalQuestions)
}

func percentage(v float64, total int) int {
	if total <= 0 {
		return 0
	}
	return roundHalfUp(v / float64(total) * 100)
}
