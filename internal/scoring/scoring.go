// Package scoring grades a submitted attempt against its question set.
package scoring

import (
	"math"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/examerr"
	"github.com/stemsi/exstem-engine/internal/model"
)

// Marks are kept in hundredths so sums like 1 - 0.33 stay exact.
const (
	correctMark   = 100
	incorrectMark = -33
)

type Scorer struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Scorer {
	return &Scorer{log: log.With().Str("component", "scoring").Logger()}
}

// Score grades a frozen snapshot. It has no side effects besides logging a
// counting invariant violation, which is never returned as an error.
func (s *Scorer) Score(set model.QuestionSet, snap model.Snapshot) (model.Result, error) {
	const op = "scoring.Score"

	if !snap.Finished() {
		return model.Result{}, examerr.New(examerr.InvalidState, op, "attempt %s is still in progress", snap.AttemptID)
	}
	n := set.Len()
	if snap.QuestionCount != n || len(snap.Answers) != n || len(snap.TimeSpentSeconds) != n {
		return model.Result{}, examerr.New(examerr.CorruptState, op,
			"snapshot declares %d questions (%d answers), question set has %d", snap.QuestionCount, len(snap.Answers), n)
	}

	res := model.Result{
		AttemptID:              snap.AttemptID,
		QuestionSetID:          snap.QuestionSetID,
		TotalQuestions:         n,
		TotalTimeMs:            *snap.TestEnd - snap.TestStart,
		NegativeMarkingEnabled: snap.NegativeMarkingEnabled,
		PerQuestion:            make([]model.QuestionResult, 0, n),
		TopicStats:             make(map[string]model.GroupStats),
		DifficultyStats:        make(map[string]model.GroupStats),
		QuestionCounts:         model.QuestionCounts{Total: n},
	}

	var total int
	for i, q := range set.Questions {
		answer := snap.Answers[i]
		answered := answer != nil
		correct := answered && *answer == q.CorrectIndex
		spent := snap.TimeSpentSeconds[i]
		if spent < 0 {
			spent = 0
		}

		status := model.StatusUnanswered
		mark := 0
		switch {
		case correct:
			status = model.StatusCorrect
			mark = correctMark
			res.QuestionCounts.Correct++
		case answered:
			status = model.StatusIncorrect
			if snap.NegativeMarkingEnabled {
				mark = incorrectMark
			}
			res.QuestionCounts.Incorrect++
		default:
			res.QuestionCounts.Unanswered++
		}
		if answered {
			res.QuestionCounts.Answered++
		}
		total += mark

		var userAnswer *int
		if answered {
			v := *answer
			userAnswer = &v
		}
		bookmarked := i < len(snap.Bookmarked) && snap.Bookmarked[i]

		res.PerQuestion = append(res.PerQuestion, model.QuestionResult{
			Index:             i,
			QuestionID:        q.ID,
			Number:            i + 1,
			Text:              q.Text,
			Topic:             q.Topic,
			Difficulty:        q.Difficulty,
			UserAnswer:        userAnswer,
			CorrectAnswer:     q.CorrectIndex,
			Status:            status,
			Bookmarked:        bookmarked,
			TimeSpentSeconds:  spent,
			ScoreContribution: float64(mark) / 100,
			Points:            q.Points,
			Solution:          q.Solution,
		})

		res.TopicOrder = addToGroup(res.TopicStats, res.TopicOrder, q.Topic, status, spent)
		res.DifficultyOrder = addToGroup(res.DifficultyStats, res.DifficultyOrder, q.Difficulty, status, spent)
	}

	res.Score = float64(total) / 100
	res.ScorePercentage = roundHalfUp(float64(total) / float64(n))

	s.checkCounts(res)
	return res, nil
}

// addToGroup folds one question into stats keyed by exact string equality and
// records the key's first appearance in order.
func addToGroup(stats map[string]model.GroupStats, order []string, key string, status model.Status, spent int) []string {
	g, seen := stats[key]
	if !seen {
		order = append(order, key)
	}
	g.Total++
	switch status {
	case model.StatusCorrect:
		g.Attempted++
		g.Correct++
	case model.StatusIncorrect:
		g.Attempted++
		g.Incorrect++
	default:
		g.Unanswered++
	}
	g.TimeTotal += spent
	stats[key] = g
	return order
}

func (s *Scorer) checkCounts(res model.Result) {
	c := res.QuestionCounts
	if c.Answered+c.Unanswered == c.Total && c.Correct+c.Incorrect == c.Answered {
		return
	}
	s.log.Error().
		Str("attempt_id", res.AttemptID).
		Int("total", c.Total).
		Int("answered", c.Answered).
		Int("correct", c.Correct).
		Int("incorrect", c.Incorrect).
		Int("unanswered", c.Unanswered).
		Msg("Question count validation failed")
}

// roundHalfUp rounds x to the nearest integer with ties toward +Inf.
func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}
