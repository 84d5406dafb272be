// Package review projects a graded result into filtered, navigable views.
package review

import (
	"github.com/stemsi/exstem-engine/internal/model"
)

// StatusFilter selects questions by outcome. StatusAnswered matches both
// correct and incorrect.
type StatusFilter string

const (
	StatusAll        StatusFilter = "all"
	StatusCorrect    StatusFilter = StatusFilter(model.StatusCorrect)
	StatusIncorrect  StatusFilter = StatusFilter(model.StatusIncorrect)
	StatusUnanswered StatusFilter = StatusFilter(model.StatusUnanswered)
	StatusAnswered   StatusFilter = "answered"
)

// All is the wildcard for topic and difficulty filters. An empty value also
// matches everything.
const All = "all"

// Predicate is a conjunction of optional equality filters.
type Predicate struct {
	Status         StatusFilter `json:"status" form:"status" binding:"omitempty,oneof=all correct incorrect unanswered answered"`
	Topic          string       `json:"topic" form:"topic"`
	Difficulty     string       `json:"difficulty" form:"difficulty"`
	BookmarkedOnly bool         `json:"bookmarked_only" form:"bookmarked_only"`
}

// Match reports whether q passes every filter in p.
func (p Predicate) Match(q model.QuestionResult) bool {
	switch p.Status {
	case "", StatusAll:
	case StatusAnswered:
		if !q.Answered() {
			return false
		}
	default:
		if StatusFilter(q.Status) != p.Status {
			return false
		}
	}
	if p.Topic != "" && p.Topic != All && q.Topic != p.Topic {
		return false
	}
	if p.Difficulty != "" && p.Difficulty != All && q.Difficulty != p.Difficulty {
		return false
	}
	if p.BookmarkedOnly && !q.Bookmarked {
		return false
	}
	return true
}

// Direction moves a view cursor.
type Direction int

const (
	Previous Direction = -1
	Next     Direction = 1
)

// View is an ordered sub-sequence of a result plus a cursor. Views are values;
// navigation returns a new View.
type View struct {
	Predicate Predicate              `json:"predicate"`
	Items     []model.QuestionResult `json:"items"`
	Cursor    int                    `json:"cursor"`
}

// Project filters res in original question order with the cursor at 0.
func Project(res model.Result, p Predicate) View {
	v := View{Predicate: p, Items: []model.QuestionResult{}}
	for _, q := range res.PerQuestion {
		if p.Match(q) {
			v.Items = append(v.Items, q)
		}
	}
	return v
}

// Reproject applies p to res, keeping the cursor on the question previously
// selected in prev when it survives the new filter.
func Reproject(res model.Result, prev View, p Predicate) View {
	v := Project(res, p)
	cur, ok := prev.Current()
	if !ok {
		return v
	}
	for i, q := range v.Items {
		if q.Index == cur.Index {
			v.Cursor = i
			break
		}
	}
	return v
}

func (v View) Len() int { return len(v.Items) }

// Current returns the question under the cursor.
func (v View) Current() (model.QuestionResult, bool) {
	if v.Cursor < 0 || v.Cursor >= len(v.Items) {
		return model.QuestionResult{}, false
	}
	return v.Items[v.Cursor], true
}

// Navigate moves the cursor one step. Moving past either end leaves the view
// unchanged and reports false.
func (v View) Navigate(dir Direction) (View, bool) {
	next := v.Cursor + int(dir)
	if dir == 0 || next < 0 || next >= len(v.Items) {
		return v, false
	}
	v.Cursor = next
	return v, true
}

// HasPrevious and HasNext drive the enabled state of review navigation.
func (v View) HasPrevious() bool { return v.Cursor > 0 }
func (v View) HasNext() bool     { return v.Cursor < len(v.Items)-1 }

// Options lists the filter values present in a result, in first-appearance order.
type Options struct {
	Topics       []string `json:"topics"`
	Difficulties []string `json:"difficulties"`
}

func FilterOptions(res model.Result) Options {
	return Options{
		Topics:       append([]string{}, res.TopicOrder...),
		Difficulties: append([]string{}, res.DifficultyOrder...),
	}
}
