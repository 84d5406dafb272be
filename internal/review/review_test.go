package review

import (
	"reflect"
	"testing"

	"github.com/stemsi/exstem-engine/internal/model"
)

func intp(v int) *int { return &v }

// fiveQuestionResult has q1 and q3 incorrect, q4 unanswered.
func fiveQuestionResult() model.Result {
	mk := func(i int, status model.Status, topic, difficulty string, bookmarked bool) model.QuestionResult {
		q := model.QuestionResult{Index: i, Number: i + 1, Status: status, Topic: topic, Difficulty: difficulty, Bookmarked: bookmarked}
		if status != model.StatusUnanswered {
			q.UserAnswer = intp(0)
		}
		return q
	}
	return model.Result{
		PerQuestion: []model.QuestionResult{
			mk(0, model.StatusCorrect, "Units", "Easy", false),
			mk(1, model.StatusIncorrect, "Errors", "Hard", true),
			mk(2, model.StatusCorrect, "Units", "Medium", false),
			mk(3, model.StatusIncorrect, "Units", "Hard", false),
			mk(4, model.StatusUnanswered, "Errors", "Easy", true),
		},
		TopicOrder:      []string{"Units", "Errors"},
		DifficultyOrder: []string{"Easy", "Hard", "Medium"},
	}
}

func indices(v View) []int {
	out := []int{}
	for _, q := range v.Items {
		out = append(out, q.Index)
	}
	return out
}

func TestProjectIncorrectAndNavigate(t *testing.T) {
	v := Project(fiveQuestionResult(), Predicate{Status: StatusIncorrect})

	if !reflect.DeepEqual(indices(v), []int{1, 3}) {
		t.Fatalf("items = %v, want [1 3]", indices(v))
	}

	v, moved := v.Navigate(Next)
	if !moved || v.Cursor != 1 {
		t.Fatalf("first Next: moved=%v cursor=%d", moved, v.Cursor)
	}
	v, moved = v.Navigate(Next)
	if moved || v.Cursor != 1 {
		t.Errorf("Next past end: moved=%v cursor=%d", moved, v.Cursor)
	}
	v, _ = v.Navigate(Previous)
	v, moved = v.Navigate(Previous)
	if moved || v.Cursor != 0 {
		t.Errorf("Previous past start: moved=%v cursor=%d", moved, v.Cursor)
	}
}

func TestPredicates(t *testing.T) {
	res := fiveQuestionResult()
	tests := []struct {
		name string
		p    Predicate
		want []int
	}{
		{"empty matches all", Predicate{}, []int{0, 1, 2, 3, 4}},
		{"all keyword", Predicate{Status: StatusAll, Topic: All, Difficulty: All}, []int{0, 1, 2, 3, 4}},
		{"answered", Predicate{Status: StatusAnswered}, []int{0, 1, 2, 3}},
		{"unanswered", Predicate{Status: StatusUnanswered}, []int{4}},
		{"topic", Predicate{Topic: "Units"}, []int{0, 2, 3}},
		{"topic is case sensitive", Predicate{Topic: "units"}, []int{}},
		{"conjunction", Predicate{Status: StatusIncorrect, Difficulty: "Hard", Topic: "Units"}, []int{3}},
		{"bookmarked", Predicate{BookmarkedOnly: true}, []int{1, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := indices(Project(res, tt.p)); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReprojectCursor(t *testing.T) {
	res := fiveQuestionResult()
	v := Project(res, Predicate{Topic: "Units"})
	v, _ = v.Navigate(Next)
	v, _ = v.Navigate(Next) // on question 3

	kept := Reproject(res, v, Predicate{Status: StatusIncorrect})
	if cur, _ := kept.Current(); cur.Index != 3 || kept.Cursor != 1 {
		t.Errorf("cursor should follow question 3, got index %d cursor %d", cur.Index, kept.Cursor)
	}

	reset := Reproject(res, v, Predicate{Status: StatusCorrect})
	if reset.Cursor != 0 {
		t.Errorf("cursor should reset to 0, got %d", reset.Cursor)
	}
}

func TestEmptyView(t *testing.T) {
	v := Project(fiveQuestionResult(), Predicate{Topic: "Vectors"})
	if v.Len() != 0 {
		t.Fatalf("len = %d", v.Len())
	}
	if _, ok := v.Current(); ok {
		t.Error("empty view has no current item")
	}
	if _, moved := v.Navigate(Next); moved {
		t.Error("navigating an empty view should be a no-op")
	}
}

func TestFilterOptions(t *testing.T) {
	opts := FilterOptions(fiveQuestionResult())
	if !reflect.DeepEqual(opts.Topics, []string{"Units", "Errors"}) {
		t.Errorf("topics = %v", opts.Topics)
	}
	if !reflect.DeepEqual(opts.Difficulties, []string{"Easy", "Hard", "Medium"}) {
		t.Errorf("difficulties = %v", opts.Difficulties)
	}
}
