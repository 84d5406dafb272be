package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stemsi/exstem-engine/internal/examerr"
	"github.com/stemsi/exstem-engine/internal/model"
)

func TestMemorySnapshotStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySnapshotStore()

	if _, err := s.Load(ctx, "a-1"); !errors.Is(err, examerr.ErrNotFound) {
		t.Fatalf("Load missing = %v", err)
	}

	two := 2
	snap := model.Snapshot{AttemptID: "a-1", QuestionCount: 2, Answers: []*int{&two, nil}, Bookmarked: []bool{true, false}, TimeSpentSeconds: []int{4, 0}}
	if err := s.Save(ctx, snap); err != nil {
		t.Fatal(err)
	}

	// Mutating the caller's copy must not leak into the store.
	two = 3
	snap.Bookmarked[0] = false

	got, err := s.Load(ctx, "a-1")
	if err != nil {
		t.Fatal(err)
	}
	if *got.Answers[0] != 2 || !got.Bookmarked[0] {
		t.Errorf("stored snapshot aliased caller memory: %+v", got)
	}

	if err := s.Delete(ctx, "a-1"); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 0 {
		t.Errorf("len after delete = %d", s.Len())
	}
}
