package repository

import (
	"context"
	"sync"

	"github.com/stemsi/exstem-engine/internal/examerr"
	"github.com/stemsi/exstem-engine/internal/model"
)

// MemorySnapshotStore keeps snapshots in process memory. Snapshots are copied
// on the way in and out so callers cannot alias stored slices.
type MemorySnapshotStore struct {
	mu    sync.RWMutex
	snaps map[string]model.Snapshot
}

func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{snaps: make(map[string]model.Snapshot)}
}

func (s *MemorySnapshotStore) Save(_ context.Context, snap model.Snapshot) error {
	s.mu.Lock()
	s.snaps[snap.AttemptID] = cloneSnapshot(snap)
	s.mu.Unlock()
	return nil
}

func (s *MemorySnapshotStore) Load(_ context.Context, attemptID string) (model.Snapshot, error) {
	s.mu.RLock()
	snap, ok := s.snaps[attemptID]
	s.mu.RUnlock()
	if !ok {
		return model.Snapshot{}, examerr.New(examerr.NotFound, "memory.Load", "no snapshot for attempt %s", attemptID)
	}
	return cloneSnapshot(snap), nil
}

func (s *MemorySnapshotStore) Delete(_ context.Context, attemptID string) error {
	s.mu.Lock()
	delete(s.snaps, attemptID)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored snapshots.
func (s *MemorySnapshotStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snaps)
}

func cloneSnapshot(snap model.Snapshot) model.Snapshot {
	out := snap
	out.Answers = make([]*int, len(snap.Answers))
	for i, a := range snap.Answers {
		if a != nil {
			v := *a
			out.Answers[i] = &v
		}
	}
	out.Bookmarked = append([]bool(nil), snap.Bookmarked...)
	out.TimeSpentSeconds = append([]int(nil), snap.TimeSpentSeconds...)
	if snap.TestEnd != nil {
		end := *snap.TestEnd
		out.TestEnd = &end
	}
	return out
}
