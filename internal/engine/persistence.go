package engine

import (
	"context"
	"time"

	"github.com/stemsi/exstem-engine/internal/model"
)

// SnapshotStore persists attempt snapshots for resume after a reload.
// Save failures are examerr.StorageUnavailable; Load of an unknown attempt is
// examerr.NotFound.
type SnapshotStore interface {
	Save(ctx context.Context, snap model.Snapshot) error
	Load(ctx context.Context, attemptID string) (model.Snapshot, error)
	Delete(ctx context.Context, attemptID string) error
}

// pendingWrite is a store operation captured under e.mu and executed after
// it is released. seq orders writes so a slow autosave never overwrites a
// newer snapshot or resurrects a deleted one.
type pendingWrite struct {
	seq    uint64
	snap   model.Snapshot
	delete bool
	reason string
}

// captureSave snapshots the live state. Callers hold e.mu.
func (e *Engine) captureSave(reason string) *pendingWrite {
	if e.store == nil || e.state == nil {
		return nil
	}
	e.saveSeq++
	snap := e.liveSnapshot()
	snap.SavedAt = e.sched.Now().UnixMilli()
	return &pendingWrite{seq: e.saveSeq, snap: snap, reason: reason}
}

// captureDelete schedules removal of the stored snapshot. Callers hold e.mu.
func (e *Engine) captureDelete() *pendingWrite {
	if e.store == nil {
		return nil
	}
	e.saveSeq++
	return &pendingWrite{seq: e.saveSeq, delete: true, reason: "reset"}
}

// write runs a captured operation against the store and reports whether the
// store now holds it or something newer. Failures are logged.
func (e *Engine) write(w *pendingWrite) bool {
	if w == nil {
		return true
	}
	e.saveMu.Lock()
	defer e.saveMu.Unlock()

	if w.seq <= e.savedSeq {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.SaveTimeout)
	defer cancel()

	if w.delete {
		if err := e.store.Delete(ctx, e.attemptID); err != nil {
			e.log.Warn().Err(err).Msg("Failed to delete snapshot, will retry")
			return false
		}
	} else if err := e.store.Save(ctx, w.snap); err != nil {
		e.log.Warn().Err(err).Str("reason", w.reason).Msg("Snapshot save failed, will retry")
		return false
	}
	e.savedSeq = w.seq
	return true
}

// persist writes w. While in progress a failure is left to the next autosave,
// which captures a fresher snapshot. Outside it nothing else would save again,
// so the write is kept and retried every autosave interval until it lands.
// Callers must not hold e.mu.
func (e *Engine) persist(w *pendingWrite) {
	if e.write(w) {
		return
	}
	e.saveMu.Lock()
	if e.retry == nil || w.seq > e.retry.seq {
		e.retry = w
	}
	e.saveMu.Unlock()

	e.mu.Lock()
	if !e.closed && e.phase != PhaseInProgress && e.stopRetry == nil {
		e.stopRetry = e.sched.Every(e.cfg.AutosaveInterval, e.retryTick)
	}
	e.mu.Unlock()
}

func (e *Engine) retryTick(time.Time) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return
	}

	w := e.takeRetry()
	if e.write(w) {
		w = nil
	}

	e.mu.Lock()
	e.saveMu.Lock()
	if w != nil && (e.retry == nil || w.seq > e.retry.seq) {
		e.retry = w
	}
	pending := e.retry != nil
	e.saveMu.Unlock()
	if !pending {
		e.cancelRetry()
	}
	e.mu.Unlock()
}

// takeRetry removes and returns the write waiting for a retry, if any.
func (e *Engine) takeRetry() *pendingWrite {
	e.saveMu.Lock()
	defer e.saveMu.Unlock()
	w := e.retry
	e.retry = nil
	return w
}

// cancelRetry stops the retry loop. Callers hold e.mu.
func (e *Engine) cancelRetry() {
	if e.stopRetry != nil {
		e.stopRetry()
		e.stopRetry = nil
	}
}

// startAutosave arms the autosave loop, which supersedes a pending retry.
// Callers hold e.mu.
func (e *Engine) startAutosave() {
	e.stopAutosave()
	e.cancelRetry()
	if e.store == nil {
		return
	}
	e.stopSave = e.sched.Every(e.cfg.AutosaveInterval, e.autosaveTick)
}

// stopAutosave cancels the loop. Callers hold e.mu.
func (e *Engine) stopAutosave() {
	if e.stopSave != nil {
		e.stopSave()
		e.stopSave = nil
	}
}

func (e *Engine) autosaveTick(time.Time) {
	e.mu.Lock()
	if e.closed || e.phase != PhaseInProgress {
		e.mu.Unlock()
		return
	}
	w := e.captureSave("autosave")
	e.mu.Unlock()

	e.write(w)
}
