package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/snarg/audiocast/internal/dialogue"
)

type run struct {
	id        string
	snap      Snapshot
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	providers map[string]string
}

// Registry holds in-flight and recently finished runs. Every run owns its
// own state; callers only ever see deep copies.
type Registry struct {
	mu   sync.Mutex
	runs map[string]*run
}

func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]*run)}
}

func (s Snapshot) clone() Snapshot {
	if s.Turns != nil {
		s.Turns = dialogue.CloneTurns(s.Turns)
	}
	if s.Failure != nil {
		f := *s.Failure
		s.Failure = &f
	}
	return s
}

// create registers a new idle run whose context derives from parent.
func (r *Registry) create(parent context.Context, flow Flow, userID, locale string) (*run, Snapshot) {
	ctx, cancel := context.WithCancel(parent)
	now := time.Now()
	id := uuid.NewString()
	rn := &run{
		snap: Snapshot{
			ID:        id,
			Flow:      flow,
			UserID:    userID,
			Locale:    locale,
			Phase:     PhaseIdle,
			CreatedAt: now,
			UpdatedAt: now,
		},
		id:        id,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		providers: make(map[string]string),
	}

	r.mu.Lock()
	r.runs[id] = rn
	r.mu.Unlock()
	return rn, rn.snap.clone()
}

// Get returns a snapshot of run id. A non-empty userID must own the run.
func (r *Registry) Get(id, userID string) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rn, ok := r.runs[id]
	if !ok || (userID != "" && rn.snap.UserID != userID) {
		return Snapshot{}, ErrNotFound
	}
	return rn.snap.clone(), nil
}

// update applies fn to run id under the registry lock. Returning an error
// from fn leaves UpdatedAt untouched; fn must not block.
func (r *Registry) update(id, userID string, fn func(rn *run) error) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rn, ok := r.runs[id]
	if !ok || (userID != "" && rn.snap.UserID != userID) {
		return Snapshot{}, ErrNotFound
	}
	if err := fn(rn); err != nil {
		return rn.snap.clone(), err
	}
	rn.snap.UpdatedAt = time.Now()
	return rn.snap.clone(), nil
}

// finish moves a run to a terminal phase once. It reports false when the
// run had already finished.
func (r *Registry) finish(id string, fn func(s *Snapshot)) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rn, ok := r.runs[id]
	if !ok || rn.snap.Phase.Terminal() {
		return Snapshot{}, false
	}
	fn(&rn.snap)
	rn.snap.UpdatedAt = time.Now()
	rn.cancel()
	close(rn.done)
	return rn.snap.clone(), true
}

func (r *Registry) lookup(id string) (*run, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rn, ok := r.runs[id]
	return rn, ok
}

// Wait blocks until run id reaches a terminal phase or ctx ends.
func (r *Registry) Wait(ctx context.Context, id string) (Snapshot, error) {
	rn, ok := r.lookup(id)
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	select {
	case <-rn.done:
		return r.Get(id, "")
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// ActiveRuns counts non-terminal runs by flow.
func (r *Registry) ActiveRuns() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]int{string(FlowAudioSummary): 0, string(FlowPodcast): 0}
	for _, rn := range r.runs {
		if !rn.snap.Phase.Terminal() {
			out[string(rn.snap.Flow)]++
		}
	}
	return out
}

// Prune drops terminal runs last updated before cutoff.
func (r *Registry) Prune(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, rn := range r.runs {
		if rn.snap.Phase.Terminal() && rn.snap.UpdatedAt.Before(cutoff) {
			delete(r.runs, id)
			n++
		}
	}
	return n
}

// IdlePreviews returns runs that have waited in preview since before cutoff.
func (r *Registry) IdlePreviews(cutoff time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, rn := range r.runs {
		if rn.snap.Phase == PhasePreview && rn.snap.UpdatedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}
