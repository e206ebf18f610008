// Package runstore tracks in-flight generation runs and retains recently
// completed plans for retrieval by the API layer.
package runstore

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"planify/internal/pipeline"
	"planify/internal/types"
)

var ErrNotFound = errors.New("runstore: run not found")

type Status string

const (
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Run is a snapshot of one generation run's lifecycle.
type Run struct {
	ID        string         `json:"id"`
	Status    Status         `json:"status"`
	State     pipeline.State `json:"state"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Store is an in-memory run registry with per-run event fan-out. Completed
// plans live in an LRU cache so long-finished runs age out instead of
// accumulating.
type Store struct {
	mu    sync.RWMutex
	runs  map[string]*Run
	subs  map[string]map[chan pipeline.StageEvent]struct{}
	plans *lru.Cache[string, *types.GeneratedPlan]
}

func New(planCacheSize int) (*Store, error) {
	if planCacheSize <= 0 {
		planCacheSize = 256
	}
	cache, err := lru.New[string, *types.GeneratedPlan](planCacheSize)
	if err != nil {
		return nil, err
	}
	return &Store{
		runs:  make(map[string]*Run),
		subs:  make(map[string]map[chan pipeline.StageEvent]struct{}),
		plans: cache,
	}, nil
}

// Create registers a new running run and returns its snapshot.
func (s *Store) Create() Run {
	run := &Run{
		ID:        uuid.NewString(),
		Status:    StatusRunning,
		State:     pipeline.StateAssembling,
		StartedAt: time.Now(),
	}
	s.mu.Lock()
	s.runs[run.ID] = run
	s.mu.Unlock()
	return *run
}

// Get returns the run snapshot plus the completed plan when one exists.
func (s *Store) Get(id string) (Run, *types.GeneratedPlan, error) {
	s.mu.RLock()
	run, ok := s.runs[id]
	if !ok {
		s.mu.RUnlock()
		return Run{}, nil, ErrNotFound
	}
	snapshot := *run
	s.mu.RUnlock()
	plan, _ := s.plans.Get(id)
	return snapshot, plan, nil
}

// Advance records a pipeline state transition and publishes it to watchers.
func (s *Store) Advance(id string, ev pipeline.StageEvent) {
	s.mu.Lock()
	run, ok := s.runs[id]
	if ok {
		run.State = ev.State
	}
	subs := s.subscribersLocked(id)
	s.mu.Unlock()
	if !ok {
		return
	}
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			// slow watcher; drop rather than stall the pipeline
		}
	}
}

// Complete stores the finished plan and closes out the run.
func (s *Store) Complete(id string, plan *types.GeneratedPlan) {
	s.plans.Add(id, plan)
	s.finish(id, StatusComplete, "")
}

// Fail closes out the run with an error message.
func (s *Store) Fail(id string, errMsg string) {
	s.finish(id, StatusFailed, errMsg)
}

func (s *Store) finish(id string, status Status, errMsg string) {
	s.mu.Lock()
	run, ok := s.runs[id]
	if ok {
		run.Status = status
		run.EndedAt = time.Now()
		run.Error = errMsg
	}
	subs := s.subs[id]
	delete(s.subs, id)
	s.mu.Unlock()
	if !ok {
		return
	}
	for ch := range subs {
		close(ch)
	}
}

// Subscribe returns a channel of stage events for the run and a cancel
// function. The channel is closed when the run finishes or the subscription
// is cancelled.
func (s *Store) Subscribe(id string) (<-chan pipeline.StageEvent, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, nil, ErrNotFound
	}
	ch := make(chan pipeline.StageEvent, 16)
	if run.Status != StatusRunning {
		// already terminal; hand back a closed channel
		close(ch)
		return ch, func() {}, nil
	}
	if s.subs[id] == nil {
		s.subs[id] = make(map[chan pipeline.StageEvent]struct{})
	}
	s.subs[id][ch] = struct{}{}
	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if set, ok := s.subs[id]; ok {
			if _, live := set[ch]; live {
				delete(set, ch)
				close(ch)
			}
		}
	}
	return ch, cancel, nil
}

func (s *Store) subscribersLocked(id string) []chan pipeline.StageEvent {
	set := s.subs[id]
	out := make([]chan pipeline.StageEvent, 0, len(set))
	for ch := range set {
		out = append(out, ch)
	}
	return out
}
