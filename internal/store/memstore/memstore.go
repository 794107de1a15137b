// Package memstore is the reference, single-process Job Store (spec.md
// §4.1.3). It keeps every job in a map guarded by one mutex, and a
// min-heap ready index ordered by (score, id) for O(log n) claims.
package memstore

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/asyncengine/engine/internal/clock"
	"github.com/asyncengine/engine/internal/job"
	"github.com/asyncengine/engine/internal/store"
)

// Store is the in-memory Job Store. Claim is implemented by taking the
// mutex, scanning the ready index for the min-score eligible entry,
// atomically replacing it, and releasing — exactly the compound step
// spec.md §4.1.3 describes, just backed by a heap instead of a linear
// scan over the job map.
type Store struct {
	mu    sync.Mutex
	clk   clock.Clock
	jobs  map[uuid.UUID]*job.Job
	ready *readyIndex
}

// New creates an empty in-memory store using clk for "now".
func New(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Store{
		clk:   clk,
		jobs:  make(map[uuid.UUID]*job.Job),
		ready: newReadyIndex(),
	}
}

func (s *Store) CreateJob(_ context.Context, j *job.Job) error {
	if j == nil || j.ID == uuid.Nil {
		return store.ErrInvalid("job and job.ID must be non-nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[j.ID]; exists {
		return store.ErrDuplicate(j.ID)
	}
	cp := j.Clone()
	s.jobs[cp.ID] = cp
	if cp.Status == job.StatusQueued {
		s.ready.upsert(cp.ID, cp.ReadyScore())
	}
	return nil
}

func (s *Store) GetJobByID(_ context.Context, id uuid.UUID) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound(id)
	}
	return j.Clone(), nil
}

func (s *Store) UpdateJob(_ context.Context, j *job.Job) error {
	if j == nil || j.ID == uuid.Nil {
		return store.ErrInvalid("job and job.ID must be non-nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[j.ID]; !ok {
		return store.ErrNotFound(j.ID)
	}
	cp := j.Clone()
	cp.LastUpdatedAt = s.clk.Now()
	s.jobs[cp.ID] = cp

	if cp.WorkerID == nil && cp.Status.Claimable() {
		s.ready.upsert(cp.ID, cp.ReadyScore())
	} else {
		s.ready.remove(cp.ID)
	}
	return nil
}

func (s *Store) GetJobsByStatus(_ context.Context, status job.Status, limit int) ([]*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*job.Job, 0, limit)
	for _, j := range s.jobs {
		if j.Status == status {
			out = append(out, j.Clone())
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *Store) ClaimNextAvailableJob(_ context.Context, workerID uuid.UUID) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()
	for {
		id, ok := s.ready.peekMin()
		if !ok {
			return nil, nil
		}
		j, exists := s.jobs[id]
		if !exists {
			s.ready.remove(id)
			continue
		}
		if !j.Claimable(now) {
			// Only its retry delay (which can end later within the current
			// second) keeps it back: leave it indexed; nothing earlier is ready.
			if j.ReadyScore() > now.Unix() || (j.WorkerID == nil && j.Status.Claimable()) {
				return nil, nil
			}
			// Stale entry (e.g. a racing UpdateJob already moved it out of
			// eligibility); drop it and keep scanning.
			s.ready.remove(id)
			continue
		}

		cp := j.Clone()
		cp.Status = job.StatusInProgress
		wid := workerID
		cp.WorkerID = &wid
		started := now
		cp.StartedAt = &started
		cp.LastUpdatedAt = now

		s.jobs[cp.ID] = cp
		s.ready.remove(cp.ID)
		return cp.Clone(), nil
	}
}

func (s *Store) RecoverStuckJobs(_ context.Context, timeoutInstant time.Time, maxRetries int, retryBaseSeconds int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()
	recovered := 0
	for _, j := range s.jobs {
		if j.Status != job.StatusInProgress || j.StartedAt == nil {
			continue
		}
		if j.StartedAt.After(timeoutInstant) {
			continue
		}

		if j.RetryCount < maxRetries {
			j.RetryCount++
			delay := backoffSeconds(j.RetryCount, retryBaseSeconds)
			until := now.Add(time.Duration(delay) * time.Second)
			j.RetryDelayUntil = &until
			j.Status = job.StatusScheduled
			j.WorkerID = nil
			j.StartedAt = nil
			j.LastUpdatedAt = now
			s.ready.upsert(j.ID, j.ReadyScore())
		} else {
			j.Status = job.StatusFailed
			j.CompletedAt = &now
			j.LastUpdatedAt = now
		}
		recovered++
	}
	return recovered, nil
}

func (s *Store) SupportsRecovery() bool { return false }

func backoffSeconds(retryCount int, base int) int64 {
	mult := int64(1)
	for i := 0; i < retryCount; i++ {
		mult *= 2
	}
	return mult * int64(base)
}

// readyIndex is a min-heap over (score, id), ties broken lexicographically
// by id string per spec.md §5's "Ties (same score) break arbitrarily but
// deterministically."
type readyIndex struct {
	items []readyItem
	index map[uuid.UUID]int
}

type readyItem struct {
	id    uuid.UUID
	score int64
}

func newReadyIndex() *readyIndex {
	return &readyIndex{index: make(map[uuid.UUID]int)}
}

func (r *readyIndex) Len() int { return len(r.items) }

func (r *readyIndex) Less(i, j int) bool {
	if r.items[i].score != r.items[j].score {
		return r.items[i].score < r.items[j].score
	}
	return r.items[i].id.String() < r.items[j].id.String()
}

func (r *readyIndex) Swap(i, j int) {
	r.items[i], r.items[j] = r.items[j], r.items[i]
	r.index[r.items[i].id] = i
	r.index[r.items[j].id] = j
}

func (r *readyIndex) Push(x any) {
	it := x.(readyItem)
	r.index[it.id] = len(r.items)
	r.items = append(r.items, it)
}

func (r *readyIndex) Pop() any {
	n := len(r.items)
	it := r.items[n-1]
	r.items = r.items[:n-1]
	delete(r.index, it.id)
	return it
}

func (r *readyIndex) upsert(id uuid.UUID, score int64) {
	if i, ok := r.index[id]; ok {
		r.items[i].score = score
		heap.Fix(r, i)
		return
	}
	heap.Push(r, readyItem{id: id, score: score})
}

func (r *readyIndex) remove(id uuid.UUID) {
	i, ok := r.index[id]
	if !ok {
		return
	}
	heap.Remove(r, i)
}

func (r *readyIndex) peekMin() (uuid.UUID, bool) {
	if len(r.items) == 0 {
		return uuid.Nil, false
	}
	return r.items[0].id, true
}
