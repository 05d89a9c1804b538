package job

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps jobs in process. It backs tests and local runs.
type MemoryStore struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	tasks map[string]map[string]TaskRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:  make(map[string]*Job),
		tasks: make(map[string]map[string]TaskRecord),
	}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return j.Clone(), nil
}

func (s *MemoryStore) Put(_ context.Context, j *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = j.Clone()
	return nil
}

func (s *MemoryStore) Update(_ context.Context, id string, p Patch) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := cur.Clone()
	if err := apply(next, p, now()); err != nil {
		return nil, err
	}
	s.jobs[id] = next
	return next.Clone(), nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID string) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Job, 0)
	for _, j := range s.jobs {
		if j.UserID == userID {
			out = append(out, j.Clone())
		}
	}
	sortRecentFirst(out)
	return out, nil
}

func (s *MemoryStore) RecordTask(_ context.Context, jobID string, rec TaskRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return false, ErrNotFound
	}
	recs, ok := s.tasks[jobID]
	if !ok {
		recs = make(map[string]TaskRecord)
		s.tasks[jobID] = recs
	}
	if _, dup := recs[rec.TaskName]; dup {
		return false, nil
	}
	recs[rec.TaskName] = rec
	return true, nil
}

func (s *MemoryStore) Tasks(_ context.Context, jobID string) (map[string]TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]TaskRecord, len(s.tasks[jobID]))
	for k, v := range s.tasks[jobID] {
		out[k] = v
	}
	return out, nil
}

// sortRecentFirst orders by creation time, newest first, breaking ties by id
// so listings are stable.
func sortRecentFirst(jobs []*Job) {
	sort.SliceStable(jobs, func(a, b int) bool {
		if !jobs[a].CreatedAt.Equal(jobs[b].CreatedAt) {
			return jobs[a].CreatedAt.After(jobs[b].CreatedAt)
		}
		return jobs[a].ID > jobs[b].ID
	})
}
