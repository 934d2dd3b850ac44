package store

import (
	"context"
	"sync"

	"github.com/vtakaj/ShiftAgent/internal/model"
	"github.com/vtakaj/ShiftAgent/pkg/apperr"
)

// MemoryStore 进程内作业存储（测试与开发用）
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*model.Job
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*model.Job)}
}

func (s *MemoryStore) Save(_ context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, apperr.Newf(apperr.KindNotFound, "not_found.job", "作业不存在: %s", id)
	}
	return job.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context) ([]*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.Clone())
	}
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return apperr.Newf(apperr.KindNotFound, "not_found.job", "作业不存在: %s", id)
	}
	delete(s.jobs, id)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

