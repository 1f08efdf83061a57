// Copyright 2026 Esteban Alvarez. All Rights Reserved.
//
// Created: August 2026
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package repo

import (
	"context"
	"sort"
	"sync"

	"marketpipe/internal/domain"
)

// MemoryCheckpoints is the in-process CheckpointStore double.
type MemoryCheckpoints struct {
	mu      sync.Mutex
	cursors map[domain.Symbol]int64
}

// NewMemoryCheckpoints returns an empty store.
func NewMemoryCheckpoints() *MemoryCheckpoints {
	return &MemoryCheckpoints{cursors: make(map[domain.Symbol]int64)}
}

func (m *MemoryCheckpoints) Get(_ context.Context, symbol domain.Symbol) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cursor, ok := m.cursors[symbol]
	return cursor, ok, nil
}

func (m *MemoryCheckpoints) Set(_ context.Context, symbol domain.Symbol, cursorNs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[symbol] = cursorNs
	return nil
}

func (m *MemoryCheckpoints) Clear(_ context.Context, symbol domain.Symbol) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cursors, symbol)
	return nil
}

// MemoryJobs is the in-process JobRepository double. It honors the same
// optimistic versioning contract as the SQL backing.
type MemoryJobs struct {
	mu   sync.Mutex
	jobs map[string]domain.IngestionJob
}

// NewMemoryJobs returns an empty repository.
func NewMemoryJobs() *MemoryJobs {
	return &MemoryJobs{jobs: make(map[string]domain.IngestionJob)}
}

func (m *MemoryJobs) Create(_ context.Context, job *domain.IngestionJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return ErrDuplicateKey
	}
	job.Version = 1
	m.jobs[job.ID] = *job
	return nil
}

func (m *MemoryJobs) Get(_ context.Context, id string) (*domain.IngestionJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	j := stored
	return &j, nil
}

func (m *MemoryJobs) Save(_ context.Context, job *domain.IngestionJob, expectedVersion int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.jobs[job.ID]
	if !ok {
		return 0, ErrNotFound
	}
	if stored.Version != expectedVersion {
		return 0, &ConcurrencyError{ID: job.ID, Expected: expectedVersion}
	}
	job.Version = expectedVersion + 1
	m.jobs[job.ID] = *job
	return job.Version, nil
}

func (m *MemoryJobs) listWhere(match func(domain.IngestionJob) bool) []*domain.IngestionJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	var jobs []*domain.IngestionJob
	for _, stored := range m.jobs {
		if match(stored) {
			j := stored
			jobs = append(jobs, &j)
		}
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].ID < jobs[k].ID })
	return jobs
}

func (m *MemoryJobs) ListByState(_ context.Context, state domain.JobState) ([]*domain.IngestionJob, error) {
	return m.listWhere(func(j domain.IngestionJob) bool { return j.State == state }), nil
}

func (m *MemoryJobs) ListByDate(_ context.Context, date domain.TradingDate) ([]*domain.IngestionJob, error) {
	return m.listWhere(func(j domain.IngestionJob) bool { return j.TradingDate == date }), nil
}

func (m *MemoryJobs) ListBySymbol(_ context.Context, symbol domain.Symbol) ([]*domain.IngestionJob, error) {
	return m.listWhere(func(j domain.IngestionJob) bool { return j.Symbol == symbol }), nil
}
