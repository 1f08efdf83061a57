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

// Package repo holds the durable checkpoint and job repositories.
//
// Both are capabilities, not class hierarchies: the interfaces below
// describe the operations, and concrete backings plug in behind them. Two
// ship here — a SQL backing (SQLite file-embedded or Postgres
// client-server, selected by driver name) and a Redis checkpoint backing —
// plus in-memory doubles for tests. Schema migrations are an external
// concern: the SQL backing asserts the current schema version at open time
// and refuses to operate otherwise.
package repo

import (
	"context"
	"errors"
	"fmt"

	"marketpipe/internal/domain"
)

// ErrNotFound reports a missing row.
var ErrNotFound = errors.New("repo: not found")

// ErrDuplicateKey reports an insert that collided with an existing identity.
var ErrDuplicateKey = errors.New("repo: duplicate key")

// ConcurrencyError reports an optimistic save whose expected version no
// longer matches the stored row.
type ConcurrencyError struct {
	ID       string
	Expected int64
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("repo: job %s: stale version %d", e.ID, e.Expected)
}

// RepositoryError wraps generic backing I/O failures.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string { return fmt.Sprintf("repo: %s: %v", e.Op, e.Err) }
func (e *RepositoryError) Unwrap() error { return e.Err }

// CheckpointStore is the per-symbol resume cursor: the largest timestamp
// successfully persisted so far. Set is last-writer-wins; checkpoints are
// advisory (the worst case of a lost update is a re-ingest that the storage
// dedup absorbs). Implementations are safe under concurrent readers and
// writers.
type CheckpointStore interface {
	// Get returns the cursor and whether one exists for the symbol.
	Get(ctx context.Context, symbol domain.Symbol) (int64, bool, error)
	// Set overwrites the cursor for the symbol.
	Set(ctx context.Context, symbol domain.Symbol, cursorNs int64) error
	// Clear removes the cursor for the symbol; clearing a missing cursor is
	// not an error.
	Clear(ctx context.Context, symbol domain.Symbol) error
}

// JobRepository stores ingestion jobs under optimistic concurrency. A job's
// version increments on every persisted mutation; Save with a stale
// expected version fails with ConcurrencyError.
type JobRepository interface {
	// Create persists a new job at version 1. ErrDuplicateKey when the id
	// exists.
	Create(ctx context.Context, job *domain.IngestionJob) error
	// Get loads one job. ErrNotFound when absent.
	Get(ctx context.Context, id string) (*domain.IngestionJob, error)
	// Save persists a mutated job, guarded by expectedVersion, and returns
	// the new version (also written back to job.Version).
	Save(ctx context.Context, job *domain.IngestionJob, expectedVersion int64) (int64, error)
	ListByState(ctx context.Context, state domain.JobState) ([]*domain.IngestionJob, error)
	ListByDate(ctx context.Context, date domain.TradingDate) ([]*domain.IngestionJob, error)
	ListBySymbol(ctx context.Context, symbol domain.Symbol) ([]*domain.IngestionJob, error)
}
