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

package domain

import (
	"fmt"
	"time"
)

// JobState is the lifecycle state of an ingestion job. Transitions form a
// DAG: pending -> in_progress -> {completed, failed}. Anything else raises
// InvariantViolation.
type JobState string

const (
	JobPending    JobState = "pending"
	JobInProgress JobState = "in_progress"
	JobCompleted  JobState = "completed"
	JobFailed     JobState = "failed"
)

// ParseJobState validates a state label, e.g. when loading from a repository
// row.
func ParseJobState(s string) (JobState, error) {
	switch JobState(s) {
	case JobPending, JobInProgress, JobCompleted, JobFailed:
		return JobState(s), nil
	}
	return "", validation("state", "state_known", "unknown job state %q", s)
}

// JobID derives the stable, human-legible identity of the ingestion job for
// one (symbol, trading date) pair: "{SYMBOL}_{YYYY-MM-DD}".
func JobID(symbol Symbol, date TradingDate) string {
	return fmt.Sprintf("%s_%s", symbol, date)
}

// IngestionJob is the aggregate root for one coordinator-scoped unit of
// work: ingesting one symbol for one trading date. The job never references
// bar instances, only their count; bars never reference their job.
//
// Version is the optimistic-concurrency token managed by the repository: it
// increments on every persisted mutation and a stale save fails with
// ConcurrencyError.
type IngestionJob struct {
	ID          string
	Symbol      Symbol
	TradingDate TradingDate
	Range       TimeRange

	State    JobState
	Version  int64
	BarCount int64
	Error    string

	StartedAt   *time.Time
	CompletedAt *time.Time
}

// NewIngestionJob builds a pending job covering the given symbol and date.
// The intended time range defaults to the full trading day when zero.
func NewIngestionJob(symbol Symbol, date TradingDate, r TimeRange) *IngestionJob {
	if r == (TimeRange{}) {
		r = date.Range()
	}
	return &IngestionJob{
		ID:          JobID(symbol, date),
		Symbol:      symbol,
		TradingDate: date,
		Range:       r,
		State:       JobPending,
	}
}

// Start transitions pending -> in_progress.
func (j *IngestionJob) Start(now time.Time) error {
	if j.State != JobPending {
		return invariant("job %s: cannot start from state %q", j.ID, j.State)
	}
	j.State = JobInProgress
	t := now.UTC()
	j.StartedAt = &t
	return nil
}

// Complete transitions in_progress -> completed, recording the number of
// bars the job persisted. A job only completes once its partition write has
// succeeded.
func (j *IngestionJob) Complete(now time.Time, barCount int64) error {
	if j.State != JobInProgress {
		return invariant("job %s: cannot complete from state %q", j.ID, j.State)
	}
	if barCount < 0 {
		return invariant("job %s: bar count must be >= 0, got %d", j.ID, barCount)
	}
	j.State = JobCompleted
	j.BarCount = barCount
	t := now.UTC()
	j.CompletedAt = &t
	j.Error = ""
	return nil
}

// Fail transitions in_progress -> failed with a short reason. Cancellation
// and timeout report through here with reasons "cancelled" and "timeout".
func (j *IngestionJob) Fail(now time.Time, reason string) error {
	if j.State != JobInProgress {
		return invariant("job %s: cannot fail from state %q", j.ID, j.State)
	}
	j.State = JobFailed
	j.Error = reason
	t := now.UTC()
	j.CompletedAt = &t
	return nil
}

// ResetForRetry returns a terminal or stuck job to pending so a re-run of
// the same (symbol, date) batch can execute under the same identity. The
// forward DAG is unchanged; this is the explicit re-execution entry point,
// and the version still increases on the subsequent save, so observers can
// tell runs apart. Resetting a pending job is a no-op.
func (j *IngestionJob) ResetForRetry() {
	j.State = JobPending
	j.BarCount = 0
	j.Error = ""
	j.StartedAt = nil
	j.CompletedAt = nil
}

// Terminal reports whether the job reached completed or failed.
func (j *IngestionJob) Terminal() bool {
	return j.State == JobCompleted || j.State == JobFailed
}
