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

// Package ingest runs ingestion batches. A batch is the cross product of
// symbols and trading dates; every (symbol, date) pair is one job, one
// worker, one partition write. Workers are isolated: one job failing, timing
// out, or being cancelled never unseats its siblings, and each reaches
// exactly one terminal state with exactly one terminal event.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"marketpipe/internal/bus"
	"marketpipe/internal/domain"
	"marketpipe/internal/provider"
	"marketpipe/internal/ratelimit"
	"marketpipe/internal/repo"
	"marketpipe/internal/storage"
)

// DefaultMaxWorkers bounds concurrent jobs when the caller does not.
const DefaultMaxWorkers = 4

// DefaultWaitSpikeThreshold is how many new limiter waits between job
// launches count as vendor pressure worth shedding a worker over, when the
// caller does not tune it.
const DefaultWaitSpikeThreshold = 10

// Coordinator executes ingestion batches against one provider.
type Coordinator struct {
	provider    provider.MarketDataProvider
	jobs        repo.JobRepository
	checkpoints repo.CheckpointStore
	store       *storage.Engine
	events      *bus.Bus
	limiter     *ratelimit.Limiter

	maxWorkers int64
	waitSpike  int64
	log        *zap.Logger
	now        func() time.Time
}

// Params wires a Coordinator. Provider, Jobs, Checkpoints and Store are
// required; Events, Limiter and Log are optional.
type Params struct {
	Provider    provider.MarketDataProvider
	Jobs        repo.JobRepository
	Checkpoints repo.CheckpointStore
	Store       *storage.Engine
	Events      *bus.Bus
	Limiter     *ratelimit.Limiter
	MaxWorkers  int
	// WaitSpikeThreshold is the limiter wait delta between job launches that
	// triggers backpressure; zero or negative picks the default.
	WaitSpikeThreshold int
	Log                *zap.Logger
}

// NewCoordinator validates the wiring and builds a coordinator.
func NewCoordinator(p Params) (*Coordinator, error) {
	if p.Provider == nil || p.Jobs == nil || p.Checkpoints == nil || p.Store == nil {
		return nil, fmt.Errorf("ingest: provider, jobs, checkpoints and store are required")
	}
	if p.MaxWorkers <= 0 {
		p.MaxWorkers = DefaultMaxWorkers
	}
	if p.WaitSpikeThreshold <= 0 {
		p.WaitSpikeThreshold = DefaultWaitSpikeThreshold
	}
	if p.Log == nil {
		p.Log = zap.NewNop()
	}
	if p.Events == nil {
		p.Events = bus.New(p.Log)
	}
	return &Coordinator{
		provider:    p.Provider,
		jobs:        p.Jobs,
		checkpoints: p.Checkpoints,
		store:       p.Store,
		events:      p.Events,
		limiter:     p.Limiter,
		maxWorkers:  int64(p.MaxWorkers),
		waitSpike:   int64(p.WaitSpikeThreshold),
		log:         p.Log,
		now:         time.Now,
	}, nil
}

// BatchResult summarizes one ExecuteBatch run.
type BatchResult struct {
	Completed []string
	Failed    map[string]string
	BarCounts map[string]int64
}

// jobOutcome is one worker's terminal report, queued for ordered publishing.
type jobOutcome struct {
	job      *domain.IngestionJob
	barCount int64
	failure  string
}

// ExecuteBatch ingests every (symbol, date) pair for dates from..to
// inclusive. Pairs whose job already exists are reset and re-run under the
// same identity. The returned error covers batch setup only; per-job
// failures land in the result and their events.
func (c *Coordinator) ExecuteBatch(ctx context.Context, symbols []domain.Symbol, from, to domain.TradingDate) (*BatchResult, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("ingest: batch requires at least one symbol")
	}
	if to.Before(from) {
		return nil, fmt.Errorf("ingest: batch dates reversed (%s after %s)", from, to)
	}

	var jobs []*domain.IngestionJob
	for date := from; !to.Before(date); date = date.Next() {
		for _, symbol := range symbols {
			job, err := c.prepareJob(ctx, symbol, date)
			if err != nil {
				return nil, err
			}
			jobs = append(jobs, job)
		}
	}

	sem := semaphore.NewWeighted(c.maxWorkers)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes []jobOutcome

		lastWaits int64
		retained  int64
	)
	if c.limiter != nil {
		lastWaits, _ = c.limiter.WaitTotals()
	}

	for _, job := range jobs {
		// Vendor pressure observed between launches sheds one worker slot,
		// down to a floor of one.
		if c.limiter != nil && retained < c.maxWorkers-1 {
			waits, _ := c.limiter.WaitTotals()
			if waits-lastWaits >= c.waitSpike {
				if sem.TryAcquire(1) {
					retained++
					backpressureSheds.Inc()
					c.log.Warn("rate limiter pressure, shedding a worker slot",
						zap.Int64("retained", retained))
				}
				lastWaits = waits
			}
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			// Batch context ended before this job launched; it fails
			// terminally like any other cancelled job.
			outcome := c.terminateUnlaunched(job, err)
			mu.Lock()
			outcomes = append(outcomes, outcome)
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(job *domain.IngestionJob) {
			defer wg.Done()
			defer sem.Release(1)
			outcome := c.runJob(ctx, job)
			mu.Lock()
			outcomes = append(outcomes, outcome)
			mu.Unlock()
		}(job)
	}
	wg.Wait()
	if retained > 0 {
		sem.Release(retained)
	}

	// Events go out after every worker has finished, in completion order,
	// exactly one terminal event per job.
	result := &BatchResult{Failed: make(map[string]string), BarCounts: make(map[string]int64)}
	for _, o := range outcomes {
		if o.failure == "" {
			result.Completed = append(result.Completed, o.job.ID)
			result.BarCounts[o.job.ID] = o.barCount
			jobsTotal.WithLabelValues("completed").Inc()
			c.events.Publish(ctx, domain.NewIngestionJobCompleted(o.job.ID, []domain.Symbol{o.job.Symbol}, o.barCount))
		} else {
			result.Failed[o.job.ID] = o.failure
			jobsTotal.WithLabelValues("failed").Inc()
			c.events.Publish(ctx, domain.NewIngestionJobFailed(o.job.ID, o.failure))
		}
	}
	return result, nil
}

// prepareJob creates the job row, or resets an existing one so the batch
// re-runs it under the same identity.
func (c *Coordinator) prepareJob(ctx context.Context, symbol domain.Symbol, date domain.TradingDate) (*domain.IngestionJob, error) {
	job := domain.NewIngestionJob(symbol, date, domain.TimeRange{})
	err := c.jobs.Create(ctx, job)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, repo.ErrDuplicateKey) {
		return nil, err
	}
	existing, err := c.jobs.Get(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	existing.ResetForRetry()
	if err := c.persist(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// runJob drives one job to a terminal state. Every return path leaves the
// job terminal and persisted.
func (c *Coordinator) runJob(ctx context.Context, job *domain.IngestionJob) jobOutcome {
	activeWorkers.Inc()
	defer activeWorkers.Dec()

	if err := job.Start(c.now()); err != nil {
		return c.failJob(ctx, job, err)
	}
	if err := c.persist(ctx, job); err != nil {
		return c.failJob(ctx, job, err)
	}

	barCount, err := c.ingest(ctx, job)
	if err != nil {
		return c.failJob(ctx, job, err)
	}

	if err := job.Complete(c.now(), barCount); err != nil {
		return c.failJob(ctx, job, err)
	}
	if err := c.persist(ctx, job); err != nil {
		return jobOutcome{job: job, failure: failureReason(err)}
	}
	barsIngested.Add(float64(barCount))
	c.log.Info("job completed",
		zap.String("job_id", job.ID),
		zap.Int64("bars", barCount))
	return jobOutcome{job: job, barCount: barCount}
}

// ingest fetches, persists and checkpoints one job's bars. A checkpoint left
// by an earlier run narrows the fetch to the unfinished remainder; rows the
// earlier run already published stay in place because the storage write
// merges them back ahead of the new ones.
func (c *Coordinator) ingest(ctx context.Context, job *domain.IngestionJob) (int64, error) {
	partition := storage.Partition{Frame: domain.Frame1m, Symbol: job.Symbol, Date: job.TradingDate}

	fetchStart := job.Range.Start
	cursor, resumed, err := c.checkpoints.Get(ctx, job.Symbol)
	if err != nil {
		return 0, err
	}
	// A cursor at or past this job's window belongs to a later day; a
	// backfill must not be narrowed by it.
	if resumed && cursor < int64(job.Range.End) {
		next := domain.Timestamp(cursor + domain.MinuteNs)
		if next > fetchStart {
			fetchStart = next
		}
	}

	var fetched []*domain.OHLCVBar
	if fetchStart < job.Range.End {
		fetchRange, err := domain.NewTimeRangeWithLimit(fetchStart, job.Range.End, 0)
		if err != nil {
			return 0, err
		}
		fetched, err = c.provider.FetchBars(ctx, job.Symbol, fetchRange)
		if err != nil {
			return 0, err
		}
	}

	n, err := c.store.Write(partition, job.ID, fetched)
	if err != nil {
		return 0, err
	}

	var maxTs domain.Timestamp
	for _, b := range fetched {
		if b.Timestamp > maxTs {
			maxTs = b.Timestamp
		}
	}
	// The cursor only advances; a backfill behind it leaves it alone.
	if len(fetched) > 0 && (!resumed || maxTs.Ns() > cursor) {
		if err := c.checkpoints.Set(ctx, job.Symbol, maxTs.Ns()); err != nil {
			return 0, err
		}
	}
	return int64(n), nil
}

// failJob records the terminal failure, tolerating jobs that already left
// in_progress.
func (c *Coordinator) failJob(ctx context.Context, job *domain.IngestionJob, cause error) jobOutcome {
	reason := failureReason(cause)
	if err := job.Fail(c.now(), reason); err == nil {
		if perr := c.persist(ctx, job); perr != nil {
			c.log.Error("failed to persist job failure",
				zap.String("job_id", job.ID), zap.Error(perr))
		}
	}
	c.log.Warn("job failed",
		zap.String("job_id", job.ID),
		zap.String("reason", reason))
	return jobOutcome{job: job, failure: reason}
}

// terminateUnlaunched fails a job whose worker never started because the
// batch context ended first.
func (c *Coordinator) terminateUnlaunched(job *domain.IngestionJob, cause error) jobOutcome {
	// The batch context is gone; persistence uses a fresh context so the
	// terminal state still lands.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := job.Start(c.now()); err == nil {
		_ = c.persist(ctx, job)
	}
	return c.failJob(ctx, job, cause)
}

// persist saves with a short reload-and-retry loop around stale versions.
func (c *Coordinator) persist(ctx context.Context, job *domain.IngestionJob) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		_, err := c.jobs.Save(ctx, job, job.Version)
		if err == nil {
			return nil
		}
		var stale *repo.ConcurrencyError
		if !errors.As(err, &stale) {
			return err
		}
		lastErr = err
		current, gerr := c.jobs.Get(ctx, job.ID)
		if gerr != nil {
			return gerr
		}
		job.Version = current.Version
	}
	return fmt.Errorf("ingest: save %s: %w", job.ID, lastErr)
}

// failureReason maps errors to the short terminal reasons stored on the job.
func failureReason(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 500 {
		msg = msg[:500]
	}
	return msg
}
