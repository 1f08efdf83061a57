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
	"time"

	"github.com/google/uuid"
)

// EventType identifies one variant of the sealed domain event set.
type EventType string

const (
	EventIngestionJobCompleted EventType = "IngestionJobCompleted"
	EventIngestionJobFailed    EventType = "IngestionJobFailed"
	EventValidationCompleted   EventType = "ValidationCompleted"
	EventValidationFailed      EventType = "ValidationFailed"
	EventAggregationCompleted  EventType = "AggregationCompleted"
	EventAggregationFailed     EventType = "AggregationFailed"
	EventDataPruned            EventType = "DataPruned"
)

// Event is the common surface of every domain event. Each event carries a
// generated id, its occurrence instant, and the id of the aggregate it
// concerns (the job id, or the data type for prunes).
type Event interface {
	Type() EventType
	EventID() uuid.UUID
	OccurredAt() time.Time
	AggregateID() string
}

// EventMeta implements the common Event surface; variants embed it.
type EventMeta struct {
	ID        uuid.UUID
	At        time.Time
	Aggregate string
	Kind      EventType
}

func newEventMeta(kind EventType, aggregate string) EventMeta {
	return EventMeta{ID: uuid.New(), At: time.Now().UTC(), Aggregate: aggregate, Kind: kind}
}

func (m EventMeta) Type() EventType       { return m.Kind }
func (m EventMeta) EventID() uuid.UUID    { return m.ID }
func (m EventMeta) OccurredAt() time.Time { return m.At }
func (m EventMeta) AggregateID() string   { return m.Aggregate }

// IngestionJobCompleted announces that one job persisted its partition and
// reached the completed state.
type IngestionJobCompleted struct {
	EventMeta
	JobID    string
	Symbols  []Symbol
	BarCount int64
}

func NewIngestionJobCompleted(jobID string, symbols []Symbol, barCount int64) IngestionJobCompleted {
	return IngestionJobCompleted{
		EventMeta: newEventMeta(EventIngestionJobCompleted, jobID),
		JobID:     jobID,
		Symbols:   symbols,
		BarCount:  barCount,
	}
}

// IngestionJobFailed announces a terminal job failure; sibling jobs are
// unaffected.
type IngestionJobFailed struct {
	EventMeta
	JobID  string
	Reason string
}

func NewIngestionJobFailed(jobID, reason string) IngestionJobFailed {
	return IngestionJobFailed{
		EventMeta: newEventMeta(EventIngestionJobFailed, jobID),
		JobID:     jobID,
		Reason:    reason,
	}
}

// ValidationSummary totals a validation pass over one job's partitions.
type ValidationSummary struct {
	Total        int64
	Passed       int64
	FailedByRule map[string]int64
}

// ValidationCompleted announces that a job's partitions were validated.
type ValidationCompleted struct {
	EventMeta
	JobID   string
	Summary ValidationSummary
}

func NewValidationCompleted(jobID string, summary ValidationSummary) ValidationCompleted {
	return ValidationCompleted{
		EventMeta: newEventMeta(EventValidationCompleted, jobID),
		JobID:     jobID,
		Summary:   summary,
	}
}

// ValidationFailed announces that the validation pass itself could not run.
type ValidationFailed struct {
	EventMeta
	JobID  string
	Reason string
}

func NewValidationFailed(jobID, reason string) ValidationFailed {
	return ValidationFailed{
		EventMeta: newEventMeta(EventValidationFailed, jobID),
		JobID:     jobID,
		Reason:    reason,
	}
}

// AggregationCompleted announces materialized coarser frames for a job,
// keyed by frame with the number of rows written.
type AggregationCompleted struct {
	EventMeta
	JobID  string
	Frames map[Frame]int64
}

func NewAggregationCompleted(jobID string, frames map[Frame]int64) AggregationCompleted {
	return AggregationCompleted{
		EventMeta: newEventMeta(EventAggregationCompleted, jobID),
		JobID:     jobID,
		Frames:    frames,
	}
}

// AggregationFailed announces an aggregation failure with its cause.
type AggregationFailed struct {
	EventMeta
	JobID  string
	Reason string
}

func NewAggregationFailed(jobID, reason string) AggregationFailed {
	return AggregationFailed{
		EventMeta: newEventMeta(EventAggregationFailed, jobID),
		JobID:     jobID,
		Reason:    reason,
	}
}

// DataPruned announces an age-based retention sweep.
type DataPruned struct {
	EventMeta
	DataType string
	Amount   int64
	Cutoff   TradingDate
}

func NewDataPruned(dataType string, amount int64, cutoff TradingDate) DataPruned {
	return DataPruned{
		EventMeta: newEventMeta(EventDataPruned, dataType),
		DataType:  dataType,
		Amount:    amount,
		Cutoff:    cutoff,
	}
}
