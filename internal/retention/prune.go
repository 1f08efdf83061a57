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

// Package retention removes bar data past its age horizon. Pruning is
// partition-grained: a partition strictly older than the cutoff date is
// deleted whole, newer ones are never touched.
package retention

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"marketpipe/internal/bus"
	"marketpipe/internal/domain"
	"marketpipe/internal/storage"
)

var prunedRows = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "marketpipe_retention_pruned_rows_total",
	Help: "Rows removed by retention sweeps",
}, []string{"frame"})

func init() {
	prometheus.MustRegister(prunedRows)
}

// Pruner sweeps the partition tree.
type Pruner struct {
	store  *storage.Engine
	events *bus.Bus
	log    *zap.Logger
}

// NewPruner builds a sweeper. Events may be nil.
func NewPruner(store *storage.Engine, events *bus.Bus, log *zap.Logger) *Pruner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pruner{store: store, events: events, log: log}
}

// Result summarizes one sweep.
type Result struct {
	Partitions int
	Rows       int64
	Cutoff     domain.TradingDate
}

// PruneOlderThan deletes, across every frame, partitions whose date is
// strictly before cutoff, and publishes one DataPruned event when anything
// was removed.
func (p *Pruner) PruneOlderThan(ctx context.Context, cutoff domain.TradingDate) (*Result, error) {
	result := &Result{Cutoff: cutoff}
	frames := append([]domain.Frame{domain.Frame1m}, domain.AggregationFrames...)
	for _, frame := range frames {
		parts, err := p.store.ListPartitions(frame)
		if err != nil {
			return nil, fmt.Errorf("retention: list %s: %w", frame, err)
		}
		for _, part := range parts {
			if !part.Date.Before(cutoff) {
				continue
			}
			stats, err := p.store.Stats(part)
			if err != nil {
				return nil, err
			}
			if err := p.store.DeletePartition(part); err != nil {
				return nil, err
			}
			result.Partitions++
			result.Rows += stats.Rows
			prunedRows.WithLabelValues(frame.String()).Add(float64(stats.Rows))
			p.log.Info("partition pruned",
				zap.String("partition", part.String()),
				zap.Int64("rows", stats.Rows))
		}
	}
	if p.events != nil && result.Partitions > 0 {
		p.events.Publish(ctx, domain.NewDataPruned("ohlcv_bars", result.Rows, cutoff))
	}
	return result, nil
}
