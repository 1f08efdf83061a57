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

package app

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"
)

// metricsSchema is the snapshot table: one row per metric sample per
// snapshot instant, for after-the-fact runs analysis without a Prometheus
// server in the loop.
const metricsSchema = `
CREATE TABLE IF NOT EXISTS metric_snapshots (
  taken_at_ns BIGINT NOT NULL,
  name        TEXT NOT NULL,
  labels      TEXT NOT NULL,
  value       REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_name ON metric_snapshots(name, taken_at_ns);
`

// MetricsSink snapshots the process's counters and gauges into a SQLite
// file (METRICS_DB_PATH).
type MetricsSink struct {
	db       *sqlx.DB
	gatherer prometheus.Gatherer
	log      *zap.Logger
}

// NewMetricsSink opens (or creates) the snapshot database.
func NewMetricsSink(path string, log *zap.Logger) (*MetricsSink, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("app: open metrics db: %w", err)
	}
	if _, err := db.Exec(metricsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("app: metrics schema: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &MetricsSink{db: db, gatherer: prometheus.DefaultGatherer, log: log}, nil
}

// Snapshot writes the current value of every marketpipe counter and gauge.
func (s *MetricsSink) Snapshot() error {
	families, err := s.gatherer.Gather()
	if err != nil {
		return fmt.Errorf("app: gather metrics: %w", err)
	}
	now := time.Now().UnixNano()
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("app: metrics tx: %w", err)
	}
	rows := 0
	for _, fam := range families {
		if !strings.HasPrefix(fam.GetName(), "marketpipe_") {
			continue
		}
		for _, m := range fam.GetMetric() {
			var value float64
			switch fam.GetType() {
			case dto.MetricType_COUNTER:
				value = m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				value = m.GetGauge().GetValue()
			default:
				continue
			}
			if _, err := tx.Exec(
				`INSERT INTO metric_snapshots (taken_at_ns, name, labels, value) VALUES (?, ?, ?, ?)`,
				now, fam.GetName(), flattenLabels(m), value,
			); err != nil {
				tx.Rollback()
				return fmt.Errorf("app: insert snapshot: %w", err)
			}
			rows++
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("app: commit snapshot: %w", err)
	}
	s.log.Debug("metrics snapshot written", zap.Int("rows", rows))
	return nil
}

// Close releases the database.
func (s *MetricsSink) Close() error { return s.db.Close() }

func flattenLabels(m *dto.Metric) string {
	pairs := make([]string, 0, len(m.GetLabel()))
	for _, l := range m.GetLabel() {
		pairs = append(pairs, l.GetName()+"="+l.GetValue())
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}
