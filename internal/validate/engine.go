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

package validate

import (
	"fmt"

	"go.uber.org/zap"

	"marketpipe/internal/domain"
	"marketpipe/internal/storage"
)

// Report is the outcome of validating one job's partition.
type Report struct {
	JobID     string
	Symbol    domain.Symbol
	Date      domain.TradingDate
	Total     int
	Passed    int
	Findings  []Finding
	Integrity storage.IntegrityStats
}

// Failed reports how many rows had at least one finding.
func (r *Report) Failed() int { return r.Total - r.Passed }

// FailedByRule tallies findings per rule id.
func (r *Report) FailedByRule() map[string]int {
	if len(r.Findings) == 0 {
		return nil
	}
	byRule := make(map[string]int)
	for _, f := range r.Findings {
		byRule[f.Rule]++
	}
	return byRule
}

// Summary converts the report to its event payload form.
func (r *Report) Summary() domain.ValidationSummary {
	s := domain.ValidationSummary{
		Total:  int64(r.Total),
		Passed: int64(r.Passed),
	}
	if byRule := r.FailedByRule(); byRule != nil {
		s.FailedByRule = make(map[string]int64, len(byRule))
		for rule, n := range byRule {
			s.FailedByRule[rule] = int64(n)
		}
	}
	return s
}

// Engine runs a rule set over stored partitions.
type Engine struct {
	store *storage.Engine
	rules []Rule
	log   *zap.Logger
}

// NewEngine builds a validator over store. nil rules picks DefaultRules plus
// the default price ceiling.
func NewEngine(store *storage.Engine, rules []Rule, log *zap.Logger) *Engine {
	if rules == nil {
		rules = append(DefaultRules(), PriceReasonableness(0))
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{store: store, rules: rules, log: log}
}

// ValidateJob validates the 1m partition the job wrote: an integrity pass
// over the stored rows first, then every rule over every row. Validation
// itself never fails on findings; the error is for I/O and integrity only.
func (e *Engine) ValidateJob(symbol domain.Symbol, date domain.TradingDate) (*Report, error) {
	p := storage.Partition{Frame: domain.Frame1m, Symbol: symbol, Date: date}
	stats, err := e.store.ValidateIntegrity(p)
	if err != nil {
		return nil, fmt.Errorf("validate: integrity %s: %w", p, err)
	}
	records, err := e.store.ReadRecords(p)
	if err != nil {
		return nil, fmt.Errorf("validate: read %s: %w", p, err)
	}
	report := e.ValidateRecords(p, records)
	report.JobID = domain.JobID(symbol, date)
	report.Integrity = stats
	e.log.Info("validation complete",
		zap.String("job_id", report.JobID),
		zap.Int("total", report.Total),
		zap.Int("failed", report.Failed()))
	return report, nil
}

// ValidateRecords applies every rule to every row.
func (e *Engine) ValidateRecords(p storage.Partition, records []storage.Record) *Report {
	report := &Report{Symbol: p.Symbol, Date: p.Date, Total: len(records)}
	for _, r := range records {
		clean := true
		for _, rule := range e.rules {
			if f := rule.Check(p, r); f != nil {
				report.Findings = append(report.Findings, *f)
				failuresTotal.WithLabelValues(f.Rule).Inc()
				clean = false
			}
		}
		if clean {
			report.Passed++
		}
	}
	return report
}
