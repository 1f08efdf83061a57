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

package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/gofrs/flock"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
	"go.uber.org/zap"

	"marketpipe/internal/domain"
)

// maxRowsPerRowGroup bounds a row group at one session day of 1m bars plus
// slack, keeping memory per group small while still producing single-group
// files for normal ingests.
const maxRowsPerRowGroup = 10000

// Engine reads and writes the Parquet partition tree under one root.
type Engine struct {
	root        string
	compression compress.Codec
	log         *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithZstd switches the write codec from the snappy default to zstd, for
// colder archives where size beats decode speed.
func WithZstd() Option {
	return func(e *Engine) { e.compression = &parquet.Zstd }
}

// WithLogger attaches a logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// NewEngine roots an engine at dir, creating it if absent.
func NewEngine(root string, opts ...Option) (*Engine, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	e := &Engine{root: root, compression: &parquet.Snappy, log: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Root returns the partition tree root.
func (e *Engine) Root() string { return e.root }

// Write persists one job's bars into the partition as a single file named
// <jobID>.parquet. When a file for the same job already exists, its rows are
// loaded and merged ahead of the new ones, so a narrower re-run appends
// instead of truncating. The merged rows are sorted by (symbol, timestamp)
// and deduped first-wins before writing. Rows whose symbol, date, or frame
// disagree with the partition are an InvariantViolation. Returns the row
// count written.
func (e *Engine) Write(p Partition, jobID string, bars []*domain.OHLCVBar) (int, error) {
	if jobID == "" {
		return 0, fmt.Errorf("storage: write requires a job id")
	}
	for _, b := range bars {
		if b.Symbol != p.Symbol || b.Frame != p.Frame || b.TradingDate() != p.Date {
			return 0, &domain.InvariantViolation{Msg: fmt.Sprintf(
				"bar (%s %s %s) does not belong to partition %s",
				b.Symbol, b.Frame, b.Timestamp.Time().Format("2006-01-02T15:04"), p)}
		}
	}

	dir := p.Dir(e.root)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("storage: create partition dir: %w", err)
	}

	lock := flock.New(p.lockPath(e.root))
	if err := lock.Lock(); err != nil {
		return 0, fmt.Errorf("storage: lock partition %s: %w", p, err)
	}
	defer lock.Unlock()

	records := make([]Record, 0, len(bars))
	for _, b := range bars {
		records = append(records, RecordFromBar(b))
	}
	final := p.FilePath(e.root, jobID)
	if _, err := os.Stat(final); err == nil {
		existing, err := parquet.ReadFile[Record](final)
		if err != nil {
			return 0, fmt.Errorf("storage: read existing %s: %w", final, err)
		}
		// Rows already published go first so they keep winning dedup.
		records = append(existing, records...)
	}
	records = dedupRecords(records)

	tmp, err := os.CreateTemp(dir, jobID+".tmp-")
	if err != nil {
		return 0, fmt.Errorf("storage: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := parquet.NewGenericWriter[Record](tmp,
		parquet.Compression(e.compression),
		parquet.MaxRowsPerRowGroup(maxRowsPerRowGroup),
	)
	if len(records) > 0 {
		if _, err := w.Write(records); err != nil {
			tmp.Close()
			return 0, fmt.Errorf("storage: write rows: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("storage: finalize parquet: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("storage: close temp file: %w", err)
	}

	if err := os.Rename(tmpName, final); err != nil {
		return 0, fmt.Errorf("storage: publish %s: %w", final, err)
	}

	rowsWritten.WithLabelValues(p.Frame.String()).Add(float64(len(records)))
	filesWritten.WithLabelValues(p.Frame.String()).Inc()
	e.log.Debug("partition written",
		zap.String("partition", p.String()),
		zap.String("job_id", jobID),
		zap.Int("rows", len(records)))
	return len(records), nil
}

// dedupRecords sorts by (symbol, timestamp) and drops later duplicates of
// the same key. The sort is stable, so among duplicates the earliest input
// row wins.
func dedupRecords(records []Record) []Record {
	ordered := make([]Record, len(records))
	copy(ordered, records)
	sort.SliceStable(ordered, func(i, k int) bool {
		if ordered[i].Symbol != ordered[k].Symbol {
			return ordered[i].Symbol < ordered[k].Symbol
		}
		return ordered[i].TimestampNs < ordered[k].TimestampNs
	})
	type key struct {
		symbol string
		ns     int64
	}
	seen := make(map[key]bool, len(ordered))
	out := ordered[:0]
	for _, r := range ordered {
		k := key{symbol: r.Symbol, ns: r.TimestampNs}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}

// ReadRecords returns the partition's rows with duplicates resolved: files
// in name order, first occurrence of a (symbol, timestamp) wins, result
// sorted by timestamp. A missing partition reads as empty.
func (e *Engine) ReadRecords(p Partition) ([]Record, error) {
	files, err := dataFiles(p.Dir(e.root))
	if err != nil {
		return nil, fmt.Errorf("storage: list partition %s: %w", p, err)
	}
	type key struct {
		symbol string
		ns     int64
	}
	seen := make(map[key]bool)
	var out []Record
	for _, f := range files {
		rows, err := parquet.ReadFile[Record](f)
		if err != nil {
			return nil, fmt.Errorf("storage: read %s: %w", f, err)
		}
		for _, r := range rows {
			k := key{symbol: r.Symbol, ns: r.TimestampNs}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].TimestampNs < out[k].TimestampNs })
	return out, nil
}

// ScanRange streams every (frame, symbol, date) partition with
// from <= date <= to, dates ascending, rows in timestamp order within each
// date. fn returning an error stops the scan and surfaces the error.
func (e *Engine) ScanRange(frame domain.Frame, symbol domain.Symbol, from, to domain.TradingDate, fn func(*domain.OHLCVBar) error) error {
	if to.Before(from) {
		return fmt.Errorf("storage: range dates reversed (%s after %s)", from, to)
	}
	for date := from; !to.Before(date); date = date.Next() {
		bars, err := e.Read(Partition{Frame: frame, Symbol: symbol, Date: date})
		if err != nil {
			return err
		}
		for _, b := range bars {
			if err := fn(b); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReadRange is ScanRange collected into a slice.
func (e *Engine) ReadRange(frame domain.Frame, symbol domain.Symbol, from, to domain.TradingDate) ([]*domain.OHLCVBar, error) {
	var bars []*domain.OHLCVBar
	err := e.ScanRange(frame, symbol, from, to, func(b *domain.OHLCVBar) error {
		bars = append(bars, b)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bars, nil
}

// Read is ReadRecords lifted back to domain bars.
func (e *Engine) Read(p Partition) ([]*domain.OHLCVBar, error) {
	records, err := e.ReadRecords(p)
	if err != nil {
		return nil, err
	}
	bars := make([]*domain.OHLCVBar, 0, len(records))
	for _, r := range records {
		b, err := r.Bar()
		if err != nil {
			return nil, fmt.Errorf("storage: row in %s: %w", p, err)
		}
		bars = append(bars, b)
	}
	return bars, nil
}

// ListPartitions walks one frame subtree and returns its partitions in
// lexical order. A missing frame lists as empty.
func (e *Engine) ListPartitions(frame domain.Frame) ([]Partition, error) {
	frameDir := filepath.Join(e.root, "frame="+frame.String())
	symbolEntries, err := os.ReadDir(frameDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: list frame %s: %w", frame, err)
	}
	var parts []Partition
	for _, se := range symbolEntries {
		if !se.IsDir() {
			continue
		}
		dateEntries, err := os.ReadDir(filepath.Join(frameDir, se.Name()))
		if err != nil {
			return nil, fmt.Errorf("storage: list %s: %w", se.Name(), err)
		}
		for _, de := range dateEntries {
			if !de.IsDir() {
				continue
			}
			p, err := parsePartitionDir("frame="+frame.String(), se.Name(), de.Name())
			if err != nil {
				return nil, err
			}
			parts = append(parts, p)
		}
	}
	sort.Slice(parts, func(i, k int) bool { return parts[i].String() < parts[k].String() })
	return parts, nil
}

// DeletePartition removes a partition directory and everything in it. A
// missing partition deletes as a no-op.
func (e *Engine) DeletePartition(p Partition) error {
	lock := flock.New(p.lockPath(e.root))
	if err := lock.Lock(); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("storage: lock partition %s: %w", p, err)
	}
	defer lock.Unlock()
	if err := os.RemoveAll(p.Dir(e.root)); err != nil {
		return fmt.Errorf("storage: delete partition %s: %w", p, err)
	}
	return nil
}

// PartitionStats summarizes one partition on disk.
type PartitionStats struct {
	Partition Partition
	Files     int
	Bytes     int64
	Rows      int64
}

// Stats sizes one partition without decoding row contents beyond the file
// footers.
func (e *Engine) Stats(p Partition) (PartitionStats, error) {
	stats := PartitionStats{Partition: p}
	files, err := dataFiles(p.Dir(e.root))
	if err != nil {
		return stats, fmt.Errorf("storage: stat partition %s: %w", p, err)
	}
	for _, f := range files {
		rows, bytes, err := fileFooterStats(f)
		if err != nil {
			return stats, err
		}
		stats.Files++
		stats.Bytes += bytes
		stats.Rows += rows
	}
	return stats, nil
}

func fileFooterStats(path string) (rows, bytes int64, err error) {
	fh, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("storage: open %s: %w", path, err)
	}
	defer fh.Close()
	info, err := fh.Stat()
	if err != nil {
		return 0, 0, fmt.Errorf("storage: stat %s: %w", path, err)
	}
	pf, err := parquet.OpenFile(fh, info.Size())
	if err != nil {
		return 0, 0, fmt.Errorf("storage: footer %s: %w", path, err)
	}
	return pf.NumRows(), info.Size(), nil
}

// IntegrityStats summarizes one partition's decoded rows.
type IntegrityStats struct {
	RowCount    int64
	NullCount   int64 // nil trade_count and vwap cells
	MonotonicTs bool
	MinTs       int64
	MaxTs       int64
}

// ValidateIntegrity re-reads every row of the partition, checks that it
// decodes, belongs to the partition triple, and sits on its frame boundary,
// and reports what it saw: row and null-cell counts, timestamp monotonicity
// and bounds. An empty partition is valid with zero rows.
func (e *Engine) ValidateIntegrity(p Partition) (IntegrityStats, error) {
	stats := IntegrityStats{MonotonicTs: true}
	records, err := e.ReadRecords(p)
	if err != nil {
		return stats, err
	}
	var prev int64
	for i, r := range records {
		b, err := r.Bar()
		if err != nil {
			return stats, &domain.InvariantViolation{Msg: fmt.Sprintf("partition %s: undecodable row at %d: %v", p, r.TimestampNs, err)}
		}
		if b.Symbol != p.Symbol || b.Frame != p.Frame || b.TradingDate() != p.Date {
			return stats, &domain.InvariantViolation{Msg: fmt.Sprintf(
				"partition %s holds foreign row (%s %s %s)", p, b.Symbol, b.Frame, b.TradingDate())}
		}
		stats.RowCount++
		if r.TradeCount == nil {
			stats.NullCount++
		}
		if r.VWAP == nil {
			stats.NullCount++
		}
		if i == 0 {
			stats.MinTs = r.TimestampNs
			stats.MaxTs = r.TimestampNs
		} else {
			if r.TimestampNs <= prev {
				stats.MonotonicTs = false
			}
			if r.TimestampNs < stats.MinTs {
				stats.MinTs = r.TimestampNs
			}
			if r.TimestampNs > stats.MaxTs {
				stats.MaxTs = r.TimestampNs
			}
		}
		prev = r.TimestampNs
	}
	return stats, nil
}
