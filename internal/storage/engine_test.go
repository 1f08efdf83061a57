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
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"marketpipe/internal/domain"
)

var testDate = domain.NewTradingDate(2026, time.August, 24)

func testEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := NewEngine(t.TempDir(), opts...)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func testPartition() Partition {
	return Partition{Frame: domain.Frame1m, Symbol: "AAPL", Date: testDate}
}

// barAt builds a 1m bar at the given session minute with a price encoding
// the given cents value, so tests can tell which write a row came from.
func barAt(t *testing.T, symbol domain.Symbol, minute int, cents int64) *domain.OHLCVBar {
	t.Helper()
	price, err := domain.PriceFromScaled(cents * 100)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	vol, _ := domain.NewVolume(1000)
	bar, err := domain.NewBar(domain.BarParams{
		Symbol:    symbol,
		Timestamp: testDate.Start() + domain.Timestamp(int64(minute)*domain.MinuteNs),
		Open:      price, High: price, Low: price, Close: price,
		Volume: vol,
		Source: "test",
	})
	if err != nil {
		t.Fatalf("NewBar: %v", err)
	}
	return bar
}

// TestWriteReadRoundTrip verifies the basic persist-and-load path, including
// optional columns.
func TestWriteReadRoundTrip(t *testing.T) {
	e := testEngine(t)
	p := testPartition()

	trades := int64(42)
	vwap, _ := domain.PriceFromScaled(1002500)
	bar := barAt(t, "AAPL", 570, 100)
	bar.TradeCount = &trades
	bar.VWAP = &vwap

	n, err := e.Write(p, "AAPL_2026-08-24", []*domain.OHLCVBar{bar})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != 1 {
		t.Fatalf("wrote %d rows, want 1", n)
	}

	bars, err := e.Read(p)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(bars) != 1 {
		t.Fatalf("read %d bars, want 1", len(bars))
	}
	got := bars[0]
	if got.ID != bar.ID {
		t.Errorf("ID not preserved: %s vs %s", got.ID, bar.ID)
	}
	if got.Open.Cmp(bar.Open) != 0 || got.Volume != bar.Volume {
		t.Errorf("prices/volume differ: %+v", got)
	}
	if got.TradeCount == nil || *got.TradeCount != 42 {
		t.Errorf("trade count = %v, want 42", got.TradeCount)
	}
	if got.VWAP == nil || got.VWAP.Cmp(vwap) != 0 {
		t.Errorf("vwap = %v, want %s", got.VWAP, vwap)
	}
}

// TestReadEmptyPartition verifies a never-written partition reads as empty.
func TestReadEmptyPartition(t *testing.T) {
	e := testEngine(t)
	bars, err := e.Read(testPartition())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(bars) != 0 {
		t.Errorf("read %d bars from empty partition", len(bars))
	}
}

// TestDedupFirstFileWins verifies read-side dedup: when two files hold the
// same (symbol, timestamp), the file earlier in name order supplies the row.
func TestDedupFirstFileWins(t *testing.T) {
	e := testEngine(t)
	p := testPartition()

	// "a_job" sorts before "b_job"; both write minute 570 with different
	// prices.
	if _, err := e.Write(p, "a_job", []*domain.OHLCVBar{barAt(t, "AAPL", 570, 100)}); err != nil {
		t.Fatalf("Write a_job: %v", err)
	}
	if _, err := e.Write(p, "b_job", []*domain.OHLCVBar{
		barAt(t, "AAPL", 570, 200),
		barAt(t, "AAPL", 571, 200),
	}); err != nil {
		t.Fatalf("Write b_job: %v", err)
	}

	bars, err := e.Read(p)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("read %d bars, want 2 after dedup", len(bars))
	}
	if bars[0].Open.Scaled() != 100*100 {
		t.Errorf("minute 570 open = %d, want the first file's 10000", bars[0].Open.Scaled())
	}
	if bars[1].Open.Scaled() != 200*100 {
		t.Errorf("minute 571 open = %d, want 20000", bars[1].Open.Scaled())
	}
}

// TestWriteDedupsBatch verifies duplicate timestamps within one write batch
// collapse, first occurrence winning.
func TestWriteDedupsBatch(t *testing.T) {
	e := testEngine(t)
	p := testPartition()

	n, err := e.Write(p, "job", []*domain.OHLCVBar{
		barAt(t, "AAPL", 570, 100),
		barAt(t, "AAPL", 570, 200), // duplicate minute
		barAt(t, "AAPL", 571, 300),
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != 2 {
		t.Errorf("wrote %d rows, want 2", n)
	}
	bars, _ := e.Read(p)
	if bars[0].Open.Scaled() != 100*100 {
		t.Errorf("duplicate resolution kept %d, want first occurrence", bars[0].Open.Scaled())
	}
}

// TestWriteMergesSameJob verifies a re-run of the same job merges into its
// file: rows already on disk win over re-delivered duplicates, new minutes
// append, and the partition still holds a single file.
func TestWriteMergesSameJob(t *testing.T) {
	e := testEngine(t)
	p := testPartition()

	if _, err := e.Write(p, "job", []*domain.OHLCVBar{barAt(t, "AAPL", 570, 100)}); err != nil {
		t.Fatalf("first write: %v", err)
	}
	n, err := e.Write(p, "job", []*domain.OHLCVBar{
		barAt(t, "AAPL", 570, 200), // duplicate of an on-disk row
		barAt(t, "AAPL", 571, 300),
	})
	if err != nil {
		t.Fatalf("second write: %v", err)
	}
	if n != 2 {
		t.Errorf("merged write returned %d rows, want 2", n)
	}

	bars, _ := e.Read(p)
	if len(bars) != 2 {
		t.Fatalf("read %d bars, want 2 after merge", len(bars))
	}
	if bars[0].Open.Scaled() != 100*100 {
		t.Errorf("minute 570 open = %d, want the first write's 10000", bars[0].Open.Scaled())
	}
	if bars[1].Open.Scaled() != 300*100 {
		t.Errorf("minute 571 open = %d, want 30000", bars[1].Open.Scaled())
	}
	stats, err := e.Stats(p)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Files != 1 {
		t.Errorf("files = %d, want 1 after merge", stats.Files)
	}
}

// TestWriteRejectsForeignBars verifies partition membership enforcement.
func TestWriteRejectsForeignBars(t *testing.T) {
	e := testEngine(t)
	p := testPartition()

	_, err := e.Write(p, "job", []*domain.OHLCVBar{barAt(t, "MSFT", 570, 100)})
	var iv *domain.InvariantViolation
	if !errors.As(err, &iv) {
		t.Errorf("foreign symbol write = %v, want *InvariantViolation", err)
	}
}

// TestListAndDeletePartitions verifies tree walking and removal.
func TestListAndDeletePartitions(t *testing.T) {
	e := testEngine(t)
	p1 := testPartition()
	p2 := Partition{Frame: domain.Frame1m, Symbol: "MSFT", Date: testDate}

	for _, p := range []Partition{p1, p2} {
		if _, err := e.Write(p, "job", []*domain.OHLCVBar{barAt(t, p.Symbol, 570, 100)}); err != nil {
			t.Fatalf("Write %s: %v", p, err)
		}
	}

	parts, err := e.ListPartitions(domain.Frame1m)
	if err != nil {
		t.Fatalf("ListPartitions: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("listed %d partitions, want 2", len(parts))
	}
	if parts[0].Symbol != "AAPL" || parts[1].Symbol != "MSFT" {
		t.Errorf("order = %v", parts)
	}

	if err := e.DeletePartition(p1); err != nil {
		t.Fatalf("DeletePartition: %v", err)
	}
	if _, err := os.Stat(p1.Dir(e.Root())); !os.IsNotExist(err) {
		t.Error("partition directory survived delete")
	}
	parts, _ = e.ListPartitions(domain.Frame1m)
	if len(parts) != 1 {
		t.Errorf("listed %d partitions after delete, want 1", len(parts))
	}

	if got, err := e.ListPartitions(domain.Frame5m); err != nil || len(got) != 0 {
		t.Errorf("missing frame = (%v, %v), want empty", got, err)
	}
}

// TestValidateIntegrity verifies the re-read check accepts a clean partition
// and reports its row count, null cells and timestamp bounds.
func TestValidateIntegrity(t *testing.T) {
	e := testEngine(t)
	p := testPartition()
	if _, err := e.Write(p, "job", []*domain.OHLCVBar{
		barAt(t, "AAPL", 570, 100),
		barAt(t, "AAPL", 571, 100),
	}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	stats, err := e.ValidateIntegrity(p)
	if err != nil {
		t.Fatalf("ValidateIntegrity: %v", err)
	}
	if stats.RowCount != 2 {
		t.Errorf("rows = %d, want 2", stats.RowCount)
	}
	// barAt leaves trade_count and vwap unset, two null cells per row.
	if stats.NullCount != 4 {
		t.Errorf("null cells = %d, want 4", stats.NullCount)
	}
	if !stats.MonotonicTs {
		t.Error("timestamps reported non-monotonic")
	}
	wantMin := testDate.Start().Ns() + 570*domain.MinuteNs
	wantMax := testDate.Start().Ns() + 571*domain.MinuteNs
	if stats.MinTs != wantMin || stats.MaxTs != wantMax {
		t.Errorf("bounds = [%d, %d], want [%d, %d]", stats.MinTs, stats.MaxTs, wantMin, wantMax)
	}

	empty := Partition{Frame: domain.Frame1m, Symbol: "MSFT", Date: testDate}
	stats, err = e.ValidateIntegrity(empty)
	if err != nil {
		t.Fatalf("ValidateIntegrity empty: %v", err)
	}
	if stats.RowCount != 0 || !stats.MonotonicTs {
		t.Errorf("empty partition stats = %+v", stats)
	}
}

// TestReadRange verifies the cross-date read walks partitions in date order
// and rejects reversed bounds.
func TestReadRange(t *testing.T) {
	e := testEngine(t)
	day2 := testDate.Next()
	if _, err := e.Write(testPartition(), "job1", []*domain.OHLCVBar{barAt(t, "AAPL", 570, 100)}); err != nil {
		t.Fatalf("Write day1: %v", err)
	}
	p2 := Partition{Frame: domain.Frame1m, Symbol: "AAPL", Date: day2}
	bar2, err := domain.NewBar(domain.BarParams{
		Symbol:    "AAPL",
		Timestamp: day2.Start() + domain.Timestamp(570*domain.MinuteNs),
		Open:      mustScaled(t, 20000), High: mustScaled(t, 20000),
		Low: mustScaled(t, 20000), Close: mustScaled(t, 20000),
		Volume: mustVolume(t, 1000),
		Source: "test",
	})
	if err != nil {
		t.Fatalf("NewBar: %v", err)
	}
	if _, err := e.Write(p2, "job2", []*domain.OHLCVBar{bar2}); err != nil {
		t.Fatalf("Write day2: %v", err)
	}

	bars, err := e.ReadRange(domain.Frame1m, "AAPL", testDate, day2)
	if err != nil {
		t.Fatalf("ReadRange: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("read %d bars, want 2 across dates", len(bars))
	}
	if !(bars[0].Timestamp < bars[1].Timestamp) {
		t.Error("range rows out of timestamp order")
	}

	if _, err := e.ReadRange(domain.Frame1m, "AAPL", day2, testDate); err == nil {
		t.Error("reversed range: expected error")
	}
}

// fakeRegistrar records view registrations.
type fakeRegistrar struct {
	views map[string]string
}

func (r *fakeRegistrar) RegisterView(name, glob string) error {
	if r.views == nil {
		r.views = make(map[string]string)
	}
	r.views[name] = glob
	return nil
}

// TestRegisterViews verifies one view per frame with that frame's file glob.
func TestRegisterViews(t *testing.T) {
	e := testEngine(t)
	reg := &fakeRegistrar{}
	if err := e.RegisterViews(reg); err != nil {
		t.Fatalf("RegisterViews: %v", err)
	}
	if len(reg.views) != 5 {
		t.Fatalf("registered %d views, want 5", len(reg.views))
	}
	want := filepath.Join(e.Root(), "frame=5m", "symbol=*", "date=*", "*.parquet")
	if reg.views["bars_5m"] != want {
		t.Errorf("bars_5m glob = %q, want %q", reg.views["bars_5m"], want)
	}
}

func mustScaled(t *testing.T, scaled int64) domain.Price {
	t.Helper()
	p, err := domain.PriceFromScaled(scaled)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	return p
}

func mustVolume(t *testing.T, v int64) domain.Volume {
	t.Helper()
	vol, err := domain.NewVolume(v)
	if err != nil {
		t.Fatalf("volume: %v", err)
	}
	return vol
}

// TestZstdOption verifies the opt-in codec still round-trips.
func TestZstdOption(t *testing.T) {
	e := testEngine(t, WithZstd())
	p := testPartition()
	if _, err := e.Write(p, "job", []*domain.OHLCVBar{barAt(t, "AAPL", 570, 100)}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	bars, err := e.Read(p)
	if err != nil || len(bars) != 1 {
		t.Fatalf("Read = (%d bars, %v)", len(bars), err)
	}
}

// TestHiveLayout pins the on-disk directory scheme.
func TestHiveLayout(t *testing.T) {
	p := testPartition()
	want := "frame=1m/symbol=AAPL/date=2026-08-24"
	if p.String() != want {
		t.Errorf("partition path = %q, want %q", p.String(), want)
	}
	if got := p.FilePath("/root", "AAPL_2026-08-24"); got != "/root/frame=1m/symbol=AAPL/date=2026-08-24/AAPL_2026-08-24.parquet" {
		t.Errorf("file path = %q", got)
	}
}

// TestStats verifies footer-level accounting.
func TestStats(t *testing.T) {
	e := testEngine(t)
	p := testPartition()
	if _, err := e.Write(p, "job", []*domain.OHLCVBar{
		barAt(t, "AAPL", 570, 100),
		barAt(t, "AAPL", 571, 100),
	}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	stats, err := e.Stats(p)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Files != 1 || stats.Rows != 2 || stats.Bytes <= 0 {
		t.Errorf("stats = %+v", stats)
	}
}
