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

package aggregate

import (
	"context"
	"testing"
	"time"

	"marketpipe/internal/domain"
	"marketpipe/internal/provider"
	"marketpipe/internal/storage"
)

var testDate = domain.NewTradingDate(2026, time.August, 24)

type barSpec struct {
	minute                 int
	open, high, low, close int64 // scaled
	volume                 int64
	tradeCount             *int64
	vwap                   *int64 // scaled
}

func buildBar(t *testing.T, s barSpec) *domain.OHLCVBar {
	t.Helper()
	price := func(scaled int64) domain.Price {
		p, err := domain.PriceFromScaled(scaled)
		if err != nil {
			t.Fatalf("price %d: %v", scaled, err)
		}
		return p
	}
	vol, err := domain.NewVolume(s.volume)
	if err != nil {
		t.Fatalf("volume: %v", err)
	}
	params := domain.BarParams{
		Symbol:     "AAPL",
		Timestamp:  testDate.Start() + domain.Timestamp(int64(s.minute)*domain.MinuteNs),
		Open:       price(s.open),
		High:       price(s.high),
		Low:        price(s.low),
		Close:      price(s.close),
		Volume:     vol,
		TradeCount: s.tradeCount,
		Source:     "test",
	}
	if s.vwap != nil {
		v := price(*s.vwap)
		params.VWAP = &v
	}
	bar, err := domain.NewBar(params)
	if err != nil {
		t.Fatalf("NewBar: %v", err)
	}
	return bar
}

func i64(v int64) *int64 { return &v }

// TestRollupOHLCV verifies the core fold: open from the first constituent,
// close from the last, extremes for high/low, sums for volume and trades.
func TestRollupOHLCV(t *testing.T) {
	bars := []*domain.OHLCVBar{
		buildBar(t, barSpec{minute: 570, open: 1000000, high: 1010000, low: 995000, close: 1005000, volume: 100, tradeCount: i64(10)}),
		buildBar(t, barSpec{minute: 571, open: 1005000, high: 1020000, low: 1000000, close: 1015000, volume: 200, tradeCount: i64(20)}),
		buildBar(t, barSpec{minute: 572, open: 1015000, high: 1016000, low: 990000, close: 1001000, volume: 300, tradeCount: i64(30)}),
	}

	out, err := Rollup(bars, domain.Frame5m)
	if err != nil {
		t.Fatalf("Rollup: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d buckets, want 1", len(out))
	}
	b := out[0]
	if b.Frame != domain.Frame5m {
		t.Errorf("frame = %s", b.Frame)
	}
	if int64(b.Timestamp)%domain.Frame5m.SpanNs() != 0 {
		t.Errorf("bucket start %d off the 5m grid", b.Timestamp.Ns())
	}
	if b.Open.Scaled() != 1000000 || b.Close.Scaled() != 1001000 {
		t.Errorf("open/close = %d/%d", b.Open.Scaled(), b.Close.Scaled())
	}
	if b.High.Scaled() != 1020000 || b.Low.Scaled() != 990000 {
		t.Errorf("high/low = %d/%d", b.High.Scaled(), b.Low.Scaled())
	}
	if b.Volume.Int64() != 600 {
		t.Errorf("volume = %d, want 600", b.Volume.Int64())
	}
	if b.TradeCount == nil || *b.TradeCount != 60 {
		t.Errorf("trade count = %v, want 60", b.TradeCount)
	}
}

// TestRollupVWAP verifies the volume-weighted rollup: the bucket's vwap is
// sum(vwap*volume)/sum(volume), not a plain average of constituent vwaps.
func TestRollupVWAP(t *testing.T) {
	// vwap 100.0000 at volume 100, vwap 200.0000 at volume 300:
	// weighted = (100*100 + 200*300) / 400 = 175.0000.
	bars := []*domain.OHLCVBar{
		buildBar(t, barSpec{minute: 570, open: 1000000, high: 2000000, low: 1000000, close: 1000000, volume: 100, vwap: i64(1000000)}),
		buildBar(t, barSpec{minute: 571, open: 2000000, high: 2000000, low: 1000000, close: 2000000, volume: 300, vwap: i64(2000000)}),
	}
	out, err := Rollup(bars, domain.Frame5m)
	if err != nil {
		t.Fatalf("Rollup: %v", err)
	}
	if out[0].VWAP == nil {
		t.Fatal("vwap absent")
	}
	if got := out[0].VWAP.Scaled(); got != 1750000 {
		t.Errorf("vwap = %d, want 1750000", got)
	}
}

// TestRollupVWAPAbsent covers the null cases: any constituent missing a
// vwap, no constituent carrying one, or zero total volume.
func TestRollupVWAPAbsent(t *testing.T) {
	t.Run("MixedConstituents", func(t *testing.T) {
		// One carrier is not enough; a single null constituent nulls the
		// bucket rather than weighting over the subset.
		bars := []*domain.OHLCVBar{
			buildBar(t, barSpec{minute: 570, open: 1000000, high: 1000000, low: 1000000, close: 1000000, volume: 100, vwap: i64(1000000)}),
			buildBar(t, barSpec{minute: 571, open: 1000000, high: 1000000, low: 1000000, close: 1000000, volume: 300}),
		}
		out, err := Rollup(bars, domain.Frame5m)
		if err != nil {
			t.Fatalf("Rollup: %v", err)
		}
		if out[0].VWAP != nil {
			t.Errorf("vwap = %s, want absent with a vwap-null constituent", out[0].VWAP)
		}
	})

	t.Run("NoConstituentVWAP", func(t *testing.T) {
		bars := []*domain.OHLCVBar{
			buildBar(t, barSpec{minute: 570, open: 1000000, high: 1000000, low: 1000000, close: 1000000, volume: 100}),
		}
		out, err := Rollup(bars, domain.Frame5m)
		if err != nil {
			t.Fatalf("Rollup: %v", err)
		}
		if out[0].VWAP != nil {
			t.Errorf("vwap = %s, want absent", out[0].VWAP)
		}
	})

	t.Run("ZeroVolumeConstituents", func(t *testing.T) {
		bars := []*domain.OHLCVBar{
			buildBar(t, barSpec{minute: 570, open: 1000000, high: 1000000, low: 1000000, close: 1000000, volume: 0, vwap: i64(1000000)}),
		}
		out, err := Rollup(bars, domain.Frame5m)
		if err != nil {
			t.Fatalf("Rollup: %v", err)
		}
		if out[0].VWAP != nil {
			t.Errorf("vwap = %s, want absent when weight is zero", out[0].VWAP)
		}
	})
}

// TestRollupTradeCountNull verifies one missing constituent count nulls the
// bucket's count.
func TestRollupTradeCountNull(t *testing.T) {
	bars := []*domain.OHLCVBar{
		buildBar(t, barSpec{minute: 570, open: 1000000, high: 1000000, low: 1000000, close: 1000000, volume: 100, tradeCount: i64(10)}),
		buildBar(t, barSpec{minute: 571, open: 1000000, high: 1000000, low: 1000000, close: 1000000, volume: 100}),
	}
	out, err := Rollup(bars, domain.Frame5m)
	if err != nil {
		t.Fatalf("Rollup: %v", err)
	}
	if out[0].TradeCount != nil {
		t.Errorf("trade count = %d, want absent", *out[0].TradeCount)
	}
}

// TestRollupBucketCounts verifies a full session folds into the expected
// bucket counts per frame: 390 -> 78 -> 26 -> 7 -> 1.
func TestRollupBucketCounts(t *testing.T) {
	f := &provider.FakeProvider{}
	bars, err := f.FetchBars(context.Background(), "AAPL", testDate.Range())
	if err != nil {
		t.Fatalf("FetchBars: %v", err)
	}
	if len(bars) != provider.SessionBarsPerDay {
		t.Fatalf("session bars = %d", len(bars))
	}

	cases := []struct {
		frame domain.Frame
		want  int
	}{
		{domain.Frame5m, 78},
		{domain.Frame15m, 26},
		{domain.Frame1h, 7}, // 09:30-16:00 spans hours 9 through 15
		{domain.Frame1d, 1},
	}
	for _, tc := range cases {
		out, err := Rollup(bars, tc.frame)
		if err != nil {
			t.Fatalf("Rollup %s: %v", tc.frame, err)
		}
		if len(out) != tc.want {
			t.Errorf("%s buckets = %d, want %d", tc.frame, len(out), tc.want)
		}
	}
}

// TestAggregateJobEndToEnd runs the engine against real partitions and
// checks the written frames read back.
func TestAggregateJobEndToEnd(t *testing.T) {
	store, err := storage.NewEngine(t.TempDir())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	f := &provider.FakeProvider{}
	bars, err := f.FetchBars(context.Background(), "AAPL", testDate.Range())
	if err != nil {
		t.Fatalf("FetchBars: %v", err)
	}
	source := storage.Partition{Frame: domain.Frame1m, Symbol: "AAPL", Date: testDate}
	if _, err := store.Write(source, "AAPL_2026-08-24", bars); err != nil {
		t.Fatalf("Write: %v", err)
	}

	e := NewEngine(store, nil)
	counts, err := e.AggregateJob("AAPL", testDate, "AAPL_2026-08-24")
	if err != nil {
		t.Fatalf("AggregateJob: %v", err)
	}
	if counts[domain.Frame5m] != 78 || counts[domain.Frame1d] != 1 {
		t.Errorf("counts = %v", counts)
	}

	daily, err := store.Read(storage.Partition{Frame: domain.Frame1d, Symbol: "AAPL", Date: testDate})
	if err != nil {
		t.Fatalf("Read 1d: %v", err)
	}
	if len(daily) != 1 {
		t.Fatalf("1d rows = %d", len(daily))
	}
	var wantVolume int64
	for _, b := range bars {
		wantVolume += b.Volume.Int64()
	}
	if daily[0].Volume.Int64() != wantVolume {
		t.Errorf("1d volume = %d, want %d", daily[0].Volume.Int64(), wantVolume)
	}
}

// TestAggregateJobEmptySource verifies an empty 1m partition aggregates to
// nothing without error.
func TestAggregateJobEmptySource(t *testing.T) {
	store, err := storage.NewEngine(t.TempDir())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	e := NewEngine(store, nil)
	counts, err := e.AggregateJob("AAPL", testDate, "AAPL_2026-08-24")
	if err != nil {
		t.Fatalf("AggregateJob: %v", err)
	}
	if len(counts) != 0 {
		t.Errorf("counts = %v, want empty", counts)
	}
}
