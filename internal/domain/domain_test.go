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
	"errors"
	"testing"
	"time"
)

func mustPrice(t *testing.T, s string) Price {
	t.Helper()
	p, err := NewPrice(s)
	if err != nil {
		t.Fatalf("NewPrice(%q): %v", s, err)
	}
	return p
}

func validBarParams(t *testing.T) BarParams {
	t.Helper()
	vol, _ := NewVolume(1000)
	return BarParams{
		Symbol:    "AAPL",
		Timestamp: NewTradingDate(2026, time.August, 24).Start(),
		Open:      mustPrice(t, "187.2500"),
		High:      mustPrice(t, "187.8000"),
		Low:       mustPrice(t, "187.0000"),
		Close:     mustPrice(t, "187.5000"),
		Volume:    vol,
		Source:    "test",
	}
}

// TestPrice covers the decimal price constructors: scale enforcement,
// positivity, and the scaled integer round trip.
func TestPrice(t *testing.T) {
	t.Run("ValidString", func(t *testing.T) {
		p := mustPrice(t, "187.25")
		if got := p.String(); got != "187.2500" {
			t.Errorf("String() = %q, want %q", got, "187.2500")
		}
		if got := p.Scaled(); got != 1872500 {
			t.Errorf("Scaled() = %d, want 1872500", got)
		}
	})

	t.Run("RejectsExcessScale", func(t *testing.T) {
		if _, err := NewPrice("1.00001"); err == nil {
			t.Error("expected scale error for 5 decimal places")
		}
	})

	t.Run("RejectsNonPositive", func(t *testing.T) {
		for _, s := range []string{"0", "-1.25", "0.0000"} {
			if _, err := NewPrice(s); err == nil {
				t.Errorf("NewPrice(%q): expected error", s)
			}
		}
	})

	t.Run("ScaledRoundTrip", func(t *testing.T) {
		p, err := PriceFromScaled(1872500)
		if err != nil {
			t.Fatalf("PriceFromScaled: %v", err)
		}
		if p.String() != "187.2500" {
			t.Errorf("round trip = %q, want 187.2500", p.String())
		}
	})

	t.Run("ScaledRejectsNegative", func(t *testing.T) {
		if _, err := PriceFromScaled(-1); err == nil {
			t.Error("expected error for negative scaled price")
		}
	})
}

// TestSymbol validates ticker symbol rules.
func TestSymbol(t *testing.T) {
	for _, good := range []string{"A", "AAPL", "BRK.B", "ABCDEFGHIJ"} {
		if _, err := NewSymbol(good); err != nil {
			t.Errorf("NewSymbol(%q): %v", good, err)
		}
	}
	for _, bad := range []string{"", "aapl", "TOOLONGSYMBL", "AA PL", "AA-B"} {
		if _, err := NewSymbol(bad); err == nil {
			t.Errorf("NewSymbol(%q): expected error", bad)
		}
	}
}

// TestTimeRange exercises the span bound at its boundary: 730 days passes,
// 731 fails, and an explicit limit of zero disables the bound.
func TestTimeRange(t *testing.T) {
	start := NewTradingDate(2024, time.January, 1).Start()

	t.Run("AtBound", func(t *testing.T) {
		end := start + Timestamp(730*DayNs)
		if _, err := NewTimeRange(start, end); err != nil {
			t.Errorf("730-day range: %v", err)
		}
	})

	t.Run("OverBound", func(t *testing.T) {
		end := start + Timestamp(731*DayNs)
		if _, err := NewTimeRange(start, end); err == nil {
			t.Error("731-day range: expected error")
		}
	})

	t.Run("BoundDisabled", func(t *testing.T) {
		end := start + Timestamp(10000*DayNs)
		if _, err := NewTimeRangeWithLimit(start, end, 0); err != nil {
			t.Errorf("unbounded range: %v", err)
		}
	})

	t.Run("Reversed", func(t *testing.T) {
		if _, err := NewTimeRange(start, start); err == nil {
			t.Error("empty range: expected error")
		}
	})

	t.Run("HalfOpen", func(t *testing.T) {
		r, _ := NewTimeRange(start, start+Timestamp(DayNs))
		if !r.Contains(start) {
			t.Error("start must be contained")
		}
		if r.Contains(start + Timestamp(DayNs)) {
			t.Error("end must be excluded")
		}
	})
}

// TestTimestampTruncate checks bucket flooring, including negative instants.
func TestTimestampTruncate(t *testing.T) {
	fiveMin := 5 * MinuteNs
	cases := []struct {
		in   int64
		want int64
	}{
		{0, 0},
		{fiveMin - 1, 0},
		{fiveMin, fiveMin},
		{fiveMin + 1, fiveMin},
		{-1, -fiveMin},
		{-fiveMin, -fiveMin},
	}
	for _, tc := range cases {
		if got := Timestamp(tc.in).TruncateTo(fiveMin); int64(got) != tc.want {
			t.Errorf("TruncateTo(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

// TestNewBar walks the construction invariants.
func TestNewBar(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		b, err := NewBar(validBarParams(t))
		if err != nil {
			t.Fatalf("NewBar: %v", err)
		}
		if b.Session != SessionRegular || b.Currency != "USD" || b.Status != StatusOK || b.Frame != Frame1m {
			t.Errorf("defaults not applied: %+v", b)
		}
		if b.SchemaVersion != CanonicalSchemaVersion {
			t.Errorf("SchemaVersion = %d, want %d", b.SchemaVersion, CanonicalSchemaVersion)
		}
	})

	t.Run("HighBelowLow", func(t *testing.T) {
		p := validBarParams(t)
		p.High = mustPrice(t, "186.0000")
		if _, err := NewBar(p); err == nil {
			t.Error("expected ohlc_consistency error")
		}
	})

	t.Run("LowAboveOpen", func(t *testing.T) {
		p := validBarParams(t)
		p.Low = mustPrice(t, "187.5000")
		p.Open = mustPrice(t, "187.2500")
		if _, err := NewBar(p); err == nil {
			t.Error("expected ohlc_consistency error")
		}
	})

	t.Run("MisalignedTimestamp", func(t *testing.T) {
		p := validBarParams(t)
		p.Timestamp += 1
		if _, err := NewBar(p); err == nil {
			t.Error("expected timestamp_alignment error")
		}
		var verr *ValidationError
		_, err := NewBar(p)
		if !errors.As(err, &verr) || verr.Rule != "timestamp_alignment" {
			t.Errorf("error = %v, want timestamp_alignment ValidationError", err)
		}
	})

	t.Run("NegativeTradeCount", func(t *testing.T) {
		p := validBarParams(t)
		n := int64(-1)
		p.TradeCount = &n
		if _, err := NewBar(p); err == nil {
			t.Error("expected trade_count error")
		}
	})

	t.Run("CoarseFrameAlignment", func(t *testing.T) {
		p := validBarParams(t)
		p.Frame = Frame5m
		p.Timestamp += Timestamp(MinuteNs) // on a minute, off the 5m grid
		if _, err := NewBar(p); err == nil {
			t.Error("expected alignment error for 5m frame")
		}
	})
}

// TestJobLifecycle walks the job DAG and its invariant violations.
func TestJobLifecycle(t *testing.T) {
	date := NewTradingDate(2026, time.August, 24)
	now := time.Now()

	t.Run("HappyPath", func(t *testing.T) {
		j := NewIngestionJob("AAPL", date, TimeRange{})
		if j.ID != "AAPL_2026-08-24" {
			t.Fatalf("ID = %q, want AAPL_2026-08-24", j.ID)
		}
		if j.Range != date.Range() {
			t.Errorf("Range not defaulted to the trading day")
		}
		if err := j.Start(now); err != nil {
			t.Fatalf("Start: %v", err)
		}
		if err := j.Complete(now, 390); err != nil {
			t.Fatalf("Complete: %v", err)
		}
		if !j.Terminal() || j.BarCount != 390 {
			t.Errorf("terminal state wrong: %+v", j)
		}
	})

	t.Run("IllegalTransitions", func(t *testing.T) {
		j := NewIngestionJob("AAPL", date, TimeRange{})
		if err := j.Complete(now, 1); err == nil {
			t.Error("Complete from pending: expected InvariantViolation")
		}
		if err := j.Fail(now, "x"); err == nil {
			t.Error("Fail from pending: expected InvariantViolation")
		}
		_ = j.Start(now)
		if err := j.Start(now); err == nil {
			t.Error("double Start: expected InvariantViolation")
		}
		var iv *InvariantViolation
		if err := j.Start(now); !errors.As(err, &iv) {
			t.Errorf("error type = %T, want *InvariantViolation", err)
		}
	})

	t.Run("FailRecordsReason", func(t *testing.T) {
		j := NewIngestionJob("AAPL", date, TimeRange{})
		_ = j.Start(now)
		if err := j.Fail(now, "timeout"); err != nil {
			t.Fatalf("Fail: %v", err)
		}
		if j.Error != "timeout" || j.State != JobFailed {
			t.Errorf("failure not recorded: %+v", j)
		}
	})

	t.Run("ResetForRetry", func(t *testing.T) {
		j := NewIngestionJob("AAPL", date, TimeRange{})
		_ = j.Start(now)
		_ = j.Fail(now, "boom")
		j.ResetForRetry()
		if j.State != JobPending || j.Error != "" || j.StartedAt != nil || j.CompletedAt != nil {
			t.Errorf("reset incomplete: %+v", j)
		}
		if err := j.Start(now); err != nil {
			t.Errorf("Start after reset: %v", err)
		}
	})
}

// TestTradingDate checks parsing, iteration, and the date32 round trip.
func TestTradingDate(t *testing.T) {
	d, err := ParseTradingDate("2026-08-24")
	if err != nil {
		t.Fatalf("ParseTradingDate: %v", err)
	}
	if d.String() != "2026-08-24" {
		t.Errorf("String() = %q", d.String())
	}
	if d.Next().String() != "2026-08-25" {
		t.Errorf("Next() = %q", d.Next().String())
	}
	if got := TradingDateFromDays(d.DaysSinceEpoch()); got != d {
		t.Errorf("date32 round trip = %s, want %s", got, d)
	}
	if _, err := ParseTradingDate("08/24/2026"); err == nil {
		t.Error("expected format error")
	}
}

// TestEventMeta checks that every constructor stamps identity and aggregate.
func TestEventMeta(t *testing.T) {
	ev := NewIngestionJobCompleted("AAPL_2026-08-24", []Symbol{"AAPL"}, 390)
	if ev.Type() != EventIngestionJobCompleted {
		t.Errorf("Type() = %q", ev.Type())
	}
	if ev.AggregateID() != "AAPL_2026-08-24" {
		t.Errorf("AggregateID() = %q", ev.AggregateID())
	}
	if ev.EventID() == (NewIngestionJobCompleted("X_2026-01-01", nil, 0)).EventID() {
		t.Error("event ids must be unique")
	}
	if ev.OccurredAt().IsZero() {
		t.Error("OccurredAt must be stamped")
	}
}
