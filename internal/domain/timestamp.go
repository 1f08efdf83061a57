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
)

// Timestamp is an absolute UTC instant with nanosecond resolution, stored as
// signed nanoseconds since the Unix epoch. This is the canonical timestamp
// form across the wire, the storage layer, and the checkpoint store.
type Timestamp int64

// MinuteNs is the span of one minute in nanoseconds; 1-minute bars must open
// on a multiple of it.
const MinuteNs int64 = 60_000_000_000

// DayNs is the span of one UTC calendar day in nanoseconds.
const DayNs int64 = 24 * 60 * MinuteNs

// TimestampFromTime converts a time.Time to the canonical form.
func TimestampFromTime(t time.Time) Timestamp { return Timestamp(t.UnixNano()) }

// Time returns the instant as a UTC time.Time.
func (t Timestamp) Time() time.Time { return time.Unix(0, int64(t)).UTC() }

// Ns returns the raw nanosecond value.
func (t Timestamp) Ns() int64 { return int64(t) }

// AlignedToMinute reports whether the instant falls exactly on a minute
// boundary.
func (t Timestamp) AlignedToMinute() bool { return int64(t)%MinuteNs == 0 }

// TruncateTo floors the instant to the start of the enclosing bucket of the
// given span. Negative instants floor toward negative infinity so buckets
// stay half-open on both sides of the epoch.
func (t Timestamp) TruncateTo(spanNs int64) Timestamp {
	v := int64(t)
	r := v % spanNs
	if r < 0 {
		r += spanNs
	}
	return Timestamp(v - r)
}

// TradingDate returns the UTC calendar date the instant belongs to.
func (t Timestamp) TradingDate() TradingDate {
	y, m, d := t.Time().Date()
	return TradingDate{year: y, month: m, day: d}
}

// TradingDate is a UTC calendar date. It identifies one partition directory
// per (frame, symbol) and one ingestion job per symbol.
type TradingDate struct {
	year  int
	month time.Month
	day   int
}

// ParseTradingDate parses a date in the canonical YYYY-MM-DD form.
func ParseTradingDate(s string) (TradingDate, error) {
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return TradingDate{}, validation("trading_date", "date_format", "cannot parse %q as YYYY-MM-DD: %v", s, err)
	}
	y, m, d := t.Date()
	return TradingDate{year: y, month: m, day: d}, nil
}

// NewTradingDate builds a date from components, normalizing per time.Date.
func NewTradingDate(year int, month time.Month, day int) TradingDate {
	y, m, d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Date()
	return TradingDate{year: y, month: m, day: d}
}

func (d TradingDate) String() string {
	return d.start().Format("2006-01-02")
}

func (d TradingDate) start() time.Time {
	return time.Date(d.year, d.month, d.day, 0, 0, 0, 0, time.UTC)
}

// Start returns midnight UTC of the date.
func (d TradingDate) Start() Timestamp { return TimestampFromTime(d.start()) }

// Next returns the following calendar date.
func (d TradingDate) Next() TradingDate {
	return NewTradingDate(d.year, d.month, d.day+1)
}

// Range returns the half-open [midnight, next midnight) span of the date.
func (d TradingDate) Range() TimeRange {
	r, _ := NewTimeRange(d.Start(), d.Next().Start())
	return r
}

// DaysSinceEpoch returns the date32 representation used by the columnar
// schema.
func (d TradingDate) DaysSinceEpoch() int32 {
	return int32(d.start().Unix() / 86400)
}

// TradingDateFromDays inverts DaysSinceEpoch.
func TradingDateFromDays(days int32) TradingDate {
	return TimestampFromTime(time.Unix(int64(days)*86400, 0).UTC()).TradingDate()
}

// Before reports whether d precedes o.
func (d TradingDate) Before(o TradingDate) bool {
	return d.start().Before(o.start())
}

// IsZero reports whether the date is the zero value.
func (d TradingDate) IsZero() bool { return d == TradingDate{} }

// DefaultMaxRangeDays bounds the span a single TimeRange may cover. The
// bound is configurable per call site; 730 days is the default carried over
// from the domain rules.
const DefaultMaxRangeDays = 730

// TimeRange is a half-open [Start, End) pair of instants with Start < End.
type TimeRange struct {
	Start Timestamp
	End   Timestamp
}

// NewTimeRange validates a range against the default span bound.
func NewTimeRange(start, end Timestamp) (TimeRange, error) {
	return NewTimeRangeWithLimit(start, end, DefaultMaxRangeDays)
}

// NewTimeRangeWithLimit validates a range against an explicit maximum span
// in days. maxDays <= 0 disables the bound.
func NewTimeRangeWithLimit(start, end Timestamp, maxDays int) (TimeRange, error) {
	if start >= end {
		return TimeRange{}, validation("time_range", "range_order", "start %d must be before end %d", start, end)
	}
	if maxDays > 0 && int64(end-start) > int64(maxDays)*DayNs {
		return TimeRange{}, validation("time_range", "range_span", "range spans more than %d days", maxDays)
	}
	return TimeRange{Start: start, End: end}, nil
}

// Contains reports whether the instant falls inside the half-open range.
func (r TimeRange) Contains(t Timestamp) bool {
	return t >= r.Start && t < r.End
}

// Duration returns the span of the range.
func (r TimeRange) Duration() time.Duration {
	return time.Duration(int64(r.End - r.Start))
}
