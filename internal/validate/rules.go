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

// Package validate re-checks persisted rows against the bar rules and the
// partition they were filed under. It reads raw storage records rather than
// domain bars on purpose: a row that would not survive bar construction is
// exactly the kind of row this package exists to report.
package validate

import (
	"fmt"

	"marketpipe/internal/domain"
	"marketpipe/internal/storage"
)

// Finding is one rule violation on one row.
type Finding struct {
	Rule        string
	Symbol      string
	TimestampNs int64
	Message     string
}

// Rule checks one row in the context of its partition. A nil return means
// the row passes.
type Rule struct {
	ID    string
	Check func(p storage.Partition, r storage.Record) *Finding
}

func fail(rule string, r storage.Record, format string, args ...interface{}) *Finding {
	return &Finding{
		Rule:        rule,
		Symbol:      r.Symbol,
		TimestampNs: r.TimestampNs,
		Message:     fmt.Sprintf(format, args...),
	}
}

// DefaultMaxPriceScaled is the price_reasonableness ceiling: 100000.0000 in
// scaled form. No US equity trades there; a row above it is a vendor glitch.
const DefaultMaxPriceScaled = 100_000 * 10_000

// sessionOpenMinute and sessionCloseMinute bound the optional trading_hours
// rule to the regular 09:30-16:00 session, minutes from midnight UTC-proxy.
const (
	sessionOpenMinute  = 9*60 + 30
	sessionCloseMinute = 16 * 60
)

// DefaultRules is the standard rule set, in report order.
func DefaultRules() []Rule {
	return []Rule{
		{ID: "schema_present", Check: func(_ storage.Partition, r storage.Record) *Finding {
			if r.SchemaVersion != domain.CanonicalSchemaVersion {
				return fail("schema_present", r, "schema version %d, want %d", r.SchemaVersion, domain.CanonicalSchemaVersion)
			}
			return nil
		}},
		{ID: "price_positive", Check: func(_ storage.Partition, r storage.Record) *Finding {
			for _, pr := range []struct {
				name string
				v    int64
			}{{"open", r.Open}, {"high", r.High}, {"low", r.Low}, {"close", r.Close}} {
				if pr.v <= 0 {
					return fail("price_positive", r, "%s is %d, must be > 0", pr.name, pr.v)
				}
			}
			return nil
		}},
		{ID: "ohlc_consistency", Check: func(_ storage.Partition, r storage.Record) *Finding {
			if r.High < r.Open || r.High < r.Low || r.High < r.Close {
				return fail("ohlc_consistency", r, "high %d below open/low/close (%d/%d/%d)", r.High, r.Open, r.Low, r.Close)
			}
			if r.Low > r.Open || r.Low > r.High || r.Low > r.Close {
				return fail("ohlc_consistency", r, "low %d above open/high/close (%d/%d/%d)", r.Low, r.Open, r.High, r.Close)
			}
			return nil
		}},
		{ID: "volume_nonneg", Check: func(_ storage.Partition, r storage.Record) *Finding {
			if r.Volume < 0 {
				return fail("volume_nonneg", r, "volume %d", r.Volume)
			}
			if r.TradeCount != nil && *r.TradeCount < 0 {
				return fail("volume_nonneg", r, "trade count %d", *r.TradeCount)
			}
			return nil
		}},
		{ID: "timestamp_alignment", Check: func(p storage.Partition, r storage.Record) *Finding {
			if r.TimestampNs%p.Frame.SpanNs() != 0 {
				return fail("timestamp_alignment", r, "timestamp %d off the %s boundary", r.TimestampNs, p.Frame)
			}
			return nil
		}},
		{ID: "symbol_consistency", Check: func(p storage.Partition, r storage.Record) *Finding {
			if r.Symbol != p.Symbol.String() {
				return fail("symbol_consistency", r, "row symbol %s in partition for %s", r.Symbol, p.Symbol)
			}
			return nil
		}},
		{ID: "date_consistency", Check: func(p storage.Partition, r storage.Record) *Finding {
			ts := domain.Timestamp(r.TimestampNs)
			if ts.TradingDate() != p.Date {
				return fail("date_consistency", r, "row date %s in partition for %s", ts.TradingDate(), p.Date)
			}
			if r.Date != p.Date.DaysSinceEpoch() {
				return fail("date_consistency", r, "date column %d disagrees with partition %s", r.Date, p.Date)
			}
			return nil
		}},
	}
}

// PriceReasonableness bounds every price column below maxScaled. Zero picks
// the default ceiling.
func PriceReasonableness(maxScaled int64) Rule {
	if maxScaled <= 0 {
		maxScaled = DefaultMaxPriceScaled
	}
	return Rule{ID: "price_reasonableness", Check: func(_ storage.Partition, r storage.Record) *Finding {
		for _, pr := range []struct {
			name string
			v    int64
		}{{"open", r.Open}, {"high", r.High}, {"low", r.Low}, {"close", r.Close}} {
			if pr.v >= maxScaled {
				return fail("price_reasonableness", r, "%s %d at or above ceiling %d", pr.name, pr.v, maxScaled)
			}
		}
		return nil
	}}
}

// TradingHours flags 1m bars outside the regular session. Opt-in: extended
// session data is legitimate for vendors that serve it.
func TradingHours() Rule {
	return Rule{ID: "trading_hours", Check: func(p storage.Partition, r storage.Record) *Finding {
		if p.Frame != domain.Frame1m {
			return nil
		}
		minute := int(r.TimestampNs%domain.DayNs) / int(domain.MinuteNs)
		if minute < sessionOpenMinute || minute >= sessionCloseMinute {
			return fail("trading_hours", r, "bar at session minute %d outside regular hours", minute)
		}
		return nil
	}}
}
