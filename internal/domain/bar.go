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
	"github.com/google/uuid"
)

// CanonicalSchemaVersion is the version stamp carried by every bar written
// under the canonical OHLCV column schema.
const CanonicalSchemaVersion int32 = 1

// OHLCVBar is one open/high/low/close/volume tuple for one symbol over one
// frame interval. Bars are immutable after construction: NewBar is the only
// way to obtain one, and it enforces every price and alignment invariant, so
// downstream code never re-checks them.
//
// Identity is the generated ID at the domain level; the storage layer dedups
// by (Symbol, Timestamp) instead, because two ingest runs of the same minute
// legitimately produce distinct IDs for the same logical bar.
type OHLCVBar struct {
	ID        uuid.UUID
	Symbol    Symbol
	Timestamp Timestamp

	Open  Price
	High  Price
	Low   Price
	Close Price

	Volume     Volume
	TradeCount *int64
	VWAP       *Price

	Session  Session
	Currency string
	Status   BarStatus
	Source   string
	Frame    Frame

	SchemaVersion int32
}

// BarParams carries the attributes of a bar under construction. Optional
// fields are pointers; Session, Currency, Status and Frame default to
// regular/USD/ok/1m when left empty.
type BarParams struct {
	Symbol    Symbol
	Timestamp Timestamp

	Open  Price
	High  Price
	Low   Price
	Close Price

	Volume     Volume
	TradeCount *int64
	VWAP       *Price

	Session  Session
	Currency string
	Status   BarStatus
	Source   string
	Frame    Frame
}

// NewBar validates and constructs a bar.
//
// Invariants enforced here:
//   - high >= max(open, low, close) and low <= min(open, high, close)
//   - all four prices > 0 (Price construction already guarantees this for
//     non-zero values; zero is re-rejected here)
//   - volume >= 0 (by Volume construction)
//   - trade count, when present, >= 0
//   - timestamp aligned to the frame boundary (minute boundary for 1m)
func NewBar(p BarParams) (*OHLCVBar, error) {
	if p.Symbol == "" {
		return nil, validation("symbol", "symbol_nonempty", "bar requires a symbol")
	}
	if p.Frame == "" {
		p.Frame = Frame1m
	}
	if _, err := ParseFrame(string(p.Frame)); err != nil {
		return nil, err
	}
	if int64(p.Timestamp)%p.Frame.SpanNs() != 0 {
		return nil, validation("timestamp", "timestamp_alignment",
			"timestamp %d is not aligned to the %s boundary", p.Timestamp, p.Frame)
	}
	for _, pr := range []struct {
		field string
		p     Price
	}{{"open", p.Open}, {"high", p.High}, {"low", p.Low}, {"close", p.Close}} {
		if pr.p.IsZero() {
			return nil, validation(pr.field, "price_positive", "%s must be > 0", pr.field)
		}
	}
	if p.High.Cmp(p.Open) < 0 || p.High.Cmp(p.Low) < 0 || p.High.Cmp(p.Close) < 0 {
		return nil, validation("high", "ohlc_consistency",
			"high %s below another price (open=%s low=%s close=%s)", p.High, p.Open, p.Low, p.Close)
	}
	if p.Low.Cmp(p.Open) > 0 || p.Low.Cmp(p.High) > 0 || p.Low.Cmp(p.Close) > 0 {
		return nil, validation("low", "ohlc_consistency",
			"low %s above another price (open=%s high=%s close=%s)", p.Low, p.Open, p.High, p.Close)
	}
	if p.TradeCount != nil && *p.TradeCount < 0 {
		return nil, validation("trade_count", "trade_count_nonneg", "trade count must be >= 0, got %d", *p.TradeCount)
	}
	if p.Session == "" {
		p.Session = SessionRegular
	}
	if p.Currency == "" {
		p.Currency = "USD"
	}
	if p.Status == "" {
		p.Status = StatusOK
	}
	return &OHLCVBar{
		ID:            uuid.New(),
		Symbol:        p.Symbol,
		Timestamp:     p.Timestamp,
		Open:          p.Open,
		High:          p.High,
		Low:           p.Low,
		Close:         p.Close,
		Volume:        p.Volume,
		TradeCount:    p.TradeCount,
		VWAP:          p.VWAP,
		Session:       p.Session,
		Currency:      p.Currency,
		Status:        p.Status,
		Source:        p.Source,
		Frame:         p.Frame,
		SchemaVersion: CanonicalSchemaVersion,
	}, nil
}

// TradingDate returns the UTC calendar date of the bar's open instant.
func (b *OHLCVBar) TradingDate() TradingDate { return b.Timestamp.TradingDate() }
