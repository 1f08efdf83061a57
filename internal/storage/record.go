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
	"github.com/google/uuid"

	"marketpipe/internal/domain"
)

// Record is the canonical on-disk row. Prices are scaled integers
// (value * 10^4); the required price columns carry the decimal logical type,
// the optional vwap is stored as a plain int64 at the same scale. The date
// is date32. Optional columns are pointers.
type Record struct {
	ID          string `parquet:"id"`
	Symbol      string `parquet:"symbol"`
	TimestampNs int64  `parquet:"timestamp_ns,timestamp(nanosecond)"`
	Date        int32  `parquet:"date,date"`

	Open  int64 `parquet:"open,decimal(4:18)"`
	High  int64 `parquet:"high,decimal(4:18)"`
	Low   int64 `parquet:"low,decimal(4:18)"`
	Close int64 `parquet:"close,decimal(4:18)"`

	Volume     int64  `parquet:"volume"`
	TradeCount *int64 `parquet:"trade_count,optional"`
	VWAP       *int64 `parquet:"vwap,optional"`

	Session       string `parquet:"session,enum"`
	Currency      string `parquet:"currency"`
	Status        string `parquet:"status,enum"`
	Source        string `parquet:"source"`
	Frame         string `parquet:"frame,enum"`
	SchemaVersion int32  `parquet:"schema_version"`
}

// RecordFromBar flattens a validated bar to the on-disk row.
func RecordFromBar(b *domain.OHLCVBar) Record {
	r := Record{
		ID:            b.ID.String(),
		Symbol:        b.Symbol.String(),
		TimestampNs:   b.Timestamp.Ns(),
		Date:          b.TradingDate().DaysSinceEpoch(),
		Open:          b.Open.Scaled(),
		High:          b.High.Scaled(),
		Low:           b.Low.Scaled(),
		Close:         b.Close.Scaled(),
		Volume:        b.Volume.Int64(),
		Session:       string(b.Session),
		Currency:      b.Currency,
		Status:        string(b.Status),
		Source:        b.Source,
		Frame:         b.Frame.String(),
		SchemaVersion: b.SchemaVersion,
	}
	if b.TradeCount != nil {
		n := *b.TradeCount
		r.TradeCount = &n
	}
	if b.VWAP != nil {
		v := b.VWAP.Scaled()
		r.VWAP = &v
	}
	return r
}

// Bar rebuilds the domain bar, re-running the construction invariants and
// restoring the stored identity.
func (r Record) Bar() (*domain.OHLCVBar, error) {
	symbol, err := domain.NewSymbol(r.Symbol)
	if err != nil {
		return nil, err
	}
	open, err := domain.PriceFromScaled(r.Open)
	if err != nil {
		return nil, err
	}
	high, err := domain.PriceFromScaled(r.High)
	if err != nil {
		return nil, err
	}
	low, err := domain.PriceFromScaled(r.Low)
	if err != nil {
		return nil, err
	}
	clos, err := domain.PriceFromScaled(r.Close)
	if err != nil {
		return nil, err
	}
	vol, err := domain.NewVolume(r.Volume)
	if err != nil {
		return nil, err
	}
	var vwap *domain.Price
	if r.VWAP != nil {
		v, err := domain.PriceFromScaled(*r.VWAP)
		if err != nil {
			return nil, err
		}
		vwap = &v
	}
	bar, err := domain.NewBar(domain.BarParams{
		Symbol:     symbol,
		Timestamp:  domain.Timestamp(r.TimestampNs),
		Open:       open,
		High:       high,
		Low:        low,
		Close:      clos,
		Volume:     vol,
		TradeCount: r.TradeCount,
		VWAP:       vwap,
		Session:    domain.Session(r.Session),
		Currency:   r.Currency,
		Status:     domain.BarStatus(r.Status),
		Source:     r.Source,
		Frame:      domain.Frame(r.Frame),
	})
	if err != nil {
		return nil, err
	}
	if id, perr := uuid.Parse(r.ID); perr == nil {
		bar.ID = id
	}
	bar.SchemaVersion = r.SchemaVersion
	return bar, nil
}
