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

// Package aggregate materializes coarser frames (5m, 15m, 1h, 1d) from the
// 1m partitions. Rollups run in exact decimal arithmetic: the volume
// weighted price of a bucket is sum(vwap*volume)/sum(volume) rounded back
// to the canonical scale, never a float round trip.
package aggregate

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marketpipe/internal/domain"
	"marketpipe/internal/storage"
)

// Engine rolls 1m partitions up into the coarser frames.
type Engine struct {
	store *storage.Engine
	log   *zap.Logger
}

// NewEngine builds an aggregator over store.
func NewEngine(store *storage.Engine, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{store: store, log: log}
}

// AggregateJob reads the job's 1m partition and writes one file per target
// frame, named after the job so re-runs replace their own output. Returns
// rows written per frame. An empty source partition writes nothing and
// returns empty counts.
func (e *Engine) AggregateJob(symbol domain.Symbol, date domain.TradingDate, jobID string) (map[domain.Frame]int64, error) {
	source := storage.Partition{Frame: domain.Frame1m, Symbol: symbol, Date: date}
	stats, err := e.store.ValidateIntegrity(source)
	if err != nil {
		return nil, fmt.Errorf("aggregate: integrity %s: %w", source, err)
	}

	counts := make(map[domain.Frame]int64, len(domain.AggregationFrames))
	if stats.RowCount == 0 {
		return counts, nil
	}

	bars, err := e.store.Read(source)
	if err != nil {
		return nil, fmt.Errorf("aggregate: read %s: %w", source, err)
	}

	for _, frame := range domain.AggregationFrames {
		rolled, err := Rollup(bars, frame)
		if err != nil {
			return nil, err
		}
		target := storage.Partition{Frame: frame, Symbol: symbol, Date: date}
		n, err := e.store.Write(target, jobID, rolled)
		if err != nil {
			return nil, fmt.Errorf("aggregate: write %s: %w", target, err)
		}
		counts[frame] = int64(n)
	}
	e.log.Info("aggregation complete",
		zap.String("job_id", jobID),
		zap.Int("source_rows", len(bars)))
	return counts, nil
}

// bucket accumulates one output bar. Constituents arrive in timestamp
// order, so open/close are first/last seen.
type bucket struct {
	start domain.Timestamp

	open, high, low, close domain.Price
	volume                 int64

	tradeCount    int64
	allTradeCount bool

	allVWAP      bool
	vwapWeighted decimal.Decimal
	vwapVolume   decimal.Decimal

	session domain.Session
	status  domain.BarStatus
	source  string
}

// Rollup folds 1m bars into coarser ones. Input must be sorted by
// timestamp, as storage reads deliver it. Per bucket: open is the first
// constituent, close the last, high/low the extremes, volume the sum. The
// trade count is the sum when every constituent carries one, else absent.
// The weighted price is sum(vwap*volume)/sum(volume) rounded half-even to
// the canonical scale, absent unless every constituent carries a vwap and
// their volume sum is positive.
func Rollup(bars []*domain.OHLCVBar, frame domain.Frame) ([]*domain.OHLCVBar, error) {
	span := frame.SpanNs()
	var order []domain.Timestamp
	buckets := make(map[domain.Timestamp]*bucket)

	for _, b := range bars {
		start := b.Timestamp.TruncateTo(span)
		bk, ok := buckets[start]
		if !ok {
			bk = &bucket{
				start:         start,
				open:          b.Open,
				high:          b.High,
				low:           b.Low,
				allTradeCount: true,
				allVWAP:       true,
				session:       b.Session,
				status:        b.Status,
				source:        b.Source,
			}
			buckets[start] = bk
			order = append(order, start)
		}
		if b.High.Cmp(bk.high) > 0 {
			bk.high = b.High
		}
		if b.Low.Cmp(bk.low) < 0 {
			bk.low = b.Low
		}
		bk.close = b.Close
		bk.volume += b.Volume.Int64()
		if b.TradeCount != nil {
			bk.tradeCount += *b.TradeCount
		} else {
			bk.allTradeCount = false
		}
		if b.VWAP != nil {
			vol := decimal.NewFromInt(b.Volume.Int64())
			bk.vwapWeighted = bk.vwapWeighted.Add(b.VWAP.Decimal().Mul(vol))
			bk.vwapVolume = bk.vwapVolume.Add(vol)
		} else {
			bk.allVWAP = false
		}
		if b.Session == domain.SessionExtended {
			bk.session = domain.SessionExtended
		}
		if b.Status == domain.StatusSuspect {
			bk.status = domain.StatusSuspect
		}
	}

	out := make([]*domain.OHLCVBar, 0, len(order))
	for _, start := range order {
		bk := buckets[start]
		bar, err := bk.seal(bars[0].Symbol, frame)
		if err != nil {
			return nil, err
		}
		out = append(out, bar)
	}
	return out, nil
}

func (bk *bucket) seal(symbol domain.Symbol, frame domain.Frame) (*domain.OHLCVBar, error) {
	vol, err := domain.NewVolume(bk.volume)
	if err != nil {
		return nil, err
	}
	params := domain.BarParams{
		Symbol:    symbol,
		Timestamp: bk.start,
		Open:      bk.open,
		High:      bk.high,
		Low:       bk.low,
		Close:     bk.close,
		Volume:    vol,
		Session:   bk.session,
		Status:    bk.status,
		Source:    bk.source,
		Frame:     frame,
	}
	if bk.allTradeCount {
		n := bk.tradeCount
		params.TradeCount = &n
	}
	if bk.allVWAP && bk.vwapVolume.IsPositive() {
		v, err := domain.NewPriceFromDecimal(
			bk.vwapWeighted.DivRound(bk.vwapVolume, domain.PriceScale))
		if err != nil {
			return nil, fmt.Errorf("aggregate: vwap for bucket %d: %w", bk.start, err)
		}
		params.VWAP = &v
	}
	return domain.NewBar(params)
}
