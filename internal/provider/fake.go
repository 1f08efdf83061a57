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

package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"marketpipe/internal/domain"
	"marketpipe/internal/ratelimit"
)

// FakeProvider is a deterministic in-process provider for tests and local
// runs. It emits one bar per minute of the regular session (09:30-16:00
// UTC-proxy, 390 bars per trading day) with reproducible prices, and can be
// configured to fail specific symbols or consume a shared rate budget so
// coordinator behavior under vendor ceilings is exercisable without HTTP.
type FakeProvider struct {
	// Limiter, when set, is acquired RequestsPerFetch times per FetchBars
	// call, simulating paginated vendor requests against a shared budget.
	Limiter *ratelimit.Limiter
	// RequestsPerFetch defaults to 1.
	RequestsPerFetch int
	// Fail maps symbols to a persistent error; matching fetches always fail.
	Fail map[domain.Symbol]error

	mu      sync.Mutex
	fetches int
}

const (
	sessionOpenMinute  = 9*60 + 30 // 09:30
	sessionCloseMinute = 16 * 60   // 16:00, exclusive
)

// SessionBarsPerDay is the bar count of one full regular session.
const SessionBarsPerDay = sessionCloseMinute - sessionOpenMinute

// Fetches reports how many FetchBars calls the provider served.
func (f *FakeProvider) Fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

// Metadata implements MarketDataProvider.
func (f *FakeProvider) Metadata() Metadata {
	return Metadata{Name: "fake", SupportedTimeframes: []domain.Frame{domain.Frame1m}}
}

// TestConnection implements MarketDataProvider.
func (f *FakeProvider) TestConnection(context.Context) bool { return true }

// FetchBars implements MarketDataProvider, honoring the requested range so
// checkpoint-resumed fetches return only the remainder of the session.
func (f *FakeProvider) FetchBars(ctx context.Context, symbol domain.Symbol, r domain.TimeRange) ([]*domain.OHLCVBar, error) {
	f.mu.Lock()
	f.fetches++
	f.mu.Unlock()

	if err, ok := f.Fail[symbol]; ok {
		return nil, err
	}

	requests := f.RequestsPerFetch
	if requests <= 0 {
		requests = 1
	}
	if f.Limiter != nil {
		for i := 0; i < requests; i++ {
			if err := f.Limiter.AcquireContext(ctx); err != nil {
				return nil, err
			}
		}
	}

	var bars []*domain.OHLCVBar
	lastDate := (r.End - 1).TradingDate()
	for date := r.Start.TradingDate(); !lastDate.Before(date); date = date.Next() {
		dayStart := date.Start()
		for m := sessionOpenMinute; m < sessionCloseMinute; m++ {
			ts := dayStart + domain.Timestamp(int64(m)*domain.MinuteNs)
			if !r.Contains(ts) {
				continue
			}
			bar, err := f.barAt(symbol, ts, m-sessionOpenMinute)
			if err != nil {
				return nil, err
			}
			bars = append(bars, bar)
		}
	}
	return bars, nil
}

// barAt produces the deterministic bar for one session minute.
func (f *FakeProvider) barAt(symbol domain.Symbol, ts domain.Timestamp, minute int) (*domain.OHLCVBar, error) {
	base := decimal.New(int64(1000000+minute*25), -domain.PriceScale) // 100.0000 + 0.0025/min
	spread := decimal.New(1500, -domain.PriceScale)                   // 0.1500

	open, err := domain.NewPriceFromDecimal(base)
	if err != nil {
		return nil, err
	}
	high, err := domain.NewPriceFromDecimal(base.Add(spread))
	if err != nil {
		return nil, err
	}
	low, err := domain.NewPriceFromDecimal(base.Sub(spread))
	if err != nil {
		return nil, err
	}
	clos, err := domain.NewPriceFromDecimal(base.Add(decimal.New(500, -domain.PriceScale)))
	if err != nil {
		return nil, err
	}
	vwap, err := domain.NewPriceFromDecimal(base.Add(decimal.New(250, -domain.PriceScale)))
	if err != nil {
		return nil, err
	}
	trades := int64(40 + minute%7)
	vol, err := domain.NewVolume(int64(1000 + minute*3))
	if err != nil {
		return nil, err
	}
	return domain.NewBar(domain.BarParams{
		Symbol:     symbol,
		Timestamp:  ts,
		Open:       open,
		High:       high,
		Low:        low,
		Close:      clos,
		Volume:     vol,
		TradeCount: &trades,
		VWAP:       &vwap,
		Source:     "fake",
		Frame:      domain.Frame1m,
	})
}

// PersistentFailure builds the error the fake returns for symbols listed in
// Fail, shaped like an exhausted-retries vendor failure.
func PersistentFailure(symbol domain.Symbol) error {
	return &ProviderError{
		Vendor:  "fake",
		Status:  500,
		Message: fmt.Sprintf("persistent server error for %s", symbol),
	}
}
