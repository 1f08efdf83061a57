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
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"marketpipe/internal/domain"
)

// normalizeRow converts one raw vendor row into a canonical bar. Vendor
// precision beyond scale 4 is rounded half-even; a row violating any domain
// invariant yields a NormalizationError carrying the offending row.
func normalizeRow(raw RawBar, symbol domain.Symbol, source string) (*domain.OHLCVBar, error) {
	open, err := priceFromNumber(raw.Open)
	if err != nil {
		return nil, &NormalizationError{Row: raw, Cause: fmt.Errorf("open: %w", err)}
	}
	high, err := priceFromNumber(raw.High)
	if err != nil {
		return nil, &NormalizationError{Row: raw, Cause: fmt.Errorf("high: %w", err)}
	}
	low, err := priceFromNumber(raw.Low)
	if err != nil {
		return nil, &NormalizationError{Row: raw, Cause: fmt.Errorf("low: %w", err)}
	}
	clos, err := priceFromNumber(raw.Close)
	if err != nil {
		return nil, &NormalizationError{Row: raw, Cause: fmt.Errorf("close: %w", err)}
	}
	vol, err := domain.NewVolume(raw.Volume)
	if err != nil {
		return nil, &NormalizationError{Row: raw, Cause: err}
	}
	var vwap *domain.Price
	if raw.VWAP != nil {
		p, err := priceFromNumber(*raw.VWAP)
		if err != nil {
			return nil, &NormalizationError{Row: raw, Cause: fmt.Errorf("vwap: %w", err)}
		}
		vwap = &p
	}

	bar, err := domain.NewBar(domain.BarParams{
		Symbol:     symbol,
		Timestamp:  domain.Timestamp(raw.TimestampNs),
		Open:       open,
		High:       high,
		Low:        low,
		Close:      clos,
		Volume:     vol,
		TradeCount: raw.TradeCount,
		VWAP:       vwap,
		Source:     source,
		Frame:      domain.Frame1m,
	})
	if err != nil {
		return nil, &NormalizationError{Row: raw, Cause: err}
	}
	return bar, nil
}

// priceFromNumber parses decimal text without a float round trip and
// quantizes to the canonical scale.
func priceFromNumber(n json.Number) (domain.Price, error) {
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return domain.Price{}, err
	}
	return domain.NewPriceFromDecimal(d.RoundBank(domain.PriceScale))
}
