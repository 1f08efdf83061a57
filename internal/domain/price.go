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
	"github.com/shopspring/decimal"
)

// PriceScale is the fixed decimal scale of every price in the system.
// Prices travel as decimals end to end; there is deliberately no constructor
// from float64 anywhere, so vendor payloads must be decoded as decimal text
// (json.Number) before they reach this type.
const PriceScale = 4

// Price is a positive decimal with fixed scale 4. The zero value is invalid;
// obtain instances through the constructors.
type Price struct {
	d decimal.Decimal
}

// NewPrice builds a strictly positive price from a decimal string such as
// "187.2500". More than four decimal places is rejected rather than rounded.
func NewPrice(s string) (Price, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Price{}, validation("price", "price_decimal", "cannot parse %q as decimal: %v", s, err)
	}
	return NewPriceFromDecimal(d)
}

// NewPriceFromDecimal builds a strictly positive price from a decimal value.
func NewPriceFromDecimal(d decimal.Decimal) (Price, error) {
	if d.Exponent() < -PriceScale {
		return Price{}, validation("price", "price_scale", "price %s exceeds scale %d", d, PriceScale)
	}
	if !d.IsPositive() {
		return Price{}, validation("price", "price_positive", "price must be > 0, got %s", d)
	}
	return Price{d: d}, nil
}

// PriceFromScaled rebuilds a price from its scaled integer representation
// (value * 10^4), the form stored in columnar files. Zero is admitted here
// because aggregated contexts may carry it; negatives are rejected.
func PriceFromScaled(v int64) (Price, error) {
	if v < 0 {
		return Price{}, validation("price", "price_nonneg", "scaled price must be >= 0, got %d", v)
	}
	return Price{d: decimal.New(v, -PriceScale)}, nil
}

// Decimal returns the underlying decimal value.
func (p Price) Decimal() decimal.Decimal { return p.d }

// Scaled returns the price as an integer scaled by 10^4.
func (p Price) Scaled() int64 {
	return p.d.Shift(PriceScale).IntPart()
}

// Cmp compares two prices: -1 if p < o, 0 if equal, +1 if p > o.
func (p Price) Cmp(o Price) int { return p.d.Cmp(o.d) }

// IsZero reports whether the price is exactly zero.
func (p Price) IsZero() bool { return p.d.IsZero() }

func (p Price) String() string { return p.d.StringFixed(PriceScale) }

// Volume is a non-negative count of shares traded in one bar interval.
type Volume int64

// NewVolume validates a share count.
func NewVolume(v int64) (Volume, error) {
	if v < 0 {
		return 0, validation("volume", "volume_nonneg", "volume must be >= 0, got %d", v)
	}
	return Volume(v), nil
}

func (v Volume) Int64() int64 { return int64(v) }
