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

// Package provider presents a vendor-neutral market-data capability and
// hides HTTP, pagination, retry, and normalization behind it. Concrete
// vendors implement the small VendorAdapter extension surface; the shared
// Client supplies the baseline behavior (rate-limit admission, auth, retry
// with backoff, Retry-After pushback, canonical normalization).
package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"marketpipe/internal/domain"
)

// Metadata describes a provider for discovery and health surfaces.
type Metadata struct {
	Name                string
	SupportedTimeframes []domain.Frame
	RateLimitHint       int // requests per second the vendor advertises, 0 if unknown
}

// MarketDataProvider is the capability the ingestion coordinator consumes.
// A single instance is safe for concurrent FetchBars calls from multiple
// workers; per-call state never leaks across calls.
type MarketDataProvider interface {
	// FetchBars produces a complete, timestamp-ordered, de-duplicated bar
	// sequence for the symbol across as many paginated requests as needed.
	FetchBars(ctx context.Context, symbol domain.Symbol, r domain.TimeRange) ([]*domain.OHLCVBar, error)
	Metadata() Metadata
	// TestConnection reports whether the vendor endpoint is reachable.
	TestConnection(ctx context.Context) bool
}

// RawBar is one vendor row after JSON decoding but before domain
// normalization. Monetary fields stay json.Number so no decimal text ever
// takes a trip through binary floats.
type RawBar struct {
	TimestampNs int64
	Open        json.Number
	High        json.Number
	Low         json.Number
	Close       json.Number
	Volume      int64
	TradeCount  *int64
	VWAP        *json.Number
}

// VendorAdapter is the per-vendor extension surface. Implementations are
// stateless with respect to a single fetch; everything per-call arrives as
// arguments.
type VendorAdapter interface {
	// Name is the vendor label, also stamped into bars as Source.
	Name() string
	// EndpointPath is the request path template for bar fetches.
	EndpointPath() string
	// BuildRequestParams returns the query map for one page. cursor is empty
	// on the first page.
	BuildRequestParams(symbol domain.Symbol, startNs, endNs int64, cursor string) map[string]string
	// NextCursor extracts the pagination cursor from a response body.
	// ok=false terminates pagination.
	NextCursor(body []byte) (cursor string, ok bool)
	// ParseResponse extracts the raw bar rows from a response body.
	ParseResponse(body []byte) ([]RawBar, error)
	// ShouldRetry lets a vendor widen the baseline retry policy for
	// vendor-specific soft failures.
	ShouldRetry(status int, body []byte) bool
}

// ProviderError reports that the adapter exhausted its retries or received
// an unrecoverable response.
type ProviderError struct {
	Vendor  string
	Status  int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: status=%d: %s", e.Vendor, e.Status, e.Message)
}

// NormalizationError reports that one raw vendor row failed
// canonicalization. Sibling rows proceed; the failing row is dropped and
// counted.
type NormalizationError struct {
	Row   RawBar
	Cause error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize row ts=%d: %v", e.Row.TimestampNs, e.Cause)
}

func (e *NormalizationError) Unwrap() error { return e.Cause }
