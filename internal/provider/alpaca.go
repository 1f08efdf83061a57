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
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"marketpipe/internal/domain"
)

// AlpacaAdapter speaks the Alpaca Market Data v2 bars endpoint. Auth is
// header-token (APCA-API-KEY-ID / APCA-API-SECRET-KEY); pagination uses the
// next_page_token cursor.
type AlpacaAdapter struct{}

// AlpacaBaseURL is the production data endpoint.
const AlpacaBaseURL = "https://data.alpaca.markets"

// NewAlpacaAuth builds the header-token strategy Alpaca expects.
func NewAlpacaAuth(key, secret string) HeaderTokenAuth {
	return HeaderTokenAuth{
		KeyHeader:    "APCA-API-KEY-ID",
		SecretHeader: "APCA-API-SECRET-KEY",
		Key:          key,
		Secret:       secret,
	}
}

func (AlpacaAdapter) Name() string { return "alpaca" }

func (AlpacaAdapter) EndpointPath() string { return "/v2/stocks/bars" }

func (AlpacaAdapter) BuildRequestParams(symbol domain.Symbol, startNs, endNs int64, cursor string) map[string]string {
	params := map[string]string{
		"symbols":    symbol.String(),
		"timeframe":  "1Min",
		"start":      time.Unix(0, startNs).UTC().Format(time.RFC3339Nano),
		"end":        time.Unix(0, endNs).UTC().Format(time.RFC3339Nano),
		"limit":      "10000",
		"adjustment": "raw",
	}
	if cursor != "" {
		params["page_token"] = cursor
	}
	return params
}

type alpacaRow struct {
	T  string       `json:"t"`
	O  json.Number  `json:"o"`
	H  json.Number  `json:"h"`
	L  json.Number  `json:"l"`
	C  json.Number  `json:"c"`
	V  json.Number  `json:"v"`
	N  *json.Number `json:"n"`
	VW *json.Number `json:"vw"`
}

type alpacaResponse struct {
	Bars          map[string][]alpacaRow `json:"bars"`
	NextPageToken *string                `json:"next_page_token"`
}

func decodeAlpaca(body []byte) (*alpacaResponse, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var resp alpacaResponse
	if err := dec.Decode(&resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (AlpacaAdapter) NextCursor(body []byte) (string, bool) {
	resp, err := decodeAlpaca(body)
	if err != nil || resp.NextPageToken == nil || *resp.NextPageToken == "" {
		return "", false
	}
	return *resp.NextPageToken, true
}

func (AlpacaAdapter) ParseResponse(body []byte) ([]RawBar, error) {
	resp, err := decodeAlpaca(body)
	if err != nil {
		return nil, err
	}
	var rows []RawBar
	for _, symbolRows := range resp.Bars {
		for _, r := range symbolRows {
			t, err := time.Parse(time.RFC3339Nano, r.T)
			if err != nil {
				return nil, fmt.Errorf("bar timestamp %q: %w", r.T, err)
			}
			vol, err := strconv.ParseInt(r.V.String(), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("bar volume %q: %w", r.V, err)
			}
			raw := RawBar{
				TimestampNs: t.UnixNano(),
				Open:        r.O,
				High:        r.H,
				Low:         r.L,
				Close:       r.C,
				Volume:      vol,
				VWAP:        r.VW,
			}
			if r.N != nil {
				if n, err := strconv.ParseInt(r.N.String(), 10, 64); err == nil {
					raw.TradeCount = &n
				}
			}
			rows = append(rows, raw)
		}
	}
	return rows, nil
}

// ShouldRetry keeps the baseline policy; Alpaca signals nothing softer than
// the standard statuses.
func (AlpacaAdapter) ShouldRetry(int, []byte) bool { return false }
