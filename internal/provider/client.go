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
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"marketpipe/internal/domain"
	"marketpipe/internal/ratelimit"
)

// retryableStatuses is the baseline retry set shared by all vendors;
// adapters may widen it via ShouldRetry.
var retryableStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Client is the shared baseline around a VendorAdapter: rate-limit
// admission before every request, auth application, retry with exponential
// backoff and jitter, Retry-After pushback into the limiter, pagination,
// and canonical normalization. One Client instance serves concurrent
// FetchBars callers; the resty transport pool is shared, request state is
// per call.
type Client struct {
	adapter    VendorAdapter
	limiter    *ratelimit.Limiter
	auth       AuthStrategy
	http       *resty.Client
	maxRetries int
	retryBase  time.Duration
	meta       Metadata
	log        *zap.Logger
}

// ClientOption tunes a Client at construction.
type ClientOption func(*Client)

// WithMaxRetries bounds retry attempts per request (default 3).
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) { c.maxRetries = n }
}

// WithRetryBase sets the first backoff interval (default 1.5s). Tests dial
// this down.
func WithRetryBase(d time.Duration) ClientOption {
	return func(c *Client) { c.retryBase = d }
}

// WithRequestTimeout bounds a single HTTP request.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// WithLogger replaces the default nop logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) { c.log = l }
}

// NewClient builds the baseline client for one vendor.
func NewClient(baseURL string, adapter VendorAdapter, limiter *ratelimit.Limiter, auth AuthStrategy, opts ...ClientOption) *Client {
	c := &Client{
		adapter:    adapter,
		limiter:    limiter,
		auth:       auth,
		http:       resty.New().SetBaseURL(baseURL).SetTimeout(30 * time.Second),
		maxRetries: 3,
		retryBase:  1500 * time.Millisecond,
		log:        zap.NewNop(),
		meta: Metadata{
			Name:                adapter.Name(),
			SupportedTimeframes: []domain.Frame{domain.Frame1m},
		},
	}
	// resty has its own retry machinery; the baseline policy below owns
	// retries so it stays disabled.
	c.http.SetRetryCount(0)
	for _, o := range opts {
		o(c)
	}
	return c
}

// Metadata implements MarketDataProvider.
func (c *Client) Metadata() Metadata { return c.meta }

// TestConnection implements MarketDataProvider. Reachability means the
// vendor answered at the transport level; auth failures still count as
// reachable.
func (c *Client) TestConnection(ctx context.Context) bool {
	_, err := c.http.R().SetContext(ctx).Get(c.adapter.EndpointPath())
	return err == nil
}

// FetchBars implements MarketDataProvider. The returned sequence is sorted
// by timestamp and de-duplicated (first occurrence wins). An empty page
// with a live cursor does not terminate pagination.
func (c *Client) FetchBars(ctx context.Context, symbol domain.Symbol, r domain.TimeRange) ([]*domain.OHLCVBar, error) {
	var bars []*domain.OHLCVBar
	cursor := ""
	for {
		params := c.adapter.BuildRequestParams(symbol, r.Start.Ns(), r.End.Ns(), cursor)
		body, err := c.doRequest(ctx, params)
		if err != nil {
			return nil, err
		}
		rows, err := c.adapter.ParseResponse(body)
		if err != nil {
			return nil, &ProviderError{Vendor: c.adapter.Name(), Message: "unparseable response: " + err.Error()}
		}
		for _, raw := range rows {
			bar, err := normalizeRow(raw, symbol, c.adapter.Name())
			if err != nil {
				var nerr *NormalizationError
				if errors.As(err, &nerr) {
					normalizationSkips.WithLabelValues(c.adapter.Name()).Inc()
					c.log.Warn("dropping unnormalizable vendor row",
						zap.String("vendor", c.adapter.Name()),
						zap.String("symbol", symbol.String()),
						zap.Int64("ts_ns", raw.TimestampNs),
						zap.Error(nerr.Cause))
					continue
				}
				return nil, err
			}
			bars = append(bars, bar)
		}
		next, ok := c.adapter.NextCursor(body)
		if !ok {
			break
		}
		cursor = next
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Timestamp < bars[j].Timestamp })
	deduped := bars[:0]
	var lastTs domain.Timestamp
	for i, b := range bars {
		if i > 0 && b.Timestamp == lastTs {
			continue
		}
		deduped = append(deduped, b)
		lastTs = b.Timestamp
	}
	barsFetched.WithLabelValues(c.adapter.Name()).Add(float64(len(deduped)))
	return deduped, nil
}

// doRequest performs one logical request with the baseline retry policy:
// network errors, {429, 500, 502, 503, 504}, and adapter-designated soft
// failures retry with exponential backoff (multiplier 1.5, jitter 0.2); a
// 429 Retry-After header is pushed into the limiter before the retry.
func (c *Client) doRequest(ctx context.Context, params map[string]string) ([]byte, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryBase
	bo.Multiplier = 1.5
	bo.RandomizationFactor = 0.2
	bo.MaxElapsedTime = 0

	var lastStatus int
	var lastMsg string
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.AcquireContext(ctx); err != nil {
			return nil, err
		}

		headers := map[string]string{"Accept": "application/json"}
		query := make(map[string]string, len(params))
		for k, v := range params {
			query[k] = v
		}
		c.auth.Apply(headers, query)

		resp, err := c.http.R().
			SetContext(ctx).
			SetHeaders(headers).
			SetQueryParams(query).
			Get(c.adapter.EndpointPath())

		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastStatus, lastMsg = 0, err.Error()
		case resp.StatusCode() == http.StatusOK:
			requestsTotal.WithLabelValues(c.adapter.Name(), "ok").Inc()
			return resp.Body(), nil
		case resp.StatusCode() == http.StatusTooManyRequests:
			if d := parseRetryAfter(resp.Header().Get("Retry-After")); d > 0 {
				c.limiter.NotifyRetryAfter(d)
			}
			lastStatus, lastMsg = resp.StatusCode(), string(resp.Body())
		case retryableStatuses[resp.StatusCode()] || c.adapter.ShouldRetry(resp.StatusCode(), resp.Body()):
			lastStatus, lastMsg = resp.StatusCode(), string(resp.Body())
		default:
			requestsTotal.WithLabelValues(c.adapter.Name(), "error").Inc()
			return nil, &ProviderError{Vendor: c.adapter.Name(), Status: resp.StatusCode(), Message: truncate(string(resp.Body()), 512)}
		}

		requestsTotal.WithLabelValues(c.adapter.Name(), "retry").Inc()
		if attempt == c.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(bo.NextBackOff()):
		}
	}
	return nil, &ProviderError{
		Vendor:  c.adapter.Name(),
		Status:  lastStatus,
		Message: "retries exhausted: " + truncate(lastMsg, 512),
	}
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t)
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
