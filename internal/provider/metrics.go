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

import "github.com/prometheus/client_golang/prometheus"

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marketpipe_provider_requests_total",
		Help: "Vendor HTTP requests by outcome (ok, retry, error)",
	}, []string{"vendor", "outcome"})

	barsFetched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marketpipe_provider_bars_fetched_total",
		Help: "Canonical bars produced by normalization",
	}, []string{"vendor"})

	normalizationSkips = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marketpipe_provider_normalization_skips_total",
		Help: "Vendor rows dropped because they failed canonicalization",
	}, []string{"vendor"})
)

func init() {
	prometheus.MustRegister(requestsTotal, barsFetched, normalizationSkips)
}
