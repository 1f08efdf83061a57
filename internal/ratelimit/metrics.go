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

package ratelimit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	waitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marketpipe_rate_limit_waits_total",
		Help: "Number of acquisitions that had to wait for admission",
	}, []string{"provider", "mode"})

	waitSecondsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marketpipe_rate_limit_wait_seconds_total",
		Help: "Summed wall-clock time spent waiting for admission",
	}, []string{"provider", "mode"})
)

func init() {
	// Registration is eager and harmless when no /metrics endpoint is wired.
	prometheus.MustRegister(waitsTotal, waitSecondsTotal)
}

func observeWait(provider, mode string, d time.Duration) {
	waitsTotal.WithLabelValues(provider, mode).Inc()
	waitSecondsTotal.WithLabelValues(provider, mode).Add(d.Seconds())
}
