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

package ingest

import "github.com/prometheus/client_golang/prometheus"

var (
	jobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marketpipe_ingest_jobs_total",
		Help: "Ingestion jobs by terminal outcome",
	}, []string{"outcome"})

	barsIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "marketpipe_ingest_bars_total",
		Help: "Bars persisted by completed jobs",
	})

	activeWorkers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "marketpipe_ingest_active_workers",
		Help: "Workers currently executing a job",
	})

	backpressureSheds = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "marketpipe_ingest_backpressure_sheds_total",
		Help: "Worker slots shed after rate limiter pressure",
	})
)

func init() {
	prometheus.MustRegister(jobsTotal, barsIngested, activeWorkers, backpressureSheds)
}
