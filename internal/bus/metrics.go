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

package bus

import "github.com/prometheus/client_golang/prometheus"

var (
	eventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marketpipe_events_published_total",
		Help: "Domain events published to the in-process bus",
	}, []string{"type"})

	handlerPanics = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marketpipe_event_handler_panics_total",
		Help: "Handler panics contained during delivery",
	}, []string{"type"})
)

func init() {
	prometheus.MustRegister(eventsPublished, handlerPanics)
}
