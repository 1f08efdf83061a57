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

import "fmt"

// Frame is the duration of one bar. Ingestion always produces Frame1m;
// coarser frames are materialized by the aggregation engine.
type Frame string

const (
	Frame1m  Frame = "1m"
	Frame5m  Frame = "5m"
	Frame15m Frame = "15m"
	Frame1h  Frame = "1h"
	Frame1d  Frame = "1d"
)

// AggregationFrames are the target frames rolled up from 1m bars, in the
// order they are materialized.
var AggregationFrames = []Frame{Frame5m, Frame15m, Frame1h, Frame1d}

// ParseFrame validates a frame label.
func ParseFrame(s string) (Frame, error) {
	switch Frame(s) {
	case Frame1m, Frame5m, Frame15m, Frame1h, Frame1d:
		return Frame(s), nil
	}
	return "", validation("frame", "frame_known", "unknown frame %q", s)
}

// SpanNs returns the frame duration in nanoseconds.
func (f Frame) SpanNs() int64 {
	switch f {
	case Frame1m:
		return MinuteNs
	case Frame5m:
		return 5 * MinuteNs
	case Frame15m:
		return 15 * MinuteNs
	case Frame1h:
		return 60 * MinuteNs
	case Frame1d:
		return DayNs
	}
	panic(fmt.Sprintf("unknown frame %q", string(f)))
}

func (f Frame) String() string { return string(f) }

// Session classifies the trading session a bar belongs to.
type Session string

const (
	SessionRegular  Session = "regular"
	SessionExtended Session = "extended"
)

// BarStatus flags a bar's quality as judged at normalization time.
type BarStatus string

const (
	StatusOK      BarStatus = "ok"
	StatusSuspect BarStatus = "suspect"
)
