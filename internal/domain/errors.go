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

// Package domain holds the pure value model of MarketPipe: symbols, prices,
// timestamps, OHLCV bars, ingestion jobs, and the domain events that stitch
// the pipeline phases together. Everything here is constructor-validated and
// free of I/O; all constructors report structured errors with field and rule
// identifiers instead of panicking.
package domain

import "fmt"

// ValidationError reports an input that violates a declared invariant of a
// value constructor. Field names the offending attribute, Rule identifies the
// violated rule so callers (and validation reports) can classify failures
// without parsing messages.
type ValidationError struct {
	Field string
	Rule  string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: field=%s rule=%s: %s", e.Field, e.Rule, e.Msg)
}

// InvariantViolation reports an illegal operation against an aggregate that
// is already constructed, e.g. an ingestion job transition outside the
// declared state machine or a storage write whose bars disagree with the
// declared partition.
type InvariantViolation struct {
	Msg string
}

func (e *InvariantViolation) Error() string {
	return "invariant violation: " + e.Msg
}

func invariant(format string, args ...interface{}) error {
	return &InvariantViolation{Msg: fmt.Sprintf(format, args...)}
}

func validation(field, rule, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Rule: rule, Msg: fmt.Sprintf(format, args...)}
}
