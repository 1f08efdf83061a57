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

package storage

import (
	"fmt"
	"path/filepath"

	"marketpipe/internal/domain"
)

// ViewRegistrar is the surface of an external SQL engine able to expose a
// logical view over a set of columnar files.
type ViewRegistrar interface {
	RegisterView(name, fileGlob string) error
}

// RegisterViews registers one view per frame, named bars_<frame>, over that
// frame's partition files. Registration is idempotent on the registrar's
// side; calling it again after ingests refreshes the file sets. An empty
// frame list registers 1m plus every aggregation frame.
func (e *Engine) RegisterViews(r ViewRegistrar, frames ...domain.Frame) error {
	if len(frames) == 0 {
		frames = append([]domain.Frame{domain.Frame1m}, domain.AggregationFrames...)
	}
	for _, frame := range frames {
		glob := filepath.Join(e.root,
			"frame="+frame.String(), "symbol=*", "date=*", "*.parquet")
		if err := r.RegisterView("bars_"+frame.String(), glob); err != nil {
			return fmt.Errorf("storage: register view for %s: %w", frame, err)
		}
	}
	return nil
}
