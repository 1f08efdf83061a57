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

import "github.com/prometheus/client_golang/prometheus"

var (
	rowsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marketpipe_storage_rows_written_total",
		Help: "Rows persisted to partition files",
	}, []string{"frame"})

	filesWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marketpipe_storage_files_written_total",
		Help: "Partition files published by atomic rename",
	}, []string{"frame"})
)

func init() {
	prometheus.MustRegister(rowsWritten, filesWritten)
}
