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

package validate

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// WriteCSV publishes the report's findings as <job_id>_<symbol>.csv under
// dir, written to a temp name and renamed so a crash never leaves a partial
// report. A clean report still produces a (header-only) file, which is how
// operators distinguish "validated clean" from "never validated".
func WriteCSV(dir string, report *Report) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("validate: create report dir: %w", err)
	}
	name := fmt.Sprintf("%s_%s.csv", report.JobID, report.Symbol)
	tmp, err := os.CreateTemp(dir, name+".tmp-")
	if err != nil {
		return "", fmt.Errorf("validate: create temp report: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := csv.NewWriter(tmp)
	if err := w.Write([]string{"symbol", "ts_ns", "reason"}); err != nil {
		tmp.Close()
		return "", fmt.Errorf("validate: write report header: %w", err)
	}
	for _, f := range report.Findings {
		row := []string{
			f.Symbol,
			strconv.FormatInt(f.TimestampNs, 10),
			f.Rule,
		}
		if err := w.Write(row); err != nil {
			tmp.Close()
			return "", fmt.Errorf("validate: write report row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("validate: flush report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("validate: close temp report: %w", err)
	}

	final := filepath.Join(dir, name)
	if err := os.Rename(tmpName, final); err != nil {
		return "", fmt.Errorf("validate: publish report: %w", err)
	}
	return final, nil
}

// ReportFileName returns the CSV name a report would publish under, without
// writing it.
func ReportFileName(jobID, symbol string) string {
	return jobID + "_" + symbol + ".csv"
}
