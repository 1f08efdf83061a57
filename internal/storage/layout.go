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

// Package storage is the columnar bar store. Files are Parquet, laid out in
// Hive-style partition directories under a single root:
//
//	<root>/frame=<frame>/symbol=<SYMBOL>/date=<YYYY-MM-DD>/<job_id>.parquet
//
// One write produces one file named after the ingestion job that produced
// it, written to a temp name and renamed into place so readers never see a
// partial file. Writers serialize per partition through a flock sidecar;
// readers take no lock and dedup duplicate (symbol, timestamp) rows in
// file-name order, first file wins.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"marketpipe/internal/domain"
)

// Partition identifies one Hive directory: a (frame, symbol, trading date)
// triple.
type Partition struct {
	Frame  domain.Frame
	Symbol domain.Symbol
	Date   domain.TradingDate
}

func (p Partition) String() string {
	return fmt.Sprintf("frame=%s/symbol=%s/date=%s", p.Frame, p.Symbol, p.Date)
}

// Dir returns the partition directory under root.
func (p Partition) Dir(root string) string {
	return filepath.Join(root,
		"frame="+p.Frame.String(),
		"symbol="+p.Symbol.String(),
		"date="+p.Date.String())
}

// FilePath returns the data file path for one job inside the partition.
func (p Partition) FilePath(root, jobID string) string {
	return filepath.Join(p.Dir(root), jobID+".parquet")
}

// lockPath is the flock sidecar guarding writers of the partition.
func (p Partition) lockPath(root string) string {
	return filepath.Join(p.Dir(root), ".lock")
}

// parsePartitionDir recovers the triple from the three trailing path
// segments of a partition directory.
func parsePartitionDir(frameSeg, symbolSeg, dateSeg string) (Partition, error) {
	frameVal, ok := strings.CutPrefix(frameSeg, "frame=")
	if !ok {
		return Partition{}, fmt.Errorf("storage: bad frame segment %q", frameSeg)
	}
	symbolVal, ok := strings.CutPrefix(symbolSeg, "symbol=")
	if !ok {
		return Partition{}, fmt.Errorf("storage: bad symbol segment %q", symbolSeg)
	}
	dateVal, ok := strings.CutPrefix(dateSeg, "date=")
	if !ok {
		return Partition{}, fmt.Errorf("storage: bad date segment %q", dateSeg)
	}
	frame, err := domain.ParseFrame(frameVal)
	if err != nil {
		return Partition{}, err
	}
	symbol, err := domain.NewSymbol(symbolVal)
	if err != nil {
		return Partition{}, err
	}
	date, err := domain.ParseTradingDate(dateVal)
	if err != nil {
		return Partition{}, err
	}
	return Partition{Frame: frame, Symbol: symbol, Date: date}, nil
}

// dataFiles lists the partition's Parquet files sorted by name. The sort
// order is the dedup precedence order for readers.
func dataFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".parquet") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
