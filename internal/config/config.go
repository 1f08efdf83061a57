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

// Package config reads runtime configuration from the environment. Vendor
// credentials are resolved per vendor from MP_<VENDOR>_API_KEY and
// MP_<VENDOR>_API_SECRET, with the legacy ALPACA_KEY / ALPACA_SECRET pair
// still honored for Alpaca.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// Config is the process-wide environment configuration.
type Config struct {
	// DB is the job and checkpoint database: a SQLite file path, or a
	// Postgres DSN when it contains "://".
	DB string `envconfig:"MP_DB" default:"marketpipe.db"`

	// DataDir is the root of the Parquet partition tree.
	DataDir string `envconfig:"MP_DATA_DIR" default:"data"`

	// MetricsDBPath, when set, is the SQLite file operational metrics are
	// snapshotted to; empty disables the snapshot sink.
	MetricsDBPath string `envconfig:"METRICS_DB_PATH" default:""`

	// ReportDir is where validation CSV reports are published.
	ReportDir string `envconfig:"MP_REPORT_DIR" default:"reports"`

	// RetentionDays is the prune horizon for stored bars.
	RetentionDays int `envconfig:"MP_RETENTION_DAYS" default:"730"`

	// MaxWorkers bounds concurrent ingestion jobs.
	MaxWorkers int `envconfig:"MP_MAX_WORKERS" default:"4"`

	// RateLimitCapacity and RateLimitPerSec shape the per-vendor token
	// bucket.
	RateLimitCapacity float64 `envconfig:"MP_RATE_LIMIT_CAPACITY" default:"10"`
	RateLimitPerSec   float64 `envconfig:"MP_RATE_LIMIT_PER_SEC" default:"3"`

	// MetricsAddr, when set, serves the Prometheus endpoint.
	MetricsAddr string `envconfig:"MP_METRICS_ADDR" default:""`

	// LogLevel selects zap's level: debug, info, warn, error.
	LogLevel string `envconfig:"MP_LOG_LEVEL" default:"info"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.MaxWorkers <= 0 {
		return nil, fmt.Errorf("config: MP_MAX_WORKERS must be positive, got %d", cfg.MaxWorkers)
	}
	if cfg.RetentionDays <= 0 {
		return nil, fmt.Errorf("config: MP_RETENTION_DAYS must be positive, got %d", cfg.RetentionDays)
	}
	return &cfg, nil
}

// SQLDriver derives the database driver from the DB setting.
func (c *Config) SQLDriver() string {
	if strings.Contains(c.DB, "://") {
		return "postgres"
	}
	return "sqlite3"
}

// Credentials is one vendor's API key pair.
type Credentials struct {
	Key    string
	Secret string
}

// VendorCredentials resolves the key pair for a vendor name such as
// "alpaca". Missing credentials are not an error here; providers that need
// them reject empty values at connect time.
func VendorCredentials(vendor string) Credentials {
	upper := strings.ToUpper(vendor)
	creds := Credentials{
		Key:    os.Getenv("MP_" + upper + "_API_KEY"),
		Secret: os.Getenv("MP_" + upper + "_API_SECRET"),
	}
	if upper == "ALPACA" {
		if creds.Key == "" {
			creds.Key = os.Getenv("ALPACA_KEY")
		}
		if creds.Secret == "" {
			creds.Secret = os.Getenv("ALPACA_SECRET")
		}
	}
	return creds
}

// MaskSecret renders a credential for logs: first four characters, rest
// starred. Short values mask entirely.
func MaskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-4)
}
