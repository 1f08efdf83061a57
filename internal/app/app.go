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

// Package app assembles the pipeline: configuration, logging, stores,
// provider, coordinator, and the event chain that runs validation and
// aggregation after each completed ingestion job. The CLI calls the service
// operations exposed here; nothing below this package knows about flags or
// the environment.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"marketpipe/internal/aggregate"
	"marketpipe/internal/bus"
	"marketpipe/internal/config"
	"marketpipe/internal/domain"
	"marketpipe/internal/ingest"
	"marketpipe/internal/provider"
	"marketpipe/internal/ratelimit"
	"marketpipe/internal/repo"
	"marketpipe/internal/retention"
	"marketpipe/internal/storage"
	"marketpipe/internal/validate"
)

// ProviderFactory builds a provider for one vendor, sharing the vendor's
// limiter with the coordinator.
type ProviderFactory func(cfg *config.Config, limiter *ratelimit.Limiter, log *zap.Logger) (provider.MarketDataProvider, error)

var providerFactories = map[string]ProviderFactory{}

// RegisterProvider installs a vendor factory under its name. Built-in
// vendors register from init; plugins call this from their own init.
func RegisterProvider(name string, f ProviderFactory) {
	providerFactories[name] = f
}

func init() {
	RegisterProvider("alpaca", func(cfg *config.Config, limiter *ratelimit.Limiter, log *zap.Logger) (provider.MarketDataProvider, error) {
		creds := config.VendorCredentials("alpaca")
		if creds.Key == "" || creds.Secret == "" {
			return nil, fmt.Errorf("app: alpaca credentials missing (MP_ALPACA_API_KEY / MP_ALPACA_API_SECRET)")
		}
		log.Info("alpaca provider configured",
			zap.String("key", config.MaskSecret(creds.Key)))
		return provider.NewClient(
			provider.AlpacaBaseURL,
			provider.AlpacaAdapter{},
			limiter,
			provider.NewAlpacaAuth(creds.Key, creds.Secret),
			provider.WithLogger(log),
		), nil
	})
	RegisterProvider("fake", func(_ *config.Config, limiter *ratelimit.Limiter, _ *zap.Logger) (provider.MarketDataProvider, error) {
		return &provider.FakeProvider{Limiter: limiter}, nil
	})
}

// App is one wired pipeline instance.
type App struct {
	Cfg     *config.Config
	Log     *zap.Logger
	Store   *storage.Engine
	SQL     *repo.SQLStore
	Events  *bus.Bus
	Limiter *ratelimit.Limiter

	coordinator *ingest.Coordinator
	validator   *validate.Engine
	aggregator  *aggregate.Engine
	pruner      *retention.Pruner
	metricsSink *MetricsSink
}

// New wires an App for the named vendor.
func New(cfg *config.Config, vendor string) (*App, error) {
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	factory, ok := providerFactories[vendor]
	if !ok {
		return nil, fmt.Errorf("app: unknown provider %q", vendor)
	}

	sqlStore, err := repo.OpenWithSchema(cfg.SQLDriver(), cfg.DB, log)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewEngine(cfg.DataDir, storage.WithLogger(log))
	if err != nil {
		sqlStore.Close()
		return nil, err
	}

	limiter := ratelimit.New(cfg.RateLimitCapacity, cfg.RateLimitPerSec, vendor, "ingest")
	prov, err := factory(cfg, limiter, log)
	if err != nil {
		sqlStore.Close()
		return nil, err
	}

	events := bus.New(log)
	app := &App{
		Cfg:     cfg,
		Log:     log,
		Store:   store,
		SQL:     sqlStore,
		Events:  events,
		Limiter: limiter,
	}

	app.coordinator, err = ingest.NewCoordinator(ingest.Params{
		Provider:    prov,
		Jobs:        sqlStore.Jobs(),
		Checkpoints: sqlStore.Checkpoints(),
		Store:       store,
		Events:      events,
		Limiter:     limiter,
		MaxWorkers:  cfg.MaxWorkers,
		Log:         log,
	})
	if err != nil {
		sqlStore.Close()
		return nil, err
	}

	app.validator = validate.NewEngine(store, nil, log)
	app.aggregator = aggregate.NewEngine(store, log)
	app.pruner = retention.NewPruner(store, events, log)

	if cfg.MetricsDBPath != "" {
		app.metricsSink, err = NewMetricsSink(cfg.MetricsDBPath, log)
		if err != nil {
			sqlStore.Close()
			return nil, err
		}
	}

	app.wirePipeline()
	return app, nil
}

// wirePipeline chains the downstream stages off ingestion events:
// IngestionJobCompleted runs validation, ValidationCompleted runs
// aggregation. Failures in either stage publish their failure event and
// stop the chain for that job only.
func (a *App) wirePipeline() {
	a.Events.Subscribe(domain.EventIngestionJobCompleted, func(ctx context.Context, ev domain.Event) {
		done, ok := ev.(domain.IngestionJobCompleted)
		if !ok {
			return
		}
		for _, symbol := range done.Symbols {
			a.runValidation(ctx, done.JobID, symbol)
		}
	})
	a.Events.Subscribe(domain.EventValidationCompleted, func(ctx context.Context, ev domain.Event) {
		done, ok := ev.(domain.ValidationCompleted)
		if !ok {
			return
		}
		a.runAggregation(ctx, done.JobID)
	})
}

func (a *App) runValidation(ctx context.Context, jobID string, symbol domain.Symbol) {
	date, err := jobDate(jobID)
	if err != nil {
		a.Events.Publish(ctx, domain.NewValidationFailed(jobID, err.Error()))
		return
	}
	report, err := a.validator.ValidateJob(symbol, date)
	if err != nil {
		a.Events.Publish(ctx, domain.NewValidationFailed(jobID, err.Error()))
		return
	}
	if _, err := validate.WriteCSV(a.Cfg.ReportDir, report); err != nil {
		a.Events.Publish(ctx, domain.NewValidationFailed(jobID, err.Error()))
		return
	}
	a.Events.Publish(ctx, domain.NewValidationCompleted(jobID, report.Summary()))
}

func (a *App) runAggregation(ctx context.Context, jobID string) {
	symbol, date, err := splitJobID(jobID)
	if err != nil {
		a.Events.Publish(ctx, domain.NewAggregationFailed(jobID, err.Error()))
		return
	}
	frames, err := a.aggregator.AggregateJob(symbol, date, jobID)
	if err != nil {
		a.Events.Publish(ctx, domain.NewAggregationFailed(jobID, err.Error()))
		return
	}
	a.Events.Publish(ctx, domain.NewAggregationCompleted(jobID, frames))
}

// Ingest runs one batch through the full pipeline.
func (a *App) Ingest(ctx context.Context, symbols []domain.Symbol, from, to domain.TradingDate) (*ingest.BatchResult, error) {
	return a.coordinator.ExecuteBatch(ctx, symbols, from, to)
}

// Validate re-runs validation for one (symbol, date) and publishes the
// report without touching job state.
func (a *App) Validate(ctx context.Context, symbol domain.Symbol, date domain.TradingDate) (*validate.Report, error) {
	report, err := a.validator.ValidateJob(symbol, date)
	if err != nil {
		return nil, err
	}
	if _, err := validate.WriteCSV(a.Cfg.ReportDir, report); err != nil {
		return nil, err
	}
	return report, nil
}

// Aggregate re-materializes the coarser frames for one (symbol, date).
func (a *App) Aggregate(_ context.Context, symbol domain.Symbol, date domain.TradingDate) (map[domain.Frame]int64, error) {
	return a.aggregator.AggregateJob(symbol, date, domain.JobID(symbol, date))
}

// Query reads the stored bars of one frame and symbol across a date range,
// inclusive, in timestamp order.
func (a *App) Query(_ context.Context, frame domain.Frame, symbol domain.Symbol, from, to domain.TradingDate) ([]*domain.OHLCVBar, error) {
	return a.Store.ReadRange(frame, symbol, from, to)
}

// RegisterViews re-registers the logical bar views with an external SQL
// engine. Call again after ingests to refresh the file sets.
func (a *App) RegisterViews(r storage.ViewRegistrar) error {
	return a.Store.RegisterViews(r)
}

// Prune sweeps partitions older than the configured retention horizon,
// measured back from today.
func (a *App) Prune(ctx context.Context) (*retention.Result, error) {
	now := domain.TimestampFromTime(time.Now().UTC())
	cutoff := (now - domain.Timestamp(int64(a.Cfg.RetentionDays)*domain.DayNs)).TradingDate()
	return a.pruner.PruneOlderThan(ctx, cutoff)
}

// Jobs exposes the job repository for status queries.
func (a *App) Jobs() repo.JobRepository { return a.SQL.Jobs() }

// SnapshotMetrics persists the current counter values when a metrics DB is
// configured.
func (a *App) SnapshotMetrics() error {
	if a.metricsSink == nil {
		return nil
	}
	return a.metricsSink.Snapshot()
}

// Close tears the app down in reverse wiring order.
func (a *App) Close() error {
	var firstErr error
	if a.metricsSink != nil {
		if err := a.metricsSink.Close(); err != nil {
			firstErr = err
		}
	}
	if err := a.SQL.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	_ = a.Log.Sync()
	return firstErr
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("app: log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// splitJobID recovers the (symbol, date) pair from a "{SYMBOL}_{date}" id.
func splitJobID(jobID string) (domain.Symbol, domain.TradingDate, error) {
	for i := 0; i < len(jobID); i++ {
		if jobID[i] == '_' {
			symbol, err := domain.NewSymbol(jobID[:i])
			if err != nil {
				return "", domain.TradingDate{}, err
			}
			date, err := domain.ParseTradingDate(jobID[i+1:])
			if err != nil {
				return "", domain.TradingDate{}, err
			}
			return symbol, date, nil
		}
	}
	return "", domain.TradingDate{}, fmt.Errorf("app: malformed job id %q", jobID)
}

func jobDate(jobID string) (domain.TradingDate, error) {
	_, date, err := splitJobID(jobID)
	return date, err
}
