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

// marketpipe is the pipeline CLI.
//
// Usage:
//
//	marketpipe ingest   -symbols AAPL,MSFT -from 2026-08-24 -to 2026-08-25 [-provider alpaca]
//	marketpipe validate -symbol AAPL -date 2026-08-24
//	marketpipe aggregate -symbol AAPL -date 2026-08-24
//	marketpipe query    -frame 5m -symbol AAPL -from 2026-08-24 [-to 2026-08-25]
//	marketpipe jobs     -state failed
//	marketpipe prune
//
// Configuration comes from the environment (MP_DB, MP_DATA_DIR, vendor
// credentials); MP_METRICS_ADDR serves /metrics while a command runs.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"marketpipe/internal/app"
	"marketpipe/internal/config"
	"marketpipe/internal/domain"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var code int
	switch os.Args[1] {
	case "ingest":
		code = cmdIngest(ctx, cfg, os.Args[2:])
	case "validate":
		code = cmdValidate(ctx, cfg, os.Args[2:])
	case "aggregate":
		code = cmdAggregate(ctx, cfg, os.Args[2:])
	case "query":
		code = cmdQuery(ctx, cfg, os.Args[2:])
	case "jobs":
		code = cmdJobs(ctx, cfg, os.Args[2:])
	case "prune":
		code = cmdPrune(ctx, cfg, os.Args[2:])
	default:
		usage()
		code = 2
	}
	os.Exit(code)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: marketpipe <ingest|validate|aggregate|query|jobs|prune> [flags]")
}

// open builds the app and, when configured, the metrics endpoint. The
// returned closer shuts both down.
func open(cfg *config.Config, vendor string) (*app.App, func(), error) {
	a, err := app.New(cfg, vendor)
	if err != nil {
		return nil, nil, err
	}
	var srv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.Log.Error("metrics endpoint failed", zap.Error(err))
			}
		}()
	}
	closer := func() {
		if err := a.SnapshotMetrics(); err != nil {
			a.Log.Warn("metrics snapshot failed", zap.Error(err))
		}
		if srv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			_ = srv.Shutdown(shutdownCtx)
			cancel()
		}
		_ = a.Close()
	}
	return a, closer, nil
}

func cmdIngest(ctx context.Context, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	symbolsFlag := fs.String("symbols", "", "comma-separated symbols, e.g. AAPL,MSFT")
	fromFlag := fs.String("from", "", "first trading date, YYYY-MM-DD")
	toFlag := fs.String("to", "", "last trading date, YYYY-MM-DD (defaults to -from)")
	providerFlag := fs.String("provider", "alpaca", "market data provider")
	timeoutFlag := fs.Duration("timeout", 0, "overall batch deadline, 0 for none")
	fs.Parse(args)

	symbols, err := parseSymbols(*symbolsFlag)
	if err != nil {
		return fail(err)
	}
	from, err := domain.ParseTradingDate(*fromFlag)
	if err != nil {
		return fail(err)
	}
	to := from
	if *toFlag != "" {
		if to, err = domain.ParseTradingDate(*toFlag); err != nil {
			return fail(err)
		}
	}

	a, closer, err := open(cfg, *providerFlag)
	if err != nil {
		return fail(err)
	}
	defer closer()

	if *timeoutFlag > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeoutFlag)
		defer cancel()
	}

	result, err := a.Ingest(ctx, symbols, from, to)
	if err != nil {
		return fail(err)
	}
	for _, id := range result.Completed {
		fmt.Printf("completed %s (%d bars)\n", id, result.BarCounts[id])
	}
	for id, reason := range result.Failed {
		fmt.Printf("failed    %s: %s\n", id, reason)
	}
	if len(result.Failed) > 0 {
		return 1
	}
	return 0
}

func cmdValidate(ctx context.Context, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	symbolFlag := fs.String("symbol", "", "symbol")
	dateFlag := fs.String("date", "", "trading date, YYYY-MM-DD")
	fs.Parse(args)

	symbol, date, code := parsePair(*symbolFlag, *dateFlag)
	if code != 0 {
		return code
	}
	a, closer, err := open(cfg, "fake")
	if err != nil {
		return fail(err)
	}
	defer closer()

	report, err := a.Validate(ctx, symbol, date)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("%s: %d rows, %d passed, %d failed\n",
		report.JobID, report.Total, report.Passed, report.Failed())
	for rule, n := range report.FailedByRule() {
		fmt.Printf("  %s: %d\n", rule, n)
	}
	return 0
}

func cmdAggregate(ctx context.Context, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("aggregate", flag.ExitOnError)
	symbolFlag := fs.String("symbol", "", "symbol")
	dateFlag := fs.String("date", "", "trading date, YYYY-MM-DD")
	fs.Parse(args)

	symbol, date, code := parsePair(*symbolFlag, *dateFlag)
	if code != 0 {
		return code
	}
	a, closer, err := open(cfg, "fake")
	if err != nil {
		return fail(err)
	}
	defer closer()

	frames, err := a.Aggregate(ctx, symbol, date)
	if err != nil {
		return fail(err)
	}
	for _, frame := range domain.AggregationFrames {
		fmt.Printf("%s: %d rows\n", frame, frames[frame])
	}
	return 0
}

func cmdQuery(ctx context.Context, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	frameFlag := fs.String("frame", "1m", "frame: 1m, 5m, 15m, 1h, 1d")
	symbolFlag := fs.String("symbol", "", "symbol")
	fromFlag := fs.String("from", "", "first trading date, YYYY-MM-DD")
	toFlag := fs.String("to", "", "last trading date, YYYY-MM-DD (defaults to -from)")
	fs.Parse(args)

	frame, err := domain.ParseFrame(*frameFlag)
	if err != nil {
		return fail(err)
	}
	symbol, from, code := parsePair(*symbolFlag, *fromFlag)
	if code != 0 {
		return code
	}
	to := from
	if *toFlag != "" {
		if to, err = domain.ParseTradingDate(*toFlag); err != nil {
			return fail(err)
		}
	}
	a, closer, err := open(cfg, "fake")
	if err != nil {
		return fail(err)
	}
	defer closer()

	bars, err := a.Query(ctx, frame, symbol, from, to)
	if err != nil {
		return fail(err)
	}
	for _, b := range bars {
		fmt.Printf("%s %s o=%s h=%s l=%s c=%s v=%d\n",
			b.Timestamp.Time().Format(time.RFC3339), b.Symbol,
			b.Open, b.High, b.Low, b.Close, b.Volume.Int64())
	}
	fmt.Printf("%d bars\n", len(bars))
	return 0
}

func cmdJobs(ctx context.Context, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("jobs", flag.ExitOnError)
	stateFlag := fs.String("state", "failed", "job state to list")
	fs.Parse(args)

	state, err := domain.ParseJobState(*stateFlag)
	if err != nil {
		return fail(err)
	}
	a, closer, err := open(cfg, "fake")
	if err != nil {
		return fail(err)
	}
	defer closer()

	jobs, err := a.Jobs().ListByState(ctx, state)
	if err != nil {
		return fail(err)
	}
	for _, j := range jobs {
		line := fmt.Sprintf("%s v%d bars=%d", j.ID, j.Version, j.BarCount)
		if j.Error != "" {
			line += " error=" + j.Error
		}
		fmt.Println(line)
	}
	return 0
}

func cmdPrune(ctx context.Context, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("prune", flag.ExitOnError)
	fs.Parse(args)

	a, closer, err := open(cfg, "fake")
	if err != nil {
		return fail(err)
	}
	defer closer()

	result, err := a.Prune(ctx)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("pruned %d partitions (%d rows) older than %s\n",
		result.Partitions, result.Rows, result.Cutoff)
	return 0
}

func parseSymbols(s string) ([]domain.Symbol, error) {
	if s == "" {
		return nil, fmt.Errorf("-symbols is required")
	}
	var symbols []domain.Symbol
	for _, part := range strings.Split(s, ",") {
		symbol, err := domain.NewSymbol(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		symbols = append(symbols, symbol)
	}
	return symbols, nil
}

func parsePair(symbolFlag, dateFlag string) (domain.Symbol, domain.TradingDate, int) {
	symbol, err := domain.NewSymbol(symbolFlag)
	if err != nil {
		return "", domain.TradingDate{}, fail(err)
	}
	date, err := domain.ParseTradingDate(dateFlag)
	if err != nil {
		return "", domain.TradingDate{}, fail(err)
	}
	return symbol, date, 0
}

func fail(err error) int {
	fmt.Fprintln(os.Stderr, err)
	return 1
}
