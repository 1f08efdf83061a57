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

package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // postgres driver, client-server backing
	_ "github.com/mattn/go-sqlite3" // sqlite driver, file-embedded backing
	"go.uber.org/zap"

	"marketpipe/internal/domain"
)

// SchemaVersion is the schema generation this code understands. Open
// refuses to operate against any other version; bringing the backing to the
// current version is the external migrator's job.
const SchemaVersion = 1

// Schema is the reference DDL for the current version. It is portable
// across SQLite and Postgres and doubles as the migrator's v1 step.
const Schema = `
CREATE TABLE IF NOT EXISTS schema_info (
  version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS ingestion_jobs (
  id             TEXT PRIMARY KEY,
  symbol         TEXT NOT NULL,
  trading_date   TEXT NOT NULL,
  range_start_ns BIGINT NOT NULL,
  range_end_ns   BIGINT NOT NULL,
  state          TEXT NOT NULL,
  version        BIGINT NOT NULL,
  bar_count      BIGINT NOT NULL DEFAULT 0,
  error          TEXT NOT NULL DEFAULT '',
  started_at_ns   BIGINT,
  completed_at_ns BIGINT
);
CREATE INDEX IF NOT EXISTS idx_jobs_state  ON ingestion_jobs(state);
CREATE INDEX IF NOT EXISTS idx_jobs_date   ON ingestion_jobs(trading_date);
CREATE INDEX IF NOT EXISTS idx_jobs_symbol ON ingestion_jobs(symbol);

CREATE TABLE IF NOT EXISTS checkpoints (
  symbol     TEXT PRIMARY KEY,
  cursor_ns  BIGINT NOT NULL,
  updated_ns BIGINT NOT NULL
);
`

// SQLStore is the sqlx-backed store shared by the job repository and the
// checkpoint store. driver "sqlite3" gives the local file-embedded backing
// (MP_DB path); driver "postgres" gives the client-server backing.
type SQLStore struct {
	db  *sqlx.DB
	log *zap.Logger
}

// Open connects and asserts the schema version.
func Open(driver, dsn string, log *zap.Logger) (*SQLStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, &RepositoryError{Op: "open " + driver, Err: err}
	}
	s := &SQLStore{db: db, log: log}
	if err := s.assertSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema applies the reference DDL and stamps the version row. It
// stands in for the external migrator in tests and first-run bootstraps.
func EnsureSchema(driver, dsn string) error {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return &RepositoryError{Op: "ensure schema", Err: err}
	}
	defer db.Close()
	return ensureSchemaOn(db)
}

func ensureSchemaOn(db *sqlx.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return &RepositoryError{Op: "apply schema", Err: err}
	}
	var n int
	if err := db.Get(&n, "SELECT COUNT(*) FROM schema_info"); err != nil {
		return &RepositoryError{Op: "read schema_info", Err: err}
	}
	if n == 0 {
		if _, err := db.Exec(db.Rebind("INSERT INTO schema_info(version) VALUES (?)"), SchemaVersion); err != nil {
			return &RepositoryError{Op: "stamp schema_info", Err: err}
		}
	}
	return nil
}

// OpenWithSchema is Open preceded by EnsureSchema on the same connection,
// for embedded SQLite files (including :memory:, where a second connection
// would see a different database).
func OpenWithSchema(driver, dsn string, log *zap.Logger) (*SQLStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, &RepositoryError{Op: "open " + driver, Err: err}
	}
	if err := ensureSchemaOn(db); err != nil {
		db.Close()
		return nil, err
	}
	s := &SQLStore{db: db, log: log}
	if err := s.assertSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) assertSchema() error {
	var v int
	err := s.db.Get(&v, "SELECT version FROM schema_info LIMIT 1")
	if err != nil {
		return &RepositoryError{Op: "assert schema", Err: fmt.Errorf("schema_info unreadable (run migrations first): %w", err)}
	}
	if v != SchemaVersion {
		return &RepositoryError{Op: "assert schema", Err: fmt.Errorf("schema version %d, want %d", v, SchemaVersion)}
	}
	return nil
}

// Close releases the underlying pool.
func (s *SQLStore) Close() error { return s.db.Close() }

// Jobs returns the job repository view of the store.
func (s *SQLStore) Jobs() JobRepository { return &sqlJobs{s} }

// Checkpoints returns the checkpoint store view of the store.
func (s *SQLStore) Checkpoints() CheckpointStore { return &sqlCheckpoints{s} }

type jobRow struct {
	ID            string `db:"id"`
	Symbol        string `db:"symbol"`
	TradingDate   string `db:"trading_date"`
	RangeStartNs  int64  `db:"range_start_ns"`
	RangeEndNs    int64  `db:"range_end_ns"`
	State         string `db:"state"`
	Version       int64  `db:"version"`
	BarCount      int64  `db:"bar_count"`
	Error         string `db:"error"`
	StartedAtNs   *int64 `db:"started_at_ns"`
	CompletedAtNs *int64 `db:"completed_at_ns"`
}

func toRow(j *domain.IngestionJob) jobRow {
	r := jobRow{
		ID:           j.ID,
		Symbol:       j.Symbol.String(),
		TradingDate:  j.TradingDate.String(),
		RangeStartNs: j.Range.Start.Ns(),
		RangeEndNs:   j.Range.End.Ns(),
		State:        string(j.State),
		Version:      j.Version,
		BarCount:     j.BarCount,
		Error:        j.Error,
	}
	if j.StartedAt != nil {
		ns := j.StartedAt.UnixNano()
		r.StartedAtNs = &ns
	}
	if j.CompletedAt != nil {
		ns := j.CompletedAt.UnixNano()
		r.CompletedAtNs = &ns
	}
	return r
}

func fromRow(r jobRow) (*domain.IngestionJob, error) {
	symbol, err := domain.NewSymbol(r.Symbol)
	if err != nil {
		return nil, err
	}
	date, err := domain.ParseTradingDate(r.TradingDate)
	if err != nil {
		return nil, err
	}
	state, err := domain.ParseJobState(r.State)
	if err != nil {
		return nil, err
	}
	tr, err := domain.NewTimeRangeWithLimit(domain.Timestamp(r.RangeStartNs), domain.Timestamp(r.RangeEndNs), 0)
	if err != nil {
		return nil, err
	}
	j := &domain.IngestionJob{
		ID:          r.ID,
		Symbol:      symbol,
		TradingDate: date,
		Range:       tr,
		State:       state,
		Version:     r.Version,
		BarCount:    r.BarCount,
		Error:       r.Error,
	}
	if r.StartedAtNs != nil {
		t := time.Unix(0, *r.StartedAtNs).UTC()
		j.StartedAt = &t
	}
	if r.CompletedAtNs != nil {
		t := time.Unix(0, *r.CompletedAtNs).UTC()
		j.CompletedAt = &t
	}
	return j, nil
}

type sqlJobs struct{ s *SQLStore }

const jobColumns = `id, symbol, trading_date, range_start_ns, range_end_ns, state, version, bar_count, error, started_at_ns, completed_at_ns`

func (r *sqlJobs) Create(ctx context.Context, job *domain.IngestionJob) error {
	row := toRow(job)
	row.Version = 1
	q := r.s.db.Rebind(`INSERT INTO ingestion_jobs (` + jobColumns + `)
		VALUES (:id, :symbol, :trading_date, :range_start_ns, :range_end_ns, :state, :version, :bar_count, :error, :started_at_ns, :completed_at_ns)`)
	if _, err := r.s.db.NamedExecContext(ctx, q, row); err != nil {
		// Driver-neutral duplicate detection: if the id is present, the
		// insert lost to an existing row.
		if _, gerr := r.Get(ctx, job.ID); gerr == nil {
			return ErrDuplicateKey
		}
		return &RepositoryError{Op: "create job " + job.ID, Err: err}
	}
	job.Version = 1
	return nil
}

func (r *sqlJobs) Get(ctx context.Context, id string) (*domain.IngestionJob, error) {
	var row jobRow
	q := r.s.db.Rebind(`SELECT ` + jobColumns + ` FROM ingestion_jobs WHERE id = ?`)
	if err := r.s.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, &RepositoryError{Op: "get job " + id, Err: err}
	}
	return fromRow(row)
}

func (r *sqlJobs) Save(ctx context.Context, job *domain.IngestionJob, expectedVersion int64) (int64, error) {
	row := toRow(job)
	newVersion := expectedVersion + 1
	q := r.s.db.Rebind(`UPDATE ingestion_jobs
		SET state = ?, version = ?, bar_count = ?, error = ?, started_at_ns = ?, completed_at_ns = ?
		WHERE id = ? AND version = ?`)
	res, err := r.s.db.ExecContext(ctx, q,
		row.State, newVersion, row.BarCount, row.Error, row.StartedAtNs, row.CompletedAtNs,
		row.ID, expectedVersion)
	if err != nil {
		return 0, &RepositoryError{Op: "save job " + job.ID, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &RepositoryError{Op: "save job " + job.ID, Err: err}
	}
	if n == 0 {
		if _, gerr := r.Get(ctx, job.ID); errors.Is(gerr, ErrNotFound) {
			return 0, ErrNotFound
		}
		return 0, &ConcurrencyError{ID: job.ID, Expected: expectedVersion}
	}
	job.Version = newVersion
	return newVersion, nil
}

func (r *sqlJobs) list(ctx context.Context, where string, arg interface{}) ([]*domain.IngestionJob, error) {
	var rows []jobRow
	q := r.s.db.Rebind(`SELECT ` + jobColumns + ` FROM ingestion_jobs WHERE ` + where + ` ORDER BY id`)
	if err := r.s.db.SelectContext(ctx, &rows, q, arg); err != nil {
		return nil, &RepositoryError{Op: "list jobs", Err: err}
	}
	jobs := make([]*domain.IngestionJob, 0, len(rows))
	for _, row := range rows {
		j, err := fromRow(row)
		if err != nil {
			return nil, &RepositoryError{Op: "decode job " + row.ID, Err: err}
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func (r *sqlJobs) ListByState(ctx context.Context, state domain.JobState) ([]*domain.IngestionJob, error) {
	return r.list(ctx, "state = ?", string(state))
}

func (r *sqlJobs) ListByDate(ctx context.Context, date domain.TradingDate) ([]*domain.IngestionJob, error) {
	return r.list(ctx, "trading_date = ?", date.String())
}

func (r *sqlJobs) ListBySymbol(ctx context.Context, symbol domain.Symbol) ([]*domain.IngestionJob, error) {
	return r.list(ctx, "symbol = ?", symbol.String())
}

type sqlCheckpoints struct{ s *SQLStore }

func (c *sqlCheckpoints) Get(ctx context.Context, symbol domain.Symbol) (int64, bool, error) {
	var cursor int64
	q := c.s.db.Rebind(`SELECT cursor_ns FROM checkpoints WHERE symbol = ?`)
	err := c.s.db.GetContext(ctx, &cursor, q, symbol.String())
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, &RepositoryError{Op: "get checkpoint " + symbol.String(), Err: err}
	}
	return cursor, true, nil
}

func (c *sqlCheckpoints) Set(ctx context.Context, symbol domain.Symbol, cursorNs int64) error {
	q := c.s.db.Rebind(`INSERT INTO checkpoints (symbol, cursor_ns, updated_ns) VALUES (?, ?, ?)
		ON CONFLICT (symbol) DO UPDATE SET cursor_ns = excluded.cursor_ns, updated_ns = excluded.updated_ns`)
	if _, err := c.s.db.ExecContext(ctx, q, symbol.String(), cursorNs, time.Now().UnixNano()); err != nil {
		return &RepositoryError{Op: "set checkpoint " + symbol.String(), Err: err}
	}
	return nil
}

func (c *sqlCheckpoints) Clear(ctx context.Context, symbol domain.Symbol) error {
	q := c.s.db.Rebind(`DELETE FROM checkpoints WHERE symbol = ?`)
	if _, err := c.s.db.ExecContext(ctx, q, symbol.String()); err != nil {
		return &RepositoryError{Op: "clear checkpoint " + symbol.String(), Err: err}
	}
	return nil
}
