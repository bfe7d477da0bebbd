// Package ledger keeps a PostgreSQL record of pipeline runs.
package ledger

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/nci/senet/metrics"
	"github.com/nci/senet/utils"
	"github.com/rs/zerolog"
	"golang.org/x/net/context"
)

var tableNameRE = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

const writeTimeout = 5 * time.Second

// RunRecord is one row of the ledger. Document holds the full run record
// as JSON.
type RunRecord struct {
	RunID        string    `db:"run_id"`
	StartedAt    time.Time `db:"started_at"`
	Acquisition  string    `db:"acquisition"`
	Status       string    `db:"status"`
	DurationMS   int64     `db:"duration_ms"`
	Processed    int       `db:"processed_pixels"`
	NotProcessed int       `db:"not_processed_pixels"`
	Document     string    `db:"document"`
}

// Store writes run records to a PostgreSQL table.
type Store struct {
	db    *sqlx.DB
	table string
	log   zerolog.Logger
}

// Open connects to the database named by cfg.DSN and checks it answers.
func Open(cfg utils.LedgerConfig, log zerolog.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("ledger dsn is empty: %w", utils.ErrConfig)
	}
	if !tableNameRE.MatchString(cfg.Table) {
		return nil, fmt.Errorf("ledger table %q is not a plain identifier: %w", cfg.Table, utils.ErrConfig)
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	if cfg.PoolSize > 0 {
		db.SetMaxOpenConns(cfg.PoolSize)
		db.SetMaxIdleConns(cfg.PoolSize)
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping ledger database: %w", err)
	}

	return &Store{db: db, table: cfg.Table, log: log.With().Str("component", "ledger").Logger()}, nil
}

// EnsureSchema creates the ledger table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`create table if not exists %s (
		run_id text primary key,
		started_at timestamptz not null,
		acquisition text not null,
		status text not null,
		duration_ms bigint not null,
		processed_pixels integer not null,
		not_processed_pixels integer not null,
		document jsonb not null
	)`, s.table))
	return err
}

// NewRecord flattens a run record into a ledger row.
func NewRecord(info *metrics.RunInfo) (*RunRecord, error) {
	if info.RunID == "" {
		return nil, errors.New("run record has no run id")
	}
	doc, err := info.ToJSON()
	if err != nil {
		return nil, err
	}
	started, err := time.Parse(time.RFC3339, info.StartTime)
	if err != nil {
		return nil, fmt.Errorf("run %s start time: %v", info.RunID, err)
	}
	return &RunRecord{
		RunID:        info.RunID,
		StartedAt:    started,
		Acquisition:  info.Acquisition,
		Status:       info.Status,
		DurationMS:   info.Duration.Milliseconds(),
		Processed:    info.Processed,
		NotProcessed: info.NotProcessed,
		Document:     strings.TrimSpace(doc),
	}, nil
}

// RecordRun inserts or replaces the row of a run.
func (s *Store) RecordRun(ctx context.Context, info *metrics.RunInfo) error {
	rec, err := NewRecord(info)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx, fmt.Sprintf(`insert into %s
		(run_id, started_at, acquisition, status, duration_ms, processed_pixels, not_processed_pixels, document)
		values (:run_id, :started_at, :acquisition, :status, :duration_ms, :processed_pixels, :not_processed_pixels, :document)
		on conflict (run_id) do update set
			status = excluded.status,
			duration_ms = excluded.duration_ms,
			processed_pixels = excluded.processed_pixels,
			not_processed_pixels = excluded.not_processed_pixels,
			document = excluded.document`, s.table), rec)
	return err
}

// Log implements metrics.Logger.
func (s *Store) Log(info *metrics.RunInfo) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := s.RecordRun(ctx, info); err != nil {
		s.log.Error().Err(err).Str("run_id", info.RunID).Msg("failed to record run")
	}
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	var runs []RunRecord
	err := s.db.SelectContext(ctx, &runs, fmt.Sprintf(`select run_id, started_at, acquisition, status, duration_ms,
		processed_pixels, not_processed_pixels, document::text as document
		from %s order by started_at desc limit $1`, s.table), limit)
	return runs, err
}

func (s *Store) Close() error {
	return s.db.Close()
}
