// Package postgres runs the processing scripts against the FWA database.
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/bcfishobs/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store executes SQL against a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open connects to dbURL and verifies the connection with a ping.
func Open(ctx context.Context, dbURL string, logger *slog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	// Scripts hold several statements, which only the simple protocol accepts.
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	// Runs are sequential; one connection keeps session state (temp tables,
	// SET commands in scripts) visible to every step.
	cfg.MaxConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("connected to database",
		"host", cfg.ConnConfig.Host,
		"database", cfg.ConnConfig.Database,
	)
	return &Store{pool: pool, logger: logger}, nil
}

// Exec runs a script. args bind to $1..$n placeholders.
func (s *Store) Exec(ctx context.Context, sql string, args ...any) error {
	if _, err := s.pool.Exec(ctx, sql, args...); err != nil {
		return err
	}
	return nil
}

// SpeciesCodes runs query and returns the first column of every row.
func (s *Store) SpeciesCodes(ctx context.Context, query string) ([]string, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query species codes: %w", err)
	}
	codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan species codes: %w", err)
	}
	return codes, nil
}

// MatchReport runs the QA report query, which must return
// match_type, n_distinct_events, n_observations.
func (s *Store) MatchReport(ctx context.Context, query string) ([]domain.MatchReportRow, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query match report: %w", err)
	}
	report, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.MatchReportRow, error) {
		var r domain.MatchReportRow
		err := row.Scan(&r.MatchType, &r.DistinctEvents, &r.Observations)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan match report: %w", err)
	}
	return report, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}
