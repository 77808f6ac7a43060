package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresConfig holds database configuration. DSN wins when set.
type PostgresConfig struct {
	DSN      string
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
}

func (c PostgresConfig) dataSource() string {
	if c.DSN != "" {
		return c.DSN
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.Port == 0 {
		c.Port = 5432
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// Postgres stores records in PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a connection pool. Call CreateTables before first use.
func NewPostgres(cfg PostgresConfig) (*Postgres, error) {
	db, err := sql.Open("postgres", cfg.dataSource())
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Postgres{db: db}, nil
}

// Ping verifies the database connection.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// CreateTables creates the schema if it does not exist.
func (p *Postgres) CreateTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS load_runs (
			id VARCHAR(64) PRIMARY KEY,
			scenario VARCHAR(255) NOT NULL,
			target TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL,
			iterations BIGINT NOT NULL,
			passed BOOLEAN NOT NULL,
			summary JSONB
		)`,
		`CREATE TABLE IF NOT EXISTS availability_checks (
			id VARCHAR(64) PRIMARY KEY,
			checked_at TIMESTAMPTZ NOT NULL,
			test_name VARCHAR(255) NOT NULL,
			status VARCHAR(32) NOT NULL,
			duration_seconds DOUBLE PRECISION NOT NULL,
			error TEXT,
			steps TEXT[]
		)`,
		`CREATE INDEX IF NOT EXISTS idx_availability_checks_checked_at
			ON availability_checks (checked_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_load_runs_finished_at
			ON load_runs (finished_at DESC)`,
	}

	for _, query := range queries {
		if _, err := p.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("store: create table: %w", err)
		}
	}
	return nil
}

func (p *Postgres) SaveRun(ctx context.Context, run RunRecord) error {
	var summary interface{}
	if len(run.Summary) > 0 {
		summary = []byte(run.Summary)
	}
	query := `INSERT INTO load_runs
		(id, scenario, target, started_at, finished_at, iterations, passed, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := p.db.ExecContext(ctx, query, run.ID, run.Scenario, run.Target,
		run.StartedAt, run.FinishedAt, run.Iterations, run.Passed, summary)
	if err != nil {
		return fmt.Errorf("store: insert run: %w", err)
	}
	return nil
}

func (p *Postgres) SaveCheck(ctx context.Context, check CheckRecord) error {
	query := `INSERT INTO availability_checks
		(id, checked_at, test_name, status, duration_seconds, error, steps)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := p.db.ExecContext(ctx, query, check.ID, check.Timestamp, check.TestName,
		check.Status, check.Duration, sql.NullString{String: check.Error, Valid: check.Error != ""},
		pq.Array(check.Steps))
	if err != nil {
		return fmt.Errorf("store: insert check: %w", err)
	}
	return nil
}

func (p *Postgres) RecentChecks(ctx context.Context, n int) ([]CheckRecord, error) {
	query := `SELECT id, checked_at, test_name, status, duration_seconds, error, steps
		FROM availability_checks
		ORDER BY checked_at DESC
		LIMIT $1`
	rows, err := p.db.QueryContext(ctx, query, limit(n))
	if err != nil {
		return nil, fmt.Errorf("store: query checks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []CheckRecord
	for rows.Next() {
		var (
			c      CheckRecord
			errMsg sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Timestamp, &c.TestName, &c.Status, &c.Duration,
			&errMsg, pq.Array(&c.Steps)); err != nil {
			return nil, fmt.Errorf("store: scan check: %w", err)
		}
		c.Error = errMsg.String
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) RecentRuns(ctx context.Context, n int) ([]RunRecord, error) {
	query := `SELECT id, scenario, target, started_at, finished_at, iterations, passed, summary
		FROM load_runs
		ORDER BY finished_at DESC
		LIMIT $1`
	rows, err := p.db.QueryContext(ctx, query, limit(n))
	if err != nil {
		return nil, fmt.Errorf("store: query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RunRecord
	for rows.Next() {
		var (
			r       RunRecord
			summary []byte
		)
		if err := rows.Scan(&r.ID, &r.Scenario, &r.Target, &r.StartedAt, &r.FinishedAt,
			&r.Iterations, &r.Passed, &summary); err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		r.Summary = summary
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// limit maps n <= 0 to a large page.
func limit(n int) int {
	if n <= 0 {
		return 1000
	}
	return n
}
