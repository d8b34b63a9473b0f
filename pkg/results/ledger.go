package results

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one iteration outcome as stored in the ledger.
type Entry struct {
	RunID           string
	Application     string
	Condition       string
	Stage           string
	Status          string
	Error           string
	LoginSuccessful bool
	MetricsPath     string
	AuditPath       string
	AuditError      string
	StartedAt       time.Time
	Duration        time.Duration
}

// Ledger is a SQLite record of every iteration of every run, so a missing
// artifact can be traced back to the stage that failed.
type Ledger struct {
	db *sql.DB
}

// OpenLedger opens or creates the ledger database at path.
func OpenLedger(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	l := &Ledger{db: db}
	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}
	return l, nil
}

func (l *Ledger) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS outcomes (
			run_id TEXT NOT NULL,
			application TEXT NOT NULL,
			condition TEXT NOT NULL,
			stage TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT,
			login_successful INTEGER NOT NULL,
			metrics_path TEXT,
			audit_path TEXT,
			audit_error TEXT,
			started_at INTEGER NOT NULL,
			duration_ns INTEGER NOT NULL,
			PRIMARY KEY (run_id, application, condition)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_started ON outcomes(started_at)`,
	}
	for _, stmt := range statements {
		if _, err := l.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Record stores e, replacing an earlier entry for the same run, application
// and condition.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	login := 0
	if e.LoginSuccessful {
		login = 1
	}

	_, err := l.db.ExecContext(ctx, `INSERT OR REPLACE INTO outcomes (
		run_id, application, condition, stage, status, error, login_successful,
		metrics_path, audit_path, audit_error, started_at, duration_ns
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Application, e.Condition, e.Stage, e.Status, nullString(e.Error), login,
		nullString(e.MetricsPath), nullString(e.AuditPath), nullString(e.AuditError),
		e.StartedAt.UnixNano(), int64(e.Duration))
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	return nil
}

// Entries returns the outcomes of runID in start order.
func (l *Ledger) Entries(ctx context.Context, runID string) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT
		run_id, application, condition, stage, status, error, login_successful,
		metrics_path, audit_path, audit_error, started_at, duration_ns
		FROM outcomes WHERE run_id = ? ORDER BY started_at, application, condition`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                                       Entry
			errMsg, metricsPath, auditPath, auditEr sql.NullString
			login                                   int
			startedAt, duration                     int64
		)
		if err := rows.Scan(&e.RunID, &e.Application, &e.Condition, &e.Stage, &e.Status, &errMsg, &login,
			&metricsPath, &auditPath, &auditEr, &startedAt, &duration); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		e.Error = errMsg.String
		e.LoginSuccessful = login == 1
		e.MetricsPath = metricsPath.String
		e.AuditPath = auditPath.String
		e.AuditError = auditEr.String
		e.StartedAt = time.Unix(0, startedAt)
		e.Duration = time.Duration(duration)
		out = append(out, e)
	}
	return out, rows.Err()
}

// LatestRun returns the id of the most recently started run, or "" when
// the ledger is empty.
func (l *Ledger) LatestRun(ctx context.Context) (string, error) {
	var id string
	err := l.db.QueryRowContext(ctx,
		`SELECT run_id FROM outcomes ORDER BY started_at DESC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query latest run: %w", err)
	}
	return id, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
