// Package journal provides durable storage for recorded scenario
// runs.
//
// A run stores the scenario YAML alongside its canonical trace, so a
// stored run is self-contained: the replay check re-executes the
// embedded scenario and compares the fresh trace against the stored
// one, row by row. Uses SQLite with WAL mode for concurrent read
// access.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/lockstep/internal/trace"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Pre-versioning
// 1 - Initial schema (runs + events)
const currentSchemaVersion = 1

// Journal provides durable storage for recorded runs.
type Journal struct {
	db *sql.DB
}

// Run is one recorded scenario execution.
type Run struct {
	// ID is the run token, normally a UUIDv7 so runs sort by
	// creation time.
	ID string `json:"id"`

	// ScenarioName is the scenario's declared name.
	ScenarioName string `json:"scenario_name"`

	// ScenarioYAML is the full scenario file, stored verbatim so the
	// run can be replayed later.
	ScenarioYAML string `json:"-"`

	// Pass records whether the run passed.
	Pass bool `json:"pass"`

	// CreatedAt is the wall-clock recording time, RFC 3339 UTC.
	// Metadata only; it takes no part in replay comparison.
	CreatedAt string `json:"created_at"`
}

// StoredEvent is one trace event row. Detail is canonical JSON text;
// comparisons happen on the text form so no JSON decoding ambiguity
// can creep in.
type StoredEvent struct {
	Seq    int64  `json:"seq"`
	Kind   string `json:"kind"`
	Target string `json:"target,omitempty"`
	Detail string `json:"detail"`
}

// Open creates or opens a journal database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and stamps the
// schema version. Idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// EncodeDetail renders an event's detail map as canonical JSON text.
// An empty detail encodes as "{}" so stored rows never carry NULL.
func EncodeDetail(ev trace.Event) (string, error) {
	if len(ev.Detail) == 0 {
		return "{}", nil
	}
	b, err := trace.MarshalCanonical(ev.Detail)
	if err != nil {
		return "", fmt.Errorf("event seq %d: %w", ev.Seq, err)
	}
	return string(b), nil
}

// WriteRun records a run and its full trace in one transaction.
func (j *Journal) WriteRun(ctx context.Context, run Run, events []trace.Event) error {
	if run.ID == "" {
		return fmt.Errorf("run ID is required")
	}
	if run.CreatedAt == "" {
		run.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, scenario_name, scenario_yaml, pass, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.ScenarioName, run.ScenarioYAML, boolToInt(run.Pass), run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (run_id, seq, kind, target, detail)
		 VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare event insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		detail, err := EncodeDetail(ev)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, run.ID, ev.Seq, ev.Kind, ev.Target, detail); err != nil {
			return fmt.Errorf("insert event seq %d: %w", ev.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ReadRun fetches a run's metadata and scenario YAML.
func (j *Journal) ReadRun(ctx context.Context, id string) (Run, error) {
	var run Run
	var pass int
	err := j.db.QueryRowContext(ctx,
		`SELECT id, scenario_name, scenario_yaml, pass, created_at
		 FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.ScenarioName, &run.ScenarioYAML, &pass, &run.CreatedAt)
	if err == sql.ErrNoRows {
		return Run{}, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", id, err)
	}
	run.Pass = pass != 0
	return run, nil
}

// ReadRunEvents fetches a run's stored trace in sequence order.
func (j *Journal) ReadRunEvents(ctx context.Context, id string) ([]StoredEvent, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT seq, kind, target, detail
		 FROM events WHERE run_id = ? ORDER BY seq`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("read events for run %s: %w", id, err)
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var ev StoredEvent
		if err := rows.Scan(&ev.Seq, &ev.Kind, &ev.Target, &ev.Detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// ListRuns returns all recorded runs, newest first by ID. With UUIDv7
// run tokens the ID order is also creation order.
func (j *Journal) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, scenario_name, pass, created_at
		 FROM runs ORDER BY id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var pass int
		if err := rows.Scan(&run.ID, &run.ScenarioName, &pass, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Pass = pass != 0
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
