package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/dashcsv/internal/model"
)

// FileName is the ledger database file inside the database directory.
const FileName = "dashcsv.db"

// Run kinds.
const (
	KindExport      = "export"
	KindConsolidate = "consolidate"
)

var (
	// ErrRunNotFound is returned by GetRun when no run matches.
	ErrRunNotFound = errors.New("run not found")

	// ErrAmbiguousRun is returned by GetRun when an ID prefix matches
	// several runs.
	ErrAmbiguousRun = errors.New("run id prefix matches several runs")
)

// Options configures Open.
type Options struct {
	// CreateIfNotExists creates the directory and database file.
	CreateIfNotExists bool

	// EnableWAL turns on write-ahead logging.
	EnableWAL bool
}

// DefaultOptions returns the options used by the CLI.
func DefaultOptions() Options {
	return Options{CreateIfNotExists: true, EnableWAL: true}
}

// Ledger stores run history.
type Ledger struct {
	db     *sql.DB
	dbPath string
}

// Open opens the ledger in dir.
func Open(dir string, opts Options) (*Ledger, error) {
	dbPath := filepath.Join(dir, FileName)

	mode := "rw"
	if opts.CreateIfNotExists {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		mode = "rwc"
	} else if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("database not found at %s: %w", dbPath, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?mode="+mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	l := &Ledger{db: db, dbPath: dbPath}
	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if err := l.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return l, nil
}

// Path returns the database file path.
func (l *Ledger) Path() string {
	return l.dbPath
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		target TEXT NOT NULL,
		date TEXT NOT NULL DEFAULT '',
		out_dir TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		succeeded INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		detail_json TEXT NOT NULL DEFAULT '{}'
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- One row per panel export attempt of an export run
	CREATE TABLE IF NOT EXISTS export_attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		panel_key TEXT NOT NULL,
		panel_name TEXT NOT NULL,
		path TEXT NOT NULL,
		outcome TEXT NOT NULL,
		file TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		duration_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_attempts_run ON export_attempts(run_id);

	-- One row per report group of a consolidation run
	CREATE TABLE IF NOT EXISTS consolidated_groups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		report_key TEXT NOT NULL,
		output TEXT NOT NULL DEFAULT '',
		files INTEGER NOT NULL,
		rows INTEGER NOT NULL,
		bytes INTEGER NOT NULL,
		columns_json TEXT NOT NULL DEFAULT '[]',
		errors_json TEXT NOT NULL DEFAULT '[]'
	);

	CREATE INDEX IF NOT EXISTS idx_groups_run ON consolidated_groups(run_id);
	`
	_, err := l.db.ExecContext(context.Background(), schema)
	return err
}

// RunSummary is one row of the run history.
type RunSummary struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Target     string    `json:"target"` // dashboard URL or consolidation input root
	Date       string    `json:"date,omitempty"`
	OutDir     string    `json:"out_dir"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Succeeded  int       `json:"succeeded"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error,omitempty"`
}

// Elapsed returns the run's wall time.
func (s RunSummary) Elapsed() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// RunDetail is a run with its attempts or group results.
type RunDetail struct {
	RunSummary

	// Export runs only.
	Stats         model.TraversalStats
	GuestAccess   bool
	InitialPanels int
	Attempts      []model.ExportAttempt

	// Consolidation runs only.
	FilesFound int
	Groups     []model.GroupResult
}

// ExportRun rebuilds the export run recorded in d.
func (d *RunDetail) ExportRun() *model.ExportRun {
	return &model.ExportRun{
		ID:            d.ID,
		URL:           d.Target,
		Date:          d.Date,
		OutDir:        d.OutDir,
		StartedAt:     d.StartedAt,
		FinishedAt:    d.FinishedAt,
		GuestAccess:   d.GuestAccess,
		InitialPanels: d.InitialPanels,
		Stats:         d.Stats,
		Attempts:      d.Attempts,
		Error:         d.Error,
	}
}

// ConsolidationRun rebuilds the consolidation run recorded in d.
func (d *RunDetail) ConsolidationRun() *model.ConsolidationRun {
	return &model.ConsolidationRun{
		ID:         d.ID,
		InputRoot:  d.Target,
		OutputDir:  d.OutDir,
		StartedAt:  d.StartedAt,
		FinishedAt: d.FinishedAt,
		FilesFound: d.FilesFound,
		Groups:     d.Groups,
	}
}

type exportDetail struct {
	Stats         model.TraversalStats `json:"stats"`
	GuestAccess   bool                 `json:"guest_access"`
	InitialPanels int                  `json:"initial_panels"`
}

type consolidateDetail struct {
	FilesFound int `json:"files_found"`
}

// SaveExportRun stores run and its attempts, replacing a run with the same
// ID.
func (l *Ledger) SaveExportRun(ctx context.Context, run *model.ExportRun) error {
	detail, err := json.Marshal(exportDetail{
		Stats:         run.Stats,
		GuestAccess:   run.GuestAccess,
		InitialPanels: run.InitialPanels,
	})
	if err != nil {
		return fmt.Errorf("failed to serialize run detail: %w", err)
	}

	return l.inTx(ctx, func(tx *sql.Tx) error {
		summary := RunSummary{
			ID:         run.ID,
			Kind:       KindExport,
			Target:     run.URL,
			Date:       run.Date,
			OutDir:     run.OutDir,
			StartedAt:  run.StartedAt,
			FinishedAt: run.FinishedAt,
			Succeeded:  run.Stats.Exported,
			Skipped:    run.Stats.Skipped,
			Failed:     run.Stats.Failed,
			Error:      run.Error,
		}
		if err := insertRun(ctx, tx, summary, string(detail)); err != nil {
			return err
		}
		for i, a := range run.Attempts {
			_, err := tx.ExecContext(ctx, `
			INSERT INTO export_attempts
				(run_id, seq, panel_key, panel_name, path, outcome, file, reason, started_at, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				run.ID, i, a.PanelKey, a.PanelName, a.Path.String(), a.Outcome.String(),
				a.File, a.Reason, formatTime(a.StartedAt), a.Duration.Milliseconds(),
			)
			if err != nil {
				return fmt.Errorf("failed to save attempt: %w", err)
			}
		}
		return nil
	})
}

// SaveConsolidationRun stores run and its group results, replacing a run
// with the same ID.
func (l *Ledger) SaveConsolidationRun(ctx context.Context, run *model.ConsolidationRun) error {
	detail, err := json.Marshal(consolidateDetail{FilesFound: run.FilesFound})
	if err != nil {
		return fmt.Errorf("failed to serialize run detail: %w", err)
	}

	summary := RunSummary{
		ID:         run.ID,
		Kind:       KindConsolidate,
		Target:     run.InputRoot,
		OutDir:     run.OutputDir,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
	for _, g := range run.Groups {
		switch {
		case g.Failed():
			summary.Failed++
		case g.Output == "":
			summary.Skipped++
		default:
			summary.Succeeded++
		}
	}

	return l.inTx(ctx, func(tx *sql.Tx) error {
		if err := insertRun(ctx, tx, summary, string(detail)); err != nil {
			return err
		}
		for i, g := range run.Groups {
			columns, err := json.Marshal(nonNil(g.Columns))
			if err != nil {
				return fmt.Errorf("failed to serialize columns: %w", err)
			}
			errs, err := json.Marshal(nonNil(g.Errors))
			if err != nil {
				return fmt.Errorf("failed to serialize errors: %w", err)
			}
			_, err = tx.ExecContext(ctx, `
			INSERT INTO consolidated_groups
				(run_id, seq, report_key, output, files, rows, bytes, columns_json, errors_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				run.ID, i, g.Key, g.Output, g.Files, g.Rows, g.Bytes, string(columns), string(errs),
			)
			if err != nil {
				return fmt.Errorf("failed to save group: %w", err)
			}
		}
		return nil
	})
}

func insertRun(ctx context.Context, tx *sql.Tx, s RunSummary, detail string) error {
	// Child rows of a replaced run go too.
	for _, q := range []string{
		`DELETE FROM export_attempts WHERE run_id = ?`,
		`DELETE FROM consolidated_groups WHERE run_id = ?`,
		`DELETE FROM runs WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, s.ID); err != nil {
			return fmt.Errorf("failed to replace run: %w", err)
		}
	}
	_, err := tx.ExecContext(ctx, `
	INSERT INTO runs
		(id, kind, target, date, out_dir, started_at, finished_at, succeeded, skipped, failed, error, detail_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Kind, s.Target, s.Date, s.OutDir, formatTime(s.StartedAt), formatTime(s.FinishedAt),
		s.Succeeded, s.Skipped, s.Failed, s.Error, detail,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func (l *Ledger) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

const summaryColumns = `id, kind, target, date, out_dir, started_at, finished_at, succeeded, skipped, failed, error`

// ListRuns returns the most recent runs, newest first. A limit of zero or
// less returns every run.
func (l *Ledger) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	query := `SELECT ` + summaryColumns + ` FROM runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		s, _, err := scanSummary(rows, false)
		if err != nil {
			return nil, err
		}
		runs = append(runs, s)
	}
	return runs, rows.Err()
}

// GetRun returns the run whose ID is id, or else the only run whose ID
// starts with id.
func (l *Ledger) GetRun(ctx context.Context, id string) (*RunDetail, error) {
	summary, detail, err := l.findRun(ctx, id)
	if err != nil {
		return nil, err
	}

	d := &RunDetail{RunSummary: summary}
	switch d.Kind {
	case KindExport:
		var ed exportDetail
		if err := json.Unmarshal([]byte(detail), &ed); err != nil {
			return nil, fmt.Errorf("failed to parse run detail: %w", err)
		}
		d.Stats = ed.Stats
		d.GuestAccess = ed.GuestAccess
		d.InitialPanels = ed.InitialPanels
		if d.Attempts, err = l.attempts(ctx, d.ID); err != nil {
			return nil, err
		}
	case KindConsolidate:
		var cd consolidateDetail
		if err := json.Unmarshal([]byte(detail), &cd); err != nil {
			return nil, fmt.Errorf("failed to parse run detail: %w", err)
		}
		d.FilesFound = cd.FilesFound
		if d.Groups, err = l.groups(ctx, d.ID); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (l *Ledger) findRun(ctx context.Context, id string) (RunSummary, string, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+summaryColumns+`, detail_json FROM runs WHERE id = ?`, id)
	s, detail, err := scanSummary(row, true)
	if err == nil || !errors.Is(err, sql.ErrNoRows) {
		return s, detail, err
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT `+summaryColumns+`, detail_json FROM runs WHERE id LIKE ? ESCAPE '\' LIMIT 2`,
		escapeLike(id)+"%",
	)
	if err != nil {
		return RunSummary{}, "", fmt.Errorf("failed to get run: %w", err)
	}
	defer rows.Close()

	var n int
	for rows.Next() {
		if s, detail, err = scanSummary(rows, true); err != nil {
			return RunSummary{}, "", err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return RunSummary{}, "", fmt.Errorf("failed to get run: %w", err)
	}
	switch n {
	case 0:
		return RunSummary{}, "", fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case 1:
		return s, detail, nil
	default:
		return RunSummary{}, "", fmt.Errorf("%w: %s", ErrAmbiguousRun, id)
	}
}

func (l *Ledger) attempts(ctx context.Context, runID string) ([]model.ExportAttempt, error) {
	rows, err := l.db.QueryContext(ctx, `
	SELECT panel_key, panel_name, path, outcome, file, reason, started_at, duration_ms
	FROM export_attempts WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get attempts: %w", err)
	}
	defer rows.Close()

	var attempts []model.ExportAttempt
	for rows.Next() {
		var (
			a                        model.ExportAttempt
			path, outcome, startedAt string
			durationMS               int64
		)
		if err := rows.Scan(&a.PanelKey, &a.PanelName, &path, &outcome, &a.File, &a.Reason, &startedAt, &durationMS); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		if a.Path, err = model.ParseExportPath(path); err != nil {
			return nil, err
		}
		if a.Outcome, err = model.ParseOutcome(outcome); err != nil {
			return nil, err
		}
		a.StartedAt = parseTimestamp(startedAt)
		a.Duration = time.Duration(durationMS) * time.Millisecond
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func (l *Ledger) groups(ctx context.Context, runID string) ([]model.GroupResult, error) {
	rows, err := l.db.QueryContext(ctx, `
	SELECT report_key, output, files, rows, bytes, columns_json, errors_json
	FROM consolidated_groups WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get groups: %w", err)
	}
	defer rows.Close()

	var groups []model.GroupResult
	for rows.Next() {
		var (
			g             model.GroupResult
			columns, errs string
		)
		if err := rows.Scan(&g.Key, &g.Output, &g.Files, &g.Rows, &g.Bytes, &columns, &errs); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		if err := json.Unmarshal([]byte(columns), &g.Columns); err != nil {
			return nil, fmt.Errorf("failed to parse columns: %w", err)
		}
		if err := json.Unmarshal([]byte(errs), &g.Errors); err != nil {
			return nil, fmt.Errorf("failed to parse errors: %w", err)
		}
		if len(g.Columns) == 0 {
			g.Columns = nil
		}
		if len(g.Errors) == 0 {
			g.Errors = nil
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(row scanner, withDetail bool) (RunSummary, string, error) {
	var (
		s                 RunSummary
		started, finished string
		detail            string
	)
	dest := []any{&s.ID, &s.Kind, &s.Target, &s.Date, &s.OutDir, &started, &finished,
		&s.Succeeded, &s.Skipped, &s.Failed, &s.Error}
	if withDetail {
		dest = append(dest, &detail)
	}
	if err := row.Scan(dest...); err != nil {
		return s, "", fmt.Errorf("failed to scan run: %w", err)
	}
	s.StartedAt = parseTimestamp(started)
	s.FinishedAt = parseTimestamp(finished)
	return s, detail, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// timeLayout sorts lexically in time order for times in one zone.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

var timestampFormats = []string{
	timeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

// parseTimestamp returns the zero time for empty or unparsable values.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
