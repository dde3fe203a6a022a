// Package restore drives the Restore Orchestrator: it splits a backup
// script into statements, applies per-dialect session pragmas, and
// executes them against a target connection under an error policy.
package restore

import (
	"context"
	"io"
	"strings"
	"time"

	"dbbackup/internal/conn"
	"dbbackup/internal/dbbackuperr"
	"dbbackup/internal/dialect"
	"dbbackup/internal/schema"
	"dbbackup/internal/splitter"
)

// ProgressFunc is invoked synchronously at statement and phase milestones,
// mirroring backup.ProgressFunc's contract.
type ProgressFunc func(Progress)

// Progress is one progress-callback invocation.
type Progress struct {
	Percent           int
	Operation         string
	StatementsDone    int
	StatementsTotal   int
}

// Options is the explicit restore option record the restore job reads.
type Options struct {
	ExecuteInTransaction   bool
	ContinueOnError        bool
	DisableConstraints     bool
	ResetSequences         bool
	ValidateBeforeRestore  bool
	ChunkSizeHint          int
	ProgressCallback       ProgressFunc
}

// DefaultOptions returns the conservative defaults for restoring an
// untrusted dump: continue past statement errors rather than aborting the
// whole job.
func DefaultOptions() Options {
	return Options{
		ExecuteInTransaction:  true,
		ContinueOnError:       true,
		DisableConstraints:    true,
		ResetSequences:        true,
		ValidateBeforeRestore: true,
		ChunkSizeHint:         1000,
	}
}

// StatementFailure records one failed statement: its 0-based index, its
// truncated text, and the underlying error.
type StatementFailure struct {
	Index     int
	Statement string
	Err       error
}

// Result is the execution summary a restore job reports.
type Result struct {
	Success            bool
	Error              string
	DurationSeconds    float64
	StatementsExecuted int
	StatementsFailed   int
	Errors             []string

	// Warnings lists destructive statements (DROP TABLE/DATABASE,
	// TRUNCATE, bare DELETE) the script was about to execute, detected
	// before the run for MySQL-family dialects. They never block the
	// restore; ContinueOnError and the transaction policy already govern
	// what happens once execution starts.
	Warnings []string
}

// Orchestrator executes a backup script against a target connection.
type Orchestrator struct {
	conn     conn.Conn
	platform dialect.Platform
	options  Options
}

// New constructs an Orchestrator for the given target connection.
func New(c conn.Conn, platform dialect.Platform, options Options) *Orchestrator {
	return &Orchestrator{conn: c, platform: platform, options: options}
}

// Run reads the full script from r, validates it if requested, applies
// session pragmas, and executes every statement per the continue_on_error
// policy. When ExecuteInTransaction is set, the script's own BEGIN, START
// TRANSACTION and COMMIT statements are skipped, since the restore
// transaction already wraps the whole script.
func (o *Orchestrator) Run(ctx context.Context, r io.Reader) (*Result, error) {
	start := time.Now()
	res := &Result{}

	raw, err := io.ReadAll(r)
	if err != nil {
		return o.fail(res, start, dbbackuperr.Wrap(dbbackuperr.IOFailure, "reading restore script", err))
	}
	script := string(raw)

	if o.options.ValidateBeforeRestore {
		if verr := Validate(script); verr != nil {
			return o.fail(res, start, verr)
		}
	}

	d := o.conn.EngineKind()
	statements := splitter.Split(script, d, splitter.Options{})
	total := len(statements)

	if warnings, werr := DetectDestructiveStatements(d, script); werr == nil {
		res.Warnings = FormatDestructiveWarnings(warnings)
	}

	if err := o.applySessionPragmas(ctx); err != nil {
		return o.fail(res, start, err)
	}

	var tx conn.Tx
	inTx := false
	if o.options.ExecuteInTransaction {
		tx, err = o.conn.Begin(ctx)
		if err != nil {
			return o.fail(res, start, dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "beginning restore transaction", err))
		}
		inTx = true
	}

	for i, stmt := range statements {
		if err := ctx.Err(); err != nil {
			if inTx {
				_ = tx.Rollback()
			}
			return o.fail(res, start, dbbackuperr.Wrap(dbbackuperr.CancellationRequested, "restore canceled", err))
		}

		text := strings.TrimSpace(stmt.Text)
		if text == "" {
			continue
		}
		if inTx {
			body := text
			for strings.HasPrefix(body, "--") && strings.Contains(body, "\n") {
				body = strings.TrimSpace(body[strings.Index(body, "\n")+1:])
			}
			switch strings.ToUpper(body) {
			case "BEGIN", "START TRANSACTION", "COMMIT":
				continue
			}
		}

		o.emitProgress(i*100/maxInt(total, 1), "executing statement", i, total)

		execErr := o.execStatement(ctx, tx, inTx, d, text)
		if execErr == nil {
			res.StatementsExecuted++
			continue
		}

		res.StatementsFailed++
		failure := dbbackuperr.Wrap(dbbackuperr.StatementExecutionFailed, "executing restore statement", execErr).WithStatement(i, text)
		res.Errors = append(res.Errors, failure.Error())

		if !o.options.ContinueOnError {
			if inTx {
				_ = tx.Rollback()
			}
			return o.fail(res, start, failure)
		}
	}

	if inTx {
		if err := tx.Commit(); err != nil {
			return o.fail(res, start, dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "committing restore transaction", err))
		}
	}

	if err := o.restoreSessionDefaults(ctx); err != nil {
		return o.fail(res, start, err)
	}

	if err := o.integrityCheck(ctx); err != nil {
		return o.fail(res, start, err)
	}

	o.emitProgress(100, "done", total, total)

	res.Success = res.StatementsFailed == 0
	res.DurationSeconds = time.Since(start).Seconds()
	if !res.Success {
		res.Error = "one or more statements failed"
	}
	return res, nil
}

// execStatement dispatches a statement either to the open transaction or
// directly to the connection. MySQL CREATE TRIGGER bodies recovered from a
// DELIMITER block run outside the transaction, since the trigger body's
// own semicolons are not valid mid-transaction boundaries on every MySQL
// version.
func (o *Orchestrator) execStatement(ctx context.Context, tx conn.Tx, inTx bool, d schema.Dialect, text string) error {
	if inTx && d.IsMySQLFamily() && isCreateTrigger(text) {
		_, err := o.conn.Exec(ctx, text)
		return err
	}
	if inTx {
		_, err := tx.Exec(ctx, text)
		return err
	}
	_, err := o.conn.Exec(ctx, text)
	return err
}

func isCreateTrigger(stmt string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(stmt)), "CREATE TRIGGER")
}

func (o *Orchestrator) fail(res *Result, start time.Time, err error) (*Result, error) {
	res.Success = false
	res.Error = err.Error()
	if len(res.Errors) == 0 {
		res.Errors = append(res.Errors, err.Error())
	}
	res.DurationSeconds = time.Since(start).Seconds()
	return res, err
}

func (o *Orchestrator) emitProgress(percent int, operation string, done, total int) {
	if o.options.ProgressCallback == nil {
		return
	}
	o.options.ProgressCallback(Progress{Percent: percent, Operation: operation, StatementsDone: done, StatementsTotal: total})
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (o *Orchestrator) applySessionPragmas(ctx context.Context) error {
	for _, stmt := range sessionPragmas(o.conn.EngineKind(), o.options) {
		if _, err := o.conn.Exec(ctx, stmt); err != nil {
			return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "applying session pragma", err)
		}
	}
	return nil
}

func sessionPragmas(d schema.Dialect, opts Options) []string {
	switch {
	case d.IsMySQLFamily():
		stmts := []string{"SET UNIQUE_CHECKS=0"}
		if opts.DisableConstraints {
			stmts = append(stmts, "SET FOREIGN_KEY_CHECKS=0")
		}
		return stmts
	case d == schema.DialectPostgreSQL:
		if opts.DisableConstraints {
			return []string{"SET session_replication_role = 'replica'"}
		}
		return nil
	case d == schema.DialectSQLite:
		stmts := []string{"PRAGMA synchronous = OFF", "PRAGMA journal_mode = MEMORY"}
		if opts.DisableConstraints {
			stmts = append(stmts, "PRAGMA foreign_keys = OFF")
		}
		return stmts
	default:
		return nil
	}
}

func (o *Orchestrator) restoreSessionDefaults(ctx context.Context) error {
	d := o.conn.EngineKind()
	var stmts []string
	switch {
	case d.IsMySQLFamily():
		stmts = []string{"SET FOREIGN_KEY_CHECKS=1", "SET UNIQUE_CHECKS=1"}
	case d == schema.DialectPostgreSQL:
		if o.options.DisableConstraints {
			stmts = []string{"SET session_replication_role = 'origin'"}
		}
	case d == schema.DialectSQLite:
		if o.options.DisableConstraints {
			stmts = []string{"PRAGMA foreign_keys = ON"}
		}
	}
	for _, stmt := range stmts {
		if _, err := o.conn.Exec(ctx, stmt); err != nil {
			return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "restoring session defaults", err)
		}
	}
	return nil
}

// integrityCheck runs a post-commit smoke test: PRAGMA integrity_check for
// SQLite, SELECT 1 for the other engines.
func (o *Orchestrator) integrityCheck(ctx context.Context) error {
	query := "SELECT 1"
	if o.conn.EngineKind() == schema.DialectSQLite {
		query = "PRAGMA integrity_check"
	}
	rows, err := o.conn.Query(ctx, query)
	if err != nil {
		return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "post-restore integrity check", err)
	}
	defer rows.Close()
	return rows.Err()
}
