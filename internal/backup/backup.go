// Package backup drives the Backup Orchestrator: it reflects a live
// database, orders its tables, and streams a phased SQL script to an
// output writer.
package backup

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"dbbackup/internal/conn"
	"dbbackup/internal/dbbackuperr"
	"dbbackup/internal/depsort"
	"dbbackup/internal/dialect"
	"dbbackup/internal/reflect"
	"dbbackup/internal/render"
	"dbbackup/internal/schema"
)

// ProgressFunc is invoked synchronously at phase transitions and per-table
// milestones. Its return value is ignored and it must never call back into
// the Orchestrator.
type ProgressFunc func(Progress)

// Progress is one progress-callback invocation.
type Progress struct {
	Percent      int
	Operation    string
	CurrentTable string
	TablesDone   int
	TotalTables  int
}

// Options is the explicit backup option record a backup job reads.
type Options struct {
	IncludeSchema         bool
	IncludeData           bool
	IncludeIndexes        bool
	IncludeConstraints    bool
	IncludeTriggers       bool
	IncludeSequences      bool
	IncludeDropStatements bool
	SingleTransaction     bool
	ChunkSize             int
	SetTimezoneUTC        bool
	BackupTimezone        string
	DisableForeignKeys    bool
	DeferIndexes          bool
	ProgressCallback      ProgressFunc
}

// DefaultOptions returns the option record a bare `dbbackup backup` run
// uses: every phase included, 1000-row chunks, single transaction, FK
// checks disabled for the duration of the load.
func DefaultOptions() Options {
	return Options{
		IncludeSchema:         true,
		IncludeData:           true,
		IncludeIndexes:        true,
		IncludeConstraints:    true,
		IncludeTriggers:       true,
		IncludeSequences:      true,
		IncludeDropStatements: true,
		SingleTransaction:     true,
		ChunkSize:             1000,
		SetTimezoneUTC:        true,
		DisableForeignKeys:    true,
		DeferIndexes:          true,
	}
}

// Result is the job status record a backup job reports.
type Result struct {
	Success            bool
	Error              string
	DurationSeconds    float64
	StatementsExecuted int
	StatementsFailed   int
	Errors             []string
}

// Orchestrator sequences the backup phases into a single output stream.
type Orchestrator struct {
	conn     conn.Conn
	platform dialect.Platform
	options  Options
}

// New constructs an Orchestrator for the given connection and rendering
// platform (the target dialect for the emitted script; ordinarily the same
// dialect as conn, but left separate so a reflected schema can in
// principle be rendered under a different Platform).
func New(c conn.Conn, platform dialect.Platform, options Options) *Orchestrator {
	if options.ChunkSize <= 0 {
		options.ChunkSize = 1000
	}
	return &Orchestrator{conn: c, platform: platform, options: options}
}

// Run reflects databaseName, orders its tables, and writes the phased
// script to out. It returns a status record regardless of error so partial
// progress (statements executed before a fatal failure) is visible to the
// caller.
func (o *Orchestrator) Run(ctx context.Context, out io.Writer, databaseName string) (*Result, error) {
	start := time.Now()
	res := &Result{}
	w := NewWriter(out)
	defer func() { res.StatementsExecuted = w.count }()

	reflector, err := reflect.Get(o.conn.EngineKind())
	if err != nil {
		return o.fail(res, start, err)
	}

	o.emitProgress(0, "reflecting schema", "", 0, 0)
	db, err := reflector.Reflect(ctx, o.conn, databaseName)
	if err != nil {
		return o.fail(res, start, err)
	}

	sorted := depsort.Sort(db.Tables)
	cyclicConstraints := cycleConstraintSet(sorted.CycleEdges)
	isCycleFK := func(tableName string, fk *schema.Constraint) bool {
		return cyclicConstraints[tableName+"."+fk.Name]
	}

	total := len(sorted.Order)

	if err := ctx.Err(); err != nil {
		return o.fail(res, start, err)
	}

	o.emitProgress(5, "writing header", "", 0, total)
	o.writeHeader(w, databaseName)

	var deferredIndexes []deferredIndex
	var deferredFKs []deferredFK
	var renderResults = make(map[string]*render.Result, total)

	if o.options.IncludeDropStatements {
		o.emitProgress(10, "phase: drop", "", 0, total)
		o.writeDropPhase(w, sorted.Order, db.Triggers)
	}

	if o.options.IncludeSchema {
		o.emitProgress(15, "phase: create table", "", 0, total)
		w.writeComment(phaseBanner(2, "CREATE TABLE"))
		for i, table := range sorted.Order {
			if err := ctx.Err(); err != nil {
				return o.fail(res, start, err)
			}
			result, err := render.Table(table, o.platform, isCycleFK)
			if err != nil {
				return o.fail(res, start, err)
			}
			renderResults[table.Name] = result
			w.writeStatement(result.CreateSQL)
			for _, stmt := range result.CommentStatements {
				w.writeStatement(stmt)
			}
			o.emitProgress(15+int(20*float64(i+1)/float64(total)), "creating table", table.Name, i+1, total)
		}
	}

	if o.options.IncludeData {
		o.emitProgress(40, "phase: data", "", 0, total)
		w.writeComment(phaseBanner(3, "DATA"))
		for i, table := range sorted.Order {
			if err := ctx.Err(); err != nil {
				return o.fail(res, start, err)
			}
			if err := o.backupTableData(ctx, w, table); err != nil {
				return o.fail(res, start, err)
			}
			o.emitProgress(40+int(30*float64(i+1)/float64(total)), "loading data", table.Name, i+1, total)
		}
	}

	if o.options.IncludeIndexes {
		o.emitProgress(70, "phase: deferred indexes", "", 0, total)
		for _, table := range sorted.Order {
			result := renderResults[table.Name]
			if result == nil {
				continue
			}
			for _, idx := range result.DeferredIndexes {
				deferredIndexes = append(deferredIndexes, deferredIndex{table: table, idx: idx})
			}
		}
		if len(deferredIndexes) > 0 {
			w.writeComment(phaseBanner(4, "DEFERRED INDEXES"))
		}
		for _, di := range deferredIndexes {
			w.writeStatement(render.DeferredIndexStatement(di.table, di.idx, o.platform))
		}
	}

	if o.options.IncludeConstraints {
		o.emitProgress(80, "phase: deferred constraints", "", 0, total)
		for _, table := range sorted.Order {
			result := renderResults[table.Name]
			if result == nil {
				continue
			}
			for _, fk := range result.DeferredForeignKeys {
				deferredFKs = append(deferredFKs, deferredFK{table: table, fk: fk})
			}
		}
		if len(deferredFKs) > 0 {
			w.writeComment(phaseBanner(5, "DEFERRED CONSTRAINTS"))
		}
		for _, df := range deferredFKs {
			w.writeStatement(render.DeferredForeignKeyStatement(df.table, df.fk, o.platform))
		}
	}

	if o.options.IncludeTriggers {
		o.emitProgress(90, "phase: triggers", "", 0, total)
		o.writeTriggerPhase(w, db.Triggers)
	}

	if o.options.IncludeSequences && o.conn.EngineKind() == schema.DialectPostgreSQL {
		o.emitProgress(95, "phase: sequence resync", "", 0, total)
		w.writeComment(phaseBanner(7, "SEQUENCE RESYNC"))
		if err := o.writeSequenceResync(ctx, w, sorted.Order); err != nil {
			return o.fail(res, start, err)
		}
	}

	if w.Err() != nil {
		return o.fail(res, start, dbbackuperr.Wrap(dbbackuperr.IOFailure, "writing backup output", w.Err()))
	}

	o.emitProgress(99, "writing footer", "", total, total)
	o.writeFooter(w)

	o.emitProgress(100, "done", "", total, total)

	res.Success = true
	res.StatementsExecuted = w.count
	res.DurationSeconds = time.Since(start).Seconds()
	return res, nil
}

type deferredIndex struct {
	table *schema.Table
	idx   *schema.Index
}

type deferredFK struct {
	table *schema.Table
	fk    *schema.Constraint
}

func (o *Orchestrator) fail(res *Result, start time.Time, err error) (*Result, error) {
	res.Success = false
	res.Error = err.Error()
	res.Errors = append(res.Errors, err.Error())
	res.DurationSeconds = time.Since(start).Seconds()
	return res, err
}

func (o *Orchestrator) emitProgress(percent int, operation, table string, done, total int) {
	if o.options.ProgressCallback == nil {
		return
	}
	o.options.ProgressCallback(Progress{
		Percent:      percent,
		Operation:    operation,
		CurrentTable: table,
		TablesDone:   done,
		TotalTables:  total,
	})
}

func cycleConstraintSet(edges []depsort.Edge) map[string]bool {
	set := make(map[string]bool, len(edges))
	for _, e := range edges {
		set[e.From+"."+e.Constraint] = true
	}
	return set
}

func (o *Orchestrator) writeHeader(w *statementWriter, databaseName string) {
	d := o.conn.EngineKind()
	w.writeComment(fmt.Sprintf("-- %s Database Backup", engineLabel(d)))
	w.writeComment(fmt.Sprintf("-- Database: %s", databaseName))
	w.writeComment(fmt.Sprintf("-- Generated: %s", time.Now().UTC().Format(time.RFC3339)))
	if version, err := o.conn.ServerVersion(context.Background()); err == nil && version != "" {
		w.writeComment(fmt.Sprintf("-- Server version: %s", version))
	}
	w.blank()

	for _, stmt := range headerStatements(d, o.options) {
		w.writeStatement(stmt)
	}

	if o.options.SingleTransaction {
		if d.IsMySQLFamily() {
			w.writeStatement("SET SESSION TRANSACTION ISOLATION LEVEL REPEATABLE READ")
			w.writeStatement("START TRANSACTION")
		} else {
			w.writeStatement("BEGIN")
		}
	}
}

func headerStatements(d schema.Dialect, opts Options) []string {
	switch {
	case d.IsMySQLFamily():
		stmts := []string{"SET FOREIGN_KEY_CHECKS=0", "SET UNIQUE_CHECKS=0"}
		if opts.SetTimezoneUTC {
			stmts = append(stmts, "SET TIME_ZONE='+00:00'")
		}
		stmts = append(stmts, "SET NAMES utf8mb4")
		return stmts
	case d == schema.DialectPostgreSQL:
		stmts := []string{"SET client_encoding = 'UTF8'"}
		if opts.DisableForeignKeys {
			stmts = append(stmts, "SET session_replication_role = 'replica'")
		}
		if opts.SetTimezoneUTC {
			stmts = append(stmts, "SET TIME ZONE 'UTC'")
		}
		return stmts
	case d == schema.DialectSQLite:
		stmts := []string{"PRAGMA synchronous = OFF", "PRAGMA journal_mode = MEMORY"}
		if opts.DisableForeignKeys {
			stmts = append(stmts, "PRAGMA foreign_keys = OFF")
		}
		return stmts
	default:
		return nil
	}
}

func (o *Orchestrator) writeFooter(w *statementWriter) {
	d := o.conn.EngineKind()
	if o.options.SingleTransaction {
		w.writeStatement("COMMIT")
	}
	for _, stmt := range footerStatements(d, o.options) {
		w.writeStatement(stmt)
	}
	w.blank()
	w.writeComment("-- End of backup")
}

func footerStatements(d schema.Dialect, opts Options) []string {
	switch {
	case d.IsMySQLFamily():
		return []string{"SET FOREIGN_KEY_CHECKS=1", "SET UNIQUE_CHECKS=1"}
	case d == schema.DialectPostgreSQL:
		if opts.DisableForeignKeys {
			return []string{"SET session_replication_role = 'origin'"}
		}
		return nil
	case d == schema.DialectSQLite:
		if opts.DisableForeignKeys {
			return []string{"PRAGMA foreign_keys = ON"}
		}
		return nil
	default:
		return nil
	}
}

func (o *Orchestrator) writeDropPhase(w *statementWriter, order []*schema.Table, triggers []*schema.Trigger) {
	w.writeComment("-- === Phase 1: DROP ===")
	reversed := depsort.ReverseOrder(order)

	for _, trig := range triggers {
		w.writeStatement(dropTriggerStatement(o.conn.EngineKind(), trig, o.platform))
	}

	for _, table := range reversed {
		w.writeStatement(dropTableStatement(o.conn.EngineKind(), table, o.platform))
	}
}

func dropTableStatement(d schema.Dialect, table *schema.Table, platform dialect.Platform) string {
	name := platform.QuoteIdentifier(table.Name)
	if table.Schema != "" {
		name = platform.QuoteIdentifier(table.Schema) + "." + name
	}
	if d == schema.DialectPostgreSQL {
		return "DROP TABLE IF EXISTS " + name + " CASCADE"
	}
	return "DROP TABLE IF EXISTS " + name
}

func dropTriggerStatement(d schema.Dialect, trig *schema.Trigger, platform dialect.Platform) string {
	if d == schema.DialectPostgreSQL {
		return fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s CASCADE", platform.QuoteIdentifier(trig.Name), platform.QuoteIdentifier(trig.Table))
	}
	return "DROP TRIGGER IF EXISTS " + platform.QuoteIdentifier(trig.Name)
}

func (o *Orchestrator) writeTriggerPhase(w *statementWriter, triggers []*schema.Trigger) {
	if len(triggers) == 0 {
		return
	}
	w.writeComment("-- === Phase 6: TRIGGERS ===")

	seen := map[string]bool{}
	for _, trig := range triggers {
		key := trig.Table + "." + trig.Name
		if seen[key] {
			continue
		}
		seen[key] = true

		if o.conn.EngineKind().IsMySQLFamily() {
			w.writeRaw("DELIMITER $$")
			w.writeRaw(strings.TrimSuffix(trig.Definition, ";") + "$$")
			w.writeRaw("DELIMITER ;")
			continue
		}
		w.writeRaw(trig.Definition)
	}
}

func engineLabel(d schema.Dialect) string {
	switch d {
	case schema.DialectMySQL:
		return "MySQL"
	case schema.DialectMariaDB:
		return "MariaDB"
	case schema.DialectTiDB:
		return "TiDB"
	case schema.DialectPostgreSQL:
		return "PostgreSQL"
	case schema.DialectSQLite:
		return "SQLite"
	default:
		return string(d)
	}
}
