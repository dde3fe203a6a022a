// Package main contains the cli implementation of the tool. It uses cobra
// package for cli tool implementation.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"dbbackup/internal/backup"
	"dbbackup/internal/conn"
	"dbbackup/internal/config"
	"dbbackup/internal/dialect"
	_ "dbbackup/internal/dialect/mysql"
	_ "dbbackup/internal/dialect/postgres"
	_ "dbbackup/internal/dialect/sqlite"
	"dbbackup/internal/output"
	_ "dbbackup/internal/reflect/mysql"
	_ "dbbackup/internal/reflect/postgres"
	_ "dbbackup/internal/reflect/sqlite"
	"dbbackup/internal/restore"
	"dbbackup/internal/schema"
)

type backupFlags struct {
	dsn       string
	dialect   string
	database  string
	config    string
	outFile   string
	format    string
	chunkSize int
	timeout   int
}

type restoreFlags struct {
	dsn             string
	dialect         string
	config          string
	file            string
	format          string
	continueOnError bool
	timeout         int

	// continueOnErrorSet records whether --continue-on-error was given
	// explicitly; only then does it override a config file's value.
	continueOnErrorSet bool
}

type validateFlags struct {
	file string
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "dbbackup",
		Short: "Cross-engine logical database backup/restore tool",
	}

	rootCmd.AddCommand(backupCmd())
	rootCmd.AddCommand(restoreCmd())
	rootCmd.AddCommand(validateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func backupCmd() *cobra.Command {
	flags := &backupFlags{}
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Back up a database into a phased SQL script",
		Long: `Connects to a MySQL/MariaDB/TiDB, PostgreSQL, or SQLite database, reflects
its schema, and streams a dialect-aware SQL script covering DDL, data, and
deferred indexes/constraints/triggers/sequences.

Examples:
  dbbackup backup --dsn "user:pass@tcp(localhost:3306)/mydb" --dialect mysql --database mydb -o backup.sql
  dbbackup backup --config job.toml -o backup.sql`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runBackup(flags)
		},
	}

	cmd.Flags().StringVar(&flags.dsn, "dsn", "", "Database connection string")
	cmd.Flags().StringVar(&flags.dialect, "dialect", "", "Database dialect: mysql, mariadb, tidb, postgresql, sqlite")
	cmd.Flags().StringVar(&flags.database, "database", "", "Database/schema name to back up")
	cmd.Flags().StringVarP(&flags.config, "config", "c", "", "Job configuration TOML file (overrides flag defaults)")
	cmd.Flags().StringVarP(&flags.outFile, "output", "o", "", "Output file for the backup script (default: stdout)")
	cmd.Flags().StringVarP(&flags.format, "format", "f", "", "Result report format: text, json, or summary")
	cmd.Flags().IntVar(&flags.chunkSize, "chunk-size", 0, "Rows per INSERT chunk (default 1000; overrides the config file's chunk size)")
	cmd.Flags().IntVar(&flags.timeout, "timeout", 0, "Timeout in seconds for the whole job (0 = no timeout)")

	return cmd
}

func runBackup(flags *backupFlags) error {
	opts := backup.DefaultOptions()
	dialectName := flags.dialect
	dsn := flags.dsn

	if flags.config != "" {
		file, err := config.Load(flags.config)
		if err != nil {
			return err
		}
		opts = file.Backup.ToOptions()
		if dialectName == "" {
			dialectName = file.Connection.Dialect
		}
		if dsn == "" {
			dsn = file.Connection.DSN
		}
	}
	if flags.chunkSize > 0 {
		opts.ChunkSize = flags.chunkSize
	}

	d, err := resolveDialect(dialectName)
	if err != nil {
		return err
	}
	if dsn == "" {
		return fmt.Errorf("--dsn is required")
	}
	if flags.database == "" {
		return fmt.Errorf("--database is required")
	}

	c, err := openConn(d, dsn)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	platform, err := dialect.Get(d)
	if err != nil {
		return err
	}

	out, closeOut, err := openOutput(flags.outFile)
	if err != nil {
		return err
	}
	defer closeOut()

	ctx, cancel := withTimeout(flags.timeout)
	defer cancel()

	o := backup.New(c, platform, opts)
	res, err := o.Run(ctx, out, flags.database)
	reportErr := reportBackupResult(res, flags.format)
	if err != nil {
		return err
	}
	return reportErr
}

func restoreCmd() *cobra.Command {
	flags := &restoreFlags{}
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore a database from a backup script",
		Long: `Connects to a target database and replays a backup script produced by
"dbbackup backup", applying per-dialect session pragmas and the
continue-on-error policy.

Examples:
  dbbackup restore --dsn "user:pass@tcp(localhost:3306)/mydb" --dialect mysql --file backup.sql
  dbbackup restore --config job.toml --file backup.sql --continue-on-error=false`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags.continueOnErrorSet = cmd.Flags().Changed("continue-on-error")
			return runRestore(flags)
		},
	}

	cmd.Flags().StringVar(&flags.dsn, "dsn", "", "Database connection string")
	cmd.Flags().StringVar(&flags.dialect, "dialect", "", "Database dialect: mysql, mariadb, tidb, postgresql, sqlite")
	cmd.Flags().StringVarP(&flags.config, "config", "c", "", "Job configuration TOML file (overrides flag defaults)")
	cmd.Flags().StringVar(&flags.file, "file", "", "Path to the backup script to restore")
	cmd.Flags().StringVarP(&flags.format, "format", "f", "", "Result report format: text, json, or summary")
	cmd.Flags().BoolVar(&flags.continueOnError, "continue-on-error", true, "Keep executing remaining statements after one fails")
	cmd.Flags().IntVar(&flags.timeout, "timeout", 0, "Timeout in seconds for the whole job (0 = no timeout)")

	return cmd
}

func runRestore(flags *restoreFlags) error {
	opts := restore.DefaultOptions()
	dialectName := flags.dialect
	dsn := flags.dsn

	if flags.config != "" {
		file, err := config.Load(flags.config)
		if err != nil {
			return err
		}
		opts = file.Restore.ToOptions()
		if dialectName == "" {
			dialectName = file.Connection.Dialect
		}
		if dsn == "" {
			dsn = file.Connection.DSN
		}
	}
	if flags.config == "" || flags.continueOnErrorSet {
		opts.ContinueOnError = flags.continueOnError
	}

	d, err := resolveDialect(dialectName)
	if err != nil {
		return err
	}
	if dsn == "" {
		return fmt.Errorf("--dsn is required")
	}
	if flags.file == "" {
		return fmt.Errorf("--file is required")
	}

	c, err := openConn(d, dsn)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	platform, err := dialect.Get(d)
	if err != nil {
		return err
	}

	f, err := os.Open(flags.file)
	if err != nil {
		return fmt.Errorf("failed to open restore script: %w", err)
	}
	defer func() { _ = f.Close() }()

	ctx, cancel := withTimeout(flags.timeout)
	defer cancel()

	o := restore.New(c, platform, opts)
	res, err := o.Run(ctx, f)
	reportErr := reportRestoreResult(res, flags.format)
	if err != nil {
		return err
	}
	return reportErr
}

func validateCmd() *cobra.Command {
	flags := &validateFlags{}
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a backup script's structural contract without connecting to a database",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runValidate(flags)
		},
	}
	cmd.Flags().StringVar(&flags.file, "file", "", "Path to the backup script to validate")
	return cmd
}

func runValidate(flags *validateFlags) error {
	if flags.file == "" {
		return fmt.Errorf("--file is required")
	}
	content, err := os.ReadFile(flags.file)
	if err != nil {
		return fmt.Errorf("failed to read script: %w", err)
	}
	if err := restore.Validate(string(content)); err != nil {
		fmt.Printf("invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("valid")
	return nil
}

func resolveDialect(name string) (schema.Dialect, error) {
	if name == "" {
		return "", fmt.Errorf("--dialect is required")
	}
	if !schema.ValidDialect(name) {
		return "", fmt.Errorf("unsupported dialect: %s", name)
	}
	return schema.Dialect(strings.ToLower(name)), nil
}

func driverName(d schema.Dialect) string {
	switch {
	case d.IsMySQLFamily():
		return "mysql"
	case d == schema.DialectPostgreSQL:
		return "postgres"
	case d == schema.DialectSQLite:
		return "sqlite3"
	default:
		return ""
	}
}

func openConn(d schema.Dialect, dsn string) (conn.Conn, error) {
	driver := driverName(d)
	if driver == "" {
		return nil, fmt.Errorf("no driver registered for dialect %q", d)
	}
	c, err := conn.Open(d, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}
	return c, nil
}

func openOutput(path string) (*os.File, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func withTimeout(seconds int) (context.Context, context.CancelFunc) {
	if seconds <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), time.Duration(seconds)*time.Second)
}

func reportBackupResult(res *backup.Result, format string) error {
	formatter, err := output.NewFormatter(format)
	if err != nil {
		return err
	}
	text, err := formatter.FormatBackupResult(res)
	if err != nil {
		return err
	}
	fmt.Fprint(os.Stderr, text)
	if res != nil && !res.Success {
		return fmt.Errorf("backup failed")
	}
	return nil
}

func reportRestoreResult(res *restore.Result, format string) error {
	formatter, err := output.NewFormatter(format)
	if err != nil {
		return err
	}
	text, err := formatter.FormatRestoreResult(res)
	if err != nil {
		return err
	}
	fmt.Fprint(os.Stderr, text)
	if res != nil && !res.Success {
		return fmt.Errorf("restore failed")
	}
	return nil
}
