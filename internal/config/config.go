// Package config reads a job configuration file describing a backup or
// restore run: one BurntSushi/toml decode into an explicit typed struct,
// unknown keys rejected rather than silently ignored.
package config

import (
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"

	"dbbackup/internal/backup"
	"dbbackup/internal/restore"
)

// Connection holds how to reach the target database.
type Connection struct {
	Dialect string `toml:"dialect"`
	DSN     string `toml:"dsn"`
	Driver  string `toml:"driver"`
}

// BackupConfig is the TOML [backup] table, mapping 1:1 onto backup.Options.
type BackupConfig struct {
	IncludeSchema         bool   `toml:"include_schema"`
	IncludeData           bool   `toml:"include_data"`
	IncludeIndexes        bool   `toml:"include_indexes"`
	IncludeConstraints    bool   `toml:"include_constraints"`
	IncludeTriggers       bool   `toml:"include_triggers"`
	IncludeSequences      bool   `toml:"include_sequences"`
	IncludeDropStatements bool   `toml:"include_drop_statements"`
	SingleTransaction     bool   `toml:"single_transaction"`
	ChunkSize             int    `toml:"chunk_size"`
	SetTimezoneUTC        bool   `toml:"set_timezone_utc"`
	BackupTimezone        string `toml:"backup_timezone"`
	DisableForeignKeys    bool   `toml:"disable_foreign_keys"`
	DeferIndexes          bool   `toml:"defer_indexes"`
}

// ToOptions converts a decoded BackupConfig into backup.Options. The
// ProgressCallback field is set by the caller; it has no TOML
// representation.
func (c BackupConfig) ToOptions() backup.Options {
	return backup.Options{
		IncludeSchema:         c.IncludeSchema,
		IncludeData:           c.IncludeData,
		IncludeIndexes:        c.IncludeIndexes,
		IncludeConstraints:    c.IncludeConstraints,
		IncludeTriggers:       c.IncludeTriggers,
		IncludeSequences:      c.IncludeSequences,
		IncludeDropStatements: c.IncludeDropStatements,
		SingleTransaction:     c.SingleTransaction,
		ChunkSize:             c.ChunkSize,
		SetTimezoneUTC:        c.SetTimezoneUTC,
		BackupTimezone:        c.BackupTimezone,
		DisableForeignKeys:    c.DisableForeignKeys,
		DeferIndexes:          c.DeferIndexes,
	}
}

// RestoreConfig is the TOML [restore] table, mapping 1:1 onto
// restore.Options.
type RestoreConfig struct {
	ExecuteInTransaction  bool `toml:"execute_in_transaction"`
	ContinueOnError       bool `toml:"continue_on_error"`
	DisableConstraints    bool `toml:"disable_constraints"`
	ResetSequences        bool `toml:"reset_sequences"`
	ValidateBeforeRestore bool `toml:"validate_before_restore"`
	ChunkSizeHint         int  `toml:"chunk_size_hint"`
}

// ToOptions converts a decoded RestoreConfig into restore.Options.
func (c RestoreConfig) ToOptions() restore.Options {
	return restore.Options{
		ExecuteInTransaction:  c.ExecuteInTransaction,
		ContinueOnError:       c.ContinueOnError,
		DisableConstraints:    c.DisableConstraints,
		ResetSequences:        c.ResetSequences,
		ValidateBeforeRestore: c.ValidateBeforeRestore,
		ChunkSizeHint:         c.ChunkSizeHint,
	}
}

// File is the top-level job configuration document.
type File struct {
	Connection Connection    `toml:"connection"`
	Backup     BackupConfig  `toml:"backup"`
	Restore    RestoreConfig `toml:"restore"`
}

// Load reads and decodes a job configuration file at path. Unknown keys
// anywhere in the document are a load error.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a job configuration document from r.
func Parse(r io.Reader) (*File, error) {
	var file File
	meta, err := toml.NewDecoder(r).Decode(&file)
	if err != nil {
		return nil, fmt.Errorf("config: decode error: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config: unknown key %q", undecoded[0].String())
	}
	return &file, nil
}
