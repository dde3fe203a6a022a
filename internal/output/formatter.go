// Package output formats backup and restore job results for the CLI: a
// human-readable report, a one-line summary, or a machine-readable JSON
// document. It is extendable in the same way the original schema-diff
// formatter was: one Formatter interface, one constructor keyed by name.
package output

import (
	"fmt"
	"strings"

	"dbbackup/internal/backup"
	"dbbackup/internal/restore"
)

// Format is an enum type representing the available output formats.
type Format string

const (
	FormatText    Format = "text"
	FormatJSON    Format = "json"
	FormatSummary Format = "summary"
)

// Formatter renders a completed backup or restore job's Result.
type Formatter interface {
	FormatBackupResult(*backup.Result) (string, error)
	FormatRestoreResult(*restore.Result) (string, error)
}

// NewFormatter creates a new Formatter instance based on the given name.
// If no format is specified, defaults to the text format.
func NewFormatter(name string) (Formatter, error) {
	format := Format(strings.ToLower(strings.TrimSpace(name)))
	switch format {
	case "", FormatText:
		return textFormatter{}, nil
	case FormatJSON:
		return jsonFormatter{}, nil
	case FormatSummary:
		return summaryFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s; use 'text', 'json', or 'summary'", name)
	}
}
