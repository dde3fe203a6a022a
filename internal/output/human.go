package output

import (
	"fmt"
	"strings"

	"dbbackup/internal/backup"
	"dbbackup/internal/restore"
)

type textFormatter struct{}

// FormatBackupResult formats a backup job's Result as a multi-line report.
func (textFormatter) FormatBackupResult(r *backup.Result) (string, error) {
	if r == nil {
		return "", nil
	}
	var sb strings.Builder
	if r.Success {
		sb.WriteString("Backup completed successfully\n")
	} else {
		fmt.Fprintf(&sb, "Backup failed: %s\n", r.Error)
	}
	fmt.Fprintf(&sb, "Duration:            %.2fs\n", r.DurationSeconds)
	fmt.Fprintf(&sb, "Statements executed: %d\n", r.StatementsExecuted)
	if r.StatementsFailed > 0 {
		fmt.Fprintf(&sb, "Statements failed:   %d\n", r.StatementsFailed)
	}
	writeErrorList(&sb, r.Errors)
	return sb.String(), nil
}

// FormatRestoreResult formats a restore job's Result as a multi-line report.
func (textFormatter) FormatRestoreResult(r *restore.Result) (string, error) {
	if r == nil {
		return "", nil
	}
	var sb strings.Builder
	if r.Success {
		sb.WriteString("Restore completed successfully\n")
	} else {
		fmt.Fprintf(&sb, "Restore failed: %s\n", r.Error)
	}
	fmt.Fprintf(&sb, "Duration:            %.2fs\n", r.DurationSeconds)
	fmt.Fprintf(&sb, "Statements executed: %d\n", r.StatementsExecuted)
	fmt.Fprintf(&sb, "Statements failed:   %d\n", r.StatementsFailed)
	writeWarningList(&sb, r.Warnings)
	writeErrorList(&sb, r.Errors)
	return sb.String(), nil
}

func writeErrorList(sb *strings.Builder, errs []string) {
	if len(errs) == 0 {
		return
	}
	sb.WriteString("\nErrors:\n")
	for _, e := range errs {
		fmt.Fprintf(sb, "  - %s\n", e)
	}
}

func writeWarningList(sb *strings.Builder, warnings []string) {
	if len(warnings) == 0 {
		return
	}
	sb.WriteString("\nWarnings:\n")
	for _, w := range warnings {
		fmt.Fprintf(sb, "  - %s\n", w)
	}
}
