package output

import (
	"fmt"

	"dbbackup/internal/backup"
	"dbbackup/internal/restore"
)

type summaryFormatter struct{}

// FormatBackupResult formats a backup job's Result as a single line.
func (summaryFormatter) FormatBackupResult(r *backup.Result) (string, error) {
	if r == nil {
		return "no result\n", nil
	}
	status := "ok"
	if !r.Success {
		status = "failed: " + r.Error
	}
	return fmt.Sprintf("backup %s (%d statements, %.2fs)\n", status, r.StatementsExecuted, r.DurationSeconds), nil
}

// FormatRestoreResult formats a restore job's Result as a single line.
func (summaryFormatter) FormatRestoreResult(r *restore.Result) (string, error) {
	if r == nil {
		return "no result\n", nil
	}
	status := "ok"
	if !r.Success {
		status = "failed: " + r.Error
	}
	return fmt.Sprintf("restore %s (%d executed, %d failed, %.2fs)\n", status, r.StatementsExecuted, r.StatementsFailed, r.DurationSeconds), nil
}
