package restore

import (
	"strings"

	"dbbackup/internal/dbbackuperr"
)

// Validate performs the pre-flight contract check backing `dbbackup
// validate`: the script is non-empty, carries the header comment a backup
// always writes, and contains at least one BEGIN or START TRANSACTION and
// at least one COMMIT. It does not compare their counts or check where in
// the script they appear, and it does not require a CREATE TABLE. The
// whole backup job, including one against an empty database, is wrapped
// in a single transaction for snapshot consistency, so the transaction
// check applies unconditionally, not only when the script declares tables. It never connects to a database; this is a static
// text check only.
func Validate(script string) error {
	trimmed := strings.TrimSpace(script)
	if trimmed == "" {
		return dbbackuperr.New(dbbackuperr.ParseFailed, "restore script is empty")
	}

	if !strings.Contains(script, "Database Backup") {
		return dbbackuperr.New(dbbackuperr.ParseFailed, "restore script is missing its backup header comment")
	}

	upper := strings.ToUpper(script)
	opens := strings.Count(upper, "START TRANSACTION") + strings.Count(upper, "BEGIN")
	closes := strings.Count(upper, "COMMIT")
	if opens == 0 {
		return dbbackuperr.New(dbbackuperr.ParseFailed, "restore script never opens a transaction")
	}
	if closes == 0 {
		return dbbackuperr.New(dbbackuperr.ParseFailed, "restore script never commits its transaction")
	}

	return nil
}
