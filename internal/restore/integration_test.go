package restore_test

import (
	"bytes"
	"context"
	"database/sql"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"dbbackup/internal/backup"
	"dbbackup/internal/conn"
	"dbbackup/internal/dialect"
	_ "dbbackup/internal/dialect/mysql"
	_ "dbbackup/internal/reflect/mysql"
	"dbbackup/internal/restore"
	"dbbackup/internal/schema"
)

// TestBackupThenRestoreRoundTripAgainstMySQLContainer backs up a populated
// table, drops it, then restores from the captured script and checks the
// data is back: the round trip end to end, not just each orchestrator in
// isolation.
func TestBackupThenRestoreRoundTripAgainstMySQLContainer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := tcmysql.Run(ctx, "mysql:8.0",
		tcmysql.WithDatabase("testdb"),
		tcmysql.WithUsername("root"),
		tcmysql.WithPassword("testpass"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	dsn, err := container.ConnectionString(ctx, "parseTime=true")
	require.NoError(t, err)

	db, err := sql.Open("mysql", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.PingContext(ctx))

	_, err = db.ExecContext(ctx, `CREATE TABLE widgets (
		id INT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(64) NOT NULL
	)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO widgets (name) VALUES ('bolt'), ('nut')`)
	require.NoError(t, err)

	platform, err := dialect.Get(schema.DialectMySQL)
	require.NoError(t, err)

	backupConn := conn.Wrap(db, schema.DialectMySQL)
	var script bytes.Buffer
	_, err = backup.New(backupConn, platform, backup.DefaultOptions()).Run(ctx, &script, "testdb")
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `DROP TABLE widgets`)
	require.NoError(t, err)

	restoreConn := conn.Wrap(db, schema.DialectMySQL)
	res, err := restore.New(restoreConn, platform, restore.DefaultOptions()).Run(ctx, bytes.NewReader(script.Bytes()))
	require.NoError(t, err)
	assert.True(t, res.Success)

	row := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM widgets`)
	var count int
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 2, count)
}
