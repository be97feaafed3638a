package builtin

import (
	"context"
	"testing"

	"lmagent/internal/tool"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// spyDB counts calls that reach the database seam.
type spyDB struct{ calls int }

func (s *spyDB) Query(context.Context, string, map[string]any, int) (*Rows, error) {
	s.calls++
	return &Rows{Rows: []map[string]any{}}, nil
}

func (s *spyDB) Exec(context.Context, string, map[string]any, int64) (int64, error) {
	s.calls++
	return 0, nil
}

func (s *spyDB) Validate(context.Context, string, map[string]any) error {
	s.calls++
	return nil
}

func newSQLiteEnv(t *testing.T) *Env {
	t.Helper()
	env, _ := newTestEnv(t)

	conn, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })

	conn.MustExec(`CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT, qty INTEGER)`)
	for i, name := range []string{"apple", "pear", "plum", "fig", "kiwi"} {
		conn.MustExec(`INSERT INTO items (id, name, qty) VALUES (?, ?, ?)`, i+1, name, 10)
	}
	env.DB = OpenDB(conn)
	return env
}

func TestDatabaseQueryRows(t *testing.T) {
	env := newSQLiteEnv(t)

	res := run(t, NewDatabaseQueryTool(env), map[string]any{
		"query":  "SELECT id, name FROM items WHERE id = :id",
		"params": map[string]any{"id": 2},
	})
	require.True(t, res.Success, res.Error)
	data := dataMap(t, res)
	assert.Equal(t, []string{"id", "name"}, data["columns"])
	rows := data["rows"].([]map[string]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "pear", rows[0]["name"])
}

func TestDatabaseQueryCapsRows(t *testing.T) {
	env := newSQLiteEnv(t)
	env.Limits.MaxRows = 3

	res := run(t, NewDatabaseQueryTool(env), map[string]any{"query": "SELECT * FROM items"})
	require.True(t, res.Success, res.Error)
	data := dataMap(t, res)
	assert.Equal(t, 3, data["row_count"])
	assert.Equal(t, true, data["truncated"])
}

func TestDatabaseQueryReadOnly(t *testing.T) {
	queries := []string{
		"DELETE FROM items WHERE id = 1",
		"insert into items (name) values ('x')",
		"UPDATE items SET qty = 0 WHERE id = 1",
		"SELECT * FROM items; DROP TABLE items",
		"SELECT * FROM items -- comment",
	}
	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			env, _ := newTestEnv(t)
			spy := &spyDB{}
			env.DB = spy

			res := run(t, NewDatabaseQueryTool(env), map[string]any{"query": q})
			assert.Equal(t, tool.RejectReadOnly, res.Rejection())
			assert.Zero(t, spy.calls)
		})
	}
}

func TestDatabaseQueryRejectsStackedStatements(t *testing.T) {
	env := newSQLiteEnv(t)
	db := env.DB.(*DB)

	for _, q := range []string{
		"SELECT 1; UPDATE items SET qty = 0 WHERE id > 0",
		"SELECT 1; INSERT INTO items (name, qty) VALUES ('x', 1)",
		"select 1 ;delete from items where id = 1;",
	} {
		res := run(t, NewDatabaseQueryTool(env), map[string]any{"query": q})
		assert.Equal(t, tool.RejectReadOnly, res.Rejection(), q)
	}

	rows, err := db.Query(context.Background(), "SELECT COUNT(*) AS n, SUM(qty) AS total FROM items", nil, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 5, rows.Rows[0]["n"])
	assert.EqualValues(t, 50, rows.Rows[0]["total"])

	res := run(t, NewDatabaseQueryTool(env), map[string]any{"query": "SELECT name FROM items WHERE id = 1;"})
	assert.True(t, res.Success, "a trailing terminator is fine")
}

func TestDBQueryNeverCommits(t *testing.T) {
	env := newSQLiteEnv(t)
	db := env.DB.(*DB)
	ctx := context.Background()

	rows, err := db.Query(ctx, "UPDATE items SET qty = 0 RETURNING id", nil, 0)
	require.NoError(t, err)
	assert.Len(t, rows.Rows, 5)

	rows, err = db.Query(ctx, "SELECT SUM(qty) AS total FROM items", nil, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 50, rows.Rows[0]["total"])
}

func TestDatabaseQueryAllowsReadPrefixes(t *testing.T) {
	for _, q := range []string{"select 1", "  WITH x AS (SELECT 1) SELECT * FROM x", "EXPLAIN SELECT 1", "PRAGMA table_info(items)"} {
		env, _ := newTestEnv(t)
		spy := &spyDB{}
		env.DB = spy

		res := run(t, NewDatabaseQueryTool(env), map[string]any{"query": q})
		assert.True(t, res.Success, q)
		assert.Equal(t, 1, spy.calls, q)
	}
}

func TestDatabaseWriteUnsafeNeverReachesDB(t *testing.T) {
	statements := []string{
		"DELETE FROM items",
		"UPDATE items SET qty = 0",
		"DROP TABLE items",
		"TRUNCATE items",
		"ALTER TABLE items ADD COLUMN x TEXT",
		"CREATE TABLE t (id INT)",
		"INSERT INTO items (name) VALUES ('x'); -- sneaky",
		"EXEC xp_cmdshell 'dir'",
		"UPDATE items SET qty = 1 WHERE id = 1; DELETE FROM items WHERE id > 0",
	}
	for _, stmt := range statements {
		t.Run(stmt, func(t *testing.T) {
			env, _ := newTestEnv(t)
			spy := &spyDB{}
			env.DB = spy

			res := run(t, NewDatabaseWriteTool(env), map[string]any{"query": stmt})
			assert.Equal(t, tool.RejectUnsafeWrite, res.Rejection())
			assert.Zero(t, spy.calls)
		})
	}
}

func TestDatabaseWriteRejectsSelect(t *testing.T) {
	env, _ := newTestEnv(t)
	spy := &spyDB{}
	env.DB = spy

	res := run(t, NewDatabaseWriteTool(env), map[string]any{"query": "SELECT * FROM items"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "database_query")
	assert.Zero(t, spy.calls)
}

func TestDatabaseWriteExec(t *testing.T) {
	env := newSQLiteEnv(t)

	res := run(t, NewDatabaseWriteTool(env), map[string]any{
		"query":  "UPDATE items SET qty = :qty WHERE name = :name",
		"params": map[string]any{"qty": 3, "name": "fig"},
	})
	require.True(t, res.Success, res.Error)
	assert.EqualValues(t, 1, dataMap(t, res)["rows_affected"])

	rows, err := env.DB.Query(context.Background(), "SELECT qty FROM items WHERE name = 'fig'", nil, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 3, rows.Rows[0]["qty"])
}

func TestDatabaseWriteRollsBackOverLimit(t *testing.T) {
	env := newSQLiteEnv(t)
	env.Limits.MaxAffectedRows = 2

	res := run(t, NewDatabaseWriteTool(env), map[string]any{"query": "UPDATE items SET qty = 0 WHERE id > 0"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "rolled back")

	rows, err := env.DB.Query(context.Background(), "SELECT COUNT(*) AS n FROM items WHERE qty = 0", nil, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 0, rows.Rows[0]["n"])
}

func TestDatabaseWriteDryRun(t *testing.T) {
	env := newSQLiteEnv(t)

	res := run(t, NewDatabaseWriteTool(env), map[string]any{
		"query":   "INSERT INTO items (name, qty) VALUES ('lime', 1)",
		"dry_run": true,
	})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, true, dataMap(t, res)["dry_run"])

	rows, err := env.DB.Query(context.Background(), "SELECT COUNT(*) AS n FROM items", nil, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 5, rows.Rows[0]["n"])

	res = run(t, NewDatabaseWriteTool(env), map[string]any{"query": "INSERT INTO nowhere VALUES (1)", "dry_run": true})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "validation failed")
}

func TestDatabaseNotConfigured(t *testing.T) {
	env, _ := newTestEnv(t)

	res := run(t, NewDatabaseQueryTool(env), map[string]any{"query": "SELECT 1"})
	assert.Equal(t, "no database configured", res.Error)
	res = run(t, NewDatabaseWriteTool(env), map[string]any{"query": "INSERT INTO t VALUES (1)"})
	assert.Equal(t, "no database configured", res.Error)
}

func TestNewDBDrivers(t *testing.T) {
	_, err := NewDB("postgres", "postgres://localhost/x")
	assert.NoError(t, err)
	_, err = NewDB("mysql", "x")
	assert.Error(t, err)
	_, err = NewDB("sqlite", "")
	assert.Error(t, err)
}
