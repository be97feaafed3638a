package builtin

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"

	"lmagent/internal/tool"
)

// DefaultDatabase is the only database name database_query accepts.
const DefaultDatabase = "default"

var (
	readOnlyPrefixes = []string{"SELECT", "WITH", "EXPLAIN", "SHOW", "DESCRIBE", "PRAGMA"}
	leadingWordRe    = regexp.MustCompile(`^\s*\(*\s*([A-Za-z]+)`)
)

func leadingKeyword(query string) string {
	m := leadingWordRe.FindStringSubmatch(query)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}

// stacked reports whether query holds more than one statement. Only a
// trailing terminator is allowed.
func stacked(query string) bool {
	return strings.Contains(strings.TrimRight(strings.TrimSpace(query), "; \t\r\n"), ";")
}

func isReadOnly(query string) bool {
	kw := leadingKeyword(query)
	for _, p := range readOnlyPrefixes {
		if kw == p {
			return true
		}
	}
	return false
}

type dbQueryParams struct {
	Query    string         `json:"query" desc:"SQL query (read-only)"`
	Params   map[string]any `json:"params,omitempty" desc:"Named parameters referenced as :name"`
	Database string         `json:"database,omitempty" desc:"Database name (default)"`
}

// DatabaseQueryTool runs read-only SQL.
type DatabaseQueryTool struct{ env *Env }

func NewDatabaseQueryTool(env *Env) *DatabaseQueryTool { return &DatabaseQueryTool{env: env} }

func (t *DatabaseQueryTool) Name() string { return "database_query" }

func (t *DatabaseQueryTool) Description() string {
	return "Execute a read-only SQL query"
}

func (t *DatabaseQueryTool) Parameters() map[string]any { return tool.SchemaFor(dbQueryParams{}) }

func (t *DatabaseQueryTool) Execute(ctx context.Context, params json.RawMessage) *tool.Result {
	p, bad := tool.Decode[dbQueryParams](params)
	if bad != nil {
		return bad
	}
	if !isReadOnly(p.Query) {
		return tool.Rejected(tool.RejectReadOnly,
			"Only read-only queries are allowed (SELECT, WITH, EXPLAIN, SHOW, DESCRIBE, PRAGMA)")
	}
	if stacked(p.Query) {
		return tool.Rejected(tool.RejectReadOnly, "Multiple statements are not allowed")
	}
	if pattern, hit := t.env.SQLDeny.Match(p.Query); hit {
		return tool.Rejected(tool.RejectReadOnly, "Query blocked: matches %s", pattern)
	}
	if p.Database != "" && p.Database != DefaultDatabase {
		return tool.Fail("unknown database: %s", p.Database)
	}
	if t.env.DB == nil {
		return tool.Fail("no database configured")
	}

	start := time.Now()
	rows, err := t.env.DB.Query(ctx, p.Query, p.Params, t.env.Limits.MaxRows)
	if err != nil {
		return tool.Fail("query failed: %v", err)
	}
	return tool.OK(map[string]any{
		"columns":   rows.Columns,
		"rows":      rows.Rows,
		"row_count": len(rows.Rows),
		"truncated": rows.Truncated,
	}).WithMeta("duration_ms", time.Since(start).Milliseconds())
}

type dbWriteParams struct {
	Query  string         `json:"query" desc:"INSERT, UPDATE or DELETE statement"`
	Params map[string]any `json:"params,omitempty" desc:"Named parameters referenced as :name"`
	DryRun bool           `json:"dry_run,omitempty" desc:"Validate without executing"`
}

// DatabaseWriteTool runs guarded write statements.
type DatabaseWriteTool struct{ env *Env }

func NewDatabaseWriteTool(env *Env) *DatabaseWriteTool { return &DatabaseWriteTool{env: env} }

func (t *DatabaseWriteTool) Name() string { return "database_write" }

func (t *DatabaseWriteTool) Description() string {
	return "Execute a write statement (INSERT, UPDATE, DELETE) with safety checks"
}

func (t *DatabaseWriteTool) Parameters() map[string]any { return tool.SchemaFor(dbWriteParams{}) }

func (t *DatabaseWriteTool) Execute(ctx context.Context, params json.RawMessage) *tool.Result {
	p, bad := tool.Decode[dbWriteParams](params)
	if bad != nil {
		return bad
	}
	if kw := leadingKeyword(p.Query); kw == "SELECT" || kw == "WITH" {
		return tool.Fail("Use database_query for SELECT statements")
	}
	if stacked(p.Query) {
		return tool.Rejected(tool.RejectUnsafeWrite, "Multiple statements are not allowed")
	}
	if pattern, hit := t.env.SQLDeny.Match(p.Query); hit {
		return tool.Rejected(tool.RejectUnsafeWrite, "Unsafe write blocked: matches %s", pattern)
	}
	if t.env.DB == nil {
		return tool.Fail("no database configured")
	}

	if p.DryRun {
		if err := t.env.DB.Validate(ctx, p.Query, p.Params); err != nil {
			return tool.Fail("validation failed: %v", err)
		}
		return tool.OK(map[string]any{"rows_affected": 0, "dry_run": true})
	}

	max := t.env.Limits.MaxAffectedRows
	n, err := t.env.DB.Exec(ctx, p.Query, p.Params, max)
	if err != nil {
		if errors.Is(err, ErrTooManyRows) {
			return tool.Fail("Too many rows affected (%d > %d). Transaction rolled back.", n, max).
				WithData(map[string]any{"rows_affected": 0})
		}
		return tool.Fail("write failed: %v", err)
	}
	return tool.OK(map[string]any{"rows_affected": n, "dry_run": false})
}
