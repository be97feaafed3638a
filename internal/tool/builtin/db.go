package builtin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrTooManyRows is returned by Exec when a statement touched more rows than
// allowed. The statement's transaction has been rolled back.
var ErrTooManyRows = errors.New("too many rows affected")

// Rows is a bounded query result.
type Rows struct {
	Columns   []string
	Rows      []map[string]any
	Truncated bool
}

// Querier is the database seam used by database_query and database_write.
type Querier interface {
	Query(ctx context.Context, query string, params map[string]any, maxRows int) (*Rows, error)
	Exec(ctx context.Context, query string, params map[string]any, maxAffected int64) (int64, error)
	Validate(ctx context.Context, query string, params map[string]any) error
}

// DB is a Querier over database/sql. The connection is opened on first use.
type DB struct {
	driver string
	dsn    string

	once sync.Once
	db   *sqlx.DB
	err  error
}

// NewDB prepares a lazily opened handle. Driver is "sqlite" or "pgx".
func NewDB(driver, dsn string) (*DB, error) {
	switch driver {
	case "sqlite", "pgx":
	case "postgres":
		driver = "pgx"
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if dsn == "" {
		return nil, errors.New("database dsn is required")
	}
	return &DB{driver: driver, dsn: dsn}, nil
}

// OpenDB wraps an existing connection, mainly for tests.
func OpenDB(db *sqlx.DB) *DB {
	d := &DB{driver: db.DriverName(), db: db}
	d.once.Do(func() {})
	return d
}

func (d *DB) conn(ctx context.Context) (*sqlx.DB, error) {
	d.once.Do(func() {
		db, err := sqlx.Open(d.driver, d.dsn)
		if err != nil {
			d.err = fmt.Errorf("open %s: %w", d.driver, err)
			return
		}
		if d.driver == "sqlite" {
			db.SetMaxOpenConns(1)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			d.err = fmt.Errorf("ping %s: %w", d.driver, err)
			return
		}
		d.db = db
	})
	return d.db, d.err
}

// bind expands :name parameters into the driver's placeholder style.
func bind(db *sqlx.DB, query string, params map[string]any) (string, []any, error) {
	if len(params) == 0 {
		return query, nil, nil
	}
	q, args, err := sqlx.Named(query, params)
	if err != nil {
		return "", nil, fmt.Errorf("bind parameters: %w", err)
	}
	return db.Rebind(q), args, nil
}

func (d *DB) Query(ctx context.Context, query string, params map[string]any, maxRows int) (*Rows, error) {
	db, err := d.conn(ctx)
	if err != nil {
		return nil, err
	}
	q, args, err := bind(db, query, params)
	if err != nil {
		return nil, err
	}

	// Reads run in a read-only transaction that is never committed.
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryxContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := &Rows{Columns: cols, Rows: []map[string]any{}}
	for rows.Next() {
		if maxRows > 0 && len(out.Rows) >= maxRows {
			out.Truncated = true
			break
		}
		row := make(map[string]any, len(cols))
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return out, rows.Err()
}

// Exec runs a write inside a transaction and rolls it back when more than
// maxAffected rows would change.
func (d *DB) Exec(ctx context.Context, query string, params map[string]any, maxAffected int64) (int64, error) {
	db, err := d.conn(ctx)
	if err != nil {
		return 0, err
	}
	q, args, err := bind(db, query, params)
	if err != nil {
		return 0, err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	if maxAffected > 0 && n > maxAffected {
		tx.Rollback()
		return n, fmt.Errorf("%w: %d (max %d), rolled back", ErrTooManyRows, n, maxAffected)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// Validate prepares the statement without executing it.
func (d *DB) Validate(ctx context.Context, query string, params map[string]any) error {
	db, err := d.conn(ctx)
	if err != nil {
		return err
	}
	q, _, err := bind(db, query, params)
	if err != nil {
		return err
	}
	stmt, err := db.PreparexContext(ctx, q)
	if err != nil {
		return err
	}
	return stmt.Close()
}

func (d *DB) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}
