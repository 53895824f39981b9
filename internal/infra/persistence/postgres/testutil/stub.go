// Package testutil provides an in-process database/sql driver that
// understands the handful of statements the postgres store issues, so the
// store can be exercised without a server.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
)

// StubConn is the single connection behind a stub database. Tables holds
// rows keyed by lower-cased column name; tests may seed or inspect it.
type StubConn struct {
	mu sync.Mutex

	Execs  []string
	Tables map[string][]map[string]any

	// FailExec fails pings and every exec.
	FailExec bool
	// FailTables fails inserts and selects on the named tables.
	FailTables map[string]bool
	// RowsErr is returned by the row iterator once rows are exhausted.
	RowsErr error
}

var stubSeq atomic.Int64

// NewStubDB registers a fresh driver instance and opens a sql.DB on it.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]map[string]any)}
	name := fmt.Sprintf("flowcore-pgstub-%d", stubSeq.Add(1))
	sql.Register(name, stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct{ conn *StubConn }

func (d stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

var errNoPrepare = errors.New("pgstub: prepared statements are not supported")

// Prepare implements driver.Conn. The store only uses direct exec and query.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, errNoPrepare }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return nil, errors.New("pgstub: transactions are not supported")
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailExec {
		return errors.New("pgstub: ping failed")
	}
	return nil
}

var (
	insertRe = regexp.MustCompile(`(?is)^insert\s+into\s+(\w+)\s*\(([^)]*)\)`)
	deleteRe = regexp.MustCompile(`(?is)^delete\s+from\s+(\w+)\s+where\s+(\w+)\s*=`)
	selectRe = regexp.MustCompile(`(?is)^select\s+(.+?)\s+from\s+(\w+)`)
)

// ExecContext implements driver.ExecerContext for CREATE TABLE, INSERT
// (with ON CONFLICT upsert on the first column) and DELETE ... WHERE col = $1.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	query = strings.TrimSpace(query)
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, errors.New("pgstub: exec failed")
	}
	if m := insertRe.FindStringSubmatch(query); m != nil {
		return c.insert(strings.ToLower(m[1]), columns(m[2]), args, strings.Contains(strings.ToUpper(query), "ON CONFLICT"))
	}
	if m := deleteRe.FindStringSubmatch(query); m != nil {
		if len(args) == 0 {
			return nil, fmt.Errorf("pgstub: delete from %s without argument", m[1])
		}
		return c.remove(strings.ToLower(m[1]), strings.ToLower(m[2]), args[0].Value), nil
	}
	return driver.RowsAffected(0), nil
}

func (c *StubConn) insert(table string, cols []string, args []driver.NamedValue, upsert bool) (driver.Result, error) {
	if c.FailTables[table] {
		return nil, fmt.Errorf("pgstub: insert into %s failed", table)
	}
	if len(cols) != len(args) {
		return nil, fmt.Errorf("pgstub: %s: %d columns, %d arguments", table, len(cols), len(args))
	}
	row := make(map[string]any, len(cols))
	for i, col := range cols {
		row[col] = args[i].Value
	}
	if upsert {
		c.remove(table, cols[0], row[cols[0]])
	}
	c.Tables[table] = append(c.Tables[table], row)
	return driver.RowsAffected(1), nil
}

func (c *StubConn) remove(table, col string, value any) driver.Result {
	kept := c.Tables[table][:0:0]
	var n int64
	for _, row := range c.Tables[table] {
		if row[col] == value {
			n++
			continue
		}
		kept = append(kept, row)
	}
	c.Tables[table] = kept
	return driver.RowsAffected(n)
}

// QueryContext implements driver.QueryerContext for plain column selects.
func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := selectRe.FindStringSubmatch(strings.TrimSpace(query))
	if m == nil {
		return nil, fmt.Errorf("pgstub: unsupported query %q", query)
	}
	cols, table := columns(m[1]), strings.ToLower(m[2])
	if c.FailTables[table] {
		return nil, fmt.Errorf("pgstub: select from %s failed", table)
	}
	out := &stubRows{cols: cols, err: c.RowsErr}
	for _, row := range c.Tables[table] {
		vals := make([]driver.Value, len(cols))
		for i, col := range cols {
			vals[i] = row[col]
		}
		out.rows = append(out.rows, vals)
	}
	return out, nil
}

type stubRows struct {
	cols []string
	rows [][]driver.Value
	err  error
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if len(r.rows) == 0 {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[0])
	r.rows = r.rows[1:]
	return nil
}

func columns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(p)))
	}
	return out
}
