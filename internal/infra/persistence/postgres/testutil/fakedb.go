// Package testutil provides an in-memory database/sql driver that understands
// the statements the postgres song store issues: CREATE (ignored), TRUNCATE,
// upserting INSERT and SELECT with an optional ORDER BY.
package testutil

import (
	"cmp"
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync/atomic"
)

// Row is a stored row keyed by lower-case column name.
type Row map[string]driver.Value

// Conn is the fake connection shared by every handle of its sql.DB.
type Conn struct {
	// Statements lists every ExecContext query in order.
	Statements []string
	// Tables holds rows per table in insertion order.
	Tables map[string][]Row

	FailExec   bool // also fails Ping
	FailBegin  bool
	FailCommit bool
	FailTables map[string]bool
	RowsErr    error
}

var driverSeq atomic.Int64

// NewDB registers a fresh driver and returns a sql.DB backed by its Conn.
func NewDB() (*sql.DB, *Conn) {
	conn := &Conn{Tables: make(map[string][]Row)}
	name := fmt.Sprintf("songsfake%d", driverSeq.Add(1))
	sql.Register(name, fakeDriver{conn: conn})
	db, err := sql.Open(name, "")
	if err != nil {
		panic(err)
	}
	return db, conn
}

// Seed appends rows to table as-is, bypassing conflict handling.
func (c *Conn) Seed(table string, rows ...Row) {
	c.Tables[table] = append(c.Tables[table], rows...)
}

type fakeDriver struct{ conn *Conn }

func (d fakeDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

// Prepare implements driver.Conn. Every statement goes through the context
// fast paths, so prepared statements are never needed.
func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported: %s", query)
}

// Close implements driver.Conn.
func (c *Conn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *Conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// BeginTx implements driver.ConnBeginTx.
func (c *Conn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, errors.New("begin fail")
	}
	return fakeTx{conn: c}, nil
}

// Ping implements driver.Pinger.
func (c *Conn) Ping(context.Context) error {
	if c.FailExec {
		return errors.New("ping fail")
	}
	return nil
}

// ExecContext implements driver.ExecerContext.
func (c *Conn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Statements = append(c.Statements, query)
	if c.FailExec {
		return nil, errors.New("exec fail")
	}
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return nil, errors.New("empty statement")
	}
	switch strings.ToUpper(fields[0]) {
	case "TRUNCATE":
		table := wordAfter(fields, "TABLE")
		n := len(c.Tables[table])
		delete(c.Tables, table)
		return driver.RowsAffected(n), nil
	case "INSERT":
		return c.insert(query, fields, args)
	default:
		return driver.RowsAffected(0), nil
	}
}

func (c *Conn) insert(query string, fields []string, args []driver.NamedValue) (driver.Result, error) {
	table := wordAfter(fields, "INTO")
	if c.FailTables[table] {
		return nil, fmt.Errorf("insert fail for %s", table)
	}
	cols := columnList(query)
	if len(cols) == 0 || len(cols) != len(args) {
		return nil, fmt.Errorf("insert into %s: %d columns for %d args", table, len(cols), len(args))
	}
	row := make(Row, len(cols))
	for i, col := range cols {
		row[col] = args[i].Value
	}
	up := strings.ToUpper(query)
	if at := strings.Index(up, "ON CONFLICT"); at >= 0 {
		key := cols[0]
		if conflict := columnList(query[at:]); len(conflict) > 0 {
			key = conflict[0]
		}
		rows := c.Tables[table]
		if i := slices.IndexFunc(rows, func(r Row) bool { return r[key] == row[key] }); i >= 0 {
			if strings.Contains(up[at:], "DO NOTHING") {
				return driver.RowsAffected(0), nil
			}
			rows[i] = row
			return driver.RowsAffected(1), nil
		}
	}
	c.Tables[table] = append(c.Tables[table], row)
	return driver.RowsAffected(1), nil
}

// QueryContext implements driver.QueryerContext.
func (c *Conn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	fields := strings.Fields(query)
	if len(fields) == 0 || !strings.EqualFold(fields[0], "SELECT") {
		return nil, fmt.Errorf("unsupported query: %s", query)
	}
	up := strings.ToUpper(query)
	from := strings.Index(up, " FROM ")
	if from < 0 {
		return nil, fmt.Errorf("unsupported query: %s", query)
	}
	cols := splitColumns(query[len("SELECT "):from])
	table := wordAfter(fields, "FROM")
	if c.FailTables[table] {
		return nil, fmt.Errorf("select fail for %s", table)
	}

	rows := slices.Clone(c.Tables[table])
	if at := strings.Index(up, " ORDER BY "); at >= 0 {
		key := strings.ToLower(strings.Fields(query[at+len(" ORDER BY "):])[0])
		slices.SortStableFunc(rows, func(a, b Row) int { return compareValues(a[key], b[key]) })
	}
	out := &fakeRows{cols: cols, err: c.RowsErr}
	for _, row := range rows {
		vals := make([]driver.Value, len(cols))
		for i, col := range cols {
			vals[i] = row[col]
		}
		out.rows = append(out.rows, vals)
	}
	return out, nil
}

func compareValues(a, b driver.Value) int {
	ai, aok := a.(int64)
	bi, bok := b.(int64)
	if aok && bok {
		return cmp.Compare(ai, bi)
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// wordAfter returns the lower-cased identifier following keyword.
func wordAfter(fields []string, keyword string) string {
	for i, f := range fields[:len(fields)-1] {
		if strings.EqualFold(f, keyword) {
			name, _, _ := strings.Cut(fields[i+1], "(")
			return strings.ToLower(strings.TrimRight(name, ";"))
		}
	}
	return ""
}

// columnList parses the first parenthesised identifier list in s.
func columnList(s string) []string {
	open := strings.Index(s, "(")
	end := strings.Index(s, ")")
	if open < 0 || end <= open {
		return nil
	}
	return splitColumns(s[open+1 : end])
}

func splitColumns(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		out = append(out, strings.ToLower(strings.TrimSpace(part)))
	}
	return out
}

type fakeTx struct{ conn *Conn }

func (t fakeTx) Commit() error {
	if t.conn.FailCommit {
		return errors.New("commit fail")
	}
	return nil
}

func (fakeTx) Rollback() error { return nil }

type fakeRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
	err  error
}

func (r *fakeRows) Columns() []string { return r.cols }
func (r *fakeRows) Close() error      { return nil }

func (r *fakeRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}
