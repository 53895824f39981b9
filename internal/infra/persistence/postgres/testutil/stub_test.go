package testutil

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
)

func TestStubDBUpsertSelectDelete(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()

	if err := conn.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if _, err := conn.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS entities (key TEXT PRIMARY KEY)", nil); err != nil {
		t.Fatalf("create: %v", err)
	}

	insert := "INSERT INTO entities (key, kind, payload) VALUES ($1,$2,$3) ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload"
	for _, payload := range []string{`{"v":1}`, `{"v":2}`} {
		if _, err := conn.ExecContext(ctx, insert, []driver.NamedValue{{Value: "job/JOB_1"}, {Value: "job"}, {Value: payload}}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if len(conn.Tables["entities"]) != 1 {
		t.Fatalf("expected upsert to keep one row, got %v", conn.Tables["entities"])
	}
	if len(conn.Execs) != 3 {
		t.Fatalf("execs = %v", conn.Execs)
	}

	rows, err := conn.QueryContext(ctx, "SELECT kind, payload FROM entities", nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	dest := make([]driver.Value, 2)
	if err := rows.Next(dest); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if dest[0] != "job" || dest[1] != `{"v":2}` {
		t.Fatalf("unexpected row values: %v", dest)
	}
	_ = rows.Close()

	res, err := conn.ExecContext(ctx, "DELETE FROM entities WHERE key = $1", []driver.NamedValue{{Value: "job/JOB_1"}})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n, _ := res.RowsAffected(); n != 1 || len(conn.Tables["entities"]) != 0 {
		t.Fatalf("delete affected %d, rows left %v", n, conn.Tables["entities"])
	}
}

func TestStubDBFailures(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()
	conn.FailTables = map[string]bool{"entities": true}
	if _, err := conn.QueryContext(ctx, "SELECT id FROM entities", nil); err == nil {
		t.Fatalf("expected select failure")
	}
	if _, err := conn.ExecContext(ctx, "INSERT INTO entities (id) VALUES ($1)", []driver.NamedValue{{Value: "x"}}); err == nil {
		t.Fatalf("expected insert failure")
	}
	if _, err := conn.QueryContext(ctx, "UPDATE entities SET id = 1", nil); err == nil {
		t.Fatalf("expected unsupported query error")
	}

	conn.FailTables = nil
	conn.RowsErr = errors.New("iteration broke")
	rows, err := conn.QueryContext(ctx, "SELECT id FROM entities", nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if err := rows.Next(make([]driver.Value, 1)); !errors.Is(err, conn.RowsErr) {
		t.Fatalf("Next err = %v", err)
	}

	conn.FailExec = true
	if err := conn.Ping(ctx); err == nil {
		t.Fatalf("expected ping failure")
	}
}
