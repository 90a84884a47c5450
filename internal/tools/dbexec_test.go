package tools

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/chatforge/agentd/internal/secrets"
)

func TestBindNamedPostgresPlaceholders(t *testing.T) {
	query, args, err := bindNamed(
		"SELECT * FROM orders WHERE id = :id AND status = :status AND total::text <> ':ignored'",
		map[string]any{"id": 42, "status": "open"},
		"postgres",
	)
	if err != nil {
		t.Fatalf("bindNamed: %v", err)
	}
	want := "SELECT * FROM orders WHERE id = $1 AND status = $2 AND total::text <> ':ignored'"
	if query != want {
		t.Fatalf("query = %q, want %q", query, want)
	}
	if !reflect.DeepEqual(args, []any{42, "open"}) {
		t.Fatalf("args = %v", args)
	}
}

func TestBindNamedSqlitePlaceholders(t *testing.T) {
	query, args, err := bindNamed(
		"UPDATE users SET name = :name WHERE id = :id",
		map[string]any{"name": "ada", "id": 7},
		"sqlite",
	)
	if err != nil {
		t.Fatalf("bindNamed: %v", err)
	}
	if query != "UPDATE users SET name = ? WHERE id = ?" {
		t.Fatalf("query = %q", query)
	}
	if !reflect.DeepEqual(args, []any{"ada", 7}) {
		t.Fatalf("args = %v", args)
	}
}

func TestBindNamedMissingArgument(t *testing.T) {
	if _, _, err := bindNamed("SELECT :a", map[string]any{}, "postgres"); err == nil {
		t.Fatalf("expected error for missing parameter")
	}
}

func TestReturnsRowsClassification(t *testing.T) {
	cases := map[string]bool{
		"SELECT 1":                          true,
		"  with x as (select 1) select *":   true,
		"INSERT INTO t VALUES (:v)":         false,
		"UPDATE t SET a = :a":               false,
		"DELETE FROM t WHERE id = :id":      false,
		"EXPLAIN SELECT * FROM t":           true,
	}
	for stmt, want := range cases {
		if got := returnsRows(stmt); got != want {
			t.Fatalf("returnsRows(%q) = %v, want %v", stmt, got, want)
		}
	}
}

func newTestExecutor(t *testing.T) (*Executor, Connection) {
	t.Helper()
	box, err := secrets.NewBox("6368616e676520746869732070617373776f726420746f206120736563726574")
	if err != nil {
		t.Fatalf("NewBox: %v", err)
	}
	exec := NewExecutor(box)
	t.Cleanup(exec.Close)
	conn := Connection{
		ID:        "c1",
		ProjectID: "p1",
		Driver:    "sqlite",
		Database:  filepath.Join(t.TempDir(), "tools.db"),
	}
	return exec, conn
}

func TestRunSelectAndExec(t *testing.T) {
	exec, conn := newTestExecutor(t)
	ctx := context.Background()

	if _, err := exec.Run(ctx, conn, "CREATE TABLE orders (id INTEGER PRIMARY KEY, status TEXT)", nil); err != nil {
		t.Fatalf("create table: %v", err)
	}

	result, err := exec.Run(ctx, conn, "INSERT INTO orders (id, status) VALUES (:id, :status)", map[string]any{"id": 1, "status": "open"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	status, ok := result.(map[string]any)
	if !ok || status["status"] != "success" || status["rows_affected"] != int64(1) {
		t.Fatalf("unexpected exec result %v", result)
	}

	rowsAny, err := exec.Run(ctx, conn, "SELECT id, status FROM orders WHERE id = :id", map[string]any{"id": 1})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	rows, ok := rowsAny.([]map[string]any)
	if !ok || len(rows) != 1 {
		t.Fatalf("unexpected select result %v", rowsAny)
	}
	if rows[0]["status"] != "open" {
		t.Fatalf("unexpected row %v", rows[0])
	}
}

func TestHandleCacheReusesConnections(t *testing.T) {
	exec, conn := newTestExecutor(t)
	first, err := exec.handle(conn)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	second, err := exec.handle(conn)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if first != second {
		t.Fatalf("expected the cached handle to be reused")
	}
}

func TestUnsupportedDriver(t *testing.T) {
	exec, conn := newTestExecutor(t)
	conn.Driver = "oracle"
	conn.Database = "other" // different cache key than the sqlite handle
	conn.Host = "db.internal"
	if _, err := exec.Run(context.Background(), conn, "SELECT 1", nil); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}
