package tools

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chatforge/agentd/internal/secrets"
)

// queryTimeout bounds every tool database call.
const queryTimeout = 10 * time.Second

// Executor runs action SQL templates against saved connections. Handles
// are pooled per CacheKey and shared by all sessions of the process; the
// cache never invalidates on credential edits (known limitation).
type Executor struct {
	box *secrets.Box

	mu      sync.Mutex
	handles map[string]*sql.DB
}

// NewExecutor builds an executor that decrypts connection passwords with
// the given box.
func NewExecutor(box *secrets.Box) *Executor {
	return &Executor{box: box, handles: make(map[string]*sql.DB)}
}

// Run binds args into the template as named parameters and executes it.
// Row-returning statements yield []map[string]any; everything else yields
// a status object with the affected-row count.
func (e *Executor) Run(ctx context.Context, conn Connection, template string, args map[string]any) (any, error) {
	db, err := e.handle(conn)
	if err != nil {
		return nil, err
	}
	query, ordered, err := bindNamed(template, args, conn.Driver)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if returnsRows(template) {
		rows, err := db.QueryContext(ctx, query, ordered...)
		if err != nil {
			return nil, fmt.Errorf("query failed: %w", err)
		}
		defer rows.Close()
		return scanRows(rows)
	}

	res, err := db.ExecContext(ctx, query, ordered...)
	if err != nil {
		return nil, fmt.Errorf("statement failed: %w", err)
	}
	affected, _ := res.RowsAffected()
	return map[string]any{"status": "success", "rows_affected": affected}, nil
}

// Ping verifies connectivity for the admin "test connection" operation.
func (e *Executor) Ping(ctx context.Context, conn Connection) error {
	db, err := e.handle(conn)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return db.PingContext(ctx)
}

// Close releases all pooled handles.
func (e *Executor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key, db := range e.handles {
		_ = db.Close()
		delete(e.handles, key)
	}
}

func (e *Executor) handle(conn Connection) (*sql.DB, error) {
	key := conn.CacheKey()
	e.mu.Lock()
	defer e.mu.Unlock()
	if db, ok := e.handles[key]; ok {
		return db, nil
	}

	driver, dsn, err := e.dsn(conn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %w", conn.Driver, err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)
	e.handles[key] = db
	return db, nil
}

func (e *Executor) dsn(conn Connection) (driver, dsn string, err error) {
	switch conn.Driver {
	case "postgres":
		password, err := e.box.Decrypt(conn.EncryptedPassword)
		if err != nil {
			return "", "", fmt.Errorf("decrypt password for connection %s: %w", conn.ID, err)
		}
		ssl := conn.SSLMode
		if ssl == "" {
			ssl = "prefer"
		}
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			url.QueryEscape(conn.Username), url.QueryEscape(password),
			conn.Host, conn.Port, conn.Database, ssl)
		return "postgres", dsn, nil
	case "sqlite":
		// Local file databases carry no credentials; Database is the path.
		return "sqlite", conn.Database, nil
	default:
		return "", "", fmt.Errorf("unsupported database type: %s", conn.Driver)
	}
}

// bindNamed rewrites :name placeholders into driver placeholders and
// collects the argument values in occurrence order. Quoted literals and
// postgres :: casts are left untouched. Binding is the only way arguments
// reach the statement; values are never interpolated into the text.
func bindNamed(template string, args map[string]any, driver string) (string, []any, error) {
	var (
		out      strings.Builder
		ordered  []any
		inQuote  bool
		position int
	)
	runes := []rune(template)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		if ch == '\'' {
			inQuote = !inQuote
			out.WriteRune(ch)
			continue
		}
		if inQuote || ch != ':' {
			out.WriteRune(ch)
			continue
		}
		// '::' is a cast, not a parameter.
		if i+1 < len(runes) && runes[i+1] == ':' {
			out.WriteString("::")
			i++
			continue
		}
		start := i + 1
		end := start
		for end < len(runes) && isNameRune(runes[end], end > start) {
			end++
		}
		if end == start {
			out.WriteRune(ch)
			continue
		}
		name := string(runes[start:end])
		value, ok := args[name]
		if !ok {
			return "", nil, fmt.Errorf("missing value for parameter :%s", name)
		}
		position++
		if driver == "postgres" {
			fmt.Fprintf(&out, "$%d", position)
		} else {
			out.WriteByte('?')
		}
		ordered = append(ordered, value)
		i = end - 1
	}
	return out.String(), ordered, nil
}

func isNameRune(r rune, notFirst bool) bool {
	if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
		return true
	}
	return notFirst && r >= '0' && r <= '9'
}

// returnsRows classifies the statement by its leading keyword.
func returnsRows(template string) bool {
	head := strings.ToUpper(strings.TrimSpace(template))
	for _, kw := range []string{"SELECT", "WITH", "SHOW", "EXPLAIN", "VALUES", "PRAGMA"} {
		if strings.HasPrefix(head, kw) {
			return true
		}
	}
	return false
}

func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	out := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
