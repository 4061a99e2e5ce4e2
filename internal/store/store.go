package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"
)

const schemaSQL = `CREATE TABLE IF NOT EXISTS expenses (
	id INTEGER PRIMARY KEY,
	amount REAL NOT NULL,
	category TEXT NOT NULL,
	record_time DATETIME NOT NULL,
	currency TEXT NOT NULL,
	description TEXT NOT NULL
)`

// Expense is one recorded transaction. Amount is negative for expenses and
// positive for income.
type Expense struct {
	ID          int64
	Amount      float64
	Category    string
	RecordTime  string
	Currency    string
	Description string
}

// SchemaInitError reports that the expenses table could not be created for a
// conversation. Callers decide whether to retry or abort.
type SchemaInitError struct {
	ConversationID int64
	Err            error
}

func (e *SchemaInitError) Error() string {
	return fmt.Sprintf("init schema for conversation %d: %v", e.ConversationID, e.Err)
}

func (e *SchemaInitError) Unwrap() error { return e.Err }

// Store maps conversation IDs to dedicated SQLite database files under dir.
// Every operation opens and closes its own connection; concurrent writers for
// the same conversation rely on SQLite's own locking.
type Store struct {
	dir string
}

func New(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) dbPath(conversationID int64) string {
	return filepath.Join(s.dir, strconv.FormatInt(conversationID, 10))
}

func (s *Store) open(conversationID int64) (*sql.DB, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", s.dbPath(conversationID))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite pragma: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the expenses table if it does not exist. Re-creation
// is a no-op and existing rows are preserved.
func (s *Store) EnsureSchema(conversationID int64) error {
	db, err := s.open(conversationID)
	if err != nil {
		return &SchemaInitError{ConversationID: conversationID, Err: err}
	}
	defer db.Close()

	if _, err := db.Exec(schemaSQL); err != nil {
		return &SchemaInitError{ConversationID: conversationID, Err: err}
	}
	return nil
}

// LastRecord returns the most recently inserted expense for a conversation,
// or nil when the table is empty.
func (s *Store) LastRecord(conversationID int64) (*Expense, error) {
	db, err := s.open(conversationID)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	row := db.QueryRow(`
		SELECT id, amount, category, record_time, currency, description
		FROM expenses
		ORDER BY id DESC
		LIMIT 1
	`)
	var rec Expense
	if err := row.Scan(&rec.ID, &rec.Amount, &rec.Category, &rec.RecordTime, &rec.Currency, &rec.Description); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan last record: %w", err)
	}
	return &rec, nil
}

// Execute runs a model-generated statement against the conversation's
// database and captures the outcome as text. Execution failures come back as
// "Error: ..." in the returned string, never as an error value, so the answer
// stage always has something to explain.
func (s *Store) Execute(ctx context.Context, conversationID int64, query string) string {
	db, err := s.open(conversationID)
	if err != nil {
		return "Error: " + err.Error()
	}
	defer db.Close()

	if returnsRows(query) {
		rows, err := db.QueryContext(ctx, query)
		if err != nil {
			return "Error: " + err.Error()
		}
		defer rows.Close()
		return renderRows(rows)
	}

	res, err := db.ExecContext(ctx, query)
	if err != nil {
		return "Error: " + err.Error()
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%d row(s) affected", n)
}

// SchemaDescription is the table info handed to the SQL-generation prompt.
func (s *Store) SchemaDescription() string {
	return schemaSQL
}

// ListConversations returns the chat IDs that already have a database file.
func (s *Store) ListConversations() ([]int64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read store dir: %w", err)
	}

	ids := make([]int64, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		// Skips SQLite sidecar files like "123-wal" and "123-shm".
		id, err := strconv.ParseInt(entry.Name(), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func returnsRows(query string) bool {
	fields := strings.Fields(strings.ToLower(query))
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "select", "with", "pragma", "explain":
		return true
	}
	return false
}

func renderRows(rows *sql.Rows) string {
	cols, err := rows.Columns()
	if err != nil {
		return "Error: " + err.Error()
	}

	var rendered []string
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "Error: " + err.Error()
		}
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = formatValue(v)
		}
		rendered = append(rendered, "("+strings.Join(parts, ", ")+")")
	}
	if err := rows.Err(); err != nil {
		return "Error: " + err.Error()
	}
	if len(rendered) == 0 {
		return ""
	}
	return "[" + strings.Join(rendered, ", ") + "]"
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return "'" + strings.ReplaceAll(string(val), "'", "''") + "'"
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprintf("%v", val)
	}
}
