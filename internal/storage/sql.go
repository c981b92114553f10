package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// dialect captures the few places SQLite and Postgres SQL differ.
type dialect struct {
	name string
	// placeholder returns the bind marker for the n-th (1-based) argument.
	placeholder func(n int) string
}

var (
	sqliteDialect   = dialect{name: DriverSQLite, placeholder: func(int) string { return "?" }}
	postgresDialect = dialect{name: DriverPostgres, placeholder: func(n int) string { return "$" + strconv.Itoa(n) }}
)

// ─── Store ───────────────────────────────────────────────────────────────────

// SQLStore implements Backend on top of database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	hooks   storeHooks
}

type storeHooks struct {
	exec  func(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error)
	query func(ctx context.Context, db *sql.DB, query string, args ...any) (*sql.Rows, error)
}

func (s *SQLStore) execHook(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if s.hooks.exec != nil {
		return s.hooks.exec(ctx, s.db, query, args...)
	}
	return s.db.ExecContext(ctx, query, args...)
}

func (s *SQLStore) queryHook(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if s.hooks.query != nil {
		return s.hooks.query(ctx, s.db, query, args...)
	}
	return s.db.QueryContext(ctx, query, args...)
}

// Driver returns the dialect name ("sqlite" or "postgres").
func (s *SQLStore) Driver() string { return s.dialect.name }

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Select runs a projection read.
func (s *SQLStore) Select(ctx context.Context, q SelectQuery) ([]Row, error) {
	if len(q.Columns) == 0 {
		return nil, fmt.Errorf("storage: select %s: no columns", q.Table)
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(quoteList(q.Columns))
	sb.WriteString(" FROM ")
	sb.WriteString(quoteIdent(q.Table))

	args := make([]any, 0, len(q.Filters)+1)
	where, args, err := s.where(q.Filters, args)
	if err != nil {
		return nil, fmt.Errorf("storage: select %s: %w", q.Table, err)
	}
	sb.WriteString(where)

	if q.OrderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(quoteIdent(q.OrderBy))
		if q.Desc {
			sb.WriteString(" DESC")
		}
		for _, c := range q.ThenBy {
			sb.WriteString(", ")
			sb.WriteString(quoteIdent(c))
		}
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sb.WriteString(" LIMIT ")
		sb.WriteString(s.dialect.placeholder(len(args)))
		if q.Offset > 0 {
			args = append(args, q.Offset)
			sb.WriteString(" OFFSET ")
			sb.WriteString(s.dialect.placeholder(len(args)))
		}
	}

	rows, err := s.queryHook(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("storage: select %s: %w", q.Table, err)
	}
	out, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("storage: select %s: %w", q.Table, err)
	}
	return out, nil
}

// Insert appends row and returns its "id" value.
func (s *SQLStore) Insert(ctx context.Context, table string, row Row) (string, error) {
	id, ok := row["id"]
	if !ok || id == nil || fmt.Sprint(id) == "" {
		return "", fmt.Errorf("storage: insert %s: row has no id", table)
	}

	cols := sortedKeys(row)
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		marks[i] = s.dialect.placeholder(i + 1)
		args[i] = row[c]
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), quoteList(cols), strings.Join(marks, ", "))
	if _, err := s.execHook(ctx, query, args...); err != nil {
		return "", fmt.Errorf("storage: insert %s: %w", table, err)
	}
	return fmt.Sprint(id), nil
}

// Update patches a single row and returns the requested columns of the
// updated row in the same statement.
func (s *SQLStore) Update(ctx context.Context, q UpdateQuery) (Row, error) {
	if len(q.Patch) == 0 {
		return nil, fmt.Errorf("storage: update %s: empty patch", q.Table)
	}
	if len(q.Columns) == 0 {
		return nil, fmt.Errorf("storage: update %s: no returning columns", q.Table)
	}
	idCol := q.IDColumn
	if idCol == "" {
		idCol = "id"
	}

	cols := sortedKeys(q.Patch)
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+len(q.Filters)+1)
	for i, c := range cols {
		args = append(args, q.Patch[c])
		sets[i] = quoteIdent(c) + " = " + s.dialect.placeholder(len(args))
	}

	filters := append([]Filter{Eq(idCol, q.ID)}, q.Filters...)
	where, args, err := s.where(filters, args)
	if err != nil {
		return nil, fmt.Errorf("storage: update %s: %w", q.Table, err)
	}

	query := fmt.Sprintf("UPDATE %s SET %s%s RETURNING %s",
		quoteIdent(q.Table), strings.Join(sets, ", "), where, quoteList(q.Columns))

	rows, err := s.queryHook(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: update %s: %w", q.Table, err)
	}
	out, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("storage: update %s: %w", q.Table, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("storage: update %s %s: %w", q.Table, q.ID, ErrNotFound)
	}
	return out[0], nil
}

// where renders filters as a WHERE clause, appending bind values to args.
func (s *SQLStore) where(filters []Filter, args []any) (string, []any, error) {
	if len(filters) == 0 {
		return "", args, nil
	}
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		var op string
		switch f.Op {
		case OpEq, "":
			op = "="
		case OpGte:
			op = ">="
		case OpLte:
			op = "<="
		default:
			return "", nil, fmt.Errorf("unsupported filter op %q", f.Op)
		}
		args = append(args, f.Value)
		parts = append(parts, quoteIdent(f.Column)+" "+op+" "+s.dialect.placeholder(len(args)))
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

// scanRows drains rows into Row maps and closes them.
func scanRows(rows *sql.Rows) ([]Row, error) {
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// quoteIdent double-quotes an identifier; valid in SQLite and Postgres.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

func sortedKeys(r Row) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
