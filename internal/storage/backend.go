// Package storage is the row-store boundary of the observer gateway.
//
// The gateway only ever talks to storage through Backend's three
// primitives (select, insert, update); it never issues raw SQL. Two
// implementations share one database/sql engine: SQLite for local use
// (modernc.org/sqlite, no cgo) and Postgres for the hosted Supabase
// database (pgx stdlib driver).
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Update when no row matches.
var ErrNotFound = errors.New("row not found")

// Row is one record keyed by column name.
type Row map[string]any

// Op is a filter comparison operator.
type Op string

const (
	OpEq  Op = "eq"
	OpGte Op = "gte"
	OpLte Op = "lte"
)

// Filter restricts a read or update to rows where Column Op Value.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

// Eq is shorthand for an equality filter.
func Eq(column string, value any) Filter {
	return Filter{Column: column, Op: OpEq, Value: value}
}

// SelectQuery describes a projection read.
type SelectQuery struct {
	Table   string
	Columns []string
	Filters []Filter
	OrderBy string
	Desc    bool
	// ThenBy breaks OrderBy ties, ascending. Paged reads need a total order.
	ThenBy []string
	Limit  int
	// Offset skips rows; only applied together with Limit.
	Offset int
}

// UpdateQuery patches the row with the given id and returns Columns of
// the updated row. Filters narrow the match further (e.g. user scope).
type UpdateQuery struct {
	Table    string
	IDColumn string
	ID       string
	Patch    Row
	Filters  []Filter
	Columns  []string
}

// Backend is the opaque row store.
type Backend interface {
	Select(ctx context.Context, q SelectQuery) ([]Row, error)
	Insert(ctx context.Context, table string, row Row) (string, error)
	Update(ctx context.Context, q UpdateQuery) (Row, error)
	Close() error
}

// Drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects and configures a backend.
type Config struct {
	Driver string
	// DataDir holds the SQLite database file.
	DataDir string
	// DSN is the Postgres connection string.
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open creates the backend named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	var (
		s   *SQLStore
		err error
	)
	switch cfg.Driver {
	case DriverSQLite, "":
		s, err = OpenSQLite(ctx, cfg.DataDir)
	case DriverPostgres:
		s, err = OpenPostgres(ctx, cfg)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
