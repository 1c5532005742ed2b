package store

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/convstore/internal/schema"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Session is a handle for issuing statements, bound either to a transaction
// or to the pool. See the package documentation for lifecycle rules.
type Session struct {
	q      queryer
	flavor schema.Flavor
	desc   *schema.Descriptor
	clock  Clock
	ids    IDGenerator
}

// Flavor reports the SQL dialect of the session.
func (s *Session) Flavor() schema.Flavor { return s.flavor }

// Descriptor returns the schema descriptor.
func (s *Session) Descriptor() *schema.Descriptor { return s.desc }

// Now returns the current time from the store's clock.
func (s *Session) Now() time.Time { return s.clock.Now() }

// NewID returns a fresh row identifier.
func (s *Session) NewID() string { return s.ids.Generate() }

// ExecContext executes a statement written with `?` placeholders.
func (s *Session) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.q.ExecContext(ctx, rebind(s.flavor, query), args...)
}

// QueryContext runs a query written with `?` placeholders.
// Callers are responsible for closing the returned rows before issuing the
// next statement on the same session.
func (s *Session) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.q.QueryContext(ctx, rebind(s.flavor, query), args...)
}

// QueryRowContext runs a single-row query written with `?` placeholders.
func (s *Session) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return s.q.QueryRowContext(ctx, rebind(s.flavor, query), args...)
}

// rebind rewrites `?` placeholders to `$n` for PostgreSQL.
// Statements in this module never contain a literal question mark.
func rebind(f schema.Flavor, query string) string {
	if f != schema.Postgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Clock supplies timestamps for created_at/updated_at.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock in UTC.
type SystemClock struct{}

// Now returns time.Now in UTC.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// IDGenerator produces row identifiers.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 identifiers.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
