package migrate

import (
	"context"

	"github.com/roach88/convstore/internal/schema"
	"github.com/roach88/convstore/internal/store"
)

// backend is the dialect-specific half of the controller: schema inspection
// and the DDL each step issues. Every method runs on the caller's session.
type backend interface {
	tableExists(ctx context.Context, sess *store.Session, table string) (bool, error)
	columns(ctx context.Context, sess *store.Session, table string) (map[string]ColumnInfo, error)

	createConversations(ctx context.Context, sess *store.Session) error
	dropConversations(ctx context.Context, sess *store.Session) error

	addLink(ctx context.Context, sess *store.Session) error
	setLinkNotNull(ctx context.Context, sess *store.Session, sh Shape) error
	constrainLink(ctx context.Context, sess *store.Session, sh Shape) error
	dropLink(ctx context.Context, sess *store.Session, sh Shape) error

	addLegacy(ctx context.Context, sess *store.Session, sh Shape) error
	setLegacyNotNull(ctx context.Context, sess *store.Session, sh Shape) error
	dropLegacy(ctx context.Context, sess *store.Session, sh Shape) error
}

func backendFor(f schema.Flavor) backend {
	if f == schema.Postgres {
		return postgresBackend{}
	}
	return sqliteBackend{}
}

// nullableColumn returns the messages column rendered for ALTER TABLE ADD
// COLUMN: nullable and without a foreign key.
func nullableColumn(sess *store.Session, name string) string {
	col, _ := sess.Descriptor().MustTable(schema.Messages).Column(name)
	col.Nullable = true
	col.References = nil
	return schema.ColumnDef(sess.Flavor(), col)
}

func execAll(ctx context.Context, sess *store.Session, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := sess.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
