package migrate

import (
	"context"
	"fmt"

	"github.com/roach88/convstore/internal/schema"
	"github.com/roach88/convstore/internal/store"
)

// linkConstraint names the conversation_id foreign key.
const linkConstraint = "messages_conversation_id_fkey"

type postgresBackend struct{}

func (postgresBackend) tableExists(ctx context.Context, sess *store.Session, table string) (bool, error) {
	var n int
	err := sess.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name = ?
	`, table).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (postgresBackend) columns(ctx context.Context, sess *store.Session, table string) (map[string]ColumnInfo, error) {
	rows, err := sess.QueryContext(ctx, `
		SELECT column_name, is_nullable FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = ?
	`, table)
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	cols := make(map[string]ColumnInfo)
	for rows.Next() {
		var name, nullable string
		if err := rows.Scan(&name, &nullable); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan column: %w", err)
		}
		cols[schema.Ident(name)] = ColumnInfo{Present: true, NotNull: nullable == "NO"}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	rows.Close()

	fks, err := sess.QueryContext(ctx, `
		SELECT kcu.column_name, ccu.table_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON kcu.constraint_name = tc.constraint_name AND kcu.table_schema = tc.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema = current_schema()
		  AND tc.table_name = ?
	`, table)
	if err != nil {
		return nil, fmt.Errorf("foreign keys: %w", err)
	}
	defer fks.Close()
	for fks.Next() {
		var from, target string
		if err := fks.Scan(&from, &target); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		from = schema.Ident(from)
		if c, ok := cols[from]; ok {
			c.References = schema.Ident(target)
			cols[from] = c
		}
	}
	if err := fks.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign keys: %w", err)
	}
	return cols, nil
}

func (postgresBackend) createConversations(ctx context.Context, sess *store.Session) error {
	t := sess.Descriptor().MustTable(schema.Conversations)
	return execAll(ctx, sess, t.CreateSQL(schema.Postgres, schema.RenderOptions{IfNotExists: true}))
}

func (postgresBackend) dropConversations(ctx context.Context, sess *store.Session) error {
	return execAll(ctx, sess, "DROP TABLE IF EXISTS conversations")
}

func (postgresBackend) addLink(ctx context.Context, sess *store.Session) error {
	return execAll(ctx, sess,
		"ALTER TABLE messages ADD COLUMN IF NOT EXISTS "+nullableColumn(sess, schema.ColConversation))
}

func (postgresBackend) setLinkNotNull(ctx context.Context, sess *store.Session, _ Shape) error {
	return execAll(ctx, sess, "ALTER TABLE messages ALTER COLUMN conversation_id SET NOT NULL")
}

func (postgresBackend) constrainLink(ctx context.Context, sess *store.Session, _ Shape) error {
	col, _ := sess.Descriptor().MustTable(schema.Messages).Column(schema.ColConversation)
	onDelete := ""
	if col.References != nil && col.References.OnDelete == "cascade" {
		onDelete = " ON DELETE CASCADE"
	}
	return execAll(ctx, sess, fmt.Sprintf(
		"ALTER TABLE messages ADD CONSTRAINT %s FOREIGN KEY (conversation_id) REFERENCES conversations(id)%s",
		linkConstraint, onDelete))
}

func (postgresBackend) dropLink(ctx context.Context, sess *store.Session, _ Shape) error {
	// Dropping the column drops its foreign key with it.
	return execAll(ctx, sess, "ALTER TABLE messages DROP COLUMN IF EXISTS conversation_id")
}

func (postgresBackend) addLegacy(ctx context.Context, sess *store.Session, _ Shape) error {
	return execAll(ctx, sess,
		"ALTER TABLE messages ADD COLUMN IF NOT EXISTS "+nullableColumn(sess, schema.ColSender),
		"ALTER TABLE messages ADD COLUMN IF NOT EXISTS "+nullableColumn(sess, schema.ColReceiver),
	)
}

func (postgresBackend) setLegacyNotNull(ctx context.Context, sess *store.Session, _ Shape) error {
	return execAll(ctx, sess, `
		ALTER TABLE messages
		ALTER COLUMN sender_id SET NOT NULL,
		ALTER COLUMN receiver_id SET NOT NULL
	`)
}

func (postgresBackend) dropLegacy(ctx context.Context, sess *store.Session, _ Shape) error {
	return execAll(ctx, sess, `
		ALTER TABLE messages
		DROP COLUMN IF EXISTS sender_id,
		DROP COLUMN IF EXISTS receiver_id
	`)
}
