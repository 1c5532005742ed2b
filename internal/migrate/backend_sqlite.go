package migrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/convstore/internal/schema"
	"github.com/roach88/convstore/internal/store"
)

// rebuildTable is the scratch name used while the messages table is rebuilt.
const rebuildTable = "messages_rebuild"

type sqliteBackend struct{}

func (sqliteBackend) tableExists(ctx context.Context, sess *store.Session, table string) (bool, error) {
	var n int
	err := sess.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?
	`, table).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (sqliteBackend) columns(ctx context.Context, sess *store.Session, table string) (map[string]ColumnInfo, error) {
	rows, err := sess.QueryContext(ctx, `SELECT name, "notnull" FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("table info: %w", err)
	}
	cols := make(map[string]ColumnInfo)
	for rows.Next() {
		var name string
		var notNull int
		if err := rows.Scan(&name, &notNull); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan table info: %w", err)
		}
		cols[schema.Ident(name)] = ColumnInfo{Present: true, NotNull: notNull == 1}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate table info: %w", err)
	}
	rows.Close()

	fks, err := sess.QueryContext(ctx, `SELECT "from", "table" FROM pragma_foreign_key_list(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("foreign key list: %w", err)
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

func (sqliteBackend) createConversations(ctx context.Context, sess *store.Session) error {
	t := sess.Descriptor().MustTable(schema.Conversations)
	return execAll(ctx, sess, t.CreateSQL(schema.SQLite, schema.RenderOptions{IfNotExists: true}))
}

func (sqliteBackend) dropConversations(ctx context.Context, sess *store.Session) error {
	return execAll(ctx, sess, "DROP TABLE IF EXISTS conversations")
}

func (sqliteBackend) addLink(ctx context.Context, sess *store.Session) error {
	return execAll(ctx, sess, "ALTER TABLE messages ADD COLUMN "+nullableColumn(sess, schema.ColConversation))
}

func (b sqliteBackend) setLinkNotNull(ctx context.Context, sess *store.Session, sh Shape) error {
	l := layoutOf(sh)
	l.linkNotNull = true
	return b.rebuild(ctx, sess, l)
}

func (b sqliteBackend) constrainLink(ctx context.Context, sess *store.Session, sh Shape) error {
	l := layoutOf(sh)
	l.linkRef = true
	return b.rebuild(ctx, sess, l)
}

func (b sqliteBackend) dropLink(ctx context.Context, sess *store.Session, sh Shape) error {
	l := layoutOf(sh)
	l.link = false
	return b.rebuild(ctx, sess, l)
}

func (sqliteBackend) addLegacy(ctx context.Context, sess *store.Session, sh Shape) error {
	var stmts []string
	if !sh.Sender.Present {
		stmts = append(stmts, "ALTER TABLE messages ADD COLUMN "+nullableColumn(sess, schema.ColSender))
	}
	if !sh.Receiver.Present {
		stmts = append(stmts, "ALTER TABLE messages ADD COLUMN "+nullableColumn(sess, schema.ColReceiver))
	}
	return execAll(ctx, sess, stmts...)
}

func (b sqliteBackend) setLegacyNotNull(ctx context.Context, sess *store.Session, sh Shape) error {
	l := layoutOf(sh)
	l.legacyNotNull = true
	return b.rebuild(ctx, sess, l)
}

func (b sqliteBackend) dropLegacy(ctx context.Context, sess *store.Session, sh Shape) error {
	l := layoutOf(sh)
	l.legacy = false
	return b.rebuild(ctx, sess, l)
}

// layout is the target shape of a messages table rebuild.
type layout struct {
	legacy        bool
	legacyNotNull bool
	link          bool
	linkNotNull   bool
	linkRef       bool
}

func layoutOf(sh Shape) layout {
	return layout{
		legacy:        sh.LegacyPresent(),
		legacyNotNull: sh.LegacyNotNull(),
		link:          sh.Link.Present,
		linkNotNull:   sh.Link.NotNull,
		linkRef:       sh.Link.References == schema.Conversations,
	}
}

// rebuild recreates messages with layout l and copies every row across.
// The new table's columns must be a subset of the current ones.
func (sqliteBackend) rebuild(ctx context.Context, sess *store.Session, l layout) error {
	var phases []schema.Phase
	if l.legacy {
		phases = append(phases, schema.PhaseLegacy)
	}
	if l.link {
		phases = append(phases, schema.PhaseGrouped)
	}
	t := sess.Descriptor().MustTable(schema.Messages).WithPhases(phases...)

	create := t.CreateSQL(schema.SQLite, schema.RenderOptions{
		Name: rebuildTable,
		Overrides: map[string]schema.ColumnOverride{
			schema.ColSender:       {Nullable: !l.legacyNotNull},
			schema.ColReceiver:     {Nullable: !l.legacyNotNull},
			schema.ColConversation: {Nullable: !l.linkNotNull, NoReference: !l.linkRef},
		},
	})
	cols := strings.Join(t.ColumnNames(), ", ")

	err := execAll(ctx, sess,
		"DROP TABLE IF EXISTS "+rebuildTable,
		create,
		fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM messages", rebuildTable, cols, cols),
		"DROP TABLE messages",
		"ALTER TABLE "+rebuildTable+" RENAME TO messages",
	)
	if err != nil {
		return fmt.Errorf("rebuild messages: %w", err)
	}
	return nil
}
