package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/roach88/convstore/internal/domain"
	"github.com/roach88/convstore/internal/schema"
	"github.com/roach88/convstore/internal/testutil"
)

var schemaIfNotExists = schema.RenderOptions{IfNotExists: true}

// createTestStore creates a new file-backed store with a deterministic clock
// and ID generator.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path,
		WithClock(testutil.NewFixedClock()),
		WithIDGenerator(testutil.NewSequentialIDs("row")),
	)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// insertLegacy writes a point-to-point message and fails the test on error.
func insertLegacy(t *testing.T, s *Store, sender, receiver, content string) domain.LegacyMessage {
	t.Helper()
	m, err := s.Session().InsertLegacyMessage(context.Background(), domain.LegacyMessage{
		Content:    content,
		SenderID:   sender,
		ReceiverID: receiver,
	})
	if err != nil {
		t.Fatalf("InsertLegacyMessage() failed: %v", err)
	}
	return m
}

// addConversationColumn adds a nullable conversation_id column and the
// conversations table, the state the migration reaches after its first two steps.
func addConversationColumn(t *testing.T, s *Store) {
	t.Helper()
	stmts := []string{
		s.desc.MustTable("conversations").CreateSQL(s.flavor, schemaIfNotExists),
		"ALTER TABLE messages ADD COLUMN conversation_id TEXT",
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
}

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}
