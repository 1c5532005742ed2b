package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/roach88/convstore/internal/schema"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	// Verify file was created
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
	if s.Flavor() != schema.SQLite {
		t.Errorf("Flavor() = %q, want %q", s.Flavor(), schema.SQLite)
	}
}

func TestOpen_OpensExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}
	if _, err := s1.Session().CreatePost(context.Background(), "hello"); err != nil {
		t.Fatalf("CreatePost() failed: %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer s2.Close()

	var count int
	if err := s2.db.QueryRow("SELECT COUNT(*) FROM posts").Scan(&count); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if count != 1 {
		t.Errorf("posts after reopen = %d, want 1", count)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	tables := []string{"posts", "tags", "tag_associations", "messages"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_BaselineHasNoConversations(t *testing.T) {
	s := createTestStore(t)

	var n int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='conversations'",
	).Scan(&n)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if n != 0 {
		t.Error("baseline schema should not create the conversations table")
	}

	columns := getTableColumns(t, s.db, "messages")
	for _, col := range []string{"id", "content", "is_read", "sender_id", "receiver_id", "created_at", "updated_at"} {
		if !contains(columns, col) {
			t.Errorf("messages missing column %q", col)
		}
	}
	if contains(columns, "conversation_id") {
		t.Error("baseline messages table should not have conversation_id")
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	// Try to open in non-existent directory
	path := "/nonexistent/dir/test.db"

	_, err := Open(path)
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestOpenDriver(t *testing.T) {
	ctx := context.Background()

	t.Run("sqlite", func(t *testing.T) {
		s, err := OpenDriver(ctx, "sqlite3", filepath.Join(t.TempDir(), "d.db"))
		if err != nil {
			t.Fatalf("OpenDriver() failed: %v", err)
		}
		defer s.Close()
		if s.Flavor() != schema.SQLite {
			t.Errorf("Flavor() = %q", s.Flavor())
		}
	})

	t.Run("unknown driver", func(t *testing.T) {
		if _, err := OpenDriver(ctx, "oracle", "x"); err == nil {
			t.Error("expected error for unknown driver")
		}
	})

	t.Run("empty dsn", func(t *testing.T) {
		if _, err := OpenDriver(ctx, "postgres", "  "); err == nil {
			t.Error("expected error for empty dsn")
		}
	})
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	err := s.Close()
	if err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestClose_MultipleCalls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("first Close() failed: %v", err)
	}

	// Second close should not panic
	_ = s.Close()
}

func TestDB_ReturnsUnderlyingConnection(t *testing.T) {
	s := createTestStore(t)

	db := s.DB()
	if db == nil {
		t.Fatal("DB() returned nil")
	}
	if err := db.Ping(); err != nil {
		t.Errorf("DB() connection not usable: %v", err)
	}
}

// Pragma tests

func TestPragma_JournalMode(t *testing.T) {
	s := createTestStore(t)
	if err := s.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
}

func TestPragma_Synchronous(t *testing.T) {
	s := createTestStore(t)
	// NORMAL = 1
	if err := s.verifyPragma("synchronous", "1"); err != nil {
		t.Error(err)
	}
}

func TestPragma_BusyTimeout(t *testing.T) {
	s := createTestStore(t)
	if err := s.verifyPragma("busy_timeout", "5000"); err != nil {
		t.Error(err)
	}
}

func TestPragma_ForeignKeys(t *testing.T) {
	s := createTestStore(t)
	// ON = 1
	if err := s.verifyPragma("foreign_keys", "1"); err != nil {
		t.Error(err)
	}
}

// Placeholder and DSN helpers

func TestRebind(t *testing.T) {
	tests := []struct {
		name   string
		flavor schema.Flavor
		in     string
		want   string
	}{
		{"sqlite untouched", schema.SQLite, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = ? AND b = ?"},
		{"postgres numbered", schema.Postgres, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = $1 AND b = $2"},
		{"postgres no args", schema.Postgres, "SELECT 1", "SELECT 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rebind(tt.flavor, tt.in); got != tt.want {
				t.Errorf("rebind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeDSN(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"  postgres://u:p@h/db  ", "postgres://u:p@h/db"},
		{"postgresql+asyncpg://u:p@h:5432/db", "postgresql://u:p@h:5432/db"},
		{"postgres+asyncpg://u@h/db", "postgres://u@h/db"},
		{"postgresql+pgx://u@h/db?sslmode=disable", "postgresql://u@h/db?sslmode=disable"},
	}
	for _, tt := range tests {
		if got := normalizeDSN(tt.in); got != tt.want {
			t.Errorf("normalizeDSN(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
