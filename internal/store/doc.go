// Package store provides relational storage for messages, conversations,
// posts, and tags.
//
// Two flavors are supported behind one API:
//   - SQLite via github.com/mattn/go-sqlite3 (default, file-backed)
//   - PostgreSQL via github.com/jackc/pgx/v5/stdlib
//
// Queries are written with `?` placeholders and rebound per flavor by Session.
//
// # Sessions and transactions
//
// Every read and write is a method on *Session. A session is either bound to
// a transaction (Store.WithTx) or to the pool in autocommit mode
// (Store.Session). Session methods never commit or roll back; the function
// passed to WithTx is the transaction boundary and any error it returns rolls
// the transaction back.
//
// # Database Configuration (SQLite)
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - _txlock=immediate: BEGIN takes the write lock, so read-then-write
//     transactions are serialized
//
// # Schema
//
// Open creates the baseline (pre-migration) schema from the descriptor in
// internal/schema. The conversation-grouped shape is produced only by the
// migration controller in internal/migrate.
package store
