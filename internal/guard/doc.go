// Package guard enforces the per-post tag limit.
//
// Every tag association is created through a Guard. The count-then-insert
// sequence runs in a single transaction that first locks the parent post, so
// two concurrent callers can never both observe count=2 and both insert a
// third and fourth tag:
//
//   - PostgreSQL: SELECT ... FOR UPDATE on the posts row serializes callers
//     per post.
//   - SQLite: transactions begin IMMEDIATE over a single connection, which
//     serializes all writers database-wide.
//
// Rejections are typed: a full post yields CARDINALITY_VIOLATION, a repeated
// (post, tag) pair yields UNIQUENESS_VIOLATION. Neither touches storage.
package guard
