// Package consolidate groups point-to-point messages into conversations.
//
// Every message whose conversation_id is NULL is keyed by its unordered
// (sender, receiver) pair. Each distinct pair becomes one conversation, and
// the pair's messages are linked to it.
//
// The Consolidator runs on a session supplied by the caller and never commits
// or rolls back on its own. The migration controller calls it inside the
// forward migration transaction; ConsolidateConversations wraps a standalone
// run in its own transaction.
//
// Runs are idempotent: conversation_id IS NULL is the only selection
// criterion, so a second run finds nothing to do.
package consolidate
