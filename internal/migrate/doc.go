// Package migrate moves the messages table between its point-to-point shape
// (sender_id, receiver_id) and its grouped shape (conversation_id referencing
// conversations).
//
// A Controller runs an ordered list of steps inside one serializable
// transaction. Before each step it probes the live schema into a Shape and
// skips the step if the Shape already satisfies it; after acting it probes
// again and verifies the step's postcondition. Nothing records which steps
// ran: progress is derived from the schema itself, so a run resumes from any
// partial state and a repeated run is a no-op.
//
// Any failure, including context cancellation, rolls the whole direction back
// and is returned as a TRANSACTION_ABORTED error naming the step.
//
// SQLite cannot alter column constraints in place, so NOT NULL changes,
// foreign keys and column drops rebuild the messages table
// (create, copy, drop, rename) inside the same transaction. PostgreSQL uses
// ALTER TABLE directly.
package migrate
