// Package domain defines the records stored by convstore and the typed
// errors returned by its core operations.
//
// # Records
//
//   - Message: a chat message. Before consolidation it carries a legacy
//     sender/receiver pair; afterwards it belongs to exactly one Conversation.
//   - Conversation: a set of participants (two in the point-to-point case).
//   - Tag / Post / TagAssociation: the bounded tag-per-post association.
//
// # Errors
//
// Every error produced by the consolidator, the migration controller, and the
// cardinality guard is (or wraps) an *Error carrying a Code. Use the IsX
// helpers rather than comparing codes directly; they walk wrapped chains.
package domain
