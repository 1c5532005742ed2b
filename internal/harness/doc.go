// Package harness runs YAML scenarios against the conversation store.
//
// A scenario seeds a point-to-point database, runs a flow of migrations and
// tag operations, and asserts on the final state. Every run uses a fresh
// in-memory SQLite database, a fixed clock and sequential IDs, so traces
// are reproducible and can be compared against golden files.
//
// # Scenario Format
//
//	name: fold_pairs
//	description: "Both directions of a pair share one conversation"
//	self_pairs: keep            # optional: keep | reject
//	max_tags_per_post: 1        # optional
//	setup:
//	  posts: [p1]
//	  messages:
//	    - {id: m1, from: alice, to: bob, content: "hi"}
//	    - {id: m2, from: bob, to: alice, content: "hey"}
//	flow:
//	  - op: migrate
//	    args: {direction: up}
//	  - op: tag
//	    args: {post: p1, tag: go}
//	  - op: send
//	    args: {reply_to: m1, content: "later", as: m3}
//	  - op: tag
//	    args: {post: p1, tag: rust}
//	    expect: {error: CARDINALITY_VIOLATION}
//	assertions:
//	  - {type: conversation_count, count: 1}
//	  - {type: same_conversation, messages: [m1, m2, m3]}
//
// # Flow Operations
//
//   - migrate: runs the forward (up) or backward (down) direction
//   - tag: attaches a tag by name through the tag guard
//   - untag: detaches a tag by name
//   - send: appends a message to the conversation of reply_to
//
// A step with expect must fail with an error whose chain carries the code.
//
// # Assertion Types
//
//   - conversation_count: number of conversations
//   - same_conversation: listed messages share one conversation
//   - distinct_conversations: no two listed messages share one
//   - participants: exact participant list of a message's conversation
//   - legacy_pair: sender and receiver of a message, in either order
//   - tag_count: number of tags on a post
//   - link_state: state of messages.conversation_id
package harness
