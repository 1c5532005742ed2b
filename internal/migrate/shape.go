package migrate

import (
	"context"
	"errors"

	"github.com/roach88/convstore/internal/domain"
	"github.com/roach88/convstore/internal/schema"
	"github.com/roach88/convstore/internal/store"
)

// LinkState is the lifecycle position of messages.conversation_id.
type LinkState string

const (
	LinkAbsent      LinkState = "absent"
	LinkNullable    LinkState = "nullable-present"
	LinkBackfilled  LinkState = "backfilled"
	LinkNotNull     LinkState = "not-null"
	LinkConstrained LinkState = "constrained"
)

// ColumnInfo describes one probed column.
type ColumnInfo struct {
	Present bool `json:"present"`
	NotNull bool `json:"not_null"`
	// References is the table a foreign key on this column points at, if any.
	References string `json:"references,omitempty"`
}

// Shape is the live schema state every step decides on.
type Shape struct {
	ConversationsTable bool       `json:"conversations_table"`
	Link               ColumnInfo `json:"conversation_id"`
	Sender             ColumnInfo `json:"sender_id"`
	Receiver           ColumnInfo `json:"receiver_id"`

	// UnlinkedRows counts messages with NULL conversation_id.
	// Zero when the column is absent.
	UnlinkedRows int64 `json:"unlinked_rows"`

	// UnpairedRows counts messages with NULL sender_id or receiver_id.
	// Zero when either column is absent.
	UnpairedRows int64 `json:"unpaired_rows"`
}

// LinkState derives the conversation_id state from the shape.
func (s Shape) LinkState() LinkState {
	switch {
	case !s.Link.Present:
		return LinkAbsent
	case s.Link.NotNull && s.Link.References == schema.Conversations:
		return LinkConstrained
	case s.Link.NotNull:
		return LinkNotNull
	case s.UnlinkedRows == 0:
		return LinkBackfilled
	default:
		return LinkNullable
	}
}

// LegacyPresent reports whether both sender_id and receiver_id exist.
func (s Shape) LegacyPresent() bool {
	return s.Sender.Present && s.Receiver.Present
}

// LegacyAbsent reports whether neither sender_id nor receiver_id exists.
func (s Shape) LegacyAbsent() bool {
	return !s.Sender.Present && !s.Receiver.Present
}

// LegacyNotNull reports whether both legacy columns are NOT NULL.
func (s Shape) LegacyNotNull() bool {
	return s.Sender.NotNull && s.Receiver.NotNull
}

// Probe inspects the schema visible to sess.
// Any failed inspection query is returned as a SCHEMA_PROBE_FAILED error.
func Probe(ctx context.Context, sess *store.Session) (Shape, error) {
	return probe(ctx, sess, backendFor(sess.Flavor()))
}

func probe(ctx context.Context, sess *store.Session, b backend) (Shape, error) {
	var sh Shape

	ok, err := b.tableExists(ctx, sess, schema.Conversations)
	if err != nil {
		return Shape{}, domain.NewProbeError("conversations table", err)
	}
	sh.ConversationsTable = ok

	cols, err := b.columns(ctx, sess, schema.Messages)
	if err != nil {
		return Shape{}, domain.NewProbeError("messages columns", err)
	}
	if len(cols) == 0 {
		return Shape{}, domain.NewProbeError("messages columns", errors.New("messages table not found"))
	}
	sh.Link = cols[schema.ColConversation]
	sh.Sender = cols[schema.ColSender]
	sh.Receiver = cols[schema.ColReceiver]

	if sh.Link.Present {
		if sh.UnlinkedRows, err = sess.CountUnlinked(ctx); err != nil {
			return Shape{}, domain.NewProbeError("unlinked rows", err)
		}
	}
	if sh.LegacyPresent() {
		if sh.UnpairedRows, err = sess.CountUnpaired(ctx); err != nil {
			return Shape{}, domain.NewProbeError("unpaired rows", err)
		}
	}
	return sh, nil
}
