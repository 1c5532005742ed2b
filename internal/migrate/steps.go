package migrate

import (
	"context"
	"fmt"

	"github.com/roach88/convstore/internal/schema"
	"github.com/roach88/convstore/internal/store"
)

// Step names, in execution order per direction.
const (
	StepEnsureConversationsTable = "ensure_conversations_table"
	StepEnsureLinkColumn         = "ensure_link_column"
	StepBackfillConversations    = "backfill_conversations"
	StepEnforceLinkNotNull       = "enforce_link_not_null"
	StepConstrainLink            = "constrain_link"
	StepDropLegacyColumns        = "drop_legacy_columns"

	StepRestoreLegacyColumns   = "restore_legacy_columns"
	StepBackfillLegacyColumns  = "backfill_legacy_columns"
	StepEnforceLegacyNotNull   = "enforce_legacy_not_null"
	StepDropLinkColumn         = "drop_link_column"
	StepDropConversationsTable = "drop_conversations_table"
)

// step is one idempotent unit of a migration.
//
// done is evaluated on a fresh probe before apply runs (skip if true) and
// again after (the postcondition). apply receives the shape it was chosen on.
type step struct {
	name  string
	done  func(Shape) bool
	apply func(ctx context.Context, sess *store.Session, sh Shape, res *Result) error
}

func (c *Controller) forwardSteps() []step {
	b := c.backend
	return []step{
		{
			name: StepEnsureConversationsTable,
			done: func(sh Shape) bool { return sh.ConversationsTable },
			apply: func(ctx context.Context, sess *store.Session, _ Shape, _ *Result) error {
				return b.createConversations(ctx, sess)
			},
		},
		{
			name: StepEnsureLinkColumn,
			done: func(sh Shape) bool { return sh.Link.Present },
			apply: func(ctx context.Context, sess *store.Session, _ Shape, _ *Result) error {
				return b.addLink(ctx, sess)
			},
		},
		{
			name: StepBackfillConversations,
			done: func(sh Shape) bool { return sh.Link.Present && sh.UnlinkedRows == 0 },
			apply: func(ctx context.Context, sess *store.Session, sh Shape, res *Result) error {
				if !sh.LegacyPresent() {
					return fmt.Errorf("%d messages unlinked but sender_id/receiver_id are gone", sh.UnlinkedRows)
				}
				report, err := c.consolidator.Run(ctx, sess)
				if err != nil {
					return err
				}
				res.Consolidation = &report
				return nil
			},
		},
		{
			name: StepEnforceLinkNotNull,
			done: func(sh Shape) bool { return sh.Link.NotNull },
			apply: func(ctx context.Context, sess *store.Session, sh Shape, _ *Result) error {
				if sh.UnlinkedRows > 0 {
					return fmt.Errorf("%d messages have no conversation", sh.UnlinkedRows)
				}
				return b.setLinkNotNull(ctx, sess, sh)
			},
		},
		{
			name: StepConstrainLink,
			done: func(sh Shape) bool { return sh.Link.References == schema.Conversations },
			apply: func(ctx context.Context, sess *store.Session, sh Shape, _ *Result) error {
				return b.constrainLink(ctx, sess, sh)
			},
		},
		{
			name: StepDropLegacyColumns,
			done: func(sh Shape) bool { return sh.LegacyAbsent() },
			apply: func(ctx context.Context, sess *store.Session, sh Shape, _ *Result) error {
				return b.dropLegacy(ctx, sess, sh)
			},
		},
	}
}

func (c *Controller) backwardSteps() []step {
	b := c.backend
	return []step{
		{
			name: StepRestoreLegacyColumns,
			done: func(sh Shape) bool { return sh.LegacyPresent() },
			apply: func(ctx context.Context, sess *store.Session, sh Shape, _ *Result) error {
				return b.addLegacy(ctx, sess, sh)
			},
		},
		{
			name: StepBackfillLegacyColumns,
			done: func(sh Shape) bool { return sh.LegacyPresent() && sh.UnpairedRows == 0 },
			apply: func(ctx context.Context, sess *store.Session, sh Shape, res *Result) error {
				if !sh.Link.Present || !sh.ConversationsTable {
					return fmt.Errorf("%d messages unpaired but conversations are gone", sh.UnpairedRows)
				}
				lossy, err := c.backfillLegacy(ctx, sess)
				if err != nil {
					return err
				}
				res.LossyConversations = lossy
				return nil
			},
		},
		{
			name: StepEnforceLegacyNotNull,
			done: func(sh Shape) bool { return sh.LegacyNotNull() },
			apply: func(ctx context.Context, sess *store.Session, sh Shape, _ *Result) error {
				if sh.UnpairedRows > 0 {
					return fmt.Errorf("%d messages have no sender or receiver", sh.UnpairedRows)
				}
				return b.setLegacyNotNull(ctx, sess, sh)
			},
		},
		{
			name: StepDropLinkColumn,
			done: func(sh Shape) bool { return !sh.Link.Present },
			apply: func(ctx context.Context, sess *store.Session, sh Shape, _ *Result) error {
				return b.dropLink(ctx, sess, sh)
			},
		},
		{
			name: StepDropConversationsTable,
			done: func(sh Shape) bool { return !sh.ConversationsTable },
			apply: func(ctx context.Context, sess *store.Session, _ Shape, _ *Result) error {
				return b.dropConversations(ctx, sess)
			},
		},
	}
}

// backfillLegacy writes each conversation's first two participants back as
// sender/receiver of its messages. A single-participant conversation yields
// sender == receiver. Conversations with more than two participants cannot
// be represented exactly; they are counted and reported as lossy.
func (c *Controller) backfillLegacy(ctx context.Context, sess *store.Session) (int, error) {
	conversations, err := sess.ListConversations(ctx)
	if err != nil {
		return 0, err
	}

	lossy := 0
	for _, conv := range conversations {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if len(conv.Participants) == 0 {
			return 0, fmt.Errorf("conversation %s has no participants", conv.ID)
		}
		if len(conv.Participants) > 2 {
			lossy++
		}
		sender, receiver := conv.Participants.Pair()
		if _, err := sess.SetLegacyPair(ctx, conv.ID, sender, receiver); err != nil {
			return 0, err
		}
	}

	if lossy > 0 {
		c.logger.Warn("lossy reverse migration: conversations with more than two participants keep only their first two",
			"conversations", lossy,
		)
	}
	return lossy, nil
}
