package consolidate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/convstore/internal/domain"
	"github.com/roach88/convstore/internal/store"
)

// StepName identifies consolidation in errors and logs.
const StepName = "backfill_conversations"

// SelfPairPolicy decides what happens to messages a participant sent to themselves.
type SelfPairPolicy string

const (
	// SelfPairKeep folds self messages into a single-participant conversation.
	SelfPairKeep SelfPairPolicy = "keep"

	// SelfPairReject fails the run with an INVALID_PARTICIPANTS error.
	SelfPairReject SelfPairPolicy = "reject"
)

// ParseSelfPairPolicy parses a policy name. Empty selects SelfPairKeep.
func ParseSelfPairPolicy(s string) (SelfPairPolicy, error) {
	switch SelfPairPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", SelfPairKeep:
		return SelfPairKeep, nil
	case SelfPairReject:
		return SelfPairReject, nil
	default:
		return "", fmt.Errorf("unknown self-pair policy %q (want keep or reject)", s)
	}
}

// Options configures a Consolidator.
type Options struct {
	// SelfPairs is the self-pair policy. Zero value is SelfPairKeep.
	SelfPairs SelfPairPolicy

	// Logger receives progress records. Nil uses slog.Default().
	Logger *slog.Logger
}

// Report summarizes one consolidation run.
type Report struct {
	Groups               int   `json:"groups"`
	ConversationsCreated int   `json:"conversations_created"`
	MessagesAssigned     int64 `json:"messages_assigned"`
	SelfPairs            int   `json:"self_pairs"`
}

// Consolidator links unlinked messages to per-pair conversations.
type Consolidator struct {
	selfPairs SelfPairPolicy
	logger    *slog.Logger
}

// New creates a Consolidator.
func New(opts Options) *Consolidator {
	c := &Consolidator{
		selfPairs: opts.SelfPairs,
		logger:    opts.Logger,
	}
	if c.selfPairs == "" {
		c.selfPairs = SelfPairKeep
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// group is the set of unlinked messages sharing one pair key.
type group struct {
	key      string
	first    domain.LegacyMessage
	earliest time.Time
	latest   time.Time
	size     int64
}

// Run consolidates every unlinked message visible to s.
//
// Groups are processed in the order their earliest message was written. For
// each group one conversation is inserted, with the earliest message's
// (sender, receiver) as participants, and the group's messages are linked to
// it. The number of linked rows must equal the group size; anything else is
// an IDEMPOTENCY_VIOLATION.
//
// Any error leaves the enclosing transaction to the caller to roll back.
func (c *Consolidator) Run(ctx context.Context, s *store.Session) (Report, error) {
	var report Report

	messages, err := s.UnlinkedMessages(ctx)
	if err != nil {
		return report, fmt.Errorf("%s: %w", StepName, err)
	}

	groups, err := groupByPair(messages)
	if err != nil {
		return report, err
	}
	report.Groups = len(groups)

	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("%s: %w", StepName, err)
		}

		sender, receiver := g.first.SenderID, g.first.ReceiverID
		participants, err := domain.NewParticipants(sender, receiver)
		if err != nil {
			return report, err
		}

		if len(participants) == 1 {
			if c.selfPairs == SelfPairReject {
				return report, domain.NewInvalidParticipantsError(fmt.Sprintf(
					"participant %s messaged themselves (%d messages) and self pairs are rejected",
					participants[0], g.size))
			}
			report.SelfPairs++
		}

		conv, err := s.InsertConversation(ctx, domain.Conversation{
			Participants: participants,
			CreatedAt:    g.earliest,
			UpdatedAt:    g.latest,
		})
		if err != nil {
			return report, fmt.Errorf("%s: %w", StepName, err)
		}
		report.ConversationsCreated++

		n, err := s.AssignConversation(ctx, conv.ID, sender, receiver)
		if err != nil {
			return report, fmt.Errorf("%s: %w", StepName, err)
		}
		if n != g.size {
			return report, domain.NewIdempotencyError(StepName, fmt.Sprintf(
				"conversation %s: linked %d messages, expected %d", conv.ID, n, g.size))
		}
		report.MessagesAssigned += n

		c.logger.Debug("conversation created",
			"conversation_id", conv.ID,
			"participants", len(participants),
			"messages", n,
		)
	}

	c.logger.Info("consolidation complete",
		"groups", report.Groups,
		"conversations", report.ConversationsCreated,
		"messages", report.MessagesAssigned,
		"self_pairs", report.SelfPairs,
	)
	return report, nil
}

// groupByPair buckets messages by pair key, preserving first-seen order.
// messages must be ordered by (created_at, id).
//
// Identifiers are compared byte for byte, here and in AssignConversation, so
// an identifier with surrounding whitespace is rejected rather than trimmed.
func groupByPair(messages []domain.LegacyMessage) ([]*group, error) {
	index := make(map[string]*group)
	var groups []*group

	for _, m := range messages {
		if strings.TrimSpace(m.SenderID) == "" || strings.TrimSpace(m.ReceiverID) == "" {
			return nil, domain.NewInvalidParticipantsError(
				fmt.Sprintf("message %s is missing a sender or receiver", m.ID))
		}
		for _, id := range []string{m.SenderID, m.ReceiverID} {
			if strings.TrimSpace(id) != id {
				return nil, domain.NewInvalidParticipantsError(
					fmt.Sprintf("message %s: participant %q has surrounding whitespace", m.ID, id))
			}
		}

		key := PairKey(m.SenderID, m.ReceiverID)
		g, ok := index[key]
		if !ok {
			g = &group{key: key, first: m, earliest: m.CreatedAt, latest: m.UpdatedAt}
			index[key] = g
			groups = append(groups, g)
		}
		if m.CreatedAt.Before(g.earliest) {
			g.earliest = m.CreatedAt
		}
		if m.UpdatedAt.After(g.latest) {
			g.latest = m.UpdatedAt
		}
		g.size++
	}
	return groups, nil
}

// ConsolidateConversations runs a Consolidator in its own transaction.
// The messages table must already have its conversation_id column.
func ConsolidateConversations(ctx context.Context, st *store.Store, opts Options) (Report, error) {
	var report Report
	err := st.WithTx(ctx, func(s *store.Session) error {
		r, err := New(opts).Run(ctx, s)
		report = r
		return err
	})
	if err != nil {
		return Report{}, err
	}
	return report, nil
}
