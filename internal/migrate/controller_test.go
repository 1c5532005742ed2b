package migrate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/convstore/internal/consolidate"
	"github.com/roach88/convstore/internal/domain"
	"github.com/roach88/convstore/internal/schema"
	"github.com/roach88/convstore/internal/store"
	"github.com/roach88/convstore/internal/testutil"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

var allForward = []string{
	StepEnsureConversationsTable,
	StepEnsureLinkColumn,
	StepBackfillConversations,
	StepEnforceLinkNotNull,
	StepConstrainLink,
	StepDropLegacyColumns,
}

var allBackward = []string{
	StepRestoreLegacyColumns,
	StepBackfillLegacyColumns,
	StepEnforceLegacyNotNull,
	StepDropLinkColumn,
	StepDropConversationsTable,
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "m.db"),
		store.WithClock(testutil.NewFixedClock()),
		store.WithIDGenerator(testutil.NewSequentialIDs("id")),
	)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func send(t *testing.T, st *store.Store, from, to string) domain.LegacyMessage {
	t.Helper()
	m, err := st.Session().InsertLegacyMessage(context.Background(), domain.LegacyMessage{
		Content:    from + "->" + to,
		SenderID:   from,
		ReceiverID: to,
	})
	require.NoError(t, err)
	return m
}

func probeNow(t *testing.T, st *store.Store) Shape {
	t.Helper()
	sh, err := Probe(context.Background(), st.Session())
	require.NoError(t, err)
	return sh
}

func TestProbe_Baseline(t *testing.T) {
	st := openStore(t)
	sh := probeNow(t, st)

	assert.False(t, sh.ConversationsTable)
	assert.Equal(t, LinkAbsent, sh.LinkState())
	assert.True(t, sh.LegacyPresent())
	assert.True(t, sh.LegacyNotNull())
	assert.Zero(t, sh.UnpairedRows)
}

func TestProbe_MissingMessagesTable(t *testing.T) {
	st := openStore(t)
	_, err := st.DB().Exec("DROP TABLE messages")
	require.NoError(t, err)

	_, err = Probe(context.Background(), st.Session())
	require.Error(t, err)
	assert.True(t, domain.IsProbeFailure(err))
}

func TestForward_FromBaseline(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()

	m1 := send(t, st, "alice", "bob")
	m2 := send(t, st, "bob", "alice")
	m3 := send(t, st, "alice", "carol")

	res, err := New(st, WithLogger(discard)).Forward(ctx)
	require.NoError(t, err)
	assert.Equal(t, Forward, res.Direction)
	assert.Equal(t, allForward, res.Applied)
	assert.Empty(t, res.Skipped)
	require.NotNil(t, res.Consolidation)
	assert.Equal(t, 2, res.Consolidation.ConversationsCreated)
	assert.Equal(t, int64(3), res.Consolidation.MessagesAssigned)

	assert.Equal(t, LinkConstrained, res.Final.LinkState())
	assert.True(t, res.Final.LegacyAbsent())
	assert.True(t, res.Final.ConversationsTable)

	sess := st.Session()
	c1, err := sess.ConversationForMessage(ctx, m1.ID)
	require.NoError(t, err)
	c2, err := sess.ConversationForMessage(ctx, m2.ID)
	require.NoError(t, err)
	c3, err := sess.ConversationForMessage(ctx, m3.ID)
	require.NoError(t, err)
	assert.Equal(t, c1.ID, c2.ID)
	assert.NotEqual(t, c1.ID, c3.ID)
	assert.Equal(t, domain.Participants{"alice", "bob"}, c1.Participants)
	assert.Equal(t, domain.Participants{"alice", "carol"}, c3.Participants)

	// The grouped shape is live: new messages go through conversation_id.
	msg, err := sess.InsertMessage(ctx, c3.ID, "hello again")
	require.NoError(t, err)
	msgs, err := sess.ListMessages(ctx, c3.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, msg.ID, msgs[1].ID)

	_, err = sess.InsertMessage(ctx, "no-such-conversation", "x")
	assert.True(t, domain.IsNotFound(err), "foreign key should reject unknown conversation: %v", err)
}

func TestForward_Idempotent(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	send(t, st, "alice", "bob")

	c := New(st, WithLogger(discard))
	_, err := c.Forward(ctx)
	require.NoError(t, err)

	before, err := st.Session().ConversationAssignments(ctx)
	require.NoError(t, err)

	res, err := c.Forward(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Applied)
	assert.Equal(t, allForward, res.Skipped)
	assert.Nil(t, res.Consolidation)

	after, err := st.Session().ConversationAssignments(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestForward_EmptyTable(t *testing.T) {
	st := openStore(t)

	res, err := New(st, WithLogger(discard)).Forward(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{StepBackfillConversations}, res.Skipped)
	assert.Equal(t, LinkConstrained, res.Final.LinkState())
}

func TestForward_ResumesFromPartialState(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	send(t, st, "alice", "bob")
	send(t, st, "carol", "alice")

	// A previous tool already created the table and the nullable column.
	conv := st.Descriptor().MustTable(schema.Conversations)
	for _, stmt := range []string{
		conv.CreateSQL(schema.SQLite, schema.RenderOptions{}),
		"ALTER TABLE messages ADD COLUMN conversation_id TEXT",
	} {
		_, err := st.DB().Exec(stmt)
		require.NoError(t, err)
	}
	assert.Equal(t, LinkNullable, probeNow(t, st).LinkState())

	res, err := New(st, WithLogger(discard)).Forward(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{StepEnsureConversationsTable, StepEnsureLinkColumn}, res.Skipped)
	assert.Equal(t, allForward[2:], res.Applied)
	assert.Equal(t, 2, res.Consolidation.ConversationsCreated)
}

func TestForward_FailureRollsBackEverything(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	send(t, st, "alice", "bob")
	send(t, st, "dave", "dave")

	before := probeNow(t, st)

	c := New(st,
		WithLogger(discard),
		WithConsolidateOptions(consolidate.Options{SelfPairs: consolidate.SelfPairReject}),
	)
	_, err := c.Forward(ctx)
	require.Error(t, err)
	assert.True(t, domain.IsTransactionAbort(err))
	assert.True(t, domain.IsInvalidParticipants(err), "original cause must survive: %v", err)

	var de *domain.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, StepBackfillConversations, de.Step)

	// DDL from the first two steps is rolled back too.
	assert.Equal(t, before, probeNow(t, st))
}

func TestForward_CanceledContext(t *testing.T) {
	st := openStore(t)
	send(t, st, "alice", "bob")
	before := probeNow(t, st)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(st, WithLogger(discard)).Forward(ctx)
	require.Error(t, err)
	assert.True(t, domain.IsTransactionAbort(err))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, before, probeNow(t, st))
}

func TestRoundTrip_RestoresLegacyPairs(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()

	original := map[string][2]string{}
	for _, p := range [][2]string{{"alice", "bob"}, {"bob", "alice"}, {"alice", "carol"}, {"erin", "erin"}} {
		m := send(t, st, p[0], p[1])
		original[m.ID] = p
	}

	c := New(st, WithLogger(discard))
	_, err := c.Forward(ctx)
	require.NoError(t, err)

	res, err := c.Backward(ctx)
	require.NoError(t, err)
	assert.Equal(t, allBackward, res.Applied)
	assert.Zero(t, res.LossyConversations)
	assert.Equal(t, LinkAbsent, res.Final.LinkState())
	assert.False(t, res.Final.ConversationsTable)
	assert.True(t, res.Final.LegacyNotNull())

	for id, pair := range original {
		m, err := st.Session().ReadLegacyMessage(ctx, id)
		require.NoError(t, err)
		// Direction is lossy; the unordered pair is not.
		got := []string{m.SenderID, m.ReceiverID}
		want := []string{pair[0], pair[1]}
		sort.Strings(got)
		sort.Strings(want)
		assert.Equal(t, want, got, "message %s", id)
	}

	// Legacy writes work again and a second backward run is a no-op.
	send(t, st, "frank", "gina")
	res, err = c.Backward(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Applied)
}

func TestBackward_LossyGroupConversation(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()

	c := New(st, WithLogger(discard))
	_, err := c.Forward(ctx)
	require.NoError(t, err)

	sess := st.Session()
	group, err := sess.CreateConversation(ctx, "carol", "alice", "bob")
	require.NoError(t, err)
	gm, err := sess.InsertMessage(ctx, group.ID, "to everyone")
	require.NoError(t, err)

	solo, err := sess.CreateConversation(ctx, "dave")
	require.NoError(t, err)
	sm, err := sess.InsertMessage(ctx, solo.ID, "note to self")
	require.NoError(t, err)

	res, err := c.Backward(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.LossyConversations)

	m, err := st.Session().ReadLegacyMessage(ctx, gm.ID)
	require.NoError(t, err)
	assert.Equal(t, "carol", m.SenderID)
	assert.Equal(t, "alice", m.ReceiverID)

	m, err = st.Session().ReadLegacyMessage(ctx, sm.ID)
	require.NoError(t, err)
	assert.Equal(t, "dave", m.SenderID)
	assert.Equal(t, "dave", m.ReceiverID)
}

func TestBackward_OnBaselineIsNoop(t *testing.T) {
	st := openStore(t)
	send(t, st, "alice", "bob")

	res, err := New(st, WithLogger(discard)).Backward(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Applied)
	assert.Equal(t, allBackward, res.Skipped)
}

func TestStatusAndPlan(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	send(t, st, "alice", "bob")
	c := New(st, WithLogger(discard))

	status, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, LinkAbsent, status.LinkState)
	assert.Equal(t, allForward, status.PendingForward)
	assert.Empty(t, status.PendingBackward)

	plan, err := c.Plan(ctx, Forward)
	require.NoError(t, err)
	assert.Equal(t, allForward, plan)

	// Dry runs change nothing.
	assert.Equal(t, status.Shape, probeNow(t, st))

	_, err = c.Forward(ctx)
	require.NoError(t, err)

	status, err = c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, LinkConstrained, status.LinkState)
	assert.Empty(t, status.PendingForward)
	assert.Equal(t, allBackward, status.PendingBackward)

	_, err = c.Plan(ctx, Direction("sideways"))
	assert.Error(t, err)
}

func TestStep_EnforceLinkNotNullRefusesUnlinkedRows(t *testing.T) {
	st := openStore(t)
	c := New(st, WithLogger(discard))

	var enforce step
	for _, s := range c.forwardSteps() {
		if s.name == StepEnforceLinkNotNull {
			enforce = s
		}
	}
	require.NotNil(t, enforce.apply)

	sh := Shape{Link: ColumnInfo{Present: true}, UnlinkedRows: 2}
	err := enforce.apply(context.Background(), st.Session(), sh, &Result{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 messages have no conversation")
}
