package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/convstore/internal/consolidate"
	"github.com/roach88/convstore/internal/domain"
	"github.com/roach88/convstore/internal/guard"
	"github.com/roach88/convstore/internal/migrate"
	"github.com/roach88/convstore/internal/store"
	"github.com/roach88/convstore/internal/testutil"
)

// Harness is the scenario execution engine.
// It runs scenarios against a fresh store with a fixed clock and
// sequential IDs, so two runs of one scenario produce the same trace.
type Harness struct {
	store    *store.Store
	guard    *guard.Guard
	migrator *migrate.Controller
	logger   *slog.Logger

	// posts maps scenario aliases to generated post IDs.
	posts map[string]string

	// messages maps message aliases to IDs. Setup messages map to themselves.
	messages map[string]string
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database in the point-to-point shape
// 2. Write setup posts and messages
// 3. Execute flow steps, checking expected failures
// 4. Evaluate assertions against the final state
//
// A step that fails unexpectedly, or succeeds when a failure was expected,
// stops the flow and fails the result. Assertions still run.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:",
		store.WithClock(testutil.NewFixedClock()),
		store.WithIDGenerator(testutil.NewSequentialIDs("id")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	policy, err := consolidate.ParseSelfPairPolicy(scenario.SelfPairs)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &Harness{
		store: st,
		guard: guard.New(st,
			guard.WithMaxTagsPerPost(scenario.MaxTagsPerPost),
			guard.WithLogger(logger),
		),
		migrator: migrate.New(st,
			migrate.WithLogger(logger),
			migrate.WithConsolidateOptions(consolidate.Options{SelfPairs: policy, Logger: logger}),
		),
		logger:   logger,
		posts:    make(map[string]string),
		messages: make(map[string]string),
	}

	ctx := context.Background()
	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	result := NewResult()
	h.executeFlow(ctx, scenario.Flow, result)

	actx := &AssertionContext{
		Store:    st,
		Ctx:      ctx,
		Posts:    h.posts,
		Messages: h.messages,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}
	return result, nil
}

// executeSetup writes posts, then messages, in file order.
func (h *Harness) executeSetup(ctx context.Context, setup Setup) error {
	sess := h.store.Session()
	for _, alias := range setup.Posts {
		p, err := sess.CreatePost(ctx, alias)
		if err != nil {
			return fmt.Errorf("post %q: %w", alias, err)
		}
		h.posts[alias] = p.ID
	}
	for _, m := range setup.Messages {
		_, err := sess.InsertLegacyMessage(ctx, domain.LegacyMessage{
			ID:         m.ID,
			Content:    m.Content,
			SenderID:   m.From,
			ReceiverID: m.To,
		})
		if err != nil {
			return fmt.Errorf("message %q: %w", m.ID, err)
		}
		h.messages[m.ID] = m.ID
	}
	return nil
}

// executeFlow runs the flow steps in order and traces each one.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) {
	for i, step := range flow {
		detail, err := h.execute(ctx, step)

		switch {
		case err == nil && step.Expect == nil:
			result.AddTrace(step.Op, step.Args, OutcomeOK, detail)
		case err == nil:
			result.AddTrace(step.Op, step.Args, OutcomeOK, detail)
			result.AddError(fmt.Sprintf("flow[%d] %s: expected error %s, got success", i, step.Op, step.Expect.Error))
			return
		case step.Expect != nil && domain.HasCode(err, domain.ErrorCode(step.Expect.Error)):
			result.AddTrace(step.Op, step.Args, step.Expect.Error, nil)
		default:
			result.AddTrace(step.Op, step.Args, outcomeOf(err), nil)
			result.AddError(fmt.Sprintf("flow[%d] %s: %v", i, step.Op, err))
			return
		}

		h.logger.Info("flow step completed", "step", i, "op", step.Op, "error", err)
	}
}

func outcomeOf(err error) string {
	if code := domain.CodeOf(err); code != "" {
		return string(code)
	}
	return OutcomeError
}

// execute runs one step. Scenario validation has already checked the args.
func (h *Harness) execute(ctx context.Context, step FlowStep) (map[string]any, error) {
	switch step.Op {
	case OpMigrate:
		return h.migrate(ctx, step.Args)
	case OpTag:
		return h.tag(ctx, step.Args)
	case OpUntag:
		return h.untag(ctx, step.Args)
	case OpSend:
		return h.send(ctx, step.Args)
	default:
		return nil, fmt.Errorf("unknown op %q", step.Op)
	}
}

func (h *Harness) migrate(ctx context.Context, args map[string]string) (map[string]any, error) {
	dir, err := migrate.ParseDirection(args["direction"])
	if err != nil {
		return nil, err
	}
	res, err := h.migrator.Run(ctx, dir)
	if err != nil {
		return nil, err
	}

	detail := map[string]any{
		"applied":    len(res.Applied),
		"skipped":    len(res.Skipped),
		"link_state": string(res.Final.LinkState()),
	}
	if res.Consolidation != nil {
		detail["conversations"] = res.Consolidation.ConversationsCreated
		detail["messages"] = res.Consolidation.MessagesAssigned
	}
	if dir == migrate.Backward {
		detail["lossy"] = res.LossyConversations
	}
	return detail, nil
}

func (h *Harness) tag(ctx context.Context, args map[string]string) (map[string]any, error) {
	postID := h.posts[args["post"]]
	if _, err := h.guard.TagPostByName(ctx, postID, args["tag"]); err != nil {
		return nil, err
	}
	n, err := h.guard.CountTags(ctx, postID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"tags": n}, nil
}

func (h *Harness) untag(ctx context.Context, args map[string]string) (map[string]any, error) {
	postID := h.posts[args["post"]]
	tag, err := h.store.Session().GetTagByName(ctx, args["tag"])
	if err != nil {
		return nil, err
	}
	removed, err := h.guard.RemoveTag(ctx, postID, tag.ID)
	if err != nil {
		return nil, err
	}
	n, err := h.guard.CountTags(ctx, postID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"removed": removed, "tags": n}, nil
}

// send appends a message to the conversation of reply_to.
func (h *Harness) send(ctx context.Context, args map[string]string) (map[string]any, error) {
	replyTo, ok := h.messages[args["reply_to"]]
	if !ok {
		replyTo = args["reply_to"]
	}

	var participants int
	err := h.store.WithTx(ctx, func(sess *store.Session) error {
		conv, err := sess.ConversationForMessage(ctx, replyTo)
		if err != nil {
			return err
		}
		m, err := sess.InsertMessage(ctx, conv.ID, args["content"])
		if err != nil {
			return err
		}
		participants = len(conv.Participants)
		if alias := args["as"]; alias != "" {
			h.messages[alias] = m.ID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"participants": participants}, nil
}
