package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/convstore/internal/migrate"
	"github.com/roach88/convstore/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %v -> %s\n", event.Seq, event.Op, event.Args, event.Outcome)
		}
	}
	return buf.String()
}

// AssertionContext provides database access and alias bindings for
// evaluating assertions.
type AssertionContext struct {
	Store    *store.Store
	Ctx      context.Context
	Posts    map[string]string
	Messages map[string]string
}

func (a *AssertionContext) message(alias string) string {
	if id, ok := a.Messages[alias]; ok {
		return id
	}
	return alias
}

func (a *AssertionContext) post(alias string) string {
	if id, ok := a.Posts[alias]; ok {
		return id
	}
	return alias
}

// queryFailed reports a store error as a failed assertion rather than a
// harness error: a query against a column the flow dropped is a state
// mismatch.
func queryFailed(kind string, err error, trace []TraceEvent) error {
	return &AssertionError{
		Type:     kind,
		Expected: "state readable",
		Actual:   fmt.Sprintf("query error: %v", err),
		Trace:    trace,
	}
}

func assertConversationCount(actx *AssertionContext, trace []TraceEvent, a Assertion) error {
	n, err := actx.Store.Session().CountConversations(actx.Ctx)
	if err != nil {
		return queryFailed(a.Type, err, trace)
	}
	if n != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d conversations", a.Count),
			Actual:   fmt.Sprintf("%d conversations", n),
			Trace:    trace,
		}
	}
	return nil
}

// assertGrouping checks that the listed messages share one conversation
// (same) or that no two share one (!same). Unlinked messages never match.
func assertGrouping(actx *AssertionContext, trace []TraceEvent, a Assertion, same bool) error {
	assignments, err := actx.Store.Session().ConversationAssignments(actx.Ctx)
	if err != nil {
		return queryFailed(a.Type, err, trace)
	}

	owner := make(map[string]string)
	for _, alias := range a.Messages {
		id := actx.message(alias)
		conv, ok := assignments[id]
		if !ok {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("message %s to exist", alias),
				Actual:   "message not found",
				Trace:    trace,
			}
		}
		if conv == "" {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("message %s to belong to a conversation", alias),
				Actual:   "message is unlinked",
				Trace:    trace,
			}
		}

		if same {
			if first := actx.message(a.Messages[0]); assignments[first] != conv {
				return &AssertionError{
					Type:     a.Type,
					Expected: fmt.Sprintf("%s and %s in one conversation", a.Messages[0], alias),
					Actual:   fmt.Sprintf("%s in %s, %s in %s", a.Messages[0], assignments[first], alias, conv),
					Trace:    trace,
				}
			}
			continue
		}
		if other, ok := owner[conv]; ok {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s and %s in different conversations", other, alias),
				Actual:   fmt.Sprintf("both in %s", conv),
				Trace:    trace,
			}
		}
		owner[conv] = alias
	}
	return nil
}

func assertParticipants(actx *AssertionContext, trace []TraceEvent, a Assertion) error {
	conv, err := actx.Store.Session().ConversationForMessage(actx.Ctx, actx.message(a.Message))
	if err != nil {
		return queryFailed(a.Type, err, trace)
	}
	if !slices.Equal([]string(conv.Participants), a.Participants) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("participants %v", a.Participants),
			Actual:   fmt.Sprintf("participants %v", []string(conv.Participants)),
			Trace:    trace,
		}
	}
	return nil
}

func assertLegacyPair(actx *AssertionContext, trace []TraceEvent, a Assertion) error {
	m, err := actx.Store.Session().ReadLegacyMessage(actx.Ctx, actx.message(a.Message))
	if err != nil {
		return queryFailed(a.Type, err, trace)
	}
	want0, want1 := a.Participants[0], a.Participants[1]
	if (m.SenderID == want0 && m.ReceiverID == want1) || (m.SenderID == want1 && m.ReceiverID == want0) {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("pair {%s, %s}", want0, want1),
		Actual:   fmt.Sprintf("sender %q receiver %q", m.SenderID, m.ReceiverID),
		Trace:    trace,
	}
}

func assertTagCount(actx *AssertionContext, trace []TraceEvent, a Assertion) error {
	n, err := actx.Store.Session().CountTagAssociations(actx.Ctx, actx.post(a.Post))
	if err != nil {
		return queryFailed(a.Type, err, trace)
	}
	if n != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d tags on %s", a.Count, a.Post),
			Actual:   fmt.Sprintf("%d tags", n),
			Trace:    trace,
		}
	}
	return nil
}

func assertLinkState(actx *AssertionContext, trace []TraceEvent, a Assertion) error {
	sh, err := migrate.Probe(actx.Ctx, actx.Store.Session())
	if err != nil {
		return queryFailed(a.Type, err, trace)
	}
	if got := string(sh.LinkState()); got != a.State {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("link state %s", a.State),
			Actual:   fmt.Sprintf("link state %s", got),
			Trace:    trace,
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the final state.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		if actx == nil || actx.Store == nil {
			errors = append(errors, fmt.Sprintf("assertion[%d]: %s requires database context", i, assertion.Type))
			continue
		}

		switch assertion.Type {
		case AssertConversationCount:
			err = assertConversationCount(actx, result.Trace, assertion)
		case AssertSameConversation:
			err = assertGrouping(actx, result.Trace, assertion, true)
		case AssertDistinctConversations:
			err = assertGrouping(actx, result.Trace, assertion, false)
		case AssertParticipants:
			err = assertParticipants(actx, result.Trace, assertion)
		case AssertLegacyPair:
			err = assertLegacyPair(actx, result.Trace, assertion)
		case AssertTagCount:
			err = assertTagCount(actx, result.Trace, assertion)
		case AssertLinkState:
			err = assertLinkState(actx, result.Trace, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
