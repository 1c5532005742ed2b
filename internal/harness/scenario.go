package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/convstore/internal/consolidate"
	"github.com/roach88/convstore/internal/migrate"
)

// Scenario defines a migration or tagging scenario.
// Scenarios seed a legacy database, run a flow of operations against it,
// and assert on the resulting trace and final state.
type Scenario struct {
	// Name uniquely identifies this scenario. Also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// SelfPairs is the self-pair policy for consolidation: keep or reject.
	SelfPairs string `yaml:"self_pairs,omitempty"`

	// MaxTagsPerPost overrides the guard limit. Zero keeps the default.
	MaxTagsPerPost int `yaml:"max_tags_per_post,omitempty"`

	// Setup seeds the point-to-point database before the flow runs.
	// Setup writes are assumed to succeed.
	Setup Setup `yaml:"setup"`

	// Flow contains the operations to run, in order.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Setup lists the rows written before the flow.
type Setup struct {
	Messages []SetupMessage `yaml:"messages,omitempty"`

	// Posts are aliases; each creates one post whose generated ID is bound
	// to the alias for later steps.
	Posts []string `yaml:"posts,omitempty"`
}

// SetupMessage is one legacy message. ID is kept verbatim.
type SetupMessage struct {
	ID      string `yaml:"id"`
	From    string `yaml:"from"`
	To      string `yaml:"to"`
	Content string `yaml:"content"`
}

// FlowStep is one operation in the flow.
type FlowStep struct {
	// Op is one of: migrate, tag, untag, send.
	Op string `yaml:"op"`

	// Args are the operation arguments:
	//   migrate: direction (up|down)
	//   tag, untag: post (alias), tag (name)
	//   send: reply_to (message ID), content, as (optional message alias)
	Args map[string]string `yaml:"args"`

	// Expect, when set, requires the step to fail with the given error code.
	// A step without Expect must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies an expected failure.
type ExpectClause struct {
	Error string `yaml:"error"`
}

// Assertion validates final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "conversation_count": number of conversations equals Count
	// - "same_conversation": every message in Messages shares one conversation
	// - "distinct_conversations": no two messages in Messages share one
	// - "participants": Message's conversation has exactly Participants, in order
	// - "legacy_pair": Message's sender/receiver equal Participants in either order
	// - "tag_count": Post carries exactly Count tags
	// - "link_state": the messages link column is in State
	Type string `yaml:"type"`

	Count        int      `yaml:"count,omitempty"`
	Messages     []string `yaml:"messages,omitempty"`
	Message      string   `yaml:"message,omitempty"`
	Participants []string `yaml:"participants,omitempty"`
	Post         string   `yaml:"post,omitempty"`
	State        string   `yaml:"state,omitempty"`
}

// Assertion type constants.
const (
	AssertConversationCount     = "conversation_count"
	AssertSameConversation      = "same_conversation"
	AssertDistinctConversations = "distinct_conversations"
	AssertParticipants          = "participants"
	AssertLegacyPair            = "legacy_pair"
	AssertTagCount              = "tag_count"
	AssertLinkState             = "link_state"
)

// Flow operation constants.
const (
	OpMigrate = "migrate"
	OpTag     = "tag"
	OpUntag   = "untag"
	OpSend    = "send"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field checking.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if _, err := consolidate.ParseSelfPairPolicy(s.SelfPairs); err != nil {
		return err
	}
	if s.MaxTagsPerPost < 0 {
		return fmt.Errorf("max_tags_per_post must be non-negative")
	}

	seen := make(map[string]bool)
	for i, m := range s.Setup.Messages {
		if m.ID == "" {
			return fmt.Errorf("setup.messages[%d]: id is required", i)
		}
		if seen[m.ID] {
			return fmt.Errorf("setup.messages[%d]: duplicate id %q", i, m.ID)
		}
		seen[m.ID] = true
	}
	posts := make(map[string]bool)
	for i, p := range s.Setup.Posts {
		if p == "" {
			return fmt.Errorf("setup.posts[%d]: alias is required", i)
		}
		if posts[p] {
			return fmt.Errorf("setup.posts[%d]: duplicate alias %q", i, p)
		}
		posts[p] = true
	}

	for i, step := range s.Flow {
		if err := validateStep(i, step, posts); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step FlowStep, posts map[string]bool) error {
	require := func(keys ...string) error {
		for _, k := range keys {
			if step.Args[k] == "" {
				return fmt.Errorf("flow[%d]: %s requires arg %q", index, step.Op, k)
			}
		}
		return nil
	}

	switch step.Op {
	case OpMigrate:
		if err := require("direction"); err != nil {
			return err
		}
		if _, err := migrate.ParseDirection(step.Args["direction"]); err != nil {
			return fmt.Errorf("flow[%d]: %w", index, err)
		}
	case OpTag, OpUntag:
		if err := require("post", "tag"); err != nil {
			return err
		}
		if !posts[step.Args["post"]] {
			return fmt.Errorf("flow[%d]: unknown post alias %q", index, step.Args["post"])
		}
	case OpSend:
		if err := require("reply_to", "content"); err != nil {
			return err
		}
	case "":
		return fmt.Errorf("flow[%d]: op is required", index)
	default:
		return fmt.Errorf("flow[%d]: unknown op %q", index, step.Op)
	}

	if step.Expect != nil && step.Expect.Error == "" {
		return fmt.Errorf("flow[%d].expect: error is required", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertConversationCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertSameConversation, AssertDistinctConversations:
		if len(a.Messages) < 2 {
			return fmt.Errorf("assertions[%d]: at least two messages are required for %s", index, a.Type)
		}
	case AssertParticipants:
		if a.Message == "" || len(a.Participants) == 0 {
			return fmt.Errorf("assertions[%d]: message and participants are required for %s", index, a.Type)
		}
	case AssertLegacyPair:
		if a.Message == "" || len(a.Participants) != 2 {
			return fmt.Errorf("assertions[%d]: message and exactly two participants are required for %s", index, a.Type)
		}
	case AssertTagCount:
		if a.Post == "" {
			return fmt.Errorf("assertions[%d]: post is required for %s", index, a.Type)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertLinkState:
		if a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
