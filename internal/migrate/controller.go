package migrate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/convstore/internal/consolidate"
	"github.com/roach88/convstore/internal/domain"
	"github.com/roach88/convstore/internal/store"
)

// Direction selects which way a run migrates.
type Direction string

const (
	Forward  Direction = "forward"
	Backward Direction = "backward"
)

// ParseDirection accepts forward/up and backward/down.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "forward", "up":
		return Forward, nil
	case "backward", "down":
		return Backward, nil
	default:
		return "", fmt.Errorf("unknown direction %q (want up or down)", s)
	}
}

// Result describes a completed run.
type Result struct {
	Direction Direction `json:"direction"`
	Applied   []string  `json:"applied"`
	Skipped   []string  `json:"skipped"`

	// Consolidation is set when backfill_conversations ran.
	Consolidation *consolidate.Report `json:"consolidation,omitempty"`

	// LossyConversations counts conversations with more than two
	// participants reduced to a pair by backfill_legacy_columns.
	LossyConversations int `json:"lossy_conversations"`

	// Final is the shape probed after the last step, before commit.
	Final Shape `json:"final"`
}

// Status is a read-only report of the current schema state.
type Status struct {
	Shape           Shape     `json:"shape"`
	LinkState       LinkState `json:"link_state"`
	PendingForward  []string  `json:"pending_forward"`
	PendingBackward []string  `json:"pending_backward"`
}

// Controller runs migration directions against a store.
type Controller struct {
	store        *store.Store
	backend      backend
	consolidator *consolidate.Consolidator
	logger       *slog.Logger
}

// Option configures a Controller.
type Option func(*controllerConfig)

type controllerConfig struct {
	logger      *slog.Logger
	consolidate consolidate.Options
}

// WithLogger sets the logger for step progress. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *controllerConfig) { c.logger = l }
}

// WithConsolidateOptions configures the consolidator run by
// backfill_conversations. A nil Logger inherits the controller's.
func WithConsolidateOptions(o consolidate.Options) Option {
	return func(c *controllerConfig) { c.consolidate = o }
}

// New creates a Controller for st.
func New(st *store.Store, opts ...Option) *Controller {
	cfg := controllerConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.consolidate.Logger == nil {
		cfg.consolidate.Logger = cfg.logger
	}

	return &Controller{
		store:        st,
		backend:      backendFor(st.Flavor()),
		consolidator: consolidate.New(cfg.consolidate),
		logger:       cfg.logger,
	}
}

// Forward migrates to the grouped shape.
func (c *Controller) Forward(ctx context.Context) (Result, error) {
	return c.Run(ctx, Forward)
}

// Backward migrates to the point-to-point shape.
func (c *Controller) Backward(ctx context.Context) (Result, error) {
	return c.Run(ctx, Backward)
}

// Run executes every step of dir in one serializable transaction.
//
// On failure the transaction is rolled back and the error is a
// TRANSACTION_ABORTED error naming the failing step and wrapping the cause.
func (c *Controller) Run(ctx context.Context, dir Direction) (Result, error) {
	steps, err := c.steps(dir)
	if err != nil {
		return Result{}, err
	}

	res := Result{Direction: dir, Applied: []string{}, Skipped: []string{}}
	current := "begin"

	err = c.store.WithSerializableTx(ctx, func(sess *store.Session) error {
		for _, st := range steps {
			current = st.name
			if err := ctx.Err(); err != nil {
				return err
			}

			before, err := probe(ctx, sess, c.backend)
			if err != nil {
				return err
			}
			if st.done(before) {
				c.logger.Debug("step already satisfied", "direction", dir, "step", st.name)
				res.Skipped = append(res.Skipped, st.name)
				continue
			}

			c.logger.Info("applying step", "direction", dir, "step", st.name)
			if err := st.apply(ctx, sess, before, &res); err != nil {
				return err
			}

			after, err := probe(ctx, sess, c.backend)
			if err != nil {
				return err
			}
			if !st.done(after) {
				return fmt.Errorf("postcondition not met after apply (link state %s)", after.LinkState())
			}
			res.Applied = append(res.Applied, st.name)
			res.Final = after
		}

		current = "verify"
		final, err := probe(ctx, sess, c.backend)
		if err != nil {
			return err
		}
		res.Final = final
		current = "commit"
		return nil
	})
	if err != nil {
		c.logger.Error("migration rolled back", "direction", dir, "step", current, "error", err)
		return Result{Direction: dir}, domain.NewAbortError(current, err)
	}

	c.logger.Info("migration complete",
		"direction", dir,
		"applied", len(res.Applied),
		"skipped", len(res.Skipped),
		"link_state", res.Final.LinkState(),
	)
	return res, nil
}

// Status probes the schema without changing it.
func (c *Controller) Status(ctx context.Context) (Status, error) {
	sess := c.store.Session()
	sh, err := probe(ctx, sess, c.backend)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Shape:           sh,
		LinkState:       sh.LinkState(),
		PendingForward:  pending(c.forwardSteps(), sh),
		PendingBackward: pending(c.backwardSteps(), sh),
	}, nil
}

// Plan lists the steps of dir not satisfied by the current schema, in order.
// It is a dry run: nothing is changed, and a step reported here may still be
// satisfied by an earlier step's effects when the direction actually runs.
func (c *Controller) Plan(ctx context.Context, dir Direction) ([]string, error) {
	steps, err := c.steps(dir)
	if err != nil {
		return nil, err
	}
	sh, err := probe(ctx, c.store.Session(), c.backend)
	if err != nil {
		return nil, err
	}
	return pending(steps, sh), nil
}

func (c *Controller) steps(dir Direction) ([]step, error) {
	switch dir {
	case Forward:
		return c.forwardSteps(), nil
	case Backward:
		return c.backwardSteps(), nil
	default:
		return nil, fmt.Errorf("unknown direction %q", dir)
	}
}

func pending(steps []step, sh Shape) []string {
	out := []string{}
	for _, st := range steps {
		if !st.done(sh) {
			out = append(out, st.name)
		}
	}
	return out
}
