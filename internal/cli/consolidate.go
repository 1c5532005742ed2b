package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/convstore/internal/consolidate"
	"github.com/roach88/convstore/internal/migrate"
)

// NewConsolidateCommand creates the consolidate command.
func NewConsolidateCommand(rootOpts *RootOptions) *cobra.Command {
	var selfPairs string

	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Group unlinked messages into conversations",
		Long: `Creates one conversation per unordered sender/receiver pair among messages
that have no conversation yet, and links those messages to it.

The messages table must already have its conversation_id column and still
have sender_id/receiver_id. "migrate up" runs this step itself; use this
command to backfill messages written by legacy writers in between.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := rootOpts.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			policy := s.cfg.SelfPairPolicy()
			if selfPairs != "" {
				if policy, err = consolidate.ParseSelfPairPolicy(selfPairs); err != nil {
					return reportError(s.out, "invalid --self-pairs", err)
				}
			}

			shape, err := migrate.Probe(ctx, s.store.Session())
			if err != nil {
				return reportError(s.out, "consolidation failed", err)
			}
			if err := checkConsolidateShape(shape); err != nil {
				if outErr := s.out.Error(ErrCodeWrongShape, err.Error(), map[string]any{"link_state": shape.LinkState()}); outErr != nil {
					return outErr
				}
				return WrapExitError(ExitCommandError, "consolidation not possible", err)
			}

			report, err := consolidate.ConsolidateConversations(ctx, s.store, consolidate.Options{
				SelfPairs: policy,
				Logger:    s.logger,
			})
			if err != nil {
				return reportError(s.out, "consolidation failed", err)
			}

			if s.out.Format == "json" {
				return s.out.Success(report)
			}
			fmt.Fprintf(s.out.Writer, "Created %d conversations for %d messages (%d pairs, %d self pairs)\n",
				report.ConversationsCreated, report.MessagesAssigned, report.Groups, report.SelfPairs)
			return nil
		},
	}

	cmd.Flags().StringVar(&selfPairs, "self-pairs", "", "self-pair policy: keep|reject (overrides config)")
	return cmd
}

// checkConsolidateShape requires the link column and both legacy columns.
func checkConsolidateShape(sh migrate.Shape) error {
	switch {
	case !sh.Link.Present:
		return fmt.Errorf("messages has no conversation_id column yet; run \"migrate up\" instead")
	case !sh.LegacyPresent():
		return fmt.Errorf("messages no longer has sender_id/receiver_id; nothing to consolidate")
	}
	return nil
}
