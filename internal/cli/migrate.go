package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/convstore/internal/consolidate"
	"github.com/roach88/convstore/internal/migrate"
)

// NewMigrateCommand creates the migrate command and its subcommands.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Move the messages table between point-to-point and grouped shapes",
		Long: `Runs the conversation migration in either direction.

Every direction runs in one serializable transaction. Steps already
satisfied by the current schema are skipped, so a direction can be re-run
after a partial failure.

Exit codes:
  0 - Migration committed (or nothing to do)
  1 - Migration rolled back
  2 - Command error (bad config, database unreachable)`,
	}

	cmd.AddCommand(newMigrateRunCommand(rootOpts, "up", migrate.Forward,
		"Migrate forward to conversation grouping"))
	cmd.AddCommand(newMigrateRunCommand(rootOpts, "down", migrate.Backward,
		"Migrate backward to sender/receiver pairs"))
	cmd.AddCommand(newMigrateStatusCommand(rootOpts))
	cmd.AddCommand(newMigratePlanCommand(rootOpts))

	return cmd
}

func newMigrateRunCommand(rootOpts *RootOptions, use string, dir migrate.Direction, short string) *cobra.Command {
	var selfPairs string

	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
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

			ctrl := migrate.New(s.store,
				migrate.WithLogger(s.logger),
				migrate.WithConsolidateOptions(consolidate.Options{SelfPairs: policy}),
			)
			res, err := ctrl.Run(ctx, dir)
			if err != nil {
				return reportError(s.out, fmt.Sprintf("migrate %s failed", use), err)
			}

			if s.out.Format == "json" {
				return s.out.Success(res)
			}
			writeMigrateResult(s.out.Writer, res)
			return nil
		},
	}

	if dir == migrate.Forward {
		cmd.Flags().StringVar(&selfPairs, "self-pairs", "", "self-pair policy: keep|reject (overrides config)")
	}
	return cmd
}

func writeMigrateResult(w io.Writer, res migrate.Result) {
	if len(res.Applied) == 0 {
		fmt.Fprintf(w, "Nothing to do (%s)\n", res.Final.LinkState())
		return
	}
	fmt.Fprintf(w, "Migrated %s: %s\n", res.Direction, strings.Join(res.Applied, ", "))
	if len(res.Skipped) > 0 {
		fmt.Fprintf(w, "  skipped: %s\n", strings.Join(res.Skipped, ", "))
	}
	if r := res.Consolidation; r != nil {
		fmt.Fprintf(w, "  conversations created: %d (%d messages, %d self pairs)\n",
			r.ConversationsCreated, r.MessagesAssigned, r.SelfPairs)
	}
	if res.LossyConversations > 0 {
		fmt.Fprintf(w, "  warning: %d conversations had more than two participants; only the first two were kept\n",
			res.LossyConversations)
	}
	fmt.Fprintf(w, "  link state: %s\n", res.Final.LinkState())
}

func newMigrateStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show the current schema shape and pending steps",
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

			status, err := migrate.New(s.store, migrate.WithLogger(s.logger)).Status(ctx)
			if err != nil {
				return reportError(s.out, "status failed", err)
			}

			if s.out.Format == "json" {
				return s.out.Success(status)
			}
			w := s.out.Writer
			sh := status.Shape
			fmt.Fprintf(w, "link state:          %s\n", status.LinkState)
			fmt.Fprintf(w, "conversations table: %t\n", sh.ConversationsTable)
			fmt.Fprintf(w, "legacy columns:      %t\n", sh.LegacyPresent())
			fmt.Fprintf(w, "unlinked messages:   %d\n", sh.UnlinkedRows)
			fmt.Fprintf(w, "unpaired messages:   %d\n", sh.UnpairedRows)
			fmt.Fprintf(w, "pending up:          %s\n", listOrNone(status.PendingForward))
			fmt.Fprintf(w, "pending down:        %s\n", listOrNone(status.PendingBackward))
			return nil
		},
	}
}

func newMigratePlanCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "plan <up|down>",
		Short:         "List the steps a direction would apply, without applying them",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := migrate.ParseDirection(args[0])
			if err != nil {
				return NewExitError(ExitCommandError, err.Error())
			}

			ctx := cmd.Context()
			s, err := rootOpts.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			steps, err := migrate.New(s.store, migrate.WithLogger(s.logger)).Plan(ctx, dir)
			if err != nil {
				return reportError(s.out, "plan failed", err)
			}

			if s.out.Format == "json" {
				return s.out.Success(map[string]any{"direction": dir, "steps": steps})
			}
			if len(steps) == 0 {
				fmt.Fprintln(s.out.Writer, "Nothing to do")
				return nil
			}
			for i, name := range steps {
				fmt.Fprintf(s.out.Writer, "%d. %s\n", i+1, name)
			}
			return nil
		},
	}
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}
