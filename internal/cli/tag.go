package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/convstore/internal/guard"
)

// NewTagCommand creates the tag command and its subcommands.
func NewTagCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Attach, detach and list post tags",
		Long: `Manages tag associations through the tag guard.

A post carries at most guard.max_tags_per_post tags (default 3) and never
the same tag twice. Tag names are matched case-insensitively.

Exit codes:
  0 - Success
  1 - Refused (CARDINALITY_VIOLATION, UNIQUENESS_VIOLATION, NOT_FOUND)
  2 - Command error`,
	}

	cmd.AddCommand(newTagAddCommand(rootOpts))
	cmd.AddCommand(newTagRemoveCommand(rootOpts))
	cmd.AddCommand(newTagListCommand(rootOpts))
	return cmd
}

func newGuard(s *session) *guard.Guard {
	return guard.New(s.store,
		guard.WithMaxTagsPerPost(s.cfg.Guard.MaxTagsPerPost),
		guard.WithLogger(s.logger),
	)
}

func newTagAddCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "add <post-id> <tag-name>",
		Short:         "Attach a tag to a post, creating the tag if needed",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := rootOpts.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			assoc, err := newGuard(s).TagPostByName(ctx, args[0], args[1])
			if err != nil {
				return reportError(s.out, "tag add failed", err)
			}

			if s.out.Format == "json" {
				return s.out.Success(assoc)
			}
			fmt.Fprintf(s.out.Writer, "Tagged post %s with %q\n", assoc.PostID, args[1])
			return nil
		},
	}
}

func newTagRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "remove <post-id> <tag-name>",
		Short:         "Detach a tag from a post",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := rootOpts.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			tag, err := s.store.Session().GetTagByName(ctx, args[1])
			if err != nil {
				return reportError(s.out, "tag remove failed", err)
			}
			removed, err := newGuard(s).RemoveTag(ctx, args[0], tag.ID)
			if err != nil {
				return reportError(s.out, "tag remove failed", err)
			}

			if s.out.Format == "json" {
				return s.out.Success(map[string]any{"post_id": args[0], "tag": tag.Name, "removed": removed})
			}
			if removed {
				fmt.Fprintf(s.out.Writer, "Removed %q from post %s\n", tag.Name, args[0])
			} else {
				fmt.Fprintf(s.out.Writer, "Post %s was not tagged %q\n", args[0], tag.Name)
			}
			return nil
		},
	}
}

func newTagListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list <post-id>",
		Short:         "List the tags on a post",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := rootOpts.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			sess := s.store.Session()
			if err := sess.LockPost(ctx, args[0]); err != nil {
				return reportError(s.out, "tag list failed", err)
			}
			tags, err := sess.ListPostTags(ctx, args[0])
			if err != nil {
				return reportError(s.out, "tag list failed", err)
			}

			if s.out.Format == "json" {
				return s.out.Success(tags)
			}
			g := newGuard(s)
			fmt.Fprintf(s.out.Writer, "%d/%d tags\n", len(tags), g.Max())
			for _, t := range tags {
				fmt.Fprintf(s.out.Writer, "  %s\n", t.Name)
			}
			return nil
		},
	}
}
