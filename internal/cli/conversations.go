package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/convstore/internal/domain"
)

// NewConversationsCommand creates the conversations command.
func NewConversationsCommand(rootOpts *RootOptions) *cobra.Command {
	var forMessage string

	cmd := &cobra.Command{
		Use:   "conversations",
		Short: "List conversations and their participants",
		Long: `Lists every conversation, oldest first. With --message, shows only the
conversation that message belongs to. Requires the conversations table.`,
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

			sess := s.store.Session()
			var conversations []domain.Conversation
			if forMessage != "" {
				c, err := sess.ConversationForMessage(ctx, forMessage)
				if err != nil {
					return reportError(s.out, "lookup failed", err)
				}
				conversations = []domain.Conversation{c}
			} else {
				conversations, err = sess.ListConversations(ctx)
				if err != nil {
					return reportError(s.out, "list failed", err)
				}
			}

			if s.out.Format == "json" {
				return s.out.Success(conversations)
			}
			if len(conversations) == 0 {
				fmt.Fprintln(s.out.Writer, "No conversations.")
				return nil
			}
			for _, c := range conversations {
				fmt.Fprintf(s.out.Writer, "%s  %s\n", c.ID, strings.Join(c.Participants, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&forMessage, "message", "", "show the conversation of this message ID")
	return cmd
}
