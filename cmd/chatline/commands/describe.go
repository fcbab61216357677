package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/eachlabs/chatline/internal/transcript"
)

var describeCmd = &cobra.Command{
	Use:   "describe <resource> [name]",
	Short: "Show detailed resource information",
	Long: `Show detailed information about a resource.

Resources:
  conversation   Stored conversation transcript`,
}

func init() {
	describeCmd.AddCommand(describeConversationCmd)
}

var describeConversationCmd = &cobra.Command{
	Use:     "conversation <id>",
	Aliases: []string{"conv"},
	Short:   "Show a stored conversation",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout())
		defer cancel()

		t := transcript.New()
		conv, err := newHistoryClient(cfg).Load(ctx, args[0], t)
		if err != nil {
			return fmt.Errorf("failed to load conversation: %w", err)
		}

		out := cmd.OutOrStdout()
		if jsonOut {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(conv)
		}

		fmt.Fprintf(out, "ID:       %s\n", conv.ID)
		if conv.Title != "" {
			fmt.Fprintf(out, "Title:    %s\n", conv.Title)
		}
		if u := conv.Updated(); !u.IsZero() {
			fmt.Fprintf(out, "Updated:  %s\n", u.Local().Format(time.RFC3339))
		}
		snap := t.Snapshot()
		fmt.Fprintf(out, "Messages: %d\n", len(snap))

		for _, m := range snap {
			stamp := ""
			if m.Created > 0 {
				stamp = " (" + m.CreatedTime().Local().Format("2006-01-02 15:04") + ")"
			}
			fmt.Fprintf(out, "\n[%s]%s\n%s\n", m.Role, stamp, m.Content)
		}
		return nil
	},
}
