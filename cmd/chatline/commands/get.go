package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/eachlabs/chatline/internal/config"
)

var getCmd = &cobra.Command{
	Use:     "get <resource>",
	Aliases: []string{"list", "ls"},
	Short:   "List resources",
	Long: `List resources of a given type.

Resources:
  conversations, history   Stored conversations
  models                   Known models

Examples:
  chatline get conversations
  chatline ls models`,
}

func init() {
	getCmd.AddCommand(getConversationsCmd)
	getCmd.AddCommand(getModelsCmd)
}

var getConversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conversation", "conv", "history"},
	Short:   "List stored conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout())
		defer cancel()

		convs, err := newHistoryClient(cfg).List(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch conversations: %w", err)
		}

		out := cmd.OutOrStdout()
		if jsonOut {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(convs)
		}

		if len(convs) == 0 {
			fmt.Fprintln(out, "No conversations found.")
			fmt.Fprintln(out, "Start one with: chatline chat")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tUPDATED")
		for _, c := range convs {
			updated := "-"
			if t := c.Updated(); !t.IsZero() {
				updated = t.Local().Format(time.RFC3339)
			}
			title := c.Title
			if title == "" {
				title = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID, title, updated)
		}
		return w.Flush()
	},
}

var getModelsCmd = &cobra.Command{
	Use:     "models",
	Aliases: []string{"model"},
	Short:   "List known models",
	RunE: func(cmd *cobra.Command, args []string) error {
		models := make([]modelInfo, 0, len(config.KnownModels))
		for _, id := range config.KnownModels {
			models = append(models, modelInfo{ID: id, Default: config.SameModel(id, cfg.Defaults.Model)})
		}

		out := cmd.OutOrStdout()
		if jsonOut {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(models)
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "MODEL\tDEFAULT")
		for _, m := range models {
			mark := ""
			if m.Default {
				mark = "*"
			}
			fmt.Fprintf(w, "%s\t%s\n", m.ID, mark)
		}
		fmt.Fprintf(w, "\nconfigured default: %s\n", cfg.Defaults.Model)
		return w.Flush()
	},
}

type modelInfo struct {
	ID      string `json:"id"`
	Default bool   `json:"default"`
}

// requestTimeout bounds one-shot history requests.
func requestTimeout() time.Duration {
	if cfg.API.Timeout.Duration > 0 {
		return cfg.API.Timeout.Duration
	}
	return 30 * time.Second
}
