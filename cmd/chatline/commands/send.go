package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eachlabs/chatline/internal/exchange"
	"github.com/eachlabs/chatline/internal/transcript"
)

var (
	sendModel        string
	sendNoStream     bool
	sendConversation string
)

var sendCmd = &cobra.Command{
	Use:   "send <text>",
	Short: "Send one message and print the reply",
	Long: `Send a single message and print the reply as it arrives.

Examples:
  chatline send "What is SSE?"
  chatline send --no-stream "Summarise this"
  chatline send --conversation 3f2a... "And then?"
  chatline send --json "Hello"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVarP(&sendModel, "model", "m", "", "model to use")
	sendCmd.Flags().BoolVar(&sendNoStream, "no-stream", false, "wait for the whole reply")
	sendCmd.Flags().StringVarP(&sendConversation, "conversation", "c", "", "conversation id to continue")
}

type sendResult struct {
	ConversationID string               `json:"conversation_id,omitempty"`
	Truncated      bool                 `json:"truncated,omitempty"`
	Messages       []transcript.Message `json:"messages"`
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	text := strings.Join(args, " ")
	stream := cfg.Defaults.Stream && !sendNoStream

	ctrl := newController(cfg, sendModel)
	if sendConversation != "" {
		if err := ctrl.LoadConversation(ctx, sendConversation); err != nil {
			return err
		}
	}

	printed := 0
	if !jsonOut {
		unsubscribe := ctrl.Subscribe(func(st exchange.Status) {
			if len(st.StreamingText) > printed {
				fmt.Fprint(out, st.StreamingText[printed:])
				printed = len(st.StreamingText)
			}
		})
		defer unsubscribe()
	}

	if err := ctrl.Send(ctx, text, stream); err != nil {
		return fmt.Errorf("send: %s", ctrl.Status().Error)
	}

	status := ctrl.Status()
	snap := ctrl.Transcript().Snapshot()

	if jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(sendResult{
			ConversationID: status.ConversationID,
			Truncated:      status.Truncated,
			Messages:       snap,
		})
	}

	if printed == 0 {
		if last, ok := snap.Last(); ok && last.Role == transcript.RoleAssistant {
			fmt.Fprint(out, last.Content)
		}
	}
	fmt.Fprintln(out)

	if status.ConversationID != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "conversation: %s\n", status.ConversationID)
	}
	if status.Truncated {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: reply ended without a completion marker")
	}
	return nil
}
