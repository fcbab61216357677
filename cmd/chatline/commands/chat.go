package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/eachlabs/chatline/internal/channel"
	"github.com/eachlabs/chatline/internal/logging"
	"github.com/eachlabs/chatline/internal/tui"
)

var (
	chatModel        string
	chatSimple       bool
	chatNoStream     bool
	chatConversation string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start interactive chat",
	Long: `Start an interactive chat session.

Examples:
  chatline chat
  chatline chat --model openai/gpt-4o
  chatline chat --conversation 3f2a...   # continue a stored conversation
  chatline chat --simple                 # line mode, no full-screen UI`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatModel, "model", "m", "", "model to use")
	chatCmd.Flags().BoolVar(&chatSimple, "simple", false, "use simple terminal mode (no TUI)")
	chatCmd.Flags().BoolVar(&chatNoStream, "no-stream", false, "wait for whole replies instead of streaming")
	chatCmd.Flags().StringVarP(&chatConversation, "conversation", "c", "", "conversation id to continue")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctrl := newController(cfg, chatModel)
	model := chatModel
	if model == "" {
		model = cfg.Defaults.Model
	}
	stream := cfg.Defaults.Stream && !chatNoStream

	if chatConversation != "" {
		if err := ctrl.LoadConversation(ctx, chatConversation); err != nil {
			return err
		}
	}

	var ch channel.Channel
	if chatSimple {
		ch = channel.NewTerminal(ctrl, channel.TerminalConfig{
			In:     os.Stdin,
			Out:    os.Stdout,
			Stream: stream,
			Model:  model,
		})
	} else {
		// Log lines would tear the full-screen UI.
		if cfg.Logging.File == "" {
			logging.Silence()
		}
		ch = tui.NewChat(ctrl, stream, model)
	}

	log.Debug().Str("channel", ch.Name()).Str("model", model).Bool("stream", stream).Msg("chat started")

	if err := ch.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("chat: %w", err)
	}
	return nil
}
