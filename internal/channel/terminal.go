package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/eachlabs/chatline/internal/exchange"
	"github.com/eachlabs/chatline/internal/transcript"
)

var (
	purple = lipgloss.Color("#A855F7")
	green  = lipgloss.Color("#22C55E")
	red    = lipgloss.Color("#EF4444")
	gray   = lipgloss.Color("#6B7280")
	white  = lipgloss.Color("#F9FAFB")

	logoStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(purple)

	userPromptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(green)

	assistantStyle = lipgloss.NewStyle().
			Foreground(white)

	errorStyle = lipgloss.NewStyle().
			Foreground(red).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(gray)
)

// TerminalConfig configures a Terminal.
type TerminalConfig struct {
	In     io.Reader
	Out    io.Writer
	Stream bool
	Model  string
}

// Terminal is a line-mode chat: one prompt per line, replies printed as
// they stream in.
type Terminal struct {
	session Session
	in      io.Reader
	out     io.Writer
	stream  bool
	model   string

	mu      sync.Mutex
	printed int // bytes of the running stream already written
}

// NewTerminal creates a line-mode channel over session.
func NewTerminal(session Session, cfg TerminalConfig) *Terminal {
	return &Terminal{
		session: session,
		in:      cfg.In,
		out:     cfg.Out,
		stream:  cfg.Stream,
		model:   cfg.Model,
	}
}

func (t *Terminal) Name() string {
	return "terminal"
}

// Run reads lines until EOF, an exit command, or ctx is done.
func (t *Terminal) Run(ctx context.Context) error {
	t.printHeader()

	unsubscribe := t.session.Subscribe(t.onStatus)
	defer unsubscribe()

	scanner := bufio.NewScanner(t.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		fmt.Fprint(t.out, "\n"+userPromptStyle.Render("  ❯ "))
		if !scanner.Scan() {
			fmt.Fprintln(t.out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if line == "exit" || line == "quit" || strings.HasPrefix(line, "/") {
			if t.handleCommand(ctx, line) {
				fmt.Fprintln(t.out, mutedStyle.Render("\n  Goodbye!"))
				return nil
			}
			continue
		}

		t.exchange(ctx, line)
	}
}

func (t *Terminal) exchange(ctx context.Context, text string) {
	t.mu.Lock()
	t.printed = 0
	t.mu.Unlock()

	err := t.session.Send(ctx, text, t.stream)

	t.mu.Lock()
	streamed := t.printed > 0
	t.printed = 0
	t.mu.Unlock()

	if err != nil {
		msg := t.session.Status().Error
		if msg == "" {
			msg = err.Error()
		}
		if streamed {
			fmt.Fprintln(t.out)
		}
		fmt.Fprintf(t.out, "\n  %s %s\n", errorStyle.Render("Error:"), msg)
		return
	}

	if streamed {
		fmt.Fprintln(t.out)
	} else if last, ok := t.session.Transcript().Snapshot().Last(); ok && last.Role == transcript.RoleAssistant && last.Content != "" {
		fmt.Fprintf(t.out, "\n  %s\n", assistantStyle.Render(last.Content))
	}

	if t.session.Status().Truncated {
		fmt.Fprintln(t.out, mutedStyle.Render("  (response ended without a completion marker)"))
	}
}

// onStatus writes the part of the streaming text not printed yet.
func (t *Terminal) onStatus(st exchange.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(st.StreamingText) <= t.printed {
		return
	}
	if t.printed == 0 {
		fmt.Fprint(t.out, "\n  ")
	}
	fmt.Fprint(t.out, st.StreamingText[t.printed:])
	t.printed = len(st.StreamingText)
}

// handleCommand runs a slash command and reports whether to exit.
func (t *Terminal) handleCommand(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/exit", "/quit", "exit", "quit":
		return true
	case "/help":
		t.printHelp()
	case "/clear":
		t.session.Clear()
		fmt.Fprintln(t.out, mutedStyle.Render("  Conversation cleared."))
	case "/id":
		id := t.session.Transcript().ConversationID()
		if id == "" {
			id = "(none yet)"
		}
		fmt.Fprintf(t.out, "  %s %s\n", mutedStyle.Render("Conversation:"), id)
	case "/load":
		if len(fields) != 2 {
			fmt.Fprintln(t.out, mutedStyle.Render("  Usage: /load <conversation-id>"))
			return false
		}
		if err := t.session.LoadConversation(ctx, fields[1]); err != nil {
			msg := t.session.Status().Error
			if msg == "" {
				msg = err.Error()
			}
			fmt.Fprintf(t.out, "  %s %s\n", errorStyle.Render("Error:"), msg)
			return false
		}
		t.printTranscript()
	default:
		fmt.Fprintf(t.out, "  Unknown command: %s (try /help)\n", fields[0])
	}
	return false
}

func (t *Terminal) printTranscript() {
	for _, m := range t.session.Transcript().Snapshot() {
		switch m.Role {
		case transcript.RoleUser:
			fmt.Fprintf(t.out, "\n%s%s\n", userPromptStyle.Render("  ❯ "), m.Content)
		default:
			fmt.Fprintf(t.out, "\n  %s\n", assistantStyle.Render(m.Content))
		}
	}
}

func (t *Terminal) printHeader() {
	fmt.Fprintln(t.out)
	fmt.Fprintln(t.out, "  "+logoStyle.Render("chatline"))
	if t.model != "" {
		fmt.Fprintln(t.out, mutedStyle.Render("  model: "+t.model))
	}
	fmt.Fprintln(t.out, mutedStyle.Render("  /help for commands • Ctrl+D to exit"))
}

func (t *Terminal) printHelp() {
	help := `
  ` + logoStyle.Render("Commands:") + `

  ` + mutedStyle.Render("/help") + `          Show this help
  ` + mutedStyle.Render("/clear") + `         Start a new conversation
  ` + mutedStyle.Render("/load <id>") + `     Continue a stored conversation
  ` + mutedStyle.Render("/id") + `            Show the conversation id
  ` + mutedStyle.Render("/exit") + `          Exit chatline
`
	fmt.Fprintln(t.out, help)
}
