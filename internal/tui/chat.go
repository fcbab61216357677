// Package tui provides the full-screen chat interface.
package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/eachlabs/chatline/internal/channel"
	"github.com/eachlabs/chatline/internal/exchange"
	"github.com/eachlabs/chatline/internal/transcript"
)

var (
	chatPurple = lipgloss.Color("#A855F7")
	chatGreen  = lipgloss.Color("#22C55E")
	chatRed    = lipgloss.Color("#EF4444")
	chatGray   = lipgloss.Color("#6B7280")
	chatWhite  = lipgloss.Color("#F9FAFB")

	chatTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(chatPurple).
			MarginBottom(1)

	chatUserMsgStyle = lipgloss.NewStyle().
				Foreground(chatWhite).
				Background(chatPurple).
				Padding(0, 1)

	chatUserLabelStyle = lipgloss.NewStyle().
				Foreground(chatPurple).
				Bold(true)

	chatAssistantLabelStyle = lipgloss.NewStyle().
				Foreground(chatGreen).
				Bold(true)

	chatAssistantMsgStyle = lipgloss.NewStyle().
				Foreground(chatWhite)

	chatErrorMsgStyle = lipgloss.NewStyle().
				Foreground(chatRed).
				Bold(true)

	chatInputBoxStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(chatPurple).
				Padding(0, 1)

	chatInputBoxFocusedStyle = lipgloss.NewStyle().
					Border(lipgloss.RoundedBorder()).
					BorderForeground(chatGreen).
					Padding(0, 1)

	chatStatusStyle = lipgloss.NewStyle().
			Foreground(chatGray)

	chatHelpStyle = lipgloss.NewStyle().
			Foreground(chatGray)
)

// ChatModel is the bubbletea model for the chat UI. It renders the
// transcript and status of a session and never mutates the transcript
// itself; all writes go through the session.
type ChatModel struct {
	textarea textarea.Model
	viewport viewport.Model
	spinner  spinner.Model

	session channel.Session
	stream  bool
	model   string

	messages transcript.Snapshot
	status   exchange.Status
	width    int
	height   int
	ready    bool

	// changed is signalled by transcript and status subscribers.
	changed chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
}

type refreshMsg struct {
	messages transcript.Snapshot
	status   exchange.Status
}
type sendDoneMsg struct{ err error }
type chatDoneMsg struct{}

// NewChatModel creates a chat model over session.
func NewChatModel(session channel.Session, stream bool, model string) ChatModel {
	ta := textarea.New()
	ta.Placeholder = "Type your message..."
	ta.Focus()
	ta.CharLimit = 4000
	ta.SetWidth(80)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline.SetEnabled(false) // Enter sends

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(chatPurple)

	ctx, cancel := context.WithCancel(context.Background())

	return ChatModel{
		textarea: ta,
		viewport: viewport.New(80, 20),
		spinner:  sp,
		session:  session,
		stream:   stream,
		model:    model,
		messages: session.Transcript().Snapshot(),
		status:   session.Status(),
		changed:  make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// watch subscribes to the session and returns the unsubscribe func.
func (m ChatModel) watch() func() {
	signal := func() {
		select {
		case m.changed <- struct{}{}:
		default:
		}
	}
	stopTranscript := m.session.Transcript().Subscribe(func(transcript.Snapshot) { signal() })
	stopStatus := m.session.Subscribe(func(exchange.Status) { signal() })
	return func() {
		stopTranscript()
		stopStatus()
	}
}

func (m ChatModel) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		m.waitForChange(),
	)
}

// waitForChange blocks until a subscriber fires and then reads the latest
// state. Bursts of deltas collapse into one refresh.
func (m ChatModel) waitForChange() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.ctx.Done():
			return chatDoneMsg{}
		case <-m.changed:
			return refreshMsg{
				messages: m.session.Transcript().Snapshot(),
				status:   m.session.Status(),
			}
		}
	}
}

func (m ChatModel) send(text string) tea.Cmd {
	return func() tea.Msg {
		return sendDoneMsg{err: m.session.Send(m.ctx, text, m.stream)}
	}
}

func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.cancel()
			return m, tea.Quit

		case tea.KeyCtrlL:
			if !m.status.Loading {
				m.session.Clear()
			}
			return m, nil

		case tea.KeyEnter:
			if m.status.Loading {
				return m, nil
			}
			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}
			m.textarea.Reset()
			if input == "/clear" {
				m.session.Clear()
				return m, nil
			}
			m.status.Loading = true
			return m, tea.Batch(m.send(input), m.spinner.Tick)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 3
		inputHeight := 5
		helpHeight := 2
		viewportHeight := m.height - headerHeight - inputHeight - helpHeight - 2
		if viewportHeight < 1 {
			viewportHeight = 1
		}

		if !m.ready {
			m.viewport = viewport.New(m.width-2, viewportHeight)
			m.viewport.YPosition = headerHeight
			m.ready = true
		} else {
			m.viewport.Width = m.width - 2
			m.viewport.Height = viewportHeight
		}

		m.textarea.SetWidth(m.width - 4)
		m.updateViewport()

	case refreshMsg:
		m.messages = msg.messages
		m.status = msg.status
		m.updateViewport()
		cmds = append(cmds, m.waitForChange())

	case sendDoneMsg:
		m.status = m.session.Status()
		m.messages = m.session.Transcript().Snapshot()
		m.updateViewport()

	case chatDoneMsg:
		return m, nil

	case spinner.TickMsg:
		if m.status.Loading {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	if !m.status.Loading {
		var cmd tea.Cmd
		m.textarea, cmd = m.textarea.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *ChatModel) updateViewport() {
	m.viewport.SetContent(renderMessages(m.messages, m.status))
	m.viewport.GotoBottom()
}

func renderMessages(messages transcript.Snapshot, status exchange.Status) string {
	var content strings.Builder

	for _, msg := range messages {
		switch msg.Role {
		case transcript.RoleUser:
			content.WriteString(chatUserLabelStyle.Render("You") + "\n")
			content.WriteString(chatUserMsgStyle.Render(msg.Content) + "\n\n")
		case transcript.RoleAssistant:
			content.WriteString(chatAssistantLabelStyle.Render("Assistant") + "\n")
			content.WriteString(chatAssistantMsgStyle.Render(msg.Content) + "\n\n")
		case transcript.RoleSystem:
			content.WriteString(chatStatusStyle.Render(msg.Content) + "\n\n")
		}
	}

	if status.Error != "" {
		content.WriteString(chatErrorMsgStyle.Render("Error: "+status.Error) + "\n\n")
	}
	if status.Truncated {
		content.WriteString(chatStatusStyle.Render("(response ended without a completion marker)") + "\n")
	}
	return content.String()
}

func (m ChatModel) View() string {
	if !m.ready {
		return "Loading..."
	}

	var b strings.Builder

	header := chatTitleStyle.Render("chatline")
	if m.model != "" {
		header += "  " + chatStatusStyle.Render(m.model)
	}
	if m.status.ConversationID != "" {
		header += "  " + chatStatusStyle.Render("#"+m.status.ConversationID)
	}
	b.WriteString(header + "\n")
	b.WriteString(strings.Repeat("─", max(m.width-2, 0)) + "\n")

	b.WriteString(m.viewport.View() + "\n")

	switch {
	case m.status.Loading && m.status.StreamingText != "":
		b.WriteString(m.spinner.View() + " " + chatStatusStyle.Render("Streaming...") + "\n")
	case m.status.Loading:
		b.WriteString(m.spinner.View() + " " + chatStatusStyle.Render("Thinking...") + "\n")
	case m.status.State.Terminal():
		b.WriteString(chatStatusStyle.Render("Last exchange: "+m.status.State.String()) + "\n")
	default:
		b.WriteString("\n")
	}

	b.WriteString(strings.Repeat("─", max(m.width-2, 0)) + "\n")

	inputStyle := chatInputBoxStyle
	if !m.status.Loading {
		inputStyle = chatInputBoxFocusedStyle
	}
	b.WriteString(inputStyle.Render(m.textarea.View()) + "\n")

	b.WriteString(chatHelpStyle.Render("Enter to send • Ctrl+L to clear • Esc to quit"))

	return b.String()
}

// Chat runs the chat model as a Channel.
type Chat struct {
	session channel.Session
	stream  bool
	model   string
}

// NewChat creates the full-screen chat channel.
func NewChat(session channel.Session, stream bool, model string) *Chat {
	return &Chat{session: session, stream: stream, model: model}
}

func (c *Chat) Name() string {
	return "tui"
}

// Run starts the program and blocks until the user quits.
func (c *Chat) Run(ctx context.Context) error {
	model := NewChatModel(c.session, c.stream, c.model)
	unwatch := model.watch()
	defer unwatch()

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

var _ channel.Channel = (*Chat)(nil)
