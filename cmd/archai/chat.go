package main

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/kalambet/archai/internal/conversation"
	"github.com/kalambet/archai/internal/requirements"
	"github.com/kalambet/archai/internal/session"
	"github.com/kalambet/archai/internal/stage"
)

var chatCmd = &cobra.Command{
	Use:   "chat [session-id]",
	Short: "Chat with the design assistant in the terminal",
	Long: `Chat with the design assistant in the terminal.

Without a session id a new session is started. Inside the chat:
  /upload <file>          attach an inspiration image
  /edit <field> <value>   change a collected requirement
  /render, /skip          choose whether to render an interior
  /explain                explain the design rationale
  /export [dir]           write the prompt and images to disk
  /dismiss                clear a failure notice
  /quit                   leave the chat (the session is kept)`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		var snap session.Snapshot
		if len(args) == 1 {
			resp, err := client.get(ctx, "/sessions/"+args[0])
			if err != nil {
				return err
			}
			if err := decodeJSON(resp, &snap); err != nil {
				return err
			}
		} else {
			resp, err := client.post(ctx, "/sessions", nil)
			if err != nil {
				return err
			}
			if err := decodeJSON(resp, &snap); err != nil {
				return err
			}
		}

		conn, err := client.dialEvents(ctx, snap.ID)
		if err != nil {
			return err
		}
		defer conn.Close()

		events := streamEvents(conn)
		m := newChatModel(client, snap, events)
		final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
		if err != nil {
			return err
		}
		if fm, ok := final.(chatModel); ok {
			if fm.deleted {
				printWarning("Session %s was deleted", snap.ID)
			} else {
				printStep("Resume with `archai chat %s`", snap.ID)
			}
		}
		return nil
	},
}

// streamEvents pumps websocket events into a channel that closes when the
// connection ends.
func streamEvents(conn *websocket.Conn) <-chan session.Event {
	ch := make(chan session.Event, 8)
	go func() {
		defer close(ch)
		for {
			var ev session.Event
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			ch <- ev
		}
	}()
	return ch
}

type (
	eventMsg     session.Event
	streamEndMsg struct{}
	snapshotMsg  session.Snapshot
	infoMsg      string
	chatErrMsg   struct{ err error }
)

type chatCommand struct {
	name string
	args []string
}

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	rhetoricStyle  = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("244"))
	noticeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	infoStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	helpStyle      = lipgloss.NewStyle().Faint(true)
	barStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("62"))
	panelStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
)

type chatModel struct {
	client *apiClient
	events <-chan session.Event

	snap    session.Snapshot
	info    string
	err     error
	sending bool
	deleted bool

	width, height int
	viewport      viewport.Model
	input         textinput.Model
	spinner       spinner.Model
}

func newChatModel(client *apiClient, snap session.Snapshot, events <-chan session.Event) chatModel {
	ti := textinput.New()
	ti.Placeholder = "Describe your home..."
	ti.CharLimit = 2000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := chatModel{
		client:   client,
		events:   events,
		snap:     snap,
		viewport: viewport.New(80, 20),
		input:    ti,
		spinner:  sp,
	}
	m.refresh()
	return m
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitForEvent(m.events))
}

func waitForEvent(ch <-chan session.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return streamEndMsg{}
		}
		return eventMsg(ev)
	}
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			line := strings.TrimSpace(m.input.Value())
			if line == "" {
				return m, nil
			}
			m.input.SetValue("")
			m.err = nil
			m.info = ""
			if strings.HasPrefix(line, "/") {
				c, err := parseChatCommand(line)
				if err != nil {
					m.err = err
					return m, nil
				}
				if c.name == "quit" {
					return m, tea.Quit
				}
				return m, m.runCommand(c)
			}
			if !m.acceptsInput() {
				m.err = errors.New("the assistant is not taking messages right now")
				return m, nil
			}
			m.sending = true
			m.refresh()
			return m, m.send(line)
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-lipgloss.Height(m.header())-lipgloss.Height(m.footer()), 3)
		m.input.Width = max(msg.Width-4, 10)
		m.refresh()

	case eventMsg:
		if msg.Type == session.EventDeleted {
			m.deleted = true
			return m, tea.Quit
		}
		m.snap = msg.Session
		m.refresh()
		return m, waitForEvent(m.events)

	case streamEndMsg:
		if m.err == nil {
			m.err = errors.New("lost connection to the server")
		}
		return m, nil

	case snapshotMsg:
		m.sending = false
		m.snap = session.Snapshot(msg)
		m.refresh()
		return m, nil

	case infoMsg:
		m.sending = false
		m.info = string(msg)
		return m, nil

	case chatErrMsg:
		m.sending = false
		m.err = msg.err
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m chatModel) acceptsInput() bool {
	return !m.snap.Busy && !m.sending && stage.AcceptsInput(m.snap.Stage)
}

// refresh re-renders the transcript and syncs the input with the stage.
func (m *chatModel) refresh() {
	m.viewport.SetContent(renderTranscript(m.snap.Turns, m.viewport.Width))
	m.viewport.GotoBottom()

	switch {
	case m.snap.Stage == stage.Floorplan && !m.snap.Busy:
		m.input.Placeholder = "Type /render for an interior view or /skip to finish"
	case !m.acceptsInput():
		m.input.Placeholder = "Working on your design..."
	default:
		m.input.Placeholder = "Describe your home..."
	}
}

func (m chatModel) View() string {
	return lipgloss.JoinVertical(lipgloss.Left, m.header(), m.viewport.View(), m.footer())
}

func (m chatModel) header() string {
	line := fmt.Sprintf("%s  %s  %s", titleStyle.Render("archai"), m.snap.Stage.Title(), stageBar(m.snap.Stage, 20))
	if m.snap.Busy || m.sending {
		line += " " + m.spinner.View()
	}
	return line + "\n" + helpStyle.Render(requirementsLine(m.snap.Record))
}

func (m chatModel) footer() string {
	var b strings.Builder
	if m.snap.Notice != "" {
		b.WriteString(noticeStyle.Render("! "+m.snap.Notice+"  (/dismiss)") + "\n")
	}
	if m.err != nil {
		b.WriteString(noticeStyle.Render("error: "+m.err.Error()) + "\n")
	}
	if m.info != "" {
		b.WriteString(infoStyle.Render(m.info) + "\n")
	}
	b.WriteString(panelStyle.Render(m.input.View()) + "\n")
	b.WriteString(helpStyle.Render("enter send · /upload /edit /render /skip /explain /export /quit · esc quit"))
	return b.String()
}

// stageBar draws progress through stage.All as a fixed-width bar.
func stageBar(s stage.Stage, width int) string {
	filled := 0
	if idx := s.Index(); idx > 0 {
		filled = idx * width / (len(stage.All) - 1)
	}
	return barStyle.Render(strings.Repeat("█", filled)) + helpStyle.Render(strings.Repeat("░", width-filled))
}

// requirementsLine summarizes how many collected fields are answered.
func requirementsLine(rec requirements.Record) string {
	done := 0
	for _, f := range requirements.CollectedFields {
		if rec.Get(f).IsSet() {
			done++
		}
	}
	return fmt.Sprintf("%d/%d requirements gathered", done, len(requirements.CollectedFields))
}

func renderTranscript(turns []conversation.Turn, width int) string {
	wrap := lipgloss.NewStyle()
	if width > 0 {
		wrap = wrap.Width(width)
	}
	var b strings.Builder
	for _, t := range turns {
		var line string
		switch {
		case t.Role == conversation.User:
			line = userStyle.Render("you") + "  " + t.Text
		case t.Rhetorical:
			line = rhetoricStyle.Render(t.Text)
		default:
			line = assistantStyle.Render("archai") + "  " + t.Text
		}
		b.WriteString(wrap.Render(line))
		b.WriteString("\n\n")
	}
	return b.String()
}

var chatCommandArity = map[string]int{
	"upload":  1,
	"edit":    2,
	"render":  0,
	"skip":    0,
	"explain": 0,
	"export":  0,
	"dismiss": 0,
	"quit":    0,
}

// parseChatCommand splits "/name args..." and checks the minimum number of
// arguments. The last argument of /edit keeps its spaces.
func parseChatCommand(line string) (chatCommand, error) {
	fields := strings.Fields(strings.TrimPrefix(line, "/"))
	if len(fields) == 0 {
		return chatCommand{}, errors.New("empty command")
	}
	name := strings.ToLower(fields[0])
	if name == "exit" {
		name = "quit"
	}
	need, ok := chatCommandArity[name]
	if !ok {
		return chatCommand{}, fmt.Errorf("unknown command /%s", fields[0])
	}
	args := fields[1:]
	if len(args) < need {
		return chatCommand{}, fmt.Errorf("/%s needs %d argument(s)", name, need)
	}
	if name == "edit" {
		args = []string{args[0], strings.Join(args[1:], " ")}
	}
	return chatCommand{name: name, args: args}, nil
}

func (m chatModel) send(text string) tea.Cmd {
	client, id := m.client, m.snap.ID
	return func() tea.Msg {
		resp, err := client.post(context.Background(), "/sessions/"+id+"/messages", map[string]string{"text": text})
		if err != nil {
			return chatErrMsg{err}
		}
		var snap session.Snapshot
		if err := decodeJSON(resp, &snap); err != nil {
			if isStatus(err, http.StatusBadGateway) {
				return chatErrMsg{errors.New("the assistant could not process that message; nothing was changed, try again")}
			}
			return chatErrMsg{err}
		}
		return snapshotMsg(snap)
	}
}

func (m chatModel) runCommand(c chatCommand) tea.Cmd {
	client, id := m.client, m.snap.ID
	ctx := context.Background()
	base := "/sessions/" + id

	snapshot := func(resp *http.Response, err error) tea.Msg {
		if err != nil {
			return chatErrMsg{err}
		}
		var snap session.Snapshot
		if err := decodeJSON(resp, &snap); err != nil {
			return chatErrMsg{err}
		}
		return snapshotMsg(snap)
	}

	return func() tea.Msg {
		switch c.name {
		case "render", "skip":
			return snapshot(client.post(ctx, base+"/interior", map[string]bool{"render": c.name == "render"}))
		case "dismiss":
			return snapshot(client.delete(ctx, base+"/notice"))
		case "edit":
			field, ok := requirements.ParseField(c.args[0])
			if !ok || !field.IsCollected() {
				return chatErrMsg{fmt.Errorf("unknown requirement field %q", c.args[0])}
			}
			return snapshot(client.patch(ctx, base+"/requirements", map[string]string{string(field): c.args[1]}))
		case "upload":
			path := c.args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return chatErrMsg{fmt.Errorf("reading image: %w", err)}
			}
			mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
			if mimeType == "" {
				mimeType = http.DetectContentType(data)
			}
			msg := snapshot(client.upload(ctx, base+"/inspiration", path, mimeType, data))
			if _, failed := msg.(chatErrMsg); failed {
				return msg
			}
			return infoMsg("Attached " + filepath.Base(path) + " as inspiration")
		case "explain":
			resp, err := client.get(ctx, base+"/rationale")
			if err != nil {
				return chatErrMsg{err}
			}
			var out struct {
				Explanation string `json:"explanation"`
			}
			if err := decodeJSON(resp, &out); err != nil {
				return chatErrMsg{err}
			}
			return infoMsg(out.Explanation)
		case "export":
			dir := "archai-" + id
			if len(c.args) > 0 {
				dir = c.args[0]
			}
			written, err := exportSession(ctx, client, id, dir)
			if err != nil {
				return chatErrMsg{err}
			}
			if len(written) == 0 {
				return infoMsg("Nothing to export yet")
			}
			return infoMsg("Exported " + strings.Join(written, ", "))
		}
		return chatErrMsg{fmt.Errorf("unknown command /%s", c.name)}
	}
}
