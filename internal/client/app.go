package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/fenggwsx/StudyChat/internal/config"
	"github.com/fenggwsx/StudyChat/internal/protocol"
)

const sendTimeout = 5 * time.Second

// App is the bubbletea model for the terminal client.
type App struct {
	cfg     config.ClientConfig
	session *Session

	connected bool
	name      string
	token     string
	userID    string

	rooms    []protocol.Room
	roomID   string
	roomName string

	lines      []string
	typers     map[string]struct{}
	typingSent bool

	input    textinput.Model
	viewport viewport.Model
	styles   styles
	status   string
	width    int
	height   int
	ready    bool
}

// NewApp constructs the client model.
func NewApp(cfg config.ClientConfig) *App {
	input := textinput.New()
	input.Placeholder = fmt.Sprintf("Type a message, or %chelp for commands", cfg.CommandPrefix)
	input.CharLimit = 1024
	input.Focus()

	return &App{
		cfg:    cfg,
		input:  input,
		typers: make(map[string]struct{}),
		styles: newStyles(),
		status: "offline",
	}
}

type connectResultMsg struct{ err error }

type envelopeMsg struct{ env protocol.Envelope }

type sessionClosedMsg struct{}

type identityMsg struct {
	identity Identity
	err      error
}

func (a *App) Init() tea.Cmd {
	return textinput.Blink
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.resize(msg.Width, msg.Height)
		return a, nil
	case tea.KeyMsg:
		return a.handleKey(msg)
	case connectResultMsg:
		return a.handleConnectResult(msg)
	case envelopeMsg:
		a.processEnvelope(msg.env)
		a.refreshViewport()
		return a, a.waitForEnvelope()
	case sessionClosedMsg:
		a.connected = false
		a.roomID = ""
		a.roomName = ""
		a.status = "disconnected"
		a.logf("Connection closed")
		a.refreshViewport()
		return a, nil
	case identityMsg:
		if msg.err != nil {
			a.logf("Identity request failed: %v", msg.err)
		} else {
			a.token = msg.identity.Token
			a.userID = msg.identity.UserID
			a.name = msg.identity.Name
			a.logf("Identity token issued for %s", msg.identity.Name)
		}
		a.refreshViewport()
		return a, nil
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		if a.session != nil {
			_ = a.session.Close()
		}
		return a, tea.Quit
	case tea.KeyEnter:
		return a, a.handleEnter()
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)

	cmds := []tea.Cmd{cmd}
	if typingCmd := a.maybeNotifyTyping(); typingCmd != nil {
		cmds = append(cmds, typingCmd)
	}
	return a, tea.Batch(cmds...)
}

func (a *App) handleEnter() tea.Cmd {
	value := strings.TrimSpace(a.input.Value())
	a.input.SetValue("")

	stopCmd := a.stopTypingCmd()

	if value == "" {
		return stopCmd
	}
	if strings.HasPrefix(value, string(a.cfg.CommandPrefix)) {
		return tea.Batch(stopCmd, a.executeCommand(value[1:]))
	}

	if a.roomID == "" {
		a.logf("Join a room before chatting")
		a.refreshViewport()
		return stopCmd
	}
	return tea.Batch(stopCmd, a.sendCmd(protocol.EventSendMessage, protocol.SendMessageRequest{
		RoomID: a.roomID,
		Body:   value,
	}))
}

func (a *App) executeCommand(raw string) tea.Cmd {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil
	}
	command := strings.ToLower(fields[0])
	args := fields[1:]

	switch command {
	case "connect":
		return a.commandConnect()
	case "name":
		return a.commandName(args)
	case "rooms":
		a.logRooms()
		a.refreshViewport()
		return nil
	case "create":
		return a.commandCreate(args)
	case "join":
		return a.commandJoin(args)
	case "delete":
		return a.commandDelete(args)
	case "help":
		a.logHelp()
		a.refreshViewport()
		return nil
	case "quit":
		if a.session != nil {
			_ = a.session.Close()
		}
		return tea.Quit
	default:
		a.logf("Unknown command: %s", command)
		a.refreshViewport()
		return nil
	}
}

func (a *App) commandConnect() tea.Cmd {
	if a.connected {
		a.logf("Already connected to %s", a.cfg.ServerAddr)
		a.refreshViewport()
		return nil
	}
	session := NewSession(a.cfg)
	a.session = session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		return connectResultMsg{err: session.Connect(ctx)}
	}
}

func (a *App) commandName(args []string) tea.Cmd {
	if len(args) < 1 {
		a.logf("Usage: %cname <display-name>", a.cfg.CommandPrefix)
		a.refreshViewport()
		return nil
	}
	name := strings.Join(args, " ")
	a.name = name
	a.logf("Display name set to %s", name)
	a.refreshViewport()

	identityURL := a.cfg.IdentityURL
	if identityURL == "" {
		return nil
	}
	return func() tea.Msg {
		identity, err := FetchIdentity(context.Background(), identityURL, name)
		return identityMsg{identity: identity, err: err}
	}
}

func (a *App) commandCreate(args []string) tea.Cmd {
	if !a.ensureReady(true) {
		return nil
	}
	if len(args) < 1 {
		a.logf("Usage: %ccreate <room> [password]", a.cfg.CommandPrefix)
		a.refreshViewport()
		return nil
	}
	req := protocol.CreateRoomRequest{Name: args[0], User: a.name}
	if len(args) > 1 {
		req.Password = args[1]
	}
	return a.sendCmd(protocol.EventCreateRoom, req)
}

func (a *App) commandJoin(args []string) tea.Cmd {
	if !a.ensureReady(true) {
		return nil
	}
	if len(args) < 1 {
		a.logf("Usage: %cjoin <room> [password]", a.cfg.CommandPrefix)
		a.refreshViewport()
		return nil
	}
	room, ok := a.roomByName(args[0])
	if !ok {
		a.logf("Unknown room %q; try %crooms", args[0], a.cfg.CommandPrefix)
		a.refreshViewport()
		return nil
	}
	req := protocol.JoinRoomRequest{RoomID: room.ID, User: a.name}
	if len(args) > 1 {
		req.Password = args[1]
	}
	return a.sendCmd(protocol.EventJoinRoom, req)
}

func (a *App) commandDelete(args []string) tea.Cmd {
	if !a.ensureReady(true) {
		return nil
	}
	if len(args) < 1 {
		a.logf("Usage: %cdelete <room>", a.cfg.CommandPrefix)
		a.refreshViewport()
		return nil
	}
	room, ok := a.roomByName(args[0])
	if !ok {
		a.logf("Unknown room %q", args[0])
		a.refreshViewport()
		return nil
	}
	return a.sendCmd(protocol.EventDeleteRoom, protocol.DeleteRoomRequest{RoomID: room.ID, User: a.name})
}

func (a *App) handleConnectResult(msg connectResultMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		a.logf("Connect failed: %v", msg.err)
		a.session = nil
		a.refreshViewport()
		return a, nil
	}
	a.connected = true
	a.status = "connected"
	a.logf("Connected to %s", a.cfg.ServerAddr)
	a.refreshViewport()
	return a, tea.Batch(a.waitForEnvelope(), a.waitForClose())
}

func (a *App) waitForEnvelope() tea.Cmd {
	session := a.session
	if session == nil {
		return nil
	}
	return func() tea.Msg {
		env, ok := <-session.Envelopes()
		if !ok {
			return sessionClosedMsg{}
		}
		return envelopeMsg{env: env}
	}
}

func (a *App) waitForClose() tea.Cmd {
	session := a.session
	if session == nil {
		return nil
	}
	return func() tea.Msg {
		<-session.Closed()
		return sessionClosedMsg{}
	}
}

// maybeNotifyTyping emits a typing event on the first keystroke of a chat
// message and nothing afterwards; the server relays it to the room.
func (a *App) maybeNotifyTyping() tea.Cmd {
	if a.typingSent || a.roomID == "" || !a.connected {
		return nil
	}
	value := a.input.Value()
	if value == "" || strings.HasPrefix(value, string(a.cfg.CommandPrefix)) {
		return nil
	}
	a.typingSent = true
	return a.sendCmd(protocol.EventTyping, protocol.TypingRequest{RoomID: a.roomID, User: a.name})
}

func (a *App) stopTypingCmd() tea.Cmd {
	if !a.typingSent || a.roomID == "" || !a.connected {
		a.typingSent = false
		return nil
	}
	a.typingSent = false
	return a.sendCmd(protocol.EventStopTyping, protocol.TypingRequest{RoomID: a.roomID, User: a.name})
}

func (a *App) sendCmd(eventType protocol.EventType, payload interface{}) tea.Cmd {
	session := a.session
	if session == nil {
		return nil
	}
	env := protocol.Envelope{
		Type:    eventType,
		Token:   a.token,
		Payload: payload,
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := session.Send(ctx, env); err != nil {
			return sessionClosedMsg{}
		}
		return nil
	}
}

func (a *App) ensureReady(needName bool) bool {
	if !a.connected {
		a.logf("Not connected; use %cconnect first", a.cfg.CommandPrefix)
		a.refreshViewport()
		return false
	}
	if needName && a.name == "" {
		a.logf("Set a display name first: %cname <name>", a.cfg.CommandPrefix)
		a.refreshViewport()
		return false
	}
	return true
}

func (a *App) roomByName(name string) (protocol.Room, bool) {
	for _, room := range a.rooms {
		if strings.EqualFold(room.Name, name) {
			return room, true
		}
	}
	return protocol.Room{}, false
}

func (a *App) logf(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	a.lines = append(a.lines, a.styles.notice.Render("* "+line))
}

func (a *App) logRooms() {
	if len(a.rooms) == 0 {
		a.logf("No rooms known yet")
		return
	}
	a.logf("Rooms:")
	for _, room := range a.rooms {
		marker := ""
		if room.Protected {
			marker = " [locked]"
		}
		a.lines = append(a.lines, fmt.Sprintf("  %s%s (admin: %s)", room.Name, marker, room.Admin))
	}
}

func (a *App) logHelp() {
	prefix := a.cfg.CommandPrefix
	a.logf("Commands:")
	for _, usage := range []string{
		fmt.Sprintf("%cconnect - dial the server", prefix),
		fmt.Sprintf("%cname <name> - set display name and fetch an identity token", prefix),
		fmt.Sprintf("%crooms - list rooms", prefix),
		fmt.Sprintf("%ccreate <room> [password] - create a room", prefix),
		fmt.Sprintf("%cjoin <room> [password] - join a room", prefix),
		fmt.Sprintf("%cdelete <room> - delete a room you created", prefix),
		fmt.Sprintf("%cquit - exit", prefix),
	} {
		a.lines = append(a.lines, "  "+usage)
	}
}
