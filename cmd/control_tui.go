// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Thermoquad/bartender/pkg/protocol"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	statusPollSeconds = 5 // Poll status every N seconds while nothing is in flight
	maxPourAmount     = 20
)

// Focus states
const (
	focusActionList = iota
	focusArgInput
	focusButton
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// action is one command the operator can send
type action struct {
	command uint8
	name    string
	help    string
	argName string // empty when the command takes no argument
}

// Implement list.Item interface
func (a action) Title() string       { return a.name }
func (a action) Description() string { return a.help }
func (a action) FilterValue() string { return a.name }

var controlActions = []action{
	{protocol.CmdMove, "Move", "Drive to a station", "Location"},
	{protocol.CmdPour, "Pour", "Dispense at this station", "Amount"},
	{protocol.CmdStatus, "Status", "Query machine status", ""},
	{protocol.CmdLocation, "Location", "Query location", ""},
	{protocol.CmdStop, "Stop", "Send stop", ""},
}

// logEntry is one line of the event log
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// pendingCommand is a two-phase command waiting for its final response
type pendingCommand struct {
	command  uint8
	arg      uint8
	sent     time.Time
	accepted bool
}

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	// Link to the bartender (for sending commands)
	link     *controlLink
	connInfo string

	// Machine view, as last reported
	status       uint8
	hasStatus    bool
	location     uint8
	hasLocation  bool
	lastResponse time.Time

	pending *pendingCommand

	// Monitoring
	stats         *protocol.Statistics
	eventLog      []logEntry
	maxLogEntries int

	// Control
	actionList   list.Model
	argInput     textinput.Model
	focusedField int

	// UI state
	width          int
	height         int
	synchronized   bool
	quitting       bool
	connectionLost bool

	lastPoll time.Time
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

type controlDataMsg struct {
	frame     *protocol.Frame
	decodeErr error
}

type controlSyncMsg struct {
	skippedBytes int
}

type connectionLostMsg struct{}

type reconnectedMsg struct {
	connInfo string
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(cl *controlLink, connInfo string) controlModel {
	ti := textinput.New()
	ti.Placeholder = "0"
	ti.CharLimit = 3
	ti.Width = 6

	items := make([]list.Item, len(controlActions))
	for i, a := range controlActions {
		items[i] = a
	}

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	actionList := list.New(items, delegate, 30, 12)
	actionList.Title = "Commands"
	actionList.SetShowStatusBar(false)
	actionList.SetShowHelp(false)
	actionList.SetFilteringEnabled(false)

	return controlModel{
		link:          cl,
		connInfo:      connInfo,
		stats:         protocol.NewStatistics(),
		eventLog:      make([]logEntry, 0),
		maxLogEntries: 100,
		actionList:    actionList,
		argInput:      ti,
		focusedField:  focusActionList,
		width:         80,
		height:        24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return controlTickCmd()
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.MouseMsg:
		return m.handleMouseMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case controlTickMsg:
		m.stats.CalculateRates()
		// Status polls would queue behind a move or pour, so only poll
		// while nothing is in flight
		if m.pending == nil && !m.connectionLost &&
			time.Since(m.lastPoll) >= time.Duration(statusPollSeconds)*time.Second {
			m.lastPoll = time.Now()
			_ = m.link.send(protocol.NewStatusCommand())
		}
		return m, controlTickCmd()

	case controlSyncMsg:
		m.synchronized = true
		if msg.skippedBytes > 0 {
			m.addLogEntry(fmt.Sprintf("Synchronized after skipping %d bytes", msg.skippedBytes), false)
		} else {
			m.addLogEntry("Synchronized", false)
		}

	case controlDataMsg:
		m.processControlData(msg)

	case connectionLostMsg:
		m.connectionLost = true
		m.pending = nil
		m.addLogEntry("Connection lost - reconnecting...", true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.synchronized = false
		m.addLogEntry("Reconnected", false)
	}

	var cmd tea.Cmd
	if m.focusedField == focusArgInput {
		m.argInput, cmd = m.argInput.Update(msg)
		cmds = append(cmds, cmd)
	}
	if m.focusedField == focusActionList {
		m.actionList, cmd = m.actionList.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab":
		return m.cycleFocus(1), nil

	case "shift+tab":
		return m.cycleFocus(-1), nil

	case "enter":
		return m.handleEnter()

	case "up", "k", "down", "j":
		if m.focusedField == focusActionList {
			m.actionList, _ = m.actionList.Update(msg)
			return m, nil
		}
	}

	if m.focusedField == focusArgInput {
		var cmd tea.Cmd
		m.argInput, cmd = m.argInput.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *controlModel) handleMouseMsg(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if msg.Action != tea.MouseActionRelease || msg.Button != tea.MouseButtonLeft {
		return m, nil
	}
	m.actionList, _ = m.actionList.Update(msg)
	return m, nil
}

func (m *controlModel) cycleFocus(delta int) *controlModel {
	maxFocus := focusButton
	m.focusedField = (m.focusedField + delta + maxFocus + 1) % (maxFocus + 1)

	// Skip the argument field for commands without one
	if m.focusedField == focusArgInput && m.selectedAction().argName == "" {
		m.focusedField = (m.focusedField + delta + maxFocus + 1) % (maxFocus + 1)
	}

	if m.focusedField == focusArgInput {
		m.argInput.Focus()
	} else {
		m.argInput.Blur()
	}
	return m
}

func (m *controlModel) handleEnter() (tea.Model, tea.Cmd) {
	if m.connectionLost {
		m.addLogEntry("Cannot send command: connection lost", true)
		return m, nil
	}

	a := m.selectedAction()

	// Stop is always allowed; everything else queues behind a busy machine
	if m.pending != nil && a.command != protocol.CmdStop {
		m.addLogEntry(fmt.Sprintf("%s still in progress", protocol.FormatCommand(m.pending.command)), true)
		return m, nil
	}

	var msg protocol.Message
	var arg uint8
	switch a.command {
	case protocol.CmdMove, protocol.CmdPour:
		v, err := m.parseArg(a)
		if err != nil {
			m.addLogEntry(err.Error(), true)
			return m, nil
		}
		arg = v
		if a.command == protocol.CmdMove {
			msg = protocol.NewMoveCommand(arg)
		} else {
			msg = protocol.NewPourCommand(arg)
		}
	case protocol.CmdStatus:
		msg = protocol.NewStatusCommand()
	case protocol.CmdLocation:
		msg = protocol.NewLocationCommand()
	case protocol.CmdStop:
		msg = protocol.NewStopCommand()
	}

	if err := m.link.send(msg); err != nil {
		m.addLogEntry(fmt.Sprintf("Failed to send %s: %v", a.name, err), true)
		return m, nil
	}

	if protocol.IsTwoPhase(a.command) {
		m.pending = &pendingCommand{command: a.command, arg: arg, sent: time.Now()}
		m.addLogEntry(fmt.Sprintf("Sent %s %d", strings.ToUpper(a.name), arg), false)
	} else {
		m.addLogEntry(fmt.Sprintf("Sent %s", strings.ToUpper(a.name)), false)
	}
	return m, nil
}

func (m *controlModel) parseArg(a action) (uint8, error) {
	raw := m.argInput.Value()
	if raw == "" {
		raw = m.argInput.Placeholder
	}

	v, err := strconv.ParseUint(raw, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %s", strings.ToLower(a.argName), raw)
	}

	switch a.command {
	case protocol.CmdMove:
		if v > protocol.MaxLocation {
			return 0, fmt.Errorf("location must be between 0 and %d", protocol.MaxLocation)
		}
	case protocol.CmdPour:
		if v == 0 || v > maxPourAmount {
			return 0, fmt.Errorf("amount must be between 1 and %d", maxPourAmount)
		}
	}
	return uint8(v), nil
}

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	buttonStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12")).
		Padding(0, 2)

	focusedButtonStyle := buttonStyle.
		Background(lipgloss.Color("10"))

	// Header
	s.WriteString(titleStyle.Render("BARTENDER CONTROL"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit Tab=switch Enter=send", connStatus)))
	s.WriteString("\n\n")

	// Layout: left panel (commands) | right panel (machine + send)
	leftWidth := 30
	rightWidth := m.width - leftWidth - 6

	listStyle := boxStyle.Width(leftWidth)
	if m.focusedField == focusActionList {
		listStyle = focusedBoxStyle.Width(leftWidth)
	}
	actionPanel := listStyle.Render(m.actionList.View())

	controlContent := m.renderControlPanel(statsLabelStyle, statsValueStyle, headerStyle, warningStyle, buttonStyle, focusedButtonStyle)
	controlPanel := boxStyle.Width(rightWidth).Render(controlContent)

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, actionPanel, " ", controlPanel))
	s.WriteString("\n\n")

	s.WriteString(m.renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle))
	s.WriteString("\n\n")

	s.WriteString(m.renderEventLog(statsLabelStyle, warningStyle, boxStyle))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m controlModel) renderControlPanel(statsLabelStyle, statsValueStyle, headerStyle, warningStyle, buttonStyle, focusedButtonStyle lipgloss.Style) string {
	var s strings.Builder

	// Machine state
	status := "unknown"
	if m.hasStatus {
		status = protocol.FormatStatus(m.status)
	}
	location := "unknown"
	if m.hasLocation {
		location = fmt.Sprintf("%d", m.location)
	}
	s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Status:"), statsValueStyle.Render(status)))
	s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Location:"), statsValueStyle.Render(location)))
	if !m.lastResponse.IsZero() {
		s.WriteString(headerStyle.Render(fmt.Sprintf("last response %s ago", time.Since(m.lastResponse).Truncate(time.Second))))
	}
	s.WriteString("\n\n")

	// In-flight command
	if m.pending != nil {
		phase := "sent"
		if m.pending.accepted {
			phase = "accepted"
		}
		s.WriteString(warningStyle.Render(fmt.Sprintf("%s %d %s (%s)",
			protocol.FormatCommand(m.pending.command), m.pending.arg, phase,
			time.Since(m.pending.sent).Truncate(time.Second))))
		s.WriteString("\n\n")
	}

	// Argument and send button for the selected command
	a := m.selectedAction()
	if a.argName != "" {
		s.WriteString(statsLabelStyle.Render(a.argName + ": "))
		if m.focusedField == focusArgInput {
			s.WriteString(m.argInput.View())
		} else {
			val := m.argInput.Value()
			if val == "" {
				val = m.argInput.Placeholder
			}
			s.WriteString(fmt.Sprintf("[%s]", val))
		}
		s.WriteString("\n\n")
	}

	btnText := fmt.Sprintf("[ Send %s ]", a.name)
	if m.focusedField == focusButton {
		s.WriteString(focusedButtonStyle.Render(btnText))
	} else {
		s.WriteString(buttonStyle.Render(btnText))
	}

	return s.String()
}

func (m controlModel) renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle lipgloss.Style) string {
	m.stats.CalculateRates()

	errorCount := m.stats.DecodeErrors + m.stats.ErrorResponses
	errors := statsValueStyle.Render("0")
	if errorCount > 0 {
		errors = errorStyle.Render(fmt.Sprintf("%d", errorCount))
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s",
		statsLabelStyle.Render("Frames:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.TotalFrames)),
		statsLabelStyle.Render("Complete:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.Completions)),
		statsLabelStyle.Render("Errors:"), errors,
		statsLabelStyle.Render("Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f frm/s", m.stats.FrameRate)),
	)

	return boxStyle.Width(m.width - 4).Render(content)
}

func (m controlModel) renderEventLog(statsLabelStyle, warningStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("EVENTS"))
	s.WriteString("\n")

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyleLocal := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	logHeight := 8
	if len(m.eventLog) < logHeight {
		logHeight = len(m.eventLog)
	}
	startIdx := len(m.eventLog) - logHeight

	if len(m.eventLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyleLocal
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(entry.timestamp.Format("15:04:05.000")),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

func (m *controlModel) processControlData(msg controlDataMsg) {
	if msg.decodeErr != nil {
		m.stats.Update(nil, msg.decodeErr)
		if m.synchronized {
			m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v", msg.decodeErr), true)
		}
		return
	}
	if msg.frame == nil {
		return
	}

	m.stats.Update(msg.frame, nil)

	rsp := &msg.frame.Message
	if !rsp.IsResponse() {
		return
	}
	m.lastResponse = msg.frame.Timestamp

	cmd := rsp.Command()
	code := rsp.ResponseCode()

	switch {
	case cmd == protocol.CmdStatus && code == protocol.RspOk:
		prev := m.status
		m.status = protocol.StatusOf(rsp)
		if !m.hasStatus || prev != m.status {
			m.addLogEntry(fmt.Sprintf("Status: %s", protocol.FormatStatus(m.status)), false)
		}
		m.hasStatus = true
		return

	case cmd == protocol.CmdLocation || cmd == protocol.CmdStop:
		m.addLogEntry(fmt.Sprintf("%s %s", protocol.FormatCommand(cmd), protocol.FormatResponseCode(code)), code != protocol.RspOk)
		return
	}

	if m.pending == nil || (cmd != m.pending.command && cmd != protocol.Blank) {
		m.addLogEntry(fmt.Sprintf("Unexpected %s %s", protocol.FormatCommand(cmd), protocol.FormatResponseCode(code)), true)
		return
	}

	switch code {
	case protocol.RspOk:
		m.pending.accepted = true
		m.addLogEntry(fmt.Sprintf("%s accepted", protocol.FormatCommand(cmd)), false)

	case protocol.RspComplete:
		elapsed := time.Since(m.pending.sent).Truncate(100 * time.Millisecond)
		if cmd == protocol.CmdMove {
			m.location = m.pending.arg
			m.hasLocation = true
		}
		m.addLogEntry(fmt.Sprintf("%s complete in %s", protocol.FormatCommand(cmd), elapsed), false)
		m.pending = nil
		m.lastPoll = time.Time{}

	default:
		m.addLogEntry(fmt.Sprintf("%s failed: %s", protocol.FormatCommand(m.pending.command), protocol.FormatResponseCode(code)), true)
		m.pending = nil
		m.lastPoll = time.Time{}
	}
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *controlModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m controlModel) selectedAction() action {
	idx := m.actionList.Index()
	if idx < 0 || idx >= len(controlActions) {
		return controlActions[0]
	}
	return controlActions[idx]
}

func (m *controlModel) updateListSize() {
	listHeight := m.height / 3
	if listHeight < 10 {
		listHeight = 10
	}
	m.actionList.SetSize(28, listHeight)
}
