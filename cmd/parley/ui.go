// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/parley-chat/parley/discovery"
	"github.com/parley-chat/parley/lib/ref"
	"github.com/parley-chat/parley/roomstore"
	"github.com/parley-chat/parley/session"
	"github.com/parley-chat/parley/stanza"
)

const (
	roomListWidth = 28
	sendTimeout   = 15 * time.Second
)

var (
	roomListStyle = lipgloss.NewStyle().
			Width(roomListWidth).
			BorderStyle(lipgloss.NormalBorder()).
			BorderRight(true)
	selectedRoomStyle = lipgloss.NewStyle().Bold(true).Reverse(true)
	senderStyle       = lipgloss.NewStyle().Bold(true)
	timestampStyle    = lipgloss.NewStyle().Faint(true)
	reactionStyle     = lipgloss.NewStyle().Faint(true)
	composingStyle    = lipgloss.NewStyle().Italic(true).Faint(true)
	errorStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))

	statusStyles = map[session.Status]lipgloss.Style{
		session.StatusOnline:     lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		session.StatusConnecting: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		session.StatusOffline:    lipgloss.NewStyle().Faint(true),
		session.StatusError:      lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	}
)

// refreshMsg signals that the room store changed.
type refreshMsg struct{}

// statusMsg carries a connection status transition.
type statusMsg session.Status

// sendResultMsg reports the outcome of an asynchronous message send.
type sendResultMsg struct{ err error }

type model struct {
	client  *session.Client
	store   *roomstore.Store
	account ref.JID

	rooms    []roomstore.Room
	selected int
	status   session.Status
	sync     discovery.Outcome
	lastErr  string
	typing   bool

	viewport viewport.Model
	input    textinput.Model
	width    int
	height   int
	ready    bool
}

func newModel(client *session.Client, store *roomstore.Store, account ref.JID, sync discovery.Outcome) model {
	input := textinput.New()
	input.Placeholder = "message"
	input.CharLimit = 2000
	input.Focus()
	return model{
		client:  client,
		store:   store,
		account: account,
		rooms:   store.Rooms(),
		status:  client.Status(),
		sync:    sync,
		input:   input,
	}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		chatWidth := max(msg.Width-roomListWidth-1, 20)
		chatHeight := max(msg.Height-4, 3)
		if !m.ready {
			m.viewport = viewport.New(chatWidth, chatHeight)
			m.ready = true
		} else {
			m.viewport.Width = chatWidth
			m.viewport.Height = chatHeight
		}
		m.input.Width = chatWidth - 4
		m.refresh()
		return m, nil

	case refreshMsg:
		m.refresh()
		return m, nil

	case statusMsg:
		m.status = session.Status(msg)
		return m, nil

	case sendResultMsg:
		if msg.err != nil {
			m.lastErr = msg.err.Error()
		} else {
			m.lastErr = ""
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "tab":
			m.selectRoom(m.selected + 1)
			return m, nil
		case "shift+tab":
			m.selectRoom(m.selected - 1)
			return m, nil
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case "enter":
			return m.send()
		}

		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds := []tea.Cmd{cmd}
		if !m.typing && m.input.Value() != "" {
			m.typing = true
			cmds = append(cmds, m.notifyTyping(true))
		}
		return m, tea.Batch(cmds...)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) refresh() {
	m.rooms = m.store.Rooms()
	if m.selected >= len(m.rooms) {
		m.selected = max(len(m.rooms)-1, 0)
	}
	if m.ready {
		m.viewport.SetContent(m.renderMessages())
		m.viewport.GotoBottom()
	}
}

func (m *model) selectRoom(index int) {
	if len(m.rooms) == 0 {
		return
	}
	m.selected = ((index % len(m.rooms)) + len(m.rooms)) % len(m.rooms)
	m.refresh()
}

func (m *model) currentRoom() *roomstore.Room {
	if m.selected >= len(m.rooms) {
		return nil
	}
	return &m.rooms[m.selected]
}

func (m model) send() (tea.Model, tea.Cmd) {
	room := m.currentRoom()
	body := strings.TrimSpace(m.input.Value())
	if room == nil || body == "" {
		return m, nil
	}
	target := room.Descriptor.JID
	client := m.client
	profile := stanza.Profile{FirstName: m.account.Localpart()}
	m.input.Reset()
	m.typing = false
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		_, err := client.SendMessage(ctx, target, session.MessageOptions{
			Body:    body,
			Profile: profile,
		})
		return sendResultMsg{err: err}
	}
}

func (m *model) notifyTyping(composing bool) tea.Cmd {
	room := m.currentRoom()
	if room == nil {
		return nil
	}
	target := room.Descriptor.JID
	client := m.client
	name := m.account.Localpart()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		client.SendTyping(ctx, target, name, composing)
		return nil
	}
}

func (m model) View() string {
	if !m.ready {
		return "starting..."
	}
	chat := lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		m.composingLine(),
		m.input.View(),
	)
	body := lipgloss.JoinHorizontal(lipgloss.Top,
		roomListStyle.Height(m.height-2).Render(m.renderRoomList()),
		chat,
	)
	return lipgloss.JoinVertical(lipgloss.Left, m.statusBar(), body)
}

func (m model) statusBar() string {
	status := statusStyles[m.status].Render(m.status.String())
	bar := fmt.Sprintf(" %s  %s", m.account.Bare(), status)
	if m.lastErr != "" {
		bar += "  " + errorStyle.Render(m.lastErr)
	}
	return bar
}

func (m model) renderRoomList() string {
	if len(m.rooms) == 0 {
		if m.sync == discovery.OutcomeExhausted {
			return "no rooms found"
		}
		return "no rooms yet"
	}
	var lines []string
	for i, room := range m.rooms {
		title := room.Descriptor.Title
		if title == "" {
			title = room.Descriptor.JID.Localpart()
		}
		if len(title) > roomListWidth-2 {
			title = title[:roomListWidth-2]
		}
		if i == m.selected {
			title = selectedRoomStyle.Render(title)
		}
		lines = append(lines, title)
	}
	return strings.Join(lines, "\n")
}

func (m model) renderMessages() string {
	room := m.currentRoom()
	if room == nil {
		return ""
	}
	if room.NoMessages {
		return timestampStyle.Render("no messages in this room")
	}
	var lines []string
	for _, msg := range room.Messages {
		line := fmt.Sprintf("%s %s %s",
			timestampStyle.Render(msg.Timestamp.Local().Format("15:04")),
			senderStyle.Render(msg.From+":"),
			msg.Body,
		)
		if len(msg.Reactions) > 0 {
			line += " " + reactionStyle.Render(renderReactions(msg.Reactions))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func renderReactions(reactions map[string][]string) string {
	keys := make([]string, 0, len(reactions))
	for reaction := range reactions {
		keys = append(keys, reaction)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, reaction := range keys {
		parts = append(parts, fmt.Sprintf("%s %d", reaction, len(reactions[reaction])))
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func (m model) composingLine() string {
	room := m.currentRoom()
	if room == nil || len(room.Composing) == 0 {
		return ""
	}
	return composingStyle.Render(strings.Join(room.Composing, ", ") + " typing...")
}
