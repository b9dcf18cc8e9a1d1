package watch

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/tickroute/internal/events"
)

// HealthState tracks /healthz polling.
type HealthState struct {
	Status        string
	UptimeSeconds int64
	TimerState    string
	Calls         int64
	RunID         string
	Connected     bool
	LastCheck     time.Time
}

// Model is the BubbleTea model for the watch TUI.
type Model struct {
	apiURL string
	apiKey string

	width  int
	height int

	health HealthState
	route  RouteState
	pulse  Pulse
	table  table.Model
	theme  Theme

	hubEvents chan events.Event
	lastError string
}

// New creates a new watch TUI model.
func New(apiURL, apiKey string) *Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Seq", Width: 8},
			{Title: "Field", Width: 12},
			{Title: "Value", Width: 32},
			{Title: "At", Width: 10},
		}),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	t.SetStyles(s)

	return &Model{
		apiURL:    apiURL,
		apiKey:    apiKey,
		table:     t,
		theme:     NewDefaultTheme(),
		hubEvents: make(chan events.Event, 100),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.apiURL, m.apiKey, m.route.LastID(), m.hubEvents),
		receiveNextEvent(m.hubEvents),
		func() tea.Msg { return fetchHealth(m.apiURL) },
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return clockMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case clockMsg:
		m.pulse.Decay(time.Time(msg))
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return clockMsg(t) })

	case eventMsg:
		e := events.Event(msg)
		m.route.Apply(e)
		m.pulse.OnEvent(time.Now())
		m.table.SetRows(observationRows(m.route.Observations))
		m.health.Connected = true
		m.lastError = ""
		return m, receiveNextEvent(m.hubEvents)

	case healthMsg:
		m.health.Status = msg.Status
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.TimerState = msg.TimerState
		m.health.Calls = msg.Calls
		m.health.RunID = msg.RunID
		m.health.Connected = true
		m.health.LastCheck = time.Now()
		m.lastError = ""
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg {
			return fetchHealth(m.apiURL)
		})

	case sseDisconnectedMsg:
		m.health.Connected = false
		m.lastError = "SSE disconnected, reconnecting..."
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg {
			return reconnectMsg{}
		})

	case reconnectMsg:
		return m, subscribeToEvents(m.apiURL, m.apiKey, m.route.LastID(), m.hubEvents)

	case errMsg:
		m.lastError = msg.Error()
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg {
			return fetchHealth(m.apiURL)
		})
	}

	return m, nil
}

func observationRows(obs []Observation) []table.Row {
	rows := make([]table.Row, 0, len(obs))
	for _, o := range obs {
		rows = append(rows, table.Row{
			strconv.FormatInt(o.Seq, 10),
			o.Field,
			o.Value,
			o.At.Local().Format("15:04:05"),
		})
	}
	return rows
}

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing watch..."
	}

	parts := []string{
		m.renderHeader(),
		m.theme.Border.Width(m.width - 4).Render(lipgloss.JoinVertical(lipgloss.Left,
			m.theme.Title.Render("OBSERVATIONS"),
			m.table.View(),
		)),
	}
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusFailed.Render(fmt.Sprintf(" ⚠ %s", m.lastError)))
	}
	parts = append(parts, m.theme.Dim.Render(" [q] Quit"))

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}

func (m Model) renderHeader() string {
	state := m.route.TimerState
	if state == "" {
		state = m.health.TimerState
	}

	var status string
	switch {
	case !m.health.Connected:
		status = m.theme.StatusFailed.Render("CONNECTING")
	case state == "running":
		status = m.theme.StatusOK.Render("RUNNING")
	default:
		status = m.theme.StatusWarn.Render("STOPPED")
	}

	calls := m.health.Calls
	if m.route.Ticks > calls {
		calls = m.route.Ticks
	}

	last := m.theme.Dim.Render("none yet")
	if obs, ok := m.route.Last(); ok {
		last = m.theme.Highlight.Render(fmt.Sprintf("%s = %s", obs.Field, obs.Value))
	}

	lines := []string{
		m.theme.Title.Render("TICKROUTE WATCH") + " " + m.pulse.Render(m.theme),
		fmt.Sprintf(" %s  ⏱ %s  Calls: %d  Failed: %d  Period: %dms",
			status,
			formatDuration(time.Duration(m.health.UptimeSeconds)*time.Second),
			calls,
			m.route.Failed,
			m.route.PeriodMS,
		),
		" Last: " + last,
	}
	if m.route.LastError != "" {
		lines = append(lines, " Last error: "+m.theme.StatusFailed.Render(m.route.LastError))
	}

	return m.theme.Border.Width(m.width - 4).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
