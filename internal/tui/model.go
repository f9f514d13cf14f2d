// Package tui is the `switchio dashboard` terminal view. It polls a node's
// HTTP API and shows tracked jobs and the node counters in two tabs.
package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/switchml/switchio/pkg/job"
)

// Colours are ANSI 256 codes so the dashboard renders on basic terminals.
const (
	colBright = lipgloss.Color("15")
	colAccent = lipgloss.Color("24")
	colHeader = lipgloss.Color("12")
	colRow    = lipgloss.Color("252")
	colAltRow = lipgloss.Color("245")
	colAltBg  = lipgloss.Color("236")
	colDim    = lipgloss.Color("241")
	colMuted  = lipgloss.Color("240")
	colError  = lipgloss.Color("1")
)

var (
	barStyle         = lipgloss.NewStyle().Bold(true).Foreground(colBright).Background(colAccent)
	titleStyle       = barStyle.Padding(0, 1)
	activeTabStyle   = barStyle.Padding(0, 2)
	inactiveTabStyle = lipgloss.NewStyle().Foreground(colMuted).Padding(0, 2)

	headerCellStyle = lipgloss.NewStyle().Bold(true).Foreground(colHeader).PaddingRight(1)
	rowStyle        = lipgloss.NewStyle().Foreground(colRow).PaddingRight(1)
	altRowStyle     = rowStyle.Foreground(colAltRow).Background(colAltBg)

	dimStyle       = lipgloss.NewStyle().Foreground(colDim).Italic(true)
	statusBarStyle = lipgloss.NewStyle().Foreground(colDim).PaddingLeft(1)
	errorStyle     = lipgloss.NewStyle().Foreground(colError).Bold(true).PaddingLeft(1)
)

type tab int

const (
	tabJobs tab = iota
	tabCounters
	tabCount
)

type tickMsg time.Time

type dataMsg struct {
	jobs     []job.Progress
	counters map[string]int64
}

type errMsg error

const (
	refreshInterval = 2 * time.Second
	fetchTimeout    = 2 * time.Second
)

// Model is the bubbletea model for the dashboard.
type Model struct {
	tabs      []string
	activeTab tab
	jobs      []job.Progress
	counters  map[string]int64
	serverURL string
	client    *http.Client
	width     int
	height    int
	err       error
	loading   bool
	lastFetch time.Time
}

// New returns a Model polling the node API at serverURL.
func New(serverURL string) Model {
	return Model{
		tabs:      []string{"Jobs", "Counters"},
		serverURL: strings.TrimRight(serverURL, "/"),
		client:    &http.Client{Timeout: fetchTimeout},
		loading:   true,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(), m.fetch())
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg.String())

	case tickMsg:
		m.loading = true
		return m, tea.Batch(tick(), m.fetch())

	case dataMsg:
		m.loading = false
		m.err = nil
		m.jobs = msg.jobs
		m.counters = msg.counters
		m.lastFetch = time.Now()
		return m, nil

	case errMsg:
		m.loading = false
		m.err = msg
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Loading…"
	}
	labels := make([]string, len(m.tabs))
	for i, name := range m.tabs {
		style := inactiveTabStyle
		if tab(i) == m.activeTab {
			style = activeTabStyle
		}
		labels[i] = style.Render(fmt.Sprintf(" %d: %s ", i+1, name))
	}
	rule := strings.Repeat("─", m.width)

	// title, tab row, two rules and the status line
	body := clipLines(m.renderActiveTab(), max(m.height-5, 1))
	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("  switchio  "),
		lipgloss.JoinHorizontal(lipgloss.Top, labels...),
		rule,
		body,
		rule,
		m.renderStatus(),
	)
}

func (m Model) handleKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "r":
		m.loading, m.err = true, nil
		return m, m.fetch()
	case "tab", "right", "l":
		m.activeTab = (m.activeTab + 1) % tabCount
	case "shift+tab", "left", "h":
		m.activeTab = (m.activeTab + tabCount - 1) % tabCount
	default:
		// digits jump straight to a tab
		if len(key) == 1 && key[0] >= '1' && int(key[0]-'1') < int(tabCount) {
			m.activeTab = tab(key[0] - '1')
		}
	}
	return m, nil
}

func (m Model) renderActiveTab() string {
	w := m.width - 2
	switch m.activeTab {
	case tabJobs:
		return renderJobs(m.jobs, w)
	case tabCounters:
		return renderCounters(m.counters, w)
	default:
		return ""
	}
}

func (m Model) renderStatus() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v", m.err))
	}
	parts := []string{"node: " + m.serverURL}
	if !m.lastFetch.IsZero() {
		parts = append(parts, "last refresh: "+m.lastFetch.Format("15:04:05"))
	}
	if m.loading {
		parts = append(parts, "refreshing…")
	}
	parts = append(parts, "q: quit  tab: next tab  r: refresh")
	return statusBarStyle.Render(strings.Join(parts, "  |  "))
}

func clipLines(s string, maxLines int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= maxLines {
		return s
	}
	return strings.Join(lines[:maxLines], "\n")
}

func (m Model) fetch() tea.Cmd {
	client, base := m.client, m.serverURL
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()

		var d dataMsg
		if err := getJSON(ctx, client, base+"/api/v1/jobs", &d.jobs); err != nil {
			return errMsg(err)
		}
		if err := getJSON(ctx, client, base+"/api/v1/stats", &d.counters); err != nil {
			return errMsg(err)
		}
		return d
	}
}

func getJSON(ctx context.Context, client *http.Client, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}
