package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/groundlink/internal/capture"
	"github.com/muurk/groundlink/internal/counters"
	"github.com/muurk/groundlink/internal/dispatcher"
	"github.com/muurk/groundlink/internal/link"
	"github.com/muurk/groundlink/internal/monitor"
)

const (
	defaultRefresh = time.Second
	maxEvents      = 8
)

// Source is the dispatcher view the dashboard reads and controls.
type Source interface {
	Snapshot() []counters.Snapshot
	Stats() dispatcher.Stats
	CaptureStats() capture.Stats
	StartCapture(path string) error
	StopCapture() error
}

// LinkSource reports link state.
type LinkSource interface {
	Status() []link.Status
}

// RateSource reports interval loss rates.
type RateSource interface {
	Latest() []monitor.Sample
}

// DashboardConfig wires the dashboard to its data. Links and Rates are optional.
type DashboardConfig struct {
	Title       string
	Source      Source
	Links       LinkSource
	Rates       RateSource
	Refresh     time.Duration
	CapturePath string // target of the capture toggle, toggle disabled when empty
}

// StatusMsg carries a dispatcher status message into the program.
type StatusMsg struct {
	Title string
	Text  string
	At    time.Time
}

// LossMsg carries a loss rate change into the program.
type LossMsg struct {
	Source uint8
	Rate   float64
	At     time.Time
}

type tickMsg time.Time

type event struct {
	at    time.Time
	title string
	text  string
}

type dashboardKeyMap struct {
	Capture key.Binding
	Focus   key.Binding
	Quit    key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k dashboardKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Capture, k.Focus, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k dashboardKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Capture, k.Focus, k.Quit}}
}

func newDashboardKeyMap(canCapture bool) dashboardKeyMap {
	km := dashboardKeyMap{
		Capture: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "toggle capture"),
		),
		Focus: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "switch table"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
	km.Capture.SetEnabled(canCapture)
	return km
}

// Dashboard is the live Bubble Tea view of a running station.
type Dashboard struct {
	cfg DashboardConfig

	sources table.Model
	links   table.Model
	spinner spinner.Model
	help    help.Model
	keys    dashboardKeyMap

	stats   dispatcher.Stats
	capture capture.Stats
	events  []event
	err     error

	width  int
	height int
}

// NewDashboard creates the dashboard model.
func NewDashboard(cfg DashboardConfig) *Dashboard {
	if cfg.Refresh <= 0 {
		cfg.Refresh = defaultRefresh
	}
	if cfg.Title == "" {
		cfg.Title = "groundlink"
	}

	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(MutedColor).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(TextColor).
		Background(PrimaryColor)

	sources := table.New(
		table.WithColumns([]table.Column{
			{Title: "SYSID", Width: 6},
			{Title: "RECEIVED", Width: 12},
			{Title: "LOST", Width: 10},
			{Title: "LOSS", Width: 8},
			{Title: "INTERVAL", Width: 9},
		}),
		table.WithFocused(true),
		table.WithHeight(8),
	)
	sources.SetStyles(styles)

	links := table.New(
		table.WithColumns([]table.Column{
			{Title: "", Width: 1},
			{Title: "LINK", Width: 26},
			{Title: "TYPE", Width: 10},
			{Title: "SESSIONS", Width: 8},
			{Title: "BYTES", Width: 12},
			{Title: "LAST ERROR", Width: 30},
		}),
		table.WithHeight(5),
	)
	links.SetStyles(styles)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	width, height := GetTerminalSize()
	d := &Dashboard{
		cfg:     cfg,
		sources: sources,
		links:   links,
		spinner: s,
		help:    help.New(),
		keys:    newDashboardKeyMap(cfg.CapturePath != ""),
		width:   width,
		height:  height,
	}
	d.refresh(time.Now())
	return d
}

// Listener returns a dispatcher listener that forwards status and loss
// events to the program through send (usually tea.Program.Send).
func (d *Dashboard) Listener(send func(tea.Msg)) dispatcher.Listener {
	return dispatcher.ListenerFuncs{
		OnStatus: func(title, text string) {
			send(StatusMsg{Title: title, Text: text, At: time.Now()})
		},
		OnLossRate: func(source uint8, rate float64) {
			send(LossMsg{Source: source, Rate: rate, At: time.Now()})
		},
	}
}

func (d *Dashboard) tick() tea.Cmd {
	return tea.Tick(d.cfg.Refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init implements tea.Model
func (d *Dashboard) Init() tea.Cmd {
	return tea.Batch(d.tick(), d.spinner.Tick)
}

// Update implements tea.Model
func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		d.width = clampWidth(msg.Width)
		d.height = msg.Height
		d.help.Width = d.width
		return d, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, d.keys.Quit):
			return d, tea.Quit
		case key.Matches(msg, d.keys.Capture):
			d.toggleCapture()
			return d, nil
		case key.Matches(msg, d.keys.Focus):
			if d.sources.Focused() {
				d.sources.Blur()
				d.links.Focus()
			} else {
				d.links.Blur()
				d.sources.Focus()
			}
			return d, nil
		}

	case tickMsg:
		d.refresh(time.Time(msg))
		return d, d.tick()

	case StatusMsg:
		d.addEvent(event{at: msg.At, title: msg.Title, text: msg.Text})
		return d, nil

	case LossMsg:
		d.addEvent(event{
			at:    msg.At,
			title: "Loss",
			text:  fmt.Sprintf("sysid %d at %s", msg.Source, FormatRate(msg.Rate)),
		})
		return d, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		d.spinner, cmd = d.spinner.Update(msg)
		return d, cmd
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	d.sources, cmd = d.sources.Update(msg)
	cmds = append(cmds, cmd)
	d.links, cmd = d.links.Update(msg)
	cmds = append(cmds, cmd)
	return d, tea.Batch(cmds...)
}

func (d *Dashboard) toggleCapture() {
	if d.cfg.CapturePath == "" {
		return
	}
	if d.capture.Active {
		d.err = d.cfg.Source.StopCapture()
	} else {
		d.err = d.cfg.Source.StartCapture(d.cfg.CapturePath)
	}
	d.capture = d.cfg.Source.CaptureStats()
}

func (d *Dashboard) addEvent(e event) {
	d.events = append(d.events, e)
	if len(d.events) > maxEvents {
		d.events = d.events[len(d.events)-maxEvents:]
	}
}

func (d *Dashboard) refresh(now time.Time) {
	d.stats = d.cfg.Source.Stats()
	d.capture = d.cfg.Source.CaptureStats()

	interval := make(map[uint8]float64)
	if d.cfg.Rates != nil {
		for _, s := range d.cfg.Rates.Latest() {
			interval[s.Source] = s.Rate
		}
	}

	snaps := d.cfg.Source.Snapshot()
	rows := make([]table.Row, 0, len(snaps))
	for _, s := range snaps {
		ir, ok := interval[s.Source]
		if !ok {
			ir = counters.Rate(s.IntervalReceived, s.IntervalLost)
		}
		rows = append(rows, table.Row{
			strconv.Itoa(int(s.Source)),
			strconv.FormatUint(s.Received, 10),
			strconv.FormatUint(s.Lost, 10),
			FormatRate(s.LossRate()),
			FormatRate(ir),
		})
	}
	d.sources.SetRows(rows)

	if d.cfg.Links != nil {
		statuses := d.cfg.Links.Status()
		lrows := make([]table.Row, 0, len(statuses))
		for _, st := range statuses {
			marker := DownMarker
			if st.Connected {
				marker = UpMarker
			}
			lrows = append(lrows, table.Row{
				marker,
				st.Name,
				string(st.Type),
				strconv.Itoa(st.Sessions),
				strconv.FormatUint(st.BytesIn, 10),
				st.LastError,
			})
		}
		d.links.SetRows(lrows)
	}
}

// View implements tea.Model
func (d *Dashboard) View() string {
	var b strings.Builder

	title := HeaderTitleStyle.Render(strings.ToUpper(d.cfg.Title))
	if d.capture.Active {
		title += "  " + CaptureOnStyle.Render(RecMarker) +
			MutedStyle.Render(fmt.Sprintf(" %s (%d bytes)", d.capture.Path, d.capture.BytesWritten))
	}
	b.WriteString(title + "\n")
	b.WriteString(MutedStyle.Render(fmt.Sprintf("  %d bytes in, %d messages, %d dropped bytes, %d filtered",
		d.stats.BytesIn, d.stats.Messages, d.stats.DroppedBytes, d.stats.Filtered)))
	b.WriteString("\n\n")

	b.WriteString(SectionTitleStyle.Render("  Sources") + "\n")
	if len(d.sources.Rows()) == 0 {
		b.WriteString("  " + d.spinner.View() + MutedStyle.Render(" Waiting for MAVLink traffic...") + "\n")
	} else {
		b.WriteString(d.sources.View() + "\n")
	}

	if d.cfg.Links != nil {
		b.WriteString("\n" + SectionTitleStyle.Render("  Links") + "\n")
		b.WriteString(d.links.View() + "\n")
	}

	b.WriteString("\n" + SectionTitleStyle.Render("  Events") + "\n")
	if len(d.events) == 0 {
		b.WriteString(MutedStyle.Render("  none") + "\n")
	}
	for _, e := range d.events {
		b.WriteString(fmt.Sprintf("  %s %s %s\n",
			MutedStyle.Render(e.at.Format("15:04:05")),
			StatusTitleStyle.Render(e.title),
			e.text))
	}

	if d.err != nil {
		b.WriteString("\n" + RenderError(d.err) + "\n")
	}

	b.WriteString("\n" + d.help.View(d.keys))
	return b.String()
}
