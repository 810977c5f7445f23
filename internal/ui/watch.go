package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ewest/midea/internal/lan"
)

// refreshDoneMsg reports the outcome of one status poll.
type refreshDoneMsg struct {
	err error
	at  time.Time
}

// pollMsg triggers the next status poll.
type pollMsg struct{}

// WatchModel is the Bubble Tea model behind "mideactl watch". It shows a
// spinner while the first exchange is in flight, then redraws the status
// table after every poll.
type WatchModel struct {
	device   *lan.Device
	cloud    lan.CloudService
	interval time.Duration

	spinner    spinner.Model
	connecting bool
	err        error
	updated    time.Time
	refreshes  int
	width      int
	quitting   bool
}

// NewWatchModel creates the watch dashboard for a device, polling its status
// at the given interval. A non-nil cloud routes the polls through the cloud
// relay for appliances without a direct address.
func NewWatchModel(device *lan.Device, cloud lan.CloudService, interval time.Duration) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return WatchModel{
		device:     device,
		cloud:      cloud,
		interval:   interval,
		spinner:    s,
		connecting: true,
		width:      GetTerminalWidth(),
	}
}

// Init implements tea.Model
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.refresh())
}

// refresh polls the appliance. Refresh blocks, so it runs inside the command
// goroutine, never in Update.
func (m WatchModel) refresh() tea.Cmd {
	device, cloud := m.device, m.cloud
	return func() tea.Msg {
		err := device.Refresh(cloud)
		return refreshDoneMsg{err: err, at: time.Now()}
	}
}

// Update implements tea.Model
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			// Manual refresh between polls
			return m, m.refresh()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		if m.width < MinTerminalWidth {
			m.width = MinTerminalWidth
		}
		if m.width > MaxContentWidth {
			m.width = MaxContentWidth
		}

	case refreshDoneMsg:
		m.connecting = false
		m.err = msg.err
		m.updated = msg.at
		m.refreshes++
		return m, tea.Tick(m.interval, func(time.Time) tea.Msg { return pollMsg{} })

	case pollMsg:
		return m, m.refresh()

	case spinner.TickMsg:
		if m.connecting {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
	}

	return m, nil
}

// View implements tea.Model
func (m WatchModel) View() string {
	if m.quitting {
		return ""
	}

	if m.connecting {
		return fmt.Sprintf("\n  %s Connecting to %s (%s)...\n",
			m.spinner.View(), m.device.State.Name(), deviceLocation(m.device))
	}

	view := RenderStatus(m.device, m.width) + "\n"

	if m.err != nil {
		view += ErrorMessageStyle.Render("  "+m.err.Error()) + "\n"
	}

	view += FooterStyle.Render(fmt.Sprintf(
		"  updated %s · poll every %s · %d refreshes · q to quit, r to refresh",
		m.updated.Format("15:04:05"), m.interval, m.refreshes)) + "\n"
	return view
}
