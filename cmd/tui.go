// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/vescstat/pkg/telemetry"
	"github.com/Thermoquad/vescstat/pkg/threshold"
	"github.com/Thermoquad/vescstat/pkg/vesc"
)

// staleAfter dims a controller column that has stopped updating
const staleAfter = 2 * time.Second

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Live dashboard of the four motor controllers",
	Long: `Show a live dashboard with one column per motor controller, the latest
accelerometer sample, stream statistics and recent events.

Parameters are coloured green, orange or red for normal, warning and critical.
Threshold crossings and resynchronizations are listed under Recent Events.

Logs are discarded unless --log-file is given.`,
	Annotations: map[string]string{quietLogAnnotation: "true"},
	RunE:        runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	sess, err := openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	p := tea.NewProgram(initialModel(sess.info), tea.WithAltScreen())

	loop := sess.NewLoop(telemetry.SinkFuncs{
		OnReport: func(r telemetry.Report) { p.Send(reportMsg(r)) },
		OnResync: func(e telemetry.Resync) { p.Send(resyncMsg(e)) },
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		loop.Run()
		p.Send(streamEndMsg{err: sess.Err(loop)})
	}()

	_, err = p.Run()
	sess.Interrupt()
	<-done
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// Event log entry
type logEntry struct {
	timestamp time.Time
	message   string
	severity  threshold.Severity
}

// Latest state of one controller
type deviceView struct {
	report  telemetry.Report
	updated time.Time
}

type keyMap struct {
	Quit  key.Binding
	Clear key.Binding
	Reset key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Clear, k.Reset, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var defaultKeys = keyMap{
	Quit:  key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Clear: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear events")),
	Reset: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reset stats")),
}

// TUI model
type model struct {
	info          string
	stats         *telemetry.Statistics
	devices       [threshold.MaxDevices]*deviceView
	accel         *telemetry.Report
	severities    map[string]threshold.Severity
	eventLog      []logEntry
	maxLogEntries int
	ended         bool
	endErr        error
	width         int
	height        int
	quitting      bool
	now           func() time.Time
	keys          keyMap
	help          help.Model
}

// Messages
type tickMsg time.Time
type reportMsg telemetry.Report
type resyncMsg telemetry.Resync
type streamEndMsg struct {
	err error
}

func initialModel(info string) model {
	return model{
		info:          info,
		stats:         telemetry.NewStatistics(),
		severities:    make(map[string]threshold.Severity),
		eventLog:      make([]logEntry, 0),
		maxLogEntries: 100,
		width:         100,
		height:        30,
		now:           time.Now,
		keys:          defaultKeys,
		help:          help.New(),
	}
}

func (m model) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Clear):
			m.eventLog = m.eventLog[:0]
		case key.Matches(msg, m.keys.Reset):
			m.stats.Reset()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case tickMsg:
		m.stats.CalculateRates()
		return m, tickCmd()

	case reportMsg:
		r := telemetry.Report(msg)
		m.stats.Publish(r)
		m.applyReport(r)

	case resyncMsg:
		e := telemetry.Resync(msg)
		m.stats.Resynced(e)
		m.addLogEntry(fmt.Sprintf("Resync: %s, discarded %d bytes", e.Cause, e.Discarded), threshold.SeverityWarning)

	case streamEndMsg:
		m.ended = true
		m.endErr = msg.err
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Stream ended: %v", msg.err), threshold.SeverityCritical)
		} else {
			m.addLogEntry("Stream ended", threshold.SeverityNormal)
		}
	}

	return m, nil
}

// applyReport stores the latest frame and logs severity changes
func (m *model) applyReport(r telemetry.Report) {
	if r.Kind == telemetry.KindAccel {
		m.accel = &r
		return
	}
	if r.Device < 0 || r.Device >= len(m.devices) {
		return
	}
	m.devices[r.Device] = &deviceView{report: r, updated: m.now()}

	for _, res := range r.Results {
		if res.Missing {
			continue
		}
		id := fmt.Sprintf("%d/%s", r.Device, res.Name)
		prev := m.severities[id]
		m.severities[id] = res.Severity
		if res.Severity == prev {
			continue
		}
		if res.Severity > prev {
			m.addLogEntry(fmt.Sprintf("VESC %d %s %s: %s (%s)",
				r.Device, res.Label, strings.ToUpper(res.Severity.String()),
				vesc.FormatValue(res.Value), res.Bounds), res.Severity)
		} else {
			m.addLogEntry(fmt.Sprintf("VESC %d %s back to %s: %s",
				r.Device, res.Label, res.Severity, vesc.FormatValue(res.Value)), threshold.SeverityNormal)
		}
	}
}

func (m *model) addLogEntry(message string, severity threshold.Severity) {
	m.eventLog = append(m.eventLog, logEntry{
		timestamp: m.now(),
		message:   message,
		severity:  severity,
	})

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

// extraFields are shown under the rule parameters of each controller
var extraFields = []string{"rpm", "avg_motor_current", "duty_cycle_now", "v_in", "temp_motor"}

func (m model) deviceColumn(dev, width int) string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1).
		Width(width)

	var s strings.Builder
	s.WriteString(titleStyle.Render(fmt.Sprintf("VESC %d", dev)))
	s.WriteString("\n")

	view := m.devices[dev]
	if view == nil {
		s.WriteString(dimStyle.Render("no data"))
		return boxStyle.Render(s.String())
	}
	r := view.report

	if age := m.now().Sub(view.updated); age > staleAfter {
		s.WriteString(dimStyle.Render(fmt.Sprintf("stale %.0fs", age.Seconds())))
	} else {
		s.WriteString(dimStyle.Render(fmt.Sprintf("t=%d", r.Timestamp)))
	}
	s.WriteString("\n")

	shown := make(map[string]bool)
	for _, res := range r.Results {
		shown[res.Name] = true
		if res.Missing {
			s.WriteString(dimStyle.Render(res.Label + " -"))
		} else {
			s.WriteString(severityStyle(res.Severity).Render(fmt.Sprintf("%s %s", res.Label, vesc.FormatValue(res.Value))))
		}
		s.WriteString("\n")
	}

	for _, name := range extraFields {
		v, ok := r.Record[name]
		if !ok || shown[name] {
			continue
		}
		s.WriteString(fmt.Sprintf("%s %s\n", dimStyle.Render(name), vesc.FormatValue(v)))
	}

	if code, ok := r.Record["mc_fault_code"]; ok && code != 0 {
		s.WriteString(criticalStyle.Render("FAULT " + vesc.FormatFaultCode(vesc.FaultCode(code))))
	}

	return boxStyle.Render(strings.TrimRight(s.String(), "\n"))
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("VESCSTAT"))
	s.WriteString("\n")
	s.WriteString(dimStyle.Render(fmt.Sprintf("%s | %d frames", m.info, m.stats.TotalFrames())))
	s.WriteString("\n\n")

	// Controllers
	colWidth := max((m.width-4*4)/threshold.MaxDevices, 16)
	cols := make([]string, threshold.MaxDevices)
	for dev := range cols {
		cols[dev] = m.deviceColumn(dev, colWidth)
	}
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cols...))
	s.WriteString("\n")

	// Accelerometer
	s.WriteString(labelStyle.Render("Accel: "))
	if m.accel != nil && m.accel.Accel != nil {
		a := m.accel.Accel
		s.WriteString(statsValueStyle.Render(fmt.Sprintf("x=%+.1fg y=%+.1fg z=%+.1fg", a.X, a.Y, a.Z)))
	} else {
		s.WriteString(dimStyle.Render("no data"))
	}
	s.WriteString("\n\n")

	// Statistics
	st := m.stats
	stats := fmt.Sprintf("%s %s   %s %s   %s %s   %s %s\n",
		labelStyle.Render("Frames:"), statsValueStyle.Render(fmt.Sprintf("%d", st.TotalFrames())),
		labelStyle.Render("Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f/s", st.FrameRate)),
		labelStyle.Render("Warnings:"), warningStyle.Render(fmt.Sprintf("%d", st.Warnings)),
		labelStyle.Render("Criticals:"), criticalStyle.Render(fmt.Sprintf("%d", st.Criticals)),
	)
	resyncStyle := statsValueStyle
	if st.Resyncs > 0 {
		resyncStyle = warningStyle
	}
	stats += fmt.Sprintf("%s %s   %s %s",
		labelStyle.Render("Resyncs:"), resyncStyle.Render(fmt.Sprintf("%d (%.2f/s)", st.Resyncs, st.ResyncRate)),
		labelStyle.Render("Discarded:"), resyncStyle.Render(fmt.Sprintf("%d bytes", st.DiscardedBytes)),
	)
	s.WriteString(boxStyle.Render(stats))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(labelStyle.Render("Recent Events:"))
	if m.ended {
		s.WriteString(dimStyle.Render("  (stream ended)"))
	}
	s.WriteString("\n")

	logHeight := max(m.height-22, 5)
	startIdx := max(len(m.eventLog)-logHeight, 0)

	var log strings.Builder
	if len(m.eventLog) == 0 {
		log.WriteString(dimStyle.Render("  (no events yet)"))
	}
	for _, entry := range m.eventLog[startIdx:] {
		log.WriteString(fmt.Sprintf("%s %s\n",
			dimStyle.Render(entry.timestamp.Format("15:04:05.000")),
			severityStyle(entry.severity).Render(entry.message),
		))
	}
	s.WriteString(boxStyle.Width(max(m.width-4, 20)).Render(strings.TrimRight(log.String(), "\n")))
	s.WriteString("\n")
	s.WriteString(m.help.View(m.keys))

	return s.String()
}
