// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/vescstat/pkg/capture"
	"github.com/Thermoquad/vescstat/pkg/telemetry"
	"github.com/Thermoquad/vescstat/pkg/threshold"
	"github.com/Thermoquad/vescstat/pkg/vesc"
)

var (
	dumpRecordPath string
	dumpAllFields  bool
	dumpHideAccel  bool
	dumpAlarmsOnly bool
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Display decoded frames in human-readable format",
	Long: `Continuously decode and display telemetry frames as they arrive.

Each controller frame is printed with its thresholded parameters, coloured
green, orange or red for normal, warning and critical. Accelerometer frames
are printed in g. Resynchronizations are reported with their cause and the
number of bytes discarded.

With --record, every report is also appended to a CBOR report log.

Supports serial, WebSocket and replay connections.`,
	RunE: runDump,
}

func init() {
	rootCmd.AddCommand(dumpCmd)
	dumpCmd.Flags().StringVar(&dumpRecordPath, "record", "", "Append reports to a CBOR report log")
	dumpCmd.Flags().BoolVar(&dumpAllFields, "all-fields", false, "Print every decoded field, not just rule parameters")
	dumpCmd.Flags().BoolVar(&dumpHideAccel, "hide-accel", false, "Do not print accelerometer frames")
	dumpCmd.Flags().BoolVar(&dumpAlarmsOnly, "alarms-only", false, "Only print frames with a warning or critical value")
}

func runDump(cmd *cobra.Command, args []string) error {
	sess, err := openSession()
	if err != nil {
		return err
	}
	defer sess.Close()
	stop := sess.HandleInterrupt()
	defer stop()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Vescstat - Frame Dump\n")
	fmt.Fprintf(out, "Connection: %s\n", sess.info)
	if sess.live {
		fmt.Fprintf(out, "Press Ctrl+C to exit\n")
	}
	fmt.Fprintln(out)

	printer := &textSink{
		w:          out,
		allFields:  dumpAllFields,
		hideAccel:  dumpHideAccel,
		alarmsOnly: dumpAlarmsOnly,
	}
	sinks := telemetry.Sinks{printer}

	var record *capture.RecordWriter
	if dumpRecordPath != "" {
		f, err := os.OpenFile(dumpRecordPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open report log: %w", err)
		}
		defer f.Close()
		record = capture.NewRecordWriter(f)
		sinks = append(sinks, record)
	}

	loop := sess.NewLoop(sinks)
	loop.Run()

	fmt.Fprintln(out)
	fmt.Fprint(out, loop.Stats().String())

	if record != nil {
		if err := record.Err(); err != nil {
			return err
		}
		logger.Info("report log written", "path", dumpRecordPath, "entries", record.Count())
	}
	return sess.Err(loop)
}

var (
	normalStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	criticalStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
)

// severityStyle returns the colour of a severity
func severityStyle(s threshold.Severity) lipgloss.Style {
	switch s {
	case threshold.SeverityCritical:
		return criticalStyle
	case threshold.SeverityWarning:
		return warningStyle
	default:
		return normalStyle
	}
}

// textSink prints reports one per line
type textSink struct {
	w          io.Writer
	allFields  bool
	hideAccel  bool
	alarmsOnly bool
}

func (t *textSink) Publish(r telemetry.Report) {
	switch r.Kind {
	case telemetry.KindAccel:
		if t.hideAccel || t.alarmsOnly {
			return
		}
		fmt.Fprintf(t.w, "%s %s t=%d x=%+.1fg y=%+.1fg z=%+.1fg\n",
			dimStyle.Render(r.Received.Format("15:04:05.000")),
			labelStyle.Render("ACCEL  "),
			r.Timestamp, r.Accel.X, r.Accel.Y, r.Accel.Z)

	case telemetry.KindController:
		if t.alarmsOnly && r.Severity() == threshold.SeverityNormal {
			return
		}
		fmt.Fprintf(t.w, "%s %s t=%d %s\n",
			dimStyle.Render(r.Received.Format("15:04:05.000")),
			labelStyle.Render(fmt.Sprintf("VESC[%d]", r.Device)),
			r.Timestamp, formatResults(r))
		if t.allFields {
			fmt.Fprint(t.w, indent(vesc.FormatValues(r.Record), "    "))
		}
	}
}

func (t *textSink) Resynced(e telemetry.Resync) {
	if t.alarmsOnly {
		return
	}
	fmt.Fprintf(t.w, "%s %s %s, discarded %d bytes (%v)\n",
		dimStyle.Render(strings.Repeat(" ", 12)),
		warningStyle.Render("RESYNC "),
		e.Cause, e.Discarded, e.Err)
}

// formatResults renders the rule parameters of a controller report
func formatResults(r telemetry.Report) string {
	if len(r.Results) == 0 {
		return dimStyle.Render("(no rules)")
	}
	parts := make([]string, 0, len(r.Results))
	for _, res := range r.Results {
		if res.Missing {
			parts = append(parts, dimStyle.Render(res.Label+" -"))
			continue
		}
		text := fmt.Sprintf("%s %s", res.Label, vesc.FormatValue(res.Value))
		if res.Severity != threshold.SeverityNormal {
			text += " " + strings.ToUpper(res.Severity.String())
		}
		parts = append(parts, severityStyle(res.Severity).Render(text))
	}
	return strings.Join(parts, "  ")
}

func indent(s, prefix string) string {
	lines := strings.SplitAfter(s, "\n")
	var b strings.Builder
	for _, line := range lines {
		if line == "" {
			continue
		}
		b.WriteString(prefix)
		b.WriteString(line)
	}
	return b.String()
}
