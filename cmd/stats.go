// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/vescstat/pkg/telemetry"
	"github.com/Thermoquad/vescstat/pkg/threshold"
	"github.com/Thermoquad/vescstat/pkg/vesc"
)

var (
	showAll       bool
	statsInterval int
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Track resynchronizations and threshold alarms",
	Long: `Track stream health and threshold alarms with periodic statistics.

This command reports:
  - Resynchronizations with their cause and the bytes discarded
  - Controller parameters in the warning or critical range
  - Frame counts per controller, frame rate and resync rate

By default, only resyncs and alarms are displayed. Use --show-all to display
every frame too.

Statistics are printed every --stats-interval seconds and once more when the
stream ends.`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just alarms)")
	statsCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
}

func runStats(cmd *cobra.Command, args []string) error {
	if statsInterval <= 0 {
		return fmt.Errorf("--stats-interval must be positive")
	}

	sess, err := openSession()
	if err != nil {
		return err
	}
	defer sess.Close()
	stop := sess.HandleInterrupt()
	defer stop()

	out := &syncWriter{w: cmd.OutOrStdout()}
	fmt.Fprintf(out, "Vescstat - Stream Statistics\n")
	fmt.Fprintf(out, "Connection: %s\n", sess.info)
	fmt.Fprintf(out, "Statistics interval: %d seconds\n\n", statsInterval)

	stats := &lockedStats{stats: telemetry.NewStatistics()}
	alarms := &alarmSink{w: out, showAll: showAll}

	loop := sess.NewLoop(telemetry.Sinks{stats, alarms})

	done := make(chan struct{})
	go func() {
		defer close(done)
		loop.Run()
	}()

	ticker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fmt.Fprintln(out)
			fmt.Fprint(out, stats.String())
			fmt.Fprintln(out)
		case <-done:
			fmt.Fprintln(out)
			fmt.Fprint(out, stats.String())
			return sess.Err(loop)
		}
	}
}

// lockedStats shares Statistics between the loop and the ticker
type lockedStats struct {
	mu    sync.Mutex
	stats *telemetry.Statistics
}

func (l *lockedStats) Publish(r telemetry.Report) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.Publish(r)
}

func (l *lockedStats) Resynced(e telemetry.Resync) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.Resynced(e)
}

func (l *lockedStats) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats.String()
}

// syncWriter serializes writes from the loop and the ticker
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// alarmSink prints resyncs and out-of-range parameters
type alarmSink struct {
	w       io.Writer
	showAll bool
}

func (a *alarmSink) Publish(r telemetry.Report) {
	timestamp := r.Received.Format("15:04:05.000")

	if r.Kind == telemetry.KindAccel {
		if a.showAll {
			fmt.Fprintf(a.w, "[%s] ACCEL t=%d x=%+.1fg y=%+.1fg z=%+.1fg\n",
				timestamp, r.Timestamp, r.Accel.X, r.Accel.Y, r.Accel.Z)
		}
		return
	}

	worst := r.Severity()
	if worst == threshold.SeverityNormal {
		if a.showAll {
			fmt.Fprintf(a.w, "[%s] VESC[%d] t=%d %s\n", timestamp, r.Device, r.Timestamp, formatResults(r))
		}
		return
	}

	style := severityStyle(worst)
	fmt.Fprintf(a.w, "[%s] %s VESC[%d] t=%d\n", timestamp,
		style.Render(strings.ToUpper(worst.String())+":"), r.Device, r.Timestamp)
	for _, res := range r.Results {
		if res.Missing || res.Severity == threshold.SeverityNormal {
			continue
		}
		fmt.Fprintf(a.w, "  %s: %s (%s)\n",
			res.Label,
			severityStyle(res.Severity).Render(vesc.FormatValue(res.Value)),
			res.Bounds)
	}
	fmt.Fprintln(a.w)
}

func (a *alarmSink) Resynced(e telemetry.Resync) {
	fmt.Fprintf(a.w, "[%s] %s %s at byte %d\n",
		time.Now().Format("15:04:05.000"),
		warningStyle.Render("RESYNC:"), e.Cause, e.Offset)
	fmt.Fprintf(a.w, "  Discarded: %d bytes\n", e.Discarded)
	if e.Err != nil {
		fmt.Fprintf(a.w, "  Error: %v\n", e.Err)
	}
	fmt.Fprintln(a.w)
}
