// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/vescstat/pkg/simulate"
	"github.com/Thermoquad/vescstat/pkg/telemetry"
	"github.com/Thermoquad/vescstat/pkg/threshold"
)

func TestLevelFlag(t *testing.T) {
	f := levelFlag{level: slog.LevelInfo}
	assert.Equal(t, "info", f.String())
	assert.Equal(t, "level", f.Type())

	require.NoError(t, f.Set("debug"))
	assert.Equal(t, slog.LevelDebug, f.level)
	require.NoError(t, f.Set("WARN"))
	assert.Equal(t, slog.LevelWarn, f.level)

	assert.Error(t, f.Set("loud"))
	assert.Equal(t, slog.LevelWarn, f.level)
}

type failWriter struct{ calls int }

func (f *failWriter) Write(p []byte) (int, error) {
	f.calls++
	return 0, errors.New("disk full")
}

func TestTeeAll_DropsFailedMember(t *testing.T) {
	var good bytes.Buffer
	bad := &failWriter{}
	tee := &teeAll{
		writers: []namedWriter{{name: "bad", w: bad}, {name: "good", w: &good}},
		log:     slog.New(slog.DiscardHandler),
	}

	n, err := tee.Write([]byte("ab"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = tee.Write([]byte("cd"))
	require.NoError(t, err)
	assert.Equal(t, "abcd", good.String())
	assert.Equal(t, 1, bad.calls)
}

func TestTeeAll_ErrorsWhenAllFail(t *testing.T) {
	tee := &teeAll{
		writers: []namedWriter{{name: "only", w: &failWriter{}}},
		log:     slog.New(slog.DiscardHandler),
	}

	_, err := tee.Write([]byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	_, err = tee.Write([]byte("y"))
	assert.Error(t, err)
}

func TestTextSink(t *testing.T) {
	var out bytes.Buffer
	sink := &textSink{w: &out}
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	sink.Publish(telemetry.Report{
		Received:  at,
		Timestamp: 1234,
		Kind:      telemetry.KindController,
		Device:    1,
		Record:    threshold.Record{"temp_fet": 85},
		Results: []threshold.Result{{
			Name: "temp_fet", Label: "temp_fet", Value: 85,
			Severity: threshold.SeverityWarning, Bounds: threshold.High(80, 100),
		}},
	})
	sink.Publish(telemetry.Report{
		Received: at,
		Kind:     telemetry.KindAccel,
		Device:   telemetry.AccelDevice,
		Accel:    &telemetry.Accel{X: 0.5, Y: -1, Z: 1},
	})
	sink.Resynced(telemetry.Resync{Cause: telemetry.CauseBoundaryMismatch, Discarded: 7})

	text := out.String()
	assert.Contains(t, text, "VESC[1]")
	assert.Contains(t, text, "t=1234")
	assert.Contains(t, text, "temp_fet 85 WARNING")
	assert.Contains(t, text, "x=+0.5g y=-1.0g z=+1.0g")
	assert.Contains(t, text, "boundary_mismatch, discarded 7 bytes")
}

func TestTextSink_AlarmsOnly(t *testing.T) {
	var out bytes.Buffer
	sink := &textSink{w: &out, alarmsOnly: true}

	sink.Publish(telemetry.Report{
		Kind:    telemetry.KindController,
		Device:  0,
		Results: []threshold.Result{{Name: "temp_fet", Label: "temp_fet", Value: 40}},
	})
	sink.Publish(telemetry.Report{Kind: telemetry.KindAccel, Accel: &telemetry.Accel{}})
	sink.Resynced(telemetry.Resync{Cause: telemetry.CauseDecodeFailure})
	assert.Empty(t, out.String())

	sink.Publish(telemetry.Report{
		Kind:   telemetry.KindController,
		Device: 2,
		Results: []threshold.Result{{
			Name: "v_in", Label: "v_in", Value: 7.5, Severity: threshold.SeverityCritical,
		}},
	})
	assert.Contains(t, out.String(), "v_in 7.5 CRITICAL")
}

func TestTextSink_AllFieldsFirmwareReply(t *testing.T) {
	var out bytes.Buffer
	sink := &textSink{w: &out, allFields: true}

	sink.Publish(telemetry.Report{
		Kind:   telemetry.KindController,
		Device: 5,
		Record: threshold.Record{"fw_major": 6, "fw_minor": 5},
	})

	text := out.String()
	assert.Contains(t, text, "fw_major:")
	assert.Contains(t, text, "fw_minor:")
	assert.NotContains(t, text, "GET_VALUES")
}

func TestFormatResults_NoRules(t *testing.T) {
	assert.Contains(t, formatResults(telemetry.Report{Kind: telemetry.KindController, Device: 7}), "(no rules)")
}

func TestLinkCounter(t *testing.T) {
	var c linkCounter
	base := time.Unix(0, 0)

	c.add([]byte("ab--"), base)
	c.add([]byte("--cd----"), base.Add(10*time.Millisecond))
	c.add([]byte("-"), base.Add(40*time.Millisecond))
	c.add([]byte("---"), base.Add(50*time.Millisecond))

	assert.Equal(t, 16, c.bytes)
	assert.Equal(t, 4, c.reads)
	assert.Equal(t, 3, c.sentinels)
	assert.Equal(t, 30*time.Millisecond, c.longest)
}

func writeStream(t *testing.T, cycles int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stream.bin")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, simulate.New(simulate.Options{Seed: 3}).WriteCycles(f, cycles))
	require.NoError(t, f.Close())
	return path
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		replayPath = ""
		rulesPath = ""
	})
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestDumpReplay(t *testing.T) {
	path := writeStream(t, 10)

	text := execute(t, "dump", "--replay", path, "--no-capture", "--log-level", "error")

	assert.Contains(t, text, "Replay: "+path)
	for _, dev := range []string{"VESC[0]", "VESC[1]", "VESC[2]", "VESC[3]"} {
		assert.Contains(t, text, dev)
	}
	assert.Contains(t, text, "ACCEL")
	assert.Contains(t, text, "Total Frames:          50")
	assert.Contains(t, text, "Resyncs:                0")
	assert.NotContains(t, text, "RESYNC")
}

func TestRulesCommand(t *testing.T) {
	text := execute(t, "rules")

	assert.Contains(t, text, "Rules: built-in")
	assert.Contains(t, text, "VESC[2]")
	assert.Contains(t, text, "temp_fet")
	assert.Contains(t, text, "v_in")
	assert.Contains(t, text, "low_warn<=20 low_critical<=8")
}

func TestRulesCommand_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("devices: [oops"), 0o644))

	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"rules", "--rules", path})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		rulesPath = ""
	})
	assert.Error(t, rootCmd.Execute())
}
