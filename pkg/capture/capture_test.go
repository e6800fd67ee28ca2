// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/vescstat/pkg/simulate"
	"github.com/Thermoquad/vescstat/pkg/telemetry"
	"github.com/Thermoquad/vescstat/pkg/threshold"
)

// ============================================================
// Raw Capture Tests
// ============================================================

func TestParseCompression(t *testing.T) {
	for name, want := range map[string]Compression{
		"":     CompressionNone,
		"none": CompressionNone,
		"zstd": CompressionZstd,
		"ZST":  CompressionZstd,
		"lz4":  CompressionLZ4,
	} {
		got, err := ParseCompression(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseCompression("gzip")
	assert.Error(t, err)
}

func TestRawName(t *testing.T) {
	now := time.Unix(1700000000, 0)
	assert.Equal(t, "telemetry.1700000000", RawName(now, CompressionNone))
	assert.Equal(t, "telemetry.1700000000.zst", RawName(now, CompressionZstd))
	assert.Equal(t, "telemetry.1700000000.lz4", RawName(now, CompressionLZ4))
}

func TestCapture_RoundTrip(t *testing.T) {
	var stream bytes.Buffer
	require.NoError(t, simulate.New(simulate.Options{Seed: 3}).WriteCycles(&stream, 100))

	for _, c := range []Compression{CompressionNone, CompressionZstd, CompressionLZ4} {
		t.Run(c.String(), func(t *testing.T) {
			dir := t.TempDir()
			w, err := Create(dir, c, time.Unix(1700000000, 0))
			require.NoError(t, err)

			// Write in uneven pieces the way the tee does
			data := stream.Bytes()
			for len(data) > 0 {
				n := min(len(data), 7)
				_, err := w.Write(data[:n])
				require.NoError(t, err)
				data = data[n:]
			}
			assert.Equal(t, int64(stream.Len()), w.Written())
			require.NoError(t, w.Close())
			assert.Equal(t, filepath.Join(dir, RawName(time.Unix(1700000000, 0), c)), w.Path())

			r, detected, err := Open(w.Path())
			require.NoError(t, err)
			defer r.Close()
			assert.Equal(t, c, detected)

			got, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, stream.Bytes(), got)
		})
	}
}

func TestCreate_NeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	now := time.Unix(1700000000, 0)

	w, err := Create(dir, CompressionNone, now)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = Create(dir, CompressionNone, now)
	assert.True(t, errors.Is(err, os.ErrExist), "got %v", err)
}

func TestOpen_ShortPlainFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny")
	require.NoError(t, os.WriteFile(path, []byte{0x41, 0x00}, 0o644))

	r, c, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, CompressionNone, c)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x41, 0x00}, got)
}

func TestOpen_Missing(t *testing.T) {
	_, _, err := Open(filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// TestCapture_ReplayMatchesLive checks that a teed capture replays into
// the same reports the live stream produced
func TestCapture_ReplayMatchesLive(t *testing.T) {
	var stream bytes.Buffer
	require.NoError(t, simulate.New(simulate.Options{Seed: 5, CorruptRate: 0.05}).WriteCycles(&stream, 50))

	w, err := Create(t.TempDir(), CompressionZstd, time.Now())
	require.NoError(t, err)

	var live []telemetry.Report
	loop := telemetry.NewLoop(telemetry.Config{
		Source: telemetry.NewSource(bytes.NewReader(stream.Bytes()), w),
		Rules:  threshold.Default(),
		Sink:   telemetry.SinkFuncs{OnReport: func(r telemetry.Report) { live = append(live, r) }},
	})
	loop.Run()
	require.NoError(t, w.Close())

	r, _, err := Open(w.Path())
	require.NoError(t, err)
	defer r.Close()

	var replayed []telemetry.Report
	telemetry.NewLoop(telemetry.Config{
		Source: telemetry.NewSource(r, nil),
		Rules:  threshold.Default(),
		Sink:   telemetry.SinkFuncs{OnReport: func(r telemetry.Report) { replayed = append(replayed, r) }},
	}).Run()

	require.NotEmpty(t, live)
	ignoreReceived := cmp.FilterPath(func(p cmp.Path) bool {
		return p.Last().String() == ".Received"
	}, cmp.Ignore())
	if diff := cmp.Diff(live, replayed, ignoreReceived); diff != "" {
		t.Errorf("replay mismatch (-live +replay):\n%s", diff)
	}
}

// ============================================================
// Report Log Tests
// ============================================================

func TestRecord_RoundTrip(t *testing.T) {
	received := time.Date(2025, 6, 1, 12, 30, 0, 123456789, time.UTC)
	warn := 80.0
	crit := 100.0

	reports := []telemetry.Report{
		{
			Received:  received,
			Timestamp: 1000,
			Kind:      telemetry.KindAccel,
			Device:    telemetry.AccelDevice,
			Accel:     &telemetry.Accel{X: 0.1, Y: -0.2, Z: 1.0},
		},
		{
			Received:  received.Add(time.Millisecond),
			Timestamp: 1001,
			Kind:      telemetry.KindController,
			Device:    1,
			Record:    threshold.Record{"temp_fet": 85, "v_in": 36.2},
			Results: []threshold.Result{{
				Name:     "temp_fet",
				Label:    "FET",
				Value:    85,
				Severity: threshold.SeverityWarning,
				Bounds:   threshold.Bounds{Warn: &warn, Critical: &crit},
			}},
		},
	}

	var buf bytes.Buffer
	rw := NewRecordWriter(&buf)
	rw.Publish(reports[0])
	rw.Resynced(telemetry.Resync{
		Cause:     telemetry.CauseBoundaryMismatch,
		Err:       telemetry.ErrBoundaryMismatch,
		Discarded: 3,
		Offset:    77,
	})
	rw.Publish(reports[1])
	require.NoError(t, rw.Err())
	assert.Equal(t, 3, rw.Count())

	entries, err := ReadAll(&buf)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	if diff := cmp.Diff(reports[0], *entries[0].Report); diff != "" {
		t.Errorf("accel report mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(reports[1], *entries[2].Report); diff != "" {
		t.Errorf("controller report mismatch (-want +got):\n%s", diff)
	}

	require.NotNil(t, entries[1].Resync)
	assert.Nil(t, entries[1].Report)
	assert.Equal(t, ResyncEntry{
		Cause:     "boundary_mismatch",
		Error:     "frame boundary mismatch",
		Discarded: 3,
		Offset:    77,
	}, *entries[1].Resync)
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestRecordWriter_KeepsFirstError(t *testing.T) {
	rw := NewRecordWriter(brokenWriter{})
	rw.Publish(telemetry.Report{Kind: telemetry.KindAccel})
	rw.Publish(telemetry.Report{Kind: telemetry.KindAccel})

	assert.ErrorIs(t, rw.Err(), io.ErrClosedPipe)
	assert.Zero(t, rw.Count())
}

func TestRecordReader_Truncated(t *testing.T) {
	var buf bytes.Buffer
	NewRecordWriter(&buf).Publish(telemetry.Report{Kind: telemetry.KindAccel, Timestamp: 5})

	data := buf.Bytes()[:buf.Len()-1]
	_, err := ReadAll(bytes.NewReader(data))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
}
