// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"fmt"
	"time"

	"github.com/Thermoquad/vescstat/pkg/threshold"
)

// Statistics tracks frame counts and resync rates. It implements Sink.
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	AccelFrames      uint64
	ControllerFrames uint64
	DeviceFrames     [ControllerDiscriminatorLimit]uint64
	Resyncs          uint64
	ResyncCauses     map[ResyncCause]uint64
	DiscardedBytes   uint64
	Warnings         uint64
	Criticals        uint64
	MissingValues    uint64

	// Rates (calculated)
	FrameRate  float64 // frames/sec
	ResyncRate float64 // resyncs/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
		ResyncCauses:   make(map[ResyncCause]uint64),
	}
}

// Publish counts a processed frame
func (s *Statistics) Publish(r Report) {
	switch r.Kind {
	case KindAccel:
		s.AccelFrames++
	case KindController:
		s.ControllerFrames++
		if r.Device >= 0 && r.Device < len(s.DeviceFrames) {
			s.DeviceFrames[r.Device]++
		}
	}

	for _, res := range r.Results {
		switch {
		case res.Missing:
			s.MissingValues++
		case res.Severity == threshold.SeverityWarning:
			s.Warnings++
		case res.Severity == threshold.SeverityCritical:
			s.Criticals++
		}
	}

	s.LastUpdateTime = time.Now()
}

// Resynced counts a resynchronization
func (s *Statistics) Resynced(e Resync) {
	if s.ResyncCauses == nil {
		s.ResyncCauses = make(map[ResyncCause]uint64)
	}
	s.Resyncs++
	s.ResyncCauses[e.Cause]++
	s.DiscardedBytes += uint64(e.Discarded)
	s.LastUpdateTime = time.Now()
}

// TotalFrames returns the number of frames processed
func (s *Statistics) TotalFrames() uint64 {
	return s.AccelFrames + s.ControllerFrames
}

// CalculateRates calculates frame and resync rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames()) / elapsed
		s.ResyncRate = float64(s.Resyncs) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	total := s.TotalFrames()
	var resyncPercent float64
	if attempts := total + s.Resyncs; attempts > 0 {
		resyncPercent = float64(s.Resyncs) * 100.0 / float64(attempts)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", total)
	result += fmt.Sprintf("  Accel:          %7d\n", s.AccelFrames)
	for dev, n := range s.DeviceFrames {
		if n > 0 {
			result += fmt.Sprintf("  VESC[%d]:        %7d\n", dev, n)
		}
	}

	result += fmt.Sprintf("Resyncs:         %8d (%.1f%%)\n", s.Resyncs, resyncPercent)
	for _, cause := range []ResyncCause{
		CauseUnknownDiscriminator,
		CauseBoundaryMismatch,
		CauseUnexpectedPacketType,
		CauseDecodeFailure,
		CauseStreamExhausted,
		CauseUnknown,
	} {
		if n := s.ResyncCauses[cause]; n > 0 {
			result += fmt.Sprintf("  %-24s %5d\n", cause.String()+":", n)
		}
	}
	if s.DiscardedBytes > 0 {
		result += fmt.Sprintf("Discarded Bytes: %8d\n", s.DiscardedBytes)
	}

	if s.Warnings > 0 {
		result += fmt.Sprintf("Warnings:        %8d\n", s.Warnings)
	}
	if s.Criticals > 0 {
		result += fmt.Sprintf("Criticals:       %8d\n", s.Criticals)
	}
	if s.MissingValues > 0 {
		result += fmt.Sprintf("Missing Values:  %8d\n", s.MissingValues)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Resync Rate:     %8.1f resyncs/sec\n", s.ResyncRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
