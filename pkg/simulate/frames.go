// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package simulate produces transmitter byte streams for replay, bench
// testing and the frame recovery tests.
package simulate

import (
	"encoding/binary"
	"math"

	"github.com/Thermoquad/vescstat/pkg/telemetry"
	"github.com/Thermoquad/vescstat/pkg/vesc"
)

// AccelFrame builds a complete accelerometer frame. Axes are in g.
func AccelFrame(ts uint32, x, y, z float64) []byte {
	frame := make([]byte, 0, 1+telemetry.AccelFrameSize)
	frame = append(frame, telemetry.AccelDiscriminator)
	frame = binary.LittleEndian.AppendUint32(frame, ts)
	for _, g := range []float64{x, y, z} {
		frame = binary.LittleEndian.AppendUint16(frame, uint16(axis(g)))
	}
	return append(frame, telemetry.Sentinel...)
}

// ControllerFrame wraps a VESC short packet in a controller frame
func ControllerFrame(device int, ts uint32, packet []byte) []byte {
	frame := make([]byte, 0, 1+telemetry.TimestampSize+len(packet)+telemetry.SentinelSize)
	frame = append(frame, byte(device))
	frame = binary.LittleEndian.AppendUint32(frame, ts)
	frame = append(frame, packet...)
	return append(frame, telemetry.Sentinel...)
}

// ValuesFrame builds a controller frame carrying a GET_VALUES reply
func ValuesFrame(device int, ts uint32, values map[string]float64) []byte {
	return ControllerFrame(device, ts, vesc.EncodeValues(values))
}

func axis(g float64) int16 {
	raw := math.Round(g * telemetry.AccelScale)
	return int16(max(math.MinInt16, min(math.MaxInt16, raw)))
}
