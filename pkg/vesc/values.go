// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import (
	"encoding/binary"
	"fmt"
	"math"
)

// fieldKind is the wire type of a payload field
type fieldKind int

const (
	kindInt16 fieldKind = iota
	kindInt32
	kindUint8
)

func (k fieldKind) size() int {
	switch k {
	case kindInt16:
		return 2
	case kindInt32:
		return 4
	default:
		return 1
	}
}

// Field describes one scaled field of a payload.
// The physical value is the raw integer divided by Scale (Scale 0 means 1).
type Field struct {
	Name  string
	kind  fieldKind
	Scale float64
}

// Size returns the wire size of the field in bytes
func (f Field) Size() int {
	return f.kind.size()
}

// getValuesFields is the COMM_GET_VALUES field block, in wire order
var getValuesFields = []Field{
	{Name: "temp_fet", kind: kindInt16, Scale: 10},
	{Name: "temp_motor", kind: kindInt16, Scale: 10},
	{Name: "avg_motor_current", kind: kindInt32, Scale: 100},
	{Name: "avg_input_current", kind: kindInt32, Scale: 100},
	{Name: "avg_id", kind: kindInt32, Scale: 100},
	{Name: "avg_iq", kind: kindInt32, Scale: 100},
	{Name: "duty_cycle_now", kind: kindInt16, Scale: 1000},
	{Name: "rpm", kind: kindInt32, Scale: 1},
	{Name: "v_in", kind: kindInt16, Scale: 10},
	{Name: "amp_hours", kind: kindInt32, Scale: 10000},
	{Name: "amp_hours_charged", kind: kindInt32, Scale: 10000},
	{Name: "watt_hours", kind: kindInt32, Scale: 10000},
	{Name: "watt_hours_charged", kind: kindInt32, Scale: 10000},
	{Name: "tachometer", kind: kindInt32, Scale: 1},
	{Name: "tachometer_abs", kind: kindInt32, Scale: 1},
	{Name: "mc_fault_code", kind: kindUint8},
	{Name: "pid_pos_now", kind: kindInt32, Scale: 1000000},
	{Name: "app_controller_id", kind: kindUint8},
	{Name: "time_ms", kind: kindInt32, Scale: 1},
}

// fwVersionFields is the leading part of COMM_FW_VERSION; the hardware
// name and UUID that newer firmware appends are ignored.
var fwVersionFields = []Field{
	{Name: "fw_major", kind: kindUint8},
	{Name: "fw_minor", kind: kindUint8},
}

// Fields returns the field layout of a command, or nil if it is not decoded
func Fields(cmd Command) []Field {
	switch cmd {
	case CommGetValues:
		return getValuesFields
	case CommFwVersion:
		return fwVersionFields
	default:
		return nil
	}
}

// blockSize returns the total wire size of fields
func blockSize(fields []Field) int {
	n := 0
	for _, f := range fields {
		n += f.Size()
	}
	return n
}

// decodeFields reads fields from data. Trailing bytes beyond the layout
// are ignored; a short block is an error.
func decodeFields(data []byte, fields []Field) (map[string]float64, error) {
	if need := blockSize(fields); len(data) < need {
		return nil, fmt.Errorf("payload too short: %d bytes (need %d)", len(data), need)
	}

	values := make(map[string]float64, len(fields))
	offset := 0
	for _, f := range fields {
		var raw float64
		switch f.kind {
		case kindInt16:
			raw = float64(int16(binary.BigEndian.Uint16(data[offset:])))
		case kindInt32:
			raw = float64(int32(binary.BigEndian.Uint32(data[offset:])))
		case kindUint8:
			raw = float64(data[offset])
		}
		if f.Scale != 0 {
			raw /= f.Scale
		}
		values[f.Name] = raw
		offset += f.Size()
	}
	return values, nil
}

// encodeFields writes values in field order. Missing values encode as zero.
func encodeFields(values map[string]float64, fields []Field) []byte {
	out := make([]byte, 0, blockSize(fields))
	for _, f := range fields {
		v := values[f.Name]
		if f.Scale != 0 {
			v *= f.Scale
		}
		v = math.Round(v)
		switch f.kind {
		case kindInt16:
			out = binary.BigEndian.AppendUint16(out, uint16(int16(clamp(v, math.MinInt16, math.MaxInt16))))
		case kindInt32:
			out = binary.BigEndian.AppendUint32(out, uint32(int32(clamp(v, math.MinInt32, math.MaxInt32))))
		case kindUint8:
			out = append(out, uint8(clamp(v, 0, math.MaxUint8)))
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
