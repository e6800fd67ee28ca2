// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"encoding/binary"
	"fmt"
)

// Discriminator is the first byte of a frame
type Discriminator byte

// IsAccel reports whether d starts an accelerometer frame
func (d Discriminator) IsAccel() bool {
	return d == AccelDiscriminator
}

// Device returns the controller index of d
func (d Discriminator) Device() (int, bool) {
	if d < ControllerDiscriminatorLimit {
		return int(d), true
	}
	return 0, false
}

// String names the frame kind d selects
func (d Discriminator) String() string {
	if d.IsAccel() {
		return "ACCEL"
	}
	if dev, ok := d.Device(); ok {
		return fmt.Sprintf("VESC[%d]", dev)
	}
	return fmt.Sprintf("INVALID(0x%02X)", byte(d))
}

// Accel is an accelerometer sample in g
type Accel struct {
	X float64 `cbor:"x"`
	Y float64 `cbor:"y"`
	Z float64 `cbor:"z"`
}

// AccelFrame is a raw accelerometer frame
type AccelFrame struct {
	Timestamp uint32
	Raw       [3]int16
}

// G returns the sample scaled to g
func (f AccelFrame) G() Accel {
	return Accel{
		X: float64(f.Raw[0]) / AccelScale,
		Y: float64(f.Raw[1]) / AccelScale,
		Z: float64(f.Raw[2]) / AccelScale,
	}
}

// ControllerFrame is a motor controller frame. Message holds the rebuilt
// short packet: packet type, length, then the sub-message bytes.
type ControllerFrame struct {
	Device    int
	Timestamp uint32
	Length    uint8
	Message   []byte
}

// FrameReader reads frame bodies once the discriminator has been consumed
type FrameReader struct {
	src *Source
}

// NewFrameReader creates a frame reader over src
func NewFrameReader(src *Source) *FrameReader {
	return &FrameReader{src: src}
}

// ReadAccel reads the remainder of an accelerometer frame
func (r *FrameReader) ReadAccel() (AccelFrame, error) {
	ts, err := r.src.ReadExact(TimestampSize)
	if err != nil {
		return AccelFrame{}, err
	}
	data, err := r.src.ReadExact(AccelPayloadSize + SentinelSize)
	if err != nil {
		return AccelFrame{}, err
	}
	if tail := data[AccelPayloadSize:]; string(tail) != Sentinel {
		return AccelFrame{}, fmt.Errorf("%w: accel frame ends with % X", ErrBoundaryMismatch, tail)
	}

	f := AccelFrame{Timestamp: binary.LittleEndian.Uint32(ts)}
	for i := range f.Raw {
		f.Raw[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return f, nil
}

// ReadController reads the remainder of a controller frame for device
func (r *FrameReader) ReadController(device int) (ControllerFrame, error) {
	ts, err := r.src.ReadExact(TimestampSize)
	if err != nil {
		return ControllerFrame{}, err
	}

	packetType, err := r.src.ReadByte()
	if err != nil {
		return ControllerFrame{}, err
	}
	if packetType != PacketTypeShort {
		return ControllerFrame{}, fmt.Errorf("%w: 0x%02X", ErrUnexpectedPacketType, packetType)
	}

	length, err := r.src.ReadByte()
	if err != nil {
		return ControllerFrame{}, err
	}

	data, err := r.src.ReadExact(int(length) + MessageTrailerSize + SentinelSize)
	if err != nil {
		return ControllerFrame{}, err
	}
	body, tail := data[:len(data)-SentinelSize], data[len(data)-SentinelSize:]
	if string(tail) != Sentinel {
		return ControllerFrame{}, fmt.Errorf("%w: device %d frame ends with % X", ErrBoundaryMismatch, device, tail)
	}

	msg := make([]byte, 0, 2+len(body))
	msg = append(msg, packetType, length)
	msg = append(msg, body...)

	return ControllerFrame{
		Device:    device,
		Timestamp: binary.LittleEndian.Uint32(ts),
		Length:    length,
		Message:   msg,
	}, nil
}

// Resync discards bytes until the last four bytes read form the sentinel.
// The window includes bytes already consumed by the rejected frame, so a
// frame whose tail slid by a few bytes costs only those bytes. Returns the
// number of bytes discarded.
func (r *FrameReader) Resync() (int, error) {
	discarded := 0
	for !r.src.AtSentinel() {
		if _, err := r.src.ReadByte(); err != nil {
			return discarded, err
		}
		discarded++
	}
	return discarded, nil
}
