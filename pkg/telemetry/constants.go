// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package telemetry recovers frames from the transmitter byte stream.
//
// Every frame starts with a discriminator byte and ends with the four byte
// sentinel "----". The discriminator selects the frame shape: 0x41 is an
// accelerometer sample, 0x00-0x09 is a motor controller message from the
// device with that index. Frames that fail boundary validation are dropped
// and the stream is resynchronized on the next sentinel.
package telemetry

// Sentinel is the literal trailer of every frame
const Sentinel = "----"

// Discriminator values
const (
	AccelDiscriminator = 0x41
	// ControllerDiscriminatorLimit is the exclusive upper bound of
	// motor controller discriminators
	ControllerDiscriminatorLimit = 0x0A
)

// Frame layout sizes
const (
	SentinelSize  = 4
	TimestampSize = 4
	// AccelPayloadSize is three signed 16-bit axes
	AccelPayloadSize = 6
	// AccelFrameSize excludes the discriminator
	AccelFrameSize = TimestampSize + AccelPayloadSize + SentinelSize

	// PacketTypeShort is the only packet type a controller frame carries
	PacketTypeShort = 0x02
	// MessageTrailerSize is the sub-message bytes not counted by the
	// length byte (CRC and end byte)
	MessageTrailerSize = 3
	// ControllerHeaderSize is timestamp + packet type + length
	ControllerHeaderSize = TimestampSize + 2
)

// AccelScale converts raw accelerometer units to g
const AccelScale = 10.0

// AccelDevice is the Report.Device value of accelerometer reports
const AccelDevice = -1
