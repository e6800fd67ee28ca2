// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownDiscriminator is returned for a frame start byte outside the
	// recognized set
	ErrUnknownDiscriminator = errors.New("unknown discriminator")
	// ErrBoundaryMismatch is returned when a frame does not end with the
	// sentinel
	ErrBoundaryMismatch = errors.New("frame boundary mismatch")
	// ErrUnexpectedPacketType is returned when a controller frame carries a
	// packet type other than PacketTypeShort
	ErrUnexpectedPacketType = errors.New("unexpected packet type")
	// ErrDecodeFailure wraps a codec rejection of a structurally valid frame
	ErrDecodeFailure = errors.New("message decode failure")
	// ErrStreamExhausted is returned when the source cannot supply the
	// requested bytes
	ErrStreamExhausted = errors.New("stream exhausted")
)

// ResyncCause classifies why the stream was resynchronized
type ResyncCause int

// Resync causes, one per recoverable error
const (
	CauseUnknown ResyncCause = iota
	CauseUnknownDiscriminator
	CauseBoundaryMismatch
	CauseUnexpectedPacketType
	CauseDecodeFailure
	CauseStreamExhausted
)

// String returns the snake-case name of the cause
func (c ResyncCause) String() string {
	switch c {
	case CauseUnknownDiscriminator:
		return "unknown_discriminator"
	case CauseBoundaryMismatch:
		return "boundary_mismatch"
	case CauseUnexpectedPacketType:
		return "unexpected_packet_type"
	case CauseDecodeFailure:
		return "decode_failure"
	case CauseStreamExhausted:
		return "stream_exhausted"
	case CauseUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("cause(%d)", int(c))
	}
}

// CauseOf maps an error from the frame reader or codec to its cause
func CauseOf(err error) ResyncCause {
	switch {
	case errors.Is(err, ErrUnknownDiscriminator):
		return CauseUnknownDiscriminator
	case errors.Is(err, ErrBoundaryMismatch):
		return CauseBoundaryMismatch
	case errors.Is(err, ErrUnexpectedPacketType):
		return CauseUnexpectedPacketType
	case errors.Is(err, ErrDecodeFailure):
		return CauseDecodeFailure
	case errors.Is(err, ErrStreamExhausted):
		return CauseStreamExhausted
	default:
		return CauseUnknown
	}
}
