// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import (
	"errors"
	"fmt"
)

// Decode errors
var (
	ErrShortPacket     = errors.New("packet too short")
	ErrStartByte       = errors.New("invalid start byte")
	ErrEndByte         = errors.New("invalid end byte")
	ErrLengthMismatch  = errors.New("length mismatch")
	ErrCRCMismatch     = errors.New("CRC mismatch")
	ErrEmptyPayload    = errors.New("empty payload")
	ErrUnknownCommand  = errors.New("unknown command")
	ErrPayloadTooLarge = errors.New("payload too large")
)

// Message is a decoded VESC message
type Message struct {
	Command Command
	Values  map[string]float64
}

// Decode parses a complete short VESC packet. Any structural or integrity
// problem is returned as an error; a partial message is never returned.
func Decode(packet []byte) (*Message, error) {
	if len(packet) < Overhead {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(packet))
	}
	if packet[0] != StartShort {
		return nil, fmt.Errorf("%w: 0x%02X", ErrStartByte, packet[0])
	}

	length := int(packet[1])
	if len(packet) != length+Overhead {
		return nil, fmt.Errorf("%w: header says %d, packet holds %d", ErrLengthMismatch, length, len(packet)-Overhead)
	}
	if end := packet[length+4]; end != EndByte {
		return nil, fmt.Errorf("%w: 0x%02X", ErrEndByte, end)
	}

	payload := packet[2 : 2+length]
	received := uint16(packet[2+length])<<8 | uint16(packet[3+length])
	if calculated := CalculateCRC(payload); received != calculated {
		return nil, fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrCRCMismatch, calculated, received)
	}

	return DecodePayload(payload)
}

// DecodePayload parses a payload whose framing has already been checked
func DecodePayload(payload []byte) (*Message, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}

	cmd := Command(payload[0])
	fields := Fields(cmd)
	if fields == nil {
		return nil, fmt.Errorf("%w: %s (0x%02X)", ErrUnknownCommand, FormatCommand(cmd), uint8(cmd))
	}

	values, err := decodeFields(payload[1:], fields)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", FormatCommand(cmd), err)
	}
	return &Message{Command: cmd, Values: values}, nil
}
