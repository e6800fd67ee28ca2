// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import "fmt"

// EncodePacket wraps payload in short packet framing with its CRC
func EncodePacket(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}

	crc := CalculateCRC(payload)
	packet := make([]byte, 0, len(payload)+Overhead)
	packet = append(packet, StartShort, uint8(len(payload)))
	packet = append(packet, payload...)
	packet = append(packet, byte(crc>>8), byte(crc&0xFF), EndByte)
	return packet, nil
}

// MustEncodePacket is EncodePacket for payloads known to fit.
// Panics on encoding error.
func MustEncodePacket(payload []byte) []byte {
	data, err := EncodePacket(payload)
	if err != nil {
		panic(fmt.Sprintf("vesc: encode error: %v", err))
	}
	return data
}

// EncodeMessage encodes a command and its values as a complete packet
func EncodeMessage(cmd Command, values map[string]float64) ([]byte, error) {
	fields := Fields(cmd)
	if fields == nil {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownCommand, uint8(cmd))
	}
	payload := append([]byte{uint8(cmd)}, encodeFields(values, fields)...)
	return EncodePacket(payload)
}

// EncodeValues encodes a COMM_GET_VALUES reply carrying values
func EncodeValues(values map[string]float64) []byte {
	data, err := EncodeMessage(CommGetValues, values)
	if err != nil {
		panic(fmt.Sprintf("vesc: encode error: %v", err))
	}
	return data
}
