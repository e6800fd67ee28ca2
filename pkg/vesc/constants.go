// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package vesc decodes the VESC motor controller messages carried inside
// telemetry frames.
//
// A message is a short VESC packet: start byte, one length byte, the payload,
// a big-endian CRC-16/XMODEM of the payload and an end byte. The first payload
// byte is the command; the rest is the command's big-endian field block.
package vesc

// Packet framing bytes
const (
	StartShort = 0x02
	EndByte    = 0x03
)

// Packet size limits
const (
	MaxPayloadSize = 255
	// Overhead is start + length + crc(2) + end
	Overhead = 5
	// TrailerSize is the bytes following the payload: crc(2) + end
	TrailerSize = 3
)

// CRC-16/XMODEM configuration
const (
	crcPolynomial = 0x1021
	crcInitial    = 0x0000
)

// Command identifies the payload layout
type Command uint8

// Command values
const (
	CommFwVersion       Command = 0x00
	CommJumpToBootload  Command = 0x01
	CommEraseNewApp     Command = 0x02
	CommWriteNewAppData Command = 0x03
	CommGetValues       Command = 0x04
	CommSetDuty         Command = 0x05
	CommSetCurrent      Command = 0x06
	CommSetCurrentBrake Command = 0x07
	CommSetRPM          Command = 0x08
	CommSetPos          Command = 0x09
)

// FaultCode is the mc_fault_code reported in GET_VALUES
type FaultCode int

// Fault code values
const (
	FaultNone FaultCode = iota
	FaultOverVoltage
	FaultUnderVoltage
	FaultDRV
	FaultAbsOverCurrent
	FaultOverTempFET
	FaultOverTempMotor
)
