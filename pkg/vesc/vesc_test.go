// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import (
	"errors"
	"strings"
	"testing"
)

// sampleValues is a plausible GET_VALUES reply from a warm controller
func sampleValues() map[string]float64 {
	return map[string]float64{
		"temp_fet":          45.3,
		"temp_motor":        61.2,
		"avg_motor_current": 12.34,
		"avg_input_current": -3.5,
		"duty_cycle_now":    0.512,
		"rpm":               15230,
		"v_in":              36.8,
		"amp_hours":         1.2345,
		"tachometer":        -42,
		"mc_fault_code":     float64(FaultOverTempFET),
		"app_controller_id": 2,
		"time_ms":           123456,
	}
}

// ============================================================
// CRC Tests
// ============================================================

func TestCalculateCRC_Empty(t *testing.T) {
	crc := CalculateCRC([]byte{})
	if crc != crcInitial {
		t.Errorf("CRC of empty data should be initial value, got 0x%04X", crc)
	}
}

func TestCalculateCRC_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{
			name:     "ASCII '123456789'",
			data:     []byte("123456789"),
			expected: 0x31C3, // Standard CRC-16/XMODEM check value
		},
		{
			name:     "single zero byte",
			data:     []byte{0x00},
			expected: 0x0000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crc := CalculateCRC(tt.data)
			if crc != tt.expected {
				t.Errorf("CRC mismatch: expected 0x%04X, got 0x%04X", tt.expected, crc)
			}
		})
	}
}

// ============================================================
// Decoder Tests
// ============================================================

func TestDecode_GetValues(t *testing.T) {
	packet := EncodeValues(sampleValues())

	if packet[0] != StartShort || packet[len(packet)-1] != EndByte {
		t.Fatalf("bad framing: % X", packet)
	}
	if int(packet[1]) != 1+blockSize(getValuesFields) {
		t.Errorf("length byte = %d, want %d", packet[1], 1+blockSize(getValuesFields))
	}

	msg, err := Decode(packet)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if msg.Command != CommGetValues {
		t.Errorf("Command = %s, want GET_VALUES", FormatCommand(msg.Command))
	}

	for name, want := range sampleValues() {
		got, ok := msg.Values[name]
		if !ok {
			t.Errorf("%s missing", name)
			continue
		}
		if diff := got - want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("%s = %v, want %v", name, got, want)
		}
	}

	// Unset fields decode as zero rather than going missing
	if v, ok := msg.Values["watt_hours"]; !ok || v != 0 {
		t.Errorf("watt_hours = %v, %v; want 0, true", v, ok)
	}
	if len(msg.Values) != len(getValuesFields) {
		t.Errorf("decoded %d fields, want %d", len(msg.Values), len(getValuesFields))
	}
}

func TestDecode_FwVersion(t *testing.T) {
	packet, err := EncodeMessage(CommFwVersion, map[string]float64{"fw_major": 5, "fw_minor": 2})
	if err != nil {
		t.Fatalf("EncodeMessage error: %v", err)
	}
	msg, err := Decode(packet)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if msg.Values["fw_major"] != 5 || msg.Values["fw_minor"] != 2 {
		t.Errorf("version = %v.%v, want 5.2", msg.Values["fw_major"], msg.Values["fw_minor"])
	}
}

func TestDecode_TrailingFieldsIgnored(t *testing.T) {
	payload := append([]byte{uint8(CommFwVersion), 6, 0}, []byte("HW_60")...)
	msg, err := Decode(MustEncodePacket(payload))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if msg.Values["fw_major"] != 6 {
		t.Errorf("fw_major = %v, want 6", msg.Values["fw_major"])
	}
}

func TestDecode_Errors(t *testing.T) {
	good := EncodeValues(sampleValues())

	corrupt := func(mutate func([]byte) []byte) []byte {
		data := append([]byte(nil), good...)
		return mutate(data)
	}

	tests := []struct {
		name   string
		packet []byte
		want   error
	}{
		{"empty", nil, ErrShortPacket},
		{"too short", []byte{StartShort, 0, 0, 0}, ErrShortPacket},
		{"long packet start", corrupt(func(b []byte) []byte { b[0] = 0x03; return b }), ErrStartByte},
		{"length too large", corrupt(func(b []byte) []byte { b[1]++; return b }), ErrLengthMismatch},
		{"truncated", good[:len(good)-1], ErrLengthMismatch},
		{"bad end byte", corrupt(func(b []byte) []byte { b[len(b)-1] = 0x00; return b }), ErrEndByte},
		{"payload bit flip", corrupt(func(b []byte) []byte { b[5] ^= 0x10; return b }), ErrCRCMismatch},
		{"crc bit flip", corrupt(func(b []byte) []byte { b[len(b)-2] ^= 0x01; return b }), ErrCRCMismatch},
		{"empty payload", MustEncodePacket(nil), ErrEmptyPayload},
		{"unknown command", MustEncodePacket([]byte{0x42, 1, 2}), ErrUnknownCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode(tt.packet)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if msg != nil {
				t.Errorf("expected nil message on failure, got %+v", msg)
			}
		})
	}
}

func TestDecode_ShortFieldBlock(t *testing.T) {
	payload := append([]byte{uint8(CommGetValues)}, make([]byte, 10)...)
	msg, err := Decode(MustEncodePacket(payload))
	if err == nil {
		t.Fatalf("expected error for short GET_VALUES block, got %+v", msg)
	}
	if !strings.Contains(err.Error(), "GET_VALUES") {
		t.Errorf("error should name the command: %v", err)
	}
}

func TestDecodePayload_SignedFields(t *testing.T) {
	values := map[string]float64{"temp_fet": -3276.8, "rpm": -2147483648}
	msg, err := Decode(EncodeValues(values))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if msg.Values["temp_fet"] != -3276.8 {
		t.Errorf("temp_fet = %v, want -3276.8", msg.Values["temp_fet"])
	}
	if msg.Values["rpm"] != -2147483648 {
		t.Errorf("rpm = %v, want -2147483648", msg.Values["rpm"])
	}
}

// ============================================================
// Encoder Tests
// ============================================================

func TestEncodePacket_PayloadTooLarge(t *testing.T) {
	_, err := EncodePacket(make([]byte, MaxPayloadSize+1))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("error = %v, want ErrPayloadTooLarge", err)
	}

	packet, err := EncodePacket(make([]byte, MaxPayloadSize))
	if err != nil {
		t.Fatalf("max payload should encode: %v", err)
	}
	if len(packet) != MaxPayloadSize+Overhead {
		t.Errorf("len = %d, want %d", len(packet), MaxPayloadSize+Overhead)
	}
}

func TestMustEncodePacket_Panic(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustEncodePacket should panic on oversized payload")
		}
	}()
	MustEncodePacket(make([]byte, MaxPayloadSize+1))
}

func TestEncodeMessage_UnknownCommand(t *testing.T) {
	if _, err := EncodeMessage(CommSetDuty, nil); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("error = %v, want ErrUnknownCommand", err)
	}
}

func TestEncodeFields_Clamps(t *testing.T) {
	msg, err := Decode(EncodeValues(map[string]float64{"temp_fet": 1e9, "mc_fault_code": -5}))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if msg.Values["temp_fet"] != 3276.7 {
		t.Errorf("temp_fet = %v, want clamp to 3276.7", msg.Values["temp_fet"])
	}
	if msg.Values["mc_fault_code"] != 0 {
		t.Errorf("mc_fault_code = %v, want clamp to 0", msg.Values["mc_fault_code"])
	}
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatMessage(t *testing.T) {
	msg, err := Decode(EncodeValues(sampleValues()))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	out := FormatMessage(msg)

	for _, want := range []string{"GET_VALUES (0x04)", "temp_fet:", "45.3", "OVER_TEMP_FET (5)", "rpm:", "15230"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatValues_AnyCommand(t *testing.T) {
	out := FormatValues(map[string]float64{"fw_minor": 5, "fw_major": 6, "extra": 1.5})

	want := "  fw_major:            6\n" +
		"  fw_minor:            5\n" +
		"  extra:               1.5\n"
	if out != want {
		t.Errorf("FormatValues() =\n%s\nwant\n%s", out, want)
	}
	if strings.Contains(out, "GET_VALUES") {
		t.Errorf("output names a command it was not given:\n%s", out)
	}
}

func TestFormatValues_KeepsWireOrder(t *testing.T) {
	msg, err := Decode(EncodeValues(sampleValues()))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	out := FormatValues(msg.Values)

	fet := strings.Index(out, "temp_fet:")
	rpm := strings.Index(out, "rpm:")
	if fet < 0 || rpm < 0 || fet > rpm {
		t.Errorf("temp_fet should precede rpm:\n%s", out)
	}
	if !strings.Contains(out, "OVER_TEMP_FET (5)") {
		t.Errorf("fault code not named:\n%s", out)
	}
}

func TestFormatValue(t *testing.T) {
	tests := map[float64]string{
		0:       "0",
		85:      "85",
		45.3:    "45.3",
		-3.5:    "-3.5",
		0.12345: "0.1235",
	}
	for v, want := range tests {
		if got := FormatValue(v); got != want {
			t.Errorf("FormatValue(%v) = %q, want %q", v, got, want)
		}
	}
}

func TestFormatCommand_Unknown(t *testing.T) {
	if got := FormatCommand(0x7F); got != "UNKNOWN" {
		t.Errorf("FormatCommand(0x7F) = %q, want UNKNOWN", got)
	}
	if got := FormatFaultCode(99); got != "UNKNOWN" {
		t.Errorf("FormatFaultCode(99) = %q, want UNKNOWN", got)
	}
}
