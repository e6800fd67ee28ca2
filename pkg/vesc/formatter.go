// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// FormatMessage formats a message into a human-readable string
func FormatMessage(m *Message) string {
	result := fmt.Sprintf("%s (0x%02X)\n", FormatCommand(m.Command), uint8(m.Command))

	for _, f := range Fields(m.Command) {
		if v, ok := m.Values[f.Name]; ok {
			result += formatField(f.Name, v)
		}
	}

	return result
}

// FormatValues formats decoded values without knowing the command that
// produced them. Known fields keep their wire order; any others follow
// sorted by name.
func FormatValues(values map[string]float64) string {
	var result string
	seen := make(map[string]bool, len(values))
	for _, cmd := range []Command{CommGetValues, CommFwVersion} {
		for _, f := range Fields(cmd) {
			if v, ok := values[f.Name]; ok && !seen[f.Name] {
				seen[f.Name] = true
				result += formatField(f.Name, v)
			}
		}
	}
	for _, name := range slices.Sorted(maps.Keys(values)) {
		if !seen[name] {
			result += formatField(name, values[name])
		}
	}
	return result
}

func formatField(name string, v float64) string {
	if name == "mc_fault_code" {
		return fmt.Sprintf("  %-20s %s (%d)\n", name+":", FormatFaultCode(FaultCode(v)), int(v))
	}
	return fmt.Sprintf("  %-20s %s\n", name+":", FormatValue(v))
}

// FormatValue prints a field value without trailing zeros
func FormatValue(v float64) string {
	s := fmt.Sprintf("%.4f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// FormatCommand returns the human-readable name for a command
func FormatCommand(cmd Command) string {
	switch cmd {
	case CommFwVersion:
		return "FW_VERSION"
	case CommJumpToBootload:
		return "JUMP_TO_BOOTLOADER"
	case CommEraseNewApp:
		return "ERASE_NEW_APP"
	case CommWriteNewAppData:
		return "WRITE_NEW_APP_DATA"
	case CommGetValues:
		return "GET_VALUES"
	case CommSetDuty:
		return "SET_DUTY"
	case CommSetCurrent:
		return "SET_CURRENT"
	case CommSetCurrentBrake:
		return "SET_CURRENT_BRAKE"
	case CommSetRPM:
		return "SET_RPM"
	case CommSetPos:
		return "SET_POS"
	default:
		return "UNKNOWN"
	}
}

// FormatFaultCode returns the human-readable name for a fault code
func FormatFaultCode(code FaultCode) string {
	switch code {
	case FaultNone:
		return "NONE"
	case FaultOverVoltage:
		return "OVER_VOLTAGE"
	case FaultUnderVoltage:
		return "UNDER_VOLTAGE"
	case FaultDRV:
		return "DRV"
	case FaultAbsOverCurrent:
		return "ABS_OVER_CURRENT"
	case FaultOverTempFET:
		return "OVER_TEMP_FET"
	case FaultOverTempMotor:
		return "OVER_TEMP_MOTOR"
	default:
		return "UNKNOWN"
	}
}
