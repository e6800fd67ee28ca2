// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package threshold

import "fmt"

// MaxDevices is the number of motor controllers that carry rules
const MaxDevices = 4

// RuleSet holds the ordered parameter list of each motor controller.
// It is built once and only read while the stream is processed.
type RuleSet struct {
	devices [MaxDevices][]Param
}

// NewRuleSet creates an empty rule set
func NewRuleSet() *RuleSet {
	return &RuleSet{}
}

// Set replaces the parameter list of a device
func (rs *RuleSet) Set(device int, params []Param) error {
	if device < 0 || device >= MaxDevices {
		return fmt.Errorf("device index %d out of range (0-%d)", device, MaxDevices-1)
	}
	for i, p := range params {
		if p.Name == "" {
			return fmt.Errorf("device %d parameter %d: empty name", device, i)
		}
	}
	rs.devices[device] = append([]Param(nil), params...)
	return nil
}

// Params returns the parameter list of a device. ok is false when the
// index is outside the rule storage.
func (rs *RuleSet) Params(device int) (params []Param, ok bool) {
	if rs == nil || device < 0 || device >= MaxDevices {
		return nil, false
	}
	return rs.devices[device], true
}

// Evaluate classifies rec with the rules of device. ok is false when
// the device has no rule storage.
func (rs *RuleSet) Evaluate(device int, rec Record) (results []Result, ok bool) {
	params, ok := rs.Params(device)
	if !ok {
		return nil, false
	}
	return Evaluate(rec, params), true
}

// Default returns the stock rule set: FET temperature on every controller
// and input voltage on the third, which powers the logic rail.
func Default() *RuleSet {
	fet := Param{Name: "temp_fet", Label: "temp_fet", Rule: Static{High(80, 100)}}
	vin := Param{Name: "v_in", Label: "v_in", Rule: Static{Low(20, 8)}}

	rs := NewRuleSet()
	rs.devices[0] = []Param{fet}
	rs.devices[1] = []Param{fet}
	rs.devices[2] = []Param{fet, vin}
	rs.devices[3] = []Param{fet}
	return rs
}
