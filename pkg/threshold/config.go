// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package threshold

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// maxConfigSize bounds the rule file read by LoadFile
const maxConfigSize = 1 << 20

// FileConfig is the YAML layout of a rule file:
//
//	devices:
//	  - index: 0
//	    parameters:
//	      - name: temp_fet
//	        warn: 80
//	        critical: 100
//	      - name: temp_motor
//	        dynamic:
//	          field: avg_motor_current
//	          above: 100
//	          then: {warn: 20, critical: 30}
//	          else: {warn: 30, critical: 40}
type FileConfig struct {
	Devices []DeviceConfig `yaml:"devices"`
}

// DeviceConfig lists the parameters of one motor controller
type DeviceConfig struct {
	Index      int           `yaml:"index"`
	Parameters []ParamConfig `yaml:"parameters"`
}

// ParamConfig is one parameter. Either the inline bounds or Dynamic may be
// set, not both.
type ParamConfig struct {
	Name    string         `yaml:"name"`
	Label   string         `yaml:"label,omitempty"`
	Bounds  `yaml:",inline"`
	Dynamic *DynamicConfig `yaml:"dynamic,omitempty"`
}

// DynamicConfig derates a parameter while another field is above a
// threshold. Then is escalated when it applies (see Derate).
type DynamicConfig struct {
	Field string  `yaml:"field"`
	Above float64 `yaml:"above"`
	Then  Bounds  `yaml:"then"`
	Else  Bounds  `yaml:"else"`
}

// Rule builds the rule described by the parameter
func (p ParamConfig) Rule() (Rule, error) {
	if p.Dynamic == nil {
		return Static{p.Bounds}, nil
	}
	if !p.Bounds.IsZero() {
		return nil, fmt.Errorf("parameter %q: static bounds and dynamic rule are mutually exclusive", p.Name)
	}
	if p.Dynamic.Field == "" {
		return nil, fmt.Errorf("parameter %q: dynamic rule without field", p.Name)
	}
	return Derate(p.Dynamic.Field, p.Dynamic.Above, p.Dynamic.Then, p.Dynamic.Else), nil
}

// Parse decodes a YAML rule file. Devices not listed have no rules.
func Parse(data []byte) (*RuleSet, error) {
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse rule file: %w", err)
	}
	return cfg.RuleSet()
}

// RuleSet converts the decoded file into a rule set
func (cfg *FileConfig) RuleSet() (*RuleSet, error) {
	rs := NewRuleSet()
	seen := make(map[int]bool)
	for _, dev := range cfg.Devices {
		if seen[dev.Index] {
			return nil, fmt.Errorf("device %d listed twice", dev.Index)
		}
		seen[dev.Index] = true

		params := make([]Param, 0, len(dev.Parameters))
		for _, pc := range dev.Parameters {
			rule, err := pc.Rule()
			if err != nil {
				return nil, fmt.Errorf("device %d: %w", dev.Index, err)
			}
			params = append(params, Param{Name: pc.Name, Label: pc.Label, Rule: rule})
		}
		if err := rs.Set(dev.Index, params); err != nil {
			return nil, err
		}
	}
	return rs, nil
}

// LoadFile reads a YAML rule file from disk
func LoadFile(path string) (*RuleSet, error) {
	cleanPath := filepath.Clean(path)
	switch ext := filepath.Ext(cleanPath); ext {
	case ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("rule file must have .yaml or .yml extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat rule file: %w", err)
	}
	if info.Size() > maxConfigSize {
		return nil, fmt.Errorf("rule file too large: %d bytes (max %d)", info.Size(), maxConfigSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("rule file is empty")
	}
	return Parse(data)
}
