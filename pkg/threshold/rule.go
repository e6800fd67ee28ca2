// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package threshold

import "fmt"

// Record is a decoded message: parameter name to numeric value
type Record map[string]float64

// Rule resolves the bounds for one parameter. It is implemented only by
// Static and Dynamic.
type Rule interface {
	isRule()
}

// Static is a rule with fixed bounds
type Static struct {
	Bounds
}

func (Static) isRule() {}

// Dynamic is a rule whose bounds depend on the rest of the record
type Dynamic func(Record) Bounds

func (Dynamic) isRule() {}

// Resolve returns the bounds rule yields for rec. A nil rule has no bounds.
func Resolve(rule Rule, rec Record) Bounds {
	switch r := rule.(type) {
	case Static:
		return r.Bounds
	case *Static:
		if r == nil {
			return Bounds{}
		}
		return r.Bounds
	case Dynamic:
		if r == nil {
			return Bounds{}
		}
		return r(rec)
	default:
		return Bounds{}
	}
}

// Switch returns a dynamic rule selecting between two bound sets by another
// field of the same record: above applies when rec[field] > threshold,
// otherwise applies when the field is lower, equal or absent.
func Switch(field string, threshold float64, above, otherwise Bounds) Dynamic {
	return func(rec Record) Bounds {
		if v, ok := rec[field]; ok && v > threshold {
			return above
		}
		return otherwise
	}
}

// Derate returns a dynamic rule that tightens bounds while another field
// is high. Above threshold the derated bounds apply escalated, so reaching
// their warn limit is already critical. Otherwise normal applies as given.
func Derate(field string, threshold float64, derated, normal Bounds) Dynamic {
	return Switch(field, threshold, derated.Escalated(), normal)
}

// Describe returns a short human-readable form of rule
func Describe(rule Rule) string {
	switch r := rule.(type) {
	case Static:
		return r.Bounds.String()
	case *Static:
		if r == nil {
			return "none"
		}
		return r.Bounds.String()
	case Dynamic:
		if r == nil {
			return "none"
		}
		return "dynamic"
	case nil:
		return "none"
	default:
		return fmt.Sprintf("%T", rule)
	}
}

// Param names a record field to evaluate and the rule to evaluate it with
type Param struct {
	Name  string
	Label string
	Rule  Rule
}

// DisplayName returns the label, or the field name when no label is set
func (p Param) DisplayName() string {
	if p.Label != "" {
		return p.Label
	}
	return p.Name
}
