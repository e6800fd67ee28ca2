// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package threshold classifies decoded telemetry values into normal, warning
// and critical states using per-device parameter rules.
//
// A rule is either static (a fixed set of bounds) or dynamic (bounds computed
// from the whole record, for limits that depend on another field). Evaluation
// is pure: it performs no I/O and gives the same answer for the same inputs.
package threshold

import (
	"fmt"
	"strconv"
	"strings"
)

// Severity is the alarm state of a single parameter value
type Severity int

// Severity values, ordered from least to most severe
const (
	SeverityNormal Severity = iota
	SeverityWarning
	SeverityCritical
)

// String returns the lower-case name of the severity
func (s Severity) String() string {
	switch s {
	case SeverityNormal:
		return "normal"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Bounds holds the four optional alarm limits of a parameter.
// A nil limit is not evaluated.
type Bounds struct {
	Warn        *float64 `yaml:"warn,omitempty" cbor:"warn,omitempty"`
	Critical    *float64 `yaml:"critical,omitempty" cbor:"critical,omitempty"`
	LowWarn     *float64 `yaml:"low_warn,omitempty" cbor:"low_warn,omitempty"`
	LowCritical *float64 `yaml:"low_critical,omitempty" cbor:"low_critical,omitempty"`
}

// Limit returns a pointer to v for use in Bounds literals
func Limit(v float64) *float64 {
	return &v
}

// High returns bounds with only the upper limits set
func High(warn, critical float64) Bounds {
	return Bounds{Warn: Limit(warn), Critical: Limit(critical)}
}

// Low returns bounds with only the lower limits set
func Low(warn, critical float64) Bounds {
	return Bounds{LowWarn: Limit(warn), LowCritical: Limit(critical)}
}

// IsZero reports whether no limit is set
func (b Bounds) IsZero() bool {
	return b.Warn == nil && b.Critical == nil && b.LowWarn == nil && b.LowCritical == nil
}

// Merge returns b with any limit set in o overriding it
func (b Bounds) Merge(o Bounds) Bounds {
	if o.Warn != nil {
		b.Warn = o.Warn
	}
	if o.Critical != nil {
		b.Critical = o.Critical
	}
	if o.LowWarn != nil {
		b.LowWarn = o.LowWarn
	}
	if o.LowCritical != nil {
		b.LowCritical = o.LowCritical
	}
	return b
}

// Escalated returns b with no warning stage: each critical limit moves to
// the tighter of its warn and critical limits.
func (b Bounds) Escalated() Bounds {
	out := Bounds{Critical: b.Critical, LowCritical: b.LowCritical}
	if b.Warn != nil && (out.Critical == nil || *b.Warn < *out.Critical) {
		out.Critical = b.Warn
	}
	if b.LowWarn != nil && (out.LowCritical == nil || *b.LowWarn > *out.LowCritical) {
		out.LowCritical = b.LowWarn
	}
	return out
}

// Classify returns the severity of v against b.
// Boundary values count as breaching: v == critical is critical.
func (b Bounds) Classify(v float64) Severity {
	if (b.Critical != nil && v >= *b.Critical) || (b.LowCritical != nil && v <= *b.LowCritical) {
		return SeverityCritical
	}
	if (b.Warn != nil && v >= *b.Warn) || (b.LowWarn != nil && v <= *b.LowWarn) {
		return SeverityWarning
	}
	return SeverityNormal
}

// String formats the set limits, e.g. "warn>=80 critical>=100"
func (b Bounds) String() string {
	if b.IsZero() {
		return "none"
	}
	var parts []string
	add := func(label, op string, v *float64) {
		if v != nil {
			parts = append(parts, label+op+strconv.FormatFloat(*v, 'g', -1, 64))
		}
	}
	add("warn", ">=", b.Warn)
	add("critical", ">=", b.Critical)
	add("low_warn", "<=", b.LowWarn)
	add("low_critical", "<=", b.LowCritical)
	return strings.Join(parts, " ")
}
