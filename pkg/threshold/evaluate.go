// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package threshold

// Result is the classification of one parameter
type Result struct {
	Name     string   `cbor:"name"`
	Label    string   `cbor:"label"`
	Value    float64  `cbor:"value"`
	Missing  bool     `cbor:"missing,omitempty"`
	Severity Severity `cbor:"severity"`
	Bounds   Bounds   `cbor:"bounds"`
}

// Evaluate classifies each parameter of params against rec, in order.
// A parameter absent from rec is reported as normal and flagged Missing.
func Evaluate(rec Record, params []Param) []Result {
	results := make([]Result, 0, len(params))
	for _, p := range params {
		results = append(results, EvaluateParam(rec, p))
	}
	return results
}

// EvaluateParam classifies a single parameter
func EvaluateParam(rec Record, p Param) Result {
	res := Result{
		Name:     p.Name,
		Label:    p.DisplayName(),
		Severity: SeverityNormal,
	}

	v, ok := rec[p.Name]
	if !ok {
		res.Missing = true
		return res
	}
	res.Value = v

	res.Bounds = Resolve(p.Rule, rec)
	if res.Bounds.IsZero() {
		return res
	}
	res.Severity = res.Bounds.Classify(v)
	return res
}

// Worst returns the highest severity in results
func Worst(results []Result) Severity {
	worst := SeverityNormal
	for _, r := range results {
		if r.Severity > worst {
			worst = r.Severity
		}
	}
	return worst
}
