// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"fmt"
	"time"

	"github.com/Thermoquad/vescstat/pkg/threshold"
)

// Kind identifies the frame a Report was built from
type Kind uint8

const (
	KindAccel Kind = iota + 1
	KindController
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case KindAccel:
		return "accel"
	case KindController:
		return "controller"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Report is the outcome of one successfully processed frame
type Report struct {
	Received  time.Time `cbor:"received"`
	Timestamp uint32    `cbor:"ts"`
	Kind      Kind      `cbor:"kind"`
	// Device is the controller index, AccelDevice for accelerometer frames
	Device  int                `cbor:"device"`
	Accel   *Accel             `cbor:"accel,omitempty"`
	Record  threshold.Record   `cbor:"record,omitempty"`
	Results []threshold.Result `cbor:"results,omitempty"`
}

// Severity returns the worst severity among the results
func (r Report) Severity() threshold.Severity {
	return threshold.Worst(r.Results)
}

// Resync describes one resynchronization
type Resync struct {
	Cause     ResyncCause
	Err       error
	Discarded int
	// Offset is the stream position at which the sentinel was found
	Offset uint64
}

// Sink receives loop output
type Sink interface {
	Publish(Report)
	Resynced(Resync)
}

// Discard is a Sink that drops everything
type Discard struct{}

func (Discard) Publish(Report)  {}
func (Discard) Resynced(Resync) {}

// Sinks fans out to every member in order
type Sinks []Sink

// Publish forwards r to every sink
func (s Sinks) Publish(r Report) {
	for _, sink := range s {
		sink.Publish(r)
	}
}

// Resynced forwards e to every sink
func (s Sinks) Resynced(e Resync) {
	for _, sink := range s {
		sink.Resynced(e)
	}
}

// SinkFuncs adapts callbacks to Sink. Nil callbacks are skipped.
type SinkFuncs struct {
	OnReport func(Report)
	OnResync func(Resync)
}

func (f SinkFuncs) Publish(r Report) {
	if f.OnReport != nil {
		f.OnReport(r)
	}
}

func (f SinkFuncs) Resynced(e Resync) {
	if f.OnResync != nil {
		f.OnResync(e)
	}
}
