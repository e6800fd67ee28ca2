// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Thermoquad/vescstat/pkg/threshold"
)

// State is the position of the dispatch loop
type State int

const (
	StateAwaitDiscriminator State = iota
	StateAccelFrame
	StateControllerFrame
	StateDecoded
	StateEvaluated
	StateResyncing
	StateDone
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateAwaitDiscriminator:
		return "AwaitDiscriminator"
	case StateAccelFrame:
		return "AccelFrame"
	case StateControllerFrame:
		return "ControllerFrame"
	case StateDecoded:
		return "Decoded"
	case StateEvaluated:
		return "Evaluated"
	case StateResyncing:
		return "Resyncing"
	case StateDone:
		return "Done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config configures a Loop. Only Source is required.
type Config struct {
	Source *Source
	// Codec defaults to VESC()
	Codec Codec
	// Rules may be nil, in which case nothing is evaluated
	Rules  *threshold.RuleSet
	Sink   Sink
	Logger *slog.Logger
	// Now stamps Report.Received, defaults to time.Now
	Now func() time.Time
}

// Loop reads frames until the source is exhausted
type Loop struct {
	src    *Source
	frames *FrameReader
	codec  Codec
	rules  *threshold.RuleSet
	sink   Sink
	log    *slog.Logger
	now    func() time.Time

	state     State
	err       error
	stats     *Statistics
	teeWarned bool
}

// NewLoop creates a dispatch loop
func NewLoop(cfg Config) *Loop {
	l := &Loop{
		src:    cfg.Source,
		frames: NewFrameReader(cfg.Source),
		codec:  cfg.Codec,
		rules:  cfg.Rules,
		sink:   cfg.Sink,
		log:    cfg.Logger,
		now:    cfg.Now,
		stats:  NewStatistics(),
	}
	if l.codec == nil {
		l.codec = VESC()
	}
	if l.sink == nil {
		l.sink = Discard{}
	}
	if l.log == nil {
		l.log = slog.New(slog.DiscardHandler)
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// Run processes frames until the stream ends
func (l *Loop) Run() {
	for l.Step() {
	}
}

// Step processes one frame, resynchronizing if it is rejected. Returns
// false once the stream is exhausted.
func (l *Loop) Step() bool {
	if l.state == StateDone {
		return false
	}
	defer l.checkTee()

	l.state = StateAwaitDiscriminator
	b, err := l.src.ReadByte()
	if err != nil {
		l.finish(err)
		return false
	}

	report, err := l.dispatch(Discriminator(b))
	if err != nil {
		return l.resync(err)
	}

	l.stats.Publish(report)
	l.sink.Publish(report)
	l.state = StateAwaitDiscriminator
	return true
}

// Err returns the read error that ended the loop, or nil if the stream
// ended cleanly at end of input
func (l *Loop) Err() error {
	return l.err
}

// State returns the current loop state
func (l *Loop) State() State {
	return l.state
}

// Stats returns the loop counters. Not safe to read while Run is active
// on another goroutine.
func (l *Loop) Stats() *Statistics {
	return l.stats
}

func (l *Loop) dispatch(d Discriminator) (Report, error) {
	if d.IsAccel() {
		l.state = StateAccelFrame
		f, err := l.frames.ReadAccel()
		if err != nil {
			return Report{}, err
		}
		g := f.G()
		return Report{
			Received:  l.now(),
			Timestamp: f.Timestamp,
			Kind:      KindAccel,
			Device:    AccelDevice,
			Accel:     &g,
		}, nil
	}

	device, ok := d.Device()
	if !ok {
		return Report{}, fmt.Errorf("%w: 0x%02X", ErrUnknownDiscriminator, byte(d))
	}

	l.state = StateControllerFrame
	f, err := l.frames.ReadController(device)
	if err != nil {
		return Report{}, err
	}

	record, err := l.codec.Decode(f.Message)
	if err != nil {
		return Report{}, fmt.Errorf("%w: device %d: %w", ErrDecodeFailure, device, err)
	}
	if record == nil {
		return Report{}, fmt.Errorf("%w: device %d: codec returned no values", ErrDecodeFailure, device)
	}
	l.state = StateDecoded

	results, ok := l.rules.Evaluate(device, record)
	if !ok {
		l.log.Debug("no rules for device", "device", device)
	}
	l.state = StateEvaluated

	for _, res := range results {
		if res.Severity == threshold.SeverityNormal {
			continue
		}
		l.log.Debug("threshold exceeded",
			"device", device,
			"param", res.Label,
			"value", res.Value,
			"severity", res.Severity,
		)
	}

	return Report{
		Received:  l.now(),
		Timestamp: f.Timestamp,
		Kind:      KindController,
		Device:    device,
		Record:    record,
		Results:   results,
	}, nil
}

// resync recovers from a rejected frame. Returns false if the stream ran
// out while searching.
func (l *Loop) resync(cause error) bool {
	l.state = StateResyncing
	discarded, err := l.frames.Resync()

	event := Resync{
		Cause:     CauseOf(cause),
		Err:       cause,
		Discarded: discarded,
		Offset:    l.src.BytesRead(),
	}
	l.stats.Resynced(event)
	l.sink.Resynced(event)
	l.log.Debug("resynchronized",
		"cause", event.Cause,
		"err", cause,
		"discarded", discarded,
		"offset", event.Offset,
	)

	if err != nil {
		l.finish(err)
		return false
	}
	l.state = StateAwaitDiscriminator
	return true
}

func (l *Loop) finish(err error) {
	l.state = StateDone
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		l.log.Debug("stream ended", "bytes", l.src.BytesRead())
		return
	}
	l.err = err
	l.log.Warn("stream read failed", "err", err, "bytes", l.src.BytesRead())
}

func (l *Loop) checkTee() {
	if l.teeWarned {
		return
	}
	if err := l.src.TeeErr(); err != nil {
		l.teeWarned = true
		l.log.Warn("raw capture write failed, capture is incomplete", "err", err)
	}
}
