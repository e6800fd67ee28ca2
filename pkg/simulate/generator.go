// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simulate

import (
	"fmt"
	"io"
	"math"
	"math/rand/v2"

	"github.com/Thermoquad/vescstat/pkg/vesc"
)

// Corruption is a way of damaging a frame
type Corruption int

const (
	// CorruptNone leaves the frame intact
	CorruptNone Corruption = iota
	// CorruptSentinel overwrites one sentinel byte
	CorruptSentinel
	// CorruptInsert inserts a byte before the sentinel
	CorruptInsert
	// CorruptDrop removes the byte before the sentinel
	CorruptDrop
	// CorruptDiscriminator replaces the discriminator with an invalid one
	CorruptDiscriminator
	// CorruptPacketType replaces a controller packet type
	CorruptPacketType
	// CorruptCRC flips a CRC bit, leaving the framing intact
	CorruptCRC
)

var corruptionNames = map[Corruption]string{
	CorruptNone:          "none",
	CorruptSentinel:      "sentinel",
	CorruptInsert:        "insert",
	CorruptDrop:          "drop",
	CorruptDiscriminator: "discriminator",
	CorruptPacketType:    "packet-type",
	CorruptCRC:           "crc",
}

func (c Corruption) String() string {
	if name, ok := corruptionNames[c]; ok {
		return name
	}
	return fmt.Sprintf("corruption(%d)", int(c))
}

// Corrupt returns a damaged copy of frame. Controller-only corruptions are
// applied as CorruptSentinel to accelerometer frames.
func Corrupt(frame []byte, c Corruption) []byte {
	out := append([]byte(nil), frame...)
	if len(out) < 6 {
		return out
	}
	accel := out[0] == 0x41
	if accel && (c == CorruptPacketType || c == CorruptCRC) {
		c = CorruptSentinel
	}

	tail := len(out) - 4
	switch c {
	case CorruptSentinel:
		out[tail+1] = 0x00
	case CorruptInsert:
		out = append(out[:tail:tail], append([]byte{0x5A}, out[tail:]...)...)
	case CorruptDrop:
		out = append(out[:tail-1:tail-1], out[tail:]...)
	case CorruptDiscriminator:
		out[0] = 0x7E
	case CorruptPacketType:
		out[5] = 0x03
	case CorruptCRC:
		// CRC high byte sits before the CRC low byte and end byte
		out[tail-3] ^= 0x01
	}
	return out
}

// Options configures a Generator
type Options struct {
	Seed uint64
	// Devices is the number of controllers, 1-10. Default 4.
	Devices int
	// StepMillis is the timestamp advance per cycle. Default 50.
	StepMillis uint32
	// CorruptRate is the probability that a frame is damaged
	CorruptRate float64
	// Corruptions to choose from. Defaults to all of them.
	Corruptions []Corruption
}

// Generator emits a deterministic telemetry stream: per cycle one
// accelerometer frame followed by a GET_VALUES frame per controller.
type Generator struct {
	opts  Options
	rng   *rand.Rand
	ts    uint32
	cycle int

	// Corrupted counts damaged frames by kind
	Corrupted map[Corruption]int
}

// New creates a Generator
func New(opts Options) *Generator {
	if opts.Devices <= 0 {
		opts.Devices = 4
	}
	opts.Devices = min(opts.Devices, 10)
	if opts.StepMillis == 0 {
		opts.StepMillis = 50
	}
	if len(opts.Corruptions) == 0 {
		opts.Corruptions = []Corruption{
			CorruptSentinel,
			CorruptInsert,
			CorruptDrop,
			CorruptDiscriminator,
			CorruptPacketType,
			CorruptCRC,
		}
	}
	return &Generator{
		opts:      opts,
		rng:       rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9E3779B97F4A7C15)),
		Corrupted: make(map[Corruption]int),
	}
}

// Next returns the frames of the next cycle
func (g *Generator) Next() [][]byte {
	g.cycle++
	g.ts += g.opts.StepMillis
	phase := float64(g.cycle) / 40.0

	frames := make([][]byte, 0, 1+g.opts.Devices)
	frames = append(frames, AccelFrame(g.ts,
		0.2*math.Sin(phase*3)+g.noise(0.05),
		0.1*math.Cos(phase*2)+g.noise(0.05),
		1.0+g.noise(0.05),
	))
	for dev := 0; dev < g.opts.Devices; dev++ {
		frames = append(frames, ValuesFrame(dev, g.ts, g.values(dev, phase)))
	}

	for i, f := range frames {
		if g.opts.CorruptRate > 0 && g.rng.Float64() < g.opts.CorruptRate {
			c := g.opts.Corruptions[g.rng.IntN(len(g.opts.Corruptions))]
			frames[i] = Corrupt(f, c)
			g.Corrupted[c]++
		}
	}
	return frames
}

// Cycle returns the number of cycles generated
func (g *Generator) Cycle() int {
	return g.cycle
}

// WriteCycles writes n cycles to w
func (g *Generator) WriteCycles(w io.Writer, n int) error {
	for range n {
		for _, f := range g.Next() {
			if _, err := w.Write(f); err != nil {
				return err
			}
		}
	}
	return nil
}

// values models a controller warming up under a pulsing load. Device 2
// runs off a slowly sagging pack.
func (g *Generator) values(dev int, phase float64) map[string]float64 {
	load := 0.5 + 0.5*math.Sin(phase+float64(dev))
	current := 5 + 140*load + g.noise(2)
	temp := 40 + 55*load + float64(dev)*2 + g.noise(0.5)

	vin := 42.0 - 0.8*current/100 + g.noise(0.1)
	if dev == 2 {
		vin -= math.Mod(float64(g.cycle)/50.0, 30)
	}

	return map[string]float64{
		"temp_fet":          temp,
		"temp_motor":        temp + 8,
		"avg_motor_current": current,
		"avg_input_current": current * 0.6,
		"duty_cycle_now":    load * 0.95,
		"rpm":               math.Round(load * 30000),
		"v_in":              vin,
		"amp_hours":         float64(g.cycle) * current / 72000,
		"tachometer":        float64(g.cycle * 7),
		"tachometer_abs":    float64(g.cycle * 7),
		"mc_fault_code":     float64(vesc.FaultNone),
		"app_controller_id": float64(dev),
		"time_ms":           float64(g.ts),
	}
}

func (g *Generator) noise(scale float64) float64 {
	return (g.rng.Float64()*2 - 1) * scale
}
