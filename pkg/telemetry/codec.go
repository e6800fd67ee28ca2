// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"github.com/Thermoquad/vescstat/pkg/threshold"
	"github.com/Thermoquad/vescstat/pkg/vesc"
)

// Codec turns a rebuilt controller message into named values
type Codec interface {
	Decode(message []byte) (threshold.Record, error)
}

// CodecFunc adapts a function to Codec
type CodecFunc func(message []byte) (threshold.Record, error)

// Decode calls f
func (f CodecFunc) Decode(message []byte) (threshold.Record, error) {
	return f(message)
}

// VESC returns the codec for VESC short packets
func VESC() Codec {
	return CodecFunc(func(message []byte) (threshold.Record, error) {
		msg, err := vesc.Decode(message)
		if err != nil {
			return nil, err
		}
		return threshold.Record(msg.Values), nil
	})
}
