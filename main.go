// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Vescstat - VESC Telemetry Stream Monitor
//
// A CLI tool for recovering, decoding and thresholding the telemetry stream
// of a four-controller VESC vehicle.

package main

import (
	"os"

	"github.com/Thermoquad/vescstat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
