// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/vescstat/pkg/telemetry"
)

var (
	packetTestTimeout int
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid telemetry frame",
	Long: `Wait for a valid telemetry frame on the connection until timeout.

This command connects to a serial port or WebSocket and waits for any frame
that decodes cleanly: an accelerometer sample or a controller message that
passes its CRC check. Garbage before the first sentinel is skipped.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error

Useful for testing connectivity to the transmitter or a vescstat bridge.`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	noCapture = true
	sess, err := openSession()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("Vescstat - Packet Test\n")
	fmt.Printf("Connection: %s\n", sess.info)
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)
	fmt.Printf("Waiting for valid telemetry frame...\n\n")

	reportChan := make(chan telemetry.Report, 1)
	var discarded int
	received := false

	loop := sess.NewLoop(telemetry.SinkFuncs{
		OnReport: func(r telemetry.Report) {
			received = true
			reportChan <- r
		},
		OnResync: func(e telemetry.Resync) {
			discarded += e.Discarded
		},
	})

	errChan := make(chan error, 1)
	go func() {
		for !received && loop.Step() {
		}
		if !received {
			errChan <- loop.Err()
		}
	}()

	code := 0
	select {
	case r := <-reportChan:
		if discarded > 0 {
			fmt.Printf("(skipped %d bytes before sync)\n", discarded)
		}
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Kind: %s\n", r.Kind)
		if r.Kind == telemetry.KindController {
			fmt.Printf("  Device: VESC[%d]\n", r.Device)
			fmt.Printf("  Fields: %d\n", len(r.Record))
		}
		fmt.Printf("  Timestamp: %d\n", r.Timestamp)

	case err := <-errChan:
		if err == nil {
			err = fmt.Errorf("stream ended")
		}
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		code = 2

	case <-time.After(time.Duration(packetTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", packetTestTimeout)
		code = 1
	}

	sess.Close()
	os.Exit(code)
	return nil
}
