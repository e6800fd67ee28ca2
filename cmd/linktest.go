// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/vescstat/pkg/telemetry"
)

var linkTestDuration int

var linkTestCmd = &cobra.Command{
	Use:   "link_test",
	Short: "Test raw connection stability",
	Long: `Read the connection for a fixed time without decoding frames.

Reports the bytes received, the number of reads, the number of frame
sentinels seen and the longest gap between reads. Useful for debugging
dropped WebSocket bridges or a flaky serial link.

Exit codes:
  0 - Test completed normally
  1 - Connection failed during the test
  2 - Connection error`,
	RunE: runLinkTest,
}

func init() {
	rootCmd.AddCommand(linkTestCmd)
	linkTestCmd.Flags().IntVar(&linkTestDuration, "duration", 30, "Test duration in seconds")
}

// linkCounter tallies raw reads
type linkCounter struct {
	bytes     int
	reads     int
	sentinels int
	longest   time.Duration
	last      time.Time
	tail      []byte
}

func (c *linkCounter) add(data []byte, at time.Time) {
	if !c.last.IsZero() {
		c.longest = max(c.longest, at.Sub(c.last))
	}
	c.last = at
	c.bytes += len(data)
	c.reads++

	// A sentinel may straddle two reads
	buf := append(c.tail, data...)
	c.sentinels += bytes.Count(buf, []byte(telemetry.Sentinel))
	if i := bytes.LastIndex(buf, []byte(telemetry.Sentinel)); i >= 0 {
		buf = buf[i+telemetry.SentinelSize:]
	}
	keep := min(len(buf), telemetry.SentinelSize-1)
	c.tail = append(c.tail[:0], buf[len(buf)-keep:]...)
}

func (c *linkCounter) print(w io.Writer, elapsed time.Duration, result string) {
	fmt.Fprintf(w, "\n--- Test Results ---\n")
	fmt.Fprintf(w, "Duration: %v\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Reads: %d\n", c.reads)
	fmt.Fprintf(w, "Bytes received: %d\n", c.bytes)
	fmt.Fprintf(w, "Sentinels seen: %d\n", c.sentinels)
	fmt.Fprintf(w, "Longest gap: %v\n", c.longest.Round(time.Millisecond))
	fmt.Fprintf(w, "Result: %s\n", result)
}

func runLinkTest(cmd *cobra.Command, args []string) error {
	conn, connInfo, _, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Connection Stability Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Duration: %d seconds\n\n", linkTestDuration)

	readChan := make(chan []byte, 100)
	errChan := make(chan error, 1)

	go func() {
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				readChan <- data
			}
			if err != nil {
				errChan <- err
				return
			}
		}
	}()

	start := time.Now()
	endTime := start.Add(time.Duration(linkTestDuration) * time.Second)
	heartbeat := time.NewTicker(time.Second)
	defer heartbeat.Stop()

	var counter linkCounter
	fmt.Printf("Listening for data...\n\n")

	for time.Now().Before(endTime) {
		select {
		case data := <-readChan:
			counter.add(data, time.Now())

		case err := <-errChan:
			fmt.Printf("\n[%s] Connection error: %v\n", time.Now().Format("15:04:05.000"), err)
			counter.print(os.Stdout, time.Since(start), "FAILED (connection error)")
			conn.Close()
			os.Exit(1)

		case <-heartbeat.C:
			fmt.Printf("[%s] %d bytes, %d sentinels (%.0fs remaining)\n",
				time.Now().Format("15:04:05.000"), counter.bytes, counter.sentinels, time.Until(endTime).Seconds())
		}
	}

	counter.print(os.Stdout, time.Since(start), "PASSED (connection stable)")
	return nil
}
