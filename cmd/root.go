// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Replay instead of reading a live transport
	replayPath string

	// Raw capture flags
	captureDir   string
	noCapture    bool
	compressName string

	// Threshold rule file
	rulesPath string

	// Logging flags
	logLevel = levelFlag{level: slog.LevelInfo}
	logFile  string
)

// logger is configured before any command runs
var logger = slog.New(slog.DiscardHandler)

var logOutput io.Closer

// quietLogAnnotation marks commands that own the terminal; they log only
// to --log-file
const quietLogAnnotation = "quiet-log"

var rootCmd = &cobra.Command{
	Use:   "vescstat",
	Short: "VESC telemetry stream monitor",
	Long: `Vescstat - A CLI tool for monitoring the telemetry stream of a four-controller
VESC vehicle.

The transmitter interleaves accelerometer samples and VESC GET_VALUES replies
from each motor controller. Vescstat recovers frame boundaries, decodes each
controller message, and flags parameters that cross their warning or critical
thresholds.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]
  Replay:    --replay telemetry.1700000000[.zst|.lz4]

Live sessions write every received byte to telemetry.<unix-time> in the
capture directory so the session can be replayed later.

For WebSocket authentication, the password is read from the VESCSTAT_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logOutput != nil {
			return logOutput.Close()
		}
		return nil
	},
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVarP(&replayPath, "replay", "r", "", "Replay a raw capture file (- for stdin)")

	// Capture flags
	rootCmd.PersistentFlags().StringVar(&captureDir, "capture-dir", ".", "Directory for raw capture files")
	rootCmd.PersistentFlags().BoolVar(&noCapture, "no-capture", false, "Do not write a raw capture file")
	rootCmd.PersistentFlags().StringVar(&compressName, "compress", "none", "Raw capture compression (none, zstd, lz4)")

	rootCmd.PersistentFlags().StringVar(&rulesPath, "rules", "", "Threshold rule file (YAML, default built-in rules)")

	// Logging flags
	rootCmd.PersistentFlags().Var(&logLevel, "log-level", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to file instead of stderr")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func setupLogging(cmd *cobra.Command, args []string) error {
	var out io.Writer = os.Stderr
	switch {
	case logFile != "":
		f, err := os.OpenFile(logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		out = f
		logOutput = f
	case cmd.Annotations[quietLogAnnotation] == "true":
		logger = slog.New(slog.DiscardHandler)
		return nil
	}

	logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: logLevel.level}))
	return nil
}

// levelFlag is a pflag.Value for slog levels
type levelFlag struct {
	level slog.Level
}

var _ pflag.Value = (*levelFlag)(nil)

func (f *levelFlag) String() string {
	return strings.ToLower(f.level.String())
}

func (f *levelFlag) Set(s string) error {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return fmt.Errorf("invalid log level %q (debug, info, warn, error)", s)
	}
	f.level = l
	return nil
}

func (f *levelFlag) Type() string {
	return "level"
}
