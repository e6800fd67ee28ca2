// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/vescstat/pkg/bridge"
	"github.com/Thermoquad/vescstat/pkg/telemetry"
	"github.com/Thermoquad/vescstat/pkg/threshold"
)

var (
	bridgeListen   string
	bridgePath     string
	bridgeUsername string
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Re-broadcast the raw stream over WebSocket",
	Long: `Serve the raw telemetry stream to WebSocket clients.

Bytes are forwarded exactly as received, batched into binary messages, so a
client can read the bridge with --url as if it were the transmitter. The
stream is also decoded locally: resyncs and critical values are logged.

With --bridge-username, clients must authenticate with HTTP Basic auth. The
password is read from VESCSTAT_BRIDGE_PASSWORD or prompted interactively.`,
	RunE: runBridge,
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
	bridgeCmd.Flags().StringVar(&bridgeListen, "listen", ":8080", "Listen address")
	bridgeCmd.Flags().StringVar(&bridgePath, "path", "/telemetry", "WebSocket endpoint path")
	bridgeCmd.Flags().StringVar(&bridgeUsername, "bridge-username", "", "Require HTTP Basic auth with this username")
}

func runBridge(cmd *cobra.Command, args []string) error {
	password := ""
	if bridgeUsername != "" {
		var err error
		password, err = GetPassword("VESCSTAT_BRIDGE_PASSWORD")
		if err != nil {
			return err
		}
	}

	hub := bridge.NewHub(bridge.Options{
		Username: bridgeUsername,
		Password: password,
		Logger:   logger,
	})

	sess, err := openSession(hub)
	if err != nil {
		return err
	}
	defer sess.Close()
	stop := sess.HandleInterrupt()
	defer stop()

	ln, err := net.Listen("tcp", bridgeListen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle(bridgePath, hub)
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.Serve(ln)
	}()

	fmt.Fprintf(os.Stderr, "Vescstat - Bridge\n")
	fmt.Fprintf(os.Stderr, "Connection: %s\n", sess.info)
	fmt.Fprintf(os.Stderr, "Serving ws://%s%s\n\n", ln.Addr(), bridgePath)
	logger.Info("bridge listening", "addr", ln.Addr().String(), "path", bridgePath, "auth", bridgeUsername != "")

	loop := sess.NewLoop(telemetry.SinkFuncs{
		OnReport: func(r telemetry.Report) {
			for _, res := range r.Results {
				if res.Severity == threshold.SeverityCritical {
					logger.Warn("critical value", "device", r.Device, "param", res.Name, "value", res.Value, "bounds", res.Bounds.String())
				}
			}
		},
		OnResync: func(e telemetry.Resync) {
			logger.Info("resync", "cause", e.Cause.String(), "discarded", e.Discarded, "offset", e.Offset)
		},
	})

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		loop.Run()
	}()

	select {
	case <-loopDone:
	case err := <-srvErr:
		sess.Interrupt()
		<-loopDone
		return fmt.Errorf("bridge server: %w", err)
	}

	cancel()
	hub.Close()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("bridge shutdown", "err", err)
	}

	logger.Info("bridge stopped", "bytes_sent", hub.Sent(), "clients_dropped", hub.Dropped())
	fmt.Fprint(os.Stderr, loop.Stats().String())
	return sess.Err(loop)
}
