// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Thermoquad/vescstat/pkg/capture"
	"github.com/Thermoquad/vescstat/pkg/telemetry"
	"github.com/Thermoquad/vescstat/pkg/threshold"
)

// session is an open connection with its capture and rules
type session struct {
	conn    Connection
	info    string
	live    bool
	rules   *threshold.RuleSet
	capture *capture.Writer
	tee     *teeAll

	closeOnce   sync.Once
	interrupted atomic.Bool
}

// openSession opens the connection selected by flags. Extra tees receive
// the raw stream alongside the capture file.
func openSession(extra ...io.Writer) (*session, error) {
	rules, err := loadRules()
	if err != nil {
		return nil, err
	}

	compression, err := capture.ParseCompression(compressName)
	if err != nil {
		return nil, err
	}

	conn, info, live, err := OpenConnection()
	if err != nil {
		return nil, err
	}

	s := &session{conn: conn, info: info, live: live, rules: rules}

	var writers []namedWriter
	if live && !noCapture {
		w, err := capture.Create(captureDir, compression, time.Now())
		if err != nil {
			conn.Close()
			return nil, err
		}
		s.capture = w
		writers = append(writers, namedWriter{name: "capture " + w.Path(), w: w})
		logger.Info("capturing raw stream", "path", w.Path(), "compression", compression)
	}
	for i, w := range extra {
		writers = append(writers, namedWriter{name: fmt.Sprintf("tee %d", i), w: w})
	}
	if len(writers) > 0 {
		s.tee = &teeAll{writers: writers, log: logger}
	}
	return s, nil
}

// loadRules returns the rule file named by --rules, or the built-in rules
func loadRules() (*threshold.RuleSet, error) {
	if rulesPath == "" {
		return threshold.Default(), nil
	}
	rules, err := threshold.LoadFile(rulesPath)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	logger.Info("loaded threshold rules", "path", rulesPath)
	return rules, nil
}

// Source returns a stream source teeing into the capture
func (s *session) Source() *telemetry.Source {
	if s.tee == nil {
		return telemetry.NewSource(s.conn, nil)
	}
	return telemetry.NewSource(s.conn, s.tee)
}

// NewLoop builds a dispatch loop over the session
func (s *session) NewLoop(sink telemetry.Sink) *telemetry.Loop {
	return telemetry.NewLoop(telemetry.Config{
		Source: s.Source(),
		Rules:  s.rules,
		Sink:   sink,
		Logger: logger,
	})
}

// HandleInterrupt closes the connection on SIGINT or SIGTERM so a blocked
// loop returns. The returned function stops listening.
func (s *session) HandleInterrupt() (stop func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigs:
			logger.Info("shutting down", "signal", sig)
			s.Interrupt()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

// Interrupt stops the session early
func (s *session) Interrupt() {
	s.interrupted.Store(true)
	s.closeConn()
}

// Err reports why a finished loop stopped, hiding errors caused by an
// interrupt
func (s *session) Err(loop *telemetry.Loop) error {
	if err := loop.Err(); err != nil && !s.interrupted.Load() {
		return fmt.Errorf("stream ended: %w", err)
	}
	return nil
}

func (s *session) closeConn() {
	s.closeOnce.Do(func() {
		if err := s.conn.Close(); err != nil {
			logger.Debug("close connection", "err", err)
		}
	})
}

// Close closes the connection and finishes the capture file
func (s *session) Close() error {
	s.closeConn()
	if s.capture == nil {
		return nil
	}
	if err := s.capture.Close(); err != nil {
		return fmt.Errorf("close capture: %w", err)
	}
	logger.Info("capture saved", "path", s.capture.Path(), "bytes", s.capture.Written())
	return nil
}

type namedWriter struct {
	name   string
	w      io.Writer
	failed bool
}

// teeAll writes to every member. A failing member is dropped with a
// warning; an error is returned only once every member has failed.
type teeAll struct {
	writers []namedWriter
	log     *slog.Logger
}

func (t *teeAll) Write(p []byte) (int, error) {
	var errs []error
	live := 0
	for i := range t.writers {
		w := &t.writers[i]
		if w.failed {
			continue
		}
		if _, err := w.w.Write(p); err != nil {
			w.failed = true
			t.log.Warn("raw stream tee failed", "tee", w.name, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", w.name, err))
			continue
		}
		live++
	}
	if live == 0 {
		if len(errs) == 0 {
			errs = append(errs, errors.New("all tees failed"))
		}
		return 0, errors.Join(errs...)
	}
	return len(p), nil
}
