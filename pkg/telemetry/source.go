// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"fmt"
	"io"
)

// Source supplies bytes from the transport in stream order. Every byte it
// returns is first written to the optional tee, including bytes consumed
// while resynchronizing.
type Source struct {
	r   io.Reader
	tee io.Writer

	teeErr error
	read   uint64

	// last four bytes read, oldest first
	window [SentinelSize]byte
	one    [1]byte
}

// NewSource wraps r. tee may be nil.
func NewSource(r io.Reader, tee io.Writer) *Source {
	return &Source{r: r, tee: tee}
}

// ReadExact reads exactly n bytes. A short read returns ErrStreamExhausted;
// the bytes that did arrive are still teed.
func (s *Source) ReadExact(n int) ([]byte, error) {
	buf := make([]byte, n)
	got, err := io.ReadFull(s.r, buf)
	s.consume(buf[:got])
	if err != nil {
		return nil, fmt.Errorf("%w: wanted %d bytes, got %d: %w", ErrStreamExhausted, n, got, err)
	}
	return buf, nil
}

// ReadByte reads a single byte
func (s *Source) ReadByte() (byte, error) {
	if _, err := io.ReadFull(s.r, s.one[:]); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStreamExhausted, err)
	}
	s.consume(s.one[:])
	return s.one[0], nil
}

// AtSentinel reports whether the last four bytes read are the sentinel
func (s *Source) AtSentinel() bool {
	return s.read >= SentinelSize && string(s.window[:]) == Sentinel
}

// BytesRead returns the number of bytes consumed so far
func (s *Source) BytesRead() uint64 {
	return s.read
}

// TeeErr returns the first tee write error. After a failure the tee is
// no longer written but reading continues.
func (s *Source) TeeErr() error {
	return s.teeErr
}

func (s *Source) consume(p []byte) {
	if len(p) == 0 {
		return
	}
	s.read += uint64(len(p))

	if len(p) >= SentinelSize {
		copy(s.window[:], p[len(p)-SentinelSize:])
	} else {
		copy(s.window[:], s.window[len(p):])
		copy(s.window[SentinelSize-len(p):], p)
	}

	if s.tee != nil && s.teeErr == nil {
		if _, err := s.tee.Write(p); err != nil {
			s.teeErr = err
		}
	}
}
