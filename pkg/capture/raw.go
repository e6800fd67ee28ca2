// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture writes and replays raw telemetry captures and CBOR
// report logs.
package capture

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies how a raw capture is stored
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionLZ4
)

// Frame magic numbers, little-endian
const (
	zstdMagic = 0xFD2FB528
	lz4Magic  = 0x184D2204
)

// String returns the flag name of the compression
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// Ext returns the file name suffix of the compression
func (c Compression) Ext() string {
	switch c {
	case CompressionZstd:
		return ".zst"
	case CompressionLZ4:
		return ".lz4"
	default:
		return ""
	}
}

// ParseCompression parses a compression name
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return CompressionNone, nil
	case "zstd", "zst":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("unknown compression %q (none, zstd, lz4)", name)
	}
}

// RawName returns the capture file name for a session started at now
func RawName(now time.Time, c Compression) string {
	return fmt.Sprintf("telemetry.%d%s", now.Unix(), c.Ext())
}

// Writer is a raw capture file. It receives every byte read from the
// transport, in order.
type Writer struct {
	path string
	file *os.File
	buf  *bufio.Writer
	enc  io.WriteCloser
	n    int64
}

// Create creates a new capture file in dir. An existing file is never
// overwritten.
func Create(dir string, c Compression, now time.Time) (*Writer, error) {
	path := filepath.Join(dir, RawName(now, c))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create capture: %w", err)
	}

	w := &Writer{path: path, file: f, buf: bufio.NewWriter(f)}
	switch c {
	case CompressionNone:
		w.enc = nopWriteCloser{w.buf}
	case CompressionZstd:
		enc, err := zstd.NewWriter(w.buf, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		w.enc = enc
	case CompressionLZ4:
		w.enc = lz4.NewWriter(w.buf)
	default:
		f.Close()
		return nil, fmt.Errorf("unsupported compression: %s", c)
	}
	return w, nil
}

// Write appends raw stream bytes
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.enc.Write(p)
	w.n += int64(n)
	return n, err
}

// Path returns the capture file path
func (w *Writer) Path() string {
	return w.path
}

// Written returns the number of uncompressed bytes captured
func (w *Writer) Written() int64 {
	return w.n
}

// Close flushes the compressor and closes the file
func (w *Writer) Close() error {
	errs := []error{w.enc.Close(), w.buf.Flush(), w.file.Sync(), w.file.Close()}
	return errors.Join(errs...)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// Open opens a capture for replay. The compression is detected from the
// frame magic, not the file name.
func Open(path string) (io.ReadCloser, Compression, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open capture: %w", err)
	}

	br := bufio.NewReader(f)
	c := sniff(br)

	switch c {
	case CompressionZstd:
		dec, err := zstd.NewReader(br)
		if err != nil {
			f.Close()
			return nil, 0, fmt.Errorf("zstd reader: %w", err)
		}
		return &replay{Reader: dec, closers: []func() error{
			func() error { dec.Close(); return nil },
			f.Close,
		}}, c, nil
	case CompressionLZ4:
		return &replay{Reader: lz4.NewReader(br), closers: []func() error{f.Close}}, c, nil
	default:
		return &replay{Reader: br, closers: []func() error{f.Close}}, c, nil
	}
}

func sniff(br *bufio.Reader) Compression {
	head, err := br.Peek(4)
	if err != nil {
		return CompressionNone
	}
	switch binary.LittleEndian.Uint32(head) {
	case zstdMagic:
		return CompressionZstd
	case lz4Magic:
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

type replay struct {
	io.Reader
	closers []func() error
}

func (r *replay) Close() error {
	var errs []error
	for _, c := range r.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
