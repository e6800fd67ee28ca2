// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/vescstat/pkg/telemetry"
)

// Entry is one item of a report log: a report or a resync
type Entry struct {
	Report *telemetry.Report `cbor:"report,omitempty"`
	Resync *ResyncEntry      `cbor:"resync,omitempty"`
}

// ResyncEntry is the logged form of telemetry.Resync
type ResyncEntry struct {
	Cause     string `cbor:"cause"`
	Error     string `cbor:"error,omitempty"`
	Discarded int    `cbor:"discarded"`
	Offset    uint64 `cbor:"offset"`
}

var encMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("capture: cbor encode mode: %v", err))
	}
	return em
}()

// RecordWriter writes a CBOR sequence of entries. It implements
// telemetry.Sink; the first write error is kept and later entries are
// dropped.
type RecordWriter struct {
	enc *cbor.Encoder
	err error
	n   int
}

// NewRecordWriter creates a report log on w
func NewRecordWriter(w io.Writer) *RecordWriter {
	return &RecordWriter{enc: encMode.NewEncoder(w)}
}

// Publish logs a report
func (rw *RecordWriter) Publish(r telemetry.Report) {
	rw.write(Entry{Report: &r})
}

// Resynced logs a resync
func (rw *RecordWriter) Resynced(e telemetry.Resync) {
	entry := &ResyncEntry{
		Cause:     e.Cause.String(),
		Discarded: e.Discarded,
		Offset:    e.Offset,
	}
	if e.Err != nil {
		entry.Error = e.Err.Error()
	}
	rw.write(Entry{Resync: entry})
}

// Err returns the first write error
func (rw *RecordWriter) Err() error {
	return rw.err
}

// Count returns the number of entries written
func (rw *RecordWriter) Count() int {
	return rw.n
}

func (rw *RecordWriter) write(e Entry) {
	if rw.err != nil {
		return
	}
	if err := rw.enc.Encode(e); err != nil {
		rw.err = fmt.Errorf("write record: %w", err)
		return
	}
	rw.n++
}

// RecordReader reads a report log
type RecordReader struct {
	dec *cbor.Decoder
}

// NewRecordReader creates a reader over a report log
func NewRecordReader(r io.Reader) *RecordReader {
	return &RecordReader{dec: cbor.NewDecoder(r)}
}

// Next returns the next entry, io.EOF at the end of the log
func (rr *RecordReader) Next() (Entry, error) {
	var e Entry
	if err := rr.dec.Decode(&e); err != nil {
		if errors.Is(err, io.EOF) {
			return Entry{}, io.EOF
		}
		return Entry{}, fmt.Errorf("read record: %w", err)
	}
	return e, nil
}

// ReadAll returns every entry of a report log
func ReadAll(r io.Reader) ([]Entry, error) {
	rr := NewRecordReader(r)
	var entries []Entry
	for {
		e, err := rr.Next()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return entries, err
		}
		entries = append(entries, e)
	}
}
