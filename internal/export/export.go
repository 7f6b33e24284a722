package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"netsniff/internal/models"
)

// IOError reports a failed export operation on a file.
type IOError struct {
	Path string
	Op   string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("export %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Format selects the file layout.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// DefaultFlushEvery is the record count between flushes when none is configured.
const DefaultFlushEvery = 100

// Writer appends records to an export file. Records reach disk every
// flushEvery records and on Close; a crash loses at most the unflushed records.
type Writer interface {
	Write(rec models.Record) error
	Close() error
	Path() string
	Count() int
}

// Create opens path for the given format, truncating any existing file.
func Create(format Format, path string, flushEvery int) (Writer, error) {
	if flushEvery <= 0 {
		flushEvery = DefaultFlushEvery
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, &IOError{Path: path, Op: "create", Err: err}
	}

	switch format {
	case FormatJSON:
		w := &jsonWriter{base: base{f: f, flushEvery: flushEvery}}
		if err := w.begin(); err != nil {
			f.Close()
			return nil, err
		}
		return w, nil
	case FormatCSV:
		w := &csvWriter{base: base{f: f, flushEvery: flushEvery}}
		w.csv = csv.NewWriter(&w.pending)
		if err := w.begin(); err != nil {
			f.Close()
			return nil, err
		}
		return w, nil
	}
	f.Close()
	os.Remove(path)
	return nil, fmt.Errorf("unknown export format %q", format)
}

// FormatFromPath picks a format from the file extension.
func FormatFromPath(path string) (Format, bool) {
	switch {
	case strings.HasSuffix(strings.ToLower(path), ".json"):
		return FormatJSON, true
	case strings.HasSuffix(strings.ToLower(path), ".csv"):
		return FormatCSV, true
	}
	return "", false
}

// WriteFile exports recs to path in one go.
func WriteFile(format Format, path string, recs []models.Record) error {
	w, err := Create(format, path, len(recs)+1)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if err := w.Write(rec); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}

// Run writes every record from in to w and closes it. When ctx is done the records
// already queued are written before closing. The first write error ends Run.
func Run(ctx context.Context, in <-chan models.Record, w Writer) error {
	for {
		select {
		case rec, ok := <-in:
			if !ok {
				return w.Close()
			}
			if err := w.Write(rec); err != nil {
				w.Close()
				return err
			}
		case <-ctx.Done():
			for {
				select {
				case rec, ok := <-in:
					if !ok {
						return w.Close()
					}
					if err := w.Write(rec); err != nil {
						w.Close()
						return err
					}
				default:
					return w.Close()
				}
			}
		}
	}
}

// base holds encoded records in memory until the next flush, so the file only
// changes at flush points.
type base struct {
	f          *os.File
	pending    bytes.Buffer
	flushEvery int
	count      int
	closed     bool
}

func (b *base) Path() string { return b.f.Name() }

func (b *base) Count() int { return b.count }

func (b *base) fail(op string, err error) error {
	return &IOError{Path: b.f.Name(), Op: op, Err: err}
}

// sync writes the pending batch in a single call and pushes the file to stable storage.
func (b *base) sync() error {
	if b.pending.Len() > 0 {
		_, err := b.f.Write(b.pending.Bytes())
		b.pending.Reset()
		if err != nil {
			return b.fail("write", err)
		}
	}
	if err := b.f.Sync(); err != nil {
		return b.fail("sync", err)
	}
	return nil
}

func (b *base) close() error {
	b.closed = true
	if err := b.f.Close(); err != nil {
		return b.fail("close", err)
	}
	return nil
}

// jsonWriter keeps the file a valid JSON array after every flush: the closing
// bracket is written together with each batch and overwritten by the next one.
type jsonWriter struct {
	base
}

const jsonTail = "\n]\n"

func (w *jsonWriter) begin() error {
	w.pending.WriteString("[")
	return w.flush()
}

func (w *jsonWriter) Write(rec models.Record) error {
	if w.closed {
		return w.fail("write", os.ErrClosed)
	}
	data, err := json.Marshal(NewRow(rec))
	if err != nil {
		return w.fail("encode", err)
	}
	sep := ",\n  "
	if w.count == 0 {
		sep = "\n  "
	}
	w.pending.WriteString(sep)
	w.pending.Write(data)
	w.count++
	if w.count%w.flushEvery == 0 {
		return w.flush()
	}
	return nil
}

func (w *jsonWriter) flush() error {
	w.pending.WriteString(jsonTail)
	if err := w.sync(); err != nil {
		return err
	}
	if _, err := w.f.Seek(-int64(len(jsonTail)), io.SeekCurrent); err != nil {
		return w.fail("seek", err)
	}
	return nil
}

func (w *jsonWriter) Close() error {
	if w.closed {
		return nil
	}
	w.pending.WriteString(jsonTail)
	if err := w.sync(); err != nil {
		w.close()
		return err
	}
	return w.close()
}

type csvWriter struct {
	base
	csv *csv.Writer
}

func (w *csvWriter) begin() error {
	if err := w.csv.Write(Columns); err != nil {
		return w.fail("write", err)
	}
	return w.flush()
}

func (w *csvWriter) Write(rec models.Record) error {
	if w.closed {
		return w.fail("write", os.ErrClosed)
	}
	if err := w.csv.Write(NewRow(rec).Record()); err != nil {
		return w.fail("write", err)
	}
	w.count++
	if w.count%w.flushEvery == 0 {
		return w.flush()
	}
	return nil
}

func (w *csvWriter) flush() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return w.fail("flush", err)
	}
	return w.sync()
}

func (w *csvWriter) Close() error {
	if w.closed {
		return nil
	}
	if err := w.flush(); err != nil {
		w.close()
		return err
	}
	return w.close()
}
