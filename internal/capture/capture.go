// Package capture reads raw link-layer frames from a live interface or a capture file.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
	"github.com/rs/zerolog"

	"netsniff/internal/models"
)

var (
	// ErrUnavailable means the source could not be opened: missing interface,
	// insufficient privilege, absent driver or unreadable file. It is never retried.
	ErrUnavailable = errors.New("capture source unavailable")
	// ErrTransient marks a single failed read that the Reader will retry.
	ErrTransient = errors.New("transient capture error")
	// ErrTooManyErrors is returned once consecutive transient errors exceed the retry bound.
	ErrTooManyErrors = errors.New("too many consecutive capture errors")
)

// Options configures a Reader.
type Options struct {
	SnapLen     int
	Promiscuous bool
	// Timeout bounds a single blocking read on a live handle so cancellation is noticed.
	Timeout time.Duration
	// BPF is an optional kernel filter expression for live capture.
	BPF string
	// MaxRetries is how many consecutive transient errors are tolerated.
	MaxRetries int
	Logger     zerolog.Logger
	// Clock stamps RawFrame.Received. Defaults to time.Now.
	Clock func() time.Time
}

// DefaultOptions returns the options used when a field is left zero.
func DefaultOptions() Options {
	return Options{
		SnapLen:     65535,
		Promiscuous: true,
		Timeout:     250 * time.Millisecond,
		MaxRetries:  5,
		Logger:      zerolog.Nop(),
		Clock:       time.Now,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.SnapLen <= 0 {
		o.SnapLen = def.SnapLen
	}
	if o.Timeout <= 0 {
		o.Timeout = def.Timeout
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.Clock == nil {
		o.Clock = def.Clock
	}
	return o
}

// Reader delivers frames from a gopacket.PacketDataSource in capture order.
type Reader struct {
	src    gopacket.PacketDataSource
	name   string
	closer func()
	opts   Options

	failures int
}

// NewReader wraps src. name identifies the interface or file in delivered frames.
// closer, if non-nil, is called by Close.
func NewReader(src gopacket.PacketDataSource, name string, closer func(), opts Options) *Reader {
	return &Reader{
		src:    src,
		name:   name,
		closer: closer,
		opts:   opts.withDefaults(),
	}
}

// Name returns the interface or file the reader was opened on.
func (r *Reader) Name() string {
	return r.name
}

// Next blocks until the next frame is available.
//
// It returns io.EOF when the source is exhausted, ctx.Err() once ctx is done and
// an error wrapping ErrTooManyErrors when transient failures exceed the retry bound.
// The returned frame's Data is owned by the caller.
func (r *Reader) Next(ctx context.Context) (models.RawFrame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return models.RawFrame{}, err
		}

		data, ci, err := r.src.ReadPacketData()
		switch {
		case err == nil:
			r.failures = 0
			length := ci.Length
			if length < len(data) {
				length = len(data)
			}
			return models.RawFrame{
				Data:      data,
				Timestamp: ci.Timestamp,
				Received:  r.opts.Clock(),
				Length:    length,
				Interface: r.name,
			}, nil
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return models.RawFrame{}, io.EOF
		case errors.Is(err, pcap.NextErrorTimeoutExpired):
			continue
		}

		r.failures++
		if r.failures > r.opts.MaxRetries {
			return models.RawFrame{}, fmt.Errorf("%w: %d in a row on %s: %w", ErrTooManyErrors, r.failures, r.name, err)
		}
		r.opts.Logger.Warn().
			Err(fmt.Errorf("%w: %w", ErrTransient, err)).
			Int("attempt", r.failures).
			Msg("capture read failed, retrying")
	}
}

// Close releases the underlying handle.
func (r *Reader) Close() {
	if r.closer != nil {
		r.closer()
		r.closer = nil
	}
}
