// Package pipeline runs the capture task and fans classified records out to independent consumers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"netsniff/internal/analysis"
	"netsniff/internal/decoder"
	"netsniff/internal/logging"
	"netsniff/internal/models"
)

// Source is a capture source. *capture.Reader implements it.
type Source interface {
	Next(ctx context.Context) (models.RawFrame, error)
	Close()
}

// Consumer is one independent reader of the record stream.
type Consumer struct {
	Name string
	// Capacity of the consumer's queue. Defaults to Options.QueueSize.
	Capacity int
	// Accept is an optional per-consumer filter applied after the global one.
	Accept func(models.Record) bool
	// Run must return once in is closed or ctx is done. An error stops this consumer only.
	Run func(ctx context.Context, in <-chan models.Record) error
}

// StopReason says why the capture task ended.
type StopReason string

const (
	StopLimit       StopReason = "packet limit reached"
	StopEndOfInput  StopReason = "end of capture input"
	StopInterrupted StopReason = "interrupted"
	StopCaptureFail StopReason = "capture failed"
)

// Options configures Run.
type Options struct {
	Filter Filter
	// Limit stops the capture after this many matching packets. Zero means unlimited.
	Limit     uint64
	QueueSize int
	Logger    zerolog.Logger
}

// Report summarises a finished run.
type Report struct {
	Frames     uint64
	Matched    uint64
	Incomplete uint64
	Reason     StopReason
	// Drops maps consumer name to records discarded because it fell behind.
	Drops map[string]uint64
	// ConsumerErrors maps consumer name to the error that stopped it.
	ConsumerErrors map[string]error
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Run reads src until the limit is reached, src is exhausted, ctx is done or capture
// fails fatally, then waits for every consumer to drain. Only a capture failure is
// returned as an error; consumer failures are collected in the Report.
func Run(ctx context.Context, src Source, opts Options, consumers ...Consumer) (Report, error) {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	log := logging.WithScope(opts.Logger, "PIPELINE")

	fan := &Fanout{}
	subs := make([]*Subscription, len(consumers))
	for i, c := range consumers {
		capacity := c.Capacity
		if capacity <= 0 {
			capacity = opts.QueueSize
		}
		subs[i] = fan.Subscribe(c.Name, capacity, c.Accept)
	}

	report := Report{
		StartedAt:      time.Now(),
		Drops:          make(map[string]uint64, len(consumers)),
		ConsumerErrors: make(map[string]error),
	}
	errs := make([]error, len(consumers))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range consumers {
		sub := subs[i]
		g.Go(func() error {
			defer sub.Stop()
			if err := c.Run(gctx, sub.C()); err != nil && !errors.Is(err, context.Canceled) {
				errs[i] = err
				logging.ErrorUnwrapped(&log, fmt.Sprintf("%s stopped", c.Name), err)
			}
			return nil
		})
	}

	capt := &capturer{
		src:    src,
		dec:    decoder.New(),
		fan:    fan,
		filter: opts.Filter,
		limit:  opts.Limit,
		log:    logging.WithScope(opts.Logger, "CAPTURE"),
	}
	g.Go(func() error {
		defer fan.Close()
		return capt.run(gctx)
	})

	err := g.Wait()
	src.Close()

	report.FinishedAt = time.Now()
	report.Frames = capt.frames
	report.Matched = capt.matched
	report.Incomplete = capt.incomplete
	report.Reason = capt.reason
	for i, sub := range subs {
		report.Drops[sub.Name()] = sub.Dropped()
		if errs[i] != nil {
			report.ConsumerErrors[sub.Name()] = errs[i]
		}
	}

	log.Info().
		Uint64("frames", report.Frames).
		Uint64("matched", report.Matched).
		Uint64("incomplete", report.Incomplete).
		Str("reason", string(report.Reason)).
		Msg("pipeline finished")
	return report, err
}

type capturer struct {
	src    Source
	dec    *decoder.Decoder
	fan    *Fanout
	filter Filter
	limit  uint64
	log    zerolog.Logger

	frames     uint64
	matched    uint64
	incomplete uint64
	reason     StopReason
}

func (c *capturer) run(ctx context.Context) error {
	for {
		raw, err := c.src.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				c.reason = StopEndOfInput
				return nil
			case ctx.Err() != nil:
				c.reason = StopInterrupted
				return nil
			}
			c.reason = StopCaptureFail
			return fmt.Errorf("capture: %w", err)
		}
		c.frames++

		pkt := c.dec.Decode(raw)
		if !pkt.Complete() {
			c.incomplete++
			c.log.Debug().
				Uint64("frame", c.frames).
				Str("status", pkt.Status.String()).
				Str("issue", pkt.Issue).
				Msg("partial decode")
		}

		rec := models.Record{Seq: c.frames, Packet: pkt, Class: analysis.Classify(pkt)}
		if !c.filter.Match(rec) {
			continue
		}
		c.fan.Publish(rec)
		c.matched++

		if c.limit > 0 && c.matched >= c.limit {
			c.reason = StopLimit
			return nil
		}
	}
}
