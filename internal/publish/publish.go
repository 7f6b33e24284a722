// Package publish streams classified records to a NATS subject.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"netsniff/internal/export"
	"netsniff/internal/models"
)

// Encoding selects the message body format.
type Encoding string

const (
	EncodingJSON Encoding = "json"
	// EncodingProto is a google.protobuf.Struct holding the same fields as the JSON body.
	EncodingProto Encoding = "protobuf"
)

// DefaultSubject is used when Options.Subject is empty.
const DefaultSubject = "netsniff.packets"

// Header keys set on every message.
const (
	HeaderContentType = "Content-Type"
	HeaderRunID       = "Netsniff-Run-Id"
	HeaderSeq         = "Netsniff-Seq"
)

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	PublishMsg(msg *nats.Msg) error
	FlushTimeout(timeout time.Duration) error
	Drain() error
}

// Options configures a Publisher.
type Options struct {
	Subject  string
	Encoding Encoding
	RunID    string
	Logger   zerolog.Logger
}

// Publisher sends one message per record.
type Publisher struct {
	conn Conn
	opts Options
	sent int
}

// Connect dials url and returns a Publisher on the new connection.
func Connect(url string, opts Options) (*Publisher, error) {
	nc, err := nats.Connect(url, nats.Name("netsniff"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	opts.Logger.Info().Str("url", url).Str("subject", opts.Subject).Msg("connected to nats")
	return New(nc, opts), nil
}

// New wraps an existing connection.
func New(conn Conn, opts Options) *Publisher {
	if opts.Subject == "" {
		opts.Subject = DefaultSubject
	}
	if opts.Encoding == "" {
		opts.Encoding = EncodingJSON
	}
	return &Publisher{conn: conn, opts: opts}
}

// Encode builds the message body for rec.
func Encode(enc Encoding, rec models.Record) ([]byte, error) {
	body, err := json.Marshal(export.NewRow(rec))
	if err != nil {
		return nil, err
	}
	switch enc {
	case EncodingJSON:
		return body, nil
	case EncodingProto:
		var fields map[string]any
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, err
		}
		st, err := structpb.NewStruct(fields)
		if err != nil {
			return nil, err
		}
		return proto.Marshal(st)
	}
	return nil, fmt.Errorf("unknown encoding %q", enc)
}

// Publish sends rec.
func (p *Publisher) Publish(rec models.Record) error {
	data, err := Encode(p.opts.Encoding, rec)
	if err != nil {
		return fmt.Errorf("encode record %d: %w", rec.Seq, err)
	}

	msg := nats.NewMsg(p.opts.Subject)
	msg.Data = data
	msg.Header.Set(HeaderContentType, contentType(p.opts.Encoding))
	msg.Header.Set(HeaderSeq, strconv.FormatUint(rec.Seq, 10))
	if p.opts.RunID != "" {
		msg.Header.Set(HeaderRunID, p.opts.RunID)
	}
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish to %s: %w", p.opts.Subject, err)
	}
	p.sent++
	return nil
}

// Sent is the number of records published so far.
func (p *Publisher) Sent() int { return p.sent }

// Run publishes every record from in, then flushes and drains the connection.
func (p *Publisher) Run(ctx context.Context, in <-chan models.Record) error {
	defer p.Close()
	for {
		select {
		case rec, ok := <-in:
			if !ok {
				return nil
			}
			if err := p.Publish(rec); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// Close flushes pending messages and drains the connection.
func (p *Publisher) Close() {
	if p.conn == nil {
		return
	}
	if err := p.conn.FlushTimeout(2 * time.Second); err != nil {
		p.opts.Logger.Warn().Err(err).Msg("nats flush failed")
	}
	if err := p.conn.Drain(); err != nil {
		p.opts.Logger.Warn().Err(err).Msg("nats drain failed")
	}
	p.opts.Logger.Info().Int("sent", p.sent).Msg("nats connection drained and closed")
	p.conn = nil
}

func contentType(enc Encoding) string {
	if enc == EncodingProto {
		return "application/protobuf"
	}
	return "application/json"
}
