package capture

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netsniff/internal/decoder/decodertest"
)

type step struct {
	data []byte
	err  error
}

type scriptedSource struct {
	steps []step
}

func (s *scriptedSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	if len(s.steps) == 0 {
		return nil, gopacket.CaptureInfo{}, io.EOF
	}
	st := s.steps[0]
	s.steps = s.steps[1:]
	if st.err != nil {
		return nil, gopacket.CaptureInfo{}, st.err
	}
	return st.data, gopacket.CaptureInfo{
		Timestamp:     time.Unix(1700000000, 0),
		CaptureLength: len(st.data),
		Length:        len(st.data),
	}, nil
}

var errRead = errors.New("read failed")

func TestReaderNext(t *testing.T) {
	frame := []byte{1, 2, 3}

	tcs := []struct {
		name       string
		steps      []step
		maxRetries int
		wantFrames int
		wantErr    error
	}{
		{
			name:       "frames then eof",
			steps:      []step{{data: frame}, {data: frame}},
			maxRetries: 3,
			wantFrames: 2,
			wantErr:    io.EOF,
		},
		{
			name:       "transient errors within bound are retried",
			steps:      []step{{err: errRead}, {err: errRead}, {data: frame}},
			maxRetries: 2,
			wantFrames: 1,
			wantErr:    io.EOF,
		},
		{
			name:       "timeouts are not failures",
			steps:      []step{{err: pcap.NextErrorTimeoutExpired}, {err: pcap.NextErrorTimeoutExpired}, {err: pcap.NextErrorTimeoutExpired}, {data: frame}},
			maxRetries: 0,
			wantFrames: 1,
			wantErr:    io.EOF,
		},
		{
			name:       "success resets the failure count",
			steps:      []step{{err: errRead}, {data: frame}, {err: errRead}, {data: frame}},
			maxRetries: 1,
			wantFrames: 2,
			wantErr:    io.EOF,
		},
		{
			name:       "escalates past the bound",
			steps:      []step{{data: frame}, {err: errRead}, {err: errRead}, {err: errRead}},
			maxRetries: 2,
			wantFrames: 1,
			wantErr:    ErrTooManyErrors,
		},
		{
			name:       "unexpected eof ends the capture",
			steps:      []step{{data: frame}, {err: io.ErrUnexpectedEOF}},
			maxRetries: 2,
			wantFrames: 1,
			wantErr:    io.EOF,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			r := NewReader(&scriptedSource{steps: tc.steps}, "test0", nil, Options{MaxRetries: tc.maxRetries})

			var got int
			var err error
			for {
				frame, nerr := r.Next(context.Background())
				if nerr != nil {
					err = nerr
					break
				}
				assert.Equal(t, "test0", frame.Interface)
				assert.Equal(t, 3, frame.Length)
				got++
			}
			assert.Equal(t, tc.wantFrames, got)
			assert.ErrorIs(t, err, tc.wantErr)
			if errors.Is(tc.wantErr, ErrTooManyErrors) {
				assert.ErrorIs(t, err, errRead)
			}
		})
	}
}

func TestReaderNextCancelled(t *testing.T) {
	r := NewReader(&scriptedSource{steps: []step{{data: []byte{1}}}}, "test0", nil, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReaderClose(t *testing.T) {
	closed := 0
	r := NewReader(&scriptedSource{}, "test0", func() { closed++ }, Options{})
	r.Close()
	r.Close()
	assert.Equal(t, 1, closed)
}

func writeCapture(t *testing.T, ng bool, frames [][]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	ts := time.Unix(1700000000, 0)
	if ng {
		w, err := pcapgo.NewNgWriter(f, layers.LinkTypeEthernet)
		require.NoError(t, err)
		for i, frame := range frames {
			ci := gopacket.CaptureInfo{Timestamp: ts.Add(time.Duration(i) * time.Millisecond), CaptureLength: len(frame), Length: len(frame)}
			require.NoError(t, w.WritePacket(ci, frame))
		}
		require.NoError(t, w.Flush())
		return path
	}

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65535, layers.LinkTypeEthernet))
	for i, frame := range frames {
		ci := gopacket.CaptureInfo{Timestamp: ts.Add(time.Duration(i) * time.Millisecond), CaptureLength: len(frame), Length: len(frame)}
		require.NoError(t, w.WritePacket(ci, frame))
	}
	return path
}

func TestOpenFile(t *testing.T) {
	frames := [][]byte{
		decodertest.TCP("10.0.0.1", "10.0.0.2", 40000, 80, []byte("GET / HTTP/1.1\r\n\r\n")),
		decodertest.UDP("10.0.0.1", "8.8.8.8", 40001, 53, decodertest.DNSQuery("example.com")),
		decodertest.ARP("10.0.0.1", "10.0.0.254"),
	}

	for _, ng := range []bool{false, true} {
		name := "pcap"
		if ng {
			name = "pcapng"
		}
		t.Run(name, func(t *testing.T) {
			path := writeCapture(t, ng, frames)
			r, err := OpenFile(path, Options{})
			require.NoError(t, err)
			defer r.Close()

			for i, want := range frames {
				got, err := r.Next(context.Background())
				require.NoError(t, err)
				assert.Equal(t, want, got.Data, "frame %d", i)
				assert.Equal(t, path, got.Interface)
				assert.Equal(t, time.Unix(1700000000, 0).Add(time.Duration(i)*time.Millisecond).UTC(), got.Timestamp.UTC())
			}
			_, err = r.Next(context.Background())
			assert.ErrorIs(t, err, io.EOF)
		})
	}
}

func TestOpenFileUnavailable(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.pcap")
	require.NoError(t, os.WriteFile(garbage, []byte("definitely not a capture file"), 0o644))
	empty := filepath.Join(dir, "empty.pcap")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))

	tcs := []struct {
		name string
		path string
	}{
		{name: "missing", path: filepath.Join(dir, "missing.pcap")},
		{name: "not a capture", path: garbage},
		{name: "empty", path: empty},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			_, err := OpenFile(tc.path, Options{})
			assert.ErrorIs(t, err, ErrUnavailable)
		})
	}
}

func TestOpenLiveUnavailable(t *testing.T) {
	_, err := OpenLive("netsniff-no-such-iface0", Options{})
	assert.ErrorIs(t, err, ErrUnavailable)
}
