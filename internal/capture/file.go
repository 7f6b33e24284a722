package capture

import (
	"bufio"
	"bytes"
	"fmt"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// pcapng files start with a Section Header Block.
var ngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

// OpenFile replays a pcap or pcapng file. Reaching the end of the file ends the capture normally.
func OpenFile(path string, opts Options) (*Reader, error) {
	opts = opts.withDefaults()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	br := bufio.NewReader(f)
	magic, err := br.Peek(len(ngMagic))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: read header: %w", ErrUnavailable, path, err)
	}

	var (
		src      gopacket.PacketDataSource
		linkType layers.LinkType
	)
	if bytes.Equal(magic, ngMagic) {
		r, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, path, err)
		}
		src, linkType = r, r.LinkType()
	} else {
		r, err := pcapgo.NewReader(br)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, path, err)
		}
		src, linkType = r, r.LinkType()
	}

	if linkType != layers.LinkTypeEthernet {
		opts.Logger.Warn().Str("file", path).Str("link_type", linkType.String()).
			Msg("capture file is not Ethernet; frames will decode as too short or incomplete")
	}
	opts.Logger.Info().Str("file", path).Msg("replaying capture file")

	return NewReader(src, path, func() { f.Close() }, opts), nil
}
