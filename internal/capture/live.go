package capture

import (
	"fmt"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// OpenLive opens iface for live capture.
func OpenLive(iface string, opts Options) (*Reader, error) {
	opts = opts.withDefaults()

	inactive, err := pcap.NewInactiveHandle(iface)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, iface, err)
	}
	defer inactive.CleanUp()

	if err := inactive.SetSnapLen(opts.SnapLen); err != nil {
		return nil, fmt.Errorf("%w: %s: snaplen: %w", ErrUnavailable, iface, err)
	}
	if err := inactive.SetPromisc(opts.Promiscuous); err != nil {
		return nil, fmt.Errorf("%w: %s: promiscuous mode: %w", ErrUnavailable, iface, err)
	}
	// Immediate mode delivers each frame as it arrives; the timeout still wakes
	// idle reads so the capture task can observe cancellation.
	if err := inactive.SetImmediateMode(true); err != nil {
		return nil, fmt.Errorf("%w: %s: immediate mode: %w", ErrUnavailable, iface, err)
	}
	if err := inactive.SetTimeout(opts.Timeout); err != nil {
		return nil, fmt.Errorf("%w: %s: timeout: %w", ErrUnavailable, iface, err)
	}

	handle, err := inactive.Activate()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, iface, err)
	}

	if opts.BPF != "" {
		if err := handle.SetBPFFilter(opts.BPF); err != nil {
			handle.Close()
			return nil, fmt.Errorf("%w: %s: bpf %q: %w", ErrUnavailable, iface, opts.BPF, err)
		}
	}

	if lt := handle.LinkType(); lt != layers.LinkTypeEthernet {
		opts.Logger.Warn().Str("iface", iface).Str("link_type", lt.String()).
			Msg("interface is not Ethernet; frames will decode as too short or incomplete")
	}
	opts.Logger.Info().Str("iface", iface).Int("snaplen", opts.SnapLen).Str("bpf", opts.BPF).Msg("live capture started")

	return NewReader(handle, iface, handle.Close, opts), nil
}
