package decoder

import (
	"fmt"
	"net"
	"net/netip"

	"netsniff/internal/models"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ethernetHeaderLen is the size of an untagged Ethernet II header.
const ethernetHeaderLen = 14

// Decoder turns raw frames into DecodedPackets.
// It reuses its layer structs between calls, so a Decoder must not be shared between goroutines.
type Decoder struct {
	eth   layers.Ethernet
	dot1q layers.Dot1Q
	ip4   layers.IPv4
	ip6   layers.IPv6
	tcp   layers.TCP
	udp   layers.UDP
	icmp4 layers.ICMPv4
	icmp6 layers.ICMPv6

	parser  *gopacket.DecodingLayerParser
	decoded []gopacket.LayerType
	walk    func(data []byte, decoded *[]gopacket.LayerType) error
}

// New creates a Decoder for Ethernet frames.
func New() *Decoder {
	d := &Decoder{decoded: make([]gopacket.LayerType, 0, 8)}
	d.parser = gopacket.NewDecodingLayerParser(
		layers.LayerTypeEthernet,
		&d.eth, &d.dot1q, &d.ip4, &d.ip6, &d.tcp, &d.udp, &d.icmp4, &d.icmp6,
	)
	// Layers we have no decoder for end the walk without an error.
	d.parser.IgnoreUnsupported = true
	d.walk = d.parser.DecodeLayers
	return d
}

// Decode decodes a single frame with a throwaway Decoder.
func Decode(raw models.RawFrame) *models.DecodedPacket {
	return New().Decode(raw)
}

// Decode parses raw down to the deepest layer it can. It never fails:
// problems are reported through the packet's Status and Issue fields.
func (d *Decoder) Decode(raw models.RawFrame) (pkt *models.DecodedPacket) {
	pkt = &models.DecodedPacket{
		Timestamp: raw.Timestamp,
		Interface: raw.Interface,
		Length:    raw.Length,
	}
	if pkt.Length < len(raw.Data) {
		pkt.Length = len(raw.Data)
	}
	if pkt.Timestamp.IsZero() {
		pkt.Timestamp = raw.Received
	}

	if len(raw.Data) < ethernetHeaderLen {
		pkt.Status = models.ParseTooShort
		pkt.Issue = fmt.Sprintf("frame is %d bytes, need at least %d", len(raw.Data), ethernetHeaderLen)
		return pkt
	}

	err := d.decodeLayers(raw.Data)
	switch {
	case err != nil:
		pkt.Status = models.ParseIncomplete
		pkt.Issue = err.Error()
	case d.parser.Truncated:
		pkt.Status = models.ParseIncomplete
		pkt.Issue = "declared length exceeds captured bytes"
	}
	d.fill(pkt, err == nil)
	return pkt
}

// decodeLayers runs the layer walk and turns a panic in a layer decoder into an
// error. d.decoded keeps the layers decoded before the panic.
func (d *Decoder) decodeLayers(data []byte) (err error) {
	d.decoded = d.decoded[:0]
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decoder panic: %v", r)
		}
	}()
	return d.walk(data, &d.decoded)
}

// fill copies the fields of every decoded layer into pkt, lowest layer first.
func (d *Decoder) fill(pkt *models.DecodedPacket, walked bool) {
	var payload []byte
	for _, typ := range d.decoded {
		switch typ {
		case layers.LayerTypeEthernet:
			pkt.Link = &models.LinkLayer{
				SrcMAC:    cloneMAC(d.eth.SrcMAC),
				DstMAC:    cloneMAC(d.eth.DstMAC),
				EtherType: uint16(d.eth.EthernetType),
			}
		case layers.LayerTypeDot1Q:
			if pkt.Link != nil {
				pkt.Link.VLAN = d.dot1q.VLANIdentifier
				pkt.Link.EtherType = uint16(d.dot1q.Type)
			}
		case layers.LayerTypeIPv4:
			if d.ip4.Version != 4 {
				pkt.Status = models.ParseIncomplete
				pkt.Issue = fmt.Sprintf("ipv4: bad version %d", d.ip4.Version)
				return
			}
			pkt.Network = &models.NetworkLayer{
				Version:     4,
				SrcIP:       addr(d.ip4.SrcIP),
				DstIP:       addr(d.ip4.DstIP),
				Protocol:    uint8(d.ip4.Protocol),
				TotalLength: int(d.ip4.Length),
				TTL:         d.ip4.TTL,
			}
			payload = d.ip4.Payload
		case layers.LayerTypeIPv6:
			if d.ip6.Version != 6 {
				pkt.Status = models.ParseIncomplete
				pkt.Issue = fmt.Sprintf("ipv6: bad version %d", d.ip6.Version)
				return
			}
			pkt.Network = &models.NetworkLayer{
				Version:     6,
				SrcIP:       addr(d.ip6.SrcIP),
				DstIP:       addr(d.ip6.DstIP),
				Protocol:    uint8(d.ip6.NextHeader),
				TotalLength: int(d.ip6.Length) + 40,
				TTL:         d.ip6.HopLimit,
			}
			payload = d.ip6.Payload
		case layers.LayerTypeTCP:
			pkt.Transport = &models.TCP{
				SrcPort:    uint16(d.tcp.SrcPort),
				DstPort:    uint16(d.tcp.DstPort),
				Flags:      tcpFlags(&d.tcp),
				Seq:        d.tcp.Seq,
				PayloadLen: len(d.tcp.Payload),
			}
			pkt.Hostname = dnsQuestion(uint16(d.tcp.SrcPort), uint16(d.tcp.DstPort), d.tcp.Payload, true)
		case layers.LayerTypeUDP:
			pkt.Transport = &models.UDP{
				SrcPort:    uint16(d.udp.SrcPort),
				DstPort:    uint16(d.udp.DstPort),
				Length:     d.udp.Length,
				PayloadLen: len(d.udp.Payload),
			}
			pkt.Hostname = dnsQuestion(uint16(d.udp.SrcPort), uint16(d.udp.DstPort), d.udp.Payload, false)
		case layers.LayerTypeICMPv4:
			pkt.Transport = &models.ICMP{
				Type: d.icmp4.TypeCode.Type(),
				Code: d.icmp4.TypeCode.Code(),
			}
		case layers.LayerTypeICMPv6:
			pkt.Transport = &models.ICMP{
				Type: d.icmp6.TypeCode.Type(),
				Code: d.icmp6.TypeCode.Code(),
				V6:   true,
			}
		}
	}

	// An IP payload nobody decoded is kept raw, unless it is a transport we
	// know about and failed to parse.
	if pkt.Network != nil && pkt.Transport == nil && walked {
		switch layers.IPProtocol(pkt.Network.Protocol) {
		case layers.IPProtocolTCP, layers.IPProtocolUDP, layers.IPProtocolICMPv4, layers.IPProtocolICMPv6:
			if isFragment(d.decoded, &d.ip4) {
				pkt.Transport = &models.OtherTransport{Protocol: pkt.Network.Protocol, Raw: clone(payload)}
			}
		default:
			pkt.Transport = &models.OtherTransport{Protocol: pkt.Network.Protocol, Raw: clone(payload)}
		}
	}
}

// isFragment reports whether the IPv4 header decoded last describes a non-first fragment.
func isFragment(decoded []gopacket.LayerType, ip4 *layers.IPv4) bool {
	return decoded[len(decoded)-1] == layers.LayerTypeIPv4 && ip4.FragOffset > 0
}

func tcpFlags(t *layers.TCP) models.TCPFlags {
	var f models.TCPFlags
	set := func(on bool, flag models.TCPFlags) {
		if on {
			f |= flag
		}
	}
	set(t.FIN, models.FlagFIN)
	set(t.SYN, models.FlagSYN)
	set(t.RST, models.FlagRST)
	set(t.PSH, models.FlagPSH)
	set(t.ACK, models.FlagACK)
	set(t.URG, models.FlagURG)
	return f
}

func addr(ip net.IP) netip.Addr {
	a, _ := netip.AddrFromSlice(ip)
	return a
}

func cloneMAC(mac net.HardwareAddr) net.HardwareAddr {
	return net.HardwareAddr(clone(mac))
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
