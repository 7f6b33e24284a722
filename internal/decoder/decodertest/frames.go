// Package decodertest builds well-formed Ethernet frames for tests.
package decodertest

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/miekg/dns"
)

var (
	SrcMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	DstMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

// Serialize joins ls into a frame, fixing lengths and checksums.
func Serialize(ls ...gopacket.SerializableLayer) []byte {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func ethernet(t layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{SrcMAC: SrcMAC, DstMAC: DstMAC, EthernetType: t}
}

func ipv4(src, dst string, proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: proto,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    net.ParseIP(dst).To4(),
	}
}

// TCP builds an IPv4 TCP frame with SYN and ACK set.
func TCP(src, dst string, sport, dport uint16, payload []byte) []byte {
	ip := ipv4(src, dst, layers.IPProtocolTCP)
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(sport),
		DstPort: layers.TCPPort(dport),
		Seq:     1000,
		SYN:     true,
		ACK:     true,
		Window:  1024,
	}
	_ = tcp.SetNetworkLayerForChecksum(ip)
	return Serialize(ethernet(layers.EthernetTypeIPv4), ip, tcp, gopacket.Payload(payload))
}

// UDP builds an IPv4 UDP frame.
func UDP(src, dst string, sport, dport uint16, payload []byte) []byte {
	ip := ipv4(src, dst, layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: layers.UDPPort(sport), DstPort: layers.UDPPort(dport)}
	_ = udp.SetNetworkLayerForChecksum(ip)
	return Serialize(ethernet(layers.EthernetTypeIPv4), ip, udp, gopacket.Payload(payload))
}

// TCP6 builds an IPv6 TCP frame with SYN set.
func TCP6(src, dst string, sport, dport uint16) []byte {
	ip := &layers.IPv6{
		Version:    6,
		HopLimit:   64,
		NextHeader: layers.IPProtocolTCP,
		SrcIP:      net.ParseIP(src),
		DstIP:      net.ParseIP(dst),
	}
	tcp := &layers.TCP{SrcPort: layers.TCPPort(sport), DstPort: layers.TCPPort(dport), SYN: true, Window: 1024}
	_ = tcp.SetNetworkLayerForChecksum(ip)
	return Serialize(ethernet(layers.EthernetTypeIPv6), ip, tcp)
}

// ICMPEcho builds an IPv4 ICMP echo request frame.
func ICMPEcho(src, dst string) []byte {
	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
		Id:       1,
		Seq:      1,
	}
	return Serialize(ethernet(layers.EthernetTypeIPv4), ipv4(src, dst, layers.IPProtocolICMPv4), icmp, gopacket.Payload("ping"))
}

// IPv4Raw builds an IPv4 frame carrying payload under an arbitrary protocol number.
func IPv4Raw(src, dst string, proto layers.IPProtocol, payload []byte) []byte {
	return Serialize(ethernet(layers.EthernetTypeIPv4), ipv4(src, dst, proto), gopacket.Payload(payload))
}

// ARP builds a broadcast ARP request frame.
func ARP(src, dst string) []byte {
	eth := &layers.Ethernet{
		SrcMAC:       SrcMAC,
		DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte(SrcMAC),
		SourceProtAddress: []byte(net.ParseIP(src).To4()),
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte(net.ParseIP(dst).To4()),
	}
	return Serialize(eth, arp)
}

// DNSQuery packs a recursive A query for name.
func DNSQuery(name string) []byte {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeA)
	b, err := msg.Pack()
	if err != nil {
		panic(err)
	}
	return b
}
