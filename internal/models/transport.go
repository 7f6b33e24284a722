package models

import (
	"fmt"
	"strings"
)

// Transport is the transport-layer variant of a packet: *TCP, *UDP, *ICMP or *OtherTransport.
type Transport interface {
	Name() string
	isTransport()
}

// TCPFlags is the TCP control-bit mask as it appears on the wire.
type TCPFlags uint8

const (
	FlagFIN TCPFlags = 1 << iota
	FlagSYN
	FlagRST
	FlagPSH
	FlagACK
	FlagURG
)

var flagNames = []struct {
	flag TCPFlags
	name string
}{
	{FlagFIN, "FIN"},
	{FlagSYN, "SYN"},
	{FlagRST, "RST"},
	{FlagPSH, "PSH"},
	{FlagACK, "ACK"},
	{FlagURG, "URG"},
}

// Has reports whether every bit in f2 is set.
func (f TCPFlags) Has(f2 TCPFlags) bool {
	return f&f2 == f2
}

// Names returns the set flags in wire order.
func (f TCPFlags) Names() []string {
	var names []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			names = append(names, fn.name)
		}
	}
	return names
}

func (f TCPFlags) String() string {
	return strings.Join(f.Names(), " ")
}

type TCP struct {
	SrcPort    uint16
	DstPort    uint16
	Flags      TCPFlags
	Seq        uint32
	PayloadLen int
}

type UDP struct {
	SrcPort uint16
	DstPort uint16
	// Length is the UDP length field as declared on the wire.
	Length     uint16
	PayloadLen int
}

type ICMP struct {
	Type uint8
	Code uint8
	V6   bool
}

// OtherTransport carries an IP payload we do not decode.
type OtherTransport struct {
	Protocol uint8
	Raw      []byte
}

func (*TCP) Name() string { return "TCP" }
func (*UDP) Name() string { return "UDP" }

func (t *ICMP) Name() string {
	if t.V6 {
		return "ICMPv6"
	}
	return "ICMP"
}

func (t *OtherTransport) Name() string {
	return ProtocolName(t.Protocol)
}

func (*TCP) isTransport()            {}
func (*UDP) isTransport()            {}
func (*ICMP) isTransport()           {}
func (*OtherTransport) isTransport() {}

// Ports returns the source and destination ports of TCP and UDP transports.
func Ports(t Transport) (src, dst uint16, ok bool) {
	switch v := t.(type) {
	case *TCP:
		return v.SrcPort, v.DstPort, true
	case *UDP:
		return v.SrcPort, v.DstPort, true
	case *ICMP, *OtherTransport, nil:
		return 0, 0, false
	default:
		panic(fmt.Sprintf("models: unexpected transport %T", t))
	}
}

var protocolNames = map[uint8]string{
	1:   "ICMP",
	2:   "IGMP",
	6:   "TCP",
	17:  "UDP",
	41:  "IPv6",
	47:  "GRE",
	50:  "ESP",
	51:  "AH",
	58:  "ICMPv6",
	89:  "OSPF",
	132: "SCTP",
}

// ProtocolName maps an IP protocol number to its usual name.
func ProtocolName(proto uint8) string {
	if name, ok := protocolNames[proto]; ok {
		return name
	}
	return fmt.Sprintf("IP-%d", proto)
}

var etherTypeNames = map[uint16]string{
	0x0800: "IPv4",
	0x0806: "ARP",
	0x86DD: "IPv6",
	0x8100: "VLAN",
	0x88CC: "LLDP",
}

// EtherTypeName maps an EtherType to its usual name.
func EtherTypeName(t uint16) string {
	if name, ok := etherTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("0x%04x", t)
}
