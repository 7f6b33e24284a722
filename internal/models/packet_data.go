package models

import (
	"net"
	"net/netip"
	"time"
)

// RawFrame is one link-layer frame as delivered by a capture source.
// The capture source gives up the Data slice on delivery.
type RawFrame struct {
	Data []byte
	// Timestamp is the wall-clock capture time reported by the driver.
	Timestamp time.Time
	// Received is taken from time.Now when the frame was read and carries a monotonic reading.
	Received time.Time
	// Length is the original on-wire length, which may exceed len(Data) when the snaplen cut the frame.
	Length    int
	Interface string
}

// ParseStatus marks how far decoding got.
type ParseStatus uint8

const (
	ParseComplete ParseStatus = iota
	// ParseTooShort means the frame could not hold a link-layer header.
	ParseTooShort
	// ParseIncomplete means a layer above the link layer was cut short or malformed.
	// Every layer decoded before the failure is still present.
	ParseIncomplete
)

func (s ParseStatus) String() string {
	switch s {
	case ParseComplete:
		return "complete"
	case ParseTooShort:
		return "too short"
	case ParseIncomplete:
		return "incomplete"
	}
	return "unknown"
}

// LinkLayer holds the Ethernet addressing of a frame.
type LinkLayer struct {
	SrcMAC    net.HardwareAddr
	DstMAC    net.HardwareAddr
	EtherType uint16
	VLAN      uint16
}

// NetworkLayer holds the IPv4 or IPv6 header fields we care about.
type NetworkLayer struct {
	Version     uint8
	SrcIP       netip.Addr
	DstIP       netip.Addr
	Protocol    uint8
	TotalLength int
	TTL         uint8
}

// DecodedPacket is the structured form of a RawFrame.
// A non-nil layer implies every layer below it decoded successfully.
type DecodedPacket struct {
	Timestamp time.Time
	Interface string
	Length    int

	Link      *LinkLayer
	Network   *NetworkLayer
	Transport Transport

	// Hostname is the DNS question name when the payload carried one.
	Hostname string

	Status ParseStatus
	// Issue describes why decoding stopped early. Empty when Status is ParseComplete.
	Issue string
}

// Complete reports whether every present layer was fully decoded.
func (p *DecodedPacket) Complete() bool {
	return p.Status == ParseComplete
}

// TransportName returns the label used for the transport column in renderers and exports.
func (p *DecodedPacket) TransportName() string {
	if p.Transport != nil {
		return p.Transport.Name()
	}
	if p.Network != nil {
		return ProtocolName(p.Network.Protocol)
	}
	if p.Link != nil {
		return EtherTypeName(p.Link.EtherType)
	}
	return "Unknown"
}

// Endpoints returns printable source and destination addresses:
// ip:port when the transport has ports, the bare IP otherwise, then MAC, then N/A.
func (p *DecodedPacket) Endpoints() (src, dst string) {
	if n := p.Network; n != nil {
		if sp, dp, ok := Ports(p.Transport); ok {
			return netip.AddrPortFrom(n.SrcIP, sp).String(), netip.AddrPortFrom(n.DstIP, dp).String()
		}
		return n.SrcIP.String(), n.DstIP.String()
	}
	if l := p.Link; l != nil {
		return l.SrcMAC.String(), l.DstMAC.String()
	}
	return "N/A", "N/A"
}

// Record is a decoded packet plus its classification, as handed to every consumer.
// Records are shared between consumers and must be treated as read-only.
type Record struct {
	Seq    uint64
	Packet *DecodedPacket
	Class  Classification
}
