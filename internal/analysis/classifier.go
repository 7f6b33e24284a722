package analysis

import (
	"fmt"

	"netsniff/internal/models"
)

// Classify labels a decoded packet from its ports alone; payload bytes are never inspected.
//
// The destination port is checked before the source port, so when both sides sit on
// different well-known ports the destination wins. This is a best-effort heuristic:
// services on non-standard ports come out as Unknown or as the wrong label.
func Classify(pkt *models.DecodedPacket) models.Classification {
	switch t := pkt.Transport.(type) {
	case *models.TCP:
		if app, ok := matchPorts(t.SrcPort, t.DstPort, false); ok {
			return describe(app, pkt)
		}
		return unknown(fmt.Sprintf("TCP connection from port %d to port %d", t.SrcPort, t.DstPort))
	case *models.UDP:
		if app, ok := matchPorts(t.SrcPort, t.DstPort, true); ok {
			return describe(app, pkt)
		}
		return unknown(fmt.Sprintf("UDP communication from port %d to port %d", t.SrcPort, t.DstPort))
	case *models.ICMP:
		return unknown("Network diagnostic (ping/traceroute)")
	case *models.OtherTransport:
		return unknown(t.Name() + " network traffic")
	case nil:
		if pkt.Network != nil || pkt.Link != nil {
			return unknown(pkt.TransportName() + " network traffic")
		}
		return unknown("Unknown packet")
	default:
		panic(fmt.Sprintf("analysis: unexpected transport %T", t))
	}
}

// matchPorts returns the well-known application for dst, falling back to src.
// DNS is only recognised over UDP.
func matchPorts(src, dst uint16, udp bool) (models.App, bool) {
	for _, port := range []uint16{dst, src} {
		app, ok := wellKnownApps[port]
		if !ok || (app == models.AppDNS && !udp) {
			continue
		}
		return app, true
	}
	return models.AppUnknown, false
}

func describe(app models.App, pkt *models.DecodedPacket) models.Classification {
	desc := appDescriptions[app]
	if app == models.AppDNS && pkt.Hostname != "" {
		desc = fmt.Sprintf("%s (%s)", desc, pkt.Hostname)
	}
	return models.Classification{App: app, Description: desc}
}

func unknown(desc string) models.Classification {
	return models.Classification{App: models.AppUnknown, Description: desc}
}
