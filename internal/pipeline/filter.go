package pipeline

import (
	"fmt"
	"strings"

	"netsniff/internal/models"
)

// FilterProtocols lists the accepted protocol filter values.
var FilterProtocols = []string{"tcp", "udp", "icmp", "http", "https", "dns", "ssh", "ftp", "smtp"}

// Filter selects which records reach the consumers.
// The zero value matches everything.
type Filter struct {
	// Protocol is a transport name (tcp, udp, icmp) or an application label.
	Protocol string
	// Port matches either the source or destination port. Zero disables the check.
	Port uint16
}

// ParseFilter validates the protocol and port filter values.
func ParseFilter(protocol string, port int) (Filter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	if protocol != "" && !validProtocol(protocol) {
		return Filter{}, fmt.Errorf("unknown protocol filter %q (want one of %s)", protocol, strings.Join(FilterProtocols, ", "))
	}
	if port < 0 || port > 65535 {
		return Filter{}, fmt.Errorf("port filter %d out of range 0-65535", port)
	}
	return Filter{Protocol: protocol, Port: uint16(port)}, nil
}

func validProtocol(p string) bool {
	for _, v := range FilterProtocols {
		if v == p {
			return true
		}
	}
	return false
}

// httpPorts are the TCP ports the http filter accepts. Classification still
// labels only port 80 as HTTP; 8080 shows up as HTTP-Alt in the port table.
var httpPorts = []uint16{80, 8080}

// Match reports whether rec passes the filter.
func (f Filter) Match(rec models.Record) bool {
	if f.Protocol != "" && !f.matchProtocol(rec) {
		return false
	}
	if f.Port != 0 {
		src, dst, ok := models.Ports(rec.Packet.Transport)
		if !ok || (src != f.Port && dst != f.Port) {
			return false
		}
	}
	return true
}

func (f Filter) matchProtocol(rec models.Record) bool {
	switch f.Protocol {
	case "tcp":
		_, ok := rec.Packet.Transport.(*models.TCP)
		return ok
	case "udp":
		_, ok := rec.Packet.Transport.(*models.UDP)
		return ok
	case "icmp":
		_, ok := rec.Packet.Transport.(*models.ICMP)
		return ok
	case "http":
		if tcp, ok := rec.Packet.Transport.(*models.TCP); ok {
			for _, p := range httpPorts {
				if tcp.SrcPort == p || tcp.DstPort == p {
					return true
				}
			}
		}
	}
	app, ok := models.ParseApp(f.Protocol)
	return ok && rec.Class.App == app
}

// BPF returns a kernel filter expression equivalent to the transport and port part of f.
// Application filters are left to Match since their ports are matched in either direction
// and DNS is UDP only.
func (f Filter) BPF() string {
	var parts []string
	switch f.Protocol {
	case "tcp", "udp":
		parts = append(parts, f.Protocol)
	case "icmp":
		parts = append(parts, "(icmp or icmp6)")
	}
	if f.Port != 0 {
		parts = append(parts, fmt.Sprintf("port %d", f.Port))
	}
	return strings.Join(parts, " and ")
}

func (f Filter) String() string {
	var parts []string
	if f.Protocol != "" {
		parts = append(parts, "protocol="+f.Protocol)
	}
	if f.Port != 0 {
		parts = append(parts, fmt.Sprintf("port=%d", f.Port))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, " ")
}
