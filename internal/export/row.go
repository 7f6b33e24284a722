// Package export writes classified records to JSON or CSV files.
package export

import (
	"strconv"
	"time"

	"netsniff/internal/models"
)

// Row is the exported form of one record. Fields that do not apply to the
// packet's decoded depth are omitted.
type Row struct {
	Timestamp         time.Time `json:"timestamp"`
	SrcMAC            string    `json:"src_mac,omitempty"`
	DstMAC            string    `json:"dst_mac,omitempty"`
	SrcIP             string    `json:"src_ip,omitempty"`
	DstIP             string    `json:"dst_ip,omitempty"`
	TransportProtocol string    `json:"transport_protocol"`
	SrcPort           *uint16   `json:"src_port,omitempty"`
	DstPort           *uint16   `json:"dst_port,omitempty"`
	Flags             string    `json:"flags,omitempty"`
	Classification    string    `json:"classification"`
	Description       string    `json:"description"`
	Length            int       `json:"length"`
}

// Columns is the CSV header, in the same order as the JSON fields.
var Columns = []string{
	"timestamp", "src_mac", "dst_mac", "src_ip", "dst_ip", "transport_protocol",
	"src_port", "dst_port", "flags", "classification", "description", "length",
}

// NewRow converts rec.
func NewRow(rec models.Record) Row {
	pkt := rec.Packet
	row := Row{
		Timestamp:         pkt.Timestamp,
		TransportProtocol: pkt.TransportName(),
		Classification:    rec.Class.App.String(),
		Description:       rec.Class.Description,
		Length:            pkt.Length,
	}
	if l := pkt.Link; l != nil {
		row.SrcMAC = l.SrcMAC.String()
		row.DstMAC = l.DstMAC.String()
	}
	if n := pkt.Network; n != nil {
		row.SrcIP = n.SrcIP.String()
		row.DstIP = n.DstIP.String()
	}
	if sp, dp, ok := models.Ports(pkt.Transport); ok {
		row.SrcPort, row.DstPort = &sp, &dp
	}
	if tcp, ok := pkt.Transport.(*models.TCP); ok {
		row.Flags = tcp.Flags.String()
	}
	return row
}

// Record returns the row as CSV fields in Columns order.
func (r Row) Record() []string {
	return []string{
		r.Timestamp.Format(time.RFC3339Nano),
		r.SrcMAC,
		r.DstMAC,
		r.SrcIP,
		r.DstIP,
		r.TransportProtocol,
		portField(r.SrcPort),
		portField(r.DstPort),
		r.Flags,
		r.Classification,
		r.Description,
		strconv.Itoa(r.Length),
	}
}

func portField(p *uint16) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(int(*p))
}
