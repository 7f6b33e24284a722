package decoder

import (
	"encoding/binary"
	"strings"

	"github.com/miekg/dns"
)

const dnsPort = 53

// dnsQuestion returns the first question name of a DNS message carried on port 53,
// or "" when the payload is not a parseable DNS message.
// DNS over TCP prefixes every message with a two-byte length.
func dnsQuestion(srcPort, dstPort uint16, payload []byte, stream bool) string {
	if srcPort != dnsPort && dstPort != dnsPort {
		return ""
	}
	if stream {
		if len(payload) < 2 {
			return ""
		}
		n := int(binary.BigEndian.Uint16(payload))
		payload = payload[2:]
		if n < len(payload) {
			payload = payload[:n]
		}
	}
	if len(payload) < 12 {
		return ""
	}

	var msg dns.Msg
	if err := msg.Unpack(payload); err != nil || len(msg.Question) == 0 {
		return ""
	}
	return strings.TrimSuffix(msg.Question[0].Name, ".")
}
