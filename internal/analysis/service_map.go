package analysis

import (
	"strconv"

	"netsniff/internal/models"
)

var commonPorts = map[uint16]string{
	20:   "FTP-DATA",
	21:   "FTP",
	22:   "SSH",
	23:   "Telnet",
	25:   "SMTP",
	53:   "DNS",
	80:   "HTTP",
	110:  "POP3",
	143:  "IMAP",
	443:  "HTTPS",
	993:  "IMAPS",
	995:  "POP3S",
	3306: "MySQL",
	5432: "PostgreSQL",
	6379: "Redis",
	8080: "HTTP-Alt",
}

// GetServiceName returns the common name for a port, or the port number as a string.
func GetServiceName(port uint16) string {
	if name, ok := commonPorts[port]; ok {
		return name
	}
	return strconv.Itoa(int(port))
}

// servicePort picks the port that names the service of a packet: a port with a
// common name, otherwise the lower of the two.
func servicePort(src, dst uint16) uint16 {
	_, srcKnown := commonPorts[src]
	_, dstKnown := commonPorts[dst]
	switch {
	case dstKnown && !srcKnown:
		return dst
	case srcKnown && !dstKnown:
		return src
	case src < dst:
		return src
	}
	return dst
}

// wellKnownApps maps the ports the classifier trusts to their application label.
var wellKnownApps = map[uint16]models.App{
	80:  models.AppHTTP,
	443: models.AppHTTPS,
	53:  models.AppDNS,
	22:  models.AppSSH,
	21:  models.AppFTP,
	25:  models.AppSMTP,
}

var appDescriptions = map[models.App]string{
	models.AppHTTP:  "Web browsing (HTTP request/response)",
	models.AppHTTPS: "Secure web browsing (encrypted)",
	models.AppDNS:   "Domain name lookup",
	models.AppSSH:   "Secure shell connection",
	models.AppFTP:   "File transfer",
	models.AppSMTP:  "Email sending",
}
