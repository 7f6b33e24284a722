package analysis

import (
	"bytes"
	"fmt"
	"net"
	"net/netip"
	"time"

	"netsniff/internal/models"
)

// AnomalyType represents the type of anomaly detected.
type AnomalyType string

const (
	AnomalyBroadcastStorm AnomalyType = "BROADCAST_STORM"
	AnomalyUnsecure       AnomalyType = "UNSECURE_PROTOCOL"
	AnomalyDoS            AnomalyType = "POSSIBLE_DOS"
)

// Config holds configuration for the anomaly detector.
type Config struct {
	BroadcastThreshold int           // Broadcasts per second
	DoSThreshold       int           // Packets per second per source
	UnsecureCooldown   time.Duration // Minimum gap between plaintext alerts for one source/port
	CleanupInterval    time.Duration
	DataRetention      time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		BroadcastThreshold: 50,
		DoSThreshold:       500,
		UnsecureCooldown:   10 * time.Second,
		CleanupInterval:    time.Minute,
		DataRetention:      5 * time.Minute,
	}
}

// Alert represents a detected anomaly.
type Alert struct {
	Type      AnomalyType
	Source    string
	Message   string
	Timestamp time.Time
}

// plaintext lists destination ports that carry credentials in the clear.
var plaintext = map[uint16]string{
	80: "HTTP",
	21: "FTP",
	23: "Telnet",
}

type unsecureKey struct {
	src  netip.Addr
	port uint16
}

type rateWindow struct {
	start time.Time
	count int
}

var broadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// AnomalyDetector watches traffic for suspicious patterns.
// It is not safe for concurrent use; the Aggregator that owns it serialises access.
type AnomalyDetector struct {
	config Config

	broadcastCount  int
	broadcastWindow time.Time

	unsecureAlerts map[unsecureKey]time.Time
	sources        map[netip.Addr]*rateWindow

	alerts    []Alert
	maxAlerts int

	lastCleanup time.Time
}

// NewAnomalyDetector creates a new anomaly detection engine.
func NewAnomalyDetector(cfg Config) *AnomalyDetector {
	return &AnomalyDetector{
		config:         cfg,
		unsecureAlerts: make(map[unsecureKey]time.Time),
		sources:        make(map[netip.Addr]*rateWindow),
		maxAlerts:      20,
	}
}

// ProcessPacket runs every rule against rec as seen at now.
func (ad *AnomalyDetector) ProcessPacket(rec models.Record, now time.Time) {
	if ad.lastCleanup.IsZero() {
		ad.lastCleanup = now
	}
	if now.Sub(ad.lastCleanup) > ad.config.CleanupInterval {
		ad.cleanup(now)
		ad.lastCleanup = now
	}

	pkt := rec.Packet
	ad.detectBroadcastStorm(pkt, now)
	ad.detectUnsecureProtocol(pkt, now)
	ad.detectDoS(pkt, now)
}

func (ad *AnomalyDetector) cleanup(now time.Time) {
	for key, last := range ad.unsecureAlerts {
		if now.Sub(last) > ad.config.DataRetention {
			delete(ad.unsecureAlerts, key)
		}
	}
	for src, w := range ad.sources {
		if now.Sub(w.start) > ad.config.DataRetention {
			delete(ad.sources, src)
		}
	}
}

func (ad *AnomalyDetector) detectBroadcastStorm(pkt *models.DecodedPacket, now time.Time) {
	if pkt.Link == nil || !bytes.Equal(pkt.Link.DstMAC, broadcastMAC) {
		return
	}
	if now.Sub(ad.broadcastWindow) > time.Second {
		ad.broadcastCount = 0
		ad.broadcastWindow = now
	}
	ad.broadcastCount++

	if ad.broadcastCount > ad.config.BroadcastThreshold {
		ad.addAlert(Alert{
			Type:      AnomalyBroadcastStorm,
			Source:    "Network",
			Message:   fmt.Sprintf("Broadcast storm detected: %d broadcasts in 1 second", ad.broadcastCount),
			Timestamp: now,
		})
		ad.broadcastCount = 0
		ad.broadcastWindow = now
	}
}

func (ad *AnomalyDetector) detectUnsecureProtocol(pkt *models.DecodedPacket, now time.Time) {
	if pkt.Network == nil {
		return
	}
	_, dport, ok := models.Ports(pkt.Transport)
	if !ok {
		return
	}
	name, unsecure := plaintext[dport]
	if !unsecure {
		return
	}

	key := unsecureKey{src: pkt.Network.SrcIP, port: dport}
	if last, seen := ad.unsecureAlerts[key]; seen && now.Sub(last) <= ad.config.UnsecureCooldown {
		return
	}
	ad.addAlert(Alert{
		Type:      AnomalyUnsecure,
		Source:    key.src.String(),
		Message:   fmt.Sprintf("Plaintext %s traffic on port %d from %s", name, dport, key.src),
		Timestamp: now,
	})
	ad.unsecureAlerts[key] = now
}

func (ad *AnomalyDetector) detectDoS(pkt *models.DecodedPacket, now time.Time) {
	if pkt.Network == nil {
		return
	}
	src := pkt.Network.SrcIP
	w, ok := ad.sources[src]
	if !ok {
		w = &rateWindow{start: now}
		ad.sources[src] = w
	}
	if now.Sub(w.start) > time.Second {
		w.count = 0
		w.start = now
	}
	w.count++

	if w.count > ad.config.DoSThreshold {
		ad.addAlert(Alert{
			Type:      AnomalyDoS,
			Source:    src.String(),
			Message:   fmt.Sprintf("High packet rate from %s: %d pps", src, w.count),
			Timestamp: now,
		})
		w.count = 0
		w.start = now
	}
}

func (ad *AnomalyDetector) addAlert(alert Alert) {
	ad.alerts = append(ad.alerts, alert)
	if len(ad.alerts) > ad.maxAlerts {
		ad.alerts = ad.alerts[len(ad.alerts)-ad.maxAlerts:]
	}
}

// GetRecentAlerts returns a copy of the last limit alerts, newest last.
func (ad *AnomalyDetector) GetRecentAlerts(limit int) []Alert {
	start := 0
	if len(ad.alerts) > limit {
		start = len(ad.alerts) - limit
	}
	result := make([]Alert, len(ad.alerts)-start)
	copy(result, ad.alerts[start:])
	return result
}
