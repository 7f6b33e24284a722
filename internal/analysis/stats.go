package analysis

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"netsniff/internal/models"
)

// StatsConfig controls the rolling statistics.
type StatsConfig struct {
	// Window is the trailing period used for rates. Defaults to 1s.
	Window time.Duration
	// TopN is how many conversations a snapshot ranks. Defaults to 5.
	TopN int
	// TopPorts is how many service ports a snapshot ranks. Defaults to 10.
	TopPorts int
	// HistorySize bounds the bandwidth history. Defaults to 60 points.
	HistorySize int
	// HistoryStep is the spacing of bandwidth history points. Publishes closer
	// together than this update the newest point. Defaults to 1s.
	HistoryStep time.Duration
	// RingSize bounds the samples kept for the rate window. When full, the oldest sample is overwritten.
	RingSize int
	// Clock defaults to time.Now.
	Clock func() time.Time
	// Alerts configures the anomaly detector.
	Alerts Config
}

// DefaultStatsConfig returns the default configuration.
func DefaultStatsConfig() StatsConfig {
	return StatsConfig{
		Window:      time.Second,
		TopN:        5,
		TopPorts:    10,
		HistorySize: 60,
		HistoryStep: time.Second,
		RingSize:    1 << 16,
		Clock:       time.Now,
		Alerts:      DefaultConfig(),
	}
}

type sample struct {
	at    time.Time
	bytes int
}

// Aggregator keeps rolling traffic statistics.
//
// Observe and Publish mutate state and must only be called from the goroutine that owns
// the Aggregator (normally the one running Run). Snapshot may be called from anywhere:
// it returns the last published value and never touches the live counters.
type Aggregator struct {
	cfg   StatsConfig
	start time.Time

	version      uint64
	totalPackets uint64
	totalBytes   uint64
	apps         [models.NumApps]Counter
	transports   map[string]*Counter
	convs        map[models.ConversationKey]*Counter
	hosts        map[string]uint64
	ports        map[uint16]*Counter

	minLen, maxLen int
	sizes          SizeBuckets

	ring          []sample
	head, size    int
	windowBytes   int
	windowPackets int

	peakBps float64
	peakPps float64
	history []BandwidthPoint
	stepAt  time.Time

	detector *AnomalyDetector
	current  atomic.Pointer[Snapshot]
}

// NewAggregator creates an Aggregator and publishes an empty first snapshot.
func NewAggregator(cfg StatsConfig) *Aggregator {
	def := DefaultStatsConfig()
	if cfg.Window < 0 {
		cfg.Window = 0
	}
	if cfg.TopN <= 0 {
		cfg.TopN = def.TopN
	}
	if cfg.TopPorts <= 0 {
		cfg.TopPorts = def.TopPorts
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = def.HistorySize
	}
	if cfg.HistoryStep <= 0 {
		cfg.HistoryStep = def.HistoryStep
	}
	if cfg.RingSize <= 0 {
		cfg.RingSize = def.RingSize
	}
	if cfg.Clock == nil {
		cfg.Clock = def.Clock
	}
	if cfg.Alerts == (Config{}) {
		cfg.Alerts = def.Alerts
	}

	a := &Aggregator{
		cfg:        cfg,
		start:      cfg.Clock(),
		transports: make(map[string]*Counter),
		convs:      make(map[models.ConversationKey]*Counter),
		hosts:      make(map[string]uint64),
		ports:      make(map[uint16]*Counter),
		history:    make([]BandwidthPoint, 0, cfg.HistorySize),
		ring:       make([]sample, cfg.RingSize),
		detector:   NewAnomalyDetector(cfg.Alerts),
	}
	a.Publish()
	return a
}

// Observe ingests one classified packet.
func (a *Aggregator) Observe(rec models.Record) {
	now := a.cfg.Clock()
	pkt := rec.Packet
	n := pkt.Length

	a.totalPackets++
	a.totalBytes += uint64(n)
	app := rec.Class.App
	if int(app) >= models.NumApps {
		app = models.AppUnknown
	}
	a.apps[app].add(n)

	name := pkt.TransportName()
	c, ok := a.transports[name]
	if !ok {
		c = &Counter{}
		a.transports[name] = c
	}
	c.add(n)

	if pkt.Network != nil {
		key := models.NewConversationKey(pkt.Network.SrcIP, pkt.Network.DstIP)
		c, ok := a.convs[key]
		if !ok {
			c = &Counter{}
			a.convs[key] = c
		}
		c.add(n)
	}

	if pkt.Hostname != "" {
		a.hosts[pkt.Hostname]++
	}

	if src, dst, ok := models.Ports(pkt.Transport); ok {
		port := servicePort(src, dst)
		c, ok := a.ports[port]
		if !ok {
			c = &Counter{}
			a.ports[port] = c
		}
		c.add(n)
	}

	if a.totalPackets == 1 || n < a.minLen {
		a.minLen = n
	}
	if n > a.maxLen {
		a.maxLen = n
	}
	switch {
	case n < 100:
		a.sizes.Small++
	case n < 500:
		a.sizes.Medium++
	default:
		a.sizes.Large++
	}

	a.evict(now)
	a.push(sample{at: now, bytes: n})
	a.detector.ProcessPacket(rec, now)
}

// push appends s to the ring, overwriting the oldest sample when full.
func (a *Aggregator) push(s sample) {
	if a.size == len(a.ring) {
		old := a.ring[a.head]
		a.windowBytes -= old.bytes
		a.windowPackets--
		a.head = (a.head + 1) % len(a.ring)
		a.size--
	}
	a.ring[(a.head+a.size)%len(a.ring)] = s
	a.size++
	a.windowBytes += s.bytes
	a.windowPackets++
}

// evict drops samples that fell out of the trailing window ending at now.
func (a *Aggregator) evict(now time.Time) {
	cutoff := now.Add(-a.cfg.Window)
	for a.size > 0 {
		s := a.ring[a.head]
		if !s.at.Before(cutoff) {
			break
		}
		a.windowBytes -= s.bytes
		a.windowPackets--
		a.ring[a.head] = sample{}
		a.head = (a.head + 1) % len(a.ring)
		a.size--
	}
}

// Publish builds a fresh Snapshot from the live counters and makes it the one
// returned by Snapshot.
func (a *Aggregator) Publish() *Snapshot {
	now := a.cfg.Clock()
	a.evict(now)
	a.version++

	s := &Snapshot{
		Version:      a.version,
		StartedAt:    a.start,
		TakenAt:      now,
		Window:       a.cfg.Window,
		TotalPackets: a.totalPackets,
		TotalBytes:   a.totalBytes,
		MinPacket:    a.minLen,
		MaxPacket:    a.maxLen,
		Sizes:        a.sizes,
	}
	if a.totalPackets > 0 {
		s.AvgPacket = float64(a.totalBytes) / float64(a.totalPackets)
	}

	if secs := a.cfg.Window.Seconds(); secs > 0 {
		s.BytesPerSec = float64(a.windowBytes) / secs
		s.PacketsPerSec = float64(a.windowPackets) / secs
	}
	if s.BytesPerSec > a.peakBps {
		a.peakBps = s.BytesPerSec
	}
	if s.PacketsPerSec > a.peakPps {
		a.peakPps = s.PacketsPerSec
	}
	s.PeakBytesPerSec = a.peakBps
	s.PeakPacketsPerSec = a.peakPps
	a.addHistory(BandwidthPoint{At: now, BytesPerSec: s.BytesPerSec})
	s.Bandwidth = append([]BandwidthPoint(nil), a.history...)

	s.Apps = make([]AppShare, 0, len(models.Apps))
	for _, app := range models.Apps {
		share := AppShare{App: app, Counter: a.apps[app]}
		if a.totalPackets > 0 {
			share.Percent = 100 * float64(share.Packets) / float64(a.totalPackets)
		}
		s.Apps = append(s.Apps, share)
	}

	s.Transports = make([]TransportStat, 0, len(a.transports))
	for name, c := range a.transports {
		s.Transports = append(s.Transports, TransportStat{Name: name, Counter: *c})
	}
	sort.Slice(s.Transports, func(i, j int) bool {
		if s.Transports[i].Packets != s.Transports[j].Packets {
			return s.Transports[i].Packets > s.Transports[j].Packets
		}
		return s.Transports[i].Name < s.Transports[j].Name
	})

	s.Conversations = make(map[models.ConversationKey]Counter, len(a.convs))
	talkers := make([]Talker, 0, len(a.convs))
	for key, c := range a.convs {
		s.Conversations[key] = *c
		talkers = append(talkers, Talker{Key: key, Counter: *c})
	}
	s.TopTalkers = topTalkers(talkers, a.cfg.TopN)
	s.Hosts = make([]HostCount, 0, len(a.hosts))
	for name, n := range a.hosts {
		s.Hosts = append(s.Hosts, HostCount{Name: name, Lookups: n})
	}
	sort.Slice(s.Hosts, func(i, j int) bool {
		if s.Hosts[i].Lookups != s.Hosts[j].Lookups {
			return s.Hosts[i].Lookups > s.Hosts[j].Lookups
		}
		return s.Hosts[i].Name < s.Hosts[j].Name
	})

	ports := make([]PortStat, 0, len(a.ports))
	for port, c := range a.ports {
		ports = append(ports, PortStat{Port: port, Service: GetServiceName(port), Counter: *c})
	}
	s.TopPorts = topPorts(ports, a.cfg.TopPorts)

	s.Alerts = a.detector.GetRecentAlerts(5)

	a.current.Store(s)
	return s
}

// addHistory adds p to the bandwidth history. Within one HistoryStep the newest
// point is overwritten, so it always holds the latest rate of its step.
func (a *Aggregator) addHistory(p BandwidthPoint) {
	n := len(a.history)
	if n > 0 && p.At.Sub(a.stepAt) < a.cfg.HistoryStep {
		a.history[n-1] = p
		return
	}
	a.stepAt = p.At
	if n == a.cfg.HistorySize {
		copy(a.history, a.history[1:])
		a.history[n-1] = p
		return
	}
	a.history = append(a.history, p)
}

// Snapshot returns the most recently published snapshot. It is safe for concurrent use.
func (a *Aggregator) Snapshot() *Snapshot {
	return a.current.Load()
}

// Run owns the Aggregator: it observes every record from in and publishes a snapshot
// every interval. It returns after publishing a final snapshot once in is closed or
// ctx is done.
func (a *Aggregator) Run(ctx context.Context, in <-chan models.Record, interval time.Duration) {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer a.Publish()

	for {
		select {
		case rec, ok := <-in:
			if !ok {
				return
			}
			a.Observe(rec)
		case <-ticker.C:
			a.Publish()
		case <-ctx.Done():
			for {
				select {
				case rec, ok := <-in:
					if !ok {
						return
					}
					a.Observe(rec)
				default:
					return
				}
			}
		}
	}
}

// topPorts ranks ports by packets, then bytes, then port number.
func topPorts(ports []PortStat, limit int) []PortStat {
	sort.Slice(ports, func(i, j int) bool {
		pi, pj := ports[i], ports[j]
		if pi.Packets != pj.Packets {
			return pi.Packets > pj.Packets
		}
		if pi.Bytes != pj.Bytes {
			return pi.Bytes > pj.Bytes
		}
		return pi.Port < pj.Port
	})
	if len(ports) > limit {
		return ports[:limit:limit]
	}
	return ports
}

// topTalkers ranks conversations by bytes, then packets, then address order.
func topTalkers(talkers []Talker, limit int) []Talker {
	sort.Slice(talkers, func(i, j int) bool {
		ti, tj := talkers[i], talkers[j]
		if ti.Bytes != tj.Bytes {
			return ti.Bytes > tj.Bytes
		}
		if ti.Packets != tj.Packets {
			return ti.Packets > tj.Packets
		}
		return ti.Key.Compare(tj.Key) < 0
	})
	if len(talkers) > limit {
		return talkers[:limit:limit]
	}
	return talkers
}
