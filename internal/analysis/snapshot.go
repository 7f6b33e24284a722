package analysis

import (
	"time"

	"netsniff/internal/models"
)

// Counter is a packet and byte tally.
type Counter struct {
	Packets uint64
	Bytes   uint64
}

func (c *Counter) add(n int) {
	c.Packets++
	c.Bytes += uint64(n)
}

// AppShare is one row of the application distribution.
type AppShare struct {
	App models.App
	Counter
	// Percent is 100 * Packets / total packets, or 0 when nothing was seen.
	Percent float64
}

// TransportStat counts packets per transport label (TCP, UDP, ICMP, ARP, ...).
type TransportStat struct {
	Name string
	Counter
}

// Talker is a conversation and its traffic.
type Talker struct {
	Key models.ConversationKey
	Counter
}

// HostCount is how often a hostname appeared in DNS questions.
type HostCount struct {
	Name    string
	Lookups uint64
}

// PortStat is the traffic seen on one service port.
type PortStat struct {
	Port uint16
	// Service is the common name of the port, or the number itself.
	Service string
	Counter
}

// SizeBuckets counts packets by frame length.
type SizeBuckets struct {
	Small  uint64 // under 100 bytes
	Medium uint64 // 100 to 499 bytes
	Large  uint64 // 500 bytes and more
}

// Total is the number of packets in all buckets.
func (b SizeBuckets) Total() uint64 {
	return b.Small + b.Medium + b.Large
}

// BandwidthPoint is the windowed byte rate at one moment.
type BandwidthPoint struct {
	At          time.Time
	BytesPerSec float64
}

// Snapshot is an immutable view of the aggregator at one point in time.
// Nothing holds a reference to its slices or maps after publication, so readers
// may keep it as long as they like.
type Snapshot struct {
	Version   uint64
	StartedAt time.Time
	TakenAt   time.Time
	Window    time.Duration

	TotalPackets uint64
	TotalBytes   uint64

	// Apps has one entry per label, in models.Apps order.
	Apps          []AppShare
	Transports    []TransportStat
	Conversations map[models.ConversationKey]Counter
	TopTalkers    []Talker
	// Hosts is sorted by lookups, most frequent first.
	Hosts []HostCount
	// TopPorts is sorted by packets, busiest first.
	TopPorts []PortStat

	BytesPerSec       float64
	PacketsPerSec     float64
	PeakBytesPerSec   float64
	PeakPacketsPerSec float64
	// Bandwidth is the recent rate history, oldest first.
	Bandwidth []BandwidthPoint

	MinPacket int
	MaxPacket int
	AvgPacket float64
	Sizes     SizeBuckets

	Alerts []Alert
}

// Elapsed is the time between aggregator start and this snapshot.
func (s *Snapshot) Elapsed() time.Duration {
	return s.TakenAt.Sub(s.StartedAt)
}

// Share returns the distribution entry for app.
func (s *Snapshot) Share(app models.App) AppShare {
	for _, share := range s.Apps {
		if share.App == app {
			return share
		}
	}
	return AppShare{App: app}
}
