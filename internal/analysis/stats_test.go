package analysis

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"netsniff/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func record(src, dst string, n int, app models.App) models.Record {
	return models.Record{
		Packet: &models.DecodedPacket{
			Length: n,
			Network: &models.NetworkLayer{
				Version:  4,
				SrcIP:    netip.MustParseAddr(src),
				DstIP:    netip.MustParseAddr(dst),
				Protocol: 6,
			},
			Transport: &models.TCP{SrcPort: 40000, DstPort: 443},
		},
		Class: models.Classification{App: app},
	}
}

func newTestAggregator(clock *fakeClock) *Aggregator {
	cfg := DefaultStatsConfig()
	cfg.Clock = clock.Now
	return NewAggregator(cfg)
}

func TestAggregatorConversationSymmetry(t *testing.T) {
	agg := newTestAggregator(newFakeClock())

	agg.Observe(record("10.0.0.1", "10.0.0.2", 100, models.AppHTTPS))
	agg.Observe(record("10.0.0.2", "10.0.0.1", 50, models.AppHTTPS))
	snap := agg.Publish()

	require.Len(t, snap.Conversations, 1)
	key := models.NewConversationKey(netip.MustParseAddr("10.0.0.2"), netip.MustParseAddr("10.0.0.1"))
	assert.Equal(t, Counter{Packets: 2, Bytes: 150}, snap.Conversations[key])
	require.Len(t, snap.TopTalkers, 1)
	assert.Equal(t, "10.0.0.1 <-> 10.0.0.2", snap.TopTalkers[0].Key.String())
}

func TestAggregatorRate(t *testing.T) {
	clock := newFakeClock()
	agg := newTestAggregator(clock)

	for range 100 {
		agg.Observe(record("10.0.0.1", "10.0.0.2", 1000, models.AppHTTPS))
		clock.Advance(5 * time.Millisecond)
	}
	snap := agg.Publish()
	assert.InDelta(t, 100000, snap.BytesPerSec, 1e-6)
	assert.InDelta(t, 100, snap.PacketsPerSec, 1e-6)

	clock.Advance(2 * time.Second)
	snap = agg.Publish()
	assert.Zero(t, snap.BytesPerSec)
	assert.Zero(t, snap.PacketsPerSec)
	assert.InDelta(t, 100000, snap.PeakBytesPerSec, 1e-6)
	assert.EqualValues(t, 100000, snap.TotalBytes)
}

func TestAggregatorRingOverwritesOldest(t *testing.T) {
	clock := newFakeClock()
	cfg := DefaultStatsConfig()
	cfg.Clock = clock.Now
	cfg.RingSize = 4
	agg := NewAggregator(cfg)

	for i := range 10 {
		agg.Observe(record("10.0.0.1", "10.0.0.2", 10*(i+1), models.AppUnknown))
	}
	snap := agg.Publish()
	assert.InDelta(t, 4, snap.PacketsPerSec, 1e-9)
	assert.InDelta(t, 70+80+90+100, snap.BytesPerSec, 1e-9)
	assert.EqualValues(t, 10, snap.TotalPackets)
}

func TestAggregatorDistribution(t *testing.T) {
	tcs := []struct {
		name    string
		apps    []models.App
		wantSum float64
	}{
		{name: "empty", wantSum: 0},
		{name: "single label", apps: []models.App{models.AppDNS, models.AppDNS}, wantSum: 100},
		{
			name:    "mixed",
			apps:    []models.App{models.AppHTTP, models.AppHTTPS, models.AppHTTPS, models.AppSSH, models.AppUnknown, models.AppSMTP},
			wantSum: 100,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			agg := newTestAggregator(newFakeClock())
			for _, app := range tc.apps {
				agg.Observe(record("10.0.0.1", "10.0.0.2", 64, app))
			}
			snap := agg.Publish()

			require.Len(t, snap.Apps, len(models.Apps))
			var sum float64
			for i, share := range snap.Apps {
				assert.Equal(t, models.Apps[i], share.App)
				sum += share.Percent
			}
			assert.InDelta(t, tc.wantSum, sum, 1e-9)
		})
	}
}

func TestAggregatorShare(t *testing.T) {
	agg := newTestAggregator(newFakeClock())
	agg.Observe(record("10.0.0.1", "10.0.0.2", 64, models.AppHTTPS))
	agg.Observe(record("10.0.0.1", "10.0.0.2", 64, models.AppHTTPS))
	agg.Observe(record("10.0.0.1", "10.0.0.2", 64, models.AppDNS))
	agg.Observe(record("10.0.0.1", "10.0.0.2", 64, models.AppUnknown))
	snap := agg.Publish()

	assert.InDelta(t, 50, snap.Share(models.AppHTTPS).Percent, 1e-9)
	assert.InDelta(t, 25, snap.Share(models.AppDNS).Percent, 1e-9)
	assert.Zero(t, snap.Share(models.AppFTP).Percent)
}

func TestAggregatorSizeStats(t *testing.T) {
	agg := newTestAggregator(newFakeClock())
	for _, n := range []int{60, 1500, 240} {
		agg.Observe(record("10.0.0.1", "10.0.0.2", n, models.AppUnknown))
	}
	snap := agg.Publish()

	assert.Equal(t, 60, snap.MinPacket)
	assert.Equal(t, 1500, snap.MaxPacket)
	assert.InDelta(t, 600, snap.AvgPacket, 1e-9)
}

func TestAggregatorSizeBuckets(t *testing.T) {
	tcs := []struct {
		name  string
		sizes []int
		want  SizeBuckets
	}{
		{name: "none", want: SizeBuckets{}},
		{name: "boundaries", sizes: []int{99, 100, 499, 500}, want: SizeBuckets{Small: 1, Medium: 2, Large: 1}},
		{name: "mixed", sizes: []int{60, 1500, 240, 42, 9000}, want: SizeBuckets{Small: 2, Medium: 1, Large: 2}},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			agg := newTestAggregator(newFakeClock())
			for _, n := range tc.sizes {
				agg.Observe(record("10.0.0.1", "10.0.0.2", n, models.AppUnknown))
			}
			snap := agg.Publish()
			assert.Equal(t, tc.want, snap.Sizes)
			assert.EqualValues(t, len(tc.sizes), snap.Sizes.Total())
		})
	}
}

func TestAggregatorTopPorts(t *testing.T) {
	cfg := DefaultStatsConfig()
	cfg.Clock = newFakeClock().Now
	cfg.TopPorts = 3
	agg := NewAggregator(cfg)

	withTransport := func(n int, tr models.Transport) models.Record {
		rec := record("10.0.0.1", "10.0.0.2", n, models.AppUnknown)
		rec.Packet.Transport = tr
		return rec
	}
	agg.Observe(withTransport(100, &models.TCP{SrcPort: 40000, DstPort: 443}))
	agg.Observe(withTransport(200, &models.TCP{SrcPort: 443, DstPort: 40000}))
	agg.Observe(withTransport(60, &models.TCP{SrcPort: 51000, DstPort: 8080}))
	agg.Observe(withTransport(60, &models.TCP{SrcPort: 8080, DstPort: 51000}))
	agg.Observe(withTransport(80, &models.UDP{SrcPort: 40001, DstPort: 53}))
	agg.Observe(withTransport(70, &models.UDP{SrcPort: 50000, DstPort: 60000}))
	agg.Observe(withTransport(98, &models.ICMP{Type: 8}))

	snap := agg.Publish()
	assert.Equal(t, []PortStat{
		{Port: 443, Service: "HTTPS", Counter: Counter{Packets: 2, Bytes: 300}},
		{Port: 8080, Service: "HTTP-Alt", Counter: Counter{Packets: 2, Bytes: 120}},
		{Port: 53, Service: "DNS", Counter: Counter{Packets: 1, Bytes: 80}},
	}, snap.TopPorts)
}

func TestAggregatorBandwidthHistory(t *testing.T) {
	clock := newFakeClock()
	cfg := DefaultStatsConfig()
	cfg.Clock = clock.Now
	cfg.HistorySize = 3
	agg := NewAggregator(cfg)

	agg.Observe(record("10.0.0.1", "10.0.0.2", 1000, models.AppHTTPS))
	clock.Advance(500 * time.Millisecond)
	first := agg.Publish()

	// publishes inside one step update the newest point
	require.Len(t, first.Bandwidth, 1)
	assert.Equal(t, clock.Now(), first.Bandwidth[0].At)
	assert.InDelta(t, 1000, first.Bandwidth[0].BytesPerSec, 1e-9)

	for i := range 3 {
		clock.Advance(2 * time.Second)
		agg.Observe(record("10.0.0.1", "10.0.0.2", (i+2)*1000, models.AppHTTPS))
		agg.Publish()
	}
	snap := agg.Snapshot()

	require.Len(t, snap.Bandwidth, 3)
	for i, want := range []float64{2000, 3000, 4000} {
		assert.InDelta(t, want, snap.Bandwidth[i].BytesPerSec, 1e-9)
	}
	assert.True(t, snap.Bandwidth[0].At.Before(snap.Bandwidth[2].At))
	assert.InDelta(t, 4000, snap.PeakBytesPerSec, 1e-9)

	require.Len(t, first.Bandwidth, 1)
	assert.InDelta(t, 1000, first.Bandwidth[0].BytesPerSec, 1e-9)
}

func TestAggregatorTransportsAndHosts(t *testing.T) {
	agg := newTestAggregator(newFakeClock())
	agg.Observe(record("10.0.0.1", "10.0.0.2", 64, models.AppHTTPS))
	agg.Observe(record("10.0.0.1", "10.0.0.2", 64, models.AppHTTPS))

	dns := record("10.0.0.1", "8.8.8.8", 80, models.AppDNS)
	dns.Packet.Transport = &models.UDP{SrcPort: 40000, DstPort: 53}
	dns.Packet.Hostname = "example.com"
	agg.Observe(dns)

	arp := models.Record{Packet: &models.DecodedPacket{Length: 42, Link: &models.LinkLayer{EtherType: 0x0806}}}
	agg.Observe(arp)

	snap := agg.Publish()
	require.Len(t, snap.Transports, 3)
	assert.Equal(t, TransportStat{Name: "TCP", Counter: Counter{Packets: 2, Bytes: 128}}, snap.Transports[0])
	assert.Equal(t, "ARP", snap.Transports[1].Name)
	assert.Equal(t, "UDP", snap.Transports[2].Name)
	assert.Equal(t, []HostCount{{Name: "example.com", Lookups: 1}}, snap.Hosts)
	assert.Len(t, snap.Conversations, 2)
}

func TestTopTalkersOrdering(t *testing.T) {
	addr := netip.MustParseAddr
	key := func(a, b string) models.ConversationKey { return models.NewConversationKey(addr(a), addr(b)) }

	talkers := []Talker{
		{Key: key("10.0.0.9", "10.0.0.10"), Counter: Counter{Packets: 1, Bytes: 100}},
		{Key: key("10.0.0.3", "10.0.0.4"), Counter: Counter{Packets: 5, Bytes: 500}},
		{Key: key("10.0.0.5", "10.0.0.6"), Counter: Counter{Packets: 2, Bytes: 500}},
		{Key: key("10.0.0.1", "10.0.0.2"), Counter: Counter{Packets: 5, Bytes: 500}},
	}
	got := topTalkers(talkers, 3)

	require.Len(t, got, 3)
	assert.Equal(t, key("10.0.0.1", "10.0.0.2"), got[0].Key)
	assert.Equal(t, key("10.0.0.3", "10.0.0.4"), got[1].Key)
	assert.Equal(t, key("10.0.0.5", "10.0.0.6"), got[2].Key)
}

func TestAggregatorSnapshotIsImmutable(t *testing.T) {
	agg := newTestAggregator(newFakeClock())
	first := agg.Snapshot()
	require.NotNil(t, first)
	assert.EqualValues(t, 1, first.Version)

	agg.Observe(record("10.0.0.1", "10.0.0.2", 100, models.AppHTTP))
	assert.Same(t, first, agg.Snapshot())

	second := agg.Publish()
	assert.EqualValues(t, 2, second.Version)
	assert.Zero(t, first.TotalPackets)
	assert.Empty(t, first.Conversations)
	assert.EqualValues(t, 1, second.TotalPackets)
}

func TestAggregatorRun(t *testing.T) {
	agg := newTestAggregator(newFakeClock())
	in := make(chan models.Record, 10)
	for range 5 {
		in <- record("10.0.0.1", "10.0.0.2", 100, models.AppSSH)
	}
	close(in)

	done := make(chan struct{})
	go func() {
		agg.Run(context.Background(), in, time.Hour)
		close(done)
	}()

	// Readers may poll concurrently with the owner.
	for {
		select {
		case <-done:
			snap := agg.Snapshot()
			assert.EqualValues(t, 5, snap.TotalPackets)
			assert.EqualValues(t, 500, snap.TotalBytes)
			assert.InDelta(t, 100, snap.Share(models.AppSSH).Percent, 1e-9)
			return
		default:
			_ = agg.Snapshot().TotalPackets
		}
	}
}

func TestAggregatorRunStopsOnCancel(t *testing.T) {
	agg := newTestAggregator(newFakeClock())
	in := make(chan models.Record, 10)
	in <- record("10.0.0.1", "10.0.0.2", 100, models.AppSSH)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	agg.Run(ctx, in, time.Hour)

	assert.EqualValues(t, 1, agg.Snapshot().TotalPackets)
}
