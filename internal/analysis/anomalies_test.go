package analysis

import (
	"net"
	"testing"
	"time"

	"netsniff/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnomalyUnsecureProtocolCooldown(t *testing.T) {
	ad := NewAnomalyDetector(DefaultConfig())
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	rec := record("192.168.1.10", "93.184.216.34", 400, models.AppHTTP)
	rec.Packet.Transport = &models.TCP{SrcPort: 51000, DstPort: 80}

	ad.ProcessPacket(rec, now)
	ad.ProcessPacket(rec, now.Add(time.Second))
	require.Len(t, ad.GetRecentAlerts(10), 1)

	ad.ProcessPacket(rec, now.Add(11*time.Second))
	alerts := ad.GetRecentAlerts(10)
	require.Len(t, alerts, 2)
	assert.Equal(t, AnomalyUnsecure, alerts[1].Type)
	assert.Equal(t, "192.168.1.10", alerts[1].Source)
	assert.Contains(t, alerts[1].Message, "Plaintext HTTP traffic on port 80")
}

func TestAnomalyDetection(t *testing.T) {
	tcs := []struct {
		name     string
		cfg      Config
		build    func() models.Record
		count    int
		wantType AnomalyType
	}{
		{
			name:  "dos",
			cfg:   Config{DoSThreshold: 10, BroadcastThreshold: 1000, UnsecureCooldown: time.Second, CleanupInterval: time.Minute, DataRetention: time.Minute},
			count: 11,
			build: func() models.Record {
				return record("10.0.0.66", "10.0.0.1", 64, models.AppHTTPS)
			},
			wantType: AnomalyDoS,
		},
		{
			name:  "broadcast storm",
			cfg:   Config{DoSThreshold: 1000, BroadcastThreshold: 5, UnsecureCooldown: time.Second, CleanupInterval: time.Minute, DataRetention: time.Minute},
			count: 6,
			build: func() models.Record {
				return models.Record{Packet: &models.DecodedPacket{
					Length: 42,
					Link: &models.LinkLayer{
						DstMAC:    net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
						EtherType: 0x0806,
					},
				}}
			},
			wantType: AnomalyBroadcastStorm,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			ad := NewAnomalyDetector(tc.cfg)
			now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			for i := range tc.count {
				ad.ProcessPacket(tc.build(), now.Add(time.Duration(i)*time.Millisecond))
			}
			alerts := ad.GetRecentAlerts(5)
			require.Len(t, alerts, 1)
			assert.Equal(t, tc.wantType, alerts[0].Type)
		})
	}
}

func TestAnomalyAlertHistoryBounded(t *testing.T) {
	ad := NewAnomalyDetector(Config{DoSThreshold: 1000, BroadcastThreshold: 1000, UnsecureCooldown: 0, CleanupInterval: time.Hour, DataRetention: time.Hour})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := record("10.0.0.1", "10.0.0.2", 64, models.AppFTP)
	rec.Packet.Transport = &models.TCP{SrcPort: 40000, DstPort: 21}

	for i := range 30 {
		ad.ProcessPacket(rec, now.Add(time.Duration(i)*time.Second))
	}
	assert.Len(t, ad.GetRecentAlerts(100), 20)
	assert.Len(t, ad.GetRecentAlerts(3), 3)
}
