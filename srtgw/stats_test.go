package srtgw

import (
	"encoding/json"
	"math"
	"testing"
)

func decodeStats(t *testing.T, raw string) Stats {
	t.Helper()
	var s Stats
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	return s
}

func TestSummaryPrefersTopLevel(t *testing.T) {
	s := decodeStats(t, `{
		"receive-rate-mbps": 8.5,
		"rtt-ms": 12,
		"packets-received": 990,
		"packets-received-lost": 10,
		"connected-callers": 1,
		"total-bytes-received": 2048,
		"callers": [{"receive-rate-mbps": 1.0, "rtt-ms": 99}]
	}`)
	sum := s.Summary()
	if sum.BitrateMbps != 8.5 {
		t.Errorf("BitrateMbps = %v, want 8.5", sum.BitrateMbps)
	}
	if sum.RTTMs != 12 {
		t.Errorf("RTTMs = %v, want 12", sum.RTTMs)
	}
	if sum.PacketLossPercent != 1 {
		t.Errorf("PacketLossPercent = %v, want 1", sum.PacketLossPercent)
	}
	if sum.TotalBytes != 2048 || sum.ConnectedCallers != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestSummaryFallsBackToFirstCaller(t *testing.T) {
	s := decodeStats(t, `{
		"connected-callers": 2,
		"callers": [
			{"receive-rate-mbps": 4.25, "rtt-ms": 30, "packets-received": 300, "packets-received-lost": 100, "bandwidth-mbps": 50},
			{"receive-rate-mbps": 9.0}
		]
	}`)
	sum := s.Summary()
	if sum.BitrateMbps != 4.25 {
		t.Errorf("BitrateMbps = %v, want 4.25", sum.BitrateMbps)
	}
	if sum.BandwidthMbps != 50 {
		t.Errorf("BandwidthMbps = %v, want 50", sum.BandwidthMbps)
	}
	if sum.PacketLossPercent != 25 {
		t.Errorf("PacketLossPercent = %v, want 25", sum.PacketLossPercent)
	}
	if len(sum.Callers) != 2 {
		t.Errorf("callers = %d, want 2", len(sum.Callers))
	}
}

func TestSummaryEmpty(t *testing.T) {
	var s Stats
	sum := s.Summary()
	if sum.BitrateMbps != 0 || sum.PacketLossPercent != 0 || len(sum.Callers) != 0 {
		t.Errorf("empty summary = %+v", sum)
	}
}

func TestPacketLoss(t *testing.T) {
	tests := []struct {
		received, lost, want float64
	}{
		{0, 0, 0},
		{0, 50, 0},
		{100, 0, 0},
		{99, 1, 1},
		{3, 1, 25},
	}
	for _, tt := range tests {
		if got := PacketLoss(tt.received, tt.lost); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("PacketLoss(%v, %v) = %v, want %v", tt.received, tt.lost, got, tt.want)
		}
	}
	if LossLevel(0.5) != "ok" || LossLevel(3) != "warn" || LossLevel(6) != "bad" {
		t.Error("LossLevel thresholds")
	}
}

func TestFormatting(t *testing.T) {
	if got := FormatBytes(0); got != "0 B" {
		t.Errorf("FormatBytes(0) = %q", got)
	}
	if got := FormatBytes(1536); got != "1.5 KiB" {
		t.Errorf("FormatBytes(1536) = %q, want %q", got, "1.5 KiB")
	}
	if got := FormatMbps(0); got != "0 Mbps" {
		t.Errorf("FormatMbps(0) = %q", got)
	}
	if got := FormatMbps(4.256); got != "4.26 Mbps" {
		t.Errorf("FormatMbps(4.256) = %q", got)
	}
}

func TestMatchDestinationStats(t *testing.T) {
	dests := []Destination{
		{ID: "1", Name: "srt-a", Type: "srt"},
		{ID: "2", Name: "udp", Type: "udp"},
		{ID: "3", Name: "srt-b", Type: "srtsink"},
	}
	stats := []DestinationStat{
		{SinkIndex: 1, Stats: Stats{"send-rate-mbps": 3.0, "bytes-sent-total": float64(4096)}},
		{SinkIndex: 0, Stats: Stats{"send-rate-mbps": 7.5, "rtt-ms": 20.0, "connected-callers": 2.0}},
	}

	got := MatchDestinationStats(dests, stats)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 SRT destinations", len(got))
	}
	if got[0].Destination.ID != "1" || got[0].SendRateMbps != 7.5 || got[0].ConnectedCallers != 2 {
		t.Errorf("sink 0 = %+v", got[0])
	}
	if got[1].Destination.ID != "3" || got[1].SendRateMbps != 3 || got[1].BytesSent != 4096 {
		t.Errorf("sink 1 = %+v", got[1])
	}

	got = MatchDestinationStats(dests, nil)
	if len(got) != 2 || got[0].Stats == nil || got[0].SendRateMbps != 0 {
		t.Errorf("no stats = %+v", got)
	}
}
