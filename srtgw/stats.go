package srtgw

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
)

// Stats is a metric bag keyed by SRT metric name ("receive-rate-mbps",
// "rtt-ms", "connected-callers", "callers"...).
type Stats map[string]any

// Lookup returns a numeric metric and whether it was present.
func (s Stats) Lookup(key string) (float64, bool) {
	switch v := s[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

// Float returns a numeric metric, 0 when absent.
func (s Stats) Float(key string) float64 {
	v, _ := s.Lookup(key)
	return v
}

// Callers returns the per-caller metric bags (listener mode).
func (s Stats) Callers() []Stats {
	raw, _ := s["callers"].([]any)
	out := make([]Stats, 0, len(raw))
	for _, c := range raw {
		if m, ok := c.(map[string]any); ok {
			out = append(out, Stats(m))
		}
	}
	return out
}

// SourceSummary is the headline view of a route's source statistics.
type SourceSummary struct {
	ConnectedCallers  int     `json:"connected_callers"`
	TotalBytes        uint64  `json:"total_bytes"`
	BitrateMbps       float64 `json:"bitrate_mbps"`
	RTTMs             float64 `json:"rtt_ms"`
	PacketsReceived   float64 `json:"packets_received"`
	PacketsLost       float64 `json:"packets_lost"`
	BandwidthMbps     float64 `json:"bandwidth_mbps"`
	PacketLossPercent float64 `json:"packet_loss_percent"`
	Callers           []Stats `json:"callers,omitempty"`
}

// Summary reads the top-level metrics, which caller mode fills in, and falls
// back to the first connected caller for listener mode.
func (s Stats) Summary() SourceSummary {
	var first Stats
	callers := s.Callers()
	if len(callers) > 0 {
		first = callers[0]
	}
	pick := func(key string) float64 {
		if v, ok := s.Lookup(key); ok {
			return v
		}
		return first.Float(key)
	}
	sum := SourceSummary{
		ConnectedCallers: int(s.Float("connected-callers")),
		TotalBytes:       uint64(s.Float("total-bytes-received")),
		BitrateMbps:      pick("receive-rate-mbps"),
		RTTMs:            pick("rtt-ms"),
		PacketsReceived:  pick("packets-received"),
		PacketsLost:      pick("packets-received-lost"),
		BandwidthMbps:    pick("bandwidth-mbps"),
		Callers:          callers,
	}
	sum.PacketLossPercent = PacketLoss(sum.PacketsReceived, sum.PacketsLost)
	return sum
}

// PacketLoss returns lost/(received+lost) as a percentage, 0 when nothing
// was received.
func PacketLoss(received, lost float64) float64 {
	if received <= 0 {
		return 0
	}
	return lost / (received + lost) * 100
}

// LossLevel grades a packet loss percentage: ok up to 1%, warn up to 5%, bad above.
func LossLevel(percent float64) string {
	switch {
	case percent > 5:
		return "bad"
	case percent > 1:
		return "warn"
	default:
		return "ok"
	}
}

func FormatBytes(n uint64) string {
	return humanize.IBytes(n)
}

func FormatMbps(v float64) string {
	if v == 0 {
		return "0 Mbps"
	}
	return fmt.Sprintf("%.2f Mbps", v)
}

// DestinationStat is the statistics of one sink, addressed by its position
// among the route's SRT destinations.
type DestinationStat struct {
	SinkIndex int   `json:"sink_index"`
	Stats     Stats `json:"stats"`
}

// DestinationSummary pairs an SRT destination with its sink statistics.
type DestinationSummary struct {
	Destination      Destination `json:"destination"`
	Stats            Stats       `json:"stats"`
	ConnectedCallers int         `json:"connected_callers"`
	SendRateMbps     float64     `json:"send_rate_mbps"`
	RTTMs            float64     `json:"rtt_ms"`
	BytesSent        uint64      `json:"bytes_sent"`
	Callers          []Stats     `json:"callers,omitempty"`
}

// MatchDestinationStats keeps the SRT destinations in order and attaches the
// sink whose index equals the destination's position among them. Destinations
// without a matching sink get empty statistics.
func MatchDestinationStats(dests []Destination, stats []DestinationStat) []DestinationSummary {
	bySink := make(map[int]Stats, len(stats))
	for _, s := range stats {
		bySink[s.SinkIndex] = s.Stats
	}
	var out []DestinationSummary
	for _, d := range dests {
		if !d.IsSRT() {
			continue
		}
		st := bySink[len(out)]
		if st == nil {
			st = Stats{}
		}
		out = append(out, DestinationSummary{
			Destination:      d,
			Stats:            st,
			ConnectedCallers: int(st.Float("connected-callers")),
			SendRateMbps:     st.Float("send-rate-mbps"),
			RTTMs:            st.Float("rtt-ms"),
			BytesSent:        uint64(st.Float("bytes-sent-total")),
			Callers:          st.Callers(),
		})
	}
	return out
}

// Stats endpoints follow the route resource layout; the gateway publishes no
// documented path for them.
const (
	routeStatsPath       = "/stats"
	destinationStatsPath = "/stats/destinations"
)

// RouteStats returns the source statistics of a running route, nil when the
// backend has none.
func (c *Client) RouteStats(ctx context.Context, id ID) (Stats, error) {
	var resp envelope[Stats]
	if err := c.get(ctx, routePath(id)+routeStatsPath, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// DestinationStats returns per-sink statistics of a running route.
func (c *Client) DestinationStats(ctx context.Context, id ID) ([]DestinationStat, error) {
	var resp envelope[[]DestinationStat]
	if err := c.get(ctx, routePath(id)+destinationStatsPath, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}
