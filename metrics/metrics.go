// Package metrics exposes what the console observes of the gateway as
// Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/visual-alchemy/blackgate-project/srtgw"
)

// Registry holds the console metrics. Each Registry owns its own
// prometheus.Registry so several consoles can live in one process.
type Registry struct {
	reg *prometheus.Registry

	// Gateway API
	APIResponses *prometheus.CounterVec

	// Cluster nodes
	NodeCPU  *prometheus.GaugeVec
	NodeRAM  *prometheus.GaugeVec
	NodeSwap *prometheus.GaugeVec
	NodeUp   *prometheus.GaugeVec

	// Pipelines
	Pipelines   prometheus.Gauge
	PipelineCPU *prometheus.GaugeVec

	// Route source statistics
	RouteBitrate    *prometheus.GaugeVec
	RouteRTT        *prometheus.GaugeVec
	RoutePacketLoss *prometheus.GaugeVec
	RouteCallers    *prometheus.GaugeVec
	Routes          *prometheus.GaugeVec

	// Console
	Events          *prometheus.CounterVec
	SessionsExpired prometheus.Counter
}

func New() *Registry {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	r := &Registry{reg: reg}

	r.APIResponses = f.NewCounterVec(prometheus.CounterOpts{
		Name: "srtconsole_api_responses_total",
		Help: "Gateway API responses by method and status class",
	}, []string{"method", "class"})

	r.NodeCPU = f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "srtconsole_node_cpu_percent",
		Help: "CPU usage reported by each gateway node",
	}, []string{"host"})
	r.NodeRAM = f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "srtconsole_node_ram_percent",
		Help: "Memory usage reported by each gateway node",
	}, []string{"host"})
	r.NodeSwap = f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "srtconsole_node_swap_percent",
		Help: "Swap usage reported by each gateway node",
	}, []string{"host"})
	r.NodeUp = f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "srtconsole_node_up",
		Help: "1 when the node reports up or self, 0 otherwise",
	}, []string{"host", "status"})

	r.Pipelines = f.NewGauge(prometheus.GaugeOpts{
		Name: "srtconsole_pipelines",
		Help: "Running pipeline processes",
	})
	r.PipelineCPU = f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "srtconsole_pipeline_cpu_percent",
		Help: "CPU usage of each pipeline process",
	}, []string{"pid"})

	r.RouteBitrate = f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "srtconsole_route_receive_rate_mbps",
		Help: "Source receive rate of running routes",
	}, []string{"route"})
	r.RouteRTT = f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "srtconsole_route_rtt_ms",
		Help: "Source round-trip time of running routes",
	}, []string{"route"})
	r.RoutePacketLoss = f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "srtconsole_route_packet_loss_percent",
		Help: "Source packet loss of running routes",
	}, []string{"route"})
	r.RouteCallers = f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "srtconsole_route_connected_callers",
		Help: "Callers connected to listener routes",
	}, []string{"route"})
	r.Routes = f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "srtconsole_routes",
		Help: "Routes by state as of the last dashboard refresh",
	}, []string{"state"})

	r.Events = f.NewCounterVec(prometheus.CounterOpts{
		Name: "srtconsole_events_total",
		Help: "Operator mutations performed through the console",
	}, []string{"type"})
	r.SessionsExpired = f.NewCounter(prometheus.CounterOpts{
		Name: "srtconsole_sessions_expired_total",
		Help: "Sessions ended by a 401 or 403 from the gateway",
	})
	return r
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObserveResponse counts one gateway response. Status 0 is a transport error.
func (r *Registry) ObserveResponse(method, _ string, status int) {
	r.APIResponses.WithLabelValues(method, statusClass(status)).Inc()
}

func statusClass(status int) string {
	if status <= 0 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}

// ObserveNodes replaces the node gauges with the given listing.
func (r *Registry) ObserveNodes(nodes []srtgw.Node) {
	r.NodeCPU.Reset()
	r.NodeRAM.Reset()
	r.NodeSwap.Reset()
	r.NodeUp.Reset()
	for _, n := range nodes {
		setOptional(r.NodeCPU, n.Host, n.CPU)
		setOptional(r.NodeRAM, n.Host, n.RAM)
		setOptional(r.NodeSwap, n.Host, n.Swap)
		up := 0.0
		if n.Status == srtgw.NodeUp || n.Status == srtgw.NodeSelf {
			up = 1
		}
		r.NodeUp.WithLabelValues(n.Host, n.Status).Set(up)
	}
}

func setOptional(g *prometheus.GaugeVec, label string, v *float64) {
	if v != nil {
		g.WithLabelValues(label).Set(*v)
	}
}

// ObservePipelines replaces the pipeline gauges with the given listing.
func (r *Registry) ObservePipelines(pipelines []srtgw.Pipeline) {
	r.Pipelines.Set(float64(len(pipelines)))
	r.PipelineCPU.Reset()
	for i := range pipelines {
		r.PipelineCPU.WithLabelValues(strconv.Itoa(pipelines[i].PID)).Set(pipelines[i].CPUPercent())
	}
}

// ObserveRouteStats records the source summary of a running route.
func (r *Registry) ObserveRouteStats(route string, s srtgw.SourceSummary) {
	r.RouteBitrate.WithLabelValues(route).Set(s.BitrateMbps)
	r.RouteRTT.WithLabelValues(route).Set(s.RTTMs)
	r.RoutePacketLoss.WithLabelValues(route).Set(s.PacketLossPercent)
	r.RouteCallers.WithLabelValues(route).Set(float64(s.ConnectedCallers))
}

// ForgetRoute drops the statistics of a route that stopped or was deleted.
func (r *Registry) ForgetRoute(route string) {
	r.RouteBitrate.DeleteLabelValues(route)
	r.RouteRTT.DeleteLabelValues(route)
	r.RoutePacketLoss.DeleteLabelValues(route)
	r.RouteCallers.DeleteLabelValues(route)
}

// ObserveRouteCounts records the dashboard route counts.
func (r *Registry) ObserveRouteCounts(total, active, stopped int) {
	r.Routes.WithLabelValues("total").Set(float64(total))
	r.Routes.WithLabelValues("active").Set(float64(active))
	r.Routes.WithLabelValues("stopped").Set(float64(stopped))
}

// CountEvent counts one console event by type.
func (r *Registry) CountEvent(eventType string) {
	r.Events.WithLabelValues(eventType).Inc()
}
