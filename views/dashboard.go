package views

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/visual-alchemy/blackgate-project/poller"
	"github.com/visual-alchemy/blackgate-project/srtgw"
)

// RecentRoutes is how many routes the dashboard lists.
const RecentRoutes = 5

// Dashboard is the landing screen summary.
type Dashboard struct {
	Node          *srtgw.Node   `json:"node,omitempty"`
	TotalRoutes   int           `json:"total_routes"`
	ActiveRoutes  int           `json:"active_routes"`
	StoppedRoutes int           `json:"stopped_routes"`
	Recent        []srtgw.Route `json:"recent_routes"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// BuildDashboard summarizes the node list and the route list. Routes that are
// not started count as stopped. Recent holds the most recently updated routes
// first.
func BuildDashboard(nodes []srtgw.Node, routes []srtgw.Route) Dashboard {
	d := Dashboard{Node: srtgw.SelfNode(nodes), TotalRoutes: len(routes)}
	for i := range routes {
		if routes[i].IsStarted() {
			d.ActiveRoutes++
		} else {
			d.StoppedRoutes++
		}
	}
	recent := append([]srtgw.Route(nil), routes...)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].UpdatedAt.After(recent[j].UpdatedAt.Time)
	})
	if len(recent) > RecentRoutes {
		recent = recent[:RecentRoutes]
	}
	d.Recent = recent
	return d
}

type dashboardData struct {
	nodes  []srtgw.Node
	routes []srtgw.Route
}

// DashboardView polls nodes and routes together.
type DashboardView struct {
	deps *Deps
	n    Notifier

	mu   sync.RWMutex
	dash Dashboard
	err  error

	poll *poller.Poller[dashboardData]
}

func NewDashboardView(d *Deps, n Notifier) *DashboardView {
	return &DashboardView{deps: d, n: orNop(n)}
}

func (v *DashboardView) fetch(ctx context.Context) (dashboardData, error) {
	nodes, err := v.deps.Client.ListNodes(ctx)
	if err != nil {
		return dashboardData{}, err
	}
	routes, err := v.deps.Client.ListRoutes(ctx)
	if err != nil {
		return dashboardData{}, err
	}
	return dashboardData{nodes: nodes, routes: routes}, nil
}

func (v *DashboardView) apply(data dashboardData, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.err = err
	if err != nil {
		return
	}
	v.dash = BuildDashboard(data.nodes, data.routes)
	v.dash.UpdatedAt = time.Now()
}

// Load fetches once.
func (v *DashboardView) Load(ctx context.Context) error {
	data, err := v.fetch(ctx)
	v.apply(data, err)
	if err != nil {
		notifyFailure(v.n, "Failed to fetch dashboard data", err)
	}
	return err
}

func (v *DashboardView) Dashboard() Dashboard {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.dash
}

// Err is the error of the last applied fetch.
func (v *DashboardView) Err() error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.err
}

// StartPolling refreshes the dashboard on the configured interval and calls
// onUpdate after every applied fetch.
func (v *DashboardView) StartPolling(ctx context.Context, onUpdate func(Dashboard, error)) {
	v.poll = poller.New(poller.Config[dashboardData]{
		Name:     "dashboard",
		Interval: v.deps.interval(v.deps.Poll.Dashboard, defaultDashInterval),
		Policy:   v.deps.Policy,
		Fetch:    v.fetch,
		Apply: func(data dashboardData, err error) {
			v.apply(data, err)
			if onUpdate != nil {
				onUpdate(v.Dashboard(), err)
			}
		},
		LogFunc: poller.LogFunc(v.deps.logf),
	})
	v.poll.Start(ctx)
}

func (v *DashboardView) StopPolling() {
	if v.poll != nil {
		v.poll.Stop()
	}
}
