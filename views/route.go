package views

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/visual-alchemy/blackgate-project/poller"
	"github.com/visual-alchemy/blackgate-project/srtgw"
)

const (
	defaultStatsInterval = 1500 * time.Millisecond
	defaultNodesInterval = 5 * time.Second
	defaultDashInterval  = 30 * time.Second
)

// ErrNotLoaded is returned by operations that need the route loaded first.
var ErrNotLoaded = errors.New("views: route not loaded")

// RouteSnapshot is everything the route detail screen shows.
type RouteSnapshot struct {
	Route        *srtgw.Route               `json:"route"`
	Source       *srtgw.SourceSummary       `json:"source,omitempty"`
	Destinations []srtgw.DestinationSummary `json:"destination_stats,omitempty"`
	StatsError   string                     `json:"stats_error,omitempty"`
	StatsAt      time.Time                  `json:"stats_updated_at,omitempty"`
}

// RouteView is the route detail screen. While the route runs it polls source
// and destination statistics.
type RouteView struct {
	deps *Deps
	n    Notifier
	id   srtgw.ID

	mu        sync.RWMutex
	route     *srtgw.Route
	source    *srtgw.SourceSummary
	sinkStats []srtgw.DestinationStat
	statsErr  string
	statsAt   time.Time

	pollMu   sync.Mutex
	srcPoll  *poller.Poller[srtgw.Stats]
	sinkPoll *poller.Poller[[]srtgw.DestinationStat]
	onUpdate func(RouteSnapshot)
}

func NewRouteView(d *Deps, n Notifier, id srtgw.ID) *RouteView {
	return &RouteView{deps: d, n: orNop(n), id: id}
}

func (v *RouteView) ID() srtgw.ID { return v.id }

func (v *RouteView) Load(ctx context.Context) error {
	route, err := v.deps.Client.GetRoute(ctx, v.id)
	if err == nil && route == nil {
		err = &srtgw.APIError{StatusCode: 404, Method: "GET", Path: "/api/routes/" + string(v.id), Message: "route not found"}
	}
	if err != nil {
		notifyFailure(v.n, "Failed to fetch route data", err)
		return err
	}
	v.mu.Lock()
	v.route = route
	v.mu.Unlock()
	return nil
}

// Snapshot returns the current state. Route is nil before Load.
func (v *RouteView) Snapshot() RouteSnapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()
	snap := RouteSnapshot{StatsError: v.statsErr, StatsAt: v.statsAt}
	if v.route != nil {
		r := *v.route
		snap.Route = &r
		if r.IsStarted() {
			snap.Source = v.source
			snap.Destinations = srtgw.MatchDestinationStats(r.Destinations, v.sinkStats)
		}
	}
	return snap
}

// Status returns the route's current status, "" before Load.
func (v *RouteView) Status() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.route == nil {
		return ""
	}
	return v.route.Status
}

// Toggle stops a started route and starts any other.
func (v *RouteView) Toggle(ctx context.Context) error {
	v.mu.RLock()
	started := v.route != nil && v.route.IsStarted()
	loaded := v.route != nil
	v.mu.RUnlock()
	if !loaded {
		return ErrNotLoaded
	}
	if started {
		return v.SetStatus(ctx, srtgw.ActionStop)
	}
	return v.SetStatus(ctx, srtgw.ActionStart)
}

// SetStatus runs start, stop or restart and reconciles the shown status.
func (v *RouteView) SetStatus(ctx context.Context, action string) error {
	v.mu.RLock()
	if v.route == nil {
		v.mu.RUnlock()
		return ErrNotLoaded
	}
	route := *v.route
	v.mu.RUnlock()

	status, err := changeStatus(ctx, v.deps, v.n, route, action)
	v.mu.Lock()
	if v.route != nil {
		v.route.Status = status
	}
	v.mu.Unlock()
	v.syncPolling(ctx)
	return err
}

// Delete removes the route.
func (v *RouteView) Delete(ctx context.Context) error {
	name := string(v.id)
	v.mu.RLock()
	if v.route != nil {
		name = v.route.Name
	}
	v.mu.RUnlock()
	if err := deleteRoute(ctx, v.deps, v.n, v.id, name); err != nil {
		return err
	}
	v.StopPolling()
	return nil
}

// DeleteDestination removes one destination and reloads the route.
func (v *RouteView) DeleteDestination(ctx context.Context, destID srtgw.ID) error {
	name := string(destID)
	v.mu.RLock()
	if v.route != nil {
		for _, d := range v.route.Destinations {
			if d.ID == destID {
				name = d.Name
			}
		}
	}
	v.mu.RUnlock()

	if _, err := v.deps.Client.DeleteDestination(ctx, v.id, destID); err != nil {
		notifyFailure(v.n, "Failed to delete destination", err)
		return err
	}
	v.deps.emitter().EmitDestinationChanged(v.id, destID, name, ActionDeleted, v.deps.actor())
	v.n.Notify(Notification{Level: LevelSuccess, Message: "Destination deleted successfully"})
	return v.Load(ctx)
}

// StartPolling polls statistics while the route is started, calling onUpdate
// after every applied result. The route must be loaded.
func (v *RouteView) StartPolling(ctx context.Context, onUpdate func(RouteSnapshot)) {
	v.pollMu.Lock()
	v.onUpdate = onUpdate
	v.pollMu.Unlock()
	v.syncPolling(ctx)
}

// syncPolling starts the stats pollers for a started route and stops them
// otherwise.
func (v *RouteView) syncPolling(ctx context.Context) {
	v.pollMu.Lock()
	defer v.pollMu.Unlock()
	if v.onUpdate == nil {
		return
	}
	running := v.Status() != "" && v.isStarted()
	if !running {
		v.stopLocked()
		return
	}
	if v.srcPoll != nil {
		return
	}

	every := v.deps.interval(v.deps.Poll.RouteStats, defaultStatsInterval)
	v.srcPoll = poller.New(poller.Config[srtgw.Stats]{
		Name:     "route " + string(v.id) + " stats",
		Interval: every,
		Policy:   v.deps.Policy,
		Fetch: func(ctx context.Context) (srtgw.Stats, error) {
			return v.deps.Client.RouteStats(ctx, v.id)
		},
		Apply:   v.applySource,
		LogFunc: poller.LogFunc(v.deps.logf),
	})
	v.sinkPoll = poller.New(poller.Config[[]srtgw.DestinationStat]{
		Name:     "route " + string(v.id) + " destination stats",
		Interval: v.deps.interval(v.deps.Poll.DestinationStats, defaultStatsInterval),
		Policy:   v.deps.Policy,
		Fetch: func(ctx context.Context) ([]srtgw.DestinationStat, error) {
			return v.deps.Client.DestinationStats(ctx, v.id)
		},
		Apply:   v.applySinks,
		LogFunc: poller.LogFunc(v.deps.logf),
	})
	v.srcPoll.Start(ctx)
	v.sinkPoll.Start(ctx)
}

func (v *RouteView) isStarted() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.route != nil && v.route.IsStarted()
}

func (v *RouteView) applySource(stats srtgw.Stats, err error) {
	v.mu.Lock()
	switch {
	case err != nil:
		v.statsErr = ErrorMessage(err)
	case stats == nil:
		v.source = nil
		v.statsErr = ""
	default:
		sum := stats.Summary()
		v.source = &sum
		v.statsErr = ""
		v.statsAt = time.Now()
	}
	v.mu.Unlock()
	v.publish()
}

// Destination stat failures keep the previous figures.
func (v *RouteView) applySinks(stats []srtgw.DestinationStat, err error) {
	if err != nil {
		return
	}
	v.mu.Lock()
	if stats != nil {
		v.sinkStats = stats
		v.statsAt = time.Now()
	}
	v.mu.Unlock()
	v.publish()
}

func (v *RouteView) publish() {
	v.pollMu.Lock()
	fn := v.onUpdate
	v.pollMu.Unlock()
	if fn != nil {
		fn(v.Snapshot())
	}
}

// StopPolling stops the statistics pollers. Results still in flight are
// discarded.
func (v *RouteView) StopPolling() {
	v.pollMu.Lock()
	defer v.pollMu.Unlock()
	v.stopLocked()
	v.onUpdate = nil
}

func (v *RouteView) stopLocked() {
	if v.srcPoll != nil {
		v.srcPoll.Stop()
		v.srcPoll = nil
	}
	if v.sinkPoll != nil {
		v.sinkPoll.Stop()
		v.sinkPoll = nil
	}
	v.mu.Lock()
	v.source = nil
	v.sinkStats = nil
	v.mu.Unlock()
}
