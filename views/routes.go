package views

import (
	"context"
	"fmt"
	"sync"

	"github.com/visual-alchemy/blackgate-project/srtgw"
)

// RoutesView is the route list.
type RoutesView struct {
	deps *Deps
	n    Notifier

	mu     sync.RWMutex
	routes []srtgw.Route
}

func NewRoutesView(d *Deps, n Notifier) *RoutesView {
	return &RoutesView{deps: d, n: orNop(n)}
}

func (v *RoutesView) Load(ctx context.Context) error {
	routes, err := v.deps.Client.ListRoutes(ctx)
	if err != nil {
		notifyFailure(v.n, "Failed to fetch routes", err)
		return err
	}
	v.mu.Lock()
	v.routes = routes
	v.mu.Unlock()
	return nil
}

// Routes returns a copy of the loaded list.
func (v *RoutesView) Routes() []srtgw.Route {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]srtgw.Route(nil), v.routes...)
}

func (v *RoutesView) find(id srtgw.ID) (int, bool) {
	for i := range v.routes {
		if v.routes[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

// SetStatus starts or stops one route of the list and updates its row.
func (v *RoutesView) SetStatus(ctx context.Context, id srtgw.ID, action string) error {
	v.mu.RLock()
	i, ok := v.find(id)
	var route srtgw.Route
	if ok {
		route = v.routes[i]
	}
	v.mu.RUnlock()
	if !ok {
		return fmt.Errorf("views: route %s not loaded", id)
	}

	status, err := changeStatus(ctx, v.deps, v.n, route, action)
	v.mu.Lock()
	if i, ok := v.find(id); ok {
		v.routes[i].Status = status
	}
	v.mu.Unlock()
	return err
}

// Delete removes a route and drops it from the list.
func (v *RoutesView) Delete(ctx context.Context, id srtgw.ID) error {
	name := string(id)
	v.mu.RLock()
	if i, ok := v.find(id); ok {
		name = v.routes[i].Name
	}
	v.mu.RUnlock()

	if err := deleteRoute(ctx, v.deps, v.n, id, name); err != nil {
		return err
	}
	v.mu.Lock()
	if i, ok := v.find(id); ok {
		v.routes = append(v.routes[:i], v.routes[i+1:]...)
	}
	v.mu.Unlock()
	return nil
}

func deleteRoute(ctx context.Context, d *Deps, n Notifier, id srtgw.ID, name string) error {
	if _, err := d.Client.DeleteRoute(ctx, id); err != nil {
		notifyFailure(n, "Failed to delete route", err)
		return err
	}
	d.emitter().EmitRouteChanged(id, name, ActionDeleted, d.actor())
	n.Notify(Notification{Level: LevelSuccess, Message: "Route deleted successfully"})
	return nil
}
