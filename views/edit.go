package views

import (
	"context"
	"errors"

	"github.com/visual-alchemy/blackgate-project/srtgw"
)

// NewID is the path segment the console uses for "create" forms.
const NewID srtgw.ID = "new"

// SourceForm is the route source edit screen. An ID of NewID creates a route.
type SourceForm struct {
	deps *Deps
	n    Notifier
	id   srtgw.ID

	Input  srtgw.RouteInput
	Errors *srtgw.ValidationError
}

func NewSourceForm(d *Deps, n Notifier, id srtgw.ID) *SourceForm {
	return &SourceForm{deps: d, n: orNop(n), id: id, Input: srtgw.NewRouteInput()}
}

func (f *SourceForm) IsNew() bool { return f.id == "" || f.id == NewID }

// ID is the route being edited. After saving a new route it is the assigned ID.
func (f *SourceForm) ID() srtgw.ID { return f.id }

// Load fills Input from the backend. New forms keep the defaults.
func (f *SourceForm) Load(ctx context.Context) error {
	if f.IsNew() {
		return nil
	}
	route, err := f.deps.Client.GetRoute(ctx, f.id)
	if err != nil {
		notifyFailure(f.n, "Failed to fetch route data", err)
		return err
	}
	if route != nil {
		f.Input = route.Input()
	}
	return nil
}

// Save validates and sends Input. It returns the saved route, which for a
// new form carries the assigned ID.
func (f *SourceForm) Save(ctx context.Context) (*srtgw.Route, error) {
	f.Errors = nil
	var (
		route  *srtgw.Route
		err    error
		action = ActionUpdated
	)
	if f.IsNew() {
		action = ActionCreated
		route, err = f.deps.Client.CreateRoute(ctx, f.Input)
	} else {
		route, err = f.deps.Client.UpdateRoute(ctx, f.id, f.Input)
	}
	if err != nil {
		var verr *srtgw.ValidationError
		if errors.As(err, &verr) {
			f.Errors = verr
			f.n.Notify(Notification{Level: LevelError, Message: "Please check the form for errors"})
			return nil, err
		}
		notifyFailure(f.n, "Failed to save route", err)
		return nil, err
	}

	id, name := f.id, f.Input.Name
	if route != nil {
		if route.ID != "" {
			id = route.ID
		}
		if route.Name != "" {
			name = route.Name
		}
	}
	if id != "" && id != NewID {
		f.id = id
	}
	f.deps.emitter().EmitRouteChanged(id, name, action, f.deps.actor())
	f.n.Notify(Notification{Level: LevelSuccess, Message: "Route saved successfully"})
	return route, nil
}

// DestinationForm is the destination edit screen of one route.
type DestinationForm struct {
	deps    *Deps
	n       Notifier
	routeID srtgw.ID
	id      srtgw.ID

	Input  srtgw.DestinationInput
	Errors *srtgw.ValidationError
}

func NewDestinationForm(d *Deps, n Notifier, routeID, id srtgw.ID) *DestinationForm {
	return &DestinationForm{deps: d, n: orNop(n), routeID: routeID, id: id, Input: srtgw.NewDestinationInput()}
}

func (f *DestinationForm) IsNew() bool { return f.id == "" || f.id == NewID }

func (f *DestinationForm) Load(ctx context.Context) error {
	if f.IsNew() {
		return nil
	}
	dest, err := f.deps.Client.GetDestination(ctx, f.routeID, f.id)
	if err != nil {
		notifyFailure(f.n, "Failed to fetch destination data", err)
		return err
	}
	if dest != nil {
		f.Input = dest.Input()
	}
	return nil
}

func (f *DestinationForm) Save(ctx context.Context) (*srtgw.Destination, error) {
	f.Errors = nil
	var (
		dest   *srtgw.Destination
		err    error
		action = ActionUpdated
	)
	if f.IsNew() {
		action = ActionCreated
		dest, err = f.deps.Client.CreateDestination(ctx, f.routeID, f.Input)
	} else {
		dest, err = f.deps.Client.UpdateDestination(ctx, f.routeID, f.id, f.Input)
	}
	if err != nil {
		var verr *srtgw.ValidationError
		if errors.As(err, &verr) {
			f.Errors = verr
			f.n.Notify(Notification{Level: LevelError, Message: "Please check the form for errors"})
			return nil, err
		}
		notifyFailure(f.n, "Failed to save destination", err)
		return nil, err
	}

	id, name := f.id, f.Input.Name
	if dest != nil && dest.ID != "" {
		id = dest.ID
	}
	f.deps.emitter().EmitDestinationChanged(f.routeID, id, name, action, f.deps.actor())
	f.n.Notify(Notification{Level: LevelSuccess, Message: "Destination saved successfully"})
	return dest, nil
}
