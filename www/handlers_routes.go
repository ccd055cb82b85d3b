package www

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/visual-alchemy/blackgate-project/srtgw"
	"github.com/visual-alchemy/blackgate-project/store"
	"github.com/visual-alchemy/blackgate-project/views"
)

func (h *Handlers) handleRoutes(w http.ResponseWriter, r *http.Request) {
	v := views.NewRoutesView(h.engine.Deps(), &flashNotifier{})
	if err := v.Load(r.Context()); err != nil {
		h.pageError(w, r, err)
		return
	}
	h.renderPage(w, r, "routes", v.Routes())
}

type routePage struct {
	views.RouteSnapshot
	History []*store.AuditEntry `json:"history,omitempty"`
}

func (h *Handlers) handleRoute(w http.ResponseWriter, r *http.Request) {
	id := idParam(r, "id")
	v := views.NewRouteView(h.engine.Deps(), &flashNotifier{}, id)
	if err := v.Load(r.Context()); err != nil {
		h.pageError(w, r, err)
		return
	}
	page := routePage{RouteSnapshot: v.Snapshot()}
	if db := h.engine.DB(); db != nil {
		history, err := db.ListEntityAudit("route", id.String())
		if err != nil {
			log.Printf("www: route %s history: %v", id, err)
		}
		page.History = history
	}
	h.renderPage(w, r, "route", page, page.Route.Name)
}

func (h *Handlers) handleRouteStatus(w http.ResponseWriter, r *http.Request) {
	n := &flashNotifier{}
	v := views.NewRouteView(h.engine.Deps(), n, idParam(r, "id"))
	err := v.Load(r.Context())
	if err == nil {
		switch action := chiParam(r, "action"); action {
		case "toggle":
			err = v.Toggle(r.Context())
		default:
			err = v.SetStatus(r.Context(), action)
		}
	}
	h.respond(w, r, n, map[string]string{"status": v.Status()}, err)
}

func (h *Handlers) handleRouteDelete(w http.ResponseWriter, r *http.Request) {
	n := &flashNotifier{}
	v := views.NewRouteView(h.engine.Deps(), n, idParam(r, "id"))
	err := v.Load(r.Context())
	if err == nil {
		err = v.Delete(r.Context())
	}
	h.respond(w, r, n, nil, err)
}

type formPage[T any] struct {
	ID    srtgw.ID `json:"id"`
	IsNew bool     `json:"is_new"`
	Input T        `json:"input"`
}

func (h *Handlers) handleRouteEdit(w http.ResponseWriter, r *http.Request) {
	f := views.NewSourceForm(h.engine.Deps(), &flashNotifier{}, idParam(r, "id"))
	if err := f.Load(r.Context()); err != nil {
		h.pageError(w, r, err)
		return
	}
	name := ""
	if !f.IsNew() {
		name = f.Input.Name
	}
	h.renderPage(w, r, "route-edit", formPage[srtgw.RouteInput]{ID: f.ID(), IsNew: f.IsNew(), Input: f.Input}, name)
}

func (h *Handlers) handleRouteSave(w http.ResponseWriter, r *http.Request) {
	n := &flashNotifier{}
	f := views.NewSourceForm(h.engine.Deps(), n, idParam(r, "id"))
	if err := json.NewDecoder(r.Body).Decode(&f.Input); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	route, err := f.Save(r.Context())
	h.respond(w, r, n, route, err)
}

func (h *Handlers) handleDestinationEdit(w http.ResponseWriter, r *http.Request) {
	routeID := idParam(r, "routeId")
	deps := h.engine.Deps()
	f := views.NewDestinationForm(deps, &flashNotifier{}, routeID, idParam(r, "destId"))
	if err := f.Load(r.Context()); err != nil {
		h.pageError(w, r, err)
		return
	}
	routeName := ""
	if route, err := deps.Client.GetRoute(r.Context(), routeID); err == nil && route != nil {
		routeName = route.Name
	}
	destName := ""
	if !f.IsNew() {
		destName = f.Input.Name
	}
	h.renderPage(w, r, "destination-edit",
		formPage[srtgw.DestinationInput]{ID: idParam(r, "destId"), IsNew: f.IsNew(), Input: f.Input},
		routeName, destName)
}

func (h *Handlers) handleDestinationSave(w http.ResponseWriter, r *http.Request) {
	n := &flashNotifier{}
	f := views.NewDestinationForm(h.engine.Deps(), n, idParam(r, "routeId"), idParam(r, "destId"))
	if err := json.NewDecoder(r.Body).Decode(&f.Input); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	dest, err := f.Save(r.Context())
	h.respond(w, r, n, dest, err)
}

func (h *Handlers) handleDestinationDelete(w http.ResponseWriter, r *http.Request) {
	n := &flashNotifier{}
	v := views.NewRouteView(h.engine.Deps(), n, idParam(r, "routeId"))
	err := v.Load(r.Context())
	if err == nil {
		err = v.DeleteDestination(r.Context(), idParam(r, "destId"))
	}
	h.respond(w, r, n, nil, err)
}
