package www

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"

	"github.com/visual-alchemy/blackgate-project/engine"
	"github.com/visual-alchemy/blackgate-project/views"
)

type Handlers struct {
	engine   *engine.Engine
	sessions *sessions.CookieStore
	eventHub *EventHub
}

func NewRouter(eng *engine.Engine) (http.Handler, func()) {
	hub := NewEventHub()
	hub.Start()
	hub.SetupEngineListeners(eng)

	h := &Handlers{
		engine:   eng,
		sessions: newSessionStore(eng.AppConfig().Web.SessionSecret),
		eventHub: hub,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// Public routes
	r.Get("/healthz", h.handleHealth)
	if m := eng.Metrics(); m != nil {
		r.Handle("/metrics", m.Handler())
	}
	r.Get(views.PageLogin, h.handleLoginPage)
	r.Post(views.PageLogin, h.handleLogin)
	r.Get("/logout", h.handleLogout)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Get(views.PageDashboard, h.handleDashboard)

		r.Get(views.PageRoutes, h.handleRoutes)
		r.Get(views.PageRoute, h.handleRoute)
		r.Post("/routes/{id}/{action:start|stop|restart|toggle}", h.handleRouteStatus)
		r.Post("/routes/{id}/delete", h.handleRouteDelete)
		r.Get(views.PageRouteEdit, h.handleRouteEdit)
		r.Post(views.PageRouteEdit, h.handleRouteSave)
		r.Get(views.PageDestinationEdit, h.handleDestinationEdit)
		r.Post(views.PageDestinationEdit, h.handleDestinationSave)
		r.Post("/routes/{routeId}/destinations/{destId}/delete", h.handleDestinationDelete)

		r.Get(views.PageSettings, h.handleSettings)
		r.Post("/settings/backup", h.handleBackupDownload)
		r.Post("/settings/export", h.handleExport)
		r.Post("/settings/restore", h.handleRestore)

		r.Get(views.PageSystemPipelines, h.handlePipelines)
		r.Post("/system/pipelines/{pid}/kill", h.handlePipelineKill)
		r.Get(views.PageSystemNodes, h.handleNodes)

		r.Get("/audit", h.handleAudit)

		// SSE
		r.Get("/events", hub.SSEHandler)
		r.Get("/events/dashboard", h.streamDashboard)
		r.Get("/events/routes/{id}", h.streamRoute)
		r.Get("/events/system/nodes", h.streamNodes)
		r.Get("/events/system/pipelines", h.streamPipelines)
	})

	stopFn := func() {
		hub.Stop()
	}

	return r, stopFn
}
