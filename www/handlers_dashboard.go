package www

import (
	"net/http"
	"strconv"

	"github.com/visual-alchemy/blackgate-project/views"
)

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	msg := h.engine.MsgClient()
	h.jsonOK(w, map[string]any{
		"status":        "ok",
		"authenticated": h.engine.Session().IsAuthenticated(),
		"messaging":     msg != nil && msg.IsConnected(),
		"sse_clients":   h.eventHub.ClientCount(),
	})
}

func (h *Handlers) handleDashboard(w http.ResponseWriter, r *http.Request) {
	n := &flashNotifier{}
	v := views.NewDashboardView(h.engine.Deps(), n)
	if err := v.Load(r.Context()); err != nil {
		h.pageError(w, r, err)
		return
	}
	h.renderPage(w, r, "dashboard", v.Dashboard())
}

func (h *Handlers) handleAudit(w http.ResponseWriter, r *http.Request) {
	db := h.engine.DB()
	if db == nil {
		h.jsonError(w, "audit log not configured", http.StatusNotFound)
		return
	}
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := db.ListAuditLog(limit)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, entries)
}
