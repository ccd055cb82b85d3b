package www

import (
	"net/http"
	"strconv"

	"github.com/visual-alchemy/blackgate-project/views"
)

func detailedParam(r *http.Request) bool {
	d, _ := strconv.ParseBool(r.URL.Query().Get("detailed"))
	return d
}

func (h *Handlers) handleNodes(w http.ResponseWriter, r *http.Request) {
	v := views.NewNodesView(h.engine.Deps(), &flashNotifier{})
	if err := v.Load(r.Context()); err != nil {
		h.pageError(w, r, err)
		return
	}
	h.renderPage(w, r, "nodes", v.Nodes())
}

func (h *Handlers) handlePipelines(w http.ResponseWriter, r *http.Request) {
	v := views.NewPipelinesView(h.engine.Deps(), &flashNotifier{}, detailedParam(r))
	if err := v.Load(r.Context()); err != nil {
		h.pageError(w, r, err)
		return
	}
	h.renderPage(w, r, "pipelines", v.Pipelines())
}

func (h *Handlers) handlePipelineKill(w http.ResponseWriter, r *http.Request) {
	pid, err := strconv.Atoi(chiParam(r, "pid"))
	if err != nil || pid <= 0 {
		h.jsonError(w, "invalid pid", http.StatusBadRequest)
		return
	}
	n := &flashNotifier{}
	v := views.NewPipelinesView(h.engine.Deps(), n, false)
	// The list names the killed command in the audit trail; a failed load
	// does not block the kill.
	v.Load(r.Context())
	err = v.Kill(r.Context(), pid)
	h.respond(w, r, n, nil, err)
}
