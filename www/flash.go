package www

import (
	"encoding/gob"
	"log"
	"net/http"
	"sync"

	"github.com/visual-alchemy/blackgate-project/views"
)

func init() {
	gob.Register(views.Notification{})
}

// flashNotifier collects the notifications of one request. They are returned
// inline and kept as cookie flashes for the next page the browser loads.
type flashNotifier struct {
	mu    sync.Mutex
	items []views.Notification
}

func (f *flashNotifier) Notify(n views.Notification) {
	f.mu.Lock()
	f.items = append(f.items, n)
	f.mu.Unlock()
}

func (f *flashNotifier) all() []views.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]views.Notification(nil), f.items...)
}

// saveFlashes stores notifications as flashes. Must run before the response
// body is written.
func (h *Handlers) saveFlashes(w http.ResponseWriter, r *http.Request, items []views.Notification) {
	if len(items) == 0 {
		return
	}
	session, err := h.sessions.Get(r, sessionName)
	if err != nil {
		return
	}
	for _, n := range items {
		session.AddFlash(n)
	}
	if err := session.Save(r, w); err != nil {
		log.Printf("www: save flashes: %v", err)
	}
}

// popFlashes returns and clears pending flashes. Must run before the response
// body is written.
func (h *Handlers) popFlashes(w http.ResponseWriter, r *http.Request) []views.Notification {
	session, err := h.sessions.Get(r, sessionName)
	if err != nil {
		return nil
	}
	raw := session.Flashes()
	if len(raw) == 0 {
		return nil
	}
	if err := session.Save(r, w); err != nil {
		log.Printf("www: clear flashes: %v", err)
	}
	out := make([]views.Notification, 0, len(raw))
	for _, v := range raw {
		if n, ok := v.(views.Notification); ok {
			out = append(out, n)
		}
	}
	return out
}
