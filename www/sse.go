package www

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/visual-alchemy/blackgate-project/engine"
	"github.com/visual-alchemy/blackgate-project/srtgw"
	"github.com/visual-alchemy/blackgate-project/views"
)

const keepaliveInterval = 30 * time.Second

type SSEEvent struct {
	Event string
	Data  string
}

// EventHub fans engine events out to every connected /events client.
type EventHub struct {
	mu        sync.RWMutex
	clients   map[chan SSEEvent]struct{}
	broadcast chan SSEEvent
	stopChan  chan struct{}
}

func NewEventHub() *EventHub {
	return &EventHub{
		clients:   make(map[chan SSEEvent]struct{}),
		broadcast: make(chan SSEEvent, 256),
		stopChan:  make(chan struct{}),
	}
}

func (h *EventHub) Start() {
	go h.run()
}

func (h *EventHub) Stop() {
	select {
	case h.stopChan <- struct{}{}:
	default:
	}
}

func (h *EventHub) run() {
	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-h.stopChan:
			return
		case evt := <-h.broadcast:
			h.fanOut(evt)
		case <-keepalive.C:
			h.fanOut(SSEEvent{Event: "keepalive", Data: "ping"})
		}
	}
}

func (h *EventHub) fanOut(evt SSEEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients {
		select {
		case ch <- evt:
		default:
			// drop if full
		}
	}
}

func (h *EventHub) Broadcast(event, data string) {
	select {
	case h.broadcast <- SSEEvent{Event: event, Data: data}:
	default:
	}
}

func (h *EventHub) AddClient() chan SSEEvent {
	ch := make(chan SSEEvent, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *EventHub) RemoveClient(ch chan SSEEvent) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SetupEngineListeners wires engine events to SSE broadcasts. The SSE event
// name is the engine event name, the data its JSON payload.
func (h *EventHub) SetupEngineListeners(eng *engine.Engine) {
	eng.Events.SubscribeTypes(func(evt engine.Event) {
		data, err := json.Marshal(evt.Payload)
		if err != nil {
			log.Printf("sse: encode %s: %v", evt.Type, err)
			return
		}
		h.Broadcast(evt.Type.String(), string(data))
	},
		engine.EventRouteStatusChanged,
		engine.EventRouteChanged,
		engine.EventDestinationChanged,
		engine.EventPipelineKilled,
		engine.EventBackupRestored,
		engine.EventSessionExpired,
	)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		h.Broadcast("system-status", `{"messaging":"connected"}`)
	}, engine.EventMessagingConnected)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		h.Broadcast("system-status", `{"messaging":"disconnected"}`)
	}, engine.EventMessagingDisconnected)
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, evt SSEEvent) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Event, evt.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func startSSE(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return flusher, true
}

// SSEHandler serves the SSE endpoint.
func (h *EventHub) SSEHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := startSSE(w)
	if !ok {
		return
	}

	ch := h.AddClient()
	defer h.RemoveClient(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-ch:
			if err := writeEvent(w, flusher, evt); err != nil {
				log.Printf("sse: write error: %v", err)
				return
			}
		}
	}
}

// viewStream carries the updates of one polling view to one SSE client.
type viewStream struct {
	ch chan SSEEvent
}

func newViewStream() *viewStream {
	return &viewStream{ch: make(chan SSEEvent, 16)}
}

// send never blocks; a slow client misses updates.
func (s *viewStream) send(event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("sse: encode %s: %v", event, err)
		return
	}
	select {
	case s.ch <- SSEEvent{Event: event, Data: string(data)}:
	default:
	}
}

func (s *viewStream) notifier() views.Notifier {
	return views.NotifierFunc(func(n views.Notification) { s.send("notification", n) })
}

// serveStream writes the stream until the client leaves or the gateway
// session ends. stop halts the view's polling.
func (h *Handlers) serveStream(w http.ResponseWriter, r *http.Request, s *viewStream, stop func()) {
	defer stop()
	flusher, ok := startSSE(w)
	if !ok {
		return
	}

	expired := make(chan struct{})
	var once sync.Once
	sub := h.engine.Events.SubscribeTypes(func(engine.Event) {
		once.Do(func() { close(expired) })
	}, engine.EventSessionExpired)
	defer h.engine.Events.Unsubscribe(sub)

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		var evt SSEEvent
		select {
		case <-r.Context().Done():
			return
		case <-expired:
			writeEvent(w, flusher, SSEEvent{Event: "session-expired", Data: `{"redirect":"` + views.PageLogin + `"}`})
			return
		case <-keepalive.C:
			evt = SSEEvent{Event: "keepalive", Data: "ping"}
		case evt = <-s.ch:
		}
		if err := writeEvent(w, flusher, evt); err != nil {
			log.Printf("sse: write error: %v", err)
			return
		}
	}
}

func (h *Handlers) streamRoute(w http.ResponseWriter, r *http.Request) {
	s := newViewStream()
	v := views.NewRouteView(h.engine.Deps(), s.notifier(), idParam(r, "id"))
	if err := v.Load(r.Context()); err != nil {
		h.pageError(w, r, err)
		return
	}
	s.send("route", v.Snapshot())
	v.StartPolling(r.Context(), func(snap views.RouteSnapshot) {
		h.engine.RecordRouteSnapshot(snap)
		s.send("route", snap)
	})
	h.serveStream(w, r, s, v.StopPolling)
}

func (h *Handlers) streamDashboard(w http.ResponseWriter, r *http.Request) {
	s := newViewStream()
	v := views.NewDashboardView(h.engine.Deps(), s.notifier())
	v.StartPolling(r.Context(), func(d views.Dashboard, err error) {
		if err != nil {
			if !views.IsAuthError(err) {
				s.send("notification", views.Notification{Level: views.LevelError, Message: "Failed to fetch dashboard data: " + views.ErrorMessage(err)})
			}
			return
		}
		s.send("dashboard", d)
	})
	h.serveStream(w, r, s, v.StopPolling)
}

func (h *Handlers) streamNodes(w http.ResponseWriter, r *http.Request) {
	s := newViewStream()
	v := views.NewNodesView(h.engine.Deps(), s.notifier())
	v.StartPolling(r.Context(), func(nodes []srtgw.Node, err error) {
		if err == nil {
			s.send("nodes", nodes)
		}
	})
	h.serveStream(w, r, s, v.StopPolling)
}

func (h *Handlers) streamPipelines(w http.ResponseWriter, r *http.Request) {
	s := newViewStream()
	v := views.NewPipelinesView(h.engine.Deps(), s.notifier(), detailedParam(r))
	v.StartPolling(r.Context(), func(p []srtgw.Pipeline, err error) {
		if err == nil {
			s.send("pipelines", p)
		}
	})
	h.serveStream(w, r, s, v.StopPolling)
}
