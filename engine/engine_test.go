package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/visual-alchemy/blackgate-project/config"
	"github.com/visual-alchemy/blackgate-project/gateway"
	"github.com/visual-alchemy/blackgate-project/messaging"
	"github.com/visual-alchemy/blackgate-project/metrics"
	"github.com/visual-alchemy/blackgate-project/session"
	"github.com/visual-alchemy/blackgate-project/srtgw"
	"github.com/visual-alchemy/blackgate-project/store"
	"github.com/visual-alchemy/blackgate-project/views"
)

func quiet(string, ...any) {}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type testEnv struct {
	eng     *Engine
	db      *store.DB
	store   *session.Store
	metrics *metrics.Registry
	navs    *atomic.Int32
}

func newTestEngine(t *testing.T, handler http.HandlerFunc) *testEnv {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.Defaults()
	cfg.API.BaseURL = srv.URL
	cfg.API.Timeout = 5 * time.Second
	cfg.Messaging.Backend = ""

	env := &testEnv{
		db:      testDB(t),
		store:   session.New(session.NewMemoryBackend()),
		metrics: metrics.New(),
		navs:    &atomic.Int32{},
	}
	env.eng = New(Config{
		AppConfig: cfg,
		DB:        env.db,
		Session:   env.store,
		Metrics:   env.metrics,
		Navigator: gateway.NavigatorFunc(func() { env.navs.Add(1) }),
		LogFunc:   quiet,
	})
	env.eng.wireEventHandlers()
	return env
}

func (env *testEnv) audit(t *testing.T) []*store.AuditEntry {
	t.Helper()
	entries, err := env.db.ListAuditLog(50)
	if err != nil {
		t.Fatalf("ListAuditLog: %v", err)
	}
	return entries
}

func TestEventBusFilters(t *testing.T) {
	bus := NewEventBus()
	var all, routes int
	bus.Subscribe(func(Event) { all++ })
	id := bus.SubscribeTypes(func(Event) { routes++ }, EventRouteChanged)

	bus.Emit(Event{Type: EventRouteChanged})
	bus.Emit(Event{Type: EventPipelineKilled})
	if all != 2 || routes != 1 {
		t.Errorf("all = %d, routes = %d; want 2, 1", all, routes)
	}

	bus.Unsubscribe(id)
	bus.Emit(Event{Type: EventRouteChanged})
	if routes != 1 {
		t.Errorf("routes = %d after unsubscribe, want 1", routes)
	}
}

func TestEventTypeNamesMatchMessaging(t *testing.T) {
	tests := []struct {
		typ  EventType
		want string
	}{
		{EventRouteStatusChanged, messaging.TypeRouteStatusChanged},
		{EventRouteChanged, messaging.TypeRouteChanged},
		{EventDestinationChanged, messaging.TypeDestinationChanged},
		{EventPipelineKilled, messaging.TypePipelineKilled},
		{EventBackupRestored, messaging.TypeBackupRestored},
		{EventSessionExpired, messaging.TypeSessionExpired},
	}
	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.typ, got, tt.want)
		}
	}
}

func TestLoginAndForcedExpiry(t *testing.T) {
	env := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/login":
			writeJSON(w, http.StatusOK, map[string]any{"token": "abc123", "user": "admin"})
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	})
	var expired []SessionExpiredEvent
	env.eng.Events.SubscribeTypes(func(evt Event) {
		expired = append(expired, evt.Payload.(SessionExpiredEvent))
	}, EventSessionExpired)

	ctx := context.Background()
	if _, err := env.eng.Login(ctx, "admin", "secret"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := env.eng.Client().ListRoutes(ctx); !views.IsAuthError(err) {
		t.Fatalf("err = %v, want auth error", err)
	}

	if len(expired) != 1 || expired[0].User != "admin" || expired[0].Reason != messaging.ReasonUnauthorized {
		t.Errorf("expired = %+v", expired)
	}
	if env.navs.Load() != 1 {
		t.Errorf("navigations = %d, want 1", env.navs.Load())
	}
	if got := testutil.ToFloat64(env.metrics.SessionsExpired); got != 1 {
		t.Errorf("sessions expired = %v, want 1", got)
	}
	if got := testutil.ToFloat64(env.metrics.APIResponses.WithLabelValues("GET", "4xx")); got != 1 {
		t.Errorf("4xx responses = %v, want 1", got)
	}

	entries := env.audit(t)
	if len(entries) != 2 || entries[0].Action != messaging.ReasonUnauthorized || entries[1].Action != "login" {
		for _, e := range entries {
			t.Logf("audit: %+v", e)
		}
		t.Errorf("audit entries = %d, want unauthorized then login", len(entries))
	}
}

func TestLogoutReason(t *testing.T) {
	env := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"token": "abc123", "user": map[string]any{"name": "ops"}})
	})
	var got SessionExpiredEvent
	env.eng.Events.SubscribeTypes(func(evt Event) {
		got = evt.Payload.(SessionExpiredEvent)
	}, EventSessionExpired)

	if _, err := env.eng.Login(context.Background(), "ops", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	env.eng.Logout()
	if got.Reason != messaging.ReasonLogout || got.User != "ops" {
		t.Errorf("event = %+v, want logout by ops", got)
	}
	if env.store.IsAuthenticated() {
		t.Error("session still authenticated after logout")
	}
	if n := testutil.ToFloat64(env.metrics.SessionsExpired); n != 0 {
		t.Errorf("sessions expired = %v, want 0 for logout", n)
	}
}

func TestViewMutationsAreAudited(t *testing.T) {
	env := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/routes":
			writeJSON(w, http.StatusOK, map[string]any{"data": []any{
				map[string]any{"id": 42, "name": "cam-1", "status": "stopped"},
			}})
		case "/api/routes/42/start":
			writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"id": 42, "name": "cam-1", "status": "started"}})
		default:
			http.NotFound(w, r)
		}
	})
	env.store.SetToken("abc123")
	env.store.SetUser(session.UserName("admin"))

	v := views.NewRoutesView(env.eng.Deps(), nil)
	ctx := context.Background()
	if err := v.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := v.SetStatus(ctx, "42", srtgw.ActionStart); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	entries, err := env.db.ListEntityAudit("route", "42")
	if err != nil {
		t.Fatalf("ListEntityAudit: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Action != "status" || e.OldValue != "stopped" || e.NewValue != "started" || e.Actor != "admin" {
		t.Errorf("audit = %+v", e)
	}
	if got := testutil.ToFloat64(env.metrics.Events.WithLabelValues(messaging.TypeRouteStatusChanged)); got != 1 {
		t.Errorf("events counter = %v, want 1", got)
	}
}

func TestRecordRouteSnapshot(t *testing.T) {
	env := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {})
	route := &srtgw.Route{ID: "42", Status: "started"}
	env.eng.RecordRouteSnapshot(views.RouteSnapshot{Route: route, Source: &srtgw.SourceSummary{BitrateMbps: 5}})
	if got := testutil.ToFloat64(env.metrics.RouteBitrate.WithLabelValues("42")); got != 5 {
		t.Errorf("bitrate = %v, want 5", got)
	}
	env.eng.Events.Emit(Event{Type: EventRouteStatusChanged, Payload: RouteStatusChangedEvent{RouteID: "42", OldStatus: "started", NewStatus: "stopped"}})
	if got := testutil.CollectAndCount(env.metrics.RouteBitrate); got != 0 {
		t.Errorf("bitrate series = %d after stop, want 0", got)
	}
}

func TestMetricsPollersWaitForLogin(t *testing.T) {
	var calls atomic.Int32
	env := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		switch r.URL.Path {
		case "/api/nodes":
			writeJSON(w, http.StatusOK, []map[string]any{{"host": "gw-1", "cpu": 10.0, "status": "self"}})
		case "/api/system/pipelines":
			writeJSON(w, http.StatusOK, []map[string]any{{"pid": 1, "cpu": "2%"}})
		default:
			writeJSON(w, http.StatusOK, map[string]any{"data": []any{}})
		}
	})
	env.eng.cfg.Poll.Nodes = 10 * time.Millisecond
	env.eng.cfg.Poll.Pipelines = 10 * time.Millisecond
	env.eng.cfg.Poll.Dashboard = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.eng.startMetricsPollers(ctx)
	defer env.eng.Stop()

	time.Sleep(50 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Fatalf("%d requests before login", n)
	}
	if env.navs.Load() != 0 {
		t.Errorf("navigated to login %d times", env.navs.Load())
	}

	env.store.SetToken("abc123")
	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(env.metrics.Pipelines) != 1 || testutil.CollectAndCount(env.metrics.NodeCPU) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("metrics not updated after login")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestOperatorEventsQueueInOutbox(t *testing.T) {
	cfg := config.Defaults()
	cfg.Messaging.Backend = messaging.BackendKafka
	cfg.Messaging.Kafka.Brokers = []string{"127.0.0.1:1"}
	cfg.Messaging.OutboxDrainInterval = time.Hour
	db := testDB(t)

	// Never connected, so every publish fails and messages stay queued.
	eng := New(Config{
		AppConfig: cfg,
		DB:        db,
		Session:   session.New(session.NewMemoryBackend()),
		MsgClient: messaging.NewClient(&cfg.Messaging),
		LogFunc:   quiet,
	})
	eng.Start()
	eng.Events.Emit(Event{Type: EventPipelineKilled, Payload: PipelineKilledEvent{PID: 9, Command: "gst", Actor: "admin"}})
	eng.Events.Emit(Event{Type: EventMessagingConnected, Payload: ConnectionEvent{Detail: "ignored"}})
	eng.Stop()

	pending, err := db.ListPendingOutbox(10)
	if err != nil {
		t.Fatalf("ListPendingOutbox: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	msg := pending[0]
	if msg.Topic != cfg.Messaging.EventsTopic || msg.MsgType != messaging.TypePipelineKilled {
		t.Errorf("message = %s %s", msg.Topic, msg.MsgType)
	}
	if msg.Retries != 1 {
		t.Errorf("retries = %d, want 1 after the flush on stop", msg.Retries)
	}
	env, err := messaging.DecodeEnvelope(msg.Payload)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	var p messaging.PipelineKilled
	if err := env.DecodePayload(&p); err != nil || p.PID != 9 {
		t.Errorf("payload = %+v, %v", p, err)
	}
	if env.Src.Station != cfg.Messaging.StationID {
		t.Errorf("src station = %q", env.Src.Station)
	}
}
