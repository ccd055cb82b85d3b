package messaging

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/visual-alchemy/blackgate-project/config"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	src := Address{Role: RoleConsole, Station: "console-a"}
	env, err := NewEnvelope(TypeRouteStatusChanged, src, &RouteStatusChanged{
		RouteID:   "42",
		Name:      "cam-1",
		OldStatus: "stopped",
		NewStatus: "started",
		Actor:     "admin",
	})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if env.Version != Version {
		t.Errorf("version = %d, want %d", env.Version, Version)
	}
	if env.ID == "" {
		t.Error("ID should not be empty")
	}
	if got := env.ExpiresAt.Sub(env.Timestamp); got != 10*time.Minute {
		t.Errorf("ttl = %v, want 10m", got)
	}

	data, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if decoded.ID != env.ID || decoded.Src != src {
		t.Errorf("decoded = %+v, want id %q src %+v", decoded, env.ID, src)
	}
	var p RouteStatusChanged
	if err := decoded.DecodePayload(&p); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if p.NewStatus != "started" || p.Actor != "admin" {
		t.Errorf("payload = %+v", p)
	}
}

func TestWireFormatKeys(t *testing.T) {
	env, _ := NewEnvelope(TypePipelineKilled, Address{Role: RoleConsole, Station: "s"}, &PipelineKilled{PID: 31})
	data, _ := env.Encode()
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, k := range []string{"v", "type", "id", "src", "ts", "exp", "p"} {
		if _, ok := m[k]; !ok {
			t.Errorf("missing key %q in %s", k, data)
		}
	}
}

func TestDefaultTTLFor(t *testing.T) {
	if got := DefaultTTLFor(TypeSessionExpired); got != 5*time.Minute {
		t.Errorf("session ttl = %v, want 5m", got)
	}
	if got := DefaultTTLFor("unknown"); got != FallbackTTL {
		t.Errorf("fallback ttl = %v, want %v", got, FallbackTTL)
	}
}

type testHandler struct {
	NoOpHandler
	routeChanged *RouteChanged
	killed       *PipelineKilled
}

func (h *testHandler) HandleRouteChanged(_ *Envelope, p *RouteChanged)     { h.routeChanged = p }
func (h *testHandler) HandlePipelineKilled(_ *Envelope, p *PipelineKilled) { h.killed = p }

func encoded(t *testing.T, msgType, station string, payload any) []byte {
	t.Helper()
	env, err := NewEnvelope(msgType, Address{Role: RoleConsole, Station: station}, payload)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	data, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return data
}

func TestIngestorDispatch(t *testing.T) {
	h := &testHandler{}
	ing := NewIngestor(h, nil)
	ing.HandleRaw(encoded(t, TypeRouteChanged, "a", &RouteChanged{RouteID: "42", Action: "deleted"}))
	ing.HandleRaw(encoded(t, TypePipelineKilled, "a", &PipelineKilled{PID: 31}))

	if h.routeChanged == nil || h.routeChanged.RouteID != "42" {
		t.Errorf("route changed = %+v", h.routeChanged)
	}
	if h.killed == nil || h.killed.PID != 31 {
		t.Errorf("killed = %+v", h.killed)
	}
}

func TestIngestorStationFilter(t *testing.T) {
	h := &testHandler{}
	ing := NewIngestor(h, StationFilter("a"))
	ing.HandleRaw(encoded(t, TypeRouteChanged, "b", &RouteChanged{RouteID: "1"}))
	if h.routeChanged != nil {
		t.Error("handler called for another station")
	}
	ing.HandleRaw(encoded(t, TypeRouteChanged, "a", &RouteChanged{RouteID: "2"}))
	if h.routeChanged == nil || h.routeChanged.RouteID != "2" {
		t.Errorf("route changed = %+v", h.routeChanged)
	}
}

func TestIngestorDropsExpired(t *testing.T) {
	h := &testHandler{}
	ing := NewIngestor(h, nil)
	env, _ := NewEnvelope(TypeRouteChanged, Address{Role: RoleConsole}, &RouteChanged{RouteID: "1"})
	env.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	data, _ := env.Encode()
	ing.HandleRaw(data)
	if h.routeChanged != nil {
		t.Error("handler called for expired message")
	}
}

func TestIngestorIgnoresGarbage(t *testing.T) {
	h := &testHandler{}
	NewIngestor(h, nil).HandleRaw([]byte("not json"))
	if h.routeChanged != nil || h.killed != nil {
		t.Error("handler called for garbage")
	}
}

func TestClientWithoutBackend(t *testing.T) {
	c := NewClient(&config.MessagingConfig{})
	if c.Enabled() {
		t.Error("Enabled() = true without backend")
	}
	if err := c.Connect(); err != nil {
		t.Errorf("Connect: %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true without backend")
	}
	if err := c.Publish("t", []byte("x")); err == nil {
		t.Error("Publish without backend should fail")
	}
	c.Close()
}

func TestClientUnknownBackend(t *testing.T) {
	c := NewClient(&config.MessagingConfig{Backend: "carrier-pigeon"})
	if err := c.Connect(); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestKafkaClientNeedsBrokers(t *testing.T) {
	c := NewClient(&config.MessagingConfig{Backend: BackendKafka})
	if err := c.Connect(); err == nil {
		t.Error("expected error without brokers")
	}
	c = NewClient(&config.MessagingConfig{Backend: BackendKafka, Kafka: config.KafkaConfig{Brokers: []string{"127.0.0.1:9"}}})
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !c.IsConnected() {
		t.Error("kafka writer not initialized")
	}
	c.Close()
}
