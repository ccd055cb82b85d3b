package engine

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/visual-alchemy/blackgate-project/config"
	"github.com/visual-alchemy/blackgate-project/gateway"
	"github.com/visual-alchemy/blackgate-project/messaging"
	"github.com/visual-alchemy/blackgate-project/metrics"
	"github.com/visual-alchemy/blackgate-project/poller"
	"github.com/visual-alchemy/blackgate-project/session"
	"github.com/visual-alchemy/blackgate-project/srtgw"
	"github.com/visual-alchemy/blackgate-project/store"
	"github.com/visual-alchemy/blackgate-project/views"
)

type LogFunc func(format string, args ...any)

// Config wires the engine. DB, MsgClient, Metrics and Navigator are optional.
type Config struct {
	AppConfig *config.Config
	DB        *store.DB
	Session   *session.Store
	MsgClient *messaging.Client
	Metrics   *metrics.Registry
	Navigator gateway.Navigator
	LogFunc   LogFunc
	// HTTPClient overrides the gateway's HTTP client.
	HTTPClient *http.Client
}

type Engine struct {
	cfg       *config.Config
	db        *store.DB
	session   *session.Store
	gw        *gateway.Gateway
	client    *srtgw.Client
	msgClient *messaging.Client
	metrics   *metrics.Registry
	policy    poller.Policy
	Events    *EventBus
	logFn     LogFunc

	drainer      *messaging.OutboxDrainer
	stopChan     chan struct{}
	stopOnce     sync.Once
	msgConnected bool
	pollers      []interface{ Stop() }
	cancel       context.CancelFunc

	userMu     sync.Mutex
	user       string
	loggingOut bool
}

var errNotLoggedIn = errors.New("engine: not logged in")

func New(c Config) *Engine {
	logFn := c.LogFunc
	if logFn == nil {
		logFn = log.Printf
	}
	policy, err := poller.ParsePolicy(c.AppConfig.Poll.Policy)
	if err != nil {
		logFn("engine: %v, using %s", err, policy)
	}
	e := &Engine{
		cfg:       c.AppConfig,
		db:        c.DB,
		session:   c.Session,
		msgClient: c.MsgClient,
		metrics:   c.Metrics,
		policy:    policy,
		Events:    NewEventBus(),
		logFn:     logFn,
		stopChan:  make(chan struct{}),
	}
	if u, err := c.Session.User(); err == nil {
		e.user = u.Name()
	}

	gwCfg := gateway.Config{
		BaseURL:    c.AppConfig.API.BaseURL,
		Timeout:    c.AppConfig.API.Timeout,
		Session:    c.Session,
		Navigator:  &expiryNavigator{bus: e.Events, next: c.Navigator, ending: e.sessionEnding},
		LogFunc:    gateway.LogFunc(logFn),
		HTTPClient: c.HTTPClient,
	}
	if c.Metrics != nil {
		gwCfg.Observer = c.Metrics
	}
	e.gw = gateway.New(gwCfg)
	e.client = srtgw.NewClient(e.gw)
	return e
}

func (e *Engine) Start() {
	e.wireEventHandlers()

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	if e.msgClient != nil && e.msgClient.Enabled() {
		if e.db != nil {
			e.drainer = messaging.NewOutboxDrainer(e.db, e.msgClient, e.cfg.Messaging.OutboxDrainInterval)
			e.drainer.SetLogFunc(e.logFn)
			e.drainer.Start()
		} else {
			e.logFn("engine: messaging needs a database for its outbox, events will not be published")
		}
		e.checkConnectionStatus()
		go e.connectionHealthLoop()
	}
	if e.metrics != nil {
		e.startMetricsPollers(ctx)
	}
	e.logFn("engine: started")
}

func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopChan)
		if e.cancel != nil {
			e.cancel()
		}
		for _, p := range e.pollers {
			p.Stop()
		}
		if e.drainer != nil {
			e.drainer.Stop()
		}
		e.logFn("engine: stopped")
	})
}

// Accessors
func (e *Engine) AppConfig() *config.Config    { return e.cfg }
func (e *Engine) DB() *store.DB                { return e.db }
func (e *Engine) Session() *session.Store      { return e.session }
func (e *Engine) Gateway() *gateway.Gateway    { return e.gw }
func (e *Engine) Client() *srtgw.Client        { return e.client }
func (e *Engine) MsgClient() *messaging.Client { return e.msgClient }
func (e *Engine) Metrics() *metrics.Registry   { return e.metrics }
func (e *Engine) Policy() poller.Policy        { return e.policy }

// Deps returns what a view needs, with mutations reported on the EventBus.
func (e *Engine) Deps() *views.Deps {
	return &views.Deps{
		Client:  e.client,
		Session: e.session,
		Emitter: &viewsEmitter{bus: e.Events},
		Poll:    e.cfg.Poll,
		Policy:  e.policy,
		LogFunc: views.LogFunc(e.logFn),
	}
}

// Login authenticates against the gateway and audits the login.
func (e *Engine) Login(ctx context.Context, username, password string) (*gateway.LoginResult, error) {
	res, err := e.gw.Login(ctx, username, password)
	if err != nil {
		e.audit("session", username, "login_failed", "", "", username)
		return nil, err
	}
	name := res.User.Name()
	if name == "" {
		name = username
	}
	e.userMu.Lock()
	e.user = name
	e.userMu.Unlock()
	e.audit("session", name, "login", "", "", name)
	return res, nil
}

// Logout ends the session. SessionExpired is emitted with the logout reason.
func (e *Engine) Logout() {
	e.userMu.Lock()
	e.loggingOut = true
	e.userMu.Unlock()
	e.gw.Logout()
}

// sessionEnding reports who the session belonged to and why it ends, and
// resets both.
func (e *Engine) sessionEnding() (string, string) {
	e.userMu.Lock()
	defer e.userMu.Unlock()
	user, reason := e.user, messaging.ReasonUnauthorized
	if e.loggingOut {
		reason = messaging.ReasonLogout
	}
	e.user, e.loggingOut = "", false
	return user, reason
}

// RecordRouteSnapshot feeds the route detail statistics into the metrics.
func (e *Engine) RecordRouteSnapshot(s views.RouteSnapshot) {
	if e.metrics == nil || s.Route == nil {
		return
	}
	if s.Source == nil {
		e.metrics.ForgetRoute(s.Route.ID.String())
		return
	}
	e.metrics.ObserveRouteStats(s.Route.ID.String(), *s.Source)
}

func (e *Engine) audit(entityType, entityID, action, oldValue, newValue, actor string) {
	if e.db == nil {
		return
	}
	if err := e.db.AppendAudit(entityType, entityID, action, oldValue, newValue, actor); err != nil {
		e.logFn("engine: audit %s %s %s: %v", entityType, entityID, action, err)
	}
}

func (e *Engine) checkConnectionStatus() {
	if e.msgClient.IsConnected() {
		if !e.msgConnected {
			e.msgConnected = true
			e.Events.Emit(Event{Type: EventMessagingConnected, Payload: ConnectionEvent{Detail: e.msgClient.Backend() + " connected"}})
		}
	} else if e.msgConnected {
		e.msgConnected = false
		e.Events.Emit(Event{Type: EventMessagingDisconnected, Payload: ConnectionEvent{Detail: e.msgClient.Backend() + " disconnected"}})
	}
}

func (e *Engine) connectionHealthLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.checkConnectionStatus()
		}
	}
}

// whenLoggedIn skips background fetches while nobody is logged in, so they
// never end a session that does not exist.
func whenLoggedIn[T any](s *session.Store, fetch func(context.Context) (T, error)) func(context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		if !s.IsAuthenticated() {
			var zero T
			return zero, errNotLoggedIn
		}
		return fetch(ctx)
	}
}

func every(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}

// startMetricsPollers keeps the node, pipeline and route count gauges fresh.
func (e *Engine) startMetricsPollers(ctx context.Context) {
	logErr := func(what string, err error) {
		if err != nil && !errors.Is(err, errNotLoggedIn) && !views.IsAuthError(err) {
			e.logFn("engine: metrics %s: %v", what, err)
		}
	}
	nodes := poller.New(poller.Config[[]srtgw.Node]{
		Interval: every(e.cfg.Poll.Nodes, 5*time.Second),
		Policy:   e.policy,
		Fetch:    whenLoggedIn(e.session, e.client.ListNodes),
		Apply: func(n []srtgw.Node, err error) {
			logErr("nodes", err)
			if err == nil {
				e.metrics.ObserveNodes(n)
			}
		},
		LogFunc: poller.LogFunc(e.logFn),
	})
	pipelines := poller.New(poller.Config[[]srtgw.Pipeline]{
		Interval: every(e.cfg.Poll.Pipelines, 5*time.Second),
		Policy:   e.policy,
		Fetch:    whenLoggedIn(e.session, e.client.ListPipelines),
		Apply: func(p []srtgw.Pipeline, err error) {
			logErr("pipelines", err)
			if err == nil {
				e.metrics.ObservePipelines(p)
			}
		},
		LogFunc: poller.LogFunc(e.logFn),
	})
	routes := poller.New(poller.Config[[]srtgw.Route]{
		Interval: every(e.cfg.Poll.Dashboard, 30*time.Second),
		Policy:   e.policy,
		Fetch:    whenLoggedIn(e.session, e.client.ListRoutes),
		Apply: func(r []srtgw.Route, err error) {
			logErr("routes", err)
			if err == nil {
				d := views.BuildDashboard(nil, r)
				e.metrics.ObserveRouteCounts(d.TotalRoutes, d.ActiveRoutes, d.StoppedRoutes)
			}
		},
		LogFunc: poller.LogFunc(e.logFn),
	})
	for _, p := range []interface {
		Start(context.Context)
		Stop()
	}{nodes, pipelines, routes} {
		p.Start(ctx)
		e.pollers = append(e.pollers, p)
	}
}
