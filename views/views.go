// Package views holds the per-screen state of the console: what each screen
// fetches, how often it polls, and how it reacts to mutations.
//
// A view is built for one consumer (an HTTP request, an SSE stream, a CLI
// command) and reports user-facing outcomes through its Notifier. Views never
// render anything.
package views

import (
	"errors"
	"log"
	"time"

	"github.com/visual-alchemy/blackgate-project/config"
	"github.com/visual-alchemy/blackgate-project/gateway"
	"github.com/visual-alchemy/blackgate-project/poller"
	"github.com/visual-alchemy/blackgate-project/session"
	"github.com/visual-alchemy/blackgate-project/srtgw"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelError   Level = "error"
)

// Notification is a transient user-visible message.
type Notification struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// Collector is a Notifier that keeps every notification. Safe for one goroutine.
type Collector struct {
	Items []Notification
}

func (c *Collector) Notify(n Notification) { c.Items = append(c.Items, n) }

// Emitter receives the mutations operators perform through the views.
type Emitter interface {
	EmitRouteStatusChanged(routeID srtgw.ID, name, oldStatus, newStatus, actor string)
	EmitRouteChanged(routeID srtgw.ID, name, action, actor string)
	EmitDestinationChanged(routeID, destID srtgw.ID, name, action, actor string)
	EmitPipelineKilled(pid int, command, actor string)
	EmitBackupRestored(filename, actor string)
}

// Change actions passed to the Emitter.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

type LogFunc func(format string, args ...any)

// Deps is what every view needs. Emitter and LogFunc are optional.
type Deps struct {
	Client  *srtgw.Client
	Session *session.Store
	Emitter Emitter
	Poll    config.PollConfig
	Policy  poller.Policy
	LogFunc LogFunc
}

func (d *Deps) logf(format string, args ...any) {
	if d.LogFunc != nil {
		d.LogFunc(format, args...)
		return
	}
	log.Printf(format, args...)
}

// actor names the logged-in user for audit purposes.
func (d *Deps) actor() string {
	if d.Session == nil {
		return "console"
	}
	u, err := d.Session.User()
	if err != nil || u.Name() == "" {
		return "console"
	}
	return u.Name()
}

func (d *Deps) emitter() Emitter {
	if d.Emitter == nil {
		return nopEmitter{}
	}
	return d.Emitter
}

func (d *Deps) interval(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}

type nopEmitter struct{}

func (nopEmitter) EmitRouteStatusChanged(srtgw.ID, string, string, string, string) {}
func (nopEmitter) EmitRouteChanged(srtgw.ID, string, string, string)               {}
func (nopEmitter) EmitDestinationChanged(srtgw.ID, srtgw.ID, string, string, string) {
}
func (nopEmitter) EmitPipelineKilled(int, string, string) {}
func (nopEmitter) EmitBackupRestored(string, string)      {}

type nopNotifier struct{}

func (nopNotifier) Notify(Notification) {}

func orNop(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}

// IsAuthError reports whether err ended the session. The gateway has already
// navigated to login; callers should not show an error on top of it.
func IsAuthError(err error) bool {
	return errors.Is(err, gateway.ErrUnauthorized)
}

// ErrorMessage returns the text shown to the operator for err: the backend's
// message when there is one, the error text otherwise.
func ErrorMessage(err error) string {
	var apiErr *srtgw.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}

func notifyFailure(n Notifier, prefix string, err error) {
	if IsAuthError(err) {
		return
	}
	n.Notify(Notification{Level: LevelError, Message: prefix + ": " + ErrorMessage(err)})
}
