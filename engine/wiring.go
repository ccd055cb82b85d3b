package engine

import (
	"strconv"

	"github.com/visual-alchemy/blackgate-project/messaging"
	"github.com/visual-alchemy/blackgate-project/views"
)

func (e *Engine) wireEventHandlers() {
	// Route status changes: audit, and drop the statistics of stopped routes
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(RouteStatusChangedEvent)
		e.logFn("engine: route %s (%s) %s -> %s by %s", ev.RouteID, ev.Name, ev.OldStatus, ev.NewStatus, ev.Actor)
		e.audit("route", ev.RouteID, "status", ev.OldStatus, ev.NewStatus, ev.Actor)
		if e.metrics != nil && ev.NewStatus != "started" {
			e.metrics.ForgetRoute(ev.RouteID)
		}
	}, EventRouteStatusChanged)

	// Route create, update and delete: audit
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(RouteChangedEvent)
		e.logFn("engine: route %s (%s) %s by %s", ev.RouteID, ev.Name, ev.Action, ev.Actor)
		e.audit("route", ev.RouteID, ev.Action, "", ev.Name, ev.Actor)
		if e.metrics != nil && ev.Action == views.ActionDeleted {
			e.metrics.ForgetRoute(ev.RouteID)
		}
	}, EventRouteChanged)

	// Destination changes: audit
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(DestinationChangedEvent)
		e.audit("destination", ev.RouteID+"/"+ev.DestinationID, ev.Action, "", ev.Name, ev.Actor)
	}, EventDestinationChanged)

	// Killed pipelines: audit
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(PipelineKilledEvent)
		e.audit("pipeline", strconv.Itoa(ev.PID), "killed", "", ev.Command, ev.Actor)
	}, EventPipelineKilled)

	// Restores: audit
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(BackupRestoredEvent)
		e.logFn("engine: backup %s restored by %s", ev.Filename, ev.Actor)
		e.audit("backup", ev.Filename, "restored", "", "", ev.Actor)
	}, EventBackupRestored)

	// Session end: audit and count forced expiries
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(SessionExpiredEvent)
		e.logFn("engine: session of %q ended (%s)", ev.User, ev.Reason)
		e.audit("session", ev.User, ev.Reason, "", "", ev.User)
		if e.metrics != nil && ev.Reason == messaging.ReasonUnauthorized {
			e.metrics.SessionsExpired.Inc()
		}
	}, EventSessionExpired)

	e.Events.SubscribeTypes(func(evt Event) {
		e.logFn("engine: %s", evt.Payload.(ConnectionEvent).Detail)
	}, EventMessagingConnected, EventMessagingDisconnected)

	// Operator events: count and publish
	e.Events.SubscribeTypes(func(evt Event) {
		if e.metrics != nil {
			e.metrics.CountEvent(evt.Type.String())
		}
		e.enqueue(evt)
	}, EventRouteStatusChanged, EventRouteChanged, EventDestinationChanged,
		EventPipelineKilled, EventBackupRestored, EventSessionExpired)
}

// enqueue stores an event in the outbox for the drainer to publish. Events
// are dropped when messaging is disabled.
func (e *Engine) enqueue(evt Event) {
	if e.drainer == nil {
		return
	}
	src := messaging.Address{Role: messaging.RoleConsole, Station: e.cfg.Messaging.StationID}
	env, err := messaging.NewEnvelope(evt.Type.String(), src, evt.Payload)
	if err != nil {
		e.logFn("engine: build %s envelope: %v", evt.Type, err)
		return
	}
	env.Timestamp = evt.Timestamp.UTC()
	data, err := env.Encode()
	if err != nil {
		e.logFn("engine: encode %s envelope: %v", evt.Type, err)
		return
	}
	if err := e.db.EnqueueOutbox(e.cfg.Messaging.EventsTopic, data, env.Type); err != nil {
		e.logFn("engine: enqueue %s %s: %v", env.Type, env.ID, err)
	}
}
