package engine

import (
	"github.com/visual-alchemy/blackgate-project/gateway"
	"github.com/visual-alchemy/blackgate-project/srtgw"
)

// viewsEmitter bridges the views package's Emitter interface to the EventBus.
type viewsEmitter struct {
	bus *EventBus
}

func (e *viewsEmitter) EmitRouteStatusChanged(routeID srtgw.ID, name, oldStatus, newStatus, actor string) {
	e.bus.Emit(Event{Type: EventRouteStatusChanged, Payload: RouteStatusChangedEvent{
		RouteID:   routeID.String(),
		Name:      name,
		OldStatus: oldStatus,
		NewStatus: newStatus,
		Actor:     actor,
	}})
}

func (e *viewsEmitter) EmitRouteChanged(routeID srtgw.ID, name, action, actor string) {
	e.bus.Emit(Event{Type: EventRouteChanged, Payload: RouteChangedEvent{
		RouteID: routeID.String(),
		Name:    name,
		Action:  action,
		Actor:   actor,
	}})
}

func (e *viewsEmitter) EmitDestinationChanged(routeID, destID srtgw.ID, name, action, actor string) {
	e.bus.Emit(Event{Type: EventDestinationChanged, Payload: DestinationChangedEvent{
		RouteID:       routeID.String(),
		DestinationID: destID.String(),
		Name:          name,
		Action:        action,
		Actor:         actor,
	}})
}

func (e *viewsEmitter) EmitPipelineKilled(pid int, command, actor string) {
	e.bus.Emit(Event{Type: EventPipelineKilled, Payload: PipelineKilledEvent{
		PID:     pid,
		Command: command,
		Actor:   actor,
	}})
}

func (e *viewsEmitter) EmitBackupRestored(filename, actor string) {
	e.bus.Emit(Event{Type: EventBackupRestored, Payload: BackupRestoredEvent{
		Filename: filename,
		Actor:    actor,
	}})
}

// expiryNavigator runs when the gateway ends the session. It emits
// SessionExpired and then hands over to the configured navigator.
type expiryNavigator struct {
	bus    *EventBus
	next   gateway.Navigator
	ending func() (user, reason string)
}

func (n *expiryNavigator) NavigateToLogin() {
	user, reason := n.ending()
	n.bus.Emit(Event{Type: EventSessionExpired, Payload: SessionExpiredEvent{User: user, Reason: reason}})
	if n.next != nil {
		n.next.NavigateToLogin()
	}
}
