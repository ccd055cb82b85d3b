package engine

import "github.com/visual-alchemy/blackgate-project/messaging"

const (
	EventRouteStatusChanged EventType = iota + 1
	EventRouteChanged
	EventDestinationChanged
	EventPipelineKilled
	EventBackupRestored
	EventSessionExpired
	EventMessagingConnected
	EventMessagingDisconnected
)

// String returns the wire name of the event, shared with the messaging
// message types.
func (t EventType) String() string {
	switch t {
	case EventRouteStatusChanged:
		return messaging.TypeRouteStatusChanged
	case EventRouteChanged:
		return messaging.TypeRouteChanged
	case EventDestinationChanged:
		return messaging.TypeDestinationChanged
	case EventPipelineKilled:
		return messaging.TypePipelineKilled
	case EventBackupRestored:
		return messaging.TypeBackupRestored
	case EventSessionExpired:
		return messaging.TypeSessionExpired
	case EventMessagingConnected:
		return "messaging.connected"
	case EventMessagingDisconnected:
		return "messaging.disconnected"
	}
	return "unknown"
}

// --- Event payloads ---
// Operator events reuse the messaging payloads so they publish unchanged.

type RouteStatusChangedEvent = messaging.RouteStatusChanged

type RouteChangedEvent = messaging.RouteChanged

type DestinationChangedEvent = messaging.DestinationChanged

type PipelineKilledEvent = messaging.PipelineKilled

type BackupRestoredEvent = messaging.BackupRestored

type SessionExpiredEvent = messaging.SessionExpired

type ConnectionEvent struct {
	Detail string
}
