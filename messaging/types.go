package messaging

// Message types published on the console events topic.
const (
	TypeRouteStatusChanged = "route.status_changed"
	TypeRouteChanged       = "route.changed"
	TypeDestinationChanged = "destination.changed"
	TypePipelineKilled     = "pipeline.killed"
	TypeBackupRestored     = "backup.restored"
	TypeSessionExpired     = "session.expired"
)

// Version is the envelope format version.
const Version = 1

// RoleConsole is the only source role today.
const RoleConsole = "console"

type RouteStatusChanged struct {
	RouteID   string `json:"route_id"`
	Name      string `json:"name"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
	Actor     string `json:"actor"`
}

type RouteChanged struct {
	RouteID string `json:"route_id"`
	Name    string `json:"name"`
	Action  string `json:"action"` // created, updated, deleted
	Actor   string `json:"actor"`
}

type DestinationChanged struct {
	RouteID       string `json:"route_id"`
	DestinationID string `json:"destination_id"`
	Name          string `json:"name"`
	Action        string `json:"action"`
	Actor         string `json:"actor"`
}

type PipelineKilled struct {
	PID     int    `json:"pid"`
	Command string `json:"command,omitempty"`
	Actor   string `json:"actor"`
}

type BackupRestored struct {
	Filename string `json:"filename"`
	Actor    string `json:"actor"`
}

// Session end reasons.
const (
	ReasonUnauthorized = "unauthorized"
	ReasonLogout       = "logout"
)

type SessionExpired struct {
	User   string `json:"user,omitempty"`
	Reason string `json:"reason"`
}
