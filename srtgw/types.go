package srtgw

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ID is an opaque backend identifier. The backend sends both strings and
// numbers; both decode to the same textual form.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("srtgw: id %s: %w", data, err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Timestamp accepts the layouts the backend emits for updated_at. A value that
// matches none of them is kept in Raw with a zero Time.
type Timestamp struct {
	time.Time
	Raw string
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n int64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("srtgw: timestamp %s: %w", data, err)
		}
		*t = Timestamp{Time: time.Unix(n, 0).UTC(), Raw: strconv.FormatInt(n, 10)}
		return nil
	}
	*t = Timestamp{Raw: s}
	for _, layout := range timestampLayouts {
		if v, err := time.Parse(layout, s); err == nil {
			t.Time = v
			break
		}
	}
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.Raw != "" {
		return json.Marshal(t.Raw)
	}
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339))
}

// Route status values. The backend may send any casing.
const (
	StatusStarted = "started"
	StatusStopped = "stopped"
	StatusUnknown = "unknown"
)

// Transport schemas.
const (
	SchemaSRT = "SRT"
	SchemaUDP = "UDP"
)

// SchemaOptions is the schema-specific option bag (mode, localport, latency...).
type SchemaOptions map[string]any

// String returns the option as a string, or "" when absent.
func (o SchemaOptions) String(key string) string {
	switch v := o[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the option as an int. Numeric strings are accepted.
func (o SchemaOptions) Int(key string) (int, bool) {
	switch v := o[key].(type) {
	case float64:
		return int(v), v == float64(int(v))
	case int:
		return v, true
	case int64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	}
	return 0, false
}

// Bool reports whether the option is set and truthy.
func (o SchemaOptions) Bool(key string) bool {
	switch v := o[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

type Route struct {
	ID            ID            `json:"id,omitempty"`
	Name          string        `json:"name"`
	Enabled       bool          `json:"enabled"`
	Status        string        `json:"status,omitempty"`
	Schema        string        `json:"schema"`
	SchemaOptions SchemaOptions `json:"schema_options,omitempty"`
	Destinations  []Destination `json:"destinations,omitempty"`
	ExportStats   bool          `json:"exportStats"`
	GstDebug      string        `json:"gstDebug,omitempty"`
	Node          string        `json:"node,omitempty"`
	UpdatedAt     Timestamp     `json:"updated_at"`
}

// UnmarshalJSON also accepts export_stats, which some gateway versions send
// instead of exportStats.
func (r *Route) UnmarshalJSON(data []byte) error {
	type plain Route
	aux := struct {
		*plain
		SnakeExportStats *bool `json:"export_stats"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.SnakeExportStats != nil && *aux.SnakeExportStats {
		r.ExportStats = true
	}
	return nil
}

// Input returns the editable part of the route.
func (r *Route) Input() RouteInput {
	return RouteInput{
		Name:          r.Name,
		Enabled:       r.Enabled,
		Schema:        r.Schema,
		SchemaOptions: r.SchemaOptions,
		ExportStats:   r.ExportStats,
		GstDebug:      r.GstDebug,
		Node:          r.Node,
	}
}

// RouteInput is the body of create and update, sent as {"route": ...}.
type RouteInput struct {
	Name          string        `json:"name"`
	Enabled       bool          `json:"enabled"`
	Schema        string        `json:"schema"`
	SchemaOptions SchemaOptions `json:"schema_options"`
	ExportStats   bool          `json:"exportStats"`
	GstDebug      string        `json:"gstDebug,omitempty"`
	Node          string        `json:"node,omitempty"`
}

// NewRouteInput returns the defaults of a new source: enabled SRT on the
// local node with stats export and auto-reconnect.
func NewRouteInput() RouteInput {
	return RouteInput{
		Enabled:     true,
		Node:        NodeSelf,
		ExportStats: true,
		Schema:      SchemaSRT,
		SchemaOptions: SchemaOptions{
			"auto-reconnect": true,
			"keep-listening": false,
		},
	}
}

// IsStarted reports whether the route's status is "started", ignoring case.
func (r *Route) IsStarted() bool {
	return strings.EqualFold(r.Status, StatusStarted)
}

type Destination struct {
	ID            ID            `json:"id,omitempty"`
	Name          string        `json:"name"`
	Enabled       bool          `json:"enabled"`
	Schema        string        `json:"schema"`
	SchemaOptions SchemaOptions `json:"schema_options,omitempty"`
	Type          string        `json:"type,omitempty"`
}

// Input returns the editable part of the destination.
func (d *Destination) Input() DestinationInput {
	return DestinationInput{
		Name:          d.Name,
		Enabled:       d.Enabled,
		Schema:        d.Schema,
		SchemaOptions: d.SchemaOptions,
	}
}

// DestinationInput is the body of create and update, sent as {"destination": ...}.
type DestinationInput struct {
	Name          string        `json:"name"`
	Enabled       bool          `json:"enabled"`
	Schema        string        `json:"schema"`
	SchemaOptions SchemaOptions `json:"schema_options"`
}

// NewDestinationInput returns the defaults of a new destination.
func NewDestinationInput() DestinationInput {
	return DestinationInput{
		Enabled:       true,
		Schema:        SchemaSRT,
		SchemaOptions: SchemaOptions{},
	}
}

// IsSRT reports whether the destination produces per-sink SRT statistics.
func (d *Destination) IsSRT() bool {
	return d.Type == "srt" || d.Type == "srtsink"
}

// Node status values.
const (
	NodeSelf = "self"
	NodeUp   = "up"
	NodeDown = "down"
)

// Node usage figures are percentages; nil when the node did not report them.
type Node struct {
	Host   string   `json:"host"`
	CPU    *float64 `json:"cpu"`
	RAM    *float64 `json:"ram"`
	Swap   *float64 `json:"swap"`
	LA     string   `json:"la"`
	Status string   `json:"status"`
}

// Pipeline is one pipeline process as reported by ps on the gateway host.
// CPU and the percentages arrive preformatted ("12.5%").
type Pipeline struct {
	PID           int    `json:"pid"`
	CPU           string `json:"cpu"`
	Memory        string `json:"memory"`
	MemoryBytes   uint64 `json:"memory_bytes"`
	MemoryPercent string `json:"memory_percent"`
	SwapBytes     uint64 `json:"swap_bytes"`
	SwapPercent   string `json:"swap_percent"`
	User          string `json:"user"`
	StartTime     string `json:"start_time"`
	Command       string `json:"command"`

	// Present only on the detailed listing.
	VirtualMemory  string `json:"virtual_memory,omitempty"`
	ResidentMemory string `json:"resident_memory,omitempty"`
	CPUTime        string `json:"cpu_time,omitempty"`
	State          string `json:"state,omitempty"`
	PPID           int    `json:"ppid,omitempty"`
}

// CPUPercent parses the preformatted CPU figure. Unparseable values read as 0.
func (p *Pipeline) CPUPercent() float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(p.CPU), "%")), 64)
	return v
}

// Result is the generic body of a mutation. A response without a JSON
// content type is reported as {"success": true}.
type Result map[string]any

func successResult() Result { return Result{"success": true} }

// Success reports the "success" field.
func (r Result) Success() bool {
	b, _ := r["success"].(bool)
	return b
}

// envelope is the {data: ...} wrapper used by the route endpoints.
type envelope[T any] struct {
	Data T `json:"data"`
}

// BackupLink is the answer of the download-link endpoints.
type BackupLink struct {
	DownloadLink string `json:"download_link"`
}
