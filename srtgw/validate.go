package srtgw

import (
	"strings"
)

// SRT connection modes.
const (
	ModeCaller     = "caller"
	ModeListener   = "listener"
	ModeRendezvous = "rendezvous"
)

const (
	minLatencyMs = 20
	maxLatencyMs = 8000
)

var validKeyLengths = map[int]bool{0: true, 16: true, 24: true, 32: true}

// Validate checks a source before it is sent.
func (in RouteInput) Validate() error {
	v := &ValidationError{}
	if strings.TrimSpace(in.Name) == "" {
		v.add("name", "is required")
	}
	if in.Node == "" {
		v.add("node", "is required")
	}
	switch in.Schema {
	case SchemaSRT:
		validateSRT(v, in.SchemaOptions)
	case SchemaUDP:
		validatePort(v, in.SchemaOptions, "port")
		validateNonNegative(v, in.SchemaOptions, "buffer-size")
		validateNonNegative(v, in.SchemaOptions, "mtu")
	case "":
		v.add("schema", "is required")
	default:
		v.add("schema", "must be SRT or UDP, got %q", in.Schema)
	}
	return v.orNil()
}

// Validate checks a destination before it is sent. UDP destinations address
// a remote host instead of a local port.
func (in DestinationInput) Validate() error {
	v := &ValidationError{}
	if strings.TrimSpace(in.Name) == "" {
		v.add("name", "is required")
	}
	switch in.Schema {
	case SchemaSRT:
		validateSRT(v, in.SchemaOptions)
	case SchemaUDP:
		if in.SchemaOptions.String("host") == "" {
			v.add("schema_options.host", "is required")
		}
		validatePort(v, in.SchemaOptions, "port")
	case "":
		v.add("schema", "is required")
	default:
		v.add("schema", "must be SRT or UDP, got %q", in.Schema)
	}
	return v.orNil()
}

func validateSRT(v *ValidationError, o SchemaOptions) {
	switch mode := o.String("mode"); mode {
	case ModeCaller, ModeListener, ModeRendezvous:
	case "":
		v.add("schema_options.mode", "is required")
	default:
		v.add("schema_options.mode", "must be caller, listener or rendezvous, got %q", mode)
	}
	validatePort(v, o, "localport")

	if _, present := o["latency"]; present {
		lat, ok := o.Int("latency")
		if !ok || lat < minLatencyMs || lat > maxLatencyMs {
			v.add("schema_options.latency", "must be between %d and %d ms", minLatencyMs, maxLatencyMs)
		}
	}

	if o.Bool("authentication") {
		if o.String("passphrase") == "" {
			v.add("schema_options.passphrase", "is required when authentication is enabled")
		}
		kl, ok := o.Int("pbkeylen")
		if !ok {
			v.add("schema_options.pbkeylen", "is required when authentication is enabled")
		} else if !validKeyLengths[kl] {
			v.add("schema_options.pbkeylen", "must be 0, 16, 24 or 32")
		}
	}
}

func validatePort(v *ValidationError, o SchemaOptions, key string) {
	if _, present := o[key]; !present {
		v.add("schema_options."+key, "is required")
		return
	}
	port, ok := o.Int(key)
	if !ok || port < 1 || port > 65535 {
		v.add("schema_options."+key, "must be between 1 and 65535")
	}
}

func validateNonNegative(v *ValidationError, o SchemaOptions, key string) {
	if _, present := o[key]; !present {
		return
	}
	if n, ok := o.Int(key); !ok || n < 0 {
		v.add("schema_options."+key, "must be a non-negative integer")
	}
}
