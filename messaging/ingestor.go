package messaging

import (
	"encoding/json"
	"log"
)

// FilterFunc returns true if the message should be processed.
type FilterFunc func(hdr *RawHeader) bool

// Handler receives decoded console events. Embed NoOpHandler and override
// only the methods you need.
type Handler interface {
	HandleRouteStatusChanged(env *Envelope, p *RouteStatusChanged)
	HandleRouteChanged(env *Envelope, p *RouteChanged)
	HandleDestinationChanged(env *Envelope, p *DestinationChanged)
	HandlePipelineKilled(env *Envelope, p *PipelineKilled)
	HandleBackupRestored(env *Envelope, p *BackupRestored)
	HandleSessionExpired(env *Envelope, p *SessionExpired)
}

type NoOpHandler struct{}

func (NoOpHandler) HandleRouteStatusChanged(*Envelope, *RouteStatusChanged) {}
func (NoOpHandler) HandleRouteChanged(*Envelope, *RouteChanged)             {}
func (NoOpHandler) HandleDestinationChanged(*Envelope, *DestinationChanged) {}
func (NoOpHandler) HandlePipelineKilled(*Envelope, *PipelineKilled)         {}
func (NoOpHandler) HandleBackupRestored(*Envelope, *BackupRestored)         {}
func (NoOpHandler) HandleSessionExpired(*Envelope, *SessionExpired)         {}

// Ingestor performs the two-phase decode of raw messages and dispatches them
// to a Handler.
type Ingestor struct {
	handler Handler
	filter  FilterFunc
}

func NewIngestor(handler Handler, filter FilterFunc) *Ingestor {
	return &Ingestor{handler: handler, filter: filter}
}

// StationFilter accepts messages published by one console station, or all of
// them when station is empty.
func StationFilter(station string) FilterFunc {
	return func(hdr *RawHeader) bool {
		return station == "" || hdr.Src.Station == station
	}
}

// HandleRaw is the entry point for raw message bytes from a Client
// subscription.
func (ing *Ingestor) HandleRaw(data []byte) {
	var hdr RawHeader
	if err := json.Unmarshal(data, &hdr); err != nil {
		log.Printf("messaging: header decode error: %v", err)
		return
	}
	if isExpired(hdr.ExpiresAt) {
		log.Printf("messaging: dropping expired message %s (type=%s)", hdr.ID, hdr.Type)
		return
	}
	if ing.filter != nil && !ing.filter(&hdr) {
		return
	}

	env, err := DecodeEnvelope(data)
	if err != nil {
		log.Printf("messaging: %v", err)
		return
	}
	switch env.Type {
	case TypeRouteStatusChanged:
		decodeAndCall(ing.handler.HandleRouteStatusChanged, env)
	case TypeRouteChanged:
		decodeAndCall(ing.handler.HandleRouteChanged, env)
	case TypeDestinationChanged:
		decodeAndCall(ing.handler.HandleDestinationChanged, env)
	case TypePipelineKilled:
		decodeAndCall(ing.handler.HandlePipelineKilled, env)
	case TypeBackupRestored:
		decodeAndCall(ing.handler.HandleBackupRestored, env)
	case TypeSessionExpired:
		decodeAndCall(ing.handler.HandleSessionExpired, env)
	default:
		log.Printf("messaging: unknown message type: %s", env.Type)
	}
}

func decodeAndCall[T any](fn func(*Envelope, *T), env *Envelope) {
	var p T
	if err := env.DecodePayload(&p); err != nil {
		log.Printf("messaging: payload decode error for %s: %v", env.Type, err)
		return
	}
	fn(env, &p)
}
