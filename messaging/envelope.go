package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Address identifies the console instance that published a message.
type Address struct {
	Role    string `json:"role"`
	Station string `json:"station"`
}

// Envelope wraps every published console event.
type Envelope struct {
	Version   int             `json:"v"`
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Src       Address         `json:"src"`
	Timestamp time.Time       `json:"ts"`
	ExpiresAt time.Time       `json:"exp"`
	Payload   json.RawMessage `json:"p"`
}

// RawHeader is the minimal decode used to drop messages before decoding the
// payload.
type RawHeader struct {
	Version   int       `json:"v"`
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	Src       Address   `json:"src"`
	ExpiresAt time.Time `json:"exp"`
}

var defaultTTLs = map[string]time.Duration{
	TypeRouteStatusChanged: 10 * time.Minute,
	TypeSessionExpired:     5 * time.Minute,
	TypeBackupRestored:     60 * time.Minute,
}

// FallbackTTL applies to message types without a specific TTL.
const FallbackTTL = 30 * time.Minute

func DefaultTTLFor(msgType string) time.Duration {
	if ttl, ok := defaultTTLs[msgType]; ok {
		return ttl
	}
	return FallbackTTL
}

// NewEnvelope builds an outbound envelope with a fresh id and the default TTL
// of its type.
func NewEnvelope(msgType string, src Address, payload any) (*Envelope, error) {
	p, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	now := time.Now().UTC()
	return &Envelope{
		Version:   Version,
		Type:      msgType,
		ID:        uuid.New().String(),
		Src:       src,
		Timestamp: now,
		ExpiresAt: now.Add(DefaultTTLFor(msgType)),
		Payload:   p,
	}, nil
}

func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

func (e *Envelope) DecodePayload(target any) error {
	return json.Unmarshal(e.Payload, target)
}

// DecodeEnvelope unmarshals a whole envelope, leaving the payload raw.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &env, nil
}

func isExpired(exp time.Time) bool {
	return !exp.IsZero() && time.Now().UTC().After(exp)
}

// IsExpired reports whether the envelope has passed its expiry time.
func IsExpired(env *Envelope) bool { return isExpired(env.ExpiresAt) }
