package srtgw

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Condition classifies backend rejections that carry a meaning for route
// status reconciliation.
type Condition int

const (
	ConditionNone Condition = iota
	// ConditionAlreadyStarted: the route process is already running.
	ConditionAlreadyStarted
	// ConditionNotFound: the route process does not exist (already stopped).
	ConditionNotFound
)

func (c Condition) String() string {
	switch c {
	case ConditionAlreadyStarted:
		return "already_started"
	case ConditionNotFound:
		return "not_found"
	default:
		return "none"
	}
}

func parseCondition(code string) Condition {
	switch strings.TrimSpace(code) {
	case "already_started":
		return ConditionAlreadyStarted
	case "not_found":
		return ConditionNotFound
	default:
		return ConditionNone
	}
}

// APIError is a non-2xx backend answer.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	// Message is the backend's "error" field, or the raw body when it has none.
	Message   string
	Condition Condition
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("srtgw HTTP %d on %s %s", e.StatusCode, e.Method, e.Path)
	}
	return fmt.Sprintf("srtgw HTTP %d on %s %s: %s", e.StatusCode, e.Method, e.Path, e.Message)
}

func newAPIError(method, path string, status int, body []byte) *APIError {
	e := &APIError{StatusCode: status, Method: method, Path: path}
	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		var s string
		switch {
		case json.Unmarshal(payload.Error, &s) == nil && s != "":
			e.Message = s
		case len(payload.Error) > 0 && string(payload.Error) != "null":
			e.Message = string(payload.Error)
		default:
			e.Message = payload.Message
		}
	} else {
		e.Message = strings.TrimSpace(string(body))
	}
	e.Condition = parseCondition(e.Message)
	return e
}

// DecodeError reports a 2xx body that could not be decoded.
type DecodeError struct {
	Method string
	Path   string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("srtgw decode %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// FieldError is one rejected input field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError lists the problems found in a route or destination before
// it is sent.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
