package srtgw

import "errors"

// Reconcile returns the status a route is known to be in after a start or
// stop attempt, and false when the outcome implies nothing.
//
// A success implies the requested state. A rejection tagged already_started
// means the route runs; not_found means its process is gone. Restart and any
// other failure leave the status as it was.
func Reconcile(action string, err error) (string, bool) {
	if err == nil {
		switch action {
		case ActionStart:
			return StatusStarted, true
		case ActionStop:
			return StatusStopped, true
		}
		return "", false
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return "", false
	}
	switch apiErr.Condition {
	case ConditionAlreadyStarted:
		return StatusStarted, true
	case ConditionNotFound:
		return StatusStopped, true
	case ConditionNone:
	}
	return "", false
}

// ConditionOf returns the condition carried by err, ConditionNone when err is
// not an *APIError.
func ConditionOf(err error) Condition {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Condition
	}
	return ConditionNone
}
