package views

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/visual-alchemy/blackgate-project/srtgw"
)

// changeStatus runs a start, stop or restart and returns the status the route
// should show afterwards. The returned error is nil when the outcome was
// reconciled (already_started, not_found): those are reported as info, not as
// failures.
func changeStatus(ctx context.Context, d *Deps, n Notifier, route srtgw.Route, action string) (string, error) {
	var (
		updated *srtgw.Route
		err     error
	)
	switch action {
	case srtgw.ActionStart:
		updated, err = d.Client.StartRoute(ctx, route.ID)
	case srtgw.ActionStop:
		updated, err = d.Client.StopRoute(ctx, route.ID)
	case srtgw.ActionRestart:
		updated, err = d.Client.RestartRoute(ctx, route.ID)
	default:
		return route.Status, fmt.Errorf("views: unknown route action %q", action)
	}
	if IsAuthError(err) {
		return route.Status, err
	}

	status, known := srtgw.Reconcile(action, err)
	if err == nil && updated != nil && updated.Status != "" {
		status, known = updated.Status, true
	}
	if !known {
		status = route.Status
	}
	if !strings.EqualFold(status, route.Status) {
		d.emitter().EmitRouteStatusChanged(route.ID, route.Name, route.Status, status, d.actor())
	}

	if err == nil {
		n.Notify(Notification{Level: LevelSuccess, Message: "Route " + pastTense(action) + " successfully"})
		return status, nil
	}
	switch srtgw.ConditionOf(err) {
	case srtgw.ConditionAlreadyStarted:
		n.Notify(Notification{Level: LevelInfo, Message: "Route is already started"})
		return status, nil
	case srtgw.ConditionNotFound:
		n.Notify(Notification{Level: LevelInfo, Message: "Route process not found. It may have already been stopped."})
		return status, nil
	case srtgw.ConditionNone:
	}
	if statusCode(err) == http.StatusUnprocessableEntity {
		n.Notify(Notification{Level: LevelError, Message: "Invalid request. The server could not process the request."})
		return status, err
	}
	notifyFailure(n, "Failed to "+action+" route", err)
	return status, err
}

func pastTense(action string) string {
	switch action {
	case srtgw.ActionStop:
		return "stopped"
	case srtgw.ActionStart:
		return "started"
	case srtgw.ActionRestart:
		return "restarted"
	}
	return action + "ed"
}

func statusCode(err error) int {
	var apiErr *srtgw.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
