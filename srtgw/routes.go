package srtgw

import (
	"context"
	"net/url"
)

func routePath(id ID) string {
	return "/api/routes/" + url.PathEscape(string(id))
}

func (c *Client) ListRoutes(ctx context.Context) ([]Route, error) {
	var resp envelope[[]Route]
	if err := c.get(ctx, "/api/routes", &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) GetRoute(ctx context.Context, id ID) (*Route, error) {
	var resp envelope[*Route]
	if err := c.get(ctx, routePath(id), &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// CreateRoute validates the input locally, then posts it as {"route": input}.
func (c *Client) CreateRoute(ctx context.Context, in RouteInput) (*Route, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var resp envelope[*Route]
	if err := c.post(ctx, "/api/routes", map[string]any{"route": in}, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) UpdateRoute(ctx context.Context, id ID, in RouteInput) (*Route, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var resp envelope[*Route]
	if err := c.put(ctx, routePath(id), map[string]any{"route": in}, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) DeleteRoute(ctx context.Context, id ID) (Result, error) {
	return c.del(ctx, routePath(id))
}

// Route actions.
const (
	ActionStart   = "start"
	ActionStop    = "stop"
	ActionRestart = "restart"
)

// StartRoute asks the backend to start the route process. The returned route
// is nil when the backend answered without data.
func (c *Client) StartRoute(ctx context.Context, id ID) (*Route, error) {
	return c.routeAction(ctx, id, ActionStart)
}

func (c *Client) StopRoute(ctx context.Context, id ID) (*Route, error) {
	return c.routeAction(ctx, id, ActionStop)
}

func (c *Client) RestartRoute(ctx context.Context, id ID) (*Route, error) {
	return c.routeAction(ctx, id, ActionRestart)
}

func (c *Client) routeAction(ctx context.Context, id ID, action string) (*Route, error) {
	var resp envelope[*Route]
	if err := c.get(ctx, routePath(id)+"/"+action, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}
