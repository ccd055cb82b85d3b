package srtgw

import (
	"context"
	"net/url"
)

func destinationsPath(routeID ID) string {
	return routePath(routeID) + "/destinations"
}

func destinationPath(routeID, destID ID) string {
	return destinationsPath(routeID) + "/" + url.PathEscape(string(destID))
}

func (c *Client) ListDestinations(ctx context.Context, routeID ID) ([]Destination, error) {
	var resp envelope[[]Destination]
	if err := c.get(ctx, destinationsPath(routeID), &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) GetDestination(ctx context.Context, routeID, destID ID) (*Destination, error) {
	var resp envelope[*Destination]
	if err := c.get(ctx, destinationPath(routeID, destID), &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) CreateDestination(ctx context.Context, routeID ID, in DestinationInput) (*Destination, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var resp envelope[*Destination]
	if err := c.post(ctx, destinationsPath(routeID), map[string]any{"destination": in}, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) UpdateDestination(ctx context.Context, routeID, destID ID, in DestinationInput) (*Destination, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var resp envelope[*Destination]
	if err := c.put(ctx, destinationPath(routeID, destID), map[string]any{"destination": in}, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) DeleteDestination(ctx context.Context, routeID, destID ID) (Result, error) {
	return c.del(ctx, destinationPath(routeID, destID))
}
