package srtgw

import (
	"context"
	"net/url"
	"strconv"
)

func (c *Client) ListNodes(ctx context.Context) ([]Node, error) {
	var nodes []Node
	if err := c.get(ctx, "/api/nodes", &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

func (c *Client) GetNode(ctx context.Context, id ID) (*Node, error) {
	var node Node
	if err := c.get(ctx, "/api/nodes/"+url.PathEscape(string(id)), &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// SelfNode returns the node whose status is "self", or nil.
func SelfNode(nodes []Node) *Node {
	for i := range nodes {
		if nodes[i].Status == NodeSelf {
			return &nodes[i]
		}
	}
	return nil
}

func (c *Client) ListPipelines(ctx context.Context) ([]Pipeline, error) {
	var procs []Pipeline
	if err := c.get(ctx, "/api/system/pipelines", &procs); err != nil {
		return nil, err
	}
	return procs, nil
}

// DetailedPipelines returns the listing with virtual/resident memory, CPU
// time, process state and parent PID filled in.
func (c *Client) DetailedPipelines(ctx context.Context) ([]Pipeline, error) {
	var procs []Pipeline
	if err := c.get(ctx, "/api/system/pipelines/detailed", &procs); err != nil {
		return nil, err
	}
	return procs, nil
}

func (c *Client) KillPipeline(ctx context.Context, pid int) (Result, error) {
	var res Result
	path := "/api/system/pipelines/" + strconv.Itoa(pid) + "/kill"
	if err := c.post(ctx, path, nil, &res); err != nil {
		return nil, err
	}
	if res == nil {
		res = successResult()
	}
	return res, nil
}
