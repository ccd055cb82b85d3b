// Package srtgw is the typed client of the SRT Gateway REST API.
//
// Every operation is one HTTP call through the authenticated gateway. Route
// endpoints wrap their payload in {"data": ...}; node and pipeline endpoints
// answer with bare arrays.
package srtgw

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/visual-alchemy/blackgate-project/gateway"
)

// Doer is the authenticated request path. *gateway.Gateway implements it.
type Doer interface {
	AuthFetch(ctx context.Context, path string, opts *gateway.Options) (*http.Response, error)
	BaseURL() string
}

type Client struct {
	gw Doer
}

func NewClient(gw Doer) *Client {
	return &Client{gw: gw}
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string { return c.gw.BaseURL() }

func (c *Client) get(ctx context.Context, path string, result any) error {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	return c.do(ctx, http.MethodPost, path, body, result)
}

func (c *Client) put(ctx context.Context, path string, body any, result any) error {
	return c.do(ctx, http.MethodPut, path, body, result)
}

// del returns the decoded body, or {"success": true} when the answer carries
// no JSON (a 204 for instance).
func (c *Client) del(ctx context.Context, path string) (Result, error) {
	var res Result
	resp, err := c.gw.AuthFetch(ctx, path, &gateway.Options{Method: http.MethodDelete})
	if err != nil {
		return nil, fmt.Errorf("srtgw DELETE %s: %w", path, err)
	}
	defer resp.Body.Close()
	if err := c.decode(resp, http.MethodDelete, path, &res); err != nil {
		return nil, err
	}
	if !isJSON(resp) {
		return successResult(), nil
	}
	return res, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, result any) error {
	opts := &gateway.Options{Method: method}
	if body != nil {
		opts.JSON = body
	}
	resp, err := c.gw.AuthFetch(ctx, path, opts)
	if err != nil {
		return fmt.Errorf("srtgw %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	return c.decode(resp, method, path, result)
}

func (c *Client) decode(resp *http.Response, method, path string, result any) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("srtgw read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(method, path, resp.StatusCode, data)
	}
	if result == nil || !isJSON(resp) || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return &DecodeError{Method: method, Path: path, Err: err}
	}
	return nil
}

func isJSON(resp *http.Response) bool {
	mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mt == "application/json" || (len(mt) > 5 && mt[len(mt)-5:] == "+json")
}
