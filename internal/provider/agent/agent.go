// Package agent implements a provider backed by an in-page helper that
// exposes the roster container over HTTP.
//
// The helper serves:
//
//	GET  /extent    {"scroll_height": int, "client_height": int}
//	GET  /entities  {"entities": [{"key","label","status","stable_id"}]}
//	POST /scroll    {"offset": int}
//
// 404 and 503 responses mean the roster is not currently on the page.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/crimson-sun/rollcall/internal/httpclient"
	"github.com/crimson-sun/rollcall/internal/provider"
)

const defaultTimeout = 5 * time.Second

func init() {
	provider.Register("agent", func(cfg provider.Config) (provider.Provider, error) {
		return New(cfg)
	})
}

// Provider talks to the roster helper.
type Provider struct {
	client *httpclient.Client
}

type entitiesResponse struct {
	Entities []provider.Entry `json:"entities"`
}

type scrollRequest struct {
	Offset int `json:"offset"`
}

// New creates an agent provider for cfg.Endpoint.
func New(cfg provider.Config) (*Provider, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("agent provider: endpoint is required")
	}
	timeout := defaultTimeout
	if raw := cfg.Extra["timeout"]; raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			timeout = d
		}
	}
	// One retry only; the collector's scan budget bounds the rest.
	opts := []httpclient.Option{
		httpclient.WithTimeout(timeout),
		httpclient.WithMaxRetries(1),
	}
	if cfg.Extra["http2"] == "true" {
		opts = append(opts, httpclient.WithHTTP2(nil))
	}
	client := httpclient.New(cfg.Endpoint, cfg.Token, opts...)
	return &Provider{client: client}, nil
}

func (p *Provider) ListVisible(ctx context.Context) ([]provider.Entry, error) {
	var resp entitiesResponse
	if err := p.client.GetJSON(ctx, "/entities", nil, &resp); err != nil {
		return nil, mapErr("list entities", err)
	}
	return resp.Entities, nil
}

func (p *Provider) ScrollTo(ctx context.Context, offset int) error {
	if err := p.client.PostJSON(ctx, "/scroll", scrollRequest{Offset: offset}, nil); err != nil {
		return mapErr("scroll", err)
	}
	return nil
}

func (p *Provider) Extent(ctx context.Context) (provider.Extent, error) {
	var ext provider.Extent
	if err := p.client.GetJSON(ctx, "/extent", nil, &ext); err != nil {
		return provider.Extent{}, mapErr("extent", err)
	}
	return ext, nil
}

func (p *Provider) Close() error {
	return nil
}

func mapErr(op string, err error) error {
	var apiErr *httpclient.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusNotFound, http.StatusServiceUnavailable:
			return fmt.Errorf("agent provider: %s: %w", op, provider.ErrUnavailable)
		}
	}
	return fmt.Errorf("agent provider: %s: %w", op, err)
}
