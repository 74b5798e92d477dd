// Package client provides a client for the counters API, along with a local
// view of counters kept current by live change events.
package client

import (
	"context"
	"errors"
	"net/url"

	"github.com/datapowersync/counters/internal"
	"github.com/datapowersync/counters/internal/counter"
	countershttp "github.com/datapowersync/counters/internal/http"
	"github.com/datapowersync/counters/internal/logr"
)

type (
	Client struct {
		*countershttp.Client

		logger logr.Logger
	}

	Config = countershttp.ClientConfig
)

func New(cfg Config) (*Client, error) {
	httpClient, err := countershttp.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{Client: httpClient, logger: cfg.Logger}, nil
}

func (c *Client) Create(ctx context.Context, opts counter.CreateOptions) (*counter.Counter, error) {
	req, err := c.NewRequest("POST", "api/counters", &opts)
	if err != nil {
		return nil, err
	}
	var created counter.Counter
	if err := c.Do(ctx, req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// Get retrieves a counter, returning internal.ErrResourceNotFound if it does
// not exist.
func (c *Client) Get(ctx context.Context, id string) (*counter.Counter, error) {
	req, err := c.NewRequest("GET", "api/counters/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	var got *counter.Counter
	if err := c.Do(ctx, req, &got); err != nil {
		return nil, err
	}
	if got == nil {
		return nil, internal.ErrResourceNotFound
	}
	return got, nil
}

func (c *Client) List(ctx context.Context, opts counter.ListOptions) ([]*counter.Counter, error) {
	req, err := c.NewRequest("GET", "api/counters", &opts)
	if err != nil {
		return nil, err
	}
	var list []*counter.Counter
	if err := c.Do(ctx, req, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Latest retrieves the most recently created counter, returning
// internal.ErrResourceNotFound if there are none.
func (c *Client) Latest(ctx context.Context, opts counter.ListOptions) (*counter.Counter, error) {
	req, err := c.NewRequest("GET", "api/counters/latest", &opts)
	if err != nil {
		return nil, err
	}
	var got *counter.Counter
	if err := c.Do(ctx, req, &got); err != nil {
		return nil, err
	}
	if got == nil {
		return nil, internal.ErrResourceNotFound
	}
	return got, nil
}

func (c *Client) Update(ctx context.Context, id string, opts counter.UpdateOptions) (*counter.Counter, error) {
	req, err := c.NewRequest("PATCH", "api/counters/"+url.PathEscape(id), &opts)
	if err != nil {
		return nil, err
	}
	var updated counter.Counter
	if err := c.Do(ctx, req, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (c *Client) Increment(ctx context.Context, id string, opts counter.IncrementOptions) (*counter.Counter, error) {
	req, err := c.NewRequest("POST", "api/counters/"+url.PathEscape(id)+"/increment", &opts)
	if err != nil {
		return nil, err
	}
	var incremented counter.Counter
	if err := c.Do(ctx, req, &incremented); err != nil {
		return nil, err
	}
	return &incremented, nil
}

func (c *Client) Delete(ctx context.Context, id string) (counter.DeleteResult, error) {
	req, err := c.NewRequest("DELETE", "api/counters/"+url.PathEscape(id), nil)
	if err != nil {
		return counter.DeleteResult{}, err
	}
	var result counter.DeleteResult
	if err := c.Do(ctx, req, &result); err != nil {
		return counter.DeleteResult{}, err
	}
	if !result.Success {
		return result, errors.New("server did not acknowledge deletion")
	}
	return result, nil
}
