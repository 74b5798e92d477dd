package http

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/DataDog/jsonapi"
	"github.com/datapowersync/counters/internal"
	"github.com/datapowersync/counters/internal/logr"
	"github.com/gorilla/schema"
	retryablehttp "github.com/hashicorp/go-retryablehttp"
)

// DefaultURL is the default URL of the counters daemon.
const DefaultURL = "http://localhost:8080"

var queryEncoder = schema.NewEncoder()

type (
	// Client makes requests to the counters API.
	Client struct {
		baseURL   *url.URL
		userAgent string
		http      *retryablehttp.Client
	}

	// ClientConfig configures the API client.
	ClientConfig struct {
		// URL of the counters daemon. Defaults to DefaultURL.
		URL string
		// Retry requests that fail with a transient error.
		RetryRequests bool
		// Skip verification of the server's certificate.
		Insecure bool
		// Logger reports retried requests.
		Logger logr.Logger
	}
)

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	baseURL, err := parseBaseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	policy := noRetries
	if cfg.RetryRequests {
		policy = retryTransient(cfg.Logger)
	}
	return &Client{
		baseURL:   baseURL,
		userAgent: "counters-client/" + internal.Version,
		http: &retryablehttp.Client{
			HTTPClient:   &http.Client{Transport: transport},
			Backoff:      retryablehttp.DefaultBackoff,
			CheckRetry:   policy,
			ErrorHandler: retryablehttp.PassthroughErrorHandler,
			RetryWaitMin: 500 * time.Millisecond,
			RetryWaitMax: 30 * time.Second,
			RetryMax:     30,
		},
	}, nil
}

// parseBaseURL parses the daemon URL, ensuring the path ends with a slash so
// that relative paths resolve beneath it.
func parseBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url: scheme must be http or https: %s", raw)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u, nil
}

func noRetries(_ context.Context, _ *http.Response, err error) (bool, error) {
	return false, err
}

// retryTransient retries connection errors and 5xx/429 responses, logging
// each retry.
func retryTransient(logger logr.Logger) retryablehttp.CheckRetry {
	return func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		retry, retryErr := retryablehttp.ErrorPropagatedRetryPolicy(ctx, resp, err)
		if !retry {
			return false, retryErr
		}
		// the policy's own error explains the retry better than the
		// original, when it has one.
		if retryErr != nil {
			err = retryErr
		}
		if resp != nil && resp.Request != nil {
			logger.Error(err, "retrying request", "url", resp.Request.URL, "status", resp.StatusCode)
		} else {
			logger.Error(err, "retrying request")
		}
		return true, retryErr
	}
}

// URL resolves a path relative to the client's base URL.
func (c *Client) URL(path string) (*url.URL, error) {
	return c.baseURL.Parse(path)
}

// HTTPClient returns the underlying http client, without retries.
func (c *Client) HTTPClient() *http.Client {
	return c.http.HTTPClient
}

// NewRequest builds an API request for a path relative to the base URL,
// without a leading slash. For GET requests v is encoded into the query
// string, otherwise it is sent as a JSON body.
func (c *Client) NewRequest(method, path string, v any) (*retryablehttp.Request, error) {
	u, err := c.URL(path)
	if err != nil {
		return nil, err
	}

	var body any
	if v != nil {
		if method == http.MethodGet {
			q := url.Values{}
			if err := queryEncoder.Encode(v, q); err != nil {
				return nil, err
			}
			u.RawQuery = q.Encode()
		} else {
			b, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			body = b
		}
	}

	req, err := retryablehttp.NewRequest(method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Do sends the request and decodes a successful JSON response into v, which
// may be nil. Failed responses are returned as errors.
func (c *Client) Do(ctx context.Context, req *retryablehttp.Request, v any) error {
	resp, err := c.http.Do(req.WithContext(ctx))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	defer resp.Body.Close()

	if err := CheckResponseCode(resp); err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("unmarshalling response: %w", err)
	}
	return nil
}

// CheckResponseCode maps a non-2xx response to an error.
func CheckResponseCode(r *http.Response) error {
	switch {
	case r.StatusCode >= 200 && r.StatusCode <= 299:
		return nil
	case r.StatusCode == http.StatusNotFound:
		return internal.ErrResourceNotFound
	case r.StatusCode == http.StatusConflict:
		return internal.ErrResourceAlreadyExists
	}
	if err := decodeErrorDocument(r.Body); err != nil {
		return err
	}
	return errors.New(r.Status)
}

// decodeErrorDocument reads a JSON:API error document, returning nil if the
// body is not one.
func decodeErrorDocument(r io.Reader) error {
	var doc struct {
		Errors []*jsonapi.Error `json:"errors"`
	}
	if err := json.NewDecoder(r).Decode(&doc); err != nil || len(doc.Errors) == 0 {
		return nil
	}
	msgs := make([]string, len(doc.Errors))
	for i, e := range doc.Errors {
		msgs[i] = e.Title
		if e.Detail != "" {
			msgs[i] += ": " + e.Detail
		}
	}
	return errors.New(strings.Join(msgs, "\n"))
}
